package calendar

import "fmt"

// =============================================================================
// GRANULARITY - How many weekdays a view spans
// =============================================================================

type Granularity string

const (
	GranularityDay    Granularity = "day"
	GranularityWeek   Granularity = "week"
	GranularityBiWeek Granularity = "biweek"
	GranularityMonth  Granularity = "month"
)

func (g Granularity) Valid() bool {
	switch g {
	case GranularityDay, GranularityWeek, GranularityBiWeek, GranularityMonth:
		return true
	}
	return false
}

// ParseGranularity validates a granularity at the boundary. An empty string
// selects the week view.
func ParseGranularity(s string) (Granularity, error) {
	if s == "" {
		return GranularityWeek, nil
	}
	g := Granularity(s)
	if !g.Valid() {
		return "", &ValidationError{Field: "granularity", Message: fmt.Sprintf("unknown granularity %q", s)}
	}
	return g, nil
}

// =============================================================================
// GRID - Ordered weekday columns of a view
// =============================================================================

type GridDay struct {
	Date       Date   `json:"date"`
	IsToday    bool   `json:"is_today"`
	Label      string `json:"label"`
	ISOWeek    int    `json:"iso_week"`
	StartsWeek bool   `json:"starts_week"`
}

type Grid struct {
	Anchor      Date        `json:"anchor"`
	Granularity Granularity `json:"granularity"`
	Days        []GridDay   `json:"days"`
}

// Start and End bound the grid. Both are zero for an empty grid.
func (g Grid) Start() Date {
	if len(g.Days) == 0 {
		return Date{}
	}
	return g.Days[0].Date
}

func (g Grid) End() Date {
	if len(g.Days) == 0 {
		return Date{}
	}
	return g.Days[len(g.Days)-1].Date
}

func (g Grid) Dates() []Date {
	dates := make([]Date, len(g.Days))
	for i, d := range g.Days {
		dates[i] = d.Date
	}
	return dates
}

// Expand turns an anchor date and granularity into weekday columns.
// Weekends are skipped entirely. Unknown granularities yield an empty grid;
// ParseGranularity rejects them before they get here.
func Expand(anchor Date, g Granularity, today Date) Grid {
	grid := Grid{Anchor: anchor, Granularity: g}

	var dates []Date
	switch g {
	case GranularityDay:
		dates = []Date{anchor.NextWorkday()}
	case GranularityWeek:
		dates = takeWorkdays(weekStart(anchor), 5)
	case GranularityBiWeek:
		dates = takeWorkdays(weekStart(anchor), 10)
	case GranularityMonth:
		dates = Workdays(StartOfMonth(anchor.Year, anchor.Month), EndOfMonth(anchor.Year, anchor.Month))
	}

	grid.Days = make([]GridDay, len(dates))
	for i, d := range dates {
		_, week := d.Time().ISOWeek()
		grid.Days[i] = GridDay{
			Date:       d,
			IsToday:    d == today,
			Label:      d.Time().Format("Mon 02 Jan"),
			ISOWeek:    week,
			StartsWeek: i == 0 || d.Weekday() < dates[i-1].Weekday(),
		}
	}
	return grid
}

// weekStart is the Monday of the anchor's week, or the following Monday when
// the anchor falls on a weekend.
func weekStart(anchor Date) Date {
	if anchor.IsWeekend() {
		return anchor.NextWorkday()
	}
	return anchor.MondayOf()
}

func takeWorkdays(from Date, n int) []Date {
	dates := make([]Date, 0, n)
	for d := from; len(dates) < n; d = d.AddDays(1) {
		if d.IsWorkday() {
			dates = append(dates, d)
		}
	}
	return dates
}
