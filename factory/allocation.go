/*
Package factory provides JSON to Go allocation template conversion.

PURPOSE:
  Converts JSON allocation templates into leave.Template values so yearly
  leave entitlements can change without a code release. Templates are read
  when an allocation is first seeded; existing allocations never change
  when the file changes.

JSON SCHEMA:
  {
    "default": {"annual": 25, "sick": 10, "other": 5},
    "teams": {
      "site-crew": {"annual": 27.5}
    },
    "employees": {
      "emp-42": {"other": 8}
    }
  }

  Overrides are partial: a missing field keeps the value of the level
  below. Lookup order is employee, team, default.

RULES:
  - Days must not be negative.
  - Days must be whole or half days (leave is booked per slot).

USAGE:
  f := factory.NewAllocationFactory()
  templates, err := f.ParseTemplates(factory.StandardTemplatesJSON())
  coordinator := &leave.Coordinator{Templates: templates, ...}

SEE ALSO:
  - leave/allocation.go: Template and Allocation
  - leave/coordinator.go: seeding on first access
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/warp/slot-calendar/calendar"
	"github.com/warp/slot-calendar/leave"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type TemplatesJSON struct {
	Default   *TemplateJSON           `json:"default,omitempty"`
	Teams     map[string]TemplateJSON `json:"teams,omitempty"`
	Employees map[string]TemplateJSON `json:"employees,omitempty"`
}

// TemplateJSON holds days per leave type. Nil fields inherit.
type TemplateJSON struct {
	Annual *decimal.Decimal `json:"annual,omitempty"`
	Sick   *decimal.Decimal `json:"sick,omitempty"`
	Other  *decimal.Decimal `json:"other,omitempty"`
}

// =============================================================================
// TEMPLATES - leave.TemplateSource with per-team and per-employee overrides
// =============================================================================

type Templates struct {
	Default   leave.Template
	Teams     map[calendar.TeamID]leave.Template
	Employees map[calendar.EmployeeID]leave.Template
}

var _ leave.TemplateSource = (*Templates)(nil)

func (t *Templates) TemplateFor(emp calendar.Employee) leave.Template {
	if tpl, ok := t.Employees[emp.ID]; ok {
		return tpl
	}
	if tpl, ok := t.Teams[emp.TeamID]; ok {
		return tpl
	}
	return t.Default
}

// =============================================================================
// ALLOCATION FACTORY
// =============================================================================

type AllocationFactory struct{}

func NewAllocationFactory() *AllocationFactory {
	return &AllocationFactory{}
}

// LoadTemplates reads a template file. An empty path yields the defaults.
func (f *AllocationFactory) LoadTemplates(path string) (*Templates, error) {
	if path == "" {
		return f.FromJSON(TemplatesJSON{})
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read allocation templates: %w", err)
	}
	return f.ParseTemplates(string(raw))
}

// ParseTemplates parses a JSON string into Templates.
func (f *AllocationFactory) ParseTemplates(jsonStr string) (*Templates, error) {
	var tj TemplatesJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return nil, fmt.Errorf("failed to parse allocation templates JSON: %w", err)
	}
	return f.FromJSON(tj)
}

// FromJSON resolves inheritance and validates every resulting template.
func (f *AllocationFactory) FromJSON(tj TemplatesJSON) (*Templates, error) {
	base := leave.DefaultTemplate
	if tj.Default != nil {
		base = overlay(base, *tj.Default)
	}
	if err := validateTemplate("default", base); err != nil {
		return nil, err
	}

	out := &Templates{
		Default:   base,
		Teams:     make(map[calendar.TeamID]leave.Template, len(tj.Teams)),
		Employees: make(map[calendar.EmployeeID]leave.Template, len(tj.Employees)),
	}
	for team, o := range tj.Teams {
		tpl := overlay(base, o)
		if err := validateTemplate("team "+team, tpl); err != nil {
			return nil, err
		}
		out.Teams[calendar.TeamID(team)] = tpl
	}
	for emp, o := range tj.Employees {
		// Employee overrides sit on top of the default; team inheritance
		// is resolved at lookup time because teams can change.
		tpl := overlay(base, o)
		if err := validateTemplate("employee "+emp, tpl); err != nil {
			return nil, err
		}
		out.Employees[calendar.EmployeeID(emp)] = tpl
	}
	return out, nil
}

// StandardTemplatesJSON is the preset used by the demo scenarios.
func StandardTemplatesJSON() string {
	return `{
  "default": {"annual": 25, "sick": 10, "other": 5},
  "teams": {
    "site": {"annual": 27, "other": 3}
  }
}`
}

func overlay(base leave.Template, o TemplateJSON) leave.Template {
	if o.Annual != nil {
		base.Annual = *o.Annual
	}
	if o.Sick != nil {
		base.Sick = *o.Sick
	}
	if o.Other != nil {
		base.Other = *o.Other
	}
	return base
}

var half = decimal.NewFromFloat(0.5)

func validateTemplate(name string, t leave.Template) error {
	for typ, days := range map[leave.Type]decimal.Decimal{
		leave.TypeAnnual: t.Annual,
		leave.TypeSick:   t.Sick,
		leave.TypeOther:  t.Other,
	} {
		if days.IsNegative() {
			return &calendar.ValidationError{Field: name, Message: fmt.Sprintf("%s days must not be negative", typ)}
		}
		if !days.Mod(half).IsZero() {
			return &calendar.ValidationError{Field: name, Message: fmt.Sprintf("%s days must be whole or half days, got %s", typ, days)}
		}
	}
	return nil
}
