package calendar

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlotLocks_ReleasedEntriesAreDropped(t *testing.T) {
	l := NewSlotLocks()
	a := SlotKey{EmployeeID: "emp-1", Date: NewDate(2025, time.March, 10), Slot: SlotMorning}
	b := SlotKey{EmployeeID: "emp-1", Date: NewDate(2025, time.March, 10), Slot: SlotAfternoon}

	unlock := l.Lock(b, a, a)
	assert.Equal(t, 2, l.held(), "duplicates collapse")
	unlock()
	assert.Equal(t, 0, l.held())
}

func TestSlotLocks_CrossingMovesDoNotDeadlock(t *testing.T) {
	// GIVEN: Two writers locking the same pair in opposite argument order
	// WHEN: Both run many times concurrently
	// THEN: Both finish

	l := NewSlotLocks()
	a := SlotKey{EmployeeID: "emp-1", Date: NewDate(2025, time.March, 10), Slot: SlotMorning}
	b := SlotKey{EmployeeID: "emp-2", Date: NewDate(2025, time.March, 11), Slot: SlotAfternoon}

	var wg sync.WaitGroup
	var inside int32
	worker := func(first, second SlotKey) {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			unlock := l.Lock(first, second)
			if atomic.AddInt32(&inside, 1) != 1 {
				t.Error("two holders inside the same critical section")
			}
			atomic.AddInt32(&inside, -1)
			unlock()
		}
	}

	wg.Add(2)
	go worker(a, b)
	go worker(b, a)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock ordering deadlocked")
	}
	assert.Equal(t, 0, l.held())
}

func TestOrderKeys(t *testing.T) {
	d1 := NewDate(2025, time.March, 10)
	d2 := NewDate(2025, time.March, 11)
	keys := orderKeys([]SlotKey{
		{EmployeeID: "emp-2", Date: d1, Slot: SlotMorning},
		{EmployeeID: "emp-1", Date: d2, Slot: SlotMorning},
		{EmployeeID: "emp-1", Date: d1, Slot: SlotAfternoon},
		{EmployeeID: "emp-1", Date: d1, Slot: SlotMorning},
		{EmployeeID: "emp-1"},
	})
	assert.Equal(t, []SlotKey{
		{EmployeeID: "emp-1"},
		{EmployeeID: "emp-1", Date: d1, Slot: SlotMorning},
		{EmployeeID: "emp-1", Date: d1, Slot: SlotAfternoon},
		{EmployeeID: "emp-1", Date: d2, Slot: SlotMorning},
		{EmployeeID: "emp-2", Date: d1, Slot: SlotMorning},
	}, keys)
}
