// Package clock supplies local time-of-day and a monotonic tick counter.
// It does not synchronise the clock; that is the operating system's job.
package clock

import (
	"time"

	"github.com/HeitererGarten/fao56-pump-control/internal/logic"
)

// Provider is the controller's source of time.
type Provider interface {
	// Now returns the local time of day. The reading is not Valid when the
	// wall clock cannot be trusted.
	Now() logic.Reading

	// TickMs returns milliseconds since an arbitrary fixed origin.
	// It never goes backward.
	TickMs() int64
}

// SyncedAfter is the earliest wall-clock time treated as synchronised.
// A device that booted without network time reports a date near the epoch.
var SyncedAfter = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// System reads the host clock in a fixed location.
type System struct {
	loc   *time.Location
	start time.Time
	now   func() time.Time
}

// NewSystem creates a System reporting time of day in loc.
func NewSystem(loc *time.Location) *System {
	return newSystem(loc, time.Now)
}

func newSystem(loc *time.Location, now func() time.Time) *System {
	if loc == nil {
		loc = time.Local
	}
	return &System{loc: loc, start: now(), now: now}
}

// Now returns the local time of day in the configured location.
func (s *System) Now() logic.Reading {
	t := s.now()
	if t.Before(SyncedAfter) {
		return logic.Reading{}
	}
	t = t.In(s.loc)
	return logic.Reading{
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
		Valid:  true,
	}
}

// TickMs returns milliseconds since the System was created. time.Time values
// from time.Now carry a monotonic reading, so wall-clock steps (NTP, DST) do
// not affect the result.
func (s *System) TickMs() int64 {
	return s.now().Sub(s.start).Milliseconds()
}

// Location returns the configured location.
func (s *System) Location() *time.Location {
	return s.loc
}
