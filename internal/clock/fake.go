package clock

import (
	"time"

	"github.com/HeitererGarten/fao56-pump-control/internal/logic"
)

// Fake is a settable Provider for tests.
type Fake struct {
	// Elapsed is the tick counter.
	Elapsed time.Duration

	// OfDay is the local time of day.
	OfDay time.Duration

	// Unsynced makes Now return an invalid reading.
	Unsynced bool
}

// NewFake creates a Fake showing hh:mm:00 with a zero tick counter.
func NewFake(hour, minute int) *Fake {
	f := &Fake{}
	f.Set(hour, minute, 0)
	return f
}

// Set moves the time of day without touching the tick counter.
func (f *Fake) Set(hour, minute, second int) {
	f.OfDay = time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(second)*time.Second
}

// Advance moves both the tick counter and the time of day forward.
func (f *Fake) Advance(d time.Duration) {
	f.Elapsed += d
	f.OfDay = (f.OfDay + d) % (24 * time.Hour)
}

// Now returns the fake time of day.
func (f *Fake) Now() logic.Reading {
	if f.Unsynced {
		return logic.Reading{}
	}
	d := f.OfDay
	return logic.Reading{
		Hour:   int(d / time.Hour),
		Minute: int(d % time.Hour / time.Minute),
		Second: int(d % time.Minute / time.Second),
		Valid:  true,
	}
}

// TickMs returns the fake tick counter.
func (f *Fake) TickMs() int64 {
	return f.Elapsed.Milliseconds()
}
