// Package command decodes and validates inbound valve command messages.
package command

import (
	"errors"
	"fmt"
)

// Wire values of the "signal" field.
const (
	SignalOn            = "On"
	SignalEmergencyHalt = "Emergency Halt"
	SignalStop          = "Stop"
)

var (
	// ErrMalformed indicates the payload is not a valid command message.
	ErrMalformed = errors.New("malformed command")

	// ErrDurationOutOfRange indicates irr_time is outside the configured bounds.
	ErrDurationOutOfRange = errors.New("irrigation time out of range")
)

// Message is one decoded inbound command. IrrTime is set only for "On".
type Message struct {
	ID      string
	Signal  string
	IrrTime *float64
}

// Minutes returns irr_time, or 0 if it was not decoded.
func (m Message) Minutes() float64 {
	if m.IrrTime == nil {
		return 0
	}
	return *m.IrrTime
}

// Bounds is the accepted irr_time range: Min exclusive, Max inclusive.
type Bounds struct {
	Min float64
	Max float64
}

// RangeError reports which bound a requested duration violated.
type RangeError struct {
	Minutes float64
	Bound   float64
	Upper   bool
}

func (e *RangeError) Error() string {
	if e.Upper {
		return fmt.Sprintf("irrigation time %g exceeds maximum of %g minutes", e.Minutes, e.Bound)
	}
	return fmt.Sprintf("irrigation time %g must be greater than %g minutes", e.Minutes, e.Bound)
}

// Unwrap lets errors.Is match ErrDurationOutOfRange.
func (e *RangeError) Unwrap() error {
	return ErrDurationOutOfRange
}

// Check returns a *RangeError unless Min < minutes <= Max.
func (b Bounds) Check(minutes float64) error {
	if minutes <= b.Min {
		return &RangeError{Minutes: minutes, Bound: b.Min}
	}
	if minutes > b.Max {
		return &RangeError{Minutes: minutes, Bound: b.Max, Upper: true}
	}
	return nil
}
