// Package logic contains the pure valve state machine.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Wall-clock readings and tick counts are always passed in by the caller.
package logic

import "fmt"

// Phase is the controller's operating phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseIrrigating
	PhaseEmergencyHalt
	// PhaseFault is reserved for hardware-fault reporting. No command or
	// tick rule enters it.
	PhaseFault
)

// String returns the wire name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseIrrigating:
		return "IRRIGATING"
	case PhaseEmergencyHalt:
		return "EMERGENCY_HALT"
	case PhaseFault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// Command is one of Start, Resume, EmergencyHalt or Stop.
type Command interface {
	command()
	Name() string
}

// Start begins a new run of DurationMinutes.
type Start struct {
	DurationMinutes float64
}

// Resume continues a halted run with whatever time remained.
type Resume struct{}

// EmergencyHalt pauses a run, keeping the remaining time.
type EmergencyHalt struct{}

// Stop ends any run and discards its timing.
type Stop struct{}

func (Start) command()         {}
func (Resume) command()        {}
func (EmergencyHalt) command() {}
func (Stop) command()          {}

func (Start) Name() string         { return "start" }
func (Resume) Name() string        { return "resume" }
func (EmergencyHalt) Name() string { return "emergency_halt" }
func (Stop) Name() string          { return "stop" }

// Reading is a local time-of-day sample.
// Valid is false when no trusted time source is available.
type Reading struct {
	Hour   int
	Minute int
	Second int
	Valid  bool
}

// String formats the reading as HH:MM:SS, or "" if the reading is not valid.
func (r Reading) String() string {
	if !r.Valid {
		return ""
	}
	return fmt.Sprintf("%02d:%02d:%02d", r.Hour, r.Minute, r.Second)
}

// Instant is everything the machine needs to know about "now".
type Instant struct {
	Clock  Reading
	TickMs int64 // monotonic milliseconds, never goes backward during a run
}

// State is the controller's only mutable entity.
type State struct {
	Phase                Phase
	IrrigationDurationMs int64
	RemainingMs          int64
	RunStartTick         int64 // meaningful only while Irrigating
	PumpActive           bool
}

// Outcome names what a command or tick did to the state.
type Outcome string

const (
	OutcomeNone       Outcome = ""
	OutcomeStarted    Outcome = "STARTED"
	OutcomeResumed    Outcome = "RESUMED"
	OutcomeHalted     Outcome = "HALTED"
	OutcomeForcedHalt Outcome = "FORCED_HALT"
	OutcomeStopped    Outcome = "STOPPED"
	OutcomeCompleted  Outcome = "COMPLETED"
	OutcomeFaultHold  Outcome = "FAULT_HOLD"
)

// Result reports the effect of Apply or Tick.
type Result struct {
	Outcome Outcome
	From    Phase
	To      Phase
}

// Transitioned reports whether a transition was taken. Transitions are
// published; everything else is not.
func (r Result) Transitioned() bool {
	return r.Outcome != OutcomeNone && r.Outcome != OutcomeFaultHold
}
