package logic

import "math"

// Machine tracks the valve phase and run timing.
// Not safe for concurrent use: a single event loop owns it.
type Machine struct {
	state State
}

// NewMachine creates a machine in PhaseIdle.
func NewMachine() *Machine {
	return &Machine{}
}

// NewMachineWithState creates a machine holding a previously captured state.
func NewMachineWithState(s State) *Machine {
	return &Machine{state: s}
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	return m.state
}

// Apply runs a validated command through the transition table. Commands
// that match no row leave the state untouched and return OutcomeNone.
func (m *Machine) Apply(cmd Command, now Instant) Result {
	from := m.state.Phase

	switch c := cmd.(type) {
	case Start:
		if from == PhaseIdle && WindowOpen(now.Clock) {
			m.state.IrrigationDurationMs = minutesToMs(c.DurationMinutes)
			m.state.RemainingMs = m.state.IrrigationDurationMs
			m.state.RunStartTick = now.TickMs
			m.state.Phase = PhaseIrrigating
			m.state.PumpActive = true
			return m.result(OutcomeStarted, from)
		}
	case Resume:
		if from == PhaseEmergencyHalt && WindowOpen(now.Clock) {
			m.state.IrrigationDurationMs = m.state.RemainingMs
			m.state.RunStartTick = now.TickMs
			m.state.Phase = PhaseIrrigating
			m.state.PumpActive = true
			return m.result(OutcomeResumed, from)
		}
	case EmergencyHalt:
		if from == PhaseIrrigating {
			m.halt(now)
			return m.result(OutcomeHalted, from)
		}
	case Stop:
		m.reset()
		return m.result(OutcomeStopped, from)
	}

	return Result{From: from, To: from}
}

// Tick evaluates the time-based rules. Only PhaseIrrigating and PhaseFault
// react to ticks.
func (m *Machine) Tick(now Instant) Result {
	from := m.state.Phase

	switch from {
	case PhaseIrrigating:
		if !WindowOpen(now.Clock) {
			m.halt(now)
			return m.result(OutcomeForcedHalt, from)
		}
		elapsed := now.TickMs - m.state.RunStartTick
		if elapsed >= m.state.IrrigationDurationMs {
			m.reset()
			return m.result(OutcomeCompleted, from)
		}
		m.state.RemainingMs = m.state.IrrigationDurationMs - elapsed
	case PhaseFault:
		m.state.PumpActive = false
		return m.result(OutcomeFaultHold, from)
	}

	return Result{From: from, To: from}
}

// halt moves an irrigating run to PhaseEmergencyHalt. RemainingMs never
// goes negative even if the run overshot its duration between ticks.
func (m *Machine) halt(now Instant) {
	remaining := m.state.IrrigationDurationMs - (now.TickMs - m.state.RunStartTick)
	if remaining < 0 {
		remaining = 0
	}
	m.state.RemainingMs = remaining
	m.state.Phase = PhaseEmergencyHalt
	m.state.PumpActive = false
}

func (m *Machine) reset() {
	m.state = State{Phase: PhaseIdle}
}

func (m *Machine) result(o Outcome, from Phase) Result {
	return Result{Outcome: o, From: from, To: m.state.Phase}
}

// minutesToMs rounds to the nearest millisecond so that values like 4.35
// minutes do not lose one to float error.
func minutesToMs(minutes float64) int64 {
	return int64(math.Round(minutes * 60 * 1000))
}
