package controller

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HeitererGarten/fao56-pump-control/internal/clock"
	"github.com/HeitererGarten/fao56-pump-control/internal/command"
	"github.com/HeitererGarten/fao56-pump-control/internal/gpio"
	"github.com/HeitererGarten/fao56-pump-control/internal/logic"
	"github.com/HeitererGarten/fao56-pump-control/internal/metrics"
	"github.com/HeitererGarten/fao56-pump-control/internal/status"
)

// recordingPublisher captures published snapshots.
type recordingPublisher struct {
	snaps []status.Snapshot
	err   error
}

func (p *recordingPublisher) Publish(snap status.Snapshot) error {
	if p.err != nil {
		return p.err
	}
	p.snaps = append(p.snaps, snap)
	return nil
}

func (p *recordingPublisher) last(t *testing.T) status.Snapshot {
	t.Helper()
	require.NotEmpty(t, p.snaps, "nothing published")
	return p.snaps[len(p.snaps)-1]
}

type harness struct {
	ctrl    *Controller
	clock   *clock.Fake
	relay   *gpio.FakeActuator
	pub     *recordingPublisher
	tracker *status.Tracker
	metrics *metrics.Collector
}

func newHarness(t *testing.T, hour, minute int) *harness {
	t.Helper()
	h := &harness{
		clock:   clock.NewFake(hour, minute),
		relay:   gpio.NewFakeActuator(),
		pub:     &recordingPublisher{},
		tracker: status.NewTracker(time.Now(), status.Config{DeviceID: "P-1"}),
		metrics: metrics.New(),
	}
	cfg := Config{
		DeviceID: "P-1",
		Bounds:   command.Bounds{Min: 0, Max: 480},
	}
	ctrl, err := New(cfg, h.clock, h.relay, h.pub, WithTracker(h.tracker), WithMetrics(h.metrics))
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func (h *harness) send(t *testing.T, payload string) (logic.Result, error) {
	t.Helper()
	return h.ctrl.HandleMessage([]byte(payload))
}

func (h *harness) start(t *testing.T, minutes float64) {
	t.Helper()
	b, _ := json.Marshal(map[string]any{"id": "P-1", "signal": "On", "irr_time": minutes})
	res, err := h.ctrl.HandleMessage(b)
	require.NoError(t, err)
	require.Equal(t, logic.OutcomeStarted, res.Outcome)
}

func TestNewDeenergizesRelay(t *testing.T) {
	h := newHarness(t, 7, 30)

	assert.Equal(t, []bool{false}, h.relay.Writes)
	assert.Empty(t, h.pub.snaps, "construction must not publish")
	assert.True(t, h.tracker.View().Ready)
}

func TestCompletionScenario(t *testing.T) {
	h := newHarness(t, 7, 30)

	res, err := h.send(t, `{"id":"P-1","signal":"On","irr_time":10}`)
	require.NoError(t, err)
	assert.Equal(t, logic.OutcomeStarted, res.Outcome)
	assert.Equal(t, int64(600000), h.ctrl.State().IrrigationDurationMs)
	assert.True(t, h.relay.Active)

	started := h.pub.last(t)
	assert.Equal(t, logic.PhaseIrrigating, started.Phase)
	assert.Equal(t, int64(10), started.RemainingMinutes())

	h.clock.Advance(10 * time.Minute)
	res = h.ctrl.Tick()
	assert.Equal(t, logic.OutcomeCompleted, res.Outcome)

	done := h.pub.last(t)
	assert.Equal(t, logic.PhaseIdle, done.Phase)
	assert.False(t, done.PumpActive)
	assert.Equal(t, int64(0), done.RemainingMinutes())
	assert.Equal(t, "07:40:00", done.Clock.String())
	assert.False(t, h.relay.Active)

	published := len(h.pub.snaps)
	h.clock.Advance(time.Second)
	res = h.ctrl.Tick()
	assert.Equal(t, logic.OutcomeNone, res.Outcome, "completion fires once")
	assert.Len(t, h.pub.snaps, published)
}

func TestWindowCloseScenario(t *testing.T) {
	h := newHarness(t, 18, 30)
	h.start(t, 50)

	h.clock.Advance(30*time.Minute + time.Second)
	res := h.ctrl.Tick()
	assert.Equal(t, logic.OutcomeForcedHalt, res.Outcome)

	s := h.ctrl.State()
	assert.Equal(t, logic.PhaseEmergencyHalt, s.Phase)
	assert.Equal(t, int64(20*60000-1000), s.RemainingMs)
	assert.False(t, h.relay.Active)

	snap := h.pub.last(t)
	assert.Equal(t, logic.PhaseEmergencyHalt, snap.Phase)
	assert.Equal(t, int64(19), snap.RemainingMinutes())
	assert.False(t, snap.IrrigationAllowed)
	assert.Equal(t, 1, h.tracker.View().Counts.ForcedHalts)
}

func TestHaltAndResumePreservesRemaining(t *testing.T) {
	h := newHarness(t, 16, 0)
	h.start(t, 30)

	h.clock.Advance(12 * time.Minute)
	res, err := h.send(t, `{"id":"P-1","signal":"Emergency Halt"}`)
	require.NoError(t, err)
	assert.Equal(t, logic.OutcomeHalted, res.Outcome)
	assert.Equal(t, int64(18*60000), h.ctrl.State().RemainingMs)
	assert.False(t, h.relay.Active)

	// Remaining time is frozen while halted.
	h.clock.Advance(5 * time.Minute)
	h.ctrl.Tick()
	assert.Equal(t, int64(18*60000), h.ctrl.State().RemainingMs)

	res, err = h.send(t, `{"id":"P-1","signal":"On","irr_time":90}`)
	require.NoError(t, err)
	assert.Equal(t, logic.OutcomeResumed, res.Outcome)
	assert.Equal(t, int64(18*60000), h.ctrl.State().IrrigationDurationMs, "resume ignores irr_time")
	assert.True(t, h.relay.Active)
	assert.Equal(t, []bool{false, true, false, true}, h.relay.Writes)
}

func TestStopFromEveryPhase(t *testing.T) {
	phases := []logic.State{
		{Phase: logic.PhaseIdle},
		{Phase: logic.PhaseIrrigating, IrrigationDurationMs: 60000, RemainingMs: 30000, PumpActive: true},
		{Phase: logic.PhaseEmergencyHalt, IrrigationDurationMs: 60000, RemainingMs: 30000},
		{Phase: logic.PhaseFault},
	}

	for _, s := range phases {
		t.Run(s.Phase.String(), func(t *testing.T) {
			h := newHarness(t, 12, 0)
			h.ctrl.machine = logic.NewMachineWithState(s)
			h.relay.SetActive(s.PumpActive)

			res, err := h.send(t, `{"id":"P-1","signal":"Stop"}`)
			require.NoError(t, err)
			assert.Equal(t, logic.OutcomeStopped, res.Outcome)
			assert.Equal(t, logic.State{Phase: logic.PhaseIdle}, h.ctrl.State())
			assert.False(t, h.relay.Active)
			assert.Equal(t, logic.PhaseIdle, h.pub.last(t).Phase)
		})
	}
}

func TestCancelIgnoresIrrTime(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    logic.Outcome
		phase   logic.Phase
	}{
		{"stop null", `{"id":"P-1","signal":"Stop","irr_time":null}`, logic.OutcomeStopped, logic.PhaseIdle},
		{"stop string", `{"id":"P-1","signal":"Stop","irr_time":"n/a"}`, logic.OutcomeStopped, logic.PhaseIdle},
		{"halt null", `{"id":"P-1","signal":"Emergency Halt","irr_time":null}`, logic.OutcomeHalted, logic.PhaseEmergencyHalt},
		{"halt string", `{"id":"P-1","signal":"Emergency Halt","irr_time":"n/a"}`, logic.OutcomeHalted, logic.PhaseEmergencyHalt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 7, 30)
			h.start(t, 10)
			h.clock.Advance(time.Minute)

			res, err := h.send(t, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome)
			assert.Equal(t, tt.phase, h.ctrl.State().Phase)
			assert.False(t, h.relay.Active)
			assert.Equal(t, tt.phase, h.pub.last(t).Phase)
		})
	}
}

func TestRejectedCommandsChangeNothing(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"malformed json", `{"id":"P-1",`, command.ErrMalformed},
		{"missing signal", `{"id":"P-1"}`, command.ErrMalformed},
		{"unknown signal", `{"id":"P-1","signal":"Off"}`, command.ErrMalformed},
		{"on without irr_time", `{"id":"P-1","signal":"On"}`, command.ErrMalformed},
		{"wrong device", `{"id":"P-2","signal":"Stop"}`, ErrWrongDevice},
		{"zero duration", `{"id":"P-1","signal":"On","irr_time":0}`, command.ErrDurationOutOfRange},
		{"too long", `{"id":"P-1","signal":"On","irr_time":480.5}`, command.ErrDurationOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 8, 0)
			h.start(t, 30)
			before := h.ctrl.State()
			published := len(h.pub.snaps)
			writes := len(h.relay.Writes)

			res, err := h.send(t, tt.payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, logic.OutcomeNone, res.Outcome)
			assert.Equal(t, before, h.ctrl.State())
			assert.Len(t, h.pub.snaps, published, "rejection must not publish")
			assert.Len(t, h.relay.Writes, writes, "rejection must not actuate")
			assert.Equal(t, 1, h.tracker.View().Counts.Rejected)
		})
	}
}

func TestWrongDeviceIgnoredInEveryPhase(t *testing.T) {
	payloads := []string{
		`{"id":"P-2","signal":"On","irr_time":10}`,
		`{"id":"P-2","signal":"Emergency Halt"}`,
		`{"id":"P-2","signal":"Stop"}`,
		`{"id":"","signal":"Stop"}`,
	}
	states := []logic.State{
		{Phase: logic.PhaseIdle},
		{Phase: logic.PhaseIrrigating, IrrigationDurationMs: 60000, RemainingMs: 60000, PumpActive: true},
		{Phase: logic.PhaseEmergencyHalt, IrrigationDurationMs: 60000, RemainingMs: 42000},
	}

	for _, s := range states {
		for _, p := range payloads {
			h := newHarness(t, 7, 0)
			h.ctrl.machine = logic.NewMachineWithState(s)

			_, err := h.send(t, p)
			assert.ErrorIs(t, err, ErrWrongDevice)
			assert.Equal(t, s, h.ctrl.State(), "state mutated by %s in %s", p, s.Phase)
		}
	}
}

func TestUnmatchedCommandIsNoop(t *testing.T) {
	h := newHarness(t, 8, 0)
	h.start(t, 30)
	published := len(h.pub.snaps)

	res, err := h.send(t, `{"id":"P-1","signal":"On","irr_time":5}`)
	require.NoError(t, err, "unmatched commands are not errors")
	assert.Equal(t, logic.OutcomeNone, res.Outcome)
	assert.Equal(t, int64(30*60000), h.ctrl.State().IrrigationDurationMs)
	assert.Len(t, h.pub.snaps, published)

	expected := `
# HELP pump_commands_total Inbound commands by signal and result.
# TYPE pump_commands_total counter
pump_commands_total{result="accepted",signal="On"} 1
pump_commands_total{result="unmatched",signal="On"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected), "pump_commands_total"))
}

func TestStartOutsideWindowIsNoop(t *testing.T) {
	h := newHarness(t, 12, 0)

	res, err := h.send(t, `{"id":"P-1","signal":"On","irr_time":10}`)
	require.NoError(t, err)
	assert.Equal(t, logic.OutcomeNone, res.Outcome)
	assert.Equal(t, logic.PhaseIdle, h.ctrl.State().Phase)
	assert.Empty(t, h.pub.snaps)
	assert.Equal(t, []bool{false}, h.relay.Writes)
}

func TestUnsyncedClockForcesHalt(t *testing.T) {
	h := newHarness(t, 7, 0)
	h.start(t, 30)

	h.clock.Unsynced = true
	h.clock.Advance(time.Minute)
	res := h.ctrl.Tick()

	assert.Equal(t, logic.OutcomeForcedHalt, res.Outcome)
	assert.False(t, h.relay.Active)
	snap := h.pub.last(t)
	assert.False(t, snap.Clock.Valid)
	assert.False(t, snap.IrrigationAllowed)
	assert.Equal(t, int64(29), snap.RemainingMinutes())

	// Without a clock nothing can restart.
	res, err := h.send(t, `{"id":"P-1","signal":"On","irr_time":30}`)
	require.NoError(t, err)
	assert.Equal(t, logic.OutcomeNone, res.Outcome)
}

func TestFaultTickHoldsRelayOff(t *testing.T) {
	h := newHarness(t, 8, 0)
	h.ctrl.machine = logic.NewMachineWithState(logic.State{Phase: logic.PhaseFault, PumpActive: true})
	h.relay.SetActive(true)

	res := h.ctrl.Tick()
	assert.Equal(t, logic.OutcomeFaultHold, res.Outcome)
	assert.False(t, h.relay.Active)
	assert.False(t, h.ctrl.State().PumpActive)
	assert.Empty(t, h.pub.snaps, "fault hold is not a transition")

	res, err := h.send(t, `{"id":"P-1","signal":"On","irr_time":10}`)
	require.NoError(t, err)
	assert.Equal(t, logic.OutcomeNone, res.Outcome)
	assert.Equal(t, logic.PhaseFault, h.ctrl.State().Phase)
}

func TestPeriodicStatusWhileIrrigating(t *testing.T) {
	h := newHarness(t, 7, 0)
	h.ctrl.cfg.StatusIntervalMs = 60000
	h.start(t, 10)
	require.Len(t, h.pub.snaps, 1)

	for i := 0; i < 59; i++ {
		h.clock.Advance(time.Second)
		h.ctrl.Tick()
	}
	assert.Len(t, h.pub.snaps, 1, "no periodic publish before the interval")

	h.clock.Advance(time.Second)
	h.ctrl.Tick()
	require.Len(t, h.pub.snaps, 2)
	assert.Equal(t, int64(9), h.pub.last(t).RemainingMinutes())
}

func TestNoPeriodicStatusWhenIdle(t *testing.T) {
	h := newHarness(t, 7, 0)
	h.ctrl.cfg.StatusIntervalMs = 1000

	for i := 0; i < 5; i++ {
		h.clock.Advance(time.Second)
		h.ctrl.Tick()
	}
	assert.Empty(t, h.pub.snaps)
}

func TestPublishFailureKeepsTransition(t *testing.T) {
	h := newHarness(t, 7, 0)
	h.pub.err = errors.New("broker down")

	res, err := h.send(t, `{"id":"P-1","signal":"On","irr_time":10}`)
	require.NoError(t, err)
	assert.Equal(t, logic.OutcomeStarted, res.Outcome)
	assert.True(t, h.relay.Active)
	expected := `
# HELP pump_status_publishes_total Status publish attempts by result.
# TYPE pump_status_publishes_total counter
pump_status_publishes_total{result="error"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected), "pump_status_publishes_total"))
}

func TestPublishStatus(t *testing.T) {
	h := newHarness(t, 7, 5)
	h.ctrl.PublishStatus()

	snap := h.pub.last(t)
	assert.Equal(t, "P-1", snap.DeviceID)
	assert.Equal(t, logic.PhaseIdle, snap.Phase)
	assert.True(t, snap.IrrigationAllowed)
	assert.Equal(t, "07:05:00", snap.Clock.String())
}

func TestShutdownHaltsRunningIrrigation(t *testing.T) {
	h := newHarness(t, 7, 0)
	h.start(t, 10)
	h.clock.Advance(4 * time.Minute)

	h.ctrl.Shutdown()

	s := h.ctrl.State()
	assert.Equal(t, logic.PhaseEmergencyHalt, s.Phase)
	assert.Equal(t, int64(6*60000), s.RemainingMs)
	assert.False(t, h.relay.Active)
	assert.Equal(t, logic.PhaseEmergencyHalt, h.pub.last(t).Phase)
	assert.Len(t, h.pub.snaps, 2, "start and halt only")
}

func TestShutdownWhenIdle(t *testing.T) {
	h := newHarness(t, 7, 0)
	h.ctrl.Shutdown()

	require.Len(t, h.pub.snaps, 1, "final status is published once")
	assert.Equal(t, logic.PhaseIdle, h.pub.last(t).Phase)
	assert.False(t, h.relay.Active)
	assert.Equal(t, logic.PhaseIdle, h.ctrl.State().Phase)
}

func TestTrackerMirrorsState(t *testing.T) {
	h := newHarness(t, 16, 30)
	h.start(t, 15)
	h.clock.Advance(time.Minute)
	h.ctrl.Tick()

	v := h.tracker.View()
	assert.Equal(t, logic.PhaseIrrigating, v.Status.Phase)
	assert.Equal(t, int64(14*60000), v.Status.RemainingMs)
	assert.Equal(t, 1, v.Counts.Started)
}
