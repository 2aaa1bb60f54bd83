// Package status builds valve status snapshots and keeps the latest one for
// HTTP readers.
package status

import (
	"sync"
	"time"

	"github.com/HeitererGarten/fao56-pump-control/internal/logic"
)

// Snapshot is a point-in-time projection of controller state.
// It is a value type and is never stored by the controller.
type Snapshot struct {
	DeviceID          string
	Phase             logic.Phase
	PumpActive        bool
	RemainingMs       int64
	IrrigationAllowed bool
	Clock             logic.Reading
}

// Build projects state and the current time of day into a Snapshot.
func Build(deviceID string, s logic.State, now logic.Reading) Snapshot {
	return Snapshot{
		DeviceID:          deviceID,
		Phase:             s.Phase,
		PumpActive:        s.PumpActive,
		RemainingMs:       s.RemainingMs,
		IrrigationAllowed: logic.WindowOpen(now),
		Clock:             now,
	}
}

// RemainingMinutes is RemainingMs floored to whole minutes.
func (s Snapshot) RemainingMinutes() int64 {
	if s.RemainingMs <= 0 {
		return 0
	}
	return s.RemainingMs / 60000
}

// Config contains daemon configuration for display.
type Config struct {
	DeviceID         string
	Broker           string
	CommandTopic     string
	StatusTopic      string
	MinMinutes       float64
	MaxMinutes       float64
	TickMs           int64
	StatusIntervalMs int64
	Timezone         string
	HTTPAddr         string
}

// Counts tracks how many of each transition happened since startup.
type Counts struct {
	Started     int
	Resumed     int
	Halted      int
	ForcedHalts int
	Stopped     int
	Completed   int
	Rejected    int
}

// View is a point-in-time view of the daemon for the status page.
// It is a value type and safe to use after the lock is released.
type View struct {
	Status        Snapshot
	Ready         bool // true once the controller has reported a snapshot
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (v View) Uptime() time.Duration {
	return v.Now.Sub(v.StartTime)
}

// Tracker holds the latest snapshot behind an RWMutex. The controller writes
// it from the event loop; HTTP handlers read it.
type Tracker struct {
	mu   sync.RWMutex
	view View
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		view: View{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores the latest snapshot.
func (t *Tracker) Update(snap Snapshot) {
	t.mu.Lock()
	t.view.Status = snap
	t.view.Ready = true
	t.mu.Unlock()
}

// Record counts a transition outcome.
func (t *Tracker) Record(o logic.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch o {
	case logic.OutcomeStarted:
		t.view.Counts.Started++
	case logic.OutcomeResumed:
		t.view.Counts.Resumed++
	case logic.OutcomeHalted:
		t.view.Counts.Halted++
	case logic.OutcomeForcedHalt:
		t.view.Counts.ForcedHalts++
	case logic.OutcomeStopped:
		t.view.Counts.Stopped++
	case logic.OutcomeCompleted:
		t.view.Counts.Completed++
	}
}

// Reject counts a rejected command.
func (t *Tracker) Reject() {
	t.mu.Lock()
	t.view.Counts.Rejected++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.view.MQTTConnected = connected
	t.mu.Unlock()
}

// View returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) View() View {
	t.mu.RLock()
	v := t.view
	t.mu.RUnlock()
	v.Now = time.Now()
	return v
}
