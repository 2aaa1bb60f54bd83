package status

import (
	"encoding/json"
	"time"
)

// Message is the outbound status message published after every transition.
type Message struct {
	ID                   string `json:"id"`
	State                string `json:"state"`
	PumpActive           bool   `json:"pump_active"`
	RemainingTimeMinutes int64  `json:"remaining_time_minutes"`
	IrrigationAllowed    bool   `json:"irrigation_allowed"`
	CurrentTime          string `json:"current_time,omitempty"`
}

// NewMessage converts a snapshot to its wire form. current_time is left
// empty, and therefore omitted, when the time source is unavailable.
func NewMessage(snap Snapshot) Message {
	return Message{
		ID:                   snap.DeviceID,
		State:                snap.Phase.String(),
		PumpActive:           snap.PumpActive,
		RemainingTimeMinutes: snap.RemainingMinutes(),
		IrrigationAllowed:    snap.IrrigationAllowed,
		CurrentTime:          snap.Clock.String(),
	}
}

// FormatMessage returns the JSON payload for the status topic.
func FormatMessage(snap Snapshot) []byte {
	data, _ := json.Marshal(NewMessage(snap))
	return data
}

// StatusJSON is the top-level JSON envelope for the web endpoint.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Valve         Message    `json:"valve"`
	Ready         bool       `json:"ready"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"transition_counts"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of transition counts.
type CountsJSON struct {
	Started     int `json:"started"`
	Resumed     int `json:"resumed"`
	Halted      int `json:"halted"`
	ForcedHalts int `json:"forced_halts"`
	Stopped     int `json:"stopped"`
	Completed   int `json:"completed"`
	Rejected    int `json:"rejected"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DeviceID         string  `json:"device_id"`
	CommandTopic     string  `json:"command_topic"`
	StatusTopic      string  `json:"status_topic"`
	MinMinutes       float64 `json:"min_minutes"`
	MaxMinutes       float64 `json:"max_minutes"`
	TickMs           int64   `json:"tick_ms"`
	StatusIntervalMs int64   `json:"status_interval_ms"`
	Timezone         string  `json:"timezone"`
	HTTPAddr         string  `json:"http_addr"`
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(v View) []byte {
	c := v.Counts
	sj := StatusJSON{
		Status: StatusInner{
			Valve:         NewMessage(v.Status),
			Ready:         v.Ready,
			UptimeSeconds: int64(v.Uptime().Truncate(time.Second).Seconds()),
			StartTime:     v.StartTime.UTC().Format(time.RFC3339),
			Timestamp:     v.Now.UTC().Format(time.RFC3339),
			MQTT:          MQTTStatus{Connected: v.MQTTConnected, Broker: v.Config.Broker},
			Counts: CountsJSON{
				Started:     c.Started,
				Resumed:     c.Resumed,
				Halted:      c.Halted,
				ForcedHalts: c.ForcedHalts,
				Stopped:     c.Stopped,
				Completed:   c.Completed,
				Rejected:    c.Rejected,
			},
			Config: ConfigJSON{
				DeviceID:         v.Config.DeviceID,
				CommandTopic:     v.Config.CommandTopic,
				StatusTopic:      v.Config.StatusTopic,
				MinMinutes:       v.Config.MinMinutes,
				MaxMinutes:       v.Config.MaxMinutes,
				TickMs:           v.Config.TickMs,
				StatusIntervalMs: v.Config.StatusIntervalMs,
				Timezone:         v.Config.Timezone,
				HTTPAddr:         v.Config.HTTPAddr,
			},
		},
	}
	data, _ := json.MarshalIndent(sj, "", "  ")
	return data
}
