// Package mqtt provides the valve's command channel over an MQTT broker,
// with abstraction for testing.
package mqtt

// Default topics, matching the field-deployed firmware.
const (
	DefaultCommandTopic = "topic/pump/command"
	DefaultStatusTopic  = "topic/pump/status"
)

// Availability payloads published retained on the availability topic.
const (
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

// Message is one inbound message as received from the broker.
type Message struct {
	Topic   string
	Payload []byte
}

// CommandChannel delivers inbound commands and accepts outbound payloads.
type CommandChannel interface {
	// TryReceive returns the oldest pending inbound message without blocking.
	TryReceive() (Message, bool)

	// Ready is signalled when at least one message is pending.
	Ready() <-chan struct{}

	// Send publishes a payload. Returns error if publishing fails (should
	// not crash the process).
	Send(topic string, payload []byte) error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// AvailabilityTopic returns the retained online/offline topic for a status topic.
func AvailabilityTopic(statusTopic string) string {
	return statusTopic + "/availability"
}
