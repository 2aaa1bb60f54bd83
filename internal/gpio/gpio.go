// Package gpio drives the valve relay with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Actuator switches the pump relay.
type Actuator interface {
	// SetActive energizes (true) or de-energizes (false) the relay.
	// Repeating the current value is a no-op.
	SetActive(on bool)

	// Close de-energizes the relay and releases GPIO resources.
	Close() error
}

// Default line offsets on gpiochip0, matching the field wiring.
const (
	DefaultChip     = "gpiochip0"
	DefaultRelayPin = 32
	DefaultLEDPin   = 2
)
