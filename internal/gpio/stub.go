//go:build !linux

package gpio

import (
	"errors"

	"github.com/rs/zerolog"
)

// RealActuator is not available on non-Linux platforms.
type RealActuator struct{}

// NewRealActuator returns an error on non-Linux platforms.
func NewRealActuator(chip string, relayPin, ledPin int, log zerolog.Logger) (*RealActuator, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// SetActive is not implemented on non-Linux platforms.
func (a *RealActuator) SetActive(on bool) {}

// Close is not implemented on non-Linux platforms.
func (a *RealActuator) Close() error {
	return nil
}
