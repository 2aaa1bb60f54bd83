//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
)

// outputLine is the subset of *gpiocdev.Line the actuator drives.
type outputLine interface {
	SetValue(value int) error
	Reconfigure(options ...gpiocdev.LineConfigOption) error
	Close() error
	Offset() int
}

// RealActuator drives the relay, and optionally a status LED, through the
// Linux GPIO character device.
type RealActuator struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	relay  outputLine
	led    outputLine // nil when no LED is wired
	active bool
	log    zerolog.Logger
}

// NewRealActuator requests the relay line (and the LED line unless ledPin < 0)
// as outputs driven low.
func NewRealActuator(chipName string, relayPin, ledPin int, log zerolog.Logger) (*RealActuator, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	relay, err := chip.RequestLine(relayPin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("pump-relay"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", relayPin, err)
	}

	a := &RealActuator{
		chip:  chip,
		relay: relay,
		log:   log,
	}
	if ledPin >= 0 {
		led, err := chip.RequestLine(ledPin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("pump-led"))
		if err != nil {
			relay.Close()
			chip.Close()
			return nil, fmt.Errorf("request LED pin %d: %w", ledPin, err)
		}
		a.led = led
	}
	return a, nil
}

// SetActive drives the relay and LED high (on) or low (off). Write errors are
// logged; the relay has no failure channel back to the controller. A failed
// relay write leaves the recorded level unchanged so the next call retries it.
func (a *RealActuator) SetActive(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active == on {
		return
	}

	v := 0
	if on {
		v = 1
	}
	if err := a.relay.SetValue(v); err != nil {
		a.log.Error().Err(err).Bool("on", on).Msg("relay write failed")
		return
	}
	a.active = on

	if a.led != nil {
		if err := a.led.SetValue(v); err != nil {
			a.log.Warn().Err(err).Bool("on", on).Msg("LED write failed")
		}
	}
	a.log.Info().Bool("on", on).Msg("pump relay")
}

// Close drives the relay low, returns the lines to inputs with pull-down
// (matching boot defaults) and releases them.
func (a *RealActuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error

	for _, l := range []outputLine{a.relay, a.led} {
		if l == nil {
			continue
		}
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive line %d low: %w", l.Offset(), err))
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line %d: %w", l.Offset(), err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", l.Offset(), err))
		}
	}
	a.active = false

	if a.chip != nil {
		if err := a.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
