// Package config holds the fully resolved daemon configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // devices often ship without a zoneinfo database

	"github.com/HeitererGarten/fao56-pump-control/internal/command"
	"github.com/HeitererGarten/fao56-pump-control/internal/gpio"
	"github.com/HeitererGarten/fao56-pump-control/internal/mqtt"
)

// Config is everything the daemon needs, resolved before the controller starts.
type Config struct {
	DeviceID string

	Broker       string
	ClientID     string // empty derives "PumpController-<DeviceID>"
	Username     string
	Password     string
	CommandTopic string
	StatusTopic  string

	MinMinutes float64 // exclusive
	MaxMinutes float64 // inclusive

	Tick           time.Duration
	StatusInterval time.Duration // 0 disables periodic status while irrigating
	Timezone       string

	GPIOChip string
	RelayPin int
	LEDPin   int // negative disables the LED

	HTTPAddr  string
	LogLevel  string
	LogFormat string
}

// Default returns the configuration of the field-deployed device.
func Default() Config {
	return Config{
		DeviceID:       "P-1",
		Broker:         "tcp://192.168.1.245:1883",
		CommandTopic:   mqtt.DefaultCommandTopic,
		StatusTopic:    mqtt.DefaultStatusTopic,
		MinMinutes:     0,
		MaxMinutes:     480,
		Tick:           time.Second,
		StatusInterval: time.Minute,
		Timezone:       "Asia/Bangkok",
		GPIOChip:       gpio.DefaultChip,
		RelayPin:       gpio.DefaultRelayPin,
		LEDPin:         gpio.DefaultLEDPin,
		HTTPAddr:       ":80",
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Validate reports every problem found, or nil.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.DeviceID) == "" {
		errs = append(errs, errors.New("device id must not be empty"))
	}
	if u, err := url.Parse(c.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("broker %q must be a URL like tcp://host:1883", c.Broker))
	}
	if c.CommandTopic == "" || c.StatusTopic == "" {
		errs = append(errs, errors.New("command and status topics must not be empty"))
	}
	if c.CommandTopic != "" && c.CommandTopic == c.StatusTopic {
		errs = append(errs, errors.New("command and status topics must differ"))
	}
	if c.MinMinutes < 0 {
		errs = append(errs, fmt.Errorf("min minutes %g must not be negative", c.MinMinutes))
	}
	if c.MaxMinutes <= c.MinMinutes {
		errs = append(errs, fmt.Errorf("max minutes %g must exceed min minutes %g", c.MaxMinutes, c.MinMinutes))
	}
	if c.Tick <= 0 {
		errs = append(errs, fmt.Errorf("tick %v must be positive", c.Tick))
	}
	if c.StatusInterval < 0 {
		errs = append(errs, fmt.Errorf("status interval %v must not be negative", c.StatusInterval))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.RelayPin < 0 {
		errs = append(errs, fmt.Errorf("relay pin %d must not be negative", c.RelayPin))
	}
	if c.LEDPin >= 0 && c.LEDPin == c.RelayPin {
		errs = append(errs, fmt.Errorf("LED pin %d must differ from relay pin", c.LEDPin))
	}

	return errors.Join(errs...)
}

// Location resolves Timezone. Empty means the host's local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Bounds returns the accepted irr_time range.
func (c Config) Bounds() command.Bounds {
	return command.Bounds{Min: c.MinMinutes, Max: c.MaxMinutes}
}

// MQTTClientID returns ClientID or the derived default.
func (c Config) MQTTClientID() string {
	if c.ClientID != "" {
		return c.ClientID
	}
	return "PumpController-" + c.DeviceID
}
