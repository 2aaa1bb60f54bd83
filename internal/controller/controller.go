// Package controller applies inbound commands and periodic ticks to the valve
// state machine, drives the relay and publishes status.
//
// A Controller is owned by a single event loop. HandleMessage, Tick and
// Shutdown must not be called concurrently; each runs to completion.
package controller

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/HeitererGarten/fao56-pump-control/internal/clock"
	"github.com/HeitererGarten/fao56-pump-control/internal/command"
	"github.com/HeitererGarten/fao56-pump-control/internal/gpio"
	"github.com/HeitererGarten/fao56-pump-control/internal/logic"
	"github.com/HeitererGarten/fao56-pump-control/internal/metrics"
	"github.com/HeitererGarten/fao56-pump-control/internal/status"
)

// ErrWrongDevice indicates a command addressed to another device.
var ErrWrongDevice = errors.New("command addressed to another device")

// Publisher sends status snapshots. *status.Publisher implements it.
type Publisher interface {
	Publish(snap status.Snapshot) error
}

// Config is the controller's slice of the daemon configuration.
type Config struct {
	DeviceID string
	Bounds   command.Bounds

	// StatusIntervalMs republishes status while irrigating. 0 disables.
	StatusIntervalMs int64
}

// Controller owns the valve state.
type Controller struct {
	cfg       Config
	machine   *logic.Machine
	decoder   *command.Decoder
	clock     clock.Provider
	actuator  gpio.Actuator
	publisher Publisher
	tracker   *status.Tracker
	metrics   *metrics.Collector
	log       zerolog.Logger

	lastPublishTick int64
}

// Option configures optional collaborators.
type Option func(*Controller)

// WithTracker mirrors every snapshot into t for HTTP readers.
func WithTracker(t *status.Tracker) Option {
	return func(c *Controller) { c.tracker = t }
}

// WithMetrics records commands, transitions and publishes in m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the diagnostic logger. The default discards output.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New creates a Controller in PhaseIdle and de-energizes the relay.
func New(cfg Config, clk clock.Provider, act gpio.Actuator, pub Publisher, opts ...Option) (*Controller, error) {
	dec, err := command.NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("init command decoder: %w", err)
	}

	c := &Controller{
		cfg:       cfg,
		machine:   logic.NewMachine(),
		decoder:   dec,
		clock:     clk,
		actuator:  act,
		publisher: pub,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.actuator.SetActive(false)
	c.observe(c.now())
	return c, nil
}

// State returns a copy of the controller state.
func (c *Controller) State() logic.State {
	return c.machine.State()
}

// Snapshot builds a status snapshot for the current moment.
func (c *Controller) Snapshot() status.Snapshot {
	return status.Build(c.cfg.DeviceID, c.machine.State(), c.clock.Now())
}

// HandleMessage decodes, validates and applies one inbound payload.
// Rejected payloads return an error wrapping command.ErrMalformed,
// ErrWrongDevice or command.ErrDurationOutOfRange and change nothing.
// A valid command that matches no transition returns a Result with
// OutcomeNone and a nil error.
func (c *Controller) HandleMessage(payload []byte) (logic.Result, error) {
	msg, err := c.decoder.Decode(payload)
	if err != nil {
		c.reject("", metrics.ResultMalformed)
		c.log.Warn().Err(err).Bytes("payload", payload).Msg("dropping malformed command")
		return c.noop(), err
	}
	return c.Handle(msg)
}

// Handle validates and applies one decoded message.
func (c *Controller) Handle(msg command.Message) (logic.Result, error) {
	if msg.ID != c.cfg.DeviceID {
		c.reject(msg.Signal, metrics.ResultWrongID)
		c.log.Debug().Str("target", msg.ID).Str("signal", msg.Signal).Msg("command not for this device, ignoring")
		return c.noop(), fmt.Errorf("%w: %q", ErrWrongDevice, msg.ID)
	}

	if msg.Signal == command.SignalOn {
		if err := c.cfg.Bounds.Check(msg.Minutes()); err != nil {
			c.reject(msg.Signal, metrics.ResultOutOfRange)
			var re *command.RangeError
			if errors.As(err, &re) {
				c.log.Info().Float64("irr_time", re.Minutes).Float64("bound", re.Bound).Bool("upper", re.Upper).Msg("rejecting irrigation time")
			}
			return c.noop(), err
		}
	}

	cmd := c.commandFor(msg)
	now := c.now()
	before := c.machine.State()
	res := c.machine.Apply(cmd, now)

	if !res.Transitioned() {
		c.metrics.Command(msg.Signal, metrics.ResultUnmatched)
		c.log.Info().
			Str("signal", msg.Signal).
			Str("command", cmd.Name()).
			Stringer("phase", before.Phase).
			Bool("irrigation_allowed", logic.WindowOpen(now.Clock)).
			Msg("no transition for command")
		return res, nil
	}

	c.metrics.Command(msg.Signal, metrics.ResultAccepted)
	c.commit(res, before, now)
	return res, nil
}

// commandFor maps a wire message to a Command. "On" resumes a halted run and
// starts a new one otherwise.
func (c *Controller) commandFor(msg command.Message) logic.Command {
	switch msg.Signal {
	case command.SignalEmergencyHalt:
		return logic.EmergencyHalt{}
	case command.SignalStop:
		return logic.Stop{}
	}
	if c.machine.State().Phase == logic.PhaseEmergencyHalt {
		return logic.Resume{}
	}
	return logic.Start{DurationMinutes: msg.Minutes()}
}

// Tick evaluates the time-based rules once.
func (c *Controller) Tick() logic.Result {
	now := c.now()
	before := c.machine.State()
	res := c.machine.Tick(now)

	switch {
	case res.Outcome == logic.OutcomeFaultHold:
		c.actuator.SetActive(false)
		c.observe(now)
	case res.Transitioned():
		c.commit(res, before, now)
	default:
		s := c.machine.State()
		if s.Phase == logic.PhaseIrrigating {
			c.log.Debug().
				Str("remaining", fmt.Sprintf("%d:%02d", s.RemainingMs/60000, s.RemainingMs%60000/1000)).
				Msg("irrigating")
			if c.cfg.StatusIntervalMs > 0 && now.TickMs-c.lastPublishTick >= c.cfg.StatusIntervalMs {
				c.publish(now)
			}
		}
		c.observe(now)
	}
	return res
}

// PublishStatus publishes the current snapshot outside of a transition,
// e.g. at startup.
func (c *Controller) PublishStatus() {
	now := c.now()
	c.publish(now)
	c.observe(now)
}

// Shutdown halts a running irrigation, keeping its remaining time, publishes
// a final status and leaves the relay de-energized.
func (c *Controller) Shutdown() {
	now := c.now()
	before := c.machine.State()
	if res := c.machine.Apply(logic.EmergencyHalt{}, now); res.Transitioned() {
		c.log.Info().Int64("remaining_ms", c.machine.State().RemainingMs).Msg("halting irrigation for shutdown")
		c.commit(res, before, now)
	} else {
		c.publish(now)
	}
	c.actuator.SetActive(false)
}

// commit performs the side effects of a transition: relay, status publish,
// metrics and tracker.
func (c *Controller) commit(res logic.Result, before logic.State, now logic.Instant) {
	after := c.machine.State()
	if after.PumpActive != before.PumpActive {
		c.actuator.SetActive(after.PumpActive)
	}

	ev := c.log.Info().
		Str("outcome", string(res.Outcome)).
		Stringer("from", res.From).
		Stringer("to", res.To).
		Int64("duration_ms", after.IrrigationDurationMs).
		Int64("remaining_ms", after.RemainingMs)
	if res.Outcome == logic.OutcomeForcedHalt {
		ev = ev.Bool("irrigation_allowed", logic.WindowOpen(now.Clock))
	}
	ev.Msg("transition")

	c.metrics.Transition(res)
	if c.tracker != nil {
		c.tracker.Record(res.Outcome)
	}
	c.publish(now)
	c.observe(now)
}

func (c *Controller) publish(now logic.Instant) {
	c.lastPublishTick = now.TickMs
	snap := status.Build(c.cfg.DeviceID, c.machine.State(), now.Clock)
	err := c.publisher.Publish(snap)
	c.metrics.Publish(err)
	if err != nil {
		c.log.Warn().Err(err).Msg("status publish failed")
		return
	}
	c.log.Debug().Str("state", snap.Phase.String()).Int64("remaining_minutes", snap.RemainingMinutes()).Msg("status published")
}

func (c *Controller) observe(now logic.Instant) {
	s := c.machine.State()
	c.metrics.Observe(s, logic.WindowOpen(now.Clock))
	if c.tracker != nil {
		c.tracker.Update(status.Build(c.cfg.DeviceID, s, now.Clock))
	}
}

func (c *Controller) reject(signal, result string) {
	c.metrics.Command(signal, result)
	if c.tracker != nil {
		c.tracker.Reject()
	}
}

func (c *Controller) noop() logic.Result {
	p := c.machine.State().Phase
	return logic.Result{From: p, To: p}
}

func (c *Controller) now() logic.Instant {
	return logic.Instant{Clock: c.clock.Now(), TickMs: c.clock.TickMs()}
}
