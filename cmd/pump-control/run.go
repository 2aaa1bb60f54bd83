package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/HeitererGarten/fao56-pump-control/internal/clock"
	"github.com/HeitererGarten/fao56-pump-control/internal/command"
	"github.com/HeitererGarten/fao56-pump-control/internal/config"
	"github.com/HeitererGarten/fao56-pump-control/internal/controller"
	"github.com/HeitererGarten/fao56-pump-control/internal/gpio"
	"github.com/HeitererGarten/fao56-pump-control/internal/metrics"
	"github.com/HeitererGarten/fao56-pump-control/internal/mqtt"
	"github.com/HeitererGarten/fao56-pump-control/internal/status"
	"github.com/HeitererGarten/fao56-pump-control/internal/web"
)

func newRunCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the valve controller daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Broker, "broker", cfg.Broker, "MQTT broker URL")
	f.StringVar(&cfg.ClientID, "client-id", cfg.ClientID, `MQTT client id (empty derives "PumpController-<device-id>")`)
	f.StringVar(&cfg.Username, "username", cfg.Username, "MQTT username")
	f.StringVar(&cfg.Password, "password", cfg.Password, "MQTT password")
	f.StringVar(&cfg.CommandTopic, "command-topic", cfg.CommandTopic, "Topic carrying inbound commands")
	f.StringVar(&cfg.StatusTopic, "status-topic", cfg.StatusTopic, "Topic for outbound status")
	f.Float64Var(&cfg.MinMinutes, "min-minutes", cfg.MinMinutes, "Exclusive lower bound for irr_time")
	f.Float64Var(&cfg.MaxMinutes, "max-minutes", cfg.MaxMinutes, "Inclusive upper bound for irr_time")
	f.DurationVar(&cfg.Tick, "tick", cfg.Tick, "Event loop tick period")
	f.DurationVar(&cfg.StatusInterval, "status-interval", cfg.StatusInterval, "Status publish period while irrigating (0 to disable)")
	f.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP status address (empty to disable)")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	log, err := newLogger(&cfg)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Initialize GPIO
	relay, err := gpio.NewRealActuator(cfg.GPIOChip, cfg.RelayPin, cfg.LEDPin, log.With().Str("component", "gpio").Logger())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer relay.Close()

	// Initialize MQTT
	ch, err := mqtt.Connect(ctx, mqtt.Options{
		Broker:       cfg.Broker,
		ClientID:     cfg.MQTTClientID(),
		Username:     cfg.Username,
		Password:     cfg.Password,
		CommandTopic: cfg.CommandTopic,
		StatusTopic:  cfg.StatusTopic,
		Keep:         keepCancel,
		Logger:       log.With().Str("component", "mqtt").Logger(),
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer ch.Close()

	// Initialize status tracker before the controller so its first snapshot lands
	tracker := status.NewTracker(time.Now(), status.Config{
		DeviceID:         cfg.DeviceID,
		Broker:           cfg.Broker,
		CommandTopic:     cfg.CommandTopic,
		StatusTopic:      cfg.StatusTopic,
		MinMinutes:       cfg.MinMinutes,
		MaxMinutes:       cfg.MaxMinutes,
		TickMs:           cfg.Tick.Milliseconds(),
		StatusIntervalMs: cfg.StatusInterval.Milliseconds(),
		Timezone:         loc.String(),
		HTTPAddr:         cfg.HTTPAddr,
	})
	tracker.SetMQTTConnected(ch.IsConnected())
	collector := metrics.New()

	ctrl, err := controller.New(controller.Config{
		DeviceID:         cfg.DeviceID,
		Bounds:           cfg.Bounds(),
		StatusIntervalMs: cfg.StatusInterval.Milliseconds(),
	},
		clock.NewSystem(loc),
		relay,
		status.NewPublisher(ch, cfg.StatusTopic),
		controller.WithTracker(tracker),
		controller.WithMetrics(collector),
		controller.WithLogger(log.With().Str("component", "controller").Logger()),
	)
	if err != nil {
		return err
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, collector.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http status server listening")
	}

	ctrl.PublishStatus()
	log.Info().
		Str("device", cfg.DeviceID).
		Str("broker", cfg.Broker).
		Str("command_topic", cfg.CommandTopic).
		Str("status_topic", cfg.StatusTopic).
		Stringer("timezone", loc).
		Dur("tick", cfg.Tick).
		Msg("started")

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(ctrl, ch, ch, tracker, cfg.CommandTopic, ticker.C, sigCh, log)
}

// runLoop is the single owner of the controller. Inbound commands and ticks
// are handled one at a time, each to completion.
// keepCancel holds Stop and Emergency Halt in a full command buffer.
func keepCancel(m mqtt.Message) bool {
	return command.IsCancel(m.Payload)
}

func runLoop(ctrl *controller.Controller, ch mqtt.CommandChannel, conn mqtt.ConnectionStatus, tracker *status.Tracker, commandTopic string, tick <-chan time.Time, sig <-chan os.Signal, log zerolog.Logger) error {
	for {
		select {
		case s := <-sig:
			log.Info().Stringer("signal", s).Msg("shutting down")
			ctrl.Shutdown()
			return nil

		case <-ch.Ready():
			receiveOne(ctrl, ch, commandTopic, log)

		case <-tick:
			receiveOne(ctrl, ch, commandTopic, log)
			ctrl.Tick()
			if tracker != nil && conn != nil {
				tracker.SetMQTTConnected(conn.IsConnected())
			}
		}
	}
}

// receiveOne handles at most one pending inbound message.
func receiveOne(ctrl *controller.Controller, ch mqtt.CommandChannel, commandTopic string, log zerolog.Logger) {
	msg, ok := ch.TryReceive()
	if !ok {
		return
	}
	if msg.Topic != commandTopic {
		log.Debug().Str("topic", msg.Topic).Msg("ignoring message on unexpected topic")
		return
	}
	// Rejections are logged and counted by the controller.
	ctrl.HandleMessage(msg.Payload)
}
