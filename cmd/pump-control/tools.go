package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/HeitererGarten/fao56-pump-control/internal/clock"
	"github.com/HeitererGarten/fao56-pump-control/internal/config"
	"github.com/HeitererGarten/fao56-pump-control/internal/gpio"
	"github.com/HeitererGarten/fao56-pump-control/internal/logic"
)

func newWindowCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "window [HH:MM[:SS]]",
		Short: "Report whether irrigation is permitted now or at the given local time",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r logic.Reading
			if len(args) == 1 {
				parsed, err := parseReading(args[0])
				if err != nil {
					return err
				}
				r = parsed
			} else {
				loc, err := cfg.Location()
				if err != nil {
					return err
				}
				r = clock.NewSystem(loc).Now()
			}
			printWindow(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func printWindow(w io.Writer, r logic.Reading) {
	if !r.Valid {
		fmt.Fprintln(w, "clock not synced: irrigation not permitted")
		return
	}
	verdict := "not permitted"
	if logic.WindowOpen(r) {
		verdict = "permitted"
	}
	fmt.Fprintf(w, "%s: irrigation %s\n", r, verdict)
}

// parseReading accepts HH:MM or HH:MM:SS.
func parseReading(s string) (logic.Reading, error) {
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return logic.Reading{}, fmt.Errorf("time %q: want HH:MM or HH:MM:SS", s)
	}
	return logic.Reading{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Valid: true}, nil
}

func newRelayCmd(cfg *config.Config) *cobra.Command {
	var hold time.Duration
	cmd := &cobra.Command{
		Use:       "relay on|off",
		Short:     "Drive the relay directly to check wiring",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			act, err := gpio.NewRealActuator(cfg.GPIOChip, cfg.RelayPin, cfg.LEDPin, log)
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			driveRelay(act, args[0] == "on", hold, time.Sleep)
			fmt.Fprintf(cmd.OutOrStdout(), "relay %s for %v, released\n", args[0], hold)
			return act.Close()
		},
	}
	cmd.Flags().DurationVar(&hold, "hold", 5*time.Second, "How long to hold the relay before releasing it")
	return cmd
}

// driveRelay holds the actuator in the requested state, then de-energizes it.
func driveRelay(act gpio.Actuator, on bool, hold time.Duration, sleep func(time.Duration)) {
	act.SetActive(on)
	sleep(hold)
	act.SetActive(false)
}
