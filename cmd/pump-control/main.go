// Command pump-control drives an irrigation valve from MQTT commands inside
// a daily time window.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/HeitererGarten/fao56-pump-control/internal/config"
	"github.com/HeitererGarten/fao56-pump-control/internal/logging"
)

// envPrefix is prepended to the upper-cased flag name, with dashes turned
// into underscores, to find a flag's environment fallback.
const envPrefix = "PUMP_"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:          "pump-control",
		Short:        "Remote irrigation valve controller",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return applyEnv(cmd.Flags())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfg.DeviceID, "device-id", cfg.DeviceID, "Device identity matched against command ids")
	pf.StringVar(&cfg.Timezone, "timezone", cfg.Timezone, "IANA zone for the irrigation window (empty for host local)")
	pf.StringVar(&cfg.GPIOChip, "gpio-chip", cfg.GPIOChip, "GPIO character device")
	pf.IntVar(&cfg.RelayPin, "relay-pin", cfg.RelayPin, "Relay line offset")
	pf.IntVar(&cfg.LEDPin, "led-pin", cfg.LEDPin, "LED line offset (negative to disable)")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (trace|debug|info|warn|error)")
	pf.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (console|json)")

	cmd.AddCommand(
		newRunCmd(&cfg),
		newWindowCmd(&cfg),
		newRelayCmd(&cfg),
	)
	return cmd
}

// applyEnv fills every flag not given on the command line from its PUMP_*
// environment variable.
func applyEnv(fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed {
			return
		}
		v, ok := os.LookupEnv(envName(f.Name))
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		if setErr := fs.Set(f.Name, strings.TrimSpace(v)); setErr != nil {
			err = fmt.Errorf("%s: %w", envName(f.Name), setErr)
		}
	})
	return err
}

func envName(flag string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	return logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}
