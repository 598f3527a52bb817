// Package cmd implements the scpibench command tree. It is a thin
// consumer of the public go-scpi packages; all instrument behavior lives in
// the library.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-scpi/config"
	"github.com/arloliu/go-scpi/logger"
)

var (
	verbose     bool
	configPath  string
	metricsAddr string

	cfg *config.Store
)

var rootCmd = &cobra.Command{
	Use:   "scpibench",
	Short: "Bench instrument control over SCPI",
	Long: `scpibench talks to SCPI bench instruments (Keithley 2461 source meters
over TCP, Rigol DP711 supplies over RS-232) for discovery, monitoring and
source sweeps.

Examples:
  scpibench list                                             # enumerate serial ports
  scpibench idn TCPIP0::10.0.0.5::5025::SOCKET               # identify one instrument
  scpibench monitor ASRL3::INSTR --interval 1s -o run.csv    # continuous measurement
  scpibench sweep TCPIP0::10.0.0.5::5025::SOCKET --start 0 --stop 5 --step 0.5`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			logger.GetLogger().SetLevel(logger.DebugLevel)
		}

		if configPath != "" {
			store, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = store
		} else {
			cfg, _ = config.Parse(nil)
		}

		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address (e.g. :9090)")
}

// baudRate resolves the serial baud rate: flag value when set, else config,
// else the DP711 default.
func baudRate(flagValue int) int {
	if flagValue > 0 {
		return flagValue
	}

	return cfg.GetInt("serial.baud_rate", 9600)
}

// ioTimeout resolves the transport I/O timeout.
func ioTimeout() time.Duration {
	return cfg.GetDuration("io_timeout", 3*time.Second)
}
