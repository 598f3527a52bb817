package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-scpi/worker"
)

var (
	monitorBaud     int
	monitorInterval time.Duration
	monitorCount    int
	monitorOutput   string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor <resource>",
	Short: "Continuously measure an instrument",
	Long: `Sample the instrument at a fixed interval and stream the readings as CSV.
Monitoring is passive: the output stage is left exactly as it was found.
Stop with Ctrl-C, or bound the run with --count.

Examples:
  scpibench monitor TCPIP0::10.0.0.5::5025::SOCKET --interval 500ms
  scpibench monitor ASRL3::INSTR --count 100 -o run.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().IntVar(&monitorBaud, "baud", 0, "serial baud rate (ASRL resources)")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", time.Second, "time between readings")
	monitorCmd.Flags().IntVar(&monitorCount, "count", 0, "number of readings (0 = until stopped)")
	monitorCmd.Flags().StringVarP(&monitorOutput, "output", "o", "-", "CSV output path (- for stdout)")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	supply, err := openSupply(args[0], monitorBaud)
	if err != nil {
		return err
	}
	defer supply.Disconnect()

	mgr, err := newSessionManager(monitorOutput)
	if err != nil {
		return err
	}
	defer mgr.Close()

	strategy := &worker.ContinuousStrategy{
		Interval: monitorInterval,
		MaxCount: monitorCount,
	}
	e := worker.NewEngine("monitor", worker.NewMeasureTask(supply, strategy))

	return runEngine(e, mgr)
}
