package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-scpi/worker"
)

var (
	sweepBaud       int
	sweepFunction   string
	sweepStart      float64
	sweepStop       float64
	sweepStep       float64
	sweepDelay      time.Duration
	sweepCompliance string
	sweepOutput     string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep <resource>",
	Short: "Run a linear source sweep",
	Long: `Step the source level from start to stop, measuring at each point, and
stream the readings as CSV. The output stage is switched on for the sweep and
switched off again afterwards, whatever way the sweep ends.

Examples:
  scpibench sweep TCPIP0::10.0.0.5::5025::SOCKET --start 0 --stop 5 --step 0.5 --compliance 100mA
  scpibench sweep ASRL3::INSTR --function CURR --start 0 --stop 1 --step 0.1 --delay 200ms`,
	Args: cobra.ExactArgs(1),
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().IntVar(&sweepBaud, "baud", 0, "serial baud rate (ASRL resources)")
	sweepCmd.Flags().StringVar(&sweepFunction, "function", "VOLT", "swept quantity: VOLT or CURR")
	sweepCmd.Flags().Float64Var(&sweepStart, "start", 0, "sweep start level (base units)")
	sweepCmd.Flags().Float64Var(&sweepStop, "stop", 1, "sweep stop level (base units)")
	sweepCmd.Flags().Float64Var(&sweepStep, "step", 0.1, "sweep step (base units)")
	sweepCmd.Flags().DurationVar(&sweepDelay, "delay", 100*time.Millisecond, "settling time per point")
	sweepCmd.Flags().StringVar(&sweepCompliance, "compliance", "", "limit on the complementary quantity, e.g. 100mA")
	sweepCmd.Flags().StringVarP(&sweepOutput, "output", "o", "-", "CSV output path (- for stdout)")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	supply, err := openSupply(args[0], sweepBaud)
	if err != nil {
		return err
	}
	defer supply.Disconnect()

	mgr, err := newSessionManager(sweepOutput)
	if err != nil {
		return err
	}
	defer mgr.Close()

	plan := worker.SweepPlan{
		Function:   sweepFunction,
		Start:      sweepStart,
		Stop:       sweepStop,
		Step:       sweepStep,
		PointDelay: sweepDelay,
	}
	if sweepCompliance != "" {
		plan.Compliance = sweepCompliance
	}

	e := worker.NewEngine("sweep", worker.NewMeasureTask(supply, &worker.SweepStrategy{Plan: plan}))

	return runEngine(e, mgr)
}
