package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-scpi/device"
	"github.com/arloliu/go-scpi/transport"
)

var idnBaud int

var idnCmd = &cobra.Command{
	Use:   "idn <resource>",
	Short: "Identify the instrument at a VISA resource",
	Long: `Open the resource, run the SCPI identification handshake and print what
answered.

Examples:
  scpibench idn TCPIP0::10.0.0.5::5025::SOCKET
  scpibench idn ASRL3::INSTR --baud 9600`,
	Args: cobra.ExactArgs(1),
	RunE: runIdn,
}

func init() {
	idnCmd.Flags().IntVar(&idnBaud, "baud", 0, "serial baud rate (ASRL resources)")
	rootCmd.AddCommand(idnCmd)
}

func runIdn(cmd *cobra.Command, args []string) error {
	tr, err := transport.ParseResource(args[0], baudRate(idnBaud), ioTimeout())
	if err != nil {
		return err
	}

	info, err := device.Identify(tr)
	if err != nil {
		return err
	}

	fmt.Printf("resource:  %s\n", info.Resource)
	fmt.Printf("identity:  %s\n", info.Identity)
	fmt.Printf("model:     %s\n", info.Model)
	fmt.Printf("kind:      %s\n", info.Kind)

	return nil
}
