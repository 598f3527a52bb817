package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-scpi/device"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List serial ports",
	Long:  "Enumerate the serial ports currently present, with USB details where available.",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ports, err := device.SystemPortLister{}.List()
	if err != nil {
		return fmt.Errorf("enumerate serial ports: %w", err)
	}

	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}

	for _, p := range ports {
		line := p.Name
		if p.IsUSB {
			line += fmt.Sprintf("  [USB %s:%s]", p.VID, p.PID)
			if p.SerialNumber != "" {
				line += " sn=" + p.SerialNumber
			}
		}
		if p.Description != "" {
			line += "  " + p.Description
		}
		fmt.Println(line)
	}

	return nil
}
