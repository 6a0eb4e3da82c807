package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calvinmclean/taurino/console"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List USB serial ports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ports, err := console.GetSerialPorts()
		if errors.Is(err, console.ErrNoUSBSerial) {
			fmt.Fprintln(cmd.OutOrStdout(), "No USB serial ports found")
			return nil
		}
		if err != nil {
			return err
		}

		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}
