package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/calvinmclean/taurino/config"
	"github.com/calvinmclean/taurino/console"
)

var (
	sendPort  string
	sendBaud  int
	sendQuiet time.Duration
)

var sendCmd = &cobra.Command{
	Use:     "send [flags] COMMAND...",
	Short:   "Send commands to a board and print its responses",
	Example: `  taurino send --port /dev/ttyACM0 "MODE SIM" "X CW 90" STATUS`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if sendPort == "" {
			ports, err := console.GetSerialPorts()
			if err != nil {
				return fmt.Errorf("no --port given: %w", err)
			}
			sendPort = ports[0]
			logger.Info("using first USB serial port", zap.String("port", sendPort))
		}

		port, err := console.OpenSerial(sendPort, sendBaud)
		if err != nil {
			return err
		}
		defer func() {
			err := port.Close()
			if err != nil {
				logger.Warn("error closing port", zap.Error(err))
			}
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		for _, line := range args {
			response, err := console.Exchange(ctx, port, line, sendQuiet)
			fmt.Fprint(cmd.OutOrStdout(), response)
			if err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout())

		return nil
	},
}

func init() {
	sendCmd.Flags().StringVarP(&sendPort, "port", "p", "", "serial port, defaults to the first USB serial port")
	sendCmd.Flags().IntVarP(&sendBaud, "baud", "b", config.DefaultBaud, "baud rate")
	sendCmd.Flags().DurationVar(&sendQuiet, "quiet", 500*time.Millisecond, "silence that ends a response")
}
