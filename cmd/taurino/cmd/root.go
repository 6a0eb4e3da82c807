// Package cmd has the taurino CLI commands
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "taurino",
	Short: "Console for a multi-motor stepper and servo controller",
	Long: `taurino runs the motor console on this machine with simulated motors, lists serial ports and sends
commands to a board running the firmware.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with TAURINO_* variables, ignored if missing")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")

	rootCmd.AddCommand(runCmd, portsCmd, sendCmd)
}

// newLogger writes development logs to stderr so they stay out of the operator's stdout
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("error creating logger: %w", err)
	}
	return logger, nil
}
