package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/calvinmclean/taurino/commands"
	"github.com/calvinmclean/taurino/config"
	"github.com/calvinmclean/taurino/console"
	"github.com/calvinmclean/taurino/controller"
)

var (
	configFile  string
	localPort   string
	remotePort  string
	tick        time.Duration
	moveTimeout time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the motor console with simulated motors",
	Long: `Run the motor console on this machine. Motors are simulated with the same step timing as the firmware.
Commands are read from stdin and, when configured, from serial ports.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadRunConfig(cmd)
		if err != nil {
			return err
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = runConsole(ctx, cfg, logger)
		if err != nil {
			logger.Error("console failed", zap.Error(err))
		}
		return err
	},
}

func init() {
	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML config file (overrides TAURINO_CONFIG)")
	runCmd.Flags().StringVar(&localPort, "local", "", `local channel: "stdio", "None" or a serial port`)
	runCmd.Flags().StringVar(&remotePort, "remote", "", `remote channel: "stdio", "None" or a serial port`)
	runCmd.Flags().DurationVar(&tick, "tick", 0, "control loop period")
	runCmd.Flags().DurationVar(&moveTimeout, "move-timeout", 0, "longest blocking move, 0s disables the limit")
}

func loadRunConfig(cmd *cobra.Command) (config.Config, error) {
	if configFile != "" {
		err := os.Setenv(config.EnvConfigFile, configFile)
		if err != nil {
			return config.Config{}, err
		}
	}

	cfg, err := config.LoadEnv(envFile)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("local") {
		cfg.Local.Port = localPort
	}
	if flags.Changed("remote") {
		cfg.Remote.Port = remotePort
	}
	if flags.Changed("tick") {
		cfg.Tick = tick
	}
	if flags.Changed("move-timeout") {
		cfg.Hardware.MoveTimeout = moveTimeout
	}

	return cfg, cfg.Validate()
}

func runConsole(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var endpoints []console.Endpoint
	for _, ch := range []struct {
		name string
		cfg  config.ChannelConfig
	}{
		{"local", cfg.Local},
		{"remote", cfg.Remote},
	} {
		if !ch.cfg.Enabled() {
			continue
		}

		e, err := openEndpoint(ch.name, ch.cfg)
		if err != nil {
			closeEndpoints(endpoints, logger)
			return err
		}
		logger.Info("opened channel", zap.String("endpoint", ch.name), zap.String("port", ch.cfg.Port))
		endpoints = append(endpoints, e)
	}

	out := console.NewBroadcaster(logger, endpoints...)

	hw, err := controller.NewSimulatedHardware(cfg.Hardware, logger.Named("hardware"))
	if err != nil {
		closeEndpoints(endpoints, logger)
		return err
	}

	ctrl, err := controller.New(cfg.Hardware, hw, out, logger.Named("controller"))
	if err != nil {
		closeEndpoints(endpoints, logger)
		return err
	}

	interpreter := commands.NewInterpreter(ctrl, out, logger.Named("commands"))
	session := console.NewSession(interpreter, out, logger.Named("console"), endpoints...)
	defer func() {
		err := session.Close()
		if err != nil {
			logger.Warn("error closing channels", zap.Error(err))
		}
	}()

	interpreter.Boot()

	return session.Run(ctx, ctrl, cfg.Tick)
}

func openEndpoint(name string, cfg config.ChannelConfig) (console.Endpoint, error) {
	if cfg.Port == config.PortStdio {
		return console.Endpoint{
			Name:    name,
			NoEcho:  true,
			Channel: console.NewStreamChannel(os.Stdin, os.Stdout),
		}, nil
	}

	port, err := console.OpenSerial(cfg.Port, cfg.Baud)
	if err != nil {
		return console.Endpoint{}, fmt.Errorf("error opening %s channel: %w", name, err)
	}
	return console.Endpoint{Name: name, Channel: port}, nil
}

func closeEndpoints(endpoints []console.Endpoint, logger *zap.Logger) {
	err := console.CloseAll(endpoints...)
	if err != nil {
		logger.Warn("error closing channels", zap.Error(err))
	}
}
