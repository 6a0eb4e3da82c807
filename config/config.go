// Package config loads the host console settings from a YAML file, a .env file and TAURINO_* environment
// variables, in that order of increasing precedence
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/calvinmclean/taurino/controller"
)

const (
	// PortStdio uses the process's stdin and stdout as a channel
	PortStdio = "stdio"
	// PortNone disables a channel
	PortNone = "None"

	DefaultBaud = 115200
)

// Environment variables read by LoadEnv
const (
	EnvConfigFile  = "TAURINO_CONFIG"
	EnvLocalPort   = "TAURINO_LOCAL_PORT"
	EnvLocalBaud   = "TAURINO_LOCAL_BAUD"
	EnvRemotePort  = "TAURINO_REMOTE_PORT"
	EnvRemoteBaud  = "TAURINO_REMOTE_BAUD"
	EnvTick        = "TAURINO_TICK"
	EnvMoveTimeout = "TAURINO_MOVE_TIMEOUT"
)

// ChannelConfig selects what backs an operator channel: PortStdio, PortNone or a serial device name
type ChannelConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// Enabled is false for PortNone and an empty port
func (c ChannelConfig) Enabled() bool {
	return c.Port != "" && c.Port != PortNone
}

// Config is everything the host console needs to start
type Config struct {
	// Local is the operator's console, stdin/stdout by default
	Local ChannelConfig `yaml:"local"`
	// Remote is the wireless serial bridge
	Remote ChannelConfig `yaml:"remote"`

	// Tick is the control loop period
	Tick time.Duration `yaml:"tick"`

	Hardware controller.Config `yaml:"hardware"`
}

// Default is a simulated RAMPS board driven from stdin/stdout
func Default() Config {
	return Config{
		Local:    ChannelConfig{Port: PortStdio, Baud: DefaultBaud},
		Remote:   ChannelConfig{Port: PortNone, Baud: DefaultBaud},
		Tick:     time.Millisecond,
		Hardware: controller.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep their default values
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file: %w", err)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("error parsing config file %q: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// LoadEnv loads envFiles (".env" when none are given) into the environment, reads the config file named by
// TAURINO_CONFIG if set and applies the remaining TAURINO_* variables on top. Missing .env files are ignored
func LoadEnv(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("error loading %s: %w", f, err)
		}
	}

	cfg := Default()
	if path, ok := os.LookupEnv(EnvConfigFile); ok && path != "" {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return Config{}, err
		}
	}

	err := cfg.applyEnv()
	if err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	strs := []struct {
		key  string
		into *string
	}{
		{EnvLocalPort, &c.Local.Port},
		{EnvRemotePort, &c.Remote.Port},
	}
	for _, k := range strs {
		if v, ok := os.LookupEnv(k.key); ok {
			*k.into = v
		}
	}

	ints := []struct {
		key  string
		into *int
	}{
		{EnvLocalBaud, &c.Local.Baud},
		{EnvRemoteBaud, &c.Remote.Baud},
	}
	for _, k := range ints {
		v, ok := os.LookupEnv(k.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", k.key, err)
		}
		*k.into = n
	}

	durations := []struct {
		key  string
		into *time.Duration
	}{
		{EnvTick, &c.Tick},
		{EnvMoveTimeout, &c.Hardware.MoveTimeout},
	}
	for _, k := range durations {
		v, ok := os.LookupEnv(k.key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", k.key, err)
		}
		*k.into = d
	}

	return nil
}

// Validate checks the channels and the hardware description
func (c Config) Validate() error {
	if !c.Local.Enabled() && !c.Remote.Enabled() {
		return errors.New("at least one channel must be enabled")
	}
	if c.Local.Port == PortStdio && c.Remote.Port == PortStdio {
		return errors.New("only one channel can use stdio")
	}
	for _, ch := range []ChannelConfig{c.Local, c.Remote} {
		if ch.Enabled() && ch.Port != PortStdio && ch.Baud <= 0 {
			return fmt.Errorf("invalid baud rate %d for %s", ch.Baud, ch.Port)
		}
	}
	if c.Tick <= 0 {
		return errors.New("tick must be positive")
	}

	err := c.Hardware.Validate()
	if err != nil {
		return fmt.Errorf("invalid hardware config: %w", err)
	}
	return nil
}
