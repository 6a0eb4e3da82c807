package controller

import (
	"errors"
	"fmt"
	"time"
)

// StepperConfig describes one stepper axis
type StepperConfig struct {
	Name string `yaml:"name"`

	StepPin   int `yaml:"step_pin"`
	DirPin    int `yaml:"dir_pin"`
	EnablePin int `yaml:"enable_pin"`
	// CoilPins replace StepPin and DirPin for 4-wire steppers
	CoilPins [4]int `yaml:"coil_pins,omitempty"`

	StepMode     StepMode `yaml:"step_mode"`
	InvertEnable bool     `yaml:"invert_enable"`

	// MaxSpeed is in steps per second and Acceleration in steps per second squared
	MaxSpeed     float64 `yaml:"max_speed"`
	Acceleration float64 `yaml:"acceleration"`
}

// ServoConfig has device-level values for setting up a Servo
type ServoConfig struct {
	Pin int `yaml:"pin"`
}

// Config has values for the moving parts that depend on wiring and motor specifics
type Config struct {
	Steppers []StepperConfig `yaml:"steppers"`
	Servos   []ServoConfig   `yaml:"servos"`

	// BusyPin lights while steppers are moving
	BusyPin int `yaml:"busy_pin"`

	StepsPerRevolution int `yaml:"steps_per_revolution"`
	Microsteps         int `yaml:"microsteps"`

	// ServoSpeed is the number of degrees a servo moves per tick when moving simultaneously
	ServoSpeed int `yaml:"servo_speed"`
	// ServoStepDelay paces servo motion: blocking moves wait this long per degree and the control loop waits
	// this long after a tick that moved a servo
	ServoStepDelay time.Duration `yaml:"servo_step_delay"`

	// StepPollDelay is the pause between stepper updates during a blocking move without servos. It must stay
	// well below the step interval at MaxSpeed. Zero polls without pausing
	StepPollDelay time.Duration `yaml:"step_poll_delay"`

	// MoveTimeout bounds a blocking move. Zero disables the guard
	MoveTimeout time.Duration `yaml:"move_timeout"`

	// BlinkDelay is the on and off time of the boot blink
	BlinkDelay time.Duration `yaml:"blink_delay"`
}

// DefaultConfig is the RAMPS 1.4 wiring with four stepper drivers and five servo headers
func DefaultConfig() Config {
	return Config{
		Steppers: []StepperConfig{
			{Name: "X", StepPin: 54, DirPin: 55, EnablePin: 38, InvertEnable: true, MaxSpeed: 1000, Acceleration: 500},
			{Name: "Y", StepPin: 60, DirPin: 61, EnablePin: 56, InvertEnable: true, MaxSpeed: 1000, Acceleration: 500},
			{Name: "E0", StepPin: 26, DirPin: 28, EnablePin: 24, InvertEnable: true, MaxSpeed: 1000, Acceleration: 500},
			{Name: "E1", StepPin: 36, DirPin: 34, EnablePin: 30, InvertEnable: true, MaxSpeed: 1000, Acceleration: 500},
		},
		Servos: []ServoConfig{
			{Pin: 4}, {Pin: 5}, {Pin: 6}, {Pin: 9}, {Pin: 11},
		},
		BusyPin:            13,
		StepsPerRevolution: 200,
		Microsteps:         16,
		ServoSpeed:         2,
		ServoStepDelay:     15 * time.Millisecond,
		StepPollDelay:      100 * time.Microsecond,
		MoveTimeout:        60 * time.Second,
		BlinkDelay:         100 * time.Millisecond,
	}
}

// Validate checks for duplicate identities and impossible values
func (c Config) Validate() error {
	if len(c.Steppers) == 0 && len(c.Servos) == 0 {
		return errors.New("no actuators configured")
	}
	if c.StepsPerRevolution <= 0 || c.Microsteps <= 0 {
		return errors.New("steps_per_revolution and microsteps must be positive")
	}
	if c.ServoSpeed <= 0 {
		return errors.New("servo_speed must be positive")
	}
	if c.ServoStepDelay < 0 || c.StepPollDelay < 0 || c.MoveTimeout < 0 || c.BlinkDelay < 0 {
		return errors.New("durations must not be negative")
	}

	names := map[string]bool{}
	for _, s := range c.Steppers {
		if s.Name == "" {
			return errors.New("stepper without a name")
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate stepper name %q", s.Name)
		}
		names[s.Name] = true
	}

	pins := map[int]bool{}
	for _, s := range c.Servos {
		if pins[s.Pin] {
			return fmt.Errorf("duplicate servo pin %d", s.Pin)
		}
		pins[s.Pin] = true
	}

	return nil
}

// StepsPerAxisRevolution includes microstepping
func (c Config) StepsPerAxisRevolution() int {
	return c.StepsPerRevolution * c.Microsteps
}

func (m StepMode) String() string {
	switch m {
	case StepModeFull:
		return "full"
	case StepModeHalf:
		return "half"
	default:
		return "driver"
	}
}

// MarshalText lets the step mode be written by name in config files
func (m StepMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText reads "driver", "full" or "half"
func (m *StepMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "driver":
		*m = StepModeDriver
	case "full":
		*m = StepModeFull
	case "half":
		*m = StepModeHalf
	default:
		return fmt.Errorf("invalid step mode %q", text)
	}
	return nil
}
