package controller

import (
	"errors"
	"math"
	"time"

	"github.com/calvinmclean/taurino/actuator"
)

const (
	defaultMaxSpeed     = 1000.0
	defaultAcceleration = 500.0
)

// StepMode selects how the Stepper drives its pins
type StepMode int

const (
	// StepModeDriver pulses a STEP pin and sets a DIR pin on an external driver (A4988, DRV8825)
	StepModeDriver StepMode = iota
	// StepModeFull energizes four coils one at a time
	StepModeFull
	// StepModeHalf uses the 8-step half-step sequence on four coils
	StepModeHalf
)

var (
	// 8-step half-step halfStepSequence
	halfStepSequence = [8][4]bool{
		{true, false, false, false},
		{true, true, false, false},
		{false, true, false, false},
		{false, true, true, false},
		{false, false, true, false},
		{false, false, true, true},
		{false, false, false, true},
		{true, false, false, true},
	}

	// 4-step sequence
	fullStepSequence = [4][4]bool{
		{true, false, false, false},
		{false, true, false, false},
		{false, false, true, false},
		{false, false, false, true},
	}
)

// Stepper generates steps with a trapezoidal velocity profile. It is polled: every call to Run takes at most one
// step, and only when the step interval for the current speed has elapsed
type Stepper struct {
	// pins are STEP, DIR for StepModeDriver or the four coils otherwise
	pins         [4]actuator.Pin
	enable       actuator.Pin
	invertEnable bool
	stepMode     StepMode
	sequenceStep int

	clock func() time.Duration

	position int32
	target   int32

	maxSpeed     float64
	acceleration float64

	speed        float64       // steps per second, signed
	stepInterval time.Duration // zero when stopped
	lastStep     time.Duration

	n    int64   // step counter within the current ramp, negative while decelerating
	c0   float64 // first step interval in microseconds
	cn   float64 // last step interval in microseconds
	cmin float64 // interval at max speed in microseconds

	forward bool
}

// NewStepper creates a Stepper from its configuration. clock returns a monotonic timestamp and defaults to
// the time since creation
func NewStepper(cfg StepperConfig, pins [4]actuator.Pin, enable actuator.Pin, clock func() time.Duration) (*Stepper, error) {
	if cfg.StepMode != StepModeDriver && cfg.StepMode != StepModeFull && cfg.StepMode != StepModeHalf {
		return nil, errors.New("invalid StepMode")
	}
	if cfg.MaxSpeed < 0 || cfg.Acceleration < 0 {
		return nil, errors.New("speed and acceleration must be positive")
	}

	if cfg.MaxSpeed == 0 {
		cfg.MaxSpeed = defaultMaxSpeed
	}
	if cfg.Acceleration == 0 {
		cfg.Acceleration = defaultAcceleration
	}

	for i, p := range pins {
		if p == nil {
			pins[i] = actuator.NopPin{}
		}
	}
	if enable == nil {
		enable = actuator.NopPin{}
	}

	if clock == nil {
		start := time.Now()
		clock = func() time.Duration { return time.Since(start) }
	}

	s := &Stepper{
		pins:         pins,
		enable:       enable,
		invertEnable: cfg.InvertEnable,
		stepMode:     cfg.StepMode,
		clock:        clock,
		forward:      true,
	}
	s.setMaxSpeed(cfg.MaxSpeed)
	s.setAcceleration(cfg.Acceleration)

	return s, nil
}

func (s *Stepper) setMaxSpeed(speed float64) {
	s.maxSpeed = speed
	s.cmin = 1e6 / speed
}

func (s *Stepper) setAcceleration(accel float64) {
	s.acceleration = accel
	// Equation 15 from "Generate stepper-motor speed profiles in real time" (D. Austin)
	s.c0 = 0.676 * math.Sqrt(2.0/accel) * 1e6
}

// Move sets the target relative to the current position
func (s *Stepper) Move(relative int32) {
	s.MoveTo(s.position + relative)
}

// MoveTo sets an absolute target
func (s *Stepper) MoveTo(target int32) {
	if s.target == target {
		return
	}
	s.target = target
	s.computeNewSpeed()
}

// DistanceToGo is the number of steps left, signed
func (s *Stepper) DistanceToGo() int32 {
	return s.target - s.position
}

// CurrentPosition is the step count since the last SetCurrentPosition
func (s *Stepper) CurrentPosition() int32 {
	return s.position
}

// SetCurrentPosition rebases the position without moving and leaves the motor stopped
func (s *Stepper) SetCurrentPosition(position int32) {
	s.position = position
	s.target = position
	s.n = 0
	s.stepInterval = 0
	s.speed = 0
}

// Speed is the current signed speed in steps per second
func (s *Stepper) Speed() float64 {
	return s.speed
}

// IsRunning is true while the motor has speed or distance left
func (s *Stepper) IsRunning() bool {
	return s.speed != 0 || s.DistanceToGo() != 0
}

// Stop halts without a deceleration ramp and discards the remaining distance
func (s *Stepper) Stop() {
	s.SetCurrentPosition(s.position)
}

// Run takes a step if one is due and recalculates the speed after every step. It returns whether the motor
// is still running
func (s *Stepper) Run() bool {
	if s.runSpeed() {
		s.computeNewSpeed()
	}
	return s.IsRunning()
}

// EnableOutputs energizes the driver
func (s *Stepper) EnableOutputs() {
	s.enable.Set(!s.invertEnable)
	if s.stepMode != StepModeDriver {
		s.applyStep()
	}
}

// DisableOutputs removes holding current
func (s *Stepper) DisableOutputs() {
	s.enable.Set(s.invertEnable)
	if s.stepMode != StepModeDriver {
		for i := 0; i < 4; i++ {
			s.pins[i].Set(false)
		}
	}
}

func (s *Stepper) runSpeed() bool {
	if s.stepInterval == 0 {
		return false
	}

	now := s.clock()
	if now-s.lastStep < s.stepInterval {
		return false
	}

	if s.forward {
		s.position++
	} else {
		s.position--
	}
	s.pulse()
	s.lastStep = now
	return true
}

func (s *Stepper) computeNewSpeed() {
	distanceTo := s.DistanceToGo()
	stepsToStop := int64((s.speed * s.speed) / (2.0 * s.acceleration))

	if distanceTo == 0 && stepsToStop <= 1 {
		// at the target and slow enough to stop
		s.stepInterval = 0
		s.speed = 0
		s.n = 0
		return
	}

	dist := int64(distanceTo)
	if dist > 0 {
		// target is ahead
		if s.n > 0 {
			if stepsToStop >= dist || !s.forward {
				s.n = -stepsToStop
			}
		} else if s.n < 0 {
			if stepsToStop < dist && s.forward {
				s.n = -s.n
			}
		}
	} else if dist < 0 {
		// target is behind
		if s.n > 0 {
			if stepsToStop >= -dist || s.forward {
				s.n = -stepsToStop
			}
		} else if s.n < 0 {
			if stepsToStop < -dist && !s.forward {
				s.n = -s.n
			}
		}
	}

	if s.n == 0 {
		s.cn = s.c0
		s.forward = distanceTo > 0
	} else {
		s.cn = s.cn - ((2.0 * s.cn) / float64((4*s.n)+1))
		s.cn = math.Max(s.cn, s.cmin)
	}
	s.n++

	s.stepInterval = time.Duration(s.cn) * time.Microsecond
	if s.stepInterval == 0 {
		s.stepInterval = time.Microsecond
	}
	s.speed = 1e6 / s.cn
	if !s.forward {
		s.speed = -s.speed
	}
}

func (s *Stepper) pulse() {
	if s.stepMode == StepModeDriver {
		s.pins[1].Set(s.forward)
		s.pins[0].Set(true)
		s.pins[0].Set(false)
		return
	}

	sequenceLen := 4
	if s.stepMode == StepModeHalf {
		sequenceLen = 8
	}

	if s.forward {
		s.sequenceStep = (s.sequenceStep + 1) % sequenceLen
	} else {
		s.sequenceStep = (s.sequenceStep - 1 + sequenceLen) % sequenceLen
	}
	s.applyStep()
}

func (s *Stepper) applyStep() {
	var sequence [4]bool
	switch s.stepMode {
	default:
		fallthrough
	case StepModeFull:
		sequence = fullStepSequence[s.sequenceStep%4]
	case StepModeHalf:
		sequence = halfStepSequence[s.sequenceStep]
	}

	for i := 0; i < 4; i++ {
		s.pins[i].Set(sequence[i])
	}
}
