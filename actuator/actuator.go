// Package actuator holds the uniform state of a stepper axis or a servo channel. The scheduler keeps
// actuators in a fixed table and addresses them by index.
package actuator

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MinAngle and MaxAngle bound every servo target
	MinAngle = 0
	MaxAngle = 180

	// BaselineAngle is where servos rest after boot and RESET
	BaselineAngle = 90
)

// Pin is a digital output. machine.Pin satisfies it on TinyGo
type Pin interface {
	Set(high bool)
}

// NopPin discards writes. It is used for optional pins and on hosts without GPIO
type NopPin struct{}

func (NopPin) Set(bool) {}

// StepperDriver is the step generator behind a stepper axis
type StepperDriver interface {
	// Move sets a target relative to the current position
	Move(relative int32)
	// Run takes at most one step if one is due and returns whether the motor still has work to do
	Run() bool
	EnableOutputs()
	DisableOutputs()
	SetCurrentPosition(position int32)
	CurrentPosition() int32
	// Stop halts immediately and drops the remaining distance
	Stop()
}

// ServoDriver positions a hobby servo. servo.Servo satisfies it on TinyGo
type ServoDriver interface {
	SetAngle(angle int) error
}

// Kind tells steppers and servos apart
type Kind int

const (
	KindStepper Kind = iota
	KindServo
)

func (k Kind) String() string {
	if k == KindServo {
		return "servo"
	}
	return "stepper"
}

// Actuator is one entry in the scheduler's table
type Actuator struct {
	Kind Kind
	// Name identifies a stepper in commands (X, Y, E0, E1)
	Name string
	// Pin identifies a servo in commands
	Pin int

	Moving  bool
	Enabled bool

	stepper        StepperDriver
	stepsPerDegree float64

	servo      ServoDriver
	servoSpeed int
	current    int
	target     int

	// lastErr holds the most recent servo write failure
	lastErr error
}

// NewStepper creates a stepper axis. stepsPerRevolution already includes microstepping
func NewStepper(name string, driver StepperDriver, stepsPerRevolution int) *Actuator {
	return &Actuator{
		Kind:           KindStepper,
		Name:           name,
		stepper:        driver,
		stepsPerDegree: float64(stepsPerRevolution) / 360,
	}
}

// NewServo creates a servo channel resting at the baseline angle. speed is the increment used by Step
func NewServo(pin int, driver ServoDriver, speed int) *Actuator {
	if speed < 1 {
		speed = 1
	}
	return &Actuator{
		Kind:       KindServo,
		Name:       fmt.Sprintf("Servo pin %d", pin),
		Pin:        pin,
		servo:      driver,
		servoSpeed: speed,
		current:    BaselineAngle,
		target:     BaselineAngle,
	}
}

// IsStepper is a shorthand for Kind == KindStepper
func (a *Actuator) IsStepper() bool {
	return a.Kind == KindStepper
}

// Enable energizes a stepper's driver. It does nothing for servos
func (a *Actuator) Enable() {
	if !a.IsStepper() {
		return
	}
	a.stepper.EnableOutputs()
	a.Enabled = true
}

// Disable de-energizes a stepper's driver so it stops holding current. It does nothing for servos
func (a *Actuator) Disable() {
	if !a.IsStepper() {
		return
	}
	a.stepper.DisableOutputs()
	a.Enabled = false
}

// StepsFor converts a signed number of degrees to whole steps, truncating toward zero and saturating at the
// int32 range
func (a *Actuator) StepsFor(degrees int) int32 {
	steps := float64(degrees) * a.stepsPerDegree
	switch {
	case steps > math.MaxInt32:
		return math.MaxInt32
	case steps < math.MinInt32:
		return math.MinInt32
	}
	return int32(steps)
}

// SetTarget starts a relative move of value degrees for steppers, or sets the absolute angle for servos.
// Servo angles are clamped to [0,180]
func (a *Actuator) SetTarget(value int) {
	if a.IsStepper() {
		a.stepper.Move(a.StepsFor(value))
		return
	}
	a.target = ClampAngle(value)
}

// Step advances one tick and returns whether the actuator is still moving
func (a *Actuator) Step() bool {
	return a.StepBy(a.servoSpeed)
}

// StepBy is Step with an explicit servo increment. Steppers ignore the increment and take at most one step
func (a *Actuator) StepBy(increment int) bool {
	if a.IsStepper() {
		return a.stepper.Run()
	}

	if a.current == a.target {
		return false
	}
	if increment < 1 {
		increment = 1
	}

	if a.current < a.target {
		a.current += increment
	} else {
		a.current -= increment
	}

	// land exactly on the target instead of oscillating around it
	diff := a.current - a.target
	if diff < 0 {
		diff = -diff
	}
	if diff < increment {
		a.current = a.target
	}

	a.write(a.current)
	return a.current != a.target
}

// Halt stops a stepper immediately or freezes a servo where it is
func (a *Actuator) Halt() {
	a.Moving = false
	if a.IsStepper() {
		a.stepper.Stop()
		return
	}
	a.target = a.current
}

// Rebase moves the origin: steppers read position 0 from here on and servos snap to the baseline angle
func (a *Actuator) Rebase() {
	if a.IsStepper() {
		a.stepper.SetCurrentPosition(0)
		return
	}
	a.current = BaselineAngle
	a.target = BaselineAngle
	a.write(BaselineAngle)
}

// Position is the step count of a stepper or the current angle of a servo
func (a *Actuator) Position() int {
	if a.IsStepper() {
		return int(a.stepper.CurrentPosition())
	}
	return a.current
}

// Target is the angle a servo is heading to. For steppers it equals Position
func (a *Actuator) Target() int {
	if a.IsStepper() {
		return a.Position()
	}
	return a.target
}

// LastError returns the last error from the servo driver, if any
func (a *Actuator) LastError() error {
	return a.lastErr
}

var (
	errMovingDisabled = errors.New("stepper is moving with outputs disabled")
	errAngleRange     = errors.New("servo angle out of range")
)

// Check reports a broken invariant
func (a *Actuator) Check() error {
	if a.IsStepper() {
		if a.Moving && !a.Enabled {
			return fmt.Errorf("%s: %w", a.Name, errMovingDisabled)
		}
		return nil
	}
	if a.current < MinAngle || a.current > MaxAngle || a.target < MinAngle || a.target > MaxAngle {
		return fmt.Errorf("%s: %w: current=%d target=%d", a.Name, errAngleRange, a.current, a.target)
	}
	return nil
}

func (a *Actuator) write(angle int) {
	if a.servo == nil {
		return
	}
	a.lastErr = a.servo.SetAngle(angle)
}

// ClampAngle bounds a servo angle to [0,180]
func ClampAngle(angle int) int {
	if angle < MinAngle {
		return MinAngle
	}
	if angle > MaxAngle {
		return MaxAngle
	}
	return angle
}
