package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/calvinmclean/taurino"
	"github.com/calvinmclean/taurino/actuator"
)

// Hardware is the set of drivers behind the configured actuators, in configuration order
type Hardware struct {
	Steppers []actuator.StepperDriver
	Servos   []actuator.ServoDriver
	// Busy is the indicator LED. It may be nil
	Busy actuator.Pin
}

// Controller is the motion scheduler. It owns a fixed table of actuators, steppers first, and dispatches moves
// according to the active Policy. It is not safe for concurrent use: everything runs on the control loop
type Controller struct {
	cfg    Config
	out    taurino.Printer
	logger *zap.Logger

	actuators   []actuator.Actuator
	numSteppers int

	policy taurino.Policy
	busy   actuator.Pin

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates the actuator table from cfg and hw. Messages for the operator go to out
func New(cfg Config, hw Hardware, out taurino.Printer, logger *zap.Logger) (*Controller, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(hw.Steppers) != len(cfg.Steppers) {
		return nil, fmt.Errorf("expected %d stepper drivers, got %d", len(cfg.Steppers), len(hw.Steppers))
	}
	if len(hw.Servos) != len(cfg.Servos) {
		return nil, fmt.Errorf("expected %d servo drivers, got %d", len(cfg.Servos), len(hw.Servos))
	}
	if out == nil {
		return nil, errors.New("missing output")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	busy := hw.Busy
	if busy == nil {
		busy = actuator.NopPin{}
	}

	c := &Controller{
		cfg:         cfg,
		out:         out,
		logger:      logger,
		actuators:   make([]actuator.Actuator, 0, len(cfg.Steppers)+len(cfg.Servos)),
		numSteppers: len(cfg.Steppers),
		policy:      taurino.PolicySequential,
		busy:        busy,
		now:         time.Now,
		sleep:       time.Sleep,
	}

	for i, s := range cfg.Steppers {
		c.actuators = append(c.actuators, *actuator.NewStepper(s.Name, hw.Steppers[i], cfg.StepsPerAxisRevolution()))
	}
	for i, s := range cfg.Servos {
		c.actuators = append(c.actuators, *actuator.NewServo(s.Pin, hw.Servos[i], cfg.ServoSpeed))
	}

	return c, nil
}

// Boot blinks the busy indicator and resets every actuator to its baseline
func (c *Controller) Boot() {
	for _i := 0; _i < 3; _i++ {
		c.busy.Set(true)
		c.sleep(c.cfg.BlinkDelay)
		c.busy.Set(false)
		c.sleep(c.cfg.BlinkDelay)
	}
	c.Reset()
}

// Policy returns the active scheduling policy
func (c *Controller) Policy() taurino.Policy {
	return c.policy
}

// SetPolicy changes how following moves are dispatched. Moves already in flight keep advancing
func (c *Controller) SetPolicy(p taurino.Policy) {
	c.policy = p
	c.logger.Info("scheduling policy changed", zap.Stringer("policy", p))
	c.out.Println("OK: Mode " + p.Title())
}

// StepperNames lists the stepper names in table order
func (c *Controller) StepperNames() []string {
	names := make([]string, 0, c.numSteppers)
	for _, a := range c.steppers() {
		names = append(names, a.Name)
	}
	return names
}

// ServoPins lists the servo pins in table order
func (c *Controller) ServoPins() []int {
	pins := make([]int, 0, len(c.actuators)-c.numSteppers)
	for _, a := range c.servos() {
		pins = append(pins, a.Pin)
	}
	return pins
}

// Actuators returns a copy of the actuator table
func (c *Controller) Actuators() []actuator.Actuator {
	return append([]actuator.Actuator(nil), c.actuators...)
}

// Stepper returns a copy of the named stepper
func (c *Controller) Stepper(name string) (actuator.Actuator, bool) {
	i, ok := c.stepperIndex(name)
	if !ok {
		return actuator.Actuator{}, false
	}
	return c.actuators[i], true
}

// Servo returns a copy of the servo on pin
func (c *Controller) Servo(pin int) (actuator.Actuator, bool) {
	i, ok := c.servoIndex(pin)
	if !ok {
		return actuator.Actuator{}, false
	}
	return c.actuators[i], true
}

// MoveStepper moves one stepper by a number of degrees. With PolicySimultaneous it only starts the move, and
// refuses to while any other stepper is moving
func (c *Controller) MoveStepper(ctx context.Context, name string, cw bool, degrees int) error {
	i, ok := c.stepperIndex(name)
	if !ok {
		return taurino.UnknownMotor(c.StepperNames())
	}
	a := &c.actuators[i]

	if c.policy == taurino.PolicySimultaneous {
		// limit peak current by starting one stepper at a time
		for j := 0; j < c.numSteppers; j++ {
			if j != i && c.actuators[j].Moving {
				c.logger.Debug("rejected stepper move", zap.String("motor", name), zap.String("busy", c.actuators[j].Name))
				return taurino.ErrStepperBusy
			}
		}

		c.out.Println("DEBUG: Starting " + a.Name)
		c.start(i, signed(cw, degrees))
		c.out.Println("STARTED: " + a.Name)
		return nil
	}

	c.out.Println("DEBUG: Blocking move " + a.Name)
	c.start(i, signed(cw, degrees))
	err := c.runBlocking(ctx, []int{i}, 0)
	if err != nil {
		return err
	}
	c.out.Println("OK: Moved " + a.Name)
	return nil
}

// MoveXY moves the X and Y steppers together so they finish at the same time
func (c *Controller) MoveXY(ctx context.Context, cw bool, degrees int) error {
	x, okX := c.stepperIndex("X")
	y, okY := c.stepperIndex("Y")
	if !okX || !okY {
		return taurino.UnknownMotor(c.StepperNames())
	}

	c.start(x, signed(cw, degrees))
	c.start(y, signed(cw, degrees))

	if c.policy == taurino.PolicySimultaneous {
		c.out.Println("STARTED: X and Y together")
		return nil
	}

	err := c.runBlocking(ctx, []int{x, y}, 0)
	if err != nil {
		return err
	}
	c.out.Println("OK: Moved X and Y together")
	return nil
}

// MoveAll moves every stepper by the same number of degrees
func (c *Controller) MoveAll(ctx context.Context, cw bool, degrees int) error {
	indexes := make([]int, 0, c.numSteppers)
	for i := 0; i < c.numSteppers; i++ {
		c.start(i, signed(cw, degrees))
		indexes = append(indexes, i)
	}

	if c.policy == taurino.PolicySimultaneous {
		c.out.Println("STARTED: All steppers")
		return nil
	}

	err := c.runBlocking(ctx, indexes, 0)
	if err != nil {
		return err
	}
	c.out.Println("OK: Moved all steppers")
	return nil
}

// MoveServos sends every servo to the same angle, clamped to [0,180]
func (c *Controller) MoveServos(ctx context.Context, angle int) error {
	angle = actuator.ClampAngle(angle)

	indexes := make([]int, 0, len(c.actuators)-c.numSteppers)
	for i := c.numSteppers; i < len(c.actuators); i++ {
		c.start(i, angle)
		indexes = append(indexes, i)
	}

	if c.policy == taurino.PolicySimultaneous {
		c.out.Println("STARTED: All servos to " + strconv.Itoa(angle))
		return nil
	}

	err := c.runBlocking(ctx, indexes, 1)
	if err != nil {
		return err
	}
	c.out.Println("OK: All servos at " + strconv.Itoa(angle))
	return nil
}

// MoveServo sends the servo on pin to an angle, clamped to [0,180]. Servos never wait for other actuators
func (c *Controller) MoveServo(ctx context.Context, pin, angle int) error {
	angle = actuator.ClampAngle(angle)

	i, ok := c.servoIndex(pin)
	if !ok {
		return taurino.ErrInvalidServoPin
	}

	c.start(i, angle)

	if c.policy == taurino.PolicySimultaneous {
		c.out.Println(fmt.Sprintf("STARTED: Servo pin %d to %d", pin, angle))
		return nil
	}

	err := c.runBlocking(ctx, []int{i}, 1)
	if err != nil {
		return err
	}
	c.out.Println(fmt.Sprintf("OK: Servo pin %d at %d", pin, angle))
	return nil
}

// Advance steps every moving actuator once. It is called on every tick of the control loop regardless of the
// active policy so moves started in simultaneous mode always finish
func (c *Controller) Advance() {
	servoMoved := false
	for i := range c.actuators {
		a := &c.actuators[i]
		if !a.Moving {
			continue
		}

		before := a.Position()
		stillMoving := a.Step()
		if !a.IsStepper() {
			c.checkServo(a)
			if a.Position() != before {
				servoMoved = true
			}
		}
		if stillMoving {
			continue
		}

		c.settle(a)
		c.logger.Debug("move finished", zap.String("actuator", a.Name), zap.Int("position", a.Position()))
		c.out.Println("FINISHED: " + a.Name)
	}

	c.busy.Set(c.anyStepperMoving())
	c.checkInvariants()

	if servoMoved {
		c.sleep(c.cfg.ServoStepDelay)
	}
}

// Moving reports whether any actuator has a move in flight
func (c *Controller) Moving() bool {
	for _, a := range c.actuators {
		if a.Moving {
			return true
		}
	}
	return false
}

// Stop halts and de-energizes every stepper and freezes every servo where it is
func (c *Controller) Stop() {
	for i := range c.actuators {
		a := &c.actuators[i]
		a.Halt()
		a.Disable()
	}
	c.busy.Set(false)
	c.logger.Info("forced stop")
	c.out.Println("OK: Forced stop - all motors halted and de-energized")
}

// Reset stops everything, zeroes the stepper positions and snaps the servos to 90 degrees without animating
func (c *Controller) Reset() {
	c.Stop()
	for i := range c.actuators {
		a := &c.actuators[i]
		a.Rebase()
		if !a.IsStepper() {
			c.checkServo(a)
		}
	}
	c.logger.Info("reset")
	c.out.Println("OK: All motor states erased and reset to initial")
}

// Status prints the policy, every stepper's position and enable state, and every servo's angle
func (c *Controller) Status() {
	c.out.Println("=== Motor Status ===")
	c.out.Println("Mode: " + c.policy.String())
	for _, a := range c.steppers() {
		enabled := "no"
		if a.Enabled {
			enabled = "yes"
		}
		c.out.Println(fmt.Sprintf("%s: pos=%d, enabled=%s", a.Name, a.Position(), enabled))
	}
	c.out.Println("Servos:")
	for _, a := range c.servos() {
		c.out.Println(fmt.Sprintf("  Pin %d: %d", a.Pin, a.Position()))
	}
	c.out.Println("====================")
}

// start moves an actuator from Idle to Moving. Steppers are energized before the target is set
func (c *Controller) start(i, value int) {
	a := &c.actuators[i]
	a.Enable()
	a.SetTarget(value)
	a.Moving = true
	c.logger.Debug("move started", zap.String("actuator", a.Name), zap.Int("value", value), zap.Stringer("policy", c.policy))
}

// settle moves an actuator back to Idle and de-energizes steppers
func (c *Controller) settle(a *actuator.Actuator) {
	a.Moving = false
	a.Disable()
}

// runBlocking steps the started actuators until all of them are idle. Servos move servoIncrement degrees per
// iteration and wait ServoStepDelay in between. Stepper-only moves wait StepPollDelay per iteration
func (c *Controller) runBlocking(ctx context.Context, indexes []int, servoIncrement int) error {
	start := c.now()

	hasStepper := false
	hasServo := false
	for _, i := range indexes {
		if c.actuators[i].IsStepper() {
			hasStepper = true
		} else {
			hasServo = true
		}
	}
	if hasStepper {
		c.busy.Set(true)
	}
	defer func() {
		c.busy.Set(c.anyStepperMoving())
	}()

	for {
		moving := false
		for _, i := range indexes {
			a := &c.actuators[i]
			if !a.Moving {
				continue
			}
			stillMoving := a.StepBy(servoIncrement)
			if !a.IsStepper() {
				c.checkServo(a)
			}
			if stillMoving {
				moving = true
				continue
			}
			c.settle(a)
		}
		if !moving {
			return nil
		}

		if hasServo {
			c.sleep(c.cfg.ServoStepDelay)
		} else if c.cfg.StepPollDelay > 0 {
			c.sleep(c.cfg.StepPollDelay)
		}

		if ctx.Err() != nil {
			c.abort(indexes)
			c.logger.Warn("blocking move interrupted", zap.Error(ctx.Err()))
			return taurino.ErrMoveInterrupted
		}
		if c.cfg.MoveTimeout > 0 && c.now().Sub(start) > c.cfg.MoveTimeout {
			c.abort(indexes)
			c.logger.Warn("blocking move timed out", zap.Duration("timeout", c.cfg.MoveTimeout))
			return taurino.ErrMoveTimeout
		}
	}
}

func (c *Controller) abort(indexes []int) {
	for _, i := range indexes {
		a := &c.actuators[i]
		a.Halt()
		a.Disable()
	}
}

func (c *Controller) anyStepperMoving() bool {
	for _, a := range c.steppers() {
		if a.Moving {
			return true
		}
	}
	return false
}

func (c *Controller) checkServo(a *actuator.Actuator) {
	if err := a.LastError(); err != nil {
		c.logger.Warn("servo write failed", zap.Int("pin", a.Pin), zap.Error(err))
	}
}

func (c *Controller) checkInvariants() {
	for i := range c.actuators {
		if err := c.actuators[i].Check(); err != nil {
			c.logger.Error("actuator invariant violated", zap.Error(err))
		}
	}
}

func (c *Controller) steppers() []actuator.Actuator {
	return c.actuators[:c.numSteppers]
}

func (c *Controller) servos() []actuator.Actuator {
	return c.actuators[c.numSteppers:]
}

func (c *Controller) stepperIndex(name string) (int, bool) {
	for i, a := range c.steppers() {
		if a.Name == name {
			return i, true
		}
	}
	return -1, false
}

func (c *Controller) servoIndex(pin int) (int, bool) {
	for i, a := range c.servos() {
		if a.Pin == pin {
			return c.numSteppers + i, true
		}
	}
	return -1, false
}

func signed(cw bool, degrees int) int {
	if cw {
		return degrees
	}
	return -degrees
}
