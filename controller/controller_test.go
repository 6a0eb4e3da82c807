package controller

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/calvinmclean/taurino"
	"github.com/calvinmclean/taurino/actuator"
)

type fakeStepper struct {
	position int32
	target   int32
	enabled  bool
}

func (f *fakeStepper) Move(relative int32)          { f.target = f.position + relative }
func (f *fakeStepper) EnableOutputs()               { f.enabled = true }
func (f *fakeStepper) DisableOutputs()              { f.enabled = false }
func (f *fakeStepper) SetCurrentPosition(pos int32) { f.position, f.target = pos, pos }
func (f *fakeStepper) CurrentPosition() int32       { return f.position }
func (f *fakeStepper) Stop()                        { f.target = f.position }

// Run takes ten steps per call to keep the tests fast
func (f *fakeStepper) Run() bool {
	for _i := 0; _i < 10; _i++ {
		switch {
		case f.position < f.target:
			f.position++
		case f.position > f.target:
			f.position--
		}
	}
	return f.position != f.target
}

type fakeServo struct {
	angle  int
	writes int
}

func (f *fakeServo) SetAngle(angle int) error {
	f.angle = angle
	f.writes++
	return nil
}

type fakePin struct {
	high bool
	sets []bool
}

func (p *fakePin) Set(high bool) {
	p.high = high
	p.sets = append(p.sets, high)
}

type recorder struct {
	lines []string
}

func (r *recorder) Println(msg string) {
	r.lines = append(r.lines, msg)
}

func (r *recorder) reset() {
	r.lines = nil
}

type testRig struct {
	c        *Controller
	out      *recorder
	steppers map[string]*fakeStepper
	servos   map[int]*fakeServo
	busy     *fakePin
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	cfg := DefaultConfig()
	rig := &testRig{
		out:      &recorder{},
		steppers: map[string]*fakeStepper{},
		servos:   map[int]*fakeServo{},
		busy:     &fakePin{},
	}

	hw := Hardware{Busy: rig.busy}
	for _, s := range cfg.Steppers {
		f := &fakeStepper{}
		rig.steppers[s.Name] = f
		hw.Steppers = append(hw.Steppers, f)
	}
	for _, s := range cfg.Servos {
		f := &fakeServo{}
		rig.servos[s.Pin] = f
		hw.Servos = append(hw.Servos, f)
	}

	c, err := New(cfg, hw, rig.out, zaptest.NewLogger(t))
	require.NoError(t, err)
	c.sleep = func(time.Duration) {}
	rig.c = c

	c.Reset()
	rig.out.reset()

	return rig
}

func (r *testRig) advanceUntilIdle(t *testing.T) {
	t.Helper()
	for _i := 0; _i < 100000; _i++ {
		if !r.c.Moving() {
			return
		}
		r.c.Advance()
		r.checkInvariants(t)
	}
	t.Fatal("actuators never settled")
}

func (r *testRig) checkInvariants(t *testing.T) {
	t.Helper()
	for _, a := range r.c.Actuators() {
		require.NoError(t, a.Check())
		if a.IsStepper() && a.Moving {
			require.True(t, a.Enabled, "%s is moving while disabled", a.Name)
		}
		if !a.IsStepper() {
			require.GreaterOrEqual(t, a.Position(), actuator.MinAngle)
			require.LessOrEqual(t, a.Position(), actuator.MaxAngle)
		}
	}
}

func (r *testRig) position(t *testing.T, name string) int {
	t.Helper()
	a, ok := r.c.Stepper(name)
	require.True(t, ok)
	return a.Position()
}

func (r *testRig) angle(t *testing.T, pin int) int {
	t.Helper()
	a, ok := r.c.Servo(pin)
	require.True(t, ok)
	return a.Position()
}

func TestNewValidatesHardware(t *testing.T) {
	cfg := DefaultConfig()

	_, err := New(cfg, Hardware{}, &recorder{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 4 stepper drivers")

	cfg.Steppers[1].Name = "X"
	_, err = New(cfg, Hardware{}, &recorder{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate stepper name")
}

func TestBoot(t *testing.T) {
	rig := newTestRig(t)
	rig.busy.sets = nil

	rig.c.Boot()

	assert.Equal(t, []bool{true, false, true, false, true, false, false}, rig.busy.sets)
	assert.Equal(t, []string{
		"OK: Forced stop - all motors halted and de-energized",
		"OK: All motor states erased and reset to initial",
	}, rig.out.lines)

	rig.out.reset()
	rig.c.Status()
	assert.Equal(t, []string{
		"=== Motor Status ===",
		"Mode: SEQUENTIAL",
		"X: pos=0, enabled=no",
		"Y: pos=0, enabled=no",
		"E0: pos=0, enabled=no",
		"E1: pos=0, enabled=no",
		"Servos:",
		"  Pin 4: 90",
		"  Pin 5: 90",
		"  Pin 6: 90",
		"  Pin 9: 90",
		"  Pin 11: 90",
		"====================",
	}, rig.out.lines)

	for pin, s := range rig.servos {
		assert.Equal(t, 90, s.angle, "pin %d", pin)
	}
}

func TestMoveStepperSequential(t *testing.T) {
	tests := []struct {
		name     string
		cw       bool
		degrees  int
		expected int
	}{
		{"CW90", true, 90, 800},
		{"CCW90", false, 90, -800},
		{"CW1", true, 1, 8},
		{"Zero", true, 0, 0},
		{"FullRevolution", true, 360, 3200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newTestRig(t)

			err := rig.c.MoveStepper(context.Background(), "X", tt.cw, tt.degrees)
			require.NoError(t, err)

			assert.Equal(t, []string{"DEBUG: Blocking move X", "OK: Moved X"}, rig.out.lines)
			assert.Equal(t, tt.expected, rig.position(t, "X"))

			x, _ := rig.c.Stepper("X")
			assert.False(t, x.Moving)
			assert.False(t, x.Enabled)
			assert.False(t, rig.steppers["X"].enabled)
			assert.False(t, rig.busy.high)
		})
	}
}

func TestMoveStepperUnknown(t *testing.T) {
	rig := newTestRig(t)

	err := rig.c.MoveStepper(context.Background(), "Z", true, 90)
	assert.Equal(t, taurino.ErrUnknownMotor, err)
	assert.Empty(t, rig.out.lines)
}

func TestSimultaneousRejectsSecondStepper(t *testing.T) {
	rig := newTestRig(t)
	rig.c.SetPolicy(taurino.PolicySimultaneous)
	assert.Equal(t, []string{"OK: Mode Simultaneous"}, rig.out.lines)
	rig.out.reset()

	err := rig.c.MoveStepper(context.Background(), "X", true, 90)
	require.NoError(t, err)
	assert.Equal(t, []string{"DEBUG: Starting X", "STARTED: X"}, rig.out.lines)

	x, _ := rig.c.Stepper("X")
	assert.True(t, x.Moving)
	assert.True(t, x.Enabled)
	rig.checkInvariants(t)

	rig.out.reset()
	err = rig.c.MoveStepper(context.Background(), "Y", true, 90)
	assert.Equal(t, taurino.ErrStepperBusy, err)
	assert.Empty(t, rig.out.lines)

	y, _ := rig.c.Stepper("Y")
	assert.False(t, y.Moving)
	assert.False(t, y.Enabled)
	assert.Equal(t, 0, y.Position())
	assert.Equal(t, int32(0), rig.steppers["Y"].target)

	rig.advanceUntilIdle(t)
	assert.Equal(t, 800, rig.position(t, "X"))
	assert.Equal(t, []string{"FINISHED: X"}, rig.out.lines)

	rig.out.reset()
	err = rig.c.MoveStepper(context.Background(), "Y", true, 90)
	require.NoError(t, err)
	rig.advanceUntilIdle(t)
	assert.Equal(t, 800, rig.position(t, "Y"))
}

func TestSimultaneousServoWhileStepperMoves(t *testing.T) {
	rig := newTestRig(t)
	rig.c.SetPolicy(taurino.PolicySimultaneous)

	require.NoError(t, rig.c.MoveStepper(context.Background(), "X", true, 90))

	rig.out.reset()
	err := rig.c.MoveServo(context.Background(), 4, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"STARTED: Servo pin 4 to 0"}, rig.out.lines)

	rig.c.Advance()
	assert.True(t, rig.busy.high)

	rig.advanceUntilIdle(t)
	assert.Equal(t, 800, rig.position(t, "X"))
	assert.Equal(t, 0, rig.angle(t, 4))
	assert.Equal(t, 0, rig.servos[4].angle)
	assert.Contains(t, rig.out.lines, "FINISHED: X")
	assert.Contains(t, rig.out.lines, "FINISHED: Servo pin 4")
	assert.False(t, rig.busy.high)
}

func TestSimultaneousServoSpeed(t *testing.T) {
	rig := newTestRig(t)
	rig.c.SetPolicy(taurino.PolicySimultaneous)

	require.NoError(t, rig.c.MoveServo(context.Background(), 5, 95))

	rig.c.Advance()
	assert.Equal(t, 92, rig.angle(t, 5))
	rig.c.Advance()
	assert.Equal(t, 95, rig.angle(t, 5))

	s, _ := rig.c.Servo(5)
	assert.False(t, s.Moving)
}

func TestMoveXY(t *testing.T) {
	for _, policy := range []taurino.Policy{taurino.PolicySequential, taurino.PolicySimultaneous} {
		t.Run(policy.String(), func(t *testing.T) {
			rig := newTestRig(t)
			rig.c.SetPolicy(policy)
			rig.out.reset()

			err := rig.c.MoveXY(context.Background(), false, 45)
			require.NoError(t, err)

			if policy == taurino.PolicySimultaneous {
				assert.Equal(t, []string{"STARTED: X and Y together"}, rig.out.lines)
				rig.advanceUntilIdle(t)
			} else {
				assert.Equal(t, []string{"OK: Moved X and Y together"}, rig.out.lines)
			}

			assert.Equal(t, -400, rig.position(t, "X"))
			assert.Equal(t, -400, rig.position(t, "Y"))
			assert.Equal(t, 0, rig.position(t, "E0"))
			assert.Equal(t, 0, rig.position(t, "E1"))
		})
	}
}

func TestMoveAllRoundTrip(t *testing.T) {
	for _, policy := range []taurino.Policy{taurino.PolicySequential, taurino.PolicySimultaneous} {
		t.Run(policy.String(), func(t *testing.T) {
			rig := newTestRig(t)
			rig.c.SetPolicy(policy)

			require.NoError(t, rig.c.MoveAll(context.Background(), true, 90))
			rig.advanceUntilIdle(t)
			for _, name := range rig.c.StepperNames() {
				assert.Equal(t, 800, rig.position(t, name))
			}

			require.NoError(t, rig.c.MoveAll(context.Background(), false, 90))
			rig.advanceUntilIdle(t)
			for _, name := range rig.c.StepperNames() {
				assert.Equal(t, 0, rig.position(t, name))
			}
		})
	}
}

func TestMoveServosClamps(t *testing.T) {
	tests := []struct {
		name     string
		angle    int
		expected int
	}{
		{"Above", 200, 180},
		{"Below", -5, 0},
		{"InRange", 45, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newTestRig(t)

			err := rig.c.MoveServos(context.Background(), tt.angle)
			require.NoError(t, err)

			assert.Equal(t, []string{"OK: All servos at " + strconv.Itoa(tt.expected)}, rig.out.lines)
			for _, pin := range rig.c.ServoPins() {
				assert.Equal(t, tt.expected, rig.angle(t, pin))
				assert.Equal(t, tt.expected, rig.servos[pin].angle)
			}
		})
	}
}

func TestMoveServoSequentialMovesOneDegreeAtATime(t *testing.T) {
	rig := newTestRig(t)
	var sleeps int
	rig.c.sleep = func(d time.Duration) {
		assert.Equal(t, 15*time.Millisecond, d)
		sleeps++
	}

	err := rig.c.MoveServo(context.Background(), 9, 80)
	require.NoError(t, err)

	assert.Equal(t, []string{"OK: Servo pin 9 at 80"}, rig.out.lines)
	assert.Equal(t, 10, rig.servos[9].writes-1)
	assert.Equal(t, 9, sleeps)
}

func TestBlockingStepperMovePausesBetweenUpdates(t *testing.T) {
	rig := newTestRig(t)
	var sleeps []time.Duration
	rig.c.sleep = func(d time.Duration) {
		sleeps = append(sleeps, d)
	}

	require.NoError(t, rig.c.MoveStepper(context.Background(), "X", true, 90))
	assert.Equal(t, 800, rig.position(t, "X"))

	// 80 updates of ten steps with a pause between each
	require.Len(t, sleeps, 79)
	for _, d := range sleeps {
		assert.Equal(t, 100*time.Microsecond, d)
	}
}

func TestBlockingStepperMoveWithoutPause(t *testing.T) {
	rig := newTestRig(t)
	rig.c.cfg.StepPollDelay = 0
	var sleeps int
	rig.c.sleep = func(time.Duration) {
		sleeps++
	}

	require.NoError(t, rig.c.MoveStepper(context.Background(), "Y", false, 90))
	assert.Equal(t, -800, rig.position(t, "Y"))
	assert.Zero(t, sleeps)
}

func TestSimultaneousServoAlreadyAtTarget(t *testing.T) {
	rig := newTestRig(t)
	rig.c.SetPolicy(taurino.PolicySimultaneous)
	writes := rig.servos[6].writes

	require.NoError(t, rig.c.MoveServo(context.Background(), 6, 90))
	assert.Equal(t, []string{"STARTED: Servo pin 6 to 90"}, rig.out.lines)

	rig.c.Advance()

	s, _ := rig.c.Servo(6)
	assert.False(t, s.Moving)
	assert.Equal(t, 90, s.Position())
	assert.Equal(t, writes, rig.servos[6].writes)
	assert.Equal(t, []string{"STARTED: Servo pin 6 to 90", "FINISHED: Servo pin 6"}, rig.out.lines)
}

func TestMoveServoInvalidPin(t *testing.T) {
	rig := newTestRig(t)

	err := rig.c.MoveServo(context.Background(), 7, 90)
	assert.Equal(t, taurino.ErrInvalidServoPin, err)
	assert.Empty(t, rig.out.lines)
}

func TestBlockingMoveTimeout(t *testing.T) {
	rig := newTestRig(t)
	rig.c.cfg.MoveTimeout = time.Second

	var now time.Time
	rig.c.now = func() time.Time {
		now = now.Add(600 * time.Millisecond)
		return now
	}

	err := rig.c.MoveStepper(context.Background(), "X", true, 3600)
	assert.Equal(t, taurino.ErrMoveTimeout, err)

	x, _ := rig.c.Stepper("X")
	assert.False(t, x.Moving)
	assert.False(t, x.Enabled)
	assert.Equal(t, 20, x.Position())
	assert.Equal(t, []string{"DEBUG: Blocking move X"}, rig.out.lines)
}

func TestBlockingMoveInterrupted(t *testing.T) {
	rig := newTestRig(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rig.c.MoveAll(ctx, true, 90)
	assert.Equal(t, taurino.ErrMoveInterrupted, err)

	for _, a := range rig.c.Actuators() {
		assert.False(t, a.Moving, a.Name)
		assert.False(t, a.Enabled, a.Name)
	}
	assert.Equal(t, 10, rig.position(t, "E1"))
	assert.False(t, rig.busy.high)
}

func TestStop(t *testing.T) {
	rig := newTestRig(t)
	rig.c.SetPolicy(taurino.PolicySimultaneous)

	require.NoError(t, rig.c.MoveStepper(context.Background(), "X", true, 90))
	require.NoError(t, rig.c.MoveServos(context.Background(), 0))
	rig.c.Advance()

	rig.out.reset()
	rig.c.Stop()
	assert.Equal(t, []string{"OK: Forced stop - all motors halted and de-energized"}, rig.out.lines)
	assert.False(t, rig.c.Moving())
	assert.False(t, rig.busy.high)

	x, _ := rig.c.Stepper("X")
	assert.False(t, x.Enabled)
	assert.Equal(t, 10, x.Position())
	assert.Equal(t, 88, rig.angle(t, 4))

	rig.out.reset()
	rig.c.Advance()
	assert.Empty(t, rig.out.lines)
	assert.Equal(t, 10, rig.position(t, "X"))
}

func TestReset(t *testing.T) {
	rig := newTestRig(t)

	require.NoError(t, rig.c.MoveStepper(context.Background(), "E0", false, 30))
	require.NoError(t, rig.c.MoveServo(context.Background(), 11, 10))
	require.Equal(t, -266, rig.position(t, "E0"))

	rig.out.reset()
	rig.c.Reset()
	assert.Equal(t, []string{
		"OK: Forced stop - all motors halted and de-energized",
		"OK: All motor states erased and reset to initial",
	}, rig.out.lines)

	assert.Equal(t, 0, rig.position(t, "E0"))
	assert.Equal(t, 90, rig.angle(t, 11))
	assert.Equal(t, 90, rig.servos[11].angle)
}

func TestAdvanceFinishesAfterSwitchingToSequential(t *testing.T) {
	rig := newTestRig(t)
	rig.c.SetPolicy(taurino.PolicySimultaneous)

	require.NoError(t, rig.c.MoveStepper(context.Background(), "E1", true, 180))
	rig.c.SetPolicy(taurino.PolicySequential)

	rig.advanceUntilIdle(t)
	assert.Equal(t, 1600, rig.position(t, "E1"))
	assert.Contains(t, rig.out.lines, "FINISHED: E1")
}

func TestStatusReportsEnabledWhileMoving(t *testing.T) {
	rig := newTestRig(t)
	rig.c.SetPolicy(taurino.PolicySimultaneous)

	require.NoError(t, rig.c.MoveStepper(context.Background(), "Y", false, 90))
	rig.c.Advance()

	rig.out.reset()
	rig.c.Status()
	assert.Contains(t, rig.out.lines, "Mode: SIMULTANEOUS")
	assert.Contains(t, rig.out.lines, "Y: pos=-10, enabled=yes")
	assert.Contains(t, rig.out.lines, "X: pos=0, enabled=no")
}
