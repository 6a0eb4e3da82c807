// Package commands interprets the operator's text command language and dispatches it to the motion scheduler
package commands

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/calvinmclean/taurino"
)

const (
	errUseXY      taurino.Error = "Use 'XY CW 90'"
	errUseAll     taurino.Error = "Use 'ALL CW 90'"
	errUseStepper taurino.Error = "Use 'X CW 90'"
)

// Controller is used to move the actuators
type Controller interface {
	Boot()
	Stop()
	Reset()
	Status()
	SetPolicy(taurino.Policy)

	MoveStepper(ctx context.Context, name string, cw bool, degrees int) error
	MoveXY(ctx context.Context, cw bool, degrees int) error
	MoveAll(ctx context.Context, cw bool, degrees int) error
	MoveServos(ctx context.Context, angle int) error
	MoveServo(ctx context.Context, pin, angle int) error

	StepperNames() []string
}

// Command is one entry of the command language. Exact commands match the whole normalized line, the others
// match their keyword followed by a space and receive the rest of the line
type Command struct {
	Keyword string
	Exact   bool
	Usage   []string
	Run     func(context.Context, *Interpreter, string) error
}

var (
	XYCommand = &Command{
		Keyword: "XY",
		Usage:   []string{"XY <CW/CCW> <degrees>   (X+Y synced)"},
		Run: func(ctx context.Context, in *Interpreter, args string) error {
			cw, degrees, err := parseMove(args, errUseXY)
			if err != nil {
				return err
			}
			return in.ctrl.MoveXY(ctx, cw, degrees)
		},
	}
	AllCommand = &Command{
		Keyword: "ALL",
		Usage:   []string{"ALL <CW/CCW> <degrees>  (all steppers)"},
		Run: func(ctx context.Context, in *Interpreter, args string) error {
			cw, degrees, err := parseMove(args, errUseAll)
			if err != nil {
				return err
			}
			return in.ctrl.MoveAll(ctx, cw, degrees)
		},
	}
	ServoCommand = &Command{
		Keyword: "SERVO",
		Usage: []string{
			"SERVO <0-180>        (all servos)",
			"SERVO <pin> <0-180>  (single servo)",
		},
		Run: func(ctx context.Context, in *Interpreter, args string) error {
			pinStr, angleStr, found := strings.Cut(args, " ")
			if !found {
				angle, ok := ToInt(args)
				if !ok {
					return taurino.ErrInvalidAngle
				}
				return in.ctrl.MoveServos(ctx, angle)
			}

			pin, ok := ToInt(pinStr)
			if !ok {
				return taurino.ErrInvalidPin
			}
			angle, ok := ToInt(angleStr)
			if !ok {
				return taurino.ErrInvalidAngle
			}
			return in.ctrl.MoveServo(ctx, pin, angle)
		},
	}
	ModeCommand = &Command{
		Keyword: "MODE",
		Usage:   []string{"MODE SIM / MODE SEQ"},
		Run: func(ctx context.Context, in *Interpreter, args string) error {
			policy, ok := taurino.ParsePolicy(args)
			if !ok {
				return in.runStepper(ctx, "MODE "+args)
			}
			in.ctrl.SetPolicy(policy)
			return nil
		},
	}
	StopCommand = &Command{
		Keyword: "STOP",
		Exact:   true,
		Usage:   []string{"STOP                 (forced stop all)"},
		Run: func(_ context.Context, in *Interpreter, _ string) error {
			in.ctrl.Stop()
			return nil
		},
	}
	ResetCommand = &Command{
		Keyword: "RESET",
		Exact:   true,
		Usage:   []string{"RESET                (erase/reset states)"},
		Run: func(_ context.Context, in *Interpreter, _ string) error {
			in.ctrl.Reset()
			return nil
		},
	}
	StatusCommand = &Command{
		Keyword: "STATUS",
		Exact:   true,
		Usage:   []string{"STATUS / HELP"},
		Run: func(_ context.Context, in *Interpreter, _ string) error {
			in.ctrl.Status()
			return nil
		},
	}
	HelpCommand = &Command{
		Keyword: "HELP",
		Exact:   true,
		Run: func(_ context.Context, in *Interpreter, _ string) error {
			in.Help()
			return nil
		},
	}
)

var commands = []*Command{
	XYCommand,
	AllCommand,
	ServoCommand,
	ModeCommand,
	StopCommand,
	ResetCommand,
	StatusCommand,
}

// Interpreter turns operator lines into controller calls and reports errors
type Interpreter struct {
	ctrl   Controller
	out    taurino.Printer
	logger *zap.Logger
}

// NewInterpreter creates an Interpreter. Responses and errors are printed to out
func NewInterpreter(ctrl Controller, out taurino.Printer, logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{ctrl: ctrl, out: out, logger: logger}
}

// Boot resets the controller to its baseline and shows the available commands
func (in *Interpreter) Boot() {
	in.ctrl.Boot()
	in.Help()
}

// Execute runs one line of input. Lines that are empty after normalization are ignored
func (in *Interpreter) Execute(ctx context.Context, line string) {
	cmd := Normalize(line)
	if cmd == "" {
		return
	}

	err := in.run(ctx, cmd)
	if err == nil {
		return
	}

	var userErr taurino.Error
	if !errors.As(err, &userErr) {
		in.logger.Error("unexpected error running command", zap.String("command", cmd), zap.Error(err))
	} else {
		in.logger.Debug("command rejected", zap.String("command", cmd), zap.Error(err))
	}
	in.out.Println("ERROR: " + err.Error())
}

// Help prints a usage line for every command
func (in *Interpreter) Help() {
	in.out.Println("=== COMMANDS ===")
	in.out.Println(strings.Join(in.ctrl.StepperNames(), "/") + " <CW/CCW> <degrees>")
	for _, cmd := range commands {
		for _, usage := range cmd.Usage {
			in.out.Println(usage)
		}
	}
	in.out.Println("================")
}

func (in *Interpreter) run(ctx context.Context, cmd string) error {
	if cmd == HelpCommand.Keyword {
		return HelpCommand.Run(ctx, in, "")
	}

	for _, c := range commands {
		if c.Exact {
			if cmd == c.Keyword {
				return c.Run(ctx, in, "")
			}
			continue
		}

		if args, ok := strings.CutPrefix(cmd, c.Keyword+" "); ok {
			return c.Run(ctx, in, args)
		}
	}

	return in.runStepper(ctx, cmd)
}

// runStepper handles "<MOTOR> <DIR> <DEGREES>", which is also the fallback for every unrecognized line
func (in *Interpreter) runStepper(ctx context.Context, cmd string) error {
	names := in.ctrl.StepperNames()

	first := strings.Index(cmd, " ")
	last := strings.LastIndex(cmd, " ")
	if first == -1 || first == last {
		name, _, _ := strings.Cut(cmd, " ")
		if !contains(names, name) {
			return taurino.UnknownMotor(names)
		}
		return errUseStepper
	}

	motor := cmd[:first]
	dir := cmd[first+1 : last]

	degrees, ok := ToInt(cmd[last+1:])
	if !ok {
		return taurino.ErrInvalidDegrees
	}
	if !contains(names, motor) {
		return taurino.UnknownMotor(names)
	}
	cw, ok := parseDirection(dir)
	if !ok {
		return taurino.ErrInvalidDirection
	}

	return in.ctrl.MoveStepper(ctx, motor, cw, degrees)
}

// parseMove reads "<DIR> <DEGREES>" for the multi-stepper commands
func parseMove(args string, usage taurino.Error) (bool, int, error) {
	dir, degStr, found := strings.Cut(args, " ")
	if !found {
		return false, 0, usage
	}

	degrees, ok := ToInt(degStr)
	if !ok {
		return false, 0, taurino.ErrInvalidDegrees
	}
	cw, ok := parseDirection(dir)
	if !ok {
		return false, 0, taurino.ErrInvalidDirection
	}
	return cw, degrees, nil
}

func parseDirection(dir string) (bool, bool) {
	switch dir {
	case "CW":
		return true, true
	case "CCW":
		return false, true
	}
	return false, false
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
