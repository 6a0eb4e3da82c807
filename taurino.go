package taurino

import "strings"

// Prompt is printed on every channel after a command line completes
const Prompt = "> "

// Policy is the scheduling policy used when dispatching a move
type Policy int

const (
	// PolicySequential blocks the control loop until the move is done
	PolicySequential Policy = iota
	// PolicySimultaneous starts the move and lets the control loop advance it every tick
	PolicySimultaneous
)

func (p Policy) String() string {
	switch p {
	case PolicySimultaneous:
		return "SIMULTANEOUS"
	default:
		fallthrough
	case PolicySequential:
		return "SEQUENTIAL"
	}
}

// Title is the mixed-case name used in mode change confirmations
func (p Policy) Title() string {
	if p == PolicySimultaneous {
		return "Simultaneous"
	}
	return "Sequential"
}

// ParsePolicy reads the argument of the MODE command
func ParsePolicy(s string) (Policy, bool) {
	switch strings.ToUpper(s) {
	case "SEQ":
		return PolicySequential, true
	case "SIM":
		return PolicySimultaneous, true
	}
	return PolicySequential, false
}

// Printer receives operator-facing messages. Each call is one line
type Printer interface {
	Println(msg string)
}

// Error is a reason reported to the operator after "ERROR: "
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrInvalidDegrees   Error = "Invalid degrees"
	ErrInvalidAngle     Error = "Invalid angle"
	ErrInvalidPin       Error = "Invalid pin"
	ErrInvalidDirection Error = "Invalid direction. Use CW or CCW"
	ErrInvalidServoPin  Error = "Invalid servo pin"
	ErrUnknownMotor     Error = "Unknown motor. Use X, Y, E0, or E1"
	ErrStepperBusy      Error = "Wait for current moves to finish in SIM mode"
	ErrMoveTimeout      Error = "Move timed out"
	ErrMoveInterrupted  Error = "Move interrupted"
)

// UnknownMotor lists the valid motor names, like ErrUnknownMotor does for the default axes
func UnknownMotor(names []string) Error {
	var list string
	switch len(names) {
	case 0:
		return "Unknown motor"
	case 1:
		list = names[0]
	default:
		list = strings.Join(names[:len(names)-1], ", ") + ", or " + names[len(names)-1]
	}
	return Error("Unknown motor. Use " + list)
}
