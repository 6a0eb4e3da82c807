//go:build tinygo

package controller

import (
	"errors"
	"machine"
	"strconv"

	"tinygo.org/x/drivers/servo"

	"github.com/calvinmclean/taurino/actuator"
)

// NewHardware configures the board pins named in cfg and creates the drivers. pwms maps every servo pin to the
// PWM peripheral that drives it
func NewHardware(cfg Config, pwms map[int]servo.PWM) (Hardware, error) {
	hw := Hardware{
		Busy: outputPin(cfg.BusyPin),
	}

	for _, s := range cfg.Steppers {
		var pins [4]actuator.Pin
		if s.StepMode == StepModeDriver {
			pins[0] = outputPin(s.StepPin)
			pins[1] = outputPin(s.DirPin)
		} else {
			for i, p := range s.CoilPins {
				pins[i] = outputPin(p)
			}
		}

		stepper, err := NewStepper(s, pins, outputPin(s.EnablePin), nil)
		if err != nil {
			return Hardware{}, errors.New("error creating stepper " + s.Name + ": " + err.Error())
		}
		stepper.DisableOutputs()

		hw.Steppers = append(hw.Steppers, stepper)
	}

	for _, s := range cfg.Servos {
		pwm, ok := pwms[s.Pin]
		if !ok {
			return Hardware{}, errors.New("no PWM for servo pin " + strconv.Itoa(s.Pin))
		}

		srv, err := servo.New(pwm, machine.Pin(s.Pin))
		if err != nil {
			return Hardware{}, errors.New("error creating servo: " + err.Error())
		}
		hw.Servos = append(hw.Servos, &srv)
	}

	return hw, nil
}

func outputPin(n int) machine.Pin {
	p := machine.Pin(n)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return p
}
