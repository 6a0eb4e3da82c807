package controller

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/calvinmclean/taurino/actuator"
)

// SimulatedServo remembers the last angle it was given
type SimulatedServo struct {
	Pin   int
	Angle int

	logger *zap.Logger
}

// SetAngle implements actuator.ServoDriver
func (s *SimulatedServo) SetAngle(angle int) error {
	if angle < actuator.MinAngle || angle > actuator.MaxAngle {
		return fmt.Errorf("angle %d out of range", angle)
	}
	s.Angle = angle
	s.logger.Debug("servo moved", zap.Int("pin", s.Pin), zap.Int("angle", angle))
	return nil
}

// SimulatedPin logs level changes of a digital output
type SimulatedPin struct {
	Name string
	High bool

	logger *zap.Logger
}

// Set implements actuator.Pin
func (p *SimulatedPin) Set(high bool) {
	if p.High == high {
		return
	}
	p.High = high
	p.logger.Debug("pin changed", zap.String("pin", p.Name), zap.Bool("high", high))
}

// NewSimulatedHardware creates drivers for cfg that run the real step generator on simulated pins. Motion takes
// as long as it would on the machine
func NewSimulatedHardware(cfg Config, logger *zap.Logger) (Hardware, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	hw := Hardware{
		Busy: &SimulatedPin{Name: fmt.Sprintf("busy(%d)", cfg.BusyPin), logger: logger},
	}

	for _, s := range cfg.Steppers {
		enable := &SimulatedPin{Name: fmt.Sprintf("%s enable(%d)", s.Name, s.EnablePin), logger: logger}
		pins := [4]actuator.Pin{}

		stepper, err := NewStepper(s, pins, enable, nil)
		if err != nil {
			return Hardware{}, fmt.Errorf("error creating stepper %s: %w", s.Name, err)
		}
		hw.Steppers = append(hw.Steppers, stepper)
	}

	for _, s := range cfg.Servos {
		hw.Servos = append(hw.Servos, &SimulatedServo{Pin: s.Pin, logger: logger})
	}

	return hw, nil
}
