//go:build tinygo

package main

import (
	"context"
	"machine"

	"go.uber.org/zap"
	"tinygo.org/x/drivers/servo"

	"github.com/calvinmclean/taurino/commands"
	"github.com/calvinmclean/taurino/console"
	"github.com/calvinmclean/taurino/controller"
)

const baudRate = 115200

func main() {
	// wireless serial bridge
	err := machine.UART1.Configure(machine.UARTConfig{
		BaudRate: baudRate,
		TX:       machine.GP20,
		RX:       machine.GP21,
	})
	if err != nil {
		panic(err)
	}

	cfg := picoConfig()

	// RP2040 PWM slices: GP4 and GP5 share a slice
	hw, err := controller.NewHardware(cfg, map[int]servo.PWM{
		4:  machine.PWM2,
		5:  machine.PWM2,
		6:  machine.PWM3,
		9:  machine.PWM4,
		11: machine.PWM5,
	})
	if err != nil {
		panic(err)
	}

	endpoints := []console.Endpoint{
		{Name: "usb", Channel: machine.Serial},
		{Name: "uart1", Channel: machine.UART1},
	}

	logger := zap.NewNop()
	out := console.NewBroadcaster(logger, endpoints...)

	ctrl, err := controller.New(cfg, hw, out, logger)
	if err != nil {
		panic(err)
	}

	interpreter := commands.NewInterpreter(ctrl, out, logger)
	session := console.NewSession(interpreter, out, logger, endpoints...)

	interpreter.Boot()

	err = session.Run(context.Background(), ctrl, console.DefaultTick)
	if err != nil {
		panic(err)
	}
}

// picoConfig keeps the stepper names and servo pins of the default wiring and moves the driver pins to
// GPIOs that are free on a Raspberry Pi Pico
func picoConfig() controller.Config {
	cfg := controller.DefaultConfig()

	pins := [][3]machine.Pin{
		{machine.GP2, machine.GP3, machine.GP7},
		{machine.GP10, machine.GP12, machine.GP13},
		{machine.GP14, machine.GP15, machine.GP16},
		{machine.GP17, machine.GP18, machine.GP19},
	}
	for i := range cfg.Steppers {
		cfg.Steppers[i].StepPin = int(pins[i][0])
		cfg.Steppers[i].DirPin = int(pins[i][1])
		cfg.Steppers[i].EnablePin = int(pins[i][2])
	}
	cfg.BusyPin = int(machine.LED)

	return cfg
}
