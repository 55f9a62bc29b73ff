//go:build rp2040

package main

import (
	"time"

	"gopper/core"
	"gopper/standalone"
	"gopper/standalone/config"
	"machine"
)

// RunStandaloneMode runs the MCU as a standalone G-code-driven printer
// over the USB serial port. gpioDriver must already be registered with
// core.SetGPIODriver.
func RunStandaloneMode(gpioDriver core.GPIODriver) {
	cfg := config.DefaultCartesianConfig()

	manager, err := standalone.NewManagerWithConfig(cfg)
	if err != nil {
		faultBlink()
	}

	if err := manager.Initialize(gpioDriver); err != nil {
		faultBlink()
	}

	if err := manager.Start(); err != nil {
		return
	}

	readyBlink()

	lastUptime := core.GetUptime()
	for {
		if USBAvailable() > 0 {
			data, err := USBRead()
			if err == nil {
				if err := manager.ProcessByte(data); err != nil {
					manager.SendResponse("Error: " + err.Error() + "\n")
				}
			}
		}

		if output := manager.GetOutput(); len(output) > 0 {
			USBWriteBytes(output)
		}

		UpdateSystemTime()
		core.ProcessTimers()

		now := core.GetUptime()
		dt := float64(core.TimerToUS(uint32(now-lastUptime))) / 1e6
		lastUptime = now
		manager.Tick(dt)

		time.Sleep(10 * time.Microsecond)
	}
}

// faultBlink flashes the onboard LED rapidly forever, signalling an
// initialization failure that left the machine unable to run.
func faultBlink() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}

// readyBlink flashes the onboard LED three times to signal a
// successful boot into standalone mode.
func readyBlink() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < 3; i++ {
		led.High()
		time.Sleep(200 * time.Millisecond)
		led.Low()
		time.Sleep(200 * time.Millisecond)
	}
}
