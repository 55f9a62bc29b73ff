//go:build rp2040

package main

import (
	"machine"

	"gopper/core"
	piostepper "gopper/targets/pio"
)

func main() {
	// Disable the watchdog on boot in case a previous run left it armed.
	_ = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	InitUSB()
	InitClock()
	core.TimerInit()

	gpioDriver := NewRPGPIODriver()
	core.SetGPIODriver(gpioDriver)

	adcDriver := NewRPAdcDriver()
	core.SetADCDriver(adcDriver)

	// PIO gives each stepper its own hardware-timed state machine;
	// RunStandaloneMode's planner picks this up automatically through
	// core.NewStepper's backend factory.
	piostepper.InitSteppers()

	RunStandaloneMode(gpioDriver)
}
