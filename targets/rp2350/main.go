//go:build rp2350

package main

import (
	"time"

	"gopper/core"
	"gopper/standalone"
	"gopper/standalone/config"
	"machine"
)

func main() {
	InitUSB()
	InitDebugUART()

	_ = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	InitClock()
	core.TimerInit()

	gpioDriver := NewRPGPIODriver()
	core.SetGPIODriver(gpioDriver)

	adcDriver := NewRPAdcDriver()
	core.SetADCDriver(adcDriver)

	InitGPIOSteppers()

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
