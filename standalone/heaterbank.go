package standalone

import (
	"gopper/core"
	"gopper/standalone/errs"
	"gopper/standalone/fan"
	"gopper/standalone/heater"
)

// HeaterBank owns every configured heater channel and implements
// gcode.Heaters against them.
type HeaterBank struct {
	heaters map[string]*heater.Heater
}

// NewHeaterBank constructs one heater.Heater per entry in cfg, resolving
// its ADC and GPIO pins through gpioDriver.
func NewHeaterBank(cfg map[string]HeaterConfig) (*HeaterBank, error) {
	bank := &HeaterBank{heaters: make(map[string]*heater.Heater, len(cfg))}
	for name, hc := range cfg {
		adcCh, err := ParseADCChannel(hc.SensorPin)
		if err != nil {
			return nil, err
		}
		pin, err := ParsePin(hc.HeaterPin)
		if err != nil {
			return nil, err
		}
		out, err := core.NewDigitalOut(pin, false, false)
		if err != nil {
			return nil, err
		}
		bank.heaters[name] = heater.New(heater.Config{
			Kp:            hc.PID[0],
			Ki:            hc.PID[1],
			Kd:            hc.PID[2],
			MinTemp:       hc.MinTemp,
			MaxTemp:       hc.MaxTemp,
			MaxPower:      hc.MaxPower,
			CheckGainTime: hc.CheckGainTime,
			Hysteresis:    hc.Hysteresis,
		}, adcCh, out)
	}
	return bank, nil
}

// Tick advances every heater's PID loop by dt seconds.
func (b *HeaterBank) Tick(dt float64) {
	for _, h := range b.heaters {
		_ = h.Tick(dt)
	}
}

// SetTarget implements gcode.Heaters.
func (b *HeaterBank) SetTarget(name string, celsius float64) error {
	h, ok := b.heaters[name]
	if !ok {
		return errs.ErrUnknownCommand
	}
	h.SetTarget(celsius)
	return nil
}

// Reading implements gcode.Heaters.
func (b *HeaterBank) Reading(name string) (current, target float64, ok bool) {
	h, found := b.heaters[name]
	if !found {
		return 0, 0, false
	}
	return h.Current(), h.Target(), true
}

// Faulted implements gcode.Heaters.
func (b *HeaterBank) Faulted(name string) bool {
	h, ok := b.heaters[name]
	return ok && h.Faulted()
}

// EmergencyOff drives every heater's target, and so its output, to zero.
func (b *HeaterBank) EmergencyOff() {
	for _, h := range b.heaters {
		h.SetTarget(0)
		_ = h.Tick(0)
	}
}

// FanBank owns every configured soft-PWM fan channel and implements
// gcode.Fans against them.
type FanBank struct {
	fans map[string]*fan.Fan
}

// NewFanBank constructs one fan.Fan per entry in cfg.
func NewFanBank(cfg map[string]FanConfig) (*FanBank, error) {
	bank := &FanBank{fans: make(map[string]*fan.Fan, len(cfg))}
	for name, fc := range cfg {
		pin, err := ParsePin(fc.Pin)
		if err != nil {
			return nil, err
		}
		out, err := core.NewDigitalOut(pin, false, false)
		if err != nil {
			return nil, err
		}
		bank.fans[name] = fan.New(fan.Config{
			CycleTicks:  fc.CycleTicks,
			KickstartMS: fc.KickstartMS,
			OffBelow:    fc.OffBelow,
		}, out)
	}
	return bank, nil
}

// SetSpeed implements gcode.Fans.
func (b *FanBank) SetSpeed(name string, duty float64) error {
	f, ok := b.fans[name]
	if !ok {
		return errs.ErrUnknownCommand
	}
	f.SetSpeed(duty)
	return nil
}

// EmergencyOff silences every fan channel.
func (b *FanBank) EmergencyOff() {
	for _, f := range b.fans {
		f.SetSpeed(0)
	}
}
