//go:build rp2040

package main

import (
	"device/rp"
	"errors"
	"sync"

	"gopper/core"
	"machine"
)

// tempSensorChannel is the core.ADCChannelID ParseADCChannel assigns to
// the literal name "ADC_TEMPERATURE" (the RP2040's internal die sensor,
// not an external thermistor input).
const tempSensorChannel = core.ADCChannelID(0xff)

// RpAdcDriver implements core.ADCDriver using TinyGo's machine.ADC.
type RpAdcDriver struct {
	mu sync.Mutex

	channels map[core.ADCChannelID]*machine.ADC
}

// NewRPAdcDriver constructs the driver but does not Init() it yet.
func NewRPAdcDriver() *RpAdcDriver {
	return &RpAdcDriver{
		channels: make(map[core.ADCChannelID]*machine.ADC),
	}
}

func (d *RpAdcDriver) Init(cfg core.ADCConfig) error {
	machine.InitADC()
	return nil
}

// ConfigureChannel sets up a specific ADC channel (pin mux, etc.). ch is
// the literal channel number parsed out of "ADCn" (0-3), or
// tempSensorChannel for the internal sensor.
func (d *RpAdcDriver) ConfigureChannel(ch core.ADCChannelID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch == tempSensorChannel {
		// Nothing to configure through TinyGo's high-level API;
		// rawInternalTemp manipulates the ADC peripheral directly.
		return nil
	}

	if _, ok := d.channels[ch]; ok {
		return nil
	}

	var adc machine.ADC
	switch ch {
	case 0:
		adc = machine.ADC{Pin: machine.ADC0}
	case 1:
		adc = machine.ADC{Pin: machine.ADC1}
	case 2:
		adc = machine.ADC{Pin: machine.ADC2}
	case 3:
		adc = machine.ADC{Pin: machine.ADC3}
	default:
		return errors.New("unsupported ADC channel")
	}

	if err := adc.Configure(machine.ADCConfig{}); err != nil {
		return err
	}

	d.channels[ch] = &adc
	return nil
}

// ReadRaw samples ch and returns its raw 12-bit reading (0-4095) in a
// core.ADCValue; machine.ADC.Get scales samples to 16 bits, so the low
// four bits are shifted back out.
func (d *RpAdcDriver) ReadRaw(ch core.ADCChannelID) (core.ADCValue, error) {
	if ch == tempSensorChannel {
		return core.ADCValue(rawInternalTemp()), nil
	}

	d.mu.Lock()
	adc, ok := d.channels[ch]
	d.mu.Unlock()
	if !ok {
		if err := d.ConfigureChannel(ch); err != nil {
			return 0, err
		}
		d.mu.Lock()
		adc = d.channels[ch]
		d.mu.Unlock()
	}

	return core.ADCValue(adc.Get() >> 4), nil
}

// rawInternalTemp returns the 12-bit raw ADC value from the internal
// temperature sensor (0-4095).
func rawInternalTemp() uint16 {
	if rp.ADC.CS.Get()&rp.ADC_CS_EN == 0 {
		machine.InitADC()
	}

	rp.ADC.CS.SetBits(rp.ADC_CS_TS_EN)

	const tempChannel = 4
	rp.ADC.CS.ReplaceBits(
		uint32(tempChannel)<<rp.ADC_CS_AINSEL_Pos,
		rp.ADC_CS_AINSEL_Msk,
		0,
	)

	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)

	for !rp.ADC.CS.HasBits(rp.ADC_CS_READY) {
	}

	return uint16(rp.ADC.RESULT.Get())
}
