package heater

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopper/core"
	"gopper/standalone/errs"
)

// fakeGPIO is the narrowest core.GPIODriver that lets core.NewDigitalOut
// succeed: every pin is just a bool in a map.
type fakeGPIO struct {
	pins map[core.GPIOPin]bool
}

func newFakeGPIO() *fakeGPIO { return &fakeGPIO{pins: make(map[core.GPIOPin]bool)} }

func (f *fakeGPIO) ConfigureOutput(pin core.GPIOPin) error        { f.pins[pin] = false; return nil }
func (f *fakeGPIO) ConfigureInputPullUp(pin core.GPIOPin) error   { return nil }
func (f *fakeGPIO) ConfigureInputPullDown(pin core.GPIOPin) error { return nil }
func (f *fakeGPIO) SetPin(pin core.GPIOPin, value bool) error     { f.pins[pin] = value; return nil }
func (f *fakeGPIO) GetPin(pin core.GPIOPin) (bool, error)         { return f.pins[pin], nil }
func (f *fakeGPIO) ReadPin(pin core.GPIOPin) bool                 { return f.pins[pin] }

// fakeADC returns a fixed raw reading per channel, settable by the test.
type fakeADC struct {
	readings map[core.ADCChannelID]core.ADCValue
	err      error
}

func newFakeADC() *fakeADC { return &fakeADC{readings: make(map[core.ADCChannelID]core.ADCValue)} }

func (f *fakeADC) Init(cfg core.ADCConfig) error             { return nil }
func (f *fakeADC) ConfigureChannel(ch core.ADCChannelID) error { return nil }
func (f *fakeADC) ReadRaw(ch core.ADCChannelID) (core.ADCValue, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.readings[ch], nil
}

func newTestHeater(t *testing.T, cfg Config) (*Heater, *fakeADC) {
	t.Helper()
	core.SetGPIODriver(newFakeGPIO())
	adc := newFakeADC()
	core.SetADCDriver(adc)

	out, err := core.NewDigitalOut(core.GPIOPin(1), false, false)
	require.NoError(t, err)

	return New(cfg, core.ADCChannelID(0), out), adc
}

// adcForTemp returns the ADC reading ADCToTemp maps back to temp, by
// scanning the same table ADCToTemp uses.
func adcForTemp(temp float64) int32 {
	want := int32(temp * 10)
	best := ntcTable[0].adc
	bestDiff := int32(1 << 30)
	for _, e := range ntcTable {
		diff := e.temp - want
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = e.adc
		}
	}
	return best
}

func TestADCToTempKnownPoints(t *testing.T) {
	assert.InDelta(t, 0, ADCToTemp(3105), 0.1)
	assert.InDelta(t, 20, ADCToTemp(2918), 0.1)
	assert.Equal(t, TempInvalid, ADCToTemp(-1))
	assert.Equal(t, TempInvalid, ADCToTemp(5000))
}

func TestADCToTempClampsOutOfTableRange(t *testing.T) {
	assert.InDelta(t, 300, ADCToTemp(0), 0.1)
	assert.InDelta(t, -20, ADCToTemp(4095), 0.1)
}

func TestHeaterSensorFaultHoldsOutputOff(t *testing.T) {
	h, adc := newTestHeater(t, Config{Kp: 1, Ki: 0, Kd: 0, MinTemp: 0, MaxTemp: 300, MaxPower: 1})
	adc.err = errs.ErrSensorInvalid
	h.SetTarget(200)

	err := h.Tick(0.1)
	assert.ErrorIs(t, err, errs.ErrSensorInvalid)
	assert.True(t, h.Faulted())
}

func TestHeaterPIDDrivesTowardTarget(t *testing.T) {
	h, adc := newTestHeater(t, Config{Kp: 0.1, Ki: 0, Kd: 0, MinTemp: 0, MaxTemp: 300, MaxPower: 1})
	adc.readings[core.ADCChannelID(0)] = core.ADCValue(adcForTemp(20))
	h.SetTarget(200)

	err := h.Tick(0.1)
	require.NoError(t, err)
	assert.InDelta(t, 20, h.Current(), 1.0)
	assert.False(t, h.Faulted())
}

func TestHeaterIdleAtZeroTargetDoesNotFault(t *testing.T) {
	h, adc := newTestHeater(t, Config{Kp: 1, MinTemp: 0, MaxTemp: 300, MaxPower: 1})
	adc.readings[core.ADCChannelID(0)] = core.ADCValue(adcForTemp(20))

	err := h.Tick(0.1)
	require.NoError(t, err)
	assert.False(t, h.Faulted())
	assert.Equal(t, 0.0, h.Target())
}

func TestHeaterRunawayGuardTrips(t *testing.T) {
	h, adc := newTestHeater(t, Config{
		Kp: 0, Ki: 0, Kd: 0, MinTemp: 0, MaxTemp: 300, MaxPower: 1,
		CheckGainTime: 1.0, Hysteresis: 5.0,
	})
	adc.readings[core.ADCChannelID(0)] = core.ADCValue(adcForTemp(20))
	h.SetTarget(200)

	// Temperature never rises; after CheckGainTime elapses the guard
	// should trip and latch the heater off.
	for i := 0; i < 11; i++ {
		_ = h.Tick(0.1)
	}
	assert.True(t, h.Faulted())
}

func TestHeaterRunawayGuardClearsOnRisingTemp(t *testing.T) {
	h, adc := newTestHeater(t, Config{
		Kp: 0, Ki: 0, Kd: 0, MinTemp: 0, MaxTemp: 300, MaxPower: 1,
		CheckGainTime: 1.0, Hysteresis: 5.0,
	})
	adc.readings[core.ADCChannelID(0)] = core.ADCValue(adcForTemp(20))
	h.SetTarget(200)

	_ = h.Tick(0.1)
	adc.readings[core.ADCChannelID(0)] = core.ADCValue(adcForTemp(30))
	for i := 0; i < 11; i++ {
		_ = h.Tick(0.1)
	}
	assert.False(t, h.Faulted())
}
