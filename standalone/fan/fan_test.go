package fan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopper/core"
)

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

func newTestFan(t *testing.T, cfg Config) (*Fan, *fakeGPIO) {
	t.Helper()
	g := newFakeGPIO()
	core.SetGPIODriver(g)
	core.TimerInit()

	out, err := core.NewDigitalOut(core.GPIOPin(2), false, false)
	require.NoError(t, err)
	return New(cfg, out), g
}

func TestFanSpeedClamped(t *testing.T) {
	f, _ := newTestFan(t, Config{OffBelow: 0.05})
	f.SetSpeed(2.0)
	assert.Equal(t, 1.0, f.Speed())

	f.SetSpeed(-1.0)
	assert.Equal(t, 0.0, f.Speed())
}

func TestFanBelowOffThresholdDisables(t *testing.T) {
	f, g := newTestFan(t, Config{OffBelow: 0.1})
	f.SetSpeed(0.05)
	assert.Equal(t, 0.05, f.Speed())
	assert.False(t, g.pins[core.GPIOPin(2)])
}

func TestFanKickstartDrivesFullPowerThenSettles(t *testing.T) {
	f, g := newTestFan(t, Config{OffBelow: 0.05, KickstartMS: 50})
	f.SetSpeed(0.5)

	// Kickstart drives the pin fully on immediately.
	assert.True(t, g.pins[core.GPIOPin(2)])

	// Advance past the kickstart window and let the timer fire.
	core.SetTime(core.GetTime() + core.TimerFromUS(60*1000))
	core.ProcessTimers()

	assert.Equal(t, 0.5, f.Speed())
}

func TestFanDefaultCycleTicks(t *testing.T) {
	f := New(Config{}, nil)
	assert.Equal(t, uint32(core.TimerFreq/100), f.cfg.CycleTicks)
}
