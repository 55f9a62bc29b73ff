package standalone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopper/core"
)

// fakeGPIO is the narrowest core.GPIODriver needed to stand up a full
// Manager: steppers, endstops, and soft-PWM heater/fan outputs all route
// through it.
type fakeGPIO struct {
	pins map[core.GPIOPin]bool
}

func newFakeGPIO() *fakeGPIO { return &fakeGPIO{pins: make(map[core.GPIOPin]bool)} }

func (f *fakeGPIO) ConfigureOutput(pin core.GPIOPin) error        { f.pins[pin] = false; return nil }
func (f *fakeGPIO) ConfigureInputPullUp(pin core.GPIOPin) error   { f.pins[pin] = true; return nil }
func (f *fakeGPIO) ConfigureInputPullDown(pin core.GPIOPin) error { f.pins[pin] = false; return nil }
func (f *fakeGPIO) SetPin(pin core.GPIOPin, value bool) error     { f.pins[pin] = value; return nil }
func (f *fakeGPIO) GetPin(pin core.GPIOPin) (bool, error)         { return f.pins[pin], nil }
func (f *fakeGPIO) ReadPin(pin core.GPIOPin) bool                 { return f.pins[pin] }

// fakeADC returns a fixed raw reading per channel, settable by the test.
type fakeADC struct {
	readings map[core.ADCChannelID]core.ADCValue
}

func newFakeADC() *fakeADC { return &fakeADC{readings: make(map[core.ADCChannelID]core.ADCValue)} }

func (f *fakeADC) Init(cfg core.ADCConfig) error               { return nil }
func (f *fakeADC) ConfigureChannel(ch core.ADCChannelID) error { return nil }
func (f *fakeADC) ReadRaw(ch core.ADCChannelID) (core.ADCValue, error) {
	return f.readings[ch], nil
}

func testManagerConfig() *MachineConfig {
	return &MachineConfig{
		Kinematics: "cartesian",
		Axes: map[string]AxisConfig{
			"x": {StepPin: "gpio0", DirPin: "gpio1", StepsPerMM: 80, MaxVelocity: 300, MaxAccel: 3000, MinPosition: 0, MaxPosition: 200, MinStepInterval: 8},
			"y": {StepPin: "gpio2", DirPin: "gpio3", StepsPerMM: 80, MaxVelocity: 300, MaxAccel: 3000, MinPosition: 0, MaxPosition: 200, MinStepInterval: 8},
			"z": {StepPin: "gpio4", DirPin: "gpio5", StepsPerMM: 400, MaxVelocity: 10, MaxAccel: 100, MinPosition: 0, MaxPosition: 200, MinStepInterval: 8},
			"e": {StepPin: "gpio6", DirPin: "gpio7", StepsPerMM: 415, MaxVelocity: 50, MaxAccel: 2000, MinPosition: -1e6, MaxPosition: 1e6, MinStepInterval: 8},
		},
		Endstops: map[string]EndstopConfig{
			"x": {Pin: "gpio20", PullUp: true},
			"y": {Pin: "gpio21", PullUp: true},
			"z": {Pin: "gpio22", PullUp: true},
		},
		Heaters: map[string]HeaterConfig{
			"extruder": {SensorPin: "ADC0", HeaterPin: "gpio30", PID: [3]float64{0.1, 0, 0}, MinTemp: 0, MaxTemp: 300, MaxPower: 1},
		},
		Fans: map[string]FanConfig{
			"part_cooling": {Pin: "gpio31", CycleTicks: core.TimerFreq / 100, OffBelow: 0.05},
		},
		DefaultVelocity:      50,
		DefaultAccel:         1000,
		MaxAccelToDecel:      1000,
		SquareCornerVelocity: 5,
		HomingSpeed:          10,
		HomingRetract:        5,
		HomingTimeout:        30,
	}
}

func newTestManager(t *testing.T) (*Manager, *fakeADC) {
	t.Helper()
	core.TimerInit()
	core.SetGPIODriver(newFakeGPIO())
	adc := newFakeADC()
	core.SetADCDriver(adc)

	mgr, err := NewManagerWithConfig(testManagerConfig())
	require.NoError(t, err)
	require.NoError(t, mgr.Initialize(newFakeGPIO()))
	return mgr, adc
}

func feed(mgr *Manager, line string) {
	for i := 0; i < len(line); i++ {
		_ = mgr.ProcessByte(line[i])
	}
	_ = mgr.ProcessByte('\n')
}

func TestProcessLineExecutesImmediatelyWithoutAckOrQueueing(t *testing.T) {
	mgr, _ := newTestManager(t)

	require.NoError(t, mgr.ProcessLine("G1 X10 Y10 F3000"))
	require.NoError(t, mgr.ProcessLine("M114"))

	out := string(mgr.GetOutput())
	assert.Contains(t, out, "X:10.00 Y:10.00")
	assert.NotContains(t, out, "ok", "ProcessLine bypasses the line-ack queue entirely")
}

func TestProcessByteQueuesAndAcksALine(t *testing.T) {
	mgr, _ := newTestManager(t)

	feed(mgr, "G28 X Y")
	out := string(mgr.GetOutput())
	assert.Contains(t, out, "ok")
}

func TestProcessByteReportsExecutionErrorsWithoutHangingTheQueue(t *testing.T) {
	mgr, _ := newTestManager(t)

	// G1 with an out-of-range axis value should come back as an error
	// line, not silently swallowed, and must not block later lines.
	feed(mgr, "G1 X99999")
	out := string(mgr.GetOutput())
	assert.Contains(t, out, "error")

	feed(mgr, "M105")
	out = string(mgr.GetOutput())
	assert.Contains(t, out, "ok")
}

func TestM109HoldsAckUntilTemperatureSettlesViaTick(t *testing.T) {
	mgr, adc := newTestManager(t)
	adc.readings[core.ADCChannelID(0)] = core.ADCValue(20) // near the NTC table's low-ADC/high-temp clamp, far from 60C

	feed(mgr, "M109 S60")
	feed(mgr, "M105")

	out := string(mgr.GetOutput())
	assert.NotContains(t, out, "ok", "M109's ok must be held back until temperature settles")
	assert.Empty(t, out, "lines queued behind a pending wait must not execute yet")

	// The fake ADC has no thermal model behind it, so the wait is driven
	// purely by swapping in a reading at the target temperature and
	// letting Tick's PollWait notice on its next pass.
	adc.readings[core.ADCChannelID(0)] = core.ADCValue(2379) // NTC table's 60C point, within M109's 2C tolerance
	for i := 0; i < 5; i++ {
		mgr.Tick(0.1)
	}

	out = string(mgr.GetOutput())
	assert.Contains(t, out, "ok", "wait should have cleared and the queued M105 executed")
}

func TestEmergencyStopClearsQueueAndWait(t *testing.T) {
	mgr, _ := newTestManager(t)

	feed(mgr, "M109 S200")
	mgr.GetOutput()
	feed(mgr, "G28")

	mgr.EmergencyStop()
	assert.False(t, mgr.IsRunning())
	assert.False(t, mgr.waiting)
	assert.Empty(t, mgr.lineQueue)
}

func TestStartEmitsReadyBanner(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Start())
	assert.Contains(t, string(mgr.GetOutput()), "Ready")
}
