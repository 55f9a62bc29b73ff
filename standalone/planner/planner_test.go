package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopper/core"
	"gopper/standalone"
	"gopper/standalone/kinematics"
)

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

func testConfig() *standalone.MachineConfig {
	return &standalone.MachineConfig{
		Kinematics: "cartesian",
		Axes: map[string]standalone.AxisConfig{
			"x": {StepPin: "gpio0", DirPin: "gpio1", StepsPerMM: 80, MaxVelocity: 300, MaxAccel: 3000, MinPosition: 0, MaxPosition: 200, MinStepInterval: 8},
			"y": {StepPin: "gpio2", DirPin: "gpio3", StepsPerMM: 80, MaxVelocity: 300, MaxAccel: 3000, MinPosition: 0, MaxPosition: 200, MinStepInterval: 8},
			"z": {StepPin: "gpio4", DirPin: "gpio5", StepsPerMM: 400, MaxVelocity: 10, MaxAccel: 100, MinPosition: 0, MaxPosition: 200, MinStepInterval: 8},
			"e": {StepPin: "gpio6", DirPin: "gpio7", StepsPerMM: 415, MaxVelocity: 50, MaxAccel: 2000, MinPosition: -1e6, MaxPosition: 1e6, MinStepInterval: 8},
		},
		Endstops: map[string]standalone.EndstopConfig{
			"x": {Pin: "gpio20", PullUp: true},
			"y": {Pin: "gpio21", PullUp: true},
			"z": {Pin: "gpio22", PullUp: true},
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

func newTestPlanner(t *testing.T) *Planner {
	t.Helper()
	core.TimerInit()
	core.SetGPIODriver(newFakeGPIO())

	cfg := testConfig()
	kin, err := kinematics.NewCartesian(cfg)
	require.NoError(t, err)

	p := NewPlanner(cfg, kin)
	require.NoError(t, p.InitSteppers(newFakeGPIO()))
	return p
}

func TestQueueMoveUpdatesCommandedPosition(t *testing.T) {
	p := newTestPlanner(t)

	err := p.QueueMove(&standalone.Move{
		End:      standalone.Position{X: 10, Y: 10, Z: 0, E: 0},
		Velocity: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, [4]float64{10, 10, 0, 0}, p.commandedPos)
}

func TestQueueMoveRejectsOutOfLimits(t *testing.T) {
	p := newTestPlanner(t)

	err := p.QueueMove(&standalone.Move{
		End:      standalone.Position{X: 1000, Y: 0, Z: 0, E: 0},
		Velocity: 30,
	})
	assert.Error(t, err)
}

func TestQueueMoveDropsNoOpMove(t *testing.T) {
	p := newTestPlanner(t)
	err := p.QueueMove(&standalone.Move{End: standalone.Position{}, Velocity: 30})
	require.NoError(t, err)
	assert.Empty(t, p.lookahead)
}

func TestClampAxisVelocityRespectsPerAxisMax(t *testing.T) {
	p := newTestPlanner(t)

	// Z's MaxVelocity is only 10mm/s; a move entirely on Z must be capped
	// even though the command asked for much faster.
	err := p.QueueMove(&standalone.Move{
		End:      standalone.Position{X: 0, Y: 0, Z: 5, E: 0},
		Velocity: 300,
	})
	require.NoError(t, err)
	require.Len(t, p.lookahead, 1)
	assert.LessOrEqual(t, p.lookahead[0].maxV, 10.0)
}

func TestFlushLookaheadResolvesAndDrainsBuffer(t *testing.T) {
	p := newTestPlanner(t)

	require.NoError(t, p.QueueMove(&standalone.Move{End: standalone.Position{X: 10}, Velocity: 30}))
	require.NoError(t, p.QueueMove(&standalone.Move{End: standalone.Position{X: 20}, Velocity: 30}))

	p.FlushLookahead()
	assert.Empty(t, p.lookahead)
	assert.Greater(t, p.printTime, 0.0)
}

func TestSetPositionResetsQueueAndSteppers(t *testing.T) {
	p := newTestPlanner(t)
	require.NoError(t, p.QueueMove(&standalone.Move{End: standalone.Position{X: 10}, Velocity: 30}))
	p.FlushLookahead()

	p.SetPosition(standalone.Position{X: 5, Y: 0, Z: 0, E: 0})
	pos := p.GetCurrentPosition()
	assert.InDelta(t, 5, pos.X, 1e-9)
	assert.Equal(t, 0.0, p.printTime)
}

func TestIsIdleReflectsLookaheadAndSteppers(t *testing.T) {
	p := newTestPlanner(t)
	assert.True(t, p.IsIdle())

	require.NoError(t, p.QueueMove(&standalone.Move{End: standalone.Position{X: 10}, Velocity: 30}))
	assert.False(t, p.IsIdle())
}

func TestCalcTrapezoidalProfileTriangleFallback(t *testing.T) {
	// A move too short to reach cruiseV should fall back to a triangle
	// (no cruise phase) rather than going negative.
	accelT, cruiseT, decelT := calcTrapezoidalProfile(1.0, 0, 100, 0, 1000)
	assert.Equal(t, 0.0, cruiseT)
	assert.Greater(t, accelT, 0.0)
	assert.Greater(t, decelT, 0.0)
}

func TestCalcJunctionVelocityStraightLineIsUnbounded(t *testing.T) {
	dir := [4]float64{1, 0, 0, 0}
	v := calcJunctionVelocity(dir, dir, 100, 5, 1000)
	assert.Equal(t, 100.0, v)
}

func TestGenerateStepsDrainsEveryStepEvenPastQueueCapacity(t *testing.T) {
	p := newTestPlanner(t)

	// 10mm at 80 steps/mm is 800 edges on X, far more than the stepper's
	// 16-slot queue can hold at once; repeated generateSteps passes must
	// still drive every one of them out rather than silently dropping
	// whatever overflowed the first burst.
	require.NoError(t, p.QueueMove(&standalone.Move{End: standalone.Position{X: 10}, Velocity: 30}))
	p.FlushLookahead()

	// Fast-forward the virtual clock well past the move's duration so
	// every dispatch below finds its timer already due, then keep
	// pumping ProcessTimers/generateSteps the way Manager.Tick does on
	// every scheduler tick until the queue and lookahead drain.
	core.SetTime(core.GetTime() + 3*core.TimerFreq)

	drive := p.axes["x"]
	for i := 0; i < 200 && !p.IsIdle(); i++ {
		core.ProcessTimers()
		p.generateSteps()
	}

	assert.True(t, p.IsIdle())
	assert.Equal(t, int64(800), drive.stepper.GetPosition())
}

func TestCalcJunctionVelocityReversalStopsFully(t *testing.T) {
	a := [4]float64{1, 0, 0, 0}
	b := [4]float64{-1, 0, 0, 0}
	v := calcJunctionVelocity(a, b, 100, 5, 1000)
	assert.Equal(t, 0.0, v)
}
