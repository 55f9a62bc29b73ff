package gcode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopper/standalone"
)

// fakePlanner is a minimal Planner double: it just records the commanded
// position and the last move/home/set-position call it was given.
type fakePlanner struct {
	pos         standalone.Position
	lastMove    *standalone.Move
	homedAxes   []string
	rejectMoves bool
}

func (p *fakePlanner) QueueMove(move *standalone.Move) error {
	if p.rejectMoves {
		return errors.New("move rejected")
	}
	p.lastMove = move
	p.pos = move.End
	return nil
}

func (p *fakePlanner) GetCurrentPosition() standalone.Position { return p.pos }

func (p *fakePlanner) SetPosition(pos standalone.Position) { p.pos = pos }

func (p *fakePlanner) ClearQueue() {}

func (p *fakePlanner) Home(axisNames []string, homingSpeed, retractDist, timeoutSeconds float64) error {
	p.homedAxes = axisNames
	return nil
}

func (p *fakePlanner) FlushLookahead() {}

func (p *fakePlanner) WaitIdle() error { return nil }

// fakeHeaters is a minimal Heaters double with settable current/target
// readings per channel, so M109/M190's wait can be driven step by step.
type fakeHeaters struct {
	current map[string]float64
	target  map[string]float64
	fault   map[string]bool
}

func newFakeHeaters() *fakeHeaters {
	return &fakeHeaters{
		current: make(map[string]float64),
		target:  make(map[string]float64),
		fault:   make(map[string]bool),
	}
}

func (h *fakeHeaters) SetTarget(name string, celsius float64) error {
	h.target[name] = celsius
	return nil
}

func (h *fakeHeaters) Reading(name string) (current, target float64, ok bool) {
	c, ok := h.current[name]
	return c, h.target[name], ok
}

func (h *fakeHeaters) Faulted(name string) bool { return h.fault[name] }

// fakeFans is a minimal Fans double recording the last SetSpeed call.
type fakeFans struct {
	speeds map[string]float64
}

func newFakeFans() *fakeFans {
	return &fakeFans{speeds: make(map[string]float64)}
}

func (f *fakeFans) SetSpeed(name string, duty float64) error {
	f.speeds[name] = duty
	return nil
}

func testConfig() *standalone.MachineConfig {
	return &standalone.MachineConfig{
		Kinematics:      "cartesian",
		DefaultVelocity: 50,
		DefaultAccel:    1000,
	}
}

func newTestInterpreter() (*Interpreter, *fakePlanner, *fakeHeaters, *fakeFans) {
	p := &fakePlanner{}
	h := newFakeHeaters()
	f := newFakeFans()
	interp := NewInterpreter(testConfig(), p, h, f)
	return interp, p, h, f
}

func exec(t *testing.T, interp *Interpreter, parser *Parser, line string) {
	t.Helper()
	cmd, err := parser.ParseLine(line)
	require.NoError(t, err)
	require.NoError(t, interp.Execute(cmd))
}

func TestG1MoveUpdatesPositionAndQueuesMove(t *testing.T) {
	interp, planner, _, _ := newTestInterpreter()
	parser := NewParser()

	exec(t, interp, parser, "G1 X10 Y20 Z1 F3000")

	require.NotNil(t, planner.lastMove)
	assert.Equal(t, 10.0, planner.lastMove.End.X)
	assert.Equal(t, 20.0, planner.lastMove.End.Y)
	assert.Equal(t, 1.0, planner.lastMove.End.Z)
	assert.InDelta(t, 50.0, interp.state.FeedRate, 1e-9) // 3000 mm/min -> 50 mm/s
}

func TestG1RelativeModeAccumulatesFromCurrentPosition(t *testing.T) {
	interp, planner, _, _ := newTestInterpreter()
	parser := NewParser()

	exec(t, interp, parser, "G1 X10 Y10")
	exec(t, interp, parser, "G91")
	exec(t, interp, parser, "G1 X5 Y5")

	assert.Equal(t, 15.0, planner.lastMove.End.X)
	assert.Equal(t, 15.0, planner.lastMove.End.Y)
}

func TestG1ZeroDistanceMoveIsSkipped(t *testing.T) {
	interp, planner, _, _ := newTestInterpreter()
	parser := NewParser()

	exec(t, interp, parser, "G1 X10 Y10")
	planner.lastMove = nil

	exec(t, interp, parser, "G1 X10 Y10")
	assert.Nil(t, planner.lastMove, "a move with no actual travel should never reach the planner")
}

func TestG28HomesRequestedAxesOnly(t *testing.T) {
	interp, planner, _, _ := newTestInterpreter()
	parser := NewParser()

	exec(t, interp, parser, "G28 X Y")

	assert.ElementsMatch(t, []string{"x", "y"}, planner.homedAxes)
	assert.True(t, interp.state.Homed[0])
	assert.True(t, interp.state.Homed[1])
	assert.False(t, interp.state.Homed[2])
}

func TestG28WithNoAxesHomesAllThree(t *testing.T) {
	interp, planner, _, _ := newTestInterpreter()
	parser := NewParser()

	exec(t, interp, parser, "G28")

	assert.ElementsMatch(t, []string{"x", "y", "z"}, planner.homedAxes)
}

func TestG92SetsPositionWithoutMoving(t *testing.T) {
	interp, planner, _, _ := newTestInterpreter()
	parser := NewParser()

	exec(t, interp, parser, "G92 X0 Y0 E0")

	assert.Equal(t, standalone.Position{X: 0, Y: 0, Z: 0, E: 0}, planner.pos)
	assert.Nil(t, planner.lastMove)
}

func TestM106SetsFanSpeedFromSParameter(t *testing.T) {
	interp, _, _, fans := newTestInterpreter()
	parser := NewParser()

	exec(t, interp, parser, "M106 S127.5")

	assert.InDelta(t, 0.5, fans.speeds["part_cooling"], 0.01)
}

func TestM107TurnsFanOff(t *testing.T) {
	interp, _, _, fans := newTestInterpreter()
	parser := NewParser()

	exec(t, interp, parser, "M106 S255")
	exec(t, interp, parser, "M107")

	assert.Equal(t, 0.0, fans.speeds["part_cooling"])
}

func TestM104SetsTargetWithoutArmingWait(t *testing.T) {
	interp, _, heaters, _ := newTestInterpreter()
	parser := NewParser()

	exec(t, interp, parser, "M104 S200")

	assert.Equal(t, 200.0, heaters.target["extruder"])
	assert.Equal(t, "", interp.state.WaitingForTemp)
}

func TestM109ArmsWaitUntilTemperatureSettles(t *testing.T) {
	interp, _, heaters, _ := newTestInterpreter()
	parser := NewParser()
	heaters.current["extruder"] = 20

	exec(t, interp, parser, "M109 S200")
	assert.Equal(t, "extruder", interp.state.WaitingForTemp)

	assert.False(t, interp.PollWait(), "wait should not clear while far from target")

	heaters.current["extruder"] = 199
	assert.True(t, interp.PollWait(), "wait should clear once within tolerance")
	assert.Equal(t, "", interp.state.WaitingForTemp)
}

func TestM109WaitClearsImmediatelyOnHeaterFault(t *testing.T) {
	interp, _, heaters, _ := newTestInterpreter()
	parser := NewParser()
	heaters.current["extruder"] = 20
	heaters.fault["extruder"] = true

	exec(t, interp, parser, "M109 S200")
	assert.True(t, interp.PollWait(), "a faulted heater must not hang the wait forever")
}

func TestM105ReportsConfiguredHeatersOnly(t *testing.T) {
	interp, _, heaters, _ := newTestInterpreter()
	parser := NewParser()
	heaters.current["extruder"] = 205.1
	heaters.target["extruder"] = 210
	// bed intentionally left unset/unconfigured (Reading returns ok=false)

	exec(t, interp, parser, "M105")
	out := interp.TakeOutput()

	require.Len(t, out, 1)
	assert.Equal(t, "T:205.1 /210.0", out[0])
}

func TestM114ReportsCurrentPosition(t *testing.T) {
	interp, planner, _, _ := newTestInterpreter()
	parser := NewParser()
	planner.pos = standalone.Position{X: 1, Y: 2, Z: 3, E: 4}

	exec(t, interp, parser, "M114")
	out := interp.TakeOutput()

	require.Len(t, out, 1)
	assert.Equal(t, "X:1.00 Y:2.00 Z:3.00 E:4.00", out[0])
}

func TestT0ToolChangeIsANoOp(t *testing.T) {
	interp, planner, _, _ := newTestInterpreter()
	parser := NewParser()

	exec(t, interp, parser, "T0")
	assert.Nil(t, planner.lastMove)
}

func TestMoveErrorPropagatesFromPlanner(t *testing.T) {
	interp, planner, _, _ := newTestInterpreter()
	parser := NewParser()
	planner.rejectMoves = true

	cmd, err := parser.ParseLine("G1 X10")
	require.NoError(t, err)
	assert.Error(t, interp.Execute(cmd))
}
