package gcode

import (
	"fmt"

	"gopper/standalone"
)

// Interpreter executes G-code commands
type Interpreter struct {
	state   *standalone.MachineState
	config  *standalone.MachineConfig
	planner Planner // Interface to motion planner
	heaters Heaters
	fans    Fans

	output []string
}

// Planner interface for motion planning
type Planner interface {
	QueueMove(move *standalone.Move) error
	GetCurrentPosition() standalone.Position
	SetPosition(pos standalone.Position)
	ClearQueue()
	Home(axisNames []string, homingSpeed, retractDist, timeoutSeconds float64) error
	FlushLookahead()
	WaitIdle() error
}

// Heaters is the narrow interface the interpreter needs onto the
// machine's heater channels, so M104/M109/M140/M190/M105 stay decoupled
// from the concrete heater package.
type Heaters interface {
	SetTarget(name string, celsius float64) error
	// Reading reports the current and target temperature for name; ok is
	// false if no such heater is configured.
	Reading(name string) (current, target float64, ok bool)
	Faulted(name string) bool
}

// Fans is the narrow interface the interpreter needs onto the machine's
// soft-PWM fan channels (M106/M107).
type Fans interface {
	SetSpeed(name string, duty float64) error
}

// tempTolerance is how close current must get to target before an
// M109/M190 wait is considered satisfied, matching Klipper's
// wait_for_temperature default hysteresis.
const tempTolerance = 2.0

// NewInterpreter creates a new G-code interpreter
func NewInterpreter(config *standalone.MachineConfig, planner Planner, heaters Heaters, fans Fans) *Interpreter {
	return &Interpreter{
		state: &standalone.MachineState{
			Position:     standalone.Position{},
			Homed:        [4]bool{false, false, false, false},
			AbsoluteMode: true,
			FeedRate:     config.DefaultVelocity,
			ExtrudeMode:  false, // Absolute extrusion by default (M82)
			Temperature:  make(map[string]float64),
			TargetTemp:   make(map[string]float64),
		},
		config:  config,
		planner: planner,
		heaters: heaters,
		fans:    fans,
	}
}

// emit queues a response line (distinct from the "ok" line the manager
// sends once the command itself returns).
func (interp *Interpreter) emit(line string) {
	interp.output = append(interp.output, line)
}

// TakeOutput returns and clears any report lines queued by M105/M114/etc.
func (interp *Interpreter) TakeOutput() []string {
	out := interp.output
	interp.output = nil
	return out
}

// PollWait advances a pending M109/M190 temperature wait. It returns
// true once the wait is satisfied (or the heater has faulted, which
// unblocks the line rather than hanging forever), clearing
// state.WaitingForTemp in both cases.
func (interp *Interpreter) PollWait() bool {
	name := interp.state.WaitingForTemp
	if name == "" {
		return true
	}
	if interp.heaters == nil {
		interp.state.WaitingForTemp = ""
		return true
	}
	if interp.heaters.Faulted(name) {
		interp.state.WaitingForTemp = ""
		return true
	}
	current, target, ok := interp.heaters.Reading(name)
	if !ok {
		interp.state.WaitingForTemp = ""
		return true
	}
	interp.state.Temperature[name] = current
	interp.state.TargetTemp[name] = target
	if diff := current - target; diff > -tempTolerance && diff < tempTolerance {
		interp.state.WaitingForTemp = ""
		return true
	}
	return false
}

// Execute executes a parsed G-code command
func (interp *Interpreter) Execute(cmd *standalone.GCodeCommand) error {
	if cmd == nil {
		return nil
	}

	switch cmd.Type {
	case 'G':
		return interp.executeG(cmd)
	case 'M':
		return interp.executeM(cmd)
	case 'T':
		return interp.executeT(cmd)
	}

	return nil
}

// executeG handles G-codes
func (interp *Interpreter) executeG(cmd *standalone.GCodeCommand) error {
	switch cmd.Number {
	case 0, 1: // G0/G1 - Linear move
		return interp.doMove(cmd)
	case 28: // G28 - Home
		return interp.doHome(cmd)
	case 90: // G90 - Absolute positioning
		interp.state.AbsoluteMode = true
	case 91: // G91 - Relative positioning
		interp.state.AbsoluteMode = false
	case 92: // G92 - Set position
		return interp.doSetPosition(cmd)
	}

	return nil
}

// executeM handles M-codes
func (interp *Interpreter) executeM(cmd *standalone.GCodeCommand) error {
	switch cmd.Number {
	case 82: // M82 - Absolute extrusion
		interp.state.ExtrudeMode = false
	case 83: // M83 - Relative extrusion
		interp.state.ExtrudeMode = true
	case 104: // M104 - Set extruder temperature
		return interp.setHeaterTarget(cmd, "extruder", false)
	case 109: // M109 - Set extruder temperature and wait
		return interp.setHeaterTarget(cmd, "extruder", true)
	case 140: // M140 - Set bed temperature
		return interp.setHeaterTarget(cmd, "bed", false)
	case 190: // M190 - Set bed temperature and wait
		return interp.setHeaterTarget(cmd, "bed", true)
	case 106: // M106 - Fan on, optional S0-255
		if interp.fans == nil {
			return nil
		}
		duty := 1.0
		if cmd.HasParameter('S') {
			duty = cmd.GetParameter('S', 255) / 255.0
		}
		return interp.fans.SetSpeed("part_cooling", duty)
	case 107: // M107 - Fan off
		if interp.fans == nil {
			return nil
		}
		return interp.fans.SetSpeed("part_cooling", 0)
	case 114: // M114 - Report current position
		pos := interp.planner.GetCurrentPosition()
		interp.emit(fmt.Sprintf("X:%.2f Y:%.2f Z:%.2f E:%.2f", pos.X, pos.Y, pos.Z, pos.E))
	case 105: // M105 - Report temperatures
		interp.emit(interp.temperatureReport())
	}

	return nil
}

// setHeaterTarget applies M104/M109/M140/M190's S parameter to the named
// heater, arming a non-blocking wait for the *09x variants: the "ok" for
// this line is held back by the caller (via state.WaitingForTemp) until
// PollWait reports the temperature has settled, rather than spinning the
// scheduler in place the way a homing move does.
func (interp *Interpreter) setHeaterTarget(cmd *standalone.GCodeCommand, name string, wait bool) error {
	if !cmd.HasParameter('S') {
		return nil
	}
	temp := cmd.GetParameter('S', 0)
	interp.state.TargetTemp[name] = temp
	if interp.heaters != nil {
		if err := interp.heaters.SetTarget(name, temp); err != nil {
			return err
		}
	}
	if wait {
		interp.state.WaitingForTemp = name
	}
	return nil
}

func (interp *Interpreter) temperatureReport() string {
	line := ""
	for _, name := range []string{"extruder", "bed"} {
		current, target, ok := 0.0, 0.0, false
		if interp.heaters != nil {
			current, target, ok = interp.heaters.Reading(name)
		}
		if !ok {
			continue
		}
		label := "T"
		if name == "bed" {
			label = "B"
		}
		if line != "" {
			line += " "
		}
		line += fmt.Sprintf("%s:%.1f /%.1f", label, current, target)
	}
	return line
}

// executeT handles tool changes. This firmware drives a single fixed
// extruder, so tool selection is a no-op rather than an error: slicers
// commonly emit a T0 at the start of every file.
func (interp *Interpreter) executeT(cmd *standalone.GCodeCommand) error {
	return nil
}

// doMove executes a linear move (G0/G1)
func (interp *Interpreter) doMove(cmd *standalone.GCodeCommand) error {
	// Get current position
	current := interp.planner.GetCurrentPosition()
	target := current

	// Update feedrate if specified
	if cmd.HasParameter('F') {
		interp.state.FeedRate = cmd.GetParameter('F', 0) / 60.0 // Convert mm/min to mm/s
	}

	// Calculate target position
	if interp.state.AbsoluteMode {
		// Absolute positioning
		if cmd.HasParameter('X') {
			target.X = cmd.GetParameter('X', current.X)
		}
		if cmd.HasParameter('Y') {
			target.Y = cmd.GetParameter('Y', current.Y)
		}
		if cmd.HasParameter('Z') {
			target.Z = cmd.GetParameter('Z', current.Z)
		}
	} else {
		// Relative positioning
		if cmd.HasParameter('X') {
			target.X = current.X + cmd.GetParameter('X', 0)
		}
		if cmd.HasParameter('Y') {
			target.Y = current.Y + cmd.GetParameter('Y', 0)
		}
		if cmd.HasParameter('Z') {
			target.Z = current.Z + cmd.GetParameter('Z', 0)
		}
	}

	// Handle extruder
	if cmd.HasParameter('E') {
		if interp.state.ExtrudeMode {
			// Relative extrusion
			target.E = current.E + cmd.GetParameter('E', 0)
		} else {
			// Absolute extrusion
			target.E = cmd.GetParameter('E', current.E)
		}
	}

	// Distance is the full 4D (X,Y,Z,E) Euclidean travel, matching
	// calc_move_distance: an extrude-only move still has nonzero
	// distance even with no XYZ travel.
	dx := target.X - current.X
	dy := target.Y - current.Y
	dz := target.Z - current.Z
	de := target.E - current.E
	distance := sqrt(dx*dx + dy*dy + dz*dz + de*de)

	// Skip if no movement
	if distance < 0.000001 {
		return nil
	}

	// Create move
	move := &standalone.Move{
		Start:    current,
		End:      target,
		Velocity: interp.state.FeedRate,
		Accel:    interp.config.DefaultAccel,
		Distance: distance,
	}

	// Queue move
	return interp.planner.QueueMove(move)
}

// doHome executes homing (G28). With no axis letters it homes X, Y and
// Z (never E, which has no endstop); naming specific axes homes only
// those. The actual approach/retract sequence is delegated to the
// planner, which blocks the main loop for the duration of the pass
// (spinning the scheduler itself) — acceptable here since a homing move
// is bounded and short, unlike a temperature wait.
func (interp *Interpreter) doHome(cmd *standalone.GCodeCommand) error {
	var axes []string
	homeAll := !cmd.HasParameter('X') && !cmd.HasParameter('Y') && !cmd.HasParameter('Z')

	if homeAll || cmd.HasParameter('X') {
		axes = append(axes, "x")
	}
	if homeAll || cmd.HasParameter('Y') {
		axes = append(axes, "y")
	}
	if homeAll || cmd.HasParameter('Z') {
		axes = append(axes, "z")
	}
	if len(axes) == 0 {
		return nil
	}

	err := interp.planner.Home(axes, interp.config.HomingSpeed, interp.config.HomingRetract, interp.config.HomingTimeout)
	if err != nil {
		return err
	}

	axisIndex := map[string]int{"x": 0, "y": 1, "z": 2}
	for _, a := range axes {
		interp.state.Homed[axisIndex[a]] = true
	}
	return nil
}

// doSetPosition sets the current position (G92)
func (interp *Interpreter) doSetPosition(cmd *standalone.GCodeCommand) error {
	current := interp.planner.GetCurrentPosition()

	if cmd.HasParameter('X') {
		current.X = cmd.GetParameter('X', 0)
	}
	if cmd.HasParameter('Y') {
		current.Y = cmd.GetParameter('Y', 0)
	}
	if cmd.HasParameter('Z') {
		current.Z = cmd.GetParameter('Z', 0)
	}
	if cmd.HasParameter('E') {
		current.E = cmd.GetParameter('E', 0)
	}

	interp.planner.SetPosition(current)
	return nil
}

// GetState returns the current machine state
func (interp *Interpreter) GetState() *standalone.MachineState {
	return interp.state
}

// Simple math functions (to avoid importing math for embedded)
func sqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	// Newton's method for square root
	z := x
	for i := 0; i < 10; i++ {
		z = z - (z*z-x)/(2*z)
	}
	return z
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
