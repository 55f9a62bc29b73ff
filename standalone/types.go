package standalone

import "gopper/standalone/config"

// Position represents a position in machine coordinates
type Position struct {
	X float64
	Y float64
	Z float64
	E float64 // Extruder
}

// Move represents a planned move with timing information
type Move struct {
	Start    Position
	End      Position
	Velocity float64  // Max velocity (mm/s)
	Accel    float64  // Acceleration (mm/s^2)
	Distance float64  // Total distance (mm)
	Duration uint32   // Duration in timer ticks

	// Trapezoidal profile parameters
	AccelTicks   uint32 // Time spent accelerating
	CruiseTicks  uint32 // Time spent at cruise velocity
	DecelTicks   uint32 // Time spent decelerating
	CruiseVel    float64 // Actual cruise velocity reached
	StartVel     float64 // Starting velocity
	EndVel       float64 // Ending velocity
}

// AxisConfig represents configuration for a single axis
type AxisConfig = config.AxisConfig

// EndstopConfig represents configuration for an endstop
type EndstopConfig = config.EndstopConfig

// HeaterConfig represents configuration for a heater
type HeaterConfig = config.HeaterConfig

// FanConfig represents configuration for a soft-PWM fan channel.
type FanConfig = config.FanConfig

// MachineConfig represents the complete machine configuration
type MachineConfig = config.MachineConfig

// MachineState represents the current machine state
type MachineState struct {
	Position     Position // Current position
	Homed        [4]bool  // Homing status [X, Y, Z, E]
	AbsoluteMode bool     // Absolute (G90) vs relative (G91) positioning
	FeedRate     float64  // Current feedrate (mm/s)
	ExtrudeMode  bool     // Absolute vs relative extrusion
	Temperature  map[string]float64 // Current temperatures
	TargetTemp   map[string]float64 // Target temperatures

	// WaitingForTemp names the heater an M109/M190 is blocked on, or ""
	// if none is in progress. The interpreter holds "ok" back on the
	// line that set this until the heater reports close enough to
	// target; this is cooperative (polled every tick), never a blocking
	// wait, so the scheduler and serial line keep running underneath it.
	WaitingForTemp string
}

// GCodeCommand represents a parsed G-code command
type GCodeCommand struct {
	Type       byte             // 'G', 'M', 'T'
	Number     int              // Command number (e.g., 0 for G0, 28 for G28)
	Parameters map[byte]float64 // Parameters (X, Y, Z, E, F, S, etc.)
	Comment    string           // Comment text
}

// HasParameter reports whether param was present on the command line.
func (cmd *GCodeCommand) HasParameter(param byte) bool {
	_, ok := cmd.Parameters[param]
	return ok
}

// GetParameter returns param's value, or defaultValue if it wasn't given.
func (cmd *GCodeCommand) GetParameter(param byte, defaultValue float64) float64 {
	if val, ok := cmd.Parameters[param]; ok {
		return val
	}
	return defaultValue
}
