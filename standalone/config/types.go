package config

// AxisConfig represents configuration for a single axis
type AxisConfig struct {
	StepPin      string  // GPIO pin for step pulses
	DirPin       string  // GPIO pin for direction
	EnablePin    string  // GPIO pin for enable (optional)
	StepsPerMM   float64 // Steps per millimeter
	MaxVelocity  float64 // Maximum velocity (mm/s)
	MaxAccel     float64 // Maximum acceleration (mm/s^2)
	HomingVel    float64 // Homing velocity (mm/s)
	MinPosition  float64 // Minimum position (mm)
	MaxPosition  float64 // Maximum position (mm)
	InvertDir    bool    // Invert direction signal
	InvertEnable bool    // Invert enable signal

	MinStepInterval uint32 // Minimum ticks between successive step edges
	PulseWidthTicks uint32 // Step-pin minimum high time, in ticks (0 = driver default)
}

// EndstopConfig represents configuration for an endstop
type EndstopConfig struct {
	Pin         string  // GPIO pin
	Invert      bool    // Invert signal
	PullUp      bool    // Use pull-up (vs pull-down) input
	RetractDist float64 // Distance (mm) to back off after the first trigger
	RestTime    float64 // Seconds between homing-mode samples
}

// HeaterConfig represents configuration for a heater
type HeaterConfig struct {
	SensorPin string     // ADC pin for thermistor
	HeaterPin string     // GPIO pin for the soft-PWM heater channel
	PID       [3]float64 // PID gains [Kp, Ki, Kd]
	MinTemp   float64    // Minimum safe temperature
	MaxTemp   float64    // Maximum safe temperature
	MaxPower  float64    // Maximum power (0.0-1.0)

	// ProgressGuard thermal-runaway detection, adapted from Klipper's
	// heater "check_gain_time": if the measured temperature hasn't
	// risen by Hysteresis degrees within CheckGainTime seconds of the
	// target being raised above it, the heater is faulted.
	CheckGainTime float64 // seconds (0 disables the guard)
	Hysteresis    float64 // minimum expected temperature rise, degrees C
}

// FanConfig represents configuration for a soft-PWM fan channel.
type FanConfig struct {
	Pin         string  // GPIO pin
	CycleTicks  uint32  // Soft-PWM cycle length, in timer ticks
	KickstartMS uint32  // Full-power kickstart duration when leaving zero
	OffBelow    float64 // Duty (0-1) below which the fan is fully disabled
}

// MachineConfig represents the complete machine configuration
type MachineConfig struct {
	Mode       string                   // "standalone" or "klipper"
	Kinematics string                   // "cartesian", "corexy", "delta"
	Axes       map[string]AxisConfig    // "x", "y", "z", "e", etc.
	Endstops   map[string]EndstopConfig // "x", "y", "z", etc.
	Heaters    map[string]HeaterConfig  // "extruder", "bed", etc.
	Fans       map[string]FanConfig     // "part_cooling", "hotend_aux", etc.

	// Global motion parameters
	DefaultVelocity      float64 // Default feedrate (mm/s)
	DefaultAccel         float64 // Default acceleration (mm/s^2)
	MaxAccelToDecel      float64 // Accel used when re-solving a too-short cruise (mm/s^2)
	JunctionDeviation    float64 // Junction deviation for cornering (mm)
	SquareCornerVelocity float64 // Alternate cornering knob: max velocity through a 90 deg corner (mm/s)

	HomingSpeed   float64 // mm/s during the fast homing pass
	HomingRetract float64 // mm to back off after the first trigger
	HomingTimeout float64 // seconds before a homing pass is abandoned
}
