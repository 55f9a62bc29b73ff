// Package config loads the machine configuration from either JSON or
// YAML, with YAML preferred for hand-edited printer configs (matching
// the layout Klipper's own printer.cfg-adjacent tooling favors) and JSON
// kept for programmatic/test configs.
package config

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// LoadConfig parses a JSON-encoded configuration and returns a
// MachineConfig with defaults applied.
func LoadConfig(jsonData []byte) (*MachineConfig, error) {
	var config MachineConfig
	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, err
	}
	applyDefaults(&config)
	return &config, nil
}

// LoadYAMLConfig parses a YAML-encoded configuration and returns a
// MachineConfig with defaults applied.
func LoadYAMLConfig(yamlData []byte) (*MachineConfig, error) {
	var config MachineConfig
	if err := yaml.NewDecoder(bytes.NewReader(yamlData)).Decode(&config); err != nil {
		return nil, err
	}
	applyDefaults(&config)
	return &config, nil
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(config *MachineConfig) {
	if config.Mode == "" {
		config.Mode = "standalone"
	}
	if config.Kinematics == "" {
		config.Kinematics = "cartesian"
	}

	if config.DefaultVelocity == 0 {
		config.DefaultVelocity = 50.0 // 50 mm/s
	}
	if config.DefaultAccel == 0 {
		config.DefaultAccel = 500.0 // 500 mm/s^2
	}
	if config.MaxAccelToDecel == 0 {
		config.MaxAccelToDecel = config.DefaultAccel
	}
	if config.JunctionDeviation == 0 {
		config.JunctionDeviation = 0.05 // 0.05mm
	}
	if config.SquareCornerVelocity == 0 {
		config.SquareCornerVelocity = 5.0
	}
	if config.HomingSpeed == 0 {
		config.HomingSpeed = 10.0
	}
	if config.HomingRetract == 0 {
		config.HomingRetract = 5.0
	}
	if config.HomingTimeout == 0 {
		config.HomingTimeout = 30.0
	}

	for name, axis := range config.Axes {
		if axis.MaxVelocity == 0 {
			axis.MaxVelocity = 300.0
		}
		if axis.MaxAccel == 0 {
			axis.MaxAccel = 1000.0
		}
		if axis.HomingVel == 0 {
			axis.HomingVel = 5.0
		}
		if axis.StepsPerMM == 0 {
			axis.StepsPerMM = 80.0 // Common value
		}
		if axis.MinStepInterval == 0 {
			axis.MinStepInterval = 8 // ticks, conservative floor well under any driver's max step rate
		}
		config.Axes[name] = axis
	}

	for name, endstop := range config.Endstops {
		if endstop.RestTime == 0 {
			endstop.RestTime = 0.001
		}
		if endstop.RetractDist == 0 {
			endstop.RetractDist = config.HomingRetract
		}
		config.Endstops[name] = endstop
	}

	for name, heater := range config.Heaters {
		if heater.MaxTemp == 0 {
			heater.MaxTemp = 300.0
		}
		if heater.MaxPower == 0 {
			heater.MaxPower = 1.0
		}
		config.Heaters[name] = heater
	}

	for name, fan := range config.Fans {
		if fan.OffBelow == 0 {
			fan.OffBelow = 0.05
		}
		config.Fans[name] = fan
	}
}

// DefaultCartesianConfig returns a default configuration for a Cartesian printer
func DefaultCartesianConfig() *MachineConfig {
	cfg := &MachineConfig{
		Mode:       "standalone",
		Kinematics: "cartesian",
		Axes: map[string]AxisConfig{
			"x": {
				StepPin:     "gpio0",
				DirPin:      "gpio1",
				EnablePin:   "gpio8",
				StepsPerMM:  80.0,
				MaxVelocity: 300.0,
				MaxAccel:    3000.0,
				HomingVel:   50.0,
				MinPosition: 0.0,
				MaxPosition: 220.0,
			},
			"y": {
				StepPin:     "gpio2",
				DirPin:      "gpio3",
				EnablePin:   "gpio8",
				StepsPerMM:  80.0,
				MaxVelocity: 300.0,
				MaxAccel:    3000.0,
				HomingVel:   50.0,
				MinPosition: 0.0,
				MaxPosition: 220.0,
			},
			"z": {
				StepPin:     "gpio4",
				DirPin:      "gpio5",
				EnablePin:   "gpio8",
				StepsPerMM:  400.0,
				MaxVelocity: 10.0,
				MaxAccel:    100.0,
				HomingVel:   5.0,
				MinPosition: 0.0,
				MaxPosition: 250.0,
			},
			"e": {
				StepPin:     "gpio6",
				DirPin:      "gpio7",
				EnablePin:   "gpio8",
				StepsPerMM:  96.0,
				MaxVelocity: 50.0,
				MaxAccel:    5000.0,
				HomingVel:   0.0,
				MinPosition: -10000.0,
				MaxPosition: 10000.0,
			},
		},
		Endstops: map[string]EndstopConfig{
			"x": {Pin: "gpio20", Invert: false, PullUp: true},
			"y": {Pin: "gpio21", Invert: false, PullUp: true},
			"z": {Pin: "gpio22", Invert: false, PullUp: true},
		},
		Heaters: map[string]HeaterConfig{
			"extruder": {
				SensorPin:     "ADC0",
				HeaterPin:     "gpio10",
				PID:           [3]float64{0.1, 0.5, 0.05},
				MinTemp:       0.0,
				MaxTemp:       300.0,
				MaxPower:      1.0,
				CheckGainTime: 20.0,
				Hysteresis:    1.0,
			},
			"bed": {
				SensorPin:     "ADC1",
				HeaterPin:     "gpio11",
				PID:           [3]float64{0.2, 1.0, 0.1},
				MinTemp:       0.0,
				MaxTemp:       150.0,
				MaxPower:      1.0,
				CheckGainTime: 60.0,
				Hysteresis:    1.0,
			},
		},
		Fans: map[string]FanConfig{
			"part_cooling": {
				Pin:         "gpio12",
				KickstartMS: 100,
				OffBelow:    0.05,
			},
		},
		DefaultVelocity:      50.0,
		DefaultAccel:         500.0,
		MaxAccelToDecel:      500.0,
		JunctionDeviation:    0.05,
		SquareCornerVelocity: 5.0,
		HomingSpeed:          10.0,
		HomingRetract:        5.0,
		HomingTimeout:        30.0,
	}
	applyDefaults(cfg)
	return cfg
}
