package core

// ADCChannelID identifies a logical ADC channel (a thermistor input,
// typically).
type ADCChannelID uint32

// ADCValue is the raw ADC reading as seen by the rest of the firmware:
// a 12-bit code (0..4095) carried in a uint16; a driver whose hardware
// API returns a wider, scaled sample shifts it back down to 12 bits.
type ADCValue uint16

// ADCConfig is the high-level config the core cares about.
type ADCConfig struct {
	SampleTimeNs uint32
}

// ADCDriver is the abstract ADC interface that core code uses.
// Platform-specific implementations handle actual hardware sampling.
type ADCDriver interface {
	// Init powers up and configures the ADC peripheral.
	Init(cfg ADCConfig) error

	// ConfigureChannel prepares a channel for analog input.
	ConfigureChannel(ch ADCChannelID) error

	// ReadRaw performs a one-shot sample from the given channel.
	ReadRaw(ch ADCChannelID) (ADCValue, error)
}

// Global singleton used by core code.
var adcDriver ADCDriver

// SetADCDriver is called by target-specific code to register its driver.
func SetADCDriver(d ADCDriver) {
	adcDriver = d
}

// MustADC returns the configured driver or panics if missing.
func MustADC() ADCDriver {
	if adcDriver == nil {
		panic("ADC driver not configured")
	}
	return adcDriver
}
