package standalone

import (
	"strconv"
	"strings"

	"gopper/core"
	"gopper/standalone/errs"
)

// ParsePin resolves a config pin name ("gpio5") to a core.GPIOPin. This
// firmware has no protocol-level pin dictionary to register against, so
// the mapping is a plain numeric parse of the platform's "gpioN" naming.
func ParsePin(name string) (core.GPIOPin, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(name), "gpio")
	if trimmed == name || trimmed == "" {
		return 0, errs.ErrBadArgument
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 {
		return 0, errs.ErrBadArgument
	}
	return core.GPIOPin(n), nil
}

// ParseADCChannel resolves a config pin name ("ADC0", "ADC_TEMPERATURE")
// to a core.ADCChannelID.
func ParseADCChannel(name string) (core.ADCChannelID, error) {
	upper := strings.ToUpper(name)
	if upper == "ADC_TEMPERATURE" {
		return core.ADCChannelID(0xff), nil
	}
	trimmed := strings.TrimPrefix(upper, "ADC")
	if trimmed == upper || trimmed == "" {
		return 0, errs.ErrBadArgument
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 {
		return 0, errs.ErrBadArgument
	}
	return core.ADCChannelID(n), nil
}
