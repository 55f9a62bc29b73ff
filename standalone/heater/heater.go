// Package heater implements NTC-thermistor temperature sensing and a
// PID-controlled soft-PWM heater loop, ported from app/heater.c's
// ntc_adc_to_temp table lookup and pid_update anti-windup controller.
// The heater pin is driven through core.DigitalOut's soft-PWM channel
// (a GPIO toggled from a timer callback) rather than hardware PWM,
// matching this firmware's plain step/dir/enable + GPIO pin map.
package heater

import (
	"gopper/core"
	"gopper/standalone/errs"
)

// TempInvalid is returned by ADCToTemp when the raw sample falls
// outside every safe interpretation (wiring fault, disconnected
// thermistor).
const TempInvalid = -9999.0

// Period is the PID control-loop interval, matching Klipper's
// heater sample rate.
const Period = 0.100 // seconds

// integralMax bounds the PID integral term, independent of Ki, so a
// long cold-start error spike cannot wind the integrator up past a
// recoverable range.
const integralMax = 100.0

// ntcEntry is one point of the 100K/Beta-3950 NTC lookup table: a
// 12-bit ADC reading (4.7k pullup, 3.3V reference) and the
// corresponding temperature in tenths of a degree C.
type ntcEntry struct {
	adc  int32
	temp int32
}

// ntcTable is sorted by ascending ADC value (descending temperature),
// matching app/heater.c's s_ntc_table.
var ntcTable = []ntcEntry{
	{23, 3000}, {31, 2900}, {41, 2800}, {54, 2700}, {71, 2600},
	{93, 2500}, {120, 2400}, {154, 2300}, {196, 2200}, {248, 2100},
	{311, 2000}, {386, 1900}, {475, 1800}, {578, 1700}, {696, 1600},
	{829, 1500}, {976, 1400}, {1136, 1300}, {1307, 1200}, {1486, 1100},
	{1670, 1000}, {1855, 900}, {2037, 800}, {2213, 700}, {2379, 600},
	{2534, 500}, {2676, 400}, {2804, 300}, {2918, 200}, {3018, 100},
	{3105, 0}, {3180, -100}, {3244, -200},
}

const adcMaxValue = 4095

// ADCToTemp converts a raw 12-bit ADC reading to a temperature in
// degrees C via binary search and linear interpolation over ntcTable.
// Readings outside the table clamp to the table's extreme temperature;
// readings outside the ADC's own range report TempInvalid (a
// disconnected or shorted sensor).
func ADCToTemp(adc int32) float64 {
	if adc < 0 || adc > adcMaxValue {
		return TempInvalid
	}
	if adc < ntcTable[0].adc {
		return float64(ntcTable[0].temp) / 10.0
	}
	last := len(ntcTable) - 1
	if adc > ntcTable[last].adc {
		return float64(ntcTable[last].temp) / 10.0
	}

	lo, hi := 0, last
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if ntcTable[mid].adc <= adc {
			lo = mid
		} else {
			hi = mid
		}
	}

	adcLo, adcHi := ntcTable[lo].adc, ntcTable[hi].adc
	tempLo, tempHi := ntcTable[lo].temp, ntcTable[hi].temp
	ratio := float64(adc-adcLo) / float64(adcHi-adcLo)
	return (float64(tempLo) + ratio*float64(tempHi-tempLo)) / 10.0
}

// Config carries the heater's tuning and safety parameters.
type Config struct {
	Kp, Ki, Kd    float64
	MinTemp       float64
	MaxTemp       float64
	MaxPower      float64
	CheckGainTime float64 // 0 disables the runaway guard
	Hysteresis    float64
}

// Heater drives one PID-controlled, soft-PWM heater channel.
type Heater struct {
	cfg Config
	adc core.ADCChannelID
	out *core.DigitalOut

	target      float64
	current     float64
	prevError   float64
	integral    float64
	output      float64
	sensorFault bool

	// ProgressGuard: the runaway check armed when a heater leaves idle
	// (target rises above current). guardArmed marks it active;
	// guardElapsed counts the seconds since arming and guardStartTemp is
	// the first temperature sampled after arming, the baseline the rise
	// is measured against.
	guardArmed     bool
	guardElapsed   float64
	guardStartTemp float64
	guardFaulted   bool
}

// New creates a heater on the given ADC channel, driving the soft-PWM
// channel out.
func New(cfg Config, adc core.ADCChannelID, out *core.DigitalOut) *Heater {
	return &Heater{cfg: cfg, adc: adc, out: out}
}

// pidTargetChangeThreshold matches heater_set_temp's guard: only a
// target change bigger than this many degrees resets the integrator
// and derivative history, so small setpoint nudges don't throw away
// an already-settled control loop.
const pidTargetChangeThreshold = 10.0

// SetTarget changes the setpoint. Lowering the target to zero disarms
// the runaway guard; raising it from idle (re)arms it. A change of
// more than pidTargetChangeThreshold degrees resets the PID's integral
// and derivative state, matching heater_set_temp.
func (h *Heater) SetTarget(target float64) {
	if target > h.current && h.target <= h.current {
		h.guardArmed = true
		h.guardElapsed = 0
		h.guardStartTemp = h.current
		h.guardFaulted = false
	}
	if target <= 0 {
		h.guardArmed = false
	}

	delta := target - h.target
	if delta < 0 {
		delta = -delta
	}
	if delta > pidTargetChangeThreshold {
		h.integral = 0
		h.prevError = 0
	}

	h.target = target
}

// Target returns the current setpoint.
func (h *Heater) Target() float64 { return h.target }

// Current returns the most recently sampled temperature.
func (h *Heater) Current() float64 { return h.current }

// Faulted reports whether the sensor is disconnected/invalid or the
// runaway guard has tripped. A faulted heater holds its output off
// until SetTarget(0) then a new positive target clears the fault.
func (h *Heater) Faulted() bool {
	return h.sensorFault || h.guardFaulted
}

// Tick samples the sensor, runs one PID step, updates the runaway
// guard, and drives the soft-PWM output. Call every Period seconds.
func (h *Heater) Tick(dt float64) error {
	raw, err := core.MustADC().ReadRaw(h.adc)
	if err != nil {
		h.sensorFault = true
		h.setDuty(0)
		return errs.ErrSensorInvalid
	}

	temp := ADCToTemp(int32(raw))
	if temp == TempInvalid || temp < h.cfg.MinTemp-5 || temp > h.cfg.MaxTemp+5 {
		h.sensorFault = true
		h.setDuty(0)
		return errs.ErrSensorInvalid
	}
	h.sensorFault = false
	h.current = temp

	h.updateGuard(dt)

	if h.Faulted() || h.target <= 0 {
		h.setDuty(0)
		return nil
	}

	output := h.pidUpdate(temp, dt)
	h.setDuty(output)
	return nil
}

// pidUpdate implements the clamped-integral PID with anti-windup:
// once the output saturates, the just-added error*dt contribution is
// backed back out whenever the error's sign matches the saturating
// direction, so the integral stops accumulating in that direction
// without ever being reset outright.
func (h *Heater) pidUpdate(currentTemp, dt float64) float64 {
	e := h.target - currentTemp

	h.integral += e * dt
	if h.integral > integralMax {
		h.integral = integralMax
	} else if h.integral < -integralMax {
		h.integral = -integralMax
	}

	derivative := (e - h.prevError) / dt
	h.prevError = e

	output := h.cfg.Kp*e + h.cfg.Ki*h.integral + h.cfg.Kd*derivative

	if output < 0 {
		output = 0
		if e < 0 {
			h.integral -= e * dt
		}
	} else if output > h.cfg.MaxPower {
		output = h.cfg.MaxPower
		if e > 0 {
			h.integral -= e * dt
		}
	}

	h.output = output
	return output
}

// updateGuard advances the thermal-runaway check: if CheckGainTime
// seconds pass without the temperature rising by Hysteresis degrees
// over guardStartTemp, the heater is faulted and latched off.
func (h *Heater) updateGuard(dt float64) {
	if !h.guardArmed || h.cfg.CheckGainTime <= 0 {
		return
	}
	if h.guardElapsed == 0 {
		h.guardStartTemp = h.current
	}
	if h.current >= h.guardStartTemp+h.cfg.Hysteresis {
		h.guardArmed = false
		return
	}
	h.guardElapsed += dt
	if h.guardElapsed >= h.cfg.CheckGainTime {
		h.guardFaulted = true
		h.guardArmed = false
	}
}

func (h *Heater) setDuty(power float64) {
	if power <= 0 {
		_ = h.out.SetImmediate(false)
		return
	}
	if power >= 1 {
		_ = h.out.SetImmediate(true)
		return
	}
	const cycleHz = 10 // soft-PWM frequency for a slow-responding heater element
	cycle := uint32(core.TimerFreq / cycleHz)
	_ = h.out.SetDutyCycle(cycle, uint32(power*float64(cycle)))
}
