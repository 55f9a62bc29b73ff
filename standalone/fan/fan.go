// Package fan implements soft-PWM fan-speed control: clamped duty,
// zero-disable, and a brief full-power kickstart so a part-cooling or
// hotend-auxiliary fan can overcome static friction from a stop.
// Grounded in the same GPIO-toggle-from-timer mechanism as the heater
// channel (core.DigitalOut), since this firmware drives fans without
// a hardware PWM peripheral.
package fan

import "gopper/core"

// Config carries one fan channel's tuning.
type Config struct {
	CycleTicks  uint32  // soft-PWM cycle length
	KickstartMS uint32  // full-power duration when leaving zero duty
	OffBelow    float64 // duty (0-1) below which the fan is disabled outright
}

// Fan is one soft-PWM fan channel.
type Fan struct {
	cfg    Config
	out    *core.DigitalOut
	duty   float64
	kicker core.Timer
}

// New creates a fan channel driving out.
func New(cfg Config, out *core.DigitalOut) *Fan {
	if cfg.CycleTicks == 0 {
		cfg.CycleTicks = core.TimerFreq / 100 // 100Hz default
	}
	f := &Fan{cfg: cfg, out: out}
	f.kicker.Handler = f.endKickstart
	return f
}

// SetSpeed sets the fan duty cycle, clamped to [0,1]. A rise from zero
// to a duty at or above OffBelow drives the output fully on for
// KickstartMS before settling to the requested duty, so the fan can
// break static friction; a request below OffBelow disables the
// channel outright rather than running at an ineffective trickle.
func (f *Fan) SetSpeed(duty float64) {
	if duty < 0 {
		duty = 0
	}
	if duty > 1 {
		duty = 1
	}

	wasOff := f.duty <= 0
	f.duty = duty

	if duty < f.cfg.OffBelow {
		core.CancelTimer(&f.kicker)
		_ = f.out.SetImmediate(false)
		return
	}

	if wasOff && f.cfg.KickstartMS > 0 {
		_ = f.out.SetImmediate(true)
		f.kicker.WakeTime = core.GetTime() + core.TimerFromUS(f.cfg.KickstartMS*1000)
		core.ScheduleTimer(&f.kicker)
		return
	}

	f.applyDuty()
}

func (f *Fan) endKickstart(t *core.Timer) uint8 {
	f.applyDuty()
	return core.SF_DONE
}

func (f *Fan) applyDuty() {
	if f.duty <= 0 {
		_ = f.out.SetImmediate(false)
		return
	}
	if f.duty >= 1 {
		_ = f.out.SetImmediate(true)
		return
	}
	_ = f.out.SetDutyCycle(f.cfg.CycleTicks, uint32(f.duty*float64(f.cfg.CycleTicks)))
}

// Speed returns the last commanded duty.
func (f *Fan) Speed() float64 { return f.duty }
