// Endstop handling for GPIO-based homing sensors.
//
// The teacher's two-stage oversampling state machine (a speculative
// match followed by N confirming samples) is simplified here to a
// single-sample-confirms latch: once homing mode is armed, the first
// sample that matches the expected pin state sets Triggered and stops
// sampling. The planner's homing state machine (standalone/planner)
// polls Triggered rather than being called back through a trigger-sync
// object, since this firmware has no separate MCU/host trigger channel
// to synchronize across.
package core

// Endstop flags
const (
	ESF_PIN_HIGH = 1 << 0 // Expected pin state when triggered (1=high, 0=low)
	ESF_HOMING   = 1 << 1 // Currently homing
	ESF_TRIGGERED = 1 << 2 // Latched trigger since homing was armed
)

// Endstop represents a configured GPIO homing sensor.
type Endstop struct {
	Pin      GPIOPin
	Flags    uint8
	Timer    Timer
	RestTime uint32 // ticks between samples while homing
}

// NewEndstop configures pin as an endstop input. pullUp selects a
// pull-up (true) or pull-down (false) input configuration; triggerHigh
// is the pin level that counts as "triggered".
func NewEndstop(pin GPIOPin, pullUp, triggerHigh bool) (*Endstop, error) {
	es := &Endstop{Pin: pin}
	es.Timer.Handler = es.sampleEvent

	var err error
	if pullUp {
		err = MustGPIO().ConfigureInputPullUp(pin)
	} else {
		err = MustGPIO().ConfigureInputPullDown(pin)
	}
	if err != nil {
		return nil, err
	}
	if triggerHigh {
		es.Flags |= ESF_PIN_HIGH
	}
	return es, nil
}

// StartHoming arms sampling: every restTicks the pin is checked, and the
// first matching sample latches Triggered and disarms sampling.
func (es *Endstop) StartHoming(restTicks uint32) {
	CancelTimer(&es.Timer)
	es.Flags |= ESF_HOMING
	es.Flags &^= ESF_TRIGGERED
	es.RestTime = restTicks
	es.Timer.WakeTime = GetTime() + restTicks
	ScheduleTimer(&es.Timer)
}

// StopHoming disarms sampling without clearing a latched trigger, so the
// caller can still observe whether this episode triggered.
func (es *Endstop) StopHoming() {
	es.Flags &^= ESF_HOMING
	CancelTimer(&es.Timer)
}

// Triggered reports whether a sample has matched since StartHoming.
func (es *Endstop) Triggered() bool {
	return es.Flags&ESF_TRIGGERED != 0
}

// Query reads the raw pin state immediately, bypassing homing mode.
func (es *Endstop) Query() bool {
	return MustGPIO().ReadPin(es.Pin)
}

// sampleEvent is the timer callback driving the homing sample loop.
func (es *Endstop) sampleEvent(t *Timer) uint8 {
	if es.Flags&ESF_HOMING == 0 {
		return SF_DONE
	}

	pinHigh := MustGPIO().ReadPin(es.Pin)
	expectHigh := es.Flags&ESF_PIN_HIGH != 0
	if (pinHigh && expectHigh) || (!pinHigh && !expectHigh) {
		es.Flags |= ESF_TRIGGERED
		es.Flags &^= ESF_HOMING
		return SF_DONE
	}

	t.WakeTime += es.RestTime
	return SF_RESCHEDULE
}
