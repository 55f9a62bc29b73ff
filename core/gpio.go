// GPIO (General Purpose Input/Output) support, including the soft-PWM
// channel used by the heater and fan controllers: a GPIO toggled from a
// periodic timer callback rather than a hardware PWM peripheral.
package core

// DigitalOut flags
const (
	DF_ON        = 1 << 0 // Current pin state (1=high, 0=low)
	DF_TOGGLING  = 1 << 1 // Soft-PWM mode active
	DF_CHECK_END = 1 << 2 // Monitor max_duration
)

// DigitalOut represents a configured GPIO output pin, optionally driven as
// a soft-PWM channel (toggled between on/off durations by its own Timer).
type DigitalOut struct {
	Pin    GPIOPin
	Invert bool
	Flags  uint8

	Timer Timer

	OnDuration  uint32 // soft-PWM on time, in ticks
	OffDuration uint32 // soft-PWM off time, in ticks
	CycleTime   uint32 // total soft-PWM cycle time, in ticks
	MaxDuration uint32 // safety cutoff: 0 disables
	EndTime     uint32
}

// NewDigitalOut configures pin as a digital output, initially at
// defaultOn, and returns the channel handle.
func NewDigitalOut(pin GPIOPin, invert, defaultOn bool) (*DigitalOut, error) {
	d := &DigitalOut{Pin: pin, Invert: invert}
	d.Timer.Handler = d.loadEvent

	if err := MustGPIO().ConfigureOutput(pin); err != nil {
		return nil, err
	}
	if err := d.writePin(defaultOn); err != nil {
		return nil, err
	}
	if defaultOn {
		d.Flags |= DF_ON
	}
	return d, nil
}

func (d *DigitalOut) writePin(on bool) error {
	level := on
	if d.Invert {
		level = !on
	}
	return MustGPIO().SetPin(d.Pin, level)
}

// SetImmediate writes the pin state directly and cancels any soft-PWM
// toggling in progress.
func (d *DigitalOut) SetImmediate(on bool) error {
	d.Flags &^= DF_TOGGLING
	CancelTimer(&d.Timer)
	if err := d.writePin(on); err != nil {
		return err
	}
	if on {
		d.Flags |= DF_ON
	} else {
		d.Flags &^= DF_ON
	}
	return nil
}

// SetDutyCycle configures the channel for soft-PWM at the given cycle
// length with onTicks of high time per cycle. onTicks==0 turns the output
// fully off and disables toggling; onTicks>=cycleTicks turns it fully on.
func (d *DigitalOut) SetDutyCycle(cycleTicks, onTicks uint32) error {
	d.CycleTime = cycleTicks
	if onTicks >= cycleTicks {
		return d.SetImmediate(true)
	}
	if onTicks == 0 {
		return d.SetImmediate(false)
	}

	d.OnDuration = onTicks
	d.OffDuration = cycleTicks - onTicks
	d.Flags |= DF_TOGGLING

	CancelTimer(&d.Timer)
	d.Timer.WakeTime = GetTime()
	d.Timer.Handler = d.loadEvent
	ScheduleTimer(&d.Timer)
	return nil
}

// loadEvent starts a soft-PWM cycle: drive the pin on and schedule the
// toggle to off after OnDuration.
func (d *DigitalOut) loadEvent(t *Timer) uint8 {
	if d.Flags&DF_TOGGLING == 0 {
		return SF_DONE
	}
	if err := d.writePin(true); err != nil {
		d.Flags &^= DF_TOGGLING
		return SF_DONE
	}
	d.Flags |= DF_ON
	t.WakeTime = GetTime() + d.OnDuration
	t.Handler = d.toggleEvent
	return SF_RESCHEDULE
}

// toggleEvent alternates the pin between on and off for as long as
// DF_TOGGLING remains set.
func (d *DigitalOut) toggleEvent(t *Timer) uint8 {
	if d.Flags&DF_TOGGLING == 0 {
		return SF_DONE
	}

	newState := d.Flags&DF_ON == 0
	if err := d.writePin(newState); err != nil {
		d.Flags &^= DF_TOGGLING
		return SF_DONE
	}
	if newState {
		d.Flags |= DF_ON
	} else {
		d.Flags &^= DF_ON
	}

	next := d.OffDuration
	if newState {
		next = d.OnDuration
	}
	t.WakeTime += next
	return SF_RESCHEDULE
}

// Shutdown drives the output off (pin low, or high when Invert is set) and
// cancels any soft-PWM in progress.
func (d *DigitalOut) Shutdown() {
	d.Flags &^= DF_TOGGLING | DF_CHECK_END
	CancelTimer(&d.Timer)
	_ = d.writePin(false)
	d.Flags &^= DF_ON
}
