package core

// Stepper motor control implementation.
//
// Adapted from Klipper-style interval+add step generation to a model where
// each edge's absolute wake-time is supplied by the iterative solver (see
// the standalone/itersolve package) rather than computed locally from a
// constant interval and per-step acceleration term: trapezoidal motion
// does not produce evenly spaced edges, so the driver here is a thin
// consumer of a bounded queue of (time, direction) edges.

import (
	"errors"
)

const (
	// StepperQueueSize bounds how many solver-generated edges may be
	// outstanding for a single axis at once.
	StepperQueueSize = 16

	// DefaultPulseWidthTicks is the default minimum high-time of a step
	// pulse, expressed in timer ticks. Spec Open Question 2: this is a
	// per-stepper configuration knob (PulseWidthTicks), not a hard-coded
	// spin count, because the correct value is driver-IC dependent.
	DefaultPulseWidthTicks = TimerFreq / 500000 // 2us at 12MHz
)

// StepEdge is one scheduled step pulse: fire at Time, in direction Dir
// (+1 forward, -1 reverse).
type StepEdge struct {
	Time uint32
	Dir  int8
}

// Stepper represents a single stepper motor axis.
type Stepper struct {
	// Configuration (from config_stepper command)
	OID             uint8  // Object ID
	StepPin         uint8  // Step pulse output pin
	DirPin          uint8  // Direction output pin
	InvertStep      bool   // Invert step signal polarity
	InvertDir       bool   // Invert direction signal polarity
	MinStepInterval uint32 // Minimum ticks between successive edges (I1)
	PulseWidthTicks uint32 // Minimum step-pin high time, in ticks

	// State
	Position     int64 // Current position in steps (signed)
	lastDir      int8
	lastEdgeTime uint32
	haveLastEdge bool

	// Bounded queue of solver-generated edges awaiting emission.
	Queue     [StepperQueueSize]StepEdge
	QueueHead uint8
	QueueTail uint8

	// Two timers implement the non-blocking pulse: StepTimer fires the
	// rising edge and schedules PulseTimer for the falling edge.
	StepTimer  Timer
	PulseTimer Timer
	pulseUp    bool // true while the step pin is held high awaiting fall

	// Hardware backend
	Backend StepperBackend
}

// Global stepper registry
var (
	steppers     [16]*Stepper // Max 16 steppers
	stepperCount uint8

	// Backend factory function (set by platform-specific code)
	stepperBackendFactory func() StepperBackend
)

// GetStepper returns a stepper by OID
func GetStepper(oid uint8) *Stepper {
	if oid >= stepperCount {
		return nil
	}
	return steppers[oid]
}

// NewStepper creates a new stepper instance
func NewStepper(oid uint8, stepPin, dirPin uint8, invertStep bool, minStepInterval uint32) (*Stepper, error) {
	if oid >= 16 {
		return nil, errors.New("stepper OID exceeds maximum")
	}

	s := &Stepper{
		OID:             oid,
		StepPin:         stepPin,
		DirPin:          dirPin,
		InvertStep:      invertStep,
		MinStepInterval: minStepInterval,
		PulseWidthTicks: DefaultPulseWidthTicks,
	}

	s.StepTimer.Handler = s.stepTimerHandler
	s.PulseTimer.Handler = s.pulseTimerHandler

	if stepperBackendFactory != nil {
		if backend := stepperBackendFactory(); backend != nil {
			if err := s.InitBackend(backend); err != nil {
				return nil, err
			}
		}
	}

	steppers[oid] = s
	if oid >= stepperCount {
		stepperCount = oid + 1
	}

	return s, nil
}

// SetStepperBackendFactory sets the factory function for creating stepper backends
// This should be called by platform-specific initialization code
func SetStepperBackendFactory(factory func() StepperBackend) {
	stepperBackendFactory = factory
}

// InitBackend initializes the hardware backend
func (s *Stepper) InitBackend(backend StepperBackend) error {
	s.Backend = backend
	return backend.Init(s.StepPin, s.DirPin, s.InvertStep, s.InvertDir)
}

// PushEdge enqueues a single step edge at an absolute wake-time produced by
// the iterative solver. It enforces the minimum-step-interval invariant
// (I1) by pushing the edge forward in time if it would otherwise land
// closer than MinStepInterval to the previous queued edge — this should
// never trigger in practice since the solver's segments are themselves
// acceleration-bounded, but the driver must never emit two edges closer
// than the configured minimum regardless of what it is handed.
func (s *Stepper) PushEdge(t uint32, dir int8) error {
	nextTail := (s.QueueTail + 1) % StepperQueueSize
	if nextTail == s.QueueHead {
		return errors.New("stepper edge queue full")
	}

	prev, ok := s.queueBackTime()
	if !ok {
		prev, ok = s.lastEdgeTime, s.haveLastEdge
	}
	if ok && TimeBefore(t, prev+s.MinStepInterval) {
		t = prev + s.MinStepInterval
	}

	// StepTimer is already armed whenever edges are queued or a pulse is
	// in flight; only an idle stepper needs arming here.
	wasIdle := s.QueueHead == s.QueueTail && !s.isRunning()

	s.Queue[s.QueueTail] = StepEdge{Time: t, Dir: dir}
	s.QueueTail = nextTail

	if wasIdle {
		s.armNext()
	}
	return nil
}

// queueBackTime returns the wake-time of the most recently enqueued edge,
// if any are queued.
func (s *Stepper) queueBackTime() (uint32, bool) {
	if s.QueueHead == s.QueueTail {
		return 0, false
	}
	last := (s.QueueTail + StepperQueueSize - 1) % StepperQueueSize
	return s.Queue[last].Time, true
}

func (s *Stepper) isRunning() bool {
	return s.pulseUp
}

// armNext schedules StepTimer for the next queued edge, if any.
func (s *Stepper) armNext() {
	if s.QueueHead == s.QueueTail {
		return
	}
	edge := s.Queue[s.QueueHead]
	s.StepTimer.WakeTime = edge.Time
	ScheduleTimer(&s.StepTimer)
}

// stepTimerHandler fires the rising edge for the head-of-queue entry and
// schedules the falling edge without blocking.
func (s *Stepper) stepTimerHandler(t *Timer) uint8 {
	edge := s.Queue[s.QueueHead]
	s.QueueHead = (s.QueueHead + 1) % StepperQueueSize

	if edge.Dir != s.lastDir {
		s.Backend.SetDirection(edge.Dir < 0)
		s.lastDir = edge.Dir
	}
	s.Backend.Step() // drives the pin high (polarity-aware) inside the backend

	s.pulseUp = true
	s.PulseTimer.WakeTime = edge.Time + s.PulseWidthTicks
	ScheduleTimer(&s.PulseTimer)

	return SF_DONE
}

// pulseTimerHandler fires the falling edge, updates position/bookkeeping,
// and arms the next queued edge if one is present.
func (s *Stepper) pulseTimerHandler(t *Timer) uint8 {
	s.pulseUp = false
	s.Backend.Stop() // drives the pin low; Stop() on the backend clears the pulse

	edgeDir := s.lastDir
	if edgeDir >= 0 {
		s.Position++
	} else {
		s.Position--
	}
	s.lastEdgeTime = t.WakeTime - s.PulseWidthTicks
	s.haveLastEdge = true

	s.armNext()
	return SF_DONE
}

// GetPosition returns the current realised position in steps.
func (s *Stepper) GetPosition() int64 {
	return s.Position
}

// SetPosition forcibly sets the current position without motion (used by
// set-position / G92 handling).
func (s *Stepper) SetPosition(pos int64) {
	s.Position = pos
}

// Stop immediately halts the stepper: the queue is cleared and the step
// timer is cancelled so the next dispatch cannot fire a stale edge.
func (s *Stepper) Stop() {
	CancelTimer(&s.StepTimer)
	if !s.pulseUp {
		CancelTimer(&s.PulseTimer)
	}
	s.QueueHead = 0
	s.QueueTail = 0
	if s.Backend != nil {
		s.Backend.Stop()
	}
}

// StopAll halts every configured stepper.
func StopAll() {
	for i := uint8(0); i < stepperCount; i++ {
		if s := steppers[i]; s != nil {
			s.Stop()
		}
	}
}

// IsActive returns true if the stepper has a pulse in flight or edges
// still queued.
func (s *Stepper) IsActive() bool {
	return s.pulseUp || s.QueueHead != s.QueueTail
}

// QueueCount returns the number of edges currently queued (not counting an
// in-flight pulse).
func (s *Stepper) QueueCount() uint8 {
	if s.QueueTail >= s.QueueHead {
		return s.QueueTail - s.QueueHead
	}
	return StepperQueueSize - s.QueueHead + s.QueueTail
}

// QueueCapacity reports the fixed capacity of the edge queue.
func (s *Stepper) QueueCapacity() uint8 {
	return StepperQueueSize - 1
}
