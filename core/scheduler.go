package core

// Timer represents a scheduled event. At most one instance of a given
// Timer is ever enqueued in the wheel at a time; the wheel borrows it while
// enqueued and the caller retains ownership otherwise.
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var (
	timerList   *Timer
	currentTime uint32
)

// TimeBefore reports whether t1 is before t2 on the wrap-around 32-bit
// microsecond clock, using the signed-difference comparison required for
// correctness across the 2^32 rollover: t1 is before t2 iff
// (int32)(t1-t2) < 0. Plain unsigned comparison breaks near rollover and
// must never be used in its place.
func TimeBefore(t1, t2 uint32) bool {
	return int32(t1-t2) < 0
}

// TimeBeforeEq reports whether t1 is before or equal to t2 using the same
// wrap-safe signed-difference rule.
func TimeBeforeEq(t1, t2 uint32) bool {
	return int32(t1-t2) <= 0
}

// ScheduleTimer adds a timer to the schedule, inserted in wake-time order.
func ScheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	insertTimer(t)
}

// CancelTimer removes a timer from the schedule if it is currently
// enqueued. It is a no-op if the timer is not present.
func CancelTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	pp := &timerList
	for *pp != nil {
		if *pp == t {
			*pp = t.Next
			t.Next = nil
			return
		}
		pp = &(*pp).Next
	}
}

// insertTimer inserts t in wrap-safe wake-time order. Must be called with
// interrupts disabled.
func insertTimer(t *Timer) {
	pp := &timerList
	for *pp != nil && !TimeBefore(t.WakeTime, (*pp).WakeTime) {
		pp = &(*pp).Next
	}
	t.Next = *pp
	*pp = t
}

// TimerDispatch drains every timer whose wake-time is due, in wake-time
// order. A callback runs with interrupts enabled; if it returns
// SF_RESCHEDULE (after updating its own WakeTime) it is re-inserted for
// that time once it returns, so a due successor in the list is never
// starved by a rescheduling predecessor.
func TimerDispatch() {
	for {
		state := disableInterrupts()
		timer := timerList
		if timer == nil || !TimeBeforeEq(timer.WakeTime, currentTime) {
			restoreInterrupts(state)
			return
		}
		timerList = timer.Next
		timer.Next = nil
		restoreInterrupts(state)

		result := timer.Handler(timer)
		if result == SF_RESCHEDULE {
			ScheduleTimer(timer)
		}
	}
}
