// Package trapq implements the trapezoidal motion queue: a pool-backed
// list of time-parameterized move segments, each with a constant-
// acceleration phase, a constant-velocity cruise phase, and a constant-
// deceleration phase. Ported from the distance/coordinate math in
// chelper/trapq.c, adapted to a fixed-size arena (parallel used-flag
// array, no heap) since this firmware never allocates after boot.
package trapq

import "gopper/standalone/errs"

// NumAxes is the number of logical axes a move segment carries: X, Y,
// Z, and E.
const NumAxes = 4

// MaxMoves bounds how many segments (active + retained history) the
// queue can hold at once.
const MaxMoves = 32

// maxHistory bounds how many completed segments are kept after they
// leave the active list, so position queries shortly after a move
// completes (M114, a homing retract's start position) still resolve.
const maxHistory = 8

// Move is one committed, fully time-parameterized segment: travel
// along the direction AxisD starting at StartPos, accelerating from
// StartV to CruiseV over AccelT, cruising for CruiseT, then
// decelerating from CruiseV at Accel over DecelT.
type Move struct {
	PrintTime float64 // absolute queue time this segment starts at, seconds
	StartPos  [NumAxes]float64
	AxisD     [NumAxes]float64 // unit-ish direction: sum of squares == 1 for a move with travel

	StartV  float64
	CruiseV float64
	Accel   float64 // shared magnitude of both the accel and decel ramps

	AccelT  float64
	CruiseT float64
	DecelT  float64

	next *Move
}

// Duration returns the total time this move occupies.
func (m *Move) Duration() float64 {
	return m.AccelT + m.CruiseT + m.DecelT
}

// EndTime returns the absolute time the move completes.
func (m *Move) EndTime() float64 {
	return m.PrintTime + m.Duration()
}

// Distance returns the distance travelled along AxisD by move-relative
// time t (0 <= t <= Duration()).
func (m *Move) Distance(t float64) float64 {
	switch {
	case t < m.AccelT:
		return m.StartV*t + 0.5*m.Accel*t*t
	case t < m.AccelT+m.CruiseT:
		accelDist := m.StartV*m.AccelT + 0.5*m.Accel*m.AccelT*m.AccelT
		return accelDist + m.CruiseV*(t-m.AccelT)
	default:
		accelDist := m.StartV*m.AccelT + 0.5*m.Accel*m.AccelT*m.AccelT
		cruiseDist := accelDist + m.CruiseV*m.CruiseT
		dt := t - m.AccelT - m.CruiseT
		return cruiseDist + m.CruiseV*dt - 0.5*m.Accel*dt*dt
	}
}

// Coord returns the position along axis i at move-relative time t.
func (m *Move) Coord(axis int, t float64) float64 {
	return m.StartPos[axis] + m.AxisD[axis]*m.Distance(t)
}

// Queue is a pool-backed FIFO of committed move segments. Active holds
// segments not yet retired by FinalizeMoves; History holds the most
// recently retired ones, so position queries shortly after a move
// completes can still resolve against it.
type Queue struct {
	pool [MaxMoves]Move
	used [MaxMoves]bool

	activeHead, activeTail   *Move
	historyHead, historyTail *Move
	historyLen               int
}

// NewQueue returns an empty, ready-to-use queue.
func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) alloc() (*Move, error) {
	for i := range q.pool {
		if !q.used[i] {
			q.used[i] = true
			q.pool[i] = Move{}
			return &q.pool[i], nil
		}
	}
	return nil, errs.ErrPoolExhausted
}

func (q *Queue) free(m *Move) {
	for i := range q.pool {
		if &q.pool[i] == m {
			q.used[i] = false
			return
		}
	}
}

// Append commits a new move segment to the back of the active list and
// returns the pool-owned copy.
func (q *Queue) Append(m Move) (*Move, error) {
	slot, err := q.alloc()
	if err != nil {
		return nil, err
	}
	*slot = m
	slot.next = nil
	if q.activeTail == nil {
		q.activeHead = slot
	} else {
		q.activeTail.next = slot
	}
	q.activeTail = slot
	return slot, nil
}

// FinalizeMoves retires every active segment whose EndTime is <= t into
// history, trimming history back to maxHistory entries as it grows.
func (q *Queue) FinalizeMoves(t float64) {
	for q.activeHead != nil && q.activeHead.EndTime() <= t {
		m := q.activeHead
		q.activeHead = m.next
		if q.activeHead == nil {
			q.activeTail = nil
		}
		m.next = nil

		if q.historyTail == nil {
			q.historyHead = m
		} else {
			q.historyTail.next = m
		}
		q.historyTail = m
		q.historyLen++

		for q.historyLen > maxHistory {
			old := q.historyHead
			q.historyHead = old.next
			if q.historyHead == nil {
				q.historyTail = nil
			}
			q.free(old)
			q.historyLen--
		}
	}
}

// GetPosition returns the machine position at time t by walking
// History then Active for the segment covering it. A t before every
// retained segment clamps to the oldest segment's start; a t after
// every segment clamps to the newest segment's end.
func (q *Queue) GetPosition(t float64) [NumAxes]float64 {
	var last *Move
	for m := q.historyHead; m != nil; m = m.next {
		last = m
		if t < m.EndTime() {
			return coordAt(m, clampRel(m, t))
		}
	}
	for m := q.activeHead; m != nil; m = m.next {
		last = m
		if t < m.EndTime() {
			return coordAt(m, clampRel(m, t))
		}
	}
	if last != nil {
		return coordAt(last, last.Duration())
	}
	return [NumAxes]float64{}
}

func clampRel(m *Move, t float64) float64 {
	rel := t - m.PrintTime
	if rel < 0 {
		return 0
	}
	return rel
}

func coordAt(m *Move, t float64) [NumAxes]float64 {
	var out [NumAxes]float64
	for i := 0; i < NumAxes; i++ {
		out[i] = m.Coord(i, t)
	}
	return out
}

// Empty reports whether the queue holds no segments at all, active or
// retired.
func (q *Queue) Empty() bool {
	return q.activeHead == nil && q.historyHead == nil
}

// Active returns the segments not yet retired, in queue order.
func (q *Queue) Active() []*Move {
	var out []*Move
	for m := q.activeHead; m != nil; m = m.next {
		out = append(out, m)
	}
	return out
}

// Reset drops every queued and retained segment.
func (q *Queue) Reset() {
	*q = Queue{}
}
