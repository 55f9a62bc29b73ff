// Package itersolve turns a trapq move segment into discrete step
// times for a single axis. Ported from itersolve.c's bisection +
// Newton-Raphson root finder (itersolve_find_step_time): the axis
// position is a monotonic function of time within one move, so each
// step boundary's exact time is found by bracketing then refining
// rather than inverting the trapezoid's phase equations directly.
package itersolve

import "gopper/standalone/trapq"

// maxIterations and tolerance match the bracketed-bisection root
// finder's budget in itersolve.c.
const (
	maxIterations = 50
	tolerance     = 1e-9
)

// StepTime is one generated step boundary: fire at Time seconds after
// the move's own PrintTime, in direction Dir (+1/-1).
type StepTime struct {
	Time float64
	Dir  int8
}

// GenerateSteps walks move along axis and emits one StepTime per
// stepDist millimetres of travel; stepDist's sign gives the step
// direction. Returns nil if the move carries no travel on this axis.
func GenerateSteps(m *trapq.Move, axis int, stepDist float64) []StepTime {
	if stepDist == 0 {
		return nil
	}
	duration := m.Duration()
	if duration <= 0 {
		return nil
	}

	start := m.Coord(axis, 0)
	end := m.Coord(axis, duration)
	if end == start {
		return nil
	}

	dir := int8(1)
	if stepDist < 0 {
		dir = -1
	}

	var out []StepTime
	for n := 1; ; n++ {
		target := start + float64(n)*stepDist
		if dir > 0 && target > end+stepDist/2 {
			break
		}
		if dir < 0 && target < end+stepDist/2 {
			break
		}
		t := findStepTime(m, axis, target, 0, duration)
		out = append(out, StepTime{Time: t, Dir: dir})
	}
	return out
}

// findStepTime solves m.Coord(axis, t) == target for t in [lo, hi],
// which the caller guarantees is monotonic over that interval (a
// single move's distance function is monotonic in t by construction).
// Bisection first brackets the root to within tolerance; a short
// Newton-Raphson pass over a central-difference derivative then
// sharpens it, exactly as itersolve_find_step_time does.
func findStepTime(m *trapq.Move, axis int, target, lo, hi float64) float64 {
	f := func(t float64) float64 { return m.Coord(axis, t) - target }

	increasing := f(lo) <= f(hi)

	t := 0.5 * (lo + hi)
	for i := 0; i < maxIterations && hi-lo > tolerance; i++ {
		t = 0.5 * (lo + hi)
		if (f(t) < 0) == increasing {
			lo = t
		} else {
			hi = t
		}
	}

	const h = 1e-7
	for i := 0; i < 4; i++ {
		deriv := (f(t+h) - f(t-h)) / (2 * h)
		if deriv == 0 {
			break
		}
		next := t - f(t)/deriv
		if next < lo-tolerance || next > hi+tolerance {
			break
		}
		t = next
	}
	return t
}
