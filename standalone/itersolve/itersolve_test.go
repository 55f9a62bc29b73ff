package itersolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gopper/standalone/trapq"
)

// constVelocityMove travels distance mm at a constant v mm/s (a scalar
// speed) along axis 0, in direction dir (+1 or -1).
func constVelocityMove(distance, v, dir float64) *trapq.Move {
	return &trapq.Move{
		StartPos: [trapq.NumAxes]float64{0, 0, 0, 0},
		AxisD:    [trapq.NumAxes]float64{dir, 0, 0, 0},
		StartV:   v,
		CruiseV:  v,
		CruiseT:  distance / v,
	}
}

func TestGenerateStepsConstantVelocity(t *testing.T) {
	m := constVelocityMove(10, 10, 1) // 1s @ 10mm/s, 1mm per step
	steps := GenerateSteps(m, 0, 1.0)

	assert.Len(t, steps, 10)
	for i, s := range steps {
		assert.Equal(t, int8(1), s.Dir)
		expected := float64(i+1) / 10.0
		assert.InDelta(t, expected, s.Time, 1e-6)
	}
}

func TestGenerateStepsNegativeDirection(t *testing.T) {
	m := constVelocityMove(10, 10, -1)
	steps := GenerateSteps(m, 0, -1.0)

	assert.Len(t, steps, 10)
	for _, s := range steps {
		assert.Equal(t, int8(-1), s.Dir)
	}
}

func TestGenerateStepsNoTravelOnAxis(t *testing.T) {
	m := &trapq.Move{
		StartPos: [trapq.NumAxes]float64{0, 0, 0, 0},
		AxisD:    [trapq.NumAxes]float64{1, 0, 0, 0},
		StartV:   10,
		CruiseV:  10,
		CruiseT:  1,
	}
	// Axis 1 (Y) carries no direction component, so there is nothing to step.
	steps := GenerateSteps(m, 1, 1.0)
	assert.Nil(t, steps)
}

func TestGenerateStepsZeroDuration(t *testing.T) {
	m := &trapq.Move{}
	steps := GenerateSteps(m, 0, 1.0)
	assert.Nil(t, steps)
}

func TestGenerateStepsAcceleratingMove(t *testing.T) {
	m := &trapq.Move{
		StartPos: [trapq.NumAxes]float64{0, 0, 0, 0},
		AxisD:    [trapq.NumAxes]float64{1, 0, 0, 0},
		StartV:   0,
		CruiseV:  10,
		Accel:    10,
		AccelT:   1, // 0 -> 10mm/s over 1s, covering 5mm
	}
	steps := GenerateSteps(m, 0, 1.0)
	a := assert.New(t)
	a.NotEmpty(steps)

	// Steps should land at monotonically increasing times and each
	// boundary's distance should match the analytic 0.5*accel*t^2.
	for i, s := range steps {
		expectedDist := float64(i + 1)
		t2 := 2 * expectedDist / m.Accel
		a.InDelta(sqrtApprox(t2), s.Time, 1e-4)
	}
}

func sqrtApprox(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
