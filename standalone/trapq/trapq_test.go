package trapq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopper/standalone/errs"
)

func straightMove(printTime, distance, v float64) Move {
	return Move{
		PrintTime: printTime,
		StartPos:  [NumAxes]float64{0, 0, 0, 0},
		AxisD:     [NumAxes]float64{1, 0, 0, 0},
		StartV:    v,
		CruiseV:   v,
		Accel:     0,
		CruiseT:   distance / v,
	}
}

func TestMoveDistanceAndCoord(t *testing.T) {
	m := Move{
		StartPos: [NumAxes]float64{10, 0, 0, 0},
		AxisD:    [NumAxes]float64{1, 0, 0, 0},
		StartV:   0,
		CruiseV:  10,
		Accel:    5,
		AccelT:   2, // reaches 10mm/s after 2s, covering 10mm
		CruiseT:  1, // +10mm
		DecelT:   2, // back to 0, +10mm
	}

	assert.InDelta(t, 0, m.Distance(0), 1e-9)
	assert.InDelta(t, 10, m.Distance(2), 1e-9)
	assert.InDelta(t, 20, m.Distance(3), 1e-9)
	assert.InDelta(t, 30, m.Distance(5), 1e-9)
	assert.InDelta(t, 40, m.Coord(0, 5), 1e-9)
	assert.InDelta(t, 1, m.Duration()-m.AccelT-m.DecelT, 1e-9)
}

func TestQueueAppendAndGetPosition(t *testing.T) {
	q := NewQueue()

	m1 := straightMove(0, 10, 10)
	_, err := q.Append(m1)
	require.NoError(t, err)

	// Mid-move position.
	pos := q.GetPosition(0.5)
	assert.InDelta(t, 5, pos[0], 1e-9)

	// Past the queue's only move clamps to its end.
	pos = q.GetPosition(100)
	assert.InDelta(t, 10, pos[0], 1e-9)

	// Before everything clamps to the start.
	pos = q.GetPosition(-5)
	assert.InDelta(t, 0, pos[0], 1e-9)
}

func TestQueueFinalizeMovesRetainsHistory(t *testing.T) {
	q := NewQueue()

	m1 := straightMove(0, 10, 10) // ends at t=1
	_, err := q.Append(m1)
	require.NoError(t, err)

	q.FinalizeMoves(1.0)
	assert.Empty(t, q.Active())

	// A position query shortly after the move finished still resolves
	// against history, not the zero-value fallback.
	pos := q.GetPosition(1.0)
	assert.InDelta(t, 10, pos[0], 1e-9)
}

func TestQueuePoolExhaustion(t *testing.T) {
	q := NewQueue()
	for i := 0; i < MaxMoves; i++ {
		_, err := q.Append(straightMove(float64(i), 1, 1))
		require.NoError(t, err)
	}

	_, err := q.Append(straightMove(float64(MaxMoves), 1, 1))
	assert.ErrorIs(t, err, errs.ErrPoolExhausted)
}

func TestQueueReset(t *testing.T) {
	q := NewQueue()
	_, err := q.Append(straightMove(0, 10, 10))
	require.NoError(t, err)

	q.Reset()
	assert.Empty(t, q.Active())
	pos := q.GetPosition(5)
	assert.Equal(t, [NumAxes]float64{}, pos)
}
