package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrocore/entity"
)

func TestEvaluateZeroPointsIsIdentity(t *testing.T) {
	s := New(nil)
	assert.Equal(t, 12.5, s.Evaluate(12.5))
}

func TestEvaluateOnePointIsOffset(t *testing.T) {
	s := New([]entity.CalibrationPoint{{Raw: 100, Real: 103}})
	assert.Equal(t, 3.0, s.Evaluate(0))
	assert.Equal(t, 103.0, s.Evaluate(100))
}

func TestEvaluatePHTwoPointExample(t *testing.T) {
	// spec.md §8 scenario 1: {0.5V -> 7.00, 3.0V -> 4.00}, raw 1.75V -> pH 5.50.
	s := New([]entity.CalibrationPoint{
		{Raw: 0.5, Real: 7.00},
		{Raw: 3.0, Real: 4.00},
	})
	require.InDelta(t, 5.50, s.Evaluate(1.75), 1e-9)
}

func TestEvaluateReproducesStoredPoints(t *testing.T) {
	s := New([]entity.CalibrationPoint{
		{Raw: 0, Real: 0},
		{Raw: 10, Real: 5},
		{Raw: 20, Real: 9},
	})
	for _, p := range s.Points() {
		assert.InDelta(t, p.Real, s.Evaluate(p.Raw), 1e-9)
	}
}

func TestEvaluateExtrapolatesBeyondHull(t *testing.T) {
	s := New([]entity.CalibrationPoint{
		{Raw: 0, Real: 0},
		{Raw: 10, Real: 10},
	})
	assert.InDelta(t, -10, s.Evaluate(-10), 1e-9)
	assert.InDelta(t, 20, s.Evaluate(20), 1e-9)
}

func TestAddPointReplacesExisting(t *testing.T) {
	s := New([]entity.CalibrationPoint{{Raw: 5, Real: 50}})
	s = s.AddPoint(5, 55)
	require.Len(t, s.Points(), 1)
	assert.Equal(t, 55.0, s.Evaluate(5))
}

func TestAddPointThenEvaluateExact(t *testing.T) {
	s := New(nil)
	s = s.AddPoint(3.3, -3300)
	assert.Equal(t, -3300.0, s.Evaluate(3.3))
}

func TestClearRemovesAllPoints(t *testing.T) {
	s := New([]entity.CalibrationPoint{{Raw: 1, Real: 2}})
	s = s.Clear()
	assert.Empty(t, s.Points())
	assert.Equal(t, 7.0, s.Evaluate(7))
}

func TestEvaluateMultiSegmentMiddleInterval(t *testing.T) {
	s := New([]entity.CalibrationPoint{
		{Raw: 0, Real: 0},
		{Raw: 10, Real: 100},
		{Raw: 20, Real: 120},
	})
	// Inside [10,20]: slope = (120-100)/(20-10) = 2
	assert.InDelta(t, 110, s.Evaluate(15), 1e-9)
}
