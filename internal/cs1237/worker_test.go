package cs1237

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestWorker() *Worker {
	return NewWorker(&Device{}, zerolog.Nop(), 4)
}

func TestWorkerRecordUpdatesLastAndMean(t *testing.T) {
	w := newTestWorker()
	w.record(10, nil)
	w.record(20, nil)

	last, at, err := w.Last()
	require.NoError(t, err)
	require.Equal(t, int32(20), last)
	require.False(t, at.IsZero())
	require.Equal(t, 15.0, w.Mean())
}

func TestWorkerRecordErrorLeavesLastUnchanged(t *testing.T) {
	w := newTestWorker()
	w.record(5, nil)
	w.record(0, errors.New("boom"))

	last, _, err := w.Last()
	require.Error(t, err)
	require.Equal(t, int32(5), last)
}

func TestWorkerRingBufferEvictsOldest(t *testing.T) {
	w := newTestWorker() // ring size 4
	for _, v := range []int32{1, 2, 3, 4, 5} {
		w.record(v, nil)
	}
	// ring now holds {5,2,3,4}; mean = (2+3+4+5)/4 = 3.5
	require.Equal(t, 3.5, w.Mean())
}

func TestWorkerMedianOddAndEven(t *testing.T) {
	w := newTestWorker()
	w.record(3, nil)
	w.record(1, nil)
	w.record(2, nil)
	require.Equal(t, 2.0, w.Median())

	w.record(4, nil)
	require.Equal(t, 2.5, w.Median())
}
