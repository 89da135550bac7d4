package cs1237

import (
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hydrocore/errcode"
)

// defaultRingSize is the default depth of the sample ring buffer used for the
// mean/median statistics spec.md §4.E asks for on noisy channels.
const defaultRingSize = 16

// Worker runs one Device's continuous sampling loop on a dedicated OS
// thread (via runtime.LockOSThread), since the bit-bang timing in
// Device.ReadSample depends on NDelay's busy-wait not being preempted by
// the Go scheduler mid-cell.
type Worker struct {
	dev      *Device
	log      zerolog.Logger
	ringSize int

	mu       sync.Mutex
	ring     []int32
	ringNext int
	ringFull bool
	sum      int64
	count    int
	last     int32
	lastErr  error
	lastAt   time.Time

	stop chan struct{}
	done chan struct{}
}

func NewWorker(dev *Device, log zerolog.Logger, ringSize int) *Worker {
	if ringSize <= 0 {
		ringSize = defaultRingSize
	}
	return &Worker{
		dev:      dev,
		log:      log.With().Str("component", "cs1237_worker").Logger(),
		ringSize: ringSize,
		ring:     make([]int32, ringSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sampling loop and returns immediately.
func (w *Worker) Start() {
	go w.run()
}

// Stop signals the loop to exit and blocks until it has.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Worker) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	period := time.Duration(float64(w.dev.Period()) * 0.95)
	if period <= 0 {
		period = time.Millisecond
	}
	t := time.NewTicker(period)
	defer t.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			sample, err := w.dev.ReadSample()
			w.record(sample, err)
		}
	}
}

func (w *Worker) record(sample int32, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastAt = time.Now()
	w.lastErr = err
	if err != nil {
		if errcode.IsKind(err, errcode.KindTransient) {
			w.log.Warn().Err(err).Msg("cs1237 sample failed, retrying next period")
		} else {
			w.log.Error().Err(err).Msg("cs1237 sample failed")
		}
		return
	}

	w.last = sample
	if w.ringFull {
		w.sum -= int64(w.ring[w.ringNext])
	} else {
		w.count++
	}
	w.ring[w.ringNext] = sample
	w.sum += int64(sample)
	w.ringNext = (w.ringNext + 1) % w.ringSize
	if w.ringNext == 0 {
		w.ringFull = true
	}
}

// Last returns the most recent successfully read sample and any error
// from the most recent read attempt.
func (w *Worker) Last() (int32, time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.lastAt, w.lastErr
}

// Mean returns the running mean over the ring buffer's current contents.
func (w *Worker) Mean() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count == 0 {
		return 0
	}
	return float64(w.sum) / float64(w.count)
}

// Median returns the median over a snapshot of the ring buffer's current
// contents, for channels where an outlier sample would otherwise skew a
// dosing decision.
func (w *Worker) Median() float64 {
	w.mu.Lock()
	n := w.count
	vals := make([]int32, n)
	copy(vals, w.ring[:n])
	w.mu.Unlock()

	if n == 0 {
		return 0
	}
	insertionSort(vals)
	mid := n / 2
	if n%2 == 0 {
		return float64(vals[mid-1]+vals[mid]) / 2
	}
	return float64(vals[mid])
}

func insertionSort(v []int32) {
	for i := 1; i < len(v); i++ {
		key := v[i]
		j := i - 1
		for j >= 0 && v[j] > key {
			v[j+1] = v[j]
			j--
		}
		v[j+1] = key
	}
}
