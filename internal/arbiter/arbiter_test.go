package arbiter

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"hydrocore/entity"
	"hydrocore/eventbus"
	"hydrocore/internal/gpio"
)

func newTestArbiter(t *testing.T) (*Arbiter, *gpio.StubChip) {
	t.Helper()
	chip := gpio.NewStubChip()
	bus := eventbus.NewBus(8)
	conn := bus.NewConnection("test")
	a := New(chip, conn, zerolog.Nop())
	require.NoError(t, a.Register(17, Interlock{}))
	return a, chip
}

func TestSetDrivesChipAndReturnsPrevious(t *testing.T) {
	a, chip := newTestArbiter(t)

	prev, err := a.Set(17, true)
	require.NoError(t, err)
	require.Equal(t, entity.LevelLow, prev)

	prev, err = a.Set(17, false)
	require.NoError(t, err)
	require.Equal(t, entity.LevelHigh, prev)

	calls := chip.Calls()
	require.GreaterOrEqual(t, len(calls), 2)
}

func TestSetUnknownPinFails(t *testing.T) {
	a, _ := newTestArbiter(t)
	_, err := a.Set(99, true)
	require.Error(t, err)
}

func TestPulseReturnsHandleAndEndsLow(t *testing.T) {
	a, _ := newTestArbiter(t)

	handle, err := a.Pulse(17, 20*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	snap := a.List()[17]
	require.Equal(t, entity.LevelPulsing, snap.Level)

	time.Sleep(60 * time.Millisecond)
	snap = a.List()[17]
	require.Equal(t, entity.LevelLow, snap.Level)
}

func TestPulseRestartCancelsPrevious(t *testing.T) {
	a, _ := newTestArbiter(t)

	h1, err := a.Pulse(17, 200*time.Millisecond)
	require.NoError(t, err)

	h2, err := a.Pulse(17, 20*time.Millisecond)
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)

	time.Sleep(60 * time.Millisecond)
	snap := a.List()[17]
	require.Equal(t, entity.LevelLow, snap.Level)
}

func TestCancelPulse(t *testing.T) {
	a, _ := newTestArbiter(t)

	handle, err := a.Pulse(17, time.Second)
	require.NoError(t, err)
	require.NoError(t, a.CancelPulse(17, handle))

	snap := a.List()[17]
	require.Equal(t, entity.LevelLow, snap.Level)
}

func TestMinHighIntervalInterlockRefusesRapidReassert(t *testing.T) {
	chip := gpio.NewStubChip()
	bus := eventbus.NewBus(8)
	a := New(chip, bus.NewConnection("test"), zerolog.Nop())
	require.NoError(t, a.Register(5, Interlock{MinHighInterval: time.Hour}))

	_, err := a.Set(5, true)
	require.NoError(t, err)
	_, err = a.Set(5, false)
	require.NoError(t, err)

	_, err = a.Set(5, true)
	require.Error(t, err)

	snap := a.List()[5]
	require.Equal(t, 1, snap.RefusalCount)
}

func TestPanicOffForcesAllPinsLowAndBlocksWrites(t *testing.T) {
	a, _ := newTestArbiter(t)
	require.NoError(t, a.Register(22, Interlock{}))

	_, err := a.Set(17, true)
	require.NoError(t, err)
	_, err = a.Set(22, true)
	require.NoError(t, err)

	require.NoError(t, a.PanicOff())

	for _, pin := range []int{17, 22} {
		snap := a.List()[pin]
		require.Equal(t, entity.LevelLow, snap.Level)
	}

	_, err = a.Set(17, true)
	require.Error(t, err)

	a.Clear()
	_, err = a.Set(17, true)
	require.NoError(t, err)
}

func TestListReflectsLastHighAt(t *testing.T) {
	a, _ := newTestArbiter(t)
	_, err := a.Set(17, true)
	require.NoError(t, err)

	snap := a.List()[17]
	require.False(t, snap.LastHighAt.IsZero())
}
