package drivers

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"hydrocore/internal/gpio"
)

func TestCS1237PHOpenConfiguresLines(t *testing.T) {
	chip := gpio.NewStubChip()
	chip.SetInput(2, false) // dout_pin

	d := &CS1237PH{Chip: chip, Log: zerolog.Nop()}
	h, err := d.Open(map[string]any{"sck_pin": float64(1), "dout_pin": float64(2), "din_pin": float64(3)})
	require.NoError(t, err)

	hh := h.(*cs1237Handle)
	require.NotNil(t, hh.worker)
	require.NoError(t, d.Close(h))
}

func TestCountsToVoltageHalfScale(t *testing.T) {
	v := countsToVoltage(1<<22, 2.5) // half full scale
	require.InDelta(t, 1.25, v, 1e-9)
}

func TestVrefDefault(t *testing.T) {
	require.Equal(t, 2.5, vref(map[string]any{}))
	require.Equal(t, 3.3, vref(map[string]any{"vref": 3.3}))
}
