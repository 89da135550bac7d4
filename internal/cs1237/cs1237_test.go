package cs1237

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hydrocore/internal/gpio"
)

func testLines() Lines { return Lines{SCK: 1, DOUT: 2, DIN: 3} }

func TestConfigPacking(t *testing.T) {
	cfg := Config{Speed: Speed640, PGA: PGA64, Channel: ChannelTemperature, RefOut: true}
	// speed=640 -> 2, pga=64 -> 2<<2=8, channel=1<<4=16, refo=1<<5=32
	// 2 | 8 | 16 | 32 = 58
	require.Equal(t, byte(58), cfg.pack())
}

func TestConfigPackingDefaults(t *testing.T) {
	cfg := Config{Speed: Speed10, PGA: PGA1, Channel: ChannelAnalog, RefOut: false}
	require.Equal(t, byte(0), cfg.pack())
}

func TestOpenConfiguresLinesAndWritesConfig(t *testing.T) {
	chip := gpio.NewStubChip()
	chip.SetInput(2, false) // DOUT low: chip "ready"

	dev, err := Open(chip, testLines(), Config{Speed: Speed10, PGA: PGA1})
	require.NoError(t, err)
	require.Equal(t, Speed10, dev.Config().Speed)
}

func TestReadSampleTimesOutWhenDoutStaysHigh(t *testing.T) {
	chip := gpio.NewStubChip()
	chip.SetInput(2, true) // DOUT stuck high: never ready

	dev := &Device{chip: chip, lines: testLines(), cfg: Config{Speed: Speed1280}}
	_, err := dev.ReadSample()
	require.Error(t, err)
}

func TestReadSampleSignExtension(t *testing.T) {
	require.Equal(t, int32(-1), signExtend24(0xFFFFFF))
	require.Equal(t, int32(0), signExtend24(0))
	require.Equal(t, int32(1), signExtend24(1))
	require.Equal(t, int32(-(1<<23)), signExtend24(1<<23))
}

func TestPeriodDerivedFromSpeed(t *testing.T) {
	dev := &Device{cfg: Config{Speed: Speed10}}
	require.Equal(t, 100_000_000, int(dev.Period()))
}
