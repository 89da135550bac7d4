package drivers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hydrocore/entity"
	"hydrocore/internal/gpio"
)

func TestSHT41ReadsTempAndHumidity(t *testing.T) {
	chip := gpio.NewStubChip()
	// rawTemp=0x8000 -> ~42.5C; rawHum=0x8000 -> ~56.5%RH (CRC bytes ignored by this driver)
	chip.I2CBus().SeedResponse(sht41Addr, []byte{0x80, 0x00, 0x00, 0x80, 0x00, 0x00})

	d := &SHT41{Chip: chip}
	h, err := d.Open(nil)
	require.NoError(t, err)

	temp, extra, err := d.Read(h)
	require.NoError(t, err)
	require.Len(t, extra, 1)
	require.Equal(t, entity.KindHumidity, extra[0].Kind)
	require.InDelta(t, 42.50, temp, 0.1)
	require.InDelta(t, 56.50, extra[0].Raw, 0.1)
}
