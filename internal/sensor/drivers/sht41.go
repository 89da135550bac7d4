package drivers

import (
	"periph.io/x/conn/v3/i2c"

	"hydrocore/entity"
	"hydrocore/errcode"
	"hydrocore/internal/gpio"
	"hydrocore/internal/sensor"
)

// SHT41Tag is the registry key for the combined temperature/humidity
// driver.
const SHT41Tag = "sht41"

const sht41Addr = 0x44
const sht41MeasureHighPrecision = 0xFD

// SHT41 exposes two measurements per read cycle (temperature, humidity)
// via the Descriptor.MultiOutput contract (spec.md §4.D.2).
type SHT41 struct {
	Chip gpio.Chip
}

type sht41Handle struct {
	bus i2c.Bus
}

func (s *SHT41) Describe() sensor.Descriptor {
	return sensor.Descriptor{
		MeasurementKind:  entity.KindTemperature,
		Unit:             "C",
		CalibrationStyle: sensor.CalibrationNone,
		MultiOutput: []sensor.Output{
			{Kind: entity.KindHumidity, Unit: "%RH"},
		},
	}
}

func (s *SHT41) Open(config map[string]any) (sensor.Handle, error) {
	busNum := 1
	if v, ok := config["i2c_bus"].(float64); ok {
		busNum = int(v)
	}
	bus, err := s.Chip.I2C(busNum)
	if err != nil {
		return nil, errcode.New("sht41.Open", errcode.DeviceMissing, err)
	}
	return &sht41Handle{bus: bus}, nil
}

func (s *SHT41) Read(h sensor.Handle) (float64, []sensor.Output, error) {
	hh := h.(*sht41Handle)

	if err := hh.bus.Tx(sht41Addr, []byte{sht41MeasureHighPrecision}, nil); err != nil {
		return 0, nil, errcode.New("sht41.Read", errcode.BusError, err)
	}

	rx := make([]byte, 6)
	if err := hh.bus.Tx(sht41Addr, nil, rx); err != nil {
		return 0, nil, errcode.New("sht41.Read", errcode.BusError, err)
	}

	rawTemp := uint16(rx[0])<<8 | uint16(rx[1])
	rawHum := uint16(rx[3])<<8 | uint16(rx[4])

	// Conversion per the Sensirion SHT4x datasheet.
	tempC := -45 + 175*(float64(rawTemp)/65535)
	humRH := -6 + 125*(float64(rawHum)/65535)
	if humRH < 0 {
		humRH = 0
	}
	if humRH > 100 {
		humRH = 100
	}

	return tempC, []sensor.Output{{Kind: entity.KindHumidity, Raw: humRH, Unit: "%RH"}}, nil
}

func (s *SHT41) Close(sensor.Handle) error { return nil }
