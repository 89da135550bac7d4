// Package drivers holds the core sensor driver registry required by
// spec.md §4.D: DS18B20, SHT41, and the four CS1237 channel variants.
package drivers

import (
	"strconv"
	"strings"

	"hydrocore/entity"
	"hydrocore/errcode"
	"hydrocore/internal/gpio"
	"hydrocore/internal/sensor"
)

// DS18B20Tag is the registry key for the 1-Wire temperature driver.
const DS18B20Tag = "ds18b20"

// DS18B20 reads decimal temperature from the platform 1-Wire slave file
// (spec.md §4.D.1). No calibration; kind is temperature, unit °C.
type DS18B20 struct {
	Chip gpio.Chip
}

type ds18b20Handle struct {
	id string
}

func (d *DS18B20) Describe() sensor.Descriptor {
	return sensor.Descriptor{
		MeasurementKind:  entity.KindTemperature,
		Unit:             "C",
		CalibrationStyle: sensor.CalibrationNone,
	}
}

func (d *DS18B20) Open(config map[string]any) (sensor.Handle, error) {
	id, _ := config["onewire_id"].(string)
	if id == "" {
		ids, err := d.Chip.OneWireList()
		if err != nil {
			return nil, errcode.New("ds18b20.Open", errcode.DeviceMissing, err)
		}
		if len(ids) == 0 {
			return nil, errcode.New("ds18b20.Open", errcode.DeviceMissing, nil)
		}
		id = ids[0]
	}
	return &ds18b20Handle{id: id}, nil
}

func (d *DS18B20) Read(h sensor.Handle) (float64, []sensor.Output, error) {
	hh := h.(*ds18b20Handle)
	payload, err := d.Chip.OneWireRead(hh.id)
	if err != nil {
		return 0, nil, errcode.New("ds18b20.Read", errcode.Timeout, err)
	}
	c, err := parseW1Temp(payload)
	if err != nil {
		return 0, nil, errcode.New("ds18b20.Read", errcode.WireCheck, err)
	}
	return c, nil, nil
}

func (d *DS18B20) Close(sensor.Handle) error { return nil }

// parseW1Temp extracts the "t=<millidegrees C>" field from a
// /sys/bus/w1/devices/<id>/w1_slave payload, e.g.:
//
//	a1 01 4b 46 7f ff 0c 10 56 : crc=56 YES
//	a1 01 4b 46 7f ff 0c 10 56 t=26625
func parseW1Temp(payload string) (float64, error) {
	idx := strings.Index(payload, "t=")
	if idx < 0 {
		return 0, errcode.New("ds18b20.parseW1Temp", errcode.WireCheck, nil)
	}
	field := strings.TrimSpace(payload[idx+2:])
	if end := strings.IndexAny(field, "\r\n"); end >= 0 {
		field = field[:end]
	}
	milli, err := strconv.Atoi(field)
	if err != nil {
		return 0, err
	}
	return float64(milli) / 1000.0, nil
}
