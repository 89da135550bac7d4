package drivers

import (
	"time"

	"github.com/rs/zerolog"

	"hydrocore/entity"
	"hydrocore/errcode"
	"hydrocore/internal/cs1237"
	"hydrocore/internal/gpio"
	"hydrocore/internal/sensor"
)

// Registry tags for the four CS1237 channel variants (spec.md §4.D.3-6).
const (
	CS1237PHTag      = "cs1237_ph"
	CS1237ORPTag     = "cs1237_orp"
	CS1237ECTag      = "cs1237_ec"
	CS1237GenericTag = "cs1237_generic"
)

func cs1237Lines(config map[string]any) cs1237.Lines {
	pin := func(key string, def int) int {
		if v, ok := config[key].(float64); ok {
			return int(v)
		}
		return def
	}
	return cs1237.Lines{
		SCK:  pin("sck_pin", 0),
		DOUT: pin("dout_pin", 0),
		DIN:  pin("din_pin", 0),
	}
}

func openCS1237(chip gpio.Chip, config map[string]any, pga cs1237.PGA, log zerolog.Logger) (*cs1237.Worker, error) {
	dev, err := cs1237.Open(chip, cs1237Lines(config), cs1237.Config{Speed: cs1237.Speed10, PGA: pga, Channel: cs1237.ChannelAnalog})
	if err != nil {
		return nil, err
	}
	w := cs1237.NewWorker(dev, log, 16)
	w.Start()
	return w, nil
}

// CS1237PH is analog channel 0, PGA 128, two-point voltage-to-pH
// calibration (spec.md §4.D.3). The calibration engine (component C)
// applies the two-point mapping; this driver just reports the ADC's
// voltage.
type CS1237PH struct {
	Chip gpio.Chip
	Log  zerolog.Logger
}

type cs1237Handle struct {
	worker *cs1237.Worker
	vref   float64
}

func (c *CS1237PH) Describe() sensor.Descriptor {
	return sensor.Descriptor{MeasurementKind: entity.KindPH, Unit: "ph", CalibrationStyle: sensor.CalibrationTwoPointPH}
}

func (c *CS1237PH) Open(config map[string]any) (sensor.Handle, error) {
	w, err := openCS1237(c.Chip, config, cs1237.PGA128, c.Log)
	if err != nil {
		return nil, err
	}
	return &cs1237Handle{worker: w, vref: vref(config)}, nil
}

func (c *CS1237PH) Read(h sensor.Handle) (float64, []sensor.Output, error) {
	return readVoltage(h.(*cs1237Handle))
}

func (c *CS1237PH) Close(h sensor.Handle) error {
	h.(*cs1237Handle).worker.Stop()
	return nil
}

// CS1237ORP is analog channel 0, PGA 1; calibration is a pure offset
// applied to raw millivolts (spec.md §4.D.4).
type CS1237ORP struct {
	Chip gpio.Chip
	Log  zerolog.Logger
}

func (c *CS1237ORP) Describe() sensor.Descriptor {
	return sensor.Descriptor{MeasurementKind: entity.KindORP, Unit: "mV", CalibrationStyle: sensor.CalibrationOffsetORP}
}

func (c *CS1237ORP) Open(config map[string]any) (sensor.Handle, error) {
	w, err := openCS1237(c.Chip, config, cs1237.PGA1, c.Log)
	if err != nil {
		return nil, err
	}
	return &cs1237Handle{worker: w, vref: vref(config)}, nil
}

func (c *CS1237ORP) Read(h sensor.Handle) (float64, []sensor.Output, error) {
	hh := h.(*cs1237Handle)
	mean := hh.worker.Mean()
	mv := countsToVoltage(mean, hh.vref) * 1000
	return mv, nil, checkWorkerErr(hh.worker)
}

func (c *CS1237ORP) Close(h sensor.Handle) error {
	h.(*cs1237Handle).worker.Stop()
	return nil
}

// CS1237EC is analog channel 0, PGA 1; its raw value is ADC counts, and
// EC-specific temperature compensation is applied by the sensor
// framework (instance.go), not here, since that requires reading another
// sensor's latest value (spec.md §4.D.5).
type CS1237EC struct {
	Chip gpio.Chip
	Log  zerolog.Logger
}

func (c *CS1237EC) Describe() sensor.Descriptor {
	return sensor.Descriptor{MeasurementKind: entity.KindEC, Unit: "uS/cm", CalibrationStyle: sensor.CalibrationFactorEC}
}

func (c *CS1237EC) Open(config map[string]any) (sensor.Handle, error) {
	w, err := openCS1237(c.Chip, config, cs1237.PGA1, c.Log)
	if err != nil {
		return nil, err
	}
	return &cs1237Handle{worker: w, vref: vref(config)}, nil
}

func (c *CS1237EC) Read(h sensor.Handle) (float64, []sensor.Output, error) {
	hh := h.(*cs1237Handle)
	mean := hh.worker.Mean()
	return mean, nil, checkWorkerErr(hh.worker)
}

func (c *CS1237EC) Close(h sensor.Handle) error {
	h.(*cs1237Handle).worker.Stop()
	return nil
}

// CS1237Generic exposes raw ADC counts for user-provided piecewise
// calibration with a user-supplied unit string (spec.md §4.D.6).
type CS1237Generic struct {
	Chip gpio.Chip
	Log  zerolog.Logger
	Unit string
}

func (c *CS1237Generic) Describe() sensor.Descriptor {
	unit := c.Unit
	if unit == "" {
		unit = "counts"
	}
	return sensor.Descriptor{MeasurementKind: entity.KindGeneric, Unit: unit, CalibrationStyle: sensor.CalibrationPiecewise}
}

func (c *CS1237Generic) Open(config map[string]any) (sensor.Handle, error) {
	w, err := openCS1237(c.Chip, config, cs1237.PGA1, c.Log)
	if err != nil {
		return nil, err
	}
	return &cs1237Handle{worker: w}, nil
}

func (c *CS1237Generic) Read(h sensor.Handle) (float64, []sensor.Output, error) {
	hh := h.(*cs1237Handle)
	return hh.worker.Mean(), nil, checkWorkerErr(hh.worker)
}

func (c *CS1237Generic) Close(h sensor.Handle) error {
	h.(*cs1237Handle).worker.Stop()
	return nil
}

func vref(config map[string]any) float64 {
	if v, ok := config["vref"].(float64); ok && v > 0 {
		return v
	}
	return 2.5
}

// countsToVoltage maps a 24-bit signed ADC mean to a voltage assuming a
// full-scale reading of +/-vref.
func countsToVoltage(counts float64, vref float64) float64 {
	const fullScale = 1 << 23
	return (counts / fullScale) * vref
}

func readVoltage(h *cs1237Handle) (float64, []sensor.Output, error) {
	mean := h.worker.Mean()
	return countsToVoltage(mean, h.vref), nil, checkWorkerErr(h.worker)
}

func checkWorkerErr(w *cs1237.Worker) error {
	_, at, err := w.Last()
	if err != nil {
		return err
	}
	if time.Since(at) > 5*time.Second {
		return errcode.New("cs1237.checkWorkerErr", errcode.StaleRead, nil)
	}
	return nil
}
