package sensor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hydrocore/entity"
	"hydrocore/errcode"
	"hydrocore/eventbus"
	"hydrocore/internal/calibration"
	"hydrocore/internal/store"
)

// Instance binds a Sensor entity to an opened Driver handle and its
// calibration set; it is the unit the scheduler fires at update_interval
// (spec.md §4.D's read pipeline).
type Instance struct {
	mu sync.Mutex

	sensor entity.Sensor
	driver Driver
	handle Handle
	cal    calibration.Set

	store *store.Store
	bus   *eventbus.Connection
	log   zerolog.Logger

	// WaterTempFn, when set, supplies the most recent water temperature
	// for EC's temperature-compensated formula (spec.md §4.D.5).
	WaterTempFn func() (float64, bool)
}

func Open(sen entity.Sensor, d Driver, st *store.Store, bus *eventbus.Connection, log zerolog.Logger) (*Instance, error) {
	h, err := d.Open(sen.Config)
	if err != nil {
		return nil, errcode.New("sensor.Open", errcode.DeviceMissing, err)
	}
	return &Instance{
		sensor: sen,
		driver: d,
		handle: h,
		cal:    calibration.New(sen.CalibrationData),
		store:  st,
		bus:    bus,
		log:    log.With().Str("component", "sensor").Str("sensor", sen.Name).Logger(),
	}, nil
}

func (i *Instance) Sensor() entity.Sensor {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.sensor
}

// Reconfigure atomically replaces config/calibration, per spec.md §3's
// "mutated only through an update operation that atomically replaces
// config/calibration." The driver handle is not reopened; drivers that
// need a reopen on config change should detect that in Read and return a
// persistent error, which the framework surfaces as FAULTED.
func (i *Instance) Reconfigure(sen entity.Sensor) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sensor = sen
	i.cal = calibration.New(sen.CalibrationData)
}

// Tick runs one read-calibrate-persist cycle (spec.md §4.D): acquire the
// sensor's mutex, read, evaluate calibration, timestamp, persist, update
// last_measurement_at and the latest cache, release.
func (i *Instance) Tick() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	raw, extra, err := i.driver.Read(i.handle)
	if err != nil {
		return errcode.New("sensor.Tick", classifyReadError(err), err)
	}

	now := time.Now()
	desc := i.driver.Describe()
	value := i.evaluate(desc, raw)

	m := entity.Measurement{
		ID:          uuid.NewString(),
		SensorID:    i.sensor.ID,
		TimestampMs: now.UnixMilli(),
		Kind:        desc.MeasurementKind,
		Value:       value,
		Unit:        desc.Unit,
		HasRaw:      true,
		Raw:         raw,
	}
	if err := i.store.Append(m); err != nil {
		return err
	}
	i.publish(m)

	for idx, out := range extra {
		unit := out.Unit
		if idx < len(desc.MultiOutput) && unit == "" {
			unit = desc.MultiOutput[idx].Unit
		}
		em := entity.Measurement{
			ID:          uuid.NewString(),
			SensorID:    i.sensor.ID,
			TimestampMs: now.UnixMilli(),
			Kind:        out.Kind,
			Value:       out.Raw,
			Unit:        unit,
			HasRaw:      true,
			Raw:         out.Raw,
		}
		if err := i.store.Append(em); err != nil {
			return err
		}
		i.publish(em)
	}

	i.sensor.LastMeasurementAt = now
	return nil
}

// evaluate applies calibration, special-casing CS1237-EC's temperature
// compensation (spec.md §4.D.5: multiply by 1 + 0.02*(T-25) when a
// water-temperature sensor is bound, bypass otherwise).
func (i *Instance) evaluate(desc Descriptor, raw float64) float64 {
	value := i.cal.Evaluate(raw)
	if desc.MeasurementKind == entity.KindEC && i.WaterTempFn != nil {
		if t, ok := i.WaterTempFn(); ok {
			value *= 1 + 0.02*(t-25)
		}
	}
	return value
}

func (i *Instance) publish(m entity.Measurement) {
	if i.bus == nil {
		return
	}
	i.bus.Publish(i.bus.NewMessage(eventbus.SensorMeasurement(m.SensorID), m, false))
}

func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.driver.Close(i.handle)
}

// classifyReadError maps a driver's raw error to the transient kind the
// scheduler retries at next tick, unless the driver already tagged it
// otherwise (spec.md §4.D: "wrap any fault in a transient error").
func classifyReadError(err error) errcode.Code {
	if errcode.IsKind(err, errcode.KindPersistent) || errcode.IsKind(err, errcode.KindConfig) {
		return errcode.Of(err)
	}
	return errcode.Timeout
}
