// Package entity holds the data model of spec.md §3: Sensor, Measurement,
// CalibrationPoint, Controller, ControllerAction and OutputPin. These are
// plain structs; the invariants around them (e.g. "every measurement
// references a live sensor") are enforced by the packages that mutate the
// backing store, not by the types themselves.
package entity

import "time"

// MeasurementKind is the closed set of measurement kinds a driver can
// produce, per spec.md §3.
type MeasurementKind string

const (
	KindTemperature MeasurementKind = "temperature"
	KindHumidity    MeasurementKind = "humidity"
	KindPH          MeasurementKind = "ph"
	KindORP         MeasurementKind = "orp"
	KindEC          MeasurementKind = "ec"
	KindPressure    MeasurementKind = "pressure"
	KindWaterLevel  MeasurementKind = "water_level"
	KindGeneric     MeasurementKind = "generic"
)

// Sensor is a configured, possibly-bound instance of a registered driver.
type Sensor struct {
	ID                string
	Name              string
	DriverTag         string
	Description       string
	Enabled           bool
	UpdateInterval    time.Duration
	Config            map[string]any
	CalibrationData   []CalibrationPoint
	LastMeasurementAt time.Time // zero value means "never"
	CreatedAt         time.Time
	// WaterTempSensorID names the sensor id supplying water temperature
	// for CS1237-EC's temperature-compensated formula (spec.md §4.D.5).
	// Empty means no compensation is applied.
	WaterTempSensorID string
}

func (s Sensor) HasMeasured() bool { return !s.LastMeasurementAt.IsZero() }

// CalibrationPoint is a (raw, real) anchor used by the calibration engine.
type CalibrationPoint struct {
	Raw  float64
	Real float64
}

// Measurement is an immutable, insertion-ordered tuple persisted by the
// measurement store. TimestampMs is UTC, millisecond precision.
type Measurement struct {
	ID          string
	SensorID    string
	TimestampMs int64
	Kind        MeasurementKind
	Value       float64
	Unit        string
	HasRaw      bool
	Raw         float64
}

// Controller is a configured, possibly-bound instance of a registered
// controller variant.
type Controller struct {
	ID             string
	Name           string
	ControllerType string
	Description    string
	Enabled        bool
	UpdateInterval time.Duration
	Config         map[string]any
	LastRunAt      time.Time
	BoundSensors   map[string]string // role -> sensor id
	CreatedAt      time.Time
}

// ControllerAction is an append-only, bounded-retention log entry emitted
// by a controller's process step.
type ControllerAction struct {
	ID           string
	ControllerID string
	TimestampMs  int64
	ActionKind   string
	Details      map[string]any
}

// PinLevel is the state of a single output pin.
type PinLevel int

const (
	LevelLow PinLevel = iota
	LevelHigh
	LevelPulsing
)

func (l PinLevel) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelHigh:
		return "high"
	case LevelPulsing:
		return "pulsing"
	default:
		return "unknown"
	}
}

// OutputPinState is a snapshot of one arbiter-owned pin.
type OutputPinState struct {
	Pin            int
	Level          PinLevel
	PulseEndsAt    time.Time // zero unless Level == LevelPulsing
	LastHighAt     time.Time
	RefusalCount   int
}
