// Package sensor implements component D: the driver registry and the
// read-calibrate-persist pipeline (spec.md §4.D). Concrete drivers live
// in internal/sensor/drivers.
package sensor

import (
	"sync"

	"hydrocore/entity"
)

// CalibrationStyle documents how a driver's raw readings are meant to be
// calibrated, per spec.md §4.D's describe() contract.
type CalibrationStyle string

const (
	CalibrationNone      CalibrationStyle = "none"
	CalibrationTwoPointPH CalibrationStyle = "two_point_ph"
	CalibrationOffsetORP CalibrationStyle = "offset_orp"
	CalibrationFactorEC  CalibrationStyle = "factor_ec"
	CalibrationPiecewise CalibrationStyle = "piecewise"
)

// Descriptor is the static capability declaration a driver returns from
// describe().
type Descriptor struct {
	MeasurementKind  entity.MeasurementKind
	Unit             string
	CalibrationStyle CalibrationStyle
	// MultiOutput lists the additional (kind, unit) pairs a driver that
	// reports more than one measurement per cycle produces — e.g. SHT41
	// reporting humidity alongside its primary temperature kind.
	MultiOutput []Output
}

// Output is one (kind, raw, unit) tuple a multi-output driver's Read
// returns alongside its primary reading (spec.md §4.D.2).
type Output struct {
	Kind entity.MeasurementKind
	Raw  float64
	Unit string
}

// Handle is an opaque driver-owned resource returned by Open, passed back
// to Read/Close.
type Handle any

// Driver is the capability set every registered sensor variant
// implements (spec.md §4.D).
type Driver interface {
	Describe() Descriptor
	Open(config map[string]any) (Handle, error)
	Read(h Handle) (raw float64, extra []Output, err error)
	Close(h Handle) error
}

// Registry maps a driver tag to its constructor. Registration happens at
// process startup in cmd/hydrocore; the core never invents a tag it
// wasn't told about (spec.md §3: driver tag is "a string key into the
// driver registry").
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

func NewRegistry() *Registry {
	return &Registry{drivers: map[string]Driver{}}
}

func (r *Registry) Register(tag string, d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[tag] = d
}

func (r *Registry) Lookup(tag string) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[tag]
	return d, ok
}
