// Package controller implements component G: the controller framework
// (spec.md §4.G) that resolves sensor-role bindings, enforces the
// actuator-pin declaration invariant, and drives each variant's process
// step at its update_interval.
package controller

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hydrocore/entity"
	"hydrocore/errcode"
	"hydrocore/eventbus"
	"hydrocore/internal/arbiter"
	"hydrocore/internal/store"
)

// Descriptor is the capability declaration a controller variant returns
// from Describe(config). ActuatorPins is resolved from config (most
// variants wire pin numbers through their own config keys), which is why
// Describe takes config rather than being a zero-argument static call —
// see DESIGN.md's Open Question on spec.md §4.G's describe()/open()
// pairing.
type Descriptor struct {
	RequiredSensorRoles []string
	ActuatorPins        []int
}

// Reading is one role's most recent measurement, handed to Process.
type Reading struct {
	Measurement entity.Measurement
	Stale       bool
}

// Action is one arbiter operation plus the log entry Process wants
// recorded for it. An Action with neither Set nor Pulse is a log entry
// only: it touches no pin and skips the ActuatorPins check.
type Action struct {
	Pin        int
	Set        *bool         // non-nil: Arbiter.Set(Pin, *Set)
	Pulse      time.Duration // non-zero: Arbiter.Pulse(Pin, Pulse)
	ActionKind string
	Details    map[string]any
}

// Handle is an opaque variant-owned resource returned by Open.
type Handle any

// Variant is the capability set every registered controller type
// implements (spec.md §4.G).
type Variant interface {
	Describe(config map[string]any) Descriptor
	Open(config map[string]any) (Handle, error)
	Process(h Handle, readings map[string]Reading) []Action
	Close(h Handle) error
}

// Registry maps a controller_type tag to its constructor, mirroring
// internal/sensor.Registry.
type Registry struct {
	mu       sync.RWMutex
	variants map[string]Variant
}

func NewRegistry() *Registry { return &Registry{variants: map[string]Variant{}} }

func (r *Registry) Register(tag string, v Variant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants[tag] = v
}

func (r *Registry) Lookup(tag string) (Variant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variants[tag]
	return v, ok
}

// LatestFn supplies the latest measurement for a sensor id, backed by
// internal/store.Store.Latest.
type LatestFn func(sensorID string) (entity.Measurement, bool)

// Instance binds a Controller entity to an opened Variant handle
// (spec.md §4.G: "the framework resolves roles from bound sensors at
// open, rejects misconfigurations").
type Instance struct {
	mu sync.Mutex

	controller entity.Controller
	variant    Variant
	desc       Descriptor
	handle     Handle

	arb     *arbiter.Arbiter
	store   *store.Store
	bus     *eventbus.Connection
	latest  LatestFn
	log     zerolog.Logger
}

func Open(c entity.Controller, v Variant, arb *arbiter.Arbiter, st *store.Store, latest LatestFn, bus *eventbus.Connection, log zerolog.Logger) (*Instance, error) {
	desc := v.Describe(c.Config)
	for _, role := range desc.RequiredSensorRoles {
		if _, ok := c.BoundSensors[role]; !ok {
			return nil, errcode.New("controller.Open", errcode.RoleUnfilled, nil)
		}
	}
	h, err := v.Open(c.Config)
	if err != nil {
		return nil, errcode.New("controller.Open", errcode.InvalidParams, err)
	}
	return &Instance{
		controller: c,
		variant:    v,
		desc:       desc,
		handle:     h,
		arb:        arb,
		store:      st,
		bus:        bus,
		latest:     latest,
		log:        log.With().Str("component", "controller").Str("controller", c.Name).Logger(),
	}, nil
}

func (i *Instance) Controller() entity.Controller {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.controller
}

// Reconfigure atomically replaces the controller's config, per spec.md
// §6's "update (atomic replace of config)" operation: it re-resolves
// required roles against the new BoundSensors, re-opens the variant
// against the new config (so fields a variant's parseConfig froze at
// Open time actually change), and swaps in the new handle, closing the
// old one. On any failure the previous handle keeps running.
func (i *Instance) Reconfigure(c entity.Controller) error {
	desc := i.variant.Describe(c.Config)
	for _, role := range desc.RequiredSensorRoles {
		if _, ok := c.BoundSensors[role]; !ok {
			return errcode.New("controller.Reconfigure", errcode.RoleUnfilled, nil)
		}
	}
	h, err := i.variant.Open(c.Config)
	if err != nil {
		return errcode.New("controller.Reconfigure", errcode.InvalidParams, err)
	}

	i.mu.Lock()
	old := i.handle
	i.controller = c
	i.desc = desc
	i.handle = h
	i.mu.Unlock()

	if err := i.variant.Close(old); err != nil {
		i.log.Warn().Err(err).Msg("error closing previous controller handle on reconfigure")
	}
	return nil
}

// Tick resolves each required role's latest reading (flagging it stale
// per spec.md §4.H's 3x-update-interval rule, left to variants to act
// on), runs Process, applies every returned action through the Output
// Arbiter (rejecting any pin not declared in ActuatorPins), and appends
// an action log entry for each action not rejected for its pin (log-only
// actions included).
func (i *Instance) Tick() error {
	i.mu.Lock()
	c := i.controller
	staleAfter := 3 * c.UpdateInterval
	i.mu.Unlock()

	readings := make(map[string]Reading, len(c.BoundSensors))
	now := time.Now()
	for role, sensorID := range c.BoundSensors {
		m, ok := i.latest(sensorID)
		if !ok {
			continue
		}
		stale := staleAfter > 0 && now.Sub(msToTime(m.TimestampMs)) > staleAfter
		readings[role] = Reading{Measurement: m, Stale: stale}
	}

	i.mu.Lock()
	actions := i.variant.Process(i.handle, readings)
	i.mu.Unlock()

	for _, a := range actions {
		logOnly := a.Set == nil && a.Pulse <= 0
		if !logOnly && !i.actuatorDeclared(a.Pin) {
			i.log.Error().Int("pin", a.Pin).Msg("controller attempted undeclared actuator pin")
			continue
		}
		if err := i.applyAction(a); err != nil {
			i.log.Warn().Err(err).Int("pin", a.Pin).Msg("controller action refused")
		}
		if err := i.logAction(c.ID, a); err != nil {
			return err
		}
	}

	i.mu.Lock()
	i.controller.LastRunAt = now
	i.mu.Unlock()
	return nil
}

func (i *Instance) actuatorDeclared(pin int) bool {
	for _, p := range i.desc.ActuatorPins {
		if p == pin {
			return true
		}
	}
	return false
}

func (i *Instance) applyAction(a Action) error {
	if i.arb == nil {
		return nil
	}
	if a.Pulse > 0 {
		_, err := i.arb.Pulse(a.Pin, a.Pulse)
		return err
	}
	if a.Set != nil {
		_, err := i.arb.Set(a.Pin, *a.Set)
		return err
	}
	return nil
}

func (i *Instance) logAction(controllerID string, a Action) error {
	entry := entity.ControllerAction{
		ID:           uuid.NewString(),
		ControllerID: controllerID,
		TimestampMs:  time.Now().UnixMilli(),
		ActionKind:   a.ActionKind,
		Details:      a.Details,
	}
	if i.store != nil {
		if err := i.store.AppendAction(entry); err != nil {
			return err
		}
	}
	if i.bus != nil {
		i.bus.Publish(i.bus.NewMessage(eventbus.ControllerAction(controllerID), entry, false))
	}
	return nil
}

func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.variant.Close(i.handle)
}

func msToTime(ms int64) time.Time { return time.UnixMilli(ms) }
