// Package dosing implements component H: pH/ORP/EC dosing controllers,
// each a three-state machine per direction {IDLE, DOSING, COOLDOWN}
// (spec.md §4.H), built on github.com/qmuntal/stateless.
package dosing

import (
	"time"

	"github.com/qmuntal/stateless"

	"hydrocore/internal/controller"
)

type state string

const (
	stateIdle     state = "idle"
	stateDosing   state = "dosing"
	stateCooldown state = "cooldown"
)

type trigger string

const (
	triggerInRange trigger = "in_range"
	triggerDose    trigger = "dose"
	triggerExpire  trigger = "cooldown_expired"
)

// Direction is "up" or "down" dosing, named per-sensor below (spec.md
// §4.H: pH up=base, down=acid; EC up=nutrient, down=top-up water).
type Direction struct {
	Name       string
	Pin        int
	machine    *stateless.StateMachine
	cooldownAt time.Time
	doseCount  int
	satUntil   time.Time
}

func newDirection(name string, pin int) *Direction {
	d := &Direction{Name: name, Pin: pin}
	d.machine = stateless.NewStateMachine(stateIdle)
	d.machine.Configure(stateIdle).
		Permit(triggerDose, stateDosing)
	d.machine.Configure(stateDosing).
		Permit(triggerInRange, stateCooldown).
		Permit(triggerExpire, stateCooldown)
	d.machine.Configure(stateCooldown).
		Permit(triggerExpire, stateIdle).
		Permit(triggerInRange, stateIdle)
	return d
}

func (d *Direction) isCoolingDown(now time.Time) bool {
	return d.machine.MustState() == stateCooldown && now.Before(d.cooldownAt)
}

func (d *Direction) saturated(now time.Time) bool {
	return !d.satUntil.IsZero() && now.Before(d.satUntil)
}

// Config is the per-controller dosing policy (spec.md §4.H).
type Config struct {
	Target         float64
	Tolerance      float64
	DosePumpPinUp  int
	DosePumpPinDown int
	DoseDurationMs int
	CooldownSeconds int
	DailyMaxDoses  int // 0 disables the saturation cap
}

// Variant is shared by the pH, ORP and EC dosing controllers; the
// constructors in variants.go differ only in the sensor role.
type Variant struct {
	Role  string // the Reading map key this variant consumes
	Up    string // action kind logged for the "up" direction, e.g. "dose_up"
	Down  string
}

type handle struct {
	cfg Config
	up  *Direction
	down *Direction
}

func (v Variant) Describe(config map[string]any) controller.Descriptor {
	cfg := parseConfig(config)
	return controller.Descriptor{
		RequiredSensorRoles: []string{v.Role},
		ActuatorPins:        []int{cfg.DosePumpPinUp, cfg.DosePumpPinDown},
	}
}

func (v Variant) Open(config map[string]any) (controller.Handle, error) {
	cfg := parseConfig(config)
	h := &handle{
		cfg:  cfg,
		up:   newDirection("up", cfg.DosePumpPinUp),
		down: newDirection("down", cfg.DosePumpPinDown),
	}
	return h, nil
}

func (v Variant) Process(hnd controller.Handle, readings map[string]controller.Reading) []controller.Action {
	h := hnd.(*handle)
	reading, ok := readings[v.Role]
	if !ok {
		return nil
	}
	now := time.Now()
	expireCooldowns(h, now)

	if reading.Stale {
		return []controller.Action{{ActionKind: "stale_reading"}}
	}

	x := reading.Measurement.Value
	switch {
	case absf(x-h.cfg.Target) <= h.cfg.Tolerance:
		resetSaturationCounters(h, now)
		return nil
	case x < h.cfg.Target-h.cfg.Tolerance:
		return tryDose(h, h.up, v.Up, now)
	default:
		return tryDose(h, h.down, v.Down, now)
	}
}

func (v Variant) Close(controller.Handle) error { return nil }

func expireCooldowns(h *handle, now time.Time) {
	for _, d := range []*Direction{h.up, h.down} {
		if d.machine.MustState() == stateCooldown && !now.Before(d.cooldownAt) {
			_ = d.machine.Fire(triggerExpire)
		}
	}
}

func resetSaturationCounters(h *handle, now time.Time) {
	for _, d := range []*Direction{h.up, h.down} {
		if !d.saturated(now) {
			d.doseCount = 0
		}
	}
}

// tryDose implements spec.md §4.H steps 2-4: dose if not cooling down and
// not saturated, enter COOLDOWN, count consecutive doses, and trip the
// 24h saturation cap once DailyMaxDoses is reached, so the cap-th dose is
// the last one to fire.
func tryDose(h *handle, d *Direction, actionKind string, now time.Time) []controller.Action {
	if d.saturated(now) {
		return nil
	}
	if d.isCoolingDown(now) {
		return nil
	}

	if d.machine.MustState() == stateIdle {
		if err := d.machine.Fire(triggerDose); err != nil {
			return nil
		}
	}
	d.cooldownAt = now.Add(time.Duration(h.cfg.CooldownSeconds) * time.Second)
	_ = d.machine.Fire(triggerInRange) // DOSING -> COOLDOWN immediately; the pulse itself runs async on the arbiter

	d.doseCount++
	actions := []controller.Action{{
		Pin:        d.Pin,
		Pulse:      time.Duration(h.cfg.DoseDurationMs) * time.Millisecond,
		ActionKind: actionKind,
		Details:    map[string]any{"dose_count": d.doseCount},
	}}

	if h.cfg.DailyMaxDoses > 0 && d.doseCount >= h.cfg.DailyMaxDoses {
		d.satUntil = now.Add(24 * time.Hour)
		actions = append(actions, controller.Action{
			ActionKind: "dose_saturation",
			Details:    map[string]any{"direction": d.Name},
		})
	}
	return actions
}

func parseConfig(config map[string]any) Config {
	f := func(key string, def float64) float64 {
		if v, ok := config[key].(float64); ok {
			return v
		}
		return def
	}
	i := func(key string, def int) int { return int(f(key, float64(def))) }
	return Config{
		Target:          f("target", 0),
		Tolerance:       f("tolerance", 0),
		DosePumpPinUp:   i("dose_pump_pin_up", 0),
		DosePumpPinDown: i("dose_pump_pin_down", 0),
		DoseDurationMs:  i("dose_duration_ms", 1000),
		CooldownSeconds: i("cooldown_seconds", 60),
		DailyMaxDoses:   i("daily_max_doses", 0),
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
