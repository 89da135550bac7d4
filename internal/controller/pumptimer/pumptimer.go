// Package pumptimer implements component I: a temperature-driven daily
// pump schedule with a wrap-aware time window and a mid-run temperature
// re-check (spec.md §4.I). The run/idle lifecycle is tracked with a
// github.com/qmuntal/stateless machine alongside the minute-accounting
// fields that drive the actual run/stop decisions.
package pumptimer

import (
	"sort"
	"time"

	"github.com/qmuntal/stateless"

	"hydrocore/internal/controller"
)

const Tag = "pump_timer"

type runState string

const (
	runIdle   runState = "idle"
	runActive runState = "active"
)

type runTrigger string

const (
	triggerStart runTrigger = "start"
	triggerStop  runTrigger = "stop"
)

func newRunMachine() *stateless.StateMachine {
	m := stateless.NewStateMachine(runIdle)
	m.Configure(runIdle).Permit(triggerStart, runActive)
	m.Configure(runActive).Permit(triggerStop, runIdle)
	return m
}

// Threshold maps a temperature floor to a required daily runtime.
type Threshold struct {
	FloorC         float64
	RuntimeMinutes int
}

// Config is the per-controller policy (spec.md §4.I).
type Config struct {
	PumpPin        int
	StartHour      int
	EndHour        int // may be < StartHour: wraps across midnight
	TempThresholds []Threshold
	MinRunTime     time.Duration
	MaxRunTime     time.Duration
	TempCheckDelay time.Duration
	// ForceRunUntil overrides the window/target logic and keeps the pump
	// running unconditionally until this time (spec.md §8 scenario 5's
	// manual override). Populated from the config key "force_run_until",
	// an RFC3339 timestamp; absent or unparseable leaves it zero, i.e. no
	// override. Replacing it at runtime goes through the same
	// controller.Instance.Reconfigure path as any other config change.
	ForceRunUntil time.Time
}

type dayState struct {
	day                int // YearDay of the currently tracked day
	todayTargetMinutes int
	ranTodayMinutes    int
	runStartedAt       time.Time
	lastRunEndedAt     time.Time
	runRechecked       bool
}

type handle struct {
	cfg     Config
	state   dayState
	machine *stateless.StateMachine
}

// Variant is the pumptimer controller. It requires a water-temperature
// reading under the "temperature" role.
type Variant struct{}

func (Variant) Describe(config map[string]any) controller.Descriptor {
	cfg := parseConfig(config)
	return controller.Descriptor{
		RequiredSensorRoles: []string{"temperature"},
		ActuatorPins:        []int{cfg.PumpPin},
	}
}

func (Variant) Open(config map[string]any) (controller.Handle, error) {
	return &handle{cfg: parseConfig(config), machine: newRunMachine()}, nil
}

func (Variant) Close(controller.Handle) error { return nil }

func (Variant) Process(hnd controller.Handle, readings map[string]controller.Reading) []controller.Action {
	h := hnd.(*handle)
	now := time.Now()
	resetIfNewDay(h, now)

	reading, haveTemp := readings["temperature"]

	if !h.cfg.ForceRunUntil.IsZero() && now.Before(h.cfg.ForceRunUntil) {
		return ensureRunning(h, now, true)
	}

	if !inWindow(now, h.cfg.StartHour, h.cfg.EndHour) {
		return closeRun(h, now, "outside_window")
	}

	if haveTemp && !reading.Stale && h.state.todayTargetMinutes == 0 {
		h.state.todayTargetMinutes = deriveTarget(h.cfg.TempThresholds, reading.Measurement.Value, h.cfg.MinRunTime, h.cfg.MaxRunTime)
	}

	if h.state.ranTodayMinutes >= h.state.todayTargetMinutes {
		return closeRun(h, now, "target_met")
	}

	if h.state.runStartedAt.IsZero() {
		h.state.runStartedAt = now
		h.state.runRechecked = false
		_ = h.machine.Fire(triggerStart)
		return []controller.Action{{Pin: h.cfg.PumpPin, Set: boolPtr(true), ActionKind: "pump_run_start"}}
	}

	elapsed := now.Sub(h.state.runStartedAt)
	if !h.state.runRechecked && elapsed >= h.cfg.TempCheckDelay && haveTemp && !reading.Stale {
		h.state.runRechecked = true
		h.state.todayTargetMinutes = deriveTarget(h.cfg.TempThresholds, reading.Measurement.Value, h.cfg.MinRunTime, h.cfg.MaxRunTime)
	}

	if elapsed >= h.cfg.MinRunTime && h.state.ranTodayMinutes+int(elapsed.Minutes()) >= h.state.todayTargetMinutes {
		return closeRun(h, now, "target_met")
	}
	if elapsed >= h.cfg.MaxRunTime {
		return closeRun(h, now, "max_run_time")
	}
	return nil
}

func ensureRunning(h *handle, now time.Time, on bool) []controller.Action {
	if h.state.runStartedAt.IsZero() && on {
		h.state.runStartedAt = now
		_ = h.machine.Fire(triggerStart)
		return []controller.Action{{Pin: h.cfg.PumpPin, Set: boolPtr(true), ActionKind: "pump_force_run"}}
	}
	return nil
}

func closeRun(h *handle, now time.Time, reason string) []controller.Action {
	if h.state.runStartedAt.IsZero() {
		return nil
	}
	ran := now.Sub(h.state.runStartedAt)
	h.state.ranTodayMinutes += int(ran.Minutes())
	h.state.lastRunEndedAt = now
	h.state.runStartedAt = time.Time{}
	if h.machine.MustState() == runActive {
		_ = h.machine.Fire(triggerStop)
	}
	return []controller.Action{{
		Pin:        h.cfg.PumpPin,
		Set:        boolPtr(false),
		ActionKind: "pump_run_end",
		Details:    map[string]any{"reason": reason, "ran_minutes": int(ran.Minutes())},
	}}
}

// inWindow reports whether now's hour falls in [start, end), wrap-aware
// when end < start (spec.md §4.I).
func inWindow(now time.Time, start, end int) bool {
	h := now.Hour()
	if start == end {
		return true // a zero-width window means "always on", the degenerate case
	}
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// deriveTarget picks the largest threshold floor <= t, clamped to
// [minRun, maxRun] minutes (spec.md §4.I).
func deriveTarget(thresholds []Threshold, t float64, minRun, maxRun time.Duration) int {
	sorted := append([]Threshold(nil), thresholds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FloorC < sorted[j].FloorC })

	minutes := 0
	for _, th := range sorted {
		if t >= th.FloorC {
			minutes = th.RuntimeMinutes
		}
	}
	minMinutes := int(minRun.Minutes())
	maxMinutes := int(maxRun.Minutes())
	if minutes < minMinutes {
		minutes = minMinutes
	}
	if maxMinutes > 0 && minutes > maxMinutes {
		minutes = maxMinutes
	}
	return minutes
}

// resetIfNewDay zeroes ranTodayMinutes and todayTargetMinutes at
// midnight, preserving ForceRunUntil (spec.md §4.I).
func resetIfNewDay(h *handle, now time.Time) {
	day := now.YearDay()
	if h.state.day == day {
		return
	}
	h.state.day = day
	h.state.ranTodayMinutes = 0
	h.state.todayTargetMinutes = 0
	h.state.runRechecked = false
}

func parseConfig(config map[string]any) Config {
	f := func(key string, def float64) float64 {
		if v, ok := config[key].(float64); ok {
			return v
		}
		return def
	}
	i := func(key string, def int) int { return int(f(key, float64(def))) }
	dur := func(key string, defMinutes float64) time.Duration {
		return time.Duration(f(key, defMinutes)) * time.Minute
	}

	var thresholds []Threshold
	if raw, ok := config["temp_thresholds"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			floor, _ := m["floor_c"].(float64)
			minutes, _ := m["runtime_minutes"].(float64)
			thresholds = append(thresholds, Threshold{FloorC: floor, RuntimeMinutes: int(minutes)})
		}
	}

	var forceRunUntil time.Time
	if raw, ok := config["force_run_until"].(string); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			forceRunUntil = t
		}
	}

	return Config{
		PumpPin:        i("pump_pin", 0),
		StartHour:      i("start_hour", 0),
		EndHour:        i("end_hour", 0),
		TempThresholds: thresholds,
		MinRunTime:     dur("min_run_time_minutes", 5),
		MaxRunTime:     dur("max_run_time_minutes", 60),
		TempCheckDelay: dur("temp_check_delay_minutes", 10),
		ForceRunUntil:  forceRunUntil,
	}
}

func boolPtr(b bool) *bool { return &b }
