package dosing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hydrocore/entity"
	"hydrocore/internal/controller"
)

func baseConfig() map[string]any {
	return map[string]any{
		"target":              7.0,
		"tolerance":           0.2,
		"dose_pump_pin_up":    float64(10),
		"dose_pump_pin_down":  float64(11),
		"dose_duration_ms":    float64(500),
		"cooldown_seconds":    float64(1),
		"daily_max_doses":     float64(2),
	}
}

func reading(value float64, stale bool) map[string]controller.Reading {
	return map[string]controller.Reading{
		"ph": {Measurement: entity.Measurement{Value: value}, Stale: stale},
	}
}

func TestInRangeProducesNoAction(t *testing.T) {
	v := NewPH()
	h, err := v.Open(baseConfig())
	require.NoError(t, err)

	actions := v.Process(h, reading(7.0, false))
	require.Empty(t, actions)
}

func TestLowReadingDosesUp(t *testing.T) {
	v := NewPH()
	h, err := v.Open(baseConfig())
	require.NoError(t, err)

	actions := v.Process(h, reading(6.5, false))
	require.Len(t, actions, 1)
	require.Equal(t, "dose_up", actions[0].ActionKind)
	require.Equal(t, 10, actions[0].Pin)
	require.Equal(t, 500*time.Millisecond, actions[0].Pulse)
}

func TestHighReadingDosesDown(t *testing.T) {
	v := NewPH()
	h, err := v.Open(baseConfig())
	require.NoError(t, err)

	actions := v.Process(h, reading(7.6, false))
	require.Len(t, actions, 1)
	require.Equal(t, "dose_down", actions[0].ActionKind)
	require.Equal(t, 11, actions[0].Pin)
}

func TestCooldownSuppressesRepeatedDose(t *testing.T) {
	cfg := baseConfig()
	cfg["cooldown_seconds"] = float64(3600)
	v := NewPH()
	h, err := v.Open(cfg)
	require.NoError(t, err)

	first := v.Process(h, reading(6.5, false))
	require.Len(t, first, 1)

	second := v.Process(h, reading(6.5, false))
	require.Empty(t, second)
}

func TestStaleReadingLogsAndSkips(t *testing.T) {
	v := NewPH()
	h, err := v.Open(baseConfig())
	require.NoError(t, err)

	actions := v.Process(h, reading(6.5, true))
	require.Len(t, actions, 1)
	require.Equal(t, "stale_reading", actions[0].ActionKind)
}

func TestDailyMaxDosesTripsSaturation(t *testing.T) {
	cfg := baseConfig()
	cfg["cooldown_seconds"] = float64(0)
	cfg["daily_max_doses"] = float64(1)
	v := NewPH()
	h, err := v.Open(cfg)
	require.NoError(t, err)

	hh := h.(*handle)

	// First (and, with daily_max_doses=1, last) dose: doseCount reaches
	// the cap, tripping saturation in the same step.
	a1 := v.Process(h, reading(6.5, false))
	require.Len(t, a1, 2)
	require.Equal(t, "dose_saturation", a1[1].ActionKind)

	// Further requests are suppressed until the 24h saturation window lapses.
	hh.up.cooldownAt = time.Now().Add(-time.Second)
	a2 := v.Process(h, reading(6.5, false))
	require.Empty(t, a2)
}

func TestDescribeDeclaresConfiguredActuatorPins(t *testing.T) {
	v := NewEC()
	desc := v.Describe(baseConfig())
	require.ElementsMatch(t, []int{10, 11}, desc.ActuatorPins)
	require.Equal(t, []string{"ec"}, desc.RequiredSensorRoles)
}
