package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hydrocore/entity"
	"hydrocore/x/timex"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", time.Hour, 1000)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func measurement(sensorID string, at time.Time, value float64) entity.Measurement {
	return entity.Measurement{
		ID:          sensorID + "-" + at.String(),
		SensorID:    sensorID,
		TimestampMs: timex.ToMs(at),
		Kind:        entity.KindPH,
		Value:       value,
		Unit:        "pH",
	}
}

func TestAppendAndLatest(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	require.NoError(t, s.Append(measurement("s1", now, 7.0)))
	require.NoError(t, s.Append(measurement("s1", now.Add(time.Second), 7.1)))

	latest, ok := s.Latest("s1")
	require.True(t, ok)
	require.Equal(t, 7.1, latest.Value)
}

func TestLatestUnknownSensorIsEmpty(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.Latest("does-not-exist")
	require.False(t, ok)
}

func TestRangeFiltersByTimestamp(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	require.NoError(t, s.Append(measurement("s1", now.Add(-time.Hour), 1)))
	require.NoError(t, s.Append(measurement("s1", now, 2)))
	require.NoError(t, s.Append(measurement("s1", now.Add(time.Hour), 3)))

	got := s.Range("s1", now.Add(-time.Minute), now.Add(time.Minute))
	require.Len(t, got, 1)
	require.Equal(t, 2.0, got[0].Value)
}

func TestMaxPointsRetentionTrims(t *testing.T) {
	s, err := Open(":memory:", time.Hour, 3)
	require.NoError(t, err)
	defer s.Close()

	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(measurement("s1", now.Add(time.Duration(i)*time.Second), float64(i))))
	}
	got := s.Range("s1", now.Add(-time.Hour), now.Add(time.Hour))
	require.Len(t, got, 3)
	require.Equal(t, 2.0, got[0].Value) // oldest two trimmed
}

func TestPurgeClearsLog(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(measurement("s1", time.Now(), 1)))
	require.NoError(t, s.Purge("s1"))

	_, ok := s.Latest("s1")
	require.False(t, ok)
}

func TestSaveAndLoadSensor(t *testing.T) {
	s := newTestStore(t)
	sen := entity.Sensor{
		Name:           "ph-1",
		DriverTag:      "cs1237_ph",
		Enabled:        true,
		UpdateInterval: 30 * time.Second,
		Config:         map[string]any{"pin": float64(4)},
	}
	require.NoError(t, s.SaveSensor(sen))

	loaded, err := s.LoadSensors()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "ph-1", loaded[0].Name)
	require.True(t, loaded[0].Enabled)
}

func TestSaveControllerWithBindings(t *testing.T) {
	s := newTestStore(t)
	c := entity.Controller{
		Name:           "ph-dosing",
		ControllerType: "dosing_ph",
		Enabled:        true,
		UpdateInterval: time.Minute,
		BoundSensors:   map[string]string{"ph": "sensor-1"},
	}
	require.NoError(t, s.SaveController(c))

	loaded, err := s.LoadControllers()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "sensor-1", loaded[0].BoundSensors["ph"])
}

func TestAppendAndListActions(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveController(entity.Controller{ID: "c1", Name: "x", ControllerType: "dosing_ph", UpdateInterval: time.Minute}))
	require.NoError(t, s.AppendAction(entity.ControllerAction{
		ControllerID: "c1",
		TimestampMs:  timex.ToMs(time.Now()),
		ActionKind:   "dose_up",
	}))

	actions, err := s.ActionLog("c1", 10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, "dose_up", actions[0].ActionKind)
}

func TestHydrateReloadsPersistedMeasurements(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(measurement("s1", time.Now(), 7.0)))

	fresh := &Store{db: s.db, maxAge: s.maxAge, maxPoints: s.maxPoints, logs: map[string]*sensorLog{}}
	require.NoError(t, fresh.Hydrate())

	latest, ok := fresh.Latest("s1")
	require.True(t, ok)
	require.Equal(t, 7.0, latest.Value)
}
