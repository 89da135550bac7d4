package sensor

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"hydrocore/entity"
	"hydrocore/eventbus"
	"hydrocore/internal/store"
)

type fakeDriver struct {
	desc     Descriptor
	raw      float64
	extra    []Output
	readErr  error
	closed   bool
}

func (f *fakeDriver) Describe() Descriptor { return f.desc }
func (f *fakeDriver) Open(map[string]any) (Handle, error) { return "handle", nil }
func (f *fakeDriver) Read(Handle) (float64, []Output, error) { return f.raw, f.extra, f.readErr }
func (f *fakeDriver) Close(Handle) error { f.closed = true; return nil }

func newTestInstance(t *testing.T, d Driver, sen entity.Sensor) (*Instance, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", time.Hour, 1000)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.NewBus(8)
	inst, err := Open(sen, d, st, bus.NewConnection("test"), zerolog.Nop())
	require.NoError(t, err)
	return inst, st
}

func TestTickPersistsCalibratedMeasurement(t *testing.T) {
	sen := entity.Sensor{ID: "s1", CalibrationData: []entity.CalibrationPoint{{Raw: 0, Real: 10}}}
	d := &fakeDriver{desc: Descriptor{MeasurementKind: entity.KindTemperature, Unit: "C"}, raw: 5}
	inst, st := newTestInstance(t, d, sen)

	require.NoError(t, inst.Tick())

	latest, ok := st.Latest("s1")
	require.True(t, ok)
	require.Equal(t, 15.0, latest.Value) // offset calibration: 5 + (10-0)
	require.True(t, inst.Sensor().HasMeasured())
}

func TestTickPersistsMultiOutputMeasurements(t *testing.T) {
	sen := entity.Sensor{ID: "s1"}
	d := &fakeDriver{
		desc: Descriptor{MeasurementKind: entity.KindTemperature, Unit: "C"},
		raw:  20,
		extra: []Output{{Kind: entity.KindHumidity, Raw: 55, Unit: "%RH"}},
	}
	inst, st := newTestInstance(t, d, sen)

	require.NoError(t, inst.Tick())

	latest, _ := st.Latest("s1")
	require.Equal(t, entity.KindHumidity, latest.Kind) // last append wins the latest slot
	require.Equal(t, 55.0, latest.Value)
}

func TestTickReturnsErrorOnReadFailure(t *testing.T) {
	sen := entity.Sensor{ID: "s1"}
	d := &fakeDriver{desc: Descriptor{MeasurementKind: entity.KindTemperature}, readErr: errBoom}
	inst, _ := newTestInstance(t, d, sen)

	err := inst.Tick()
	require.Error(t, err)
}

func TestECAppliesTemperatureCompensationWhenBound(t *testing.T) {
	sen := entity.Sensor{ID: "ec1"}
	d := &fakeDriver{desc: Descriptor{MeasurementKind: entity.KindEC, Unit: "uS/cm"}, raw: 1000}
	inst, st := newTestInstance(t, d, sen)
	inst.WaterTempFn = func() (float64, bool) { return 30, true } // +5C over 25C reference

	require.NoError(t, inst.Tick())

	latest, _ := st.Latest("ec1")
	require.InDelta(t, 1100, latest.Value, 1e-9) // 1000 * (1 + 0.02*5)
}

func TestReconfigureReplacesCalibration(t *testing.T) {
	sen := entity.Sensor{ID: "s1"}
	d := &fakeDriver{desc: Descriptor{MeasurementKind: entity.KindTemperature}, raw: 1}
	inst, _ := newTestInstance(t, d, sen)

	inst.Reconfigure(entity.Sensor{ID: "s1", CalibrationData: []entity.CalibrationPoint{{Raw: 0, Real: 100}}})
	require.NoError(t, inst.Tick())
}

var errBoom = &testError{}

type testError struct{}

func (*testError) Error() string { return "boom" }
