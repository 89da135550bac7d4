package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"hydrocore/errcode"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hydrocore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

const validYAML = `
store_dsn: /var/lib/hydrocore/hydrocore.db
pins:
  panic_button: 27
buses:
  i2c_bus: 1
retention:
  measurement_max_age: 24h
  measurement_max_points: 100000
  action_max_age: 24h
sensors:
  - id: sensor-ph
    name: "pH probe"
    driver_tag: cs1237_ph
    enabled: true
    update_interval: 10s
    config:
      clock_pin: 17
      data_pin: 18
  - id: sensor-temp
    name: "water temp"
    driver_tag: ds18b20
    enabled: true
    update_interval: 30s
controllers:
  - id: ctrl-ph
    name: "pH dosing"
    controller_type: dosing_ph
    enabled: true
    update_interval: 30s
    config:
      target: 6.0
      tolerance: 0.2
    bound_sensors:
      ph: sensor-ph
`

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/hydrocore/hydrocore.db", cfg.StoreDSN)
	require.Len(t, cfg.Sensors, 2)
	require.Len(t, cfg.Controllers, 1)
	require.Equal(t, "sensor-ph", cfg.Controllers[0].BoundSensors["ph"])
}

func TestLoadRejectsUnknownBoundSensor(t *testing.T) {
	path := writeConfig(t, `
store_dsn: /tmp/x.db
sensors:
  - id: sensor-ph
    driver_tag: cs1237_ph
    enabled: true
    update_interval: 10s
controllers:
  - id: ctrl-ph
    controller_type: dosing_ph
    enabled: true
    update_interval: 30s
    bound_sensors:
      ph: does-not-exist
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Equal(t, errcode.KindConfig, errcode.KindOf(errcode.Of(err)))
}

func TestLoadRejectsMissingStoreDSNDefault(t *testing.T) {
	path := writeConfig(t, "store_dsn: \"\"\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDuplicateSensorID(t *testing.T) {
	path := writeConfig(t, `
store_dsn: /tmp/x.db
sensors:
  - id: sensor-ph
    driver_tag: cs1237_ph
    enabled: true
    update_interval: 10s
  - id: sensor-ph
    driver_tag: sht41
    enabled: true
    update_interval: 10s
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownWaterTempSensor(t *testing.T) {
	path := writeConfig(t, `
store_dsn: /tmp/x.db
sensors:
  - id: sensor-ec
    driver_tag: cs1237_ec
    enabled: true
    update_interval: 10s
    water_temp_sensor_id: does-not-exist
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Equal(t, errcode.KindConfig, errcode.KindOf(errcode.Of(err)))
}

func TestLoadAcceptsWaterTempSensorReference(t *testing.T) {
	path := writeConfig(t, `
store_dsn: /tmp/x.db
sensors:
  - id: sensor-temp
    driver_tag: ds18b20
    enabled: true
    update_interval: 30s
  - id: sensor-ec
    driver_tag: cs1237_ec
    enabled: true
    update_interval: 10s
    water_temp_sensor_id: sensor-temp
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "sensor-temp", cfg.Sensors[1].WaterTempSensorID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/hydrocore.yaml")
	require.Error(t, err)
}
