// Package config defines RuntimeConfig, the validated record the core
// consumes at startup (spec.md §6), and a github.com/spf13/viper-backed
// YAML loader for cmd/hydrocore. The struct-tree shape is grounded on the
// teacher's services/hal/config.HALConfig declarative device list,
// generalized from a bus-topic payload to a file-loaded root config.
package config

import (
	"time"

	"github.com/spf13/viper"

	"hydrocore/errcode"
)

// PinAssignments names the platform's fixed digital I/O (spec.md §6:
// "platform pin assignments").
type PinAssignments struct {
	PanicButton int `mapstructure:"panic_button"`
}

// BusAssignments names the platform's bus numbers (spec.md §6).
type BusAssignments struct {
	I2CBus int `mapstructure:"i2c_bus"`
}

// CalibrationDefault seeds a sensor's calibration when none is
// configured explicitly.
type CalibrationDefault struct {
	DriverTag string                `mapstructure:"driver_tag"`
	Points    []CalibrationPointCfg `mapstructure:"points"`
}

type CalibrationPointCfg struct {
	Raw  float64 `mapstructure:"raw"`
	Real float64 `mapstructure:"real"`
}

// RetentionLimits bounds the in-memory measurement log (spec.md §3, §6).
// ActionMaxAge is loaded but not used: the store trims action rows by
// MeasurementMaxAge.
type RetentionLimits struct {
	MeasurementMaxAge    time.Duration `mapstructure:"measurement_max_age"`
	MeasurementMaxPoints int           `mapstructure:"measurement_max_points"`
	ActionMaxAge         time.Duration `mapstructure:"action_max_age"`
}

// SensorConfig bootstraps one Sensor entity at startup.
type SensorConfig struct {
	ID             string         `mapstructure:"id"`
	Name           string         `mapstructure:"name"`
	DriverTag      string         `mapstructure:"driver_tag"`
	Enabled        bool           `mapstructure:"enabled"`
	UpdateInterval time.Duration  `mapstructure:"update_interval"`
	Config         map[string]any `mapstructure:"config"`
	// WaterTempSensorID names the sensor id an EC sensor reads water
	// temperature from for spec.md §4.D.5's compensation formula.
	WaterTempSensorID string `mapstructure:"water_temp_sensor_id"`
}

// ControllerConfig bootstraps one Controller entity at startup.
type ControllerConfig struct {
	ID             string            `mapstructure:"id"`
	Name           string            `mapstructure:"name"`
	ControllerType string            `mapstructure:"controller_type"`
	Enabled        bool              `mapstructure:"enabled"`
	UpdateInterval time.Duration     `mapstructure:"update_interval"`
	Config         map[string]any    `mapstructure:"config"`
	BoundSensors   map[string]string `mapstructure:"bound_sensors"`
}

// RuntimeConfig is the fully-validated record the core consumes
// (spec.md §6).
type RuntimeConfig struct {
	StoreDSN            string               `mapstructure:"store_dsn"`
	Pins                PinAssignments       `mapstructure:"pins"`
	Buses               BusAssignments       `mapstructure:"buses"`
	DefaultCalibrations []CalibrationDefault `mapstructure:"default_calibrations"`
	Retention           RetentionLimits      `mapstructure:"retention"`
	Sensors             []SensorConfig       `mapstructure:"sensors"`
	Controllers         []ControllerConfig   `mapstructure:"controllers"`
}

// Load reads a YAML file at path via viper and returns a validated
// RuntimeConfig. The core "refuses to start on schema violation"
// (spec.md §6): any validation failure returns a *errcode.Fault with
// errcode.SchemaViolation rather than a partially-populated config.
func Load(path string) (*RuntimeConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errcode.New("config.Load", errcode.SchemaViolation, err)
	}

	var cfg RuntimeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errcode.New("config.Load", errcode.SchemaViolation, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("retention.measurement_max_age", 24*time.Hour)
	v.SetDefault("retention.measurement_max_points", 100_000)
	v.SetDefault("retention.action_max_age", 24*time.Hour)
	v.SetDefault("store_dsn", "hydrocore.db")
}

func validate(cfg *RuntimeConfig) error {
	if cfg.StoreDSN == "" {
		return errcode.Newf("config.validate", errcode.SchemaViolation, nil, "store_dsn is required")
	}

	seenSensors := make(map[string]bool, len(cfg.Sensors))
	for _, s := range cfg.Sensors {
		if s.ID == "" || s.DriverTag == "" {
			return errcode.Newf("config.validate", errcode.SchemaViolation, nil, "sensor missing id or driver_tag")
		}
		if seenSensors[s.ID] {
			return errcode.Newf("config.validate", errcode.SchemaViolation, nil, "duplicate sensor id %q", s.ID)
		}
		seenSensors[s.ID] = true
		if s.UpdateInterval <= 0 {
			return errcode.Newf("config.validate", errcode.SchemaViolation, nil, "sensor %q: update_interval must be positive", s.ID)
		}
	}

	for _, s := range cfg.Sensors {
		if s.WaterTempSensorID != "" && !seenSensors[s.WaterTempSensorID] {
			return errcode.Newf("config.validate", errcode.SchemaViolation, nil, "sensor %q: water_temp_sensor_id references unknown sensor %q", s.ID, s.WaterTempSensorID)
		}
	}

	seenControllers := make(map[string]bool, len(cfg.Controllers))
	for _, c := range cfg.Controllers {
		if c.ID == "" || c.ControllerType == "" {
			return errcode.Newf("config.validate", errcode.SchemaViolation, nil, "controller missing id or controller_type")
		}
		if seenControllers[c.ID] {
			return errcode.Newf("config.validate", errcode.SchemaViolation, nil, "duplicate controller id %q", c.ID)
		}
		seenControllers[c.ID] = true
		if c.UpdateInterval <= 0 {
			return errcode.Newf("config.validate", errcode.SchemaViolation, nil, "controller %q: update_interval must be positive", c.ID)
		}
		for role, sensorID := range c.BoundSensors {
			if !seenSensors[sensorID] {
				return errcode.Newf("config.validate", errcode.SchemaViolation, nil, "controller %q binds role %q to unknown sensor %q", c.ID, role, sensorID)
			}
		}
	}

	if cfg.Retention.MeasurementMaxPoints <= 0 {
		return errcode.Newf("config.validate", errcode.SchemaViolation, nil, "retention.measurement_max_points must be positive")
	}

	return nil
}
