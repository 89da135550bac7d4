package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"hydrocore/entity"
	"hydrocore/errcode"
	"hydrocore/x/timex"
)

// Hydrate loads the persistent measurement tail back into the in-memory
// per-sensor logs and latest cache; sensor, controller and action rows
// are not loaded. cmd/hydrocore calls this once at startup (spec.md
// §4.F: "the latest cache and last 6h" survive a restart).
func (s *Store) Hydrate() error {
	rows, err := s.db.Query(`SELECT id, sensor_id, ts_ms, kind, value, unit, has_raw, raw FROM measurements ORDER BY sensor_id, ts_ms`)
	if err != nil {
		return errcode.New("store.Hydrate", errcode.StorageCorrupt, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m entity.Measurement
		var hasRaw int
		if err := rows.Scan(&m.ID, &m.SensorID, &m.TimestampMs, &m.Kind, &m.Value, &m.Unit, &hasRaw, &m.Raw); err != nil {
			return errcode.New("store.Hydrate", errcode.StorageCorrupt, err)
		}
		m.HasRaw = hasRaw != 0

		l := s.logFor(m.SensorID)
		l.mu.Lock()
		l.points = append(l.points, m)
		l.latest = m
		l.hasAny = true
		l.mu.Unlock()
	}
	return rows.Err()
}

// SaveSensor upserts sensor's row (spec.md §3: "mutated only through an
// update operation that atomically replaces config/calibration").
func (s *Store) SaveSensor(sen entity.Sensor) error {
	cfg, err := json.Marshal(sen.Config)
	if err != nil {
		return errcode.New("store.SaveSensor", errcode.InvalidParams, err)
	}
	cal, err := json.Marshal(sen.CalibrationData)
	if err != nil {
		return errcode.New("store.SaveSensor", errcode.InvalidParams, err)
	}
	var lastMs *int64
	if sen.HasMeasured() {
		v := timex.ToMs(sen.LastMeasurementAt)
		lastMs = &v
	}
	if sen.ID == "" {
		sen.ID = uuid.NewString()
	}
	if sen.CreatedAt.IsZero() {
		sen.CreatedAt = time.Now()
	}
	_, err = s.db.Exec(`
		INSERT INTO sensors (id, name, driver_tag, description, enabled, update_interval_ms, config_json, calibration_json, last_measurement_at_ms, created_at_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, driver_tag=excluded.driver_tag, description=excluded.description,
			enabled=excluded.enabled, update_interval_ms=excluded.update_interval_ms, config_json=excluded.config_json,
			calibration_json=excluded.calibration_json, last_measurement_at_ms=excluded.last_measurement_at_ms`,
		sen.ID, sen.Name, sen.DriverTag, sen.Description, boolToInt(sen.Enabled), sen.UpdateInterval.Milliseconds(),
		string(cfg), string(cal), lastMs, timex.ToMs(sen.CreatedAt))
	if err != nil {
		return errcode.New("store.SaveSensor", errcode.StorageCorrupt, err)
	}
	return nil
}

func (s *Store) LoadSensors() ([]entity.Sensor, error) {
	rows, err := s.db.Query(`SELECT id, name, driver_tag, description, enabled, update_interval_ms, config_json, calibration_json, last_measurement_at_ms, created_at_ms FROM sensors`)
	if err != nil {
		return nil, errcode.New("store.LoadSensors", errcode.StorageCorrupt, err)
	}
	defer rows.Close()

	var out []entity.Sensor
	for rows.Next() {
		var sen entity.Sensor
		var cfg, cal string
		var enabled int
		var updateMs int64
		var lastMs, createdMs *int64
		if err := rows.Scan(&sen.ID, &sen.Name, &sen.DriverTag, &sen.Description, &enabled, &updateMs, &cfg, &cal, &lastMs, &createdMs); err != nil {
			return nil, errcode.New("store.LoadSensors", errcode.StorageCorrupt, err)
		}
		sen.Enabled = enabled != 0
		sen.UpdateInterval = time.Duration(updateMs) * time.Millisecond
		_ = json.Unmarshal([]byte(cfg), &sen.Config)
		_ = json.Unmarshal([]byte(cal), &sen.CalibrationData)
		if lastMs != nil {
			sen.LastMeasurementAt = timex.FromMs(*lastMs)
		}
		if createdMs != nil {
			sen.CreatedAt = timex.FromMs(*createdMs)
		}
		out = append(out, sen)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSensor(sensorID string) error {
	if _, err := s.db.Exec(`DELETE FROM sensors WHERE id = ?`, sensorID); err != nil {
		return errcode.New("store.DeleteSensor", errcode.StorageCorrupt, err)
	}
	return s.Purge(sensorID)
}

func (s *Store) SaveController(c entity.Controller) error {
	cfg, err := json.Marshal(c.Config)
	if err != nil {
		return errcode.New("store.SaveController", errcode.InvalidParams, err)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	var lastRunMs *int64
	if !c.LastRunAt.IsZero() {
		v := timex.ToMs(c.LastRunAt)
		lastRunMs = &v
	}
	_, err = s.db.Exec(`
		INSERT INTO controllers (id, name, controller_type, description, enabled, update_interval_ms, config_json, last_run_at_ms, created_at_ms)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, controller_type=excluded.controller_type, description=excluded.description,
			enabled=excluded.enabled, update_interval_ms=excluded.update_interval_ms, config_json=excluded.config_json, last_run_at_ms=excluded.last_run_at_ms`,
		c.ID, c.Name, c.ControllerType, c.Description, boolToInt(c.Enabled), c.UpdateInterval.Milliseconds(),
		string(cfg), lastRunMs, timex.ToMs(c.CreatedAt))
	if err != nil {
		return errcode.New("store.SaveController", errcode.StorageCorrupt, err)
	}
	for role, sensorID := range c.BoundSensors {
		if _, err := s.db.Exec(`INSERT INTO controller_sensor_bindings (controller_id, role, sensor_id) VALUES (?,?,?)
			ON CONFLICT(controller_id, role) DO UPDATE SET sensor_id=excluded.sensor_id`, c.ID, role, sensorID); err != nil {
			return errcode.New("store.SaveController", errcode.StorageCorrupt, err)
		}
	}
	return nil
}

func (s *Store) LoadControllers() ([]entity.Controller, error) {
	rows, err := s.db.Query(`SELECT id, name, controller_type, description, enabled, update_interval_ms, config_json, last_run_at_ms, created_at_ms FROM controllers`)
	if err != nil {
		return nil, errcode.New("store.LoadControllers", errcode.StorageCorrupt, err)
	}
	defer rows.Close()

	var out []entity.Controller
	for rows.Next() {
		var c entity.Controller
		var cfg string
		var enabled int
		var updateMs int64
		var lastRunMs, createdMs *int64
		if err := rows.Scan(&c.ID, &c.Name, &c.ControllerType, &c.Description, &enabled, &updateMs, &cfg, &lastRunMs, &createdMs); err != nil {
			return nil, errcode.New("store.LoadControllers", errcode.StorageCorrupt, err)
		}
		c.Enabled = enabled != 0
		c.UpdateInterval = time.Duration(updateMs) * time.Millisecond
		_ = json.Unmarshal([]byte(cfg), &c.Config)
		if lastRunMs != nil {
			c.LastRunAt = timex.FromMs(*lastRunMs)
		}
		if createdMs != nil {
			c.CreatedAt = timex.FromMs(*createdMs)
		}
		c.BoundSensors, err = s.loadBindings(c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) loadBindings(controllerID string) (map[string]string, error) {
	rows, err := s.db.Query(`SELECT role, sensor_id FROM controller_sensor_bindings WHERE controller_id = ?`, controllerID)
	if err != nil {
		return nil, errcode.New("store.loadBindings", errcode.StorageCorrupt, err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var role, sensorID string
		if err := rows.Scan(&role, &sensorID); err != nil {
			return nil, errcode.New("store.loadBindings", errcode.StorageCorrupt, err)
		}
		out[role] = sensorID
	}
	return out, rows.Err()
}

// AppendAction persists a controller action log entry and deletes that
// controller's rows older than the store's measurement maxAge (spec.md
// §3: "append-only, bounded retention"); no entry-count cap is applied.
func (s *Store) AppendAction(a entity.ControllerAction) error {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return errcode.New("store.AppendAction", errcode.InvalidParams, err)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, err := s.db.Exec(`INSERT INTO controller_actions (id, controller_id, ts_ms, action_kind, details_json) VALUES (?,?,?,?,?)`,
		a.ID, a.ControllerID, a.TimestampMs, a.ActionKind, string(details)); err != nil {
		return errcode.New("store.AppendAction", errcode.StorageCorrupt, err)
	}
	cutoff := timex.ToMs(time.Now().Add(-s.maxAge))
	if _, err := s.db.Exec(`DELETE FROM controller_actions WHERE controller_id = ? AND ts_ms < ?`, a.ControllerID, cutoff); err != nil {
		return errcode.New("store.AppendAction", errcode.StorageCorrupt, err)
	}
	return nil
}

func (s *Store) ActionLog(controllerID string, limit int) ([]entity.ControllerAction, error) {
	rows, err := s.db.Query(`SELECT id, controller_id, ts_ms, action_kind, details_json FROM controller_actions WHERE controller_id = ? ORDER BY ts_ms DESC LIMIT ?`, controllerID, limit)
	if err != nil {
		return nil, errcode.New("store.ActionLog", errcode.StorageCorrupt, err)
	}
	defer rows.Close()

	var out []entity.ControllerAction
	for rows.Next() {
		var a entity.ControllerAction
		var details string
		if err := rows.Scan(&a.ID, &a.ControllerID, &a.TimestampMs, &a.ActionKind, &details); err != nil {
			return nil, errcode.New("store.ActionLog", errcode.StorageCorrupt, err)
		}
		_ = json.Unmarshal([]byte(details), &a.Details)
		out = append(out, a)
	}
	return out, rows.Err()
}
