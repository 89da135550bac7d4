// Package store implements component F: a per-sensor, bounded-retention
// measurement log plus a single-slot latest-value cache (spec.md §4.F).
// Storage is backed by SQLite (github.com/mattn/go-sqlite3) for the
// persistent tail (the latest cache and the last 6h of points); older
// retention is trimmed on append and never leaves memory.
package store

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"hydrocore/entity"
	"hydrocore/errcode"
	"hydrocore/x/timex"
)

const (
	// DefaultMaxAge and DefaultMaxPoints implement "24h or 100,000 points
	// per sensor, whichever is smaller" (spec.md §4.F).
	DefaultMaxAge    = 24 * time.Hour
	DefaultMaxPoints = 100_000

	// persistentWindow is how much of each sensor's tail is guaranteed to
	// survive a restart; older points within the retention window are
	// kept in memory only.
	persistentWindow = 6 * time.Hour
)

const schema = `
CREATE TABLE IF NOT EXISTS sensors (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	driver_tag TEXT NOT NULL,
	description TEXT,
	enabled INTEGER NOT NULL,
	update_interval_ms INTEGER NOT NULL,
	config_json TEXT,
	calibration_json TEXT,
	last_measurement_at_ms INTEGER,
	created_at_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS measurements (
	id TEXT PRIMARY KEY,
	sensor_id TEXT NOT NULL REFERENCES sensors(id),
	ts_ms INTEGER NOT NULL,
	kind TEXT NOT NULL,
	value REAL NOT NULL,
	unit TEXT,
	has_raw INTEGER NOT NULL,
	raw REAL
);
CREATE INDEX IF NOT EXISTS idx_measurements_sensor_ts ON measurements(sensor_id, ts_ms);

CREATE TABLE IF NOT EXISTS controllers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	controller_type TEXT NOT NULL,
	description TEXT,
	enabled INTEGER NOT NULL,
	update_interval_ms INTEGER NOT NULL,
	config_json TEXT,
	last_run_at_ms INTEGER,
	created_at_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS controller_sensor_bindings (
	controller_id TEXT NOT NULL REFERENCES controllers(id),
	role TEXT NOT NULL,
	sensor_id TEXT NOT NULL REFERENCES sensors(id),
	PRIMARY KEY (controller_id, role)
);

CREATE TABLE IF NOT EXISTS controller_actions (
	id TEXT PRIMARY KEY,
	controller_id TEXT NOT NULL REFERENCES controllers(id),
	ts_ms INTEGER NOT NULL,
	action_kind TEXT NOT NULL,
	details_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_actions_controller_ts ON controller_actions(controller_id, ts_ms);
`

// sensorLog is the in-memory bounded log for one sensor; points older
// than persistentWindow are deleted from the sqlite table on each Append
// but kept here until they age out of MaxAge/MaxPoints.
type sensorLog struct {
	mu     sync.RWMutex
	points []entity.Measurement // insertion-ordered, oldest first
	latest entity.Measurement
	hasAny bool
}

// Store is the measurement store. One Store instance is shared by the
// sensor framework (writer) and the API/controllers (readers).
type Store struct {
	db         *sql.DB
	maxAge     time.Duration
	maxPoints  int

	mu   sync.RWMutex // protects logs map membership only
	logs map[string]*sensorLog
}

func Open(dsn string, maxAge time.Duration, maxPoints int) (*Store, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errcode.New("store.Open", errcode.StorageCorrupt, err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, errcode.New("store.Open", errcode.StorageCorrupt, err)
	}
	s := &Store{db: db, maxAge: maxAge, maxPoints: maxPoints, logs: map[string]*sensorLog{}}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) logFor(sensorID string) *sensorLog {
	s.mu.RLock()
	l, ok := s.logs[sensorID]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.logs[sensorID]; ok {
		return l
	}
	l = &sensorLog{}
	s.logs[sensorID] = l
	return l
}

// Append adds m to sensor's log, persists it if it falls within the
// persistent window, and updates the latest-value cache. Per spec.md §5,
// within one sensor appends are totally ordered and monotonic in
// timestamp — callers must hold the sensor's own processing mutex before
// calling Append (the sensor framework's per-sensor mutex, not this
// store's).
func (s *Store) Append(m entity.Measurement) error {
	l := s.logFor(m.SensorID)

	l.mu.Lock()
	l.points = append(l.points, m)
	l.latest = m
	l.hasAny = true
	s.trimLocked(l)
	l.mu.Unlock()

	if time.Since(timex.FromMs(m.TimestampMs)) <= persistentWindow {
		if _, err := s.db.Exec(
			`INSERT INTO measurements (id, sensor_id, ts_ms, kind, value, unit, has_raw, raw) VALUES (?,?,?,?,?,?,?,?)`,
			m.ID, m.SensorID, m.TimestampMs, string(m.Kind), m.Value, m.Unit, boolToInt(m.HasRaw), m.Raw,
		); err != nil {
			return errcode.New("store.Append", errcode.StorageCorrupt, err)
		}
	}
	cutoff := timex.ToMs(time.Now().Add(-persistentWindow))
	if _, err := s.db.Exec(`DELETE FROM measurements WHERE sensor_id = ? AND ts_ms < ?`, m.SensorID, cutoff); err != nil {
		return errcode.New("store.Append", errcode.StorageCorrupt, err)
	}
	return nil
}

// trimLocked drops points older than maxAge or beyond maxPoints; caller
// holds l.mu.
func (s *Store) trimLocked(l *sensorLog) {
	cutoff := time.Now().Add(-s.maxAge)
	start := 0
	for start < len(l.points) && timex.FromMs(l.points[start].TimestampMs).Before(cutoff) {
		start++
	}
	if excess := len(l.points) - start - s.maxPoints; excess > 0 {
		start += excess
	}
	if start > 0 {
		l.points = append([]entity.Measurement(nil), l.points[start:]...)
	}
}

// Latest returns the most recent measurement for sensor, if any.
func (s *Store) Latest(sensorID string) (entity.Measurement, bool) {
	l := s.logFor(sensorID)
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest, l.hasAny
}

// Range returns every measurement for sensor with timestamp in
// [start, end], a defensive copy safe for the caller to retain.
func (s *Store) Range(sensorID string, start, end time.Time) []entity.Measurement {
	l := s.logFor(sensorID)
	l.mu.RLock()
	defer l.mu.RUnlock()

	startMs, endMs := timex.ToMs(start), timex.ToMs(end)
	out := make([]entity.Measurement, 0)
	for _, m := range l.points {
		if m.TimestampMs >= startMs && m.TimestampMs <= endMs {
			out = append(out, m)
		}
	}
	return out
}

// Purge discards sensor's entire log, in memory and on disk. Called when
// a sensor is destroyed (spec.md §3 data model invariant on Sensor
// destruction).
func (s *Store) Purge(sensorID string) error {
	s.mu.Lock()
	delete(s.logs, sensorID)
	s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM measurements WHERE sensor_id = ?`, sensorID); err != nil {
		return errcode.New("store.Purge", errcode.StorageCorrupt, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
