// Package timex centralizes the millisecond-precision UTC timestamp
// convention used by the measurement store and controller action log
// (spec.md §6: "Measurement timestamps are UTC, millisecond precision").
package timex

import "time"

// NowMs returns the current time as Unix milliseconds, UTC.
func NowMs() int64 { return time.Now().UTC().UnixMilli() }

// ToMs truncates t to millisecond precision, UTC.
func ToMs(t time.Time) int64 { return t.UTC().UnixMilli() }

// FromMs converts Unix milliseconds back to a UTC time.Time.
func FromMs(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// PeriodFromHz returns the sampling period for a requested frequency.
// The CS1237 worker does not call it; it takes its period from
// cs1237.Device.Period.
func PeriodFromHz(freqHz int) time.Duration {
	if freqHz <= 0 {
		freqHz = 1
	}
	return time.Second / time.Duration(freqHz)
}
