// Package errcode gives the five behavior-defined error kinds of spec.md §7
// (transient I/O, persistent I/O, configuration, safety violation, fatal) a
// stable, comparable identity instead of five ad hoc error types.
package errcode

import "fmt"

// Code is a stable, comparable, allocation-free error identifier.
type Code string

func (c Code) Error() string { return string(c) }

// Kind groups a Code under one of the five propagation policies of spec §7.
type Kind int

const (
	KindTransient Kind = iota
	KindPersistent
	KindConfig
	KindSafety
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPersistent:
		return "persistent"
	case KindConfig:
		return "config"
	case KindSafety:
		return "safety"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Canonical codes, grouped by the kind they normally carry.
const (
	OK Code = "ok"

	// Transient I/O — logged at WARN, retried next tick, no state change.
	Busy       Code = "busy"
	Timeout    Code = "timeout"
	WireCheck  Code = "wire_check"
	BusError   Code = "bus_error"
	NotReady   Code = "not_ready"
	StaleRead  Code = "stale_reading"

	// Persistent I/O — entity transitions to FAULTED.
	DeviceMissing Code = "device_missing"
	LineUnavail   Code = "line_unavailable"
	Faulted       Code = "faulted"

	// Configuration — operation rejected, existing state untouched.
	InvalidParams     Code = "invalid_params"
	UnknownDriver      Code = "unknown_driver"
	UnknownPin         Code = "unknown_pin"
	PinInUse           Code = "pin_in_use"
	RoleUnfilled       Code = "role_unfilled"
	UnknownCapability  Code = "unknown_capability"
	SchemaViolation    Code = "schema_violation"

	// Safety violation — operation refused, controller continues.
	InterlockMaxHigh  Code = "interlock_max_high"
	InterlockMinGap   Code = "interlock_min_interval"
	PanicOffActive    Code = "panic_off_active"
	ActuatorNotOwned  Code = "actuator_not_declared"

	// Fatal — runtime shuts down.
	StorageCorrupt  Code = "storage_corrupt"
	PanicOffFailed  Code = "panic_off_failed"

	// Generic fallback.
	Unspecified Code = "error"
	Unsupported Code = "unsupported"
)

var kindOf = map[Code]Kind{
	Busy:      KindTransient,
	Timeout:   KindTransient,
	WireCheck: KindTransient,
	BusError:  KindTransient,
	NotReady:  KindTransient,
	StaleRead: KindTransient,

	DeviceMissing: KindPersistent,
	LineUnavail:   KindPersistent,
	Faulted:       KindPersistent,

	InvalidParams:     KindConfig,
	UnknownDriver:     KindConfig,
	UnknownPin:        KindConfig,
	PinInUse:          KindConfig,
	RoleUnfilled:      KindConfig,
	UnknownCapability: KindConfig,
	SchemaViolation:   KindConfig,

	InterlockMaxHigh: KindSafety,
	InterlockMinGap:  KindSafety,
	PanicOffActive:   KindSafety,
	ActuatorNotOwned: KindSafety,

	StorageCorrupt: KindFatal,
	PanicOffFailed: KindFatal,
}

// KindOf reports the propagation kind for a code, defaulting to transient
// (the safest default: retry rather than silently fault an entity).
func KindOf(c Code) Kind {
	if k, ok := kindOf[c]; ok {
		return k
	}
	return KindTransient
}

// Fault wraps a Code with the operation that produced it and an optional
// cause, so logs can say what failed without losing the stable code.
type Fault struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (f *Fault) Error() string {
	if f.Msg != "" {
		return f.Op + ": " + string(f.C) + ": " + f.Msg
	}
	return f.Op + ": " + string(f.C)
}

func (f *Fault) Unwrap() error { return f.Err }
func (f *Fault) Code() Code    { return f.C }
func (f *Fault) Kind() Kind    { return KindOf(f.C) }

// New builds a Fault for op with code c wrapping cause (cause may be nil).
func New(op string, c Code, cause error) *Fault {
	return &Fault{C: c, Op: op, Err: cause}
}

// Newf builds a Fault with a formatted message.
func Newf(op string, c Code, cause error, format string, args ...any) *Fault {
	return &Fault{C: c, Op: op, Err: cause, Msg: fmt.Sprintf(format, args...)}
}

// Of extracts a Code from an error, defaulting to Unspecified.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Unspecified
}

// IsKind reports whether err carries a code of the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(Of(err)) == k
}
