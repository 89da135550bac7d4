// Package gpio is component A of the core: a uniform abstraction over
// digital lines, the I²C bus and the 1-Wire filesystem, with a
// deterministic stub for non-embedded hosts and tests (spec.md §4.A).
package gpio

import (
	"time"

	"periph.io/x/conn/v3/i2c"
)

// Direction is the configured mode of a digital line.
type Direction int

const (
	DirOutput Direction = iota
	DirInput
)

// Pull is the input pull configuration, meaningful only for DirInput.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Chip is the platform-independent surface every component above it
// (the Output Arbiter, the CS1237 protocol, and the DS18B20/SHT41
// drivers) programs against. Implementations: *LinuxChip (real hardware,
// built on github.com/warthog618/go-gpiocdev and periph.io/x/conn) and
// *StubChip (deterministic, records pin and I²C calls).
type Chip interface {
	// Configure sets a line's direction and, for inputs, pull resistor.
	// It must be called once before SetOutput/ReadInput on a pin.
	Configure(pin int, dir Direction, pull Pull) error

	SetOutput(pin int, level bool) error
	ReadInput(pin int) (bool, error)

	// I2C opens (or returns a cached handle to) the numbered I²C bus.
	I2C(bus int) (i2c.Bus, error)

	// OneWire lists the 1-Wire slave device IDs currently present and
	// reads one slave's raw decimal payload, mirroring the Linux
	// /sys/bus/w1/devices/<id>/w1_slave interface DS18B20 depends on.
	OneWireList() ([]string, error)
	OneWireRead(id string) (string, error)

	// NDelay busy-waits for approximately the given number of
	// nanoseconds. The CS1237 bit-bang protocol depends on this being a
	// true busy-wait, not a scheduler sleep, to hold sub-microsecond
	// timing (spec.md §4.A, §9).
	NDelay(ns int)

	// MSleep suspends the calling goroutine for d. Unlike NDelay this is
	// a cooperative suspension point.
	MSleep(d time.Duration)

	Close() error
}

// CallRecord is one recorded invocation against a Chip, used by StubChip
// for test assertions.
type CallRecord struct {
	Op  string
	Pin int
	Arg any
	At  time.Time
}
