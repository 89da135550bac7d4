// Package cs1237 implements component E: the bit-banged protocol for the
// CS1237 24-bit sigma-delta ADC used by the pH/ORP/EC analog front ends
// (spec.md §4.E). It drives three GPIO lines directly through
// internal/gpio.Chip — SCK (output), DOUT (input, doubles as the
// register-read data line), DIN (output, register-write data line).
package cs1237

import (
	"time"

	"hydrocore/errcode"
	"hydrocore/internal/gpio"
)

const (
	bitCellHalf = 500 // nanoseconds HIGH, then LOW

	readyTimeout = 500 * time.Millisecond

	opWrite = 0x65
	opRead  = 0x56
)

// Speed is the configured output data rate, in Hz.
type Speed int

const (
	Speed10   Speed = 10
	Speed40   Speed = 40
	Speed640  Speed = 640
	Speed1280 Speed = 1280
)

// speedBits packs Speed into the two-bit SPEED field, defaulting to 10Hz
// for any value outside the documented set (spec.md §4.E).
func speedBits(s Speed) byte {
	switch s {
	case Speed40:
		return 1
	case Speed640:
		return 2
	case Speed1280:
		return 3
	default:
		return 0
	}
}

// PGA is the programmable gain amplifier setting.
type PGA int

const (
	PGA1 PGA = 1
	PGA2 PGA = 2
	PGA64 PGA = 64
	PGA128 PGA = 128
)

func pgaBits(p PGA) byte {
	switch p {
	case PGA2:
		return 1
	case PGA64:
		return 2
	case PGA128:
		return 3
	default:
		return 0
	}
}

// Channel selects between the analog input and the chip's internal
// temperature sensor.
type Channel int

const (
	ChannelAnalog Channel = iota
	ChannelTemperature
)

// Config is the CS1237 configuration register, packed per spec.md §4.E:
// (speed&3) | ((pga&3)<<2) | ((channel&1)<<4) | ((refo&1)<<5).
type Config struct {
	Speed   Speed
	PGA     PGA
	Channel Channel
	RefOut  bool
}

func (c Config) pack() byte {
	var refo byte
	if c.RefOut {
		refo = 1
	}
	var ch byte
	if c.Channel == ChannelTemperature {
		ch = 1
	}
	return speedBits(c.Speed) | (pgaBits(c.PGA) << 2) | (ch << 4) | (refo << 5)
}

// Lines names the three GPIO pins a Device bit-bangs.
type Lines struct {
	SCK, DOUT, DIN int
}

// Device is one CS1237 front end on a chip.
type Device struct {
	chip  gpio.Chip
	lines Lines
	cfg   Config
}

func Open(chip gpio.Chip, lines Lines, cfg Config) (*Device, error) {
	if err := chip.Configure(lines.SCK, gpio.DirOutput, gpio.PullNone); err != nil {
		return nil, errcode.New("cs1237.Open", errcode.LineUnavail, err)
	}
	if err := chip.Configure(lines.DOUT, gpio.DirInput, gpio.PullNone); err != nil {
		return nil, errcode.New("cs1237.Open", errcode.LineUnavail, err)
	}
	if err := chip.Configure(lines.DIN, gpio.DirOutput, gpio.PullNone); err != nil {
		return nil, errcode.New("cs1237.Open", errcode.LineUnavail, err)
	}
	d := &Device{chip: chip, lines: lines, cfg: cfg}
	if err := d.WriteConfig(cfg); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) clockHigh() {
	_ = d.chip.SetOutput(d.lines.SCK, true)
	d.chip.NDelay(bitCellHalf)
}

func (d *Device) clockLow() {
	_ = d.chip.SetOutput(d.lines.SCK, false)
	d.chip.NDelay(bitCellHalf)
}

func (d *Device) waitReady() error {
	deadline := time.Now().Add(readyTimeout)
	for {
		v, err := d.chip.ReadInput(d.lines.DOUT)
		if err != nil {
			return errcode.New("cs1237.waitReady", errcode.BusError, err)
		}
		if !v {
			return nil
		}
		if time.Now().After(deadline) {
			return errcode.New("cs1237.waitReady", errcode.Timeout, nil)
		}
		d.chip.NDelay(bitCellHalf)
	}
}

// clockBitOut drives DIN to bit, pulses SCK, for one output bit cell.
func (d *Device) clockBitOut(bit bool) {
	_ = d.chip.SetOutput(d.lines.DIN, bit)
	d.clockHigh()
	d.clockLow()
}

// clockBitIn pulses SCK and samples DOUT on the rising edge, for one
// input bit cell.
func (d *Device) clockBitIn() bool {
	_ = d.chip.SetOutput(d.lines.SCK, true)
	d.chip.NDelay(bitCellHalf)
	v, _ := d.chip.ReadInput(d.lines.DOUT)
	_ = d.chip.SetOutput(d.lines.SCK, false)
	d.chip.NDelay(bitCellHalf)
	return v
}

func (d *Device) clockDummy() {
	d.clockHigh()
	d.clockLow()
}

// ReadSample executes the read-sample sequence of spec.md §4.E: wait for
// DOUT low, clock 24 bits MSB-first with DIN held low, clock 3
// terminator bits, sign-extend.
func (d *Device) ReadSample() (int32, error) {
	if err := d.waitReady(); err != nil {
		return 0, err
	}

	_ = d.chip.SetOutput(d.lines.DIN, false)

	var raw uint32
	for i := 0; i < 24; i++ {
		raw <<= 1
		if d.clockBitIn() {
			raw |= 1
		}
	}
	for i := 0; i < 3; i++ {
		d.clockDummy()
	}

	if err := d.wireCheck(); err != nil {
		return 0, err
	}

	return signExtend24(raw), nil
}

func signExtend24(raw uint32) int32 {
	if raw&(1<<23) != 0 {
		return int32(raw) - (1 << 24)
	}
	return int32(raw)
}

// wireCheck validates that DOUT returns HIGH within five bit cells after
// a read, logging (via the returned error, which callers treat as a
// non-fatal warning) otherwise — spec.md §4.E failure modes.
func (d *Device) wireCheck() error {
	for i := 0; i < 5; i++ {
		v, err := d.chip.ReadInput(d.lines.DOUT)
		if err != nil {
			return errcode.New("cs1237.wireCheck", errcode.BusError, err)
		}
		if v {
			return nil
		}
		d.chip.NDelay(bitCellHalf * 2)
	}
	return errcode.New("cs1237.wireCheck", errcode.WireCheck, nil)
}

// writePreamble runs the shared prefix of the write and read register
// sequences: wait DOUT low, 24 dummy clocks, 2 status bits, 1 bit that
// pulls DOUT high, 2 switch bits, then the 7-bit opcode MSB-first,
// inverted on the wire because the hardware inverts DIN.
func (d *Device) writePreamble(opcode byte) error {
	if err := d.waitReady(); err != nil {
		return err
	}
	for i := 0; i < 24; i++ {
		d.clockDummy()
	}
	for i := 0; i < 2; i++ {
		d.clockDummy()
	}
	d.clockBitOut(true) // pulls DOUT high
	for i := 0; i < 2; i++ {
		d.clockDummy()
	}
	for i := 6; i >= 0; i-- {
		bit := (opcode>>uint(i))&1 != 0
		d.clockBitOut(!bit) // inverted on the wire
	}
	return nil
}

// WriteConfig runs the register-write sequence and stores cfg.
func (d *Device) WriteConfig(cfg Config) error {
	if err := d.writePreamble(opWrite); err != nil {
		return err
	}
	d.clockDummy() // switch bit
	payload := cfg.pack()
	for i := 7; i >= 0; i-- {
		bit := (payload>>uint(i))&1 != 0
		d.clockBitOut(!bit) // inverted on the wire
	}
	_ = d.chip.SetOutput(d.lines.DIN, false)
	d.cfg = cfg
	return nil
}

// ReadConfig runs the register-read sequence and returns the raw register
// byte.
func (d *Device) ReadConfig() (byte, error) {
	if err := d.writePreamble(opRead); err != nil {
		return 0, err
	}
	d.clockDummy() // switch bit; DOUT becomes output from here
	if err := d.chip.Configure(d.lines.DOUT, gpio.DirInput, gpio.PullNone); err != nil {
		return 0, errcode.New("cs1237.ReadConfig", errcode.LineUnavail, err)
	}
	var payload byte
	for i := 0; i < 8; i++ {
		payload <<= 1
		if d.clockBitIn() {
			payload |= 1
		}
	}
	return payload, nil
}

// Config returns the last configuration register this Device wrote.
func (d *Device) Config() Config { return d.cfg }

// Period returns the nominal inter-sample period at the device's
// configured speed.
func (d *Device) Period() time.Duration {
	return time.Second / time.Duration(d.cfg.Speed)
}
