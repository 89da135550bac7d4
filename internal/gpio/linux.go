//go:build linux

package gpio

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"hydrocore/errcode"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const w1DevicesRoot = "/sys/bus/w1/devices"

// LinuxChip is the production Chip: digital lines via the Linux GPIO
// character device (github.com/warthog618/go-gpiocdev), I²C via
// periph.io/x/conn's registry, and 1-Wire via the kernel's w1 sysfs tree
// (spec.md §4.A).
type LinuxChip struct {
	chipName string

	mu    sync.Mutex
	lines map[int]*gpiocdev.Line
	buses map[int]i2c.BusCloser
}

// NewLinuxChip opens the named GPIO character device chip (e.g.
// "gpiochip0") lazily per line and lazily per I²C bus number.
func NewLinuxChip(chipName string) (*LinuxChip, error) {
	if _, err := host.Init(); err != nil {
		return nil, errcode.New("gpio.NewLinuxChip", errcode.DeviceMissing, err)
	}
	return &LinuxChip{
		chipName: chipName,
		lines:    map[int]*gpiocdev.Line{},
		buses:    map[int]i2c.BusCloser{},
	}, nil
}

func (c *LinuxChip) Configure(pin int, dir Direction, pull Pull) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.lines[pin]; ok {
		_ = l.Close()
		delete(c.lines, pin)
	}

	opts := []gpiocdev.LineReqOption{}
	switch dir {
	case DirOutput:
		opts = append(opts, gpiocdev.AsOutput(0))
	case DirInput:
		opts = append(opts, gpiocdev.AsInput)
		switch pull {
		case PullUp:
			opts = append(opts, gpiocdev.WithPullUp)
		case PullDown:
			opts = append(opts, gpiocdev.WithPullDown)
		}
	}
	l, err := gpiocdev.RequestLine(c.chipName, pin, opts...)
	if err != nil {
		return errcode.New("gpio.Configure", errcode.LineUnavail, err)
	}
	c.lines[pin] = l
	return nil
}

func (c *LinuxChip) line(pin int) (*gpiocdev.Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lines[pin]
	if !ok {
		return nil, errcode.New("gpio.line", errcode.UnknownPin, nil)
	}
	return l, nil
}

func (c *LinuxChip) SetOutput(pin int, level bool) error {
	l, err := c.line(pin)
	if err != nil {
		return err
	}
	v := 0
	if level {
		v = 1
	}
	if err := l.SetValue(v); err != nil {
		return errcode.New("gpio.SetOutput", errcode.BusError, err)
	}
	return nil
}

func (c *LinuxChip) ReadInput(pin int) (bool, error) {
	l, err := c.line(pin)
	if err != nil {
		return false, err
	}
	v, err := l.Value()
	if err != nil {
		return false, errcode.New("gpio.ReadInput", errcode.BusError, err)
	}
	return v != 0, nil
}

func (c *LinuxChip) I2C(bus int) (i2c.Bus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.buses[bus]; ok {
		return b, nil
	}
	b, err := i2creg.Open(strconv.Itoa(bus))
	if err != nil {
		return nil, errcode.New("gpio.I2C", errcode.DeviceMissing, err)
	}
	c.buses[bus] = b
	return b, nil
}

func (c *LinuxChip) OneWireList() ([]string, error) {
	entries, err := os.ReadDir(w1DevicesRoot)
	if err != nil {
		return nil, errcode.New("gpio.OneWireList", errcode.DeviceMissing, err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if strings.Contains(name, "-") {
			ids = append(ids, name)
		}
	}
	return ids, nil
}

func (c *LinuxChip) OneWireRead(id string) (string, error) {
	path := fmt.Sprintf("%s/%s/w1_slave", w1DevicesRoot, id)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errcode.New("gpio.OneWireRead", errcode.DeviceMissing, err)
	}
	return string(data), nil
}

func (c *LinuxChip) NDelay(ns int) {
	deadline := time.Now().Add(time.Duration(ns))
	for time.Now().Before(deadline) {
		// busy-wait: the CS1237 protocol's bit-cell timing (~500ns) is
		// far below what the Go scheduler can sleep accurately.
	}
}

func (c *LinuxChip) MSleep(d time.Duration) { time.Sleep(d) }

func (c *LinuxChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lines {
		_ = l.Close()
	}
	for _, b := range c.buses {
		_ = b.Close()
	}
	return nil
}
