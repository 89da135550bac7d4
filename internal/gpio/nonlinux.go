//go:build !linux

package gpio

import (
	"time"

	"hydrocore/errcode"
	"periph.io/x/conn/v3/i2c"
)

// NewLinuxChip is unavailable off Linux and always errors; cmd/hydrocore
// then refuses to start unless --dry-run selects NewStubChip.
func NewLinuxChip(chipName string) (*LinuxChip, error) {
	return nil, errcode.New("gpio.NewLinuxChip", errcode.Unsupported, nil)
}

// LinuxChip is declared here only so the type name resolves on non-Linux
// build targets; it is never constructible off Linux.
type LinuxChip struct{}

func (c *LinuxChip) Configure(int, Direction, Pull) error    { return errUnsupported }
func (c *LinuxChip) SetOutput(int, bool) error                { return errUnsupported }
func (c *LinuxChip) ReadInput(int) (bool, error)               { return false, errUnsupported }
func (c *LinuxChip) I2C(int) (i2c.Bus, error)                  { return nil, errUnsupported }
func (c *LinuxChip) OneWireList() ([]string, error)            { return nil, errUnsupported }
func (c *LinuxChip) OneWireRead(string) (string, error)        { return "", errUnsupported }
func (c *LinuxChip) NDelay(int)                                {}
func (c *LinuxChip) MSleep(time.Duration)                      {}
func (c *LinuxChip) Close() error                              { return nil }

var errUnsupported = errcode.New("gpio.LinuxChip", errcode.Unsupported, nil)
