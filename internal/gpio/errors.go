package gpio

import "hydrocore/errcode"

var (
	ErrNoSuchOneWireDevice = errcode.New("gpio.OneWireRead", errcode.DeviceMissing, nil)
	ErrTimeout             = errcode.New("gpio", errcode.Timeout, nil)
)
