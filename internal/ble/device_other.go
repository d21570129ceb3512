//go:build !linux && !darwin

package ble

import goble "github.com/go-ble/ble"

// DeviceFactory 当前平台不支持
var DeviceFactory = func() (goble.Device, error) {
	return nil, ErrBLEUnsupported
}
