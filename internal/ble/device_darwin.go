//go:build darwin

package ble

import (
	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// DeviceFactory 创建 CoreBluetooth 设备，测试中可替换
var DeviceFactory = func() (goble.Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		return nil, err
	}
	return dev, nil
}
