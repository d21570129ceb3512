package app

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/thermo-emulator/internal/ble"
	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
	"github.com/taoyao-code/thermo-emulator/internal/metrics"
	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
	"github.com/taoyao-code/thermo-emulator/internal/serialport"
)

// NewSerialTransport 串口传输
func NewSerialTransport(cfg cfgpkg.SerialConfig, h thermo.Handler, appm *metrics.AppMetrics, logger *zap.Logger) *serialport.Transport {
	t := serialport.New(cfg, h, logger.With(zap.String("component", "serial")))
	t.SetHooks(serialport.Hooks{
		OnRecvBytes: func(n int) { appm.AddBytes("rx", n) },
		OnSendBytes: func(n int) { appm.AddBytes("tx", n) },
		OnDiscard:   appm.ObserveFrameError,
		OnReopen:    appm.SerialReopenTotal.Inc,
	})
	return t
}

// NewBLEPeripheral BLE 外设。帧错误已由引擎计数，这里只统计写入与字节数。
func NewBLEPeripheral(cfg cfgpkg.BLEConfig, h thermo.Handler, appm *metrics.AppMetrics, logger *zap.Logger) *ble.Peripheral {
	p := ble.NewPeripheral(cfg, h, logger.With(zap.String("component", "ble")))
	p.SetHooks(ble.Hooks{
		OnWrite: func(n int) {
			appm.BLEWriteTotal.Inc()
			appm.AddBytes("rx", n)
		},
		OnNotify: func(n int) { appm.AddBytes("tx", n) },
	})
	return p
}
