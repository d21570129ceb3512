package health

import (
	"context"
	"time"
)

// SerialChecker 串口传输检查：端口未打开时降级（正在按间隔重开）
type SerialChecker struct {
	device    string
	connected func() bool
}

// NewSerialChecker connected 一般为 serialport.Transport.Connected
func NewSerialChecker(device string, connected func() bool) *SerialChecker {
	return &SerialChecker{device: device, connected: connected}
}

func (c *SerialChecker) Name() string { return "serial" }

func (c *SerialChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	res := CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: map[string]any{"device": c.device},
	}
	if !c.connected() {
		res.Status = StatusDegraded
		res.Message = "serial port not open"
	}
	res.Latency = time.Since(start)
	return res
}

// BLEChecker BLE 外设检查：报告订阅数
type BLEChecker struct {
	subscribers func() int
}

func NewBLEChecker(subscribers func() int) *BLEChecker {
	return &BLEChecker{subscribers: subscribers}
}

func (c *BLEChecker) Name() string { return "ble" }

func (c *BLEChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	return CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: map[string]any{"subscribers": c.subscribers()},
		Latency: time.Since(start),
	}
}
