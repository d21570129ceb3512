package health

import (
	"context"
	"time"

	"github.com/taoyao-code/thermo-emulator/internal/device"
)

// Snapshotter 设备状态快照来源
type Snapshotter interface {
	Snapshot() device.State
}

// EngineChecker 指令分发器检查：始终健康，报告包编号、温度与当前报警
type EngineChecker struct {
	engine Snapshotter
}

func NewEngineChecker(engine Snapshotter) *EngineChecker {
	return &EngineChecker{engine: engine}
}

func (c *EngineChecker) Name() string { return "engine" }

func (c *EngineChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	st := c.engine.Snapshot()

	active := []string{}
	for _, a := range st.Alarms {
		if st.Active[a.ID] {
			active = append(active, device.AlarmName(a.ID))
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: map[string]any{
			"packet_counter": st.PacketCounter(),
			"temperature":    st.Temperature,
			"alarms":         len(st.Alarms),
			"active_alarms":  active,
		},
		Latency: time.Since(start),
	}
}
