package app

import (
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
	"github.com/taoyao-code/thermo-emulator/internal/device"
	"github.com/taoyao-code/thermo-emulator/internal/events"
	"github.com/taoyao-code/thermo-emulator/internal/fault"
	"github.com/taoyao-code/thermo-emulator/internal/metrics"
	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
)

// NewEngine 加载设备配置并创建指令分发器，返回引擎本身与传输层使用的 Handler（可能包装了故障注入）
func NewEngine(cfg *cfgpkg.Config, instance string, appm *metrics.AppMetrics, dispatcher *events.Dispatcher, logger *zap.Logger) (*thermo.Engine, thermo.Handler, error) {
	var profile *device.Profile
	if cfg.Device.Profile != "" {
		p, err := device.LoadProfile(cfg.Device.Profile)
		if err != nil {
			return nil, nil, err
		}
		profile = p
		logger.Info("device profile loaded",
			zap.String("path", cfg.Device.Profile),
			zap.Float32("temperature", p.Temperature),
			zap.Int("alarms", len(p.Alarms)))
	}

	noise := device.NewNoise(nil)
	if cfg.Device.Seed != 0 {
		noise = device.NewSeededNoise(cfg.Device.Seed)
	}

	engine := thermo.NewEngine(device.NewState(profile),
		thermo.WithLogger(logger.With(zap.String("component", "engine"))),
		thermo.WithNoise(noise),
		thermo.WithHooks(thermo.Hooks{
			OnResult:     appm.ObserveResult,
			OnFrameError: appm.ObserveFrameError,
			OnAlarm: func(tr device.AlarmTransition) {
				appm.ObserveAlarm(tr)
				// 队列满时 Dispatcher 自行记录丢弃
				_ = dispatcher.Enqueue(events.NewAlarmEvent(instance, tr, time.Now()))
			},
		}),
	)

	var handler thermo.Handler = engine
	if cfg.Fault.Enable {
		handler = fault.New(engine, fault.Config{
			DropRate:       cfg.Fault.DropRate,
			CorruptCRCRate: cfg.Fault.CorruptCRCRate,
		}, noise, logger.With(zap.String("component", "fault")))
		if inj, ok := handler.(*fault.Injector); ok {
			inj.OnFault(func(kind string) { appm.FaultTotal.WithLabelValues(kind).Inc() })
			logger.Warn("fault injection enabled",
				zap.Float64("drop_rate", cfg.Fault.DropRate),
				zap.Float64("corrupt_crc_rate", cfg.Fault.CorruptCRCRate))
		}
	}
	return engine, handler, nil
}
