package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
	"github.com/taoyao-code/thermo-emulator/internal/events"
	"github.com/taoyao-code/thermo-emulator/internal/metrics"
	redisstorage "github.com/taoyao-code/thermo-emulator/internal/storage/redis"
)

// EventPipeline 报警事件推送链路
type EventPipeline struct {
	Dispatcher *events.Dispatcher
	// Breaker Redis 发布熔断器，未启用 Redis 时为 nil
	Breaker *events.CircuitBreaker

	store    *redisstorage.Store
	encoding string
}

// NewEventPipeline 组装发布者：日志始终启用；Redis 可用时追加 Pub/Sub 与历史列表
func NewEventPipeline(cfg cfgpkg.RedisConfig, store *redisstorage.Store, appm *metrics.AppMetrics, logger *zap.Logger) *EventPipeline {
	elog := logger.With(zap.String("component", "events"))
	pubs := []events.Publisher{events.NewLogPublisher(elog)}

	p := &EventPipeline{store: store, encoding: cfg.Encoding}
	if store != nil {
		p.Breaker = events.NewCircuitBreaker(5, 30*time.Second)
		p.Breaker.OnStateChange(func(from, to events.BreakerState) {
			elog.Warn("redis publisher circuit changed",
				zap.String("from", from.String()), zap.String("to", to.String()))
		})
		pubs = append(pubs,
			events.NewRedisPublisher(store, cfg.Encoding, p.Breaker),
			events.NewHistoryPublisher(store, cfg.Encoding),
		)
	}

	p.Dispatcher = events.NewDispatcher(elog, pubs...)
	p.Dispatcher.OnResult(func(publisher string, err error) {
		result := "ok"
		if err != nil {
			result = "error"
		}
		appm.EventPublishTotal.WithLabelValues(publisher, result).Inc()
	})
	return p
}

// HasHistory 是否启用了 Redis 历史列表
func (p *EventPipeline) HasHistory() bool { return p.store != nil }

// History 读取 Redis 历史列表中最近 n 条事件（新在前），无法解码的条目跳过
func (p *EventPipeline) History(ctx context.Context, n int64) ([]events.AlarmEvent, error) {
	if p.store == nil {
		return nil, redisstorage.ErrDisabled
	}
	raw, err := p.store.Recent(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]events.AlarmEvent, 0, len(raw))
	for _, b := range raw {
		ev, err := events.Decode(p.encoding, b)
		if err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
