package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher 将事件写入日志
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(l *zap.Logger) *LogPublisher {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogPublisher{logger: l}
}

func (p *LogPublisher) Name() string { return "log" }

func (p *LogPublisher) Publish(_ context.Context, ev AlarmEvent) error {
	p.logger.Info("alarm event",
		zap.String("event_id", ev.ID),
		zap.String("alarm", ev.Alarm),
		zap.Bool("active", ev.Active),
		zap.Float32("temperature", ev.Temperature),
		zap.Float32("low", ev.Low),
		zap.Float32("high", ev.High))
	return nil
}

// channelPublisher 绑定频道的发布能力（storage/redis.Store）
type channelPublisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// RedisPublisher 通过 Redis Pub/Sub 推送事件，失败由熔断器隔离
type RedisPublisher struct {
	store    channelPublisher
	encoding string
	breaker  *CircuitBreaker
}

// NewRedisPublisher 创建 Redis 发布者
func NewRedisPublisher(store channelPublisher, encoding string, breaker *CircuitBreaker) *RedisPublisher {
	if breaker == nil {
		breaker = NewCircuitBreaker(5, 0)
	}
	return &RedisPublisher{store: store, encoding: encoding, breaker: breaker}
}

func (p *RedisPublisher) Name() string { return "redis" }

// Breaker 熔断器（健康检查使用）
func (p *RedisPublisher) Breaker() *CircuitBreaker { return p.breaker }

func (p *RedisPublisher) Publish(ctx context.Context, ev AlarmEvent) error {
	payload, err := Encode(p.encoding, ev)
	if err != nil {
		return err
	}
	return p.breaker.Call(func() error {
		return p.store.Publish(ctx, payload)
	})
}

// appender 定长历史存储（storage/redis.Store）
type appender interface {
	Append(ctx context.Context, payload []byte) error
}

// HistoryPublisher 将事件追加到历史列表，供事后查询
type HistoryPublisher struct {
	store    appender
	encoding string
}

func NewHistoryPublisher(store appender, encoding string) *HistoryPublisher {
	return &HistoryPublisher{store: store, encoding: encoding}
}

func (p *HistoryPublisher) Name() string { return "history" }

func (p *HistoryPublisher) Publish(ctx context.Context, ev AlarmEvent) error {
	payload, err := Encode(p.encoding, ev)
	if err != nil {
		return err
	}
	return p.store.Append(ctx, payload)
}
