package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taoyao-code/thermo-emulator/internal/events"
)

// RedisPinger Redis 客户端
type RedisPinger interface {
	HealthCheck(ctx context.Context) error
	Stats() *redis.PoolStats
}

// RedisChecker Redis 健康检查器。Redis 只用于报警事件推送，故障时整体降级而非不可用。
type RedisChecker struct {
	client  RedisPinger
	breaker *events.CircuitBreaker
}

// NewRedisChecker 创建Redis健康检查器，breaker 可为 nil
func NewRedisChecker(client RedisPinger, breaker *events.CircuitBreaker) *RedisChecker {
	return &RedisChecker{client: client, breaker: breaker}
}

// Name 返回检查器名称
func (c *RedisChecker) Name() string {
	return "redis"
}

// Check 执行健康检查
func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	details := map[string]any{}
	if c.breaker != nil {
		bs := c.breaker.Stats()
		details["breaker_state"] = bs.State
		details["breaker_failures"] = bs.Failures
		details["breaker_trips"] = bs.Trips
	}

	if err := c.client.HealthCheck(ctx); err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("ping failed: %v", err),
			Details: details,
			Latency: time.Since(start),
		}
	}

	status := StatusHealthy
	message := "ok"
	if stats := c.client.Stats(); stats != nil {
		details["total_conns"] = stats.TotalConns
		details["idle_conns"] = stats.IdleConns
		details["timeouts"] = stats.Timeouts
	}
	if c.breaker != nil && c.breaker.State() != events.BreakerClosed {
		status = StatusDegraded
		message = "publisher circuit " + c.breaker.State().String()
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
