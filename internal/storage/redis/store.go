package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
)

// ErrDisabled redis 未启用
var ErrDisabled = errors.New("redis is not enabled")

const (
	// 报警事件历史（List，新事件在左侧）
	defaultHistoryKey   = "thermo:alarm:history"
	defaultHistoryLimit = 1000
	defaultChannel      = "thermo:alarm"
)

// Store 报警事件在 Redis 中的两个落点：Pub/Sub 频道与定长历史列表
type Store struct {
	rdb      *redis.Client
	channel  string
	history  string
	capacity int64
}

// Open 按配置连接 Redis 并 PING，未启用时返回 ErrDisabled
func Open(cfg cfgpkg.RedisConfig) (*Store, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewStore(rdb, cfg.Channel, cfg.HistoryKey, cfg.HistoryLimit), nil
}

// NewStore 包装已有连接；空值使用默认频道、键与容量
func NewStore(rdb *redis.Client, channel, historyKey string, capacity int64) *Store {
	if channel == "" {
		channel = defaultChannel
	}
	if historyKey == "" {
		historyKey = defaultHistoryKey
	}
	if capacity <= 0 {
		capacity = defaultHistoryLimit
	}
	return &Store{rdb: rdb, channel: channel, history: historyKey, capacity: capacity}
}

// Channel 报警事件频道
func (s *Store) Channel() string { return s.channel }

// HistoryKey 历史列表键
func (s *Store) HistoryKey() string { return s.history }

// Publish 向频道推送一条已编码事件
func (s *Store) Publish(ctx context.Context, payload []byte) error {
	if err := s.rdb.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", s.channel, err)
	}
	return nil
}

// Append 追加一条已编码事件：LPUSH + LTRIM 保持定长
func (s *Store) Append(ctx context.Context, payload []byte) error {
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, s.history, payload)
	pipe.LTrim(ctx, s.history, 0, s.capacity-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append event history: %w", err)
	}
	return nil
}

// Recent 最近 n 条事件（新在前）
func (s *Store) Recent(ctx context.Context, n int64) ([][]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	if n > s.capacity {
		n = s.capacity
	}
	vals, err := s.rdb.LRange(ctx, s.history, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read event history: %w", err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// Len 历史条数
func (s *Store) Len(ctx context.Context) (int64, error) {
	return s.rdb.LLen(ctx, s.history).Result()
}

// HealthCheck PING
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Stats 连接池统计
func (s *Store) Stats() *redis.PoolStats {
	return s.rdb.PoolStats()
}

// Close 关闭连接
func (s *Store) Close() error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
