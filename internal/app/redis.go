package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
	redisstorage "github.com/taoyao-code/thermo-emulator/internal/storage/redis"
)

// NewRedisStore 连接报警事件存储，未启用时返回 nil
func NewRedisStore(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Store, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, alarm events are logged only")
		return nil, nil
	}
	store, err := redisstorage.Open(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("redis store initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize),
		zap.String("channel", store.Channel()),
		zap.String("history_key", store.HistoryKey()),
		zap.String("encoding", cfg.Encoding))
	return store, nil
}
