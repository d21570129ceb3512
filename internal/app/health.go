package app

import (
	"github.com/taoyao-code/thermo-emulator/internal/events"
	"github.com/taoyao-code/thermo-emulator/internal/health"
	redisstorage "github.com/taoyao-code/thermo-emulator/internal/storage/redis"
	"github.com/taoyao-code/thermo-emulator/internal/tcpserver"
)

// NewHealthAggregator 创建健康检查聚合器，引擎检查器始终存在
func NewHealthAggregator(engine health.Snapshotter) *health.Aggregator {
	return health.NewAggregator(health.NewEngineChecker(engine))
}

// AddTCPChecker 添加TCP检查器到聚合器
func AddTCPChecker(aggregator *health.Aggregator, tcpServer *tcpserver.Server) {
	aggregator.AddChecker(health.NewTCPChecker(tcpServer))
}

// AddRedisChecker 添加Redis检查器到聚合器
func AddRedisChecker(aggregator *health.Aggregator, store *redisstorage.Store, breaker *events.CircuitBreaker) {
	if store != nil {
		aggregator.AddChecker(health.NewRedisChecker(store, breaker))
	}
}
