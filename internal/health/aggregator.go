package health

import (
	"context"
	"sync"
	"time"
)

// defaultCheckTimeout 单个检查器的超时
const defaultCheckTimeout = 2 * time.Second

// Aggregator 健康检查聚合器
type Aggregator struct {
	mu        sync.RWMutex
	checkers  []Checker
	readiness *Readiness
	timeout   time.Duration
}

// NewAggregator 创建聚合器
func NewAggregator(checkers ...Checker) *Aggregator {
	return &Aggregator{
		checkers:  checkers,
		readiness: NewReadiness(),
		timeout:   defaultCheckTimeout,
	}
}

// AddChecker 添加检查器
func (a *Aggregator) AddChecker(checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers = append(a.checkers, checker)
}

// Readiness 传输层就绪标记
func (a *Aggregator) Readiness() *Readiness { return a.readiness }

// CheckAll 并发执行所有检查，每个检查器受超时约束
func (a *Aggregator) CheckAll(ctx context.Context) map[string]CheckResult {
	a.mu.RLock()
	checkers := append([]Checker(nil), a.checkers...)
	a.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var (
		resultsMu sync.Mutex
		wg        sync.WaitGroup
	)
	for _, checker := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			result := c.Check(cctx)

			resultsMu.Lock()
			results[c.Name()] = result
			resultsMu.Unlock()
		}(checker)
	}
	wg.Wait()
	return results
}

// Overall 由检查结果计算总体状态：任一不健康则不健康，任一降级则降级
func Overall(results map[string]CheckResult) Status {
	status := StatusHealthy
	for _, r := range results {
		status = worse(status, r.Status)
	}
	return status
}

// OverallStatus 执行全部检查并计算总体状态
func (a *Aggregator) OverallStatus(ctx context.Context) Status {
	return Overall(a.CheckAll(ctx))
}

// Ready 传输层全部启动且没有不健康组件（降级仍视为就绪）
func (a *Aggregator) Ready(ctx context.Context) bool {
	if !a.readiness.Ready() {
		return false
	}
	return a.OverallStatus(ctx) != StatusUnhealthy
}

// Alive 进程存活
func (a *Aggregator) Alive() bool {
	return true
}

// HealthReport 健康报告
type HealthReport struct {
	Status    Status                 `json:"status"`
	Ready     bool                   `json:"ready"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Report 生成健康报告
func (a *Aggregator) Report(ctx context.Context) HealthReport {
	results := a.CheckAll(ctx)
	status := Overall(results)
	return HealthReport{
		Status:    status,
		Ready:     a.readiness.Ready() && status != StatusUnhealthy,
		Timestamp: time.Now(),
		Checks:    results,
	}
}
