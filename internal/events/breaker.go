package events

import (
	"errors"
	"sync"
	"time"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常，允许发布
	BreakerOpen                         // 熔断，直接丢弃
	BreakerHalfOpen                     // 半开，放行少量试探
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen 熔断期内拒绝调用
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyProbes 半开状态试探次数已满
	ErrTooManyProbes = errors.New("too many probes in half-open state")
)

// CircuitBreaker 连续失败达到阈值后熔断，超时后进入半开试探
type CircuitBreaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	probes      int
	probeOK     int
	lastFailure time.Time
	trips       int64

	threshold int
	cooldown  time.Duration
	maxProbes int
	now       func() time.Time

	onStateChange func(from, to BreakerState)
}

// NewCircuitBreaker threshold 连续失败次数，cooldown 熔断持续时间
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, maxProbes: 3, now: time.Now}
}

// OnStateChange 状态变化回调（同步调用，不得阻塞）
func (cb *CircuitBreaker) OnStateChange(fn func(from, to BreakerState)) {
	cb.mu.Lock()
	cb.onStateChange = fn
	cb.mu.Unlock()
}

// Call 受熔断保护地执行 fn
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerOpen:
		if cb.now().Sub(cb.lastFailure) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.transition(BreakerHalfOpen)
		cb.probes, cb.probeOK = 0, 0
		fallthrough
	case BreakerHalfOpen:
		if cb.probes >= cb.maxProbes {
			return ErrTooManyProbes
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == BreakerHalfOpen || cb.failures >= cb.threshold {
			cb.transition(BreakerOpen)
			cb.trips++
		}
		return
	}

	switch cb.state {
	case BreakerHalfOpen:
		cb.probeOK++
		if cb.probeOK >= cb.maxProbes {
			cb.transition(BreakerClosed)
			cb.failures = 0
		}
	case BreakerClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) transition(to BreakerState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}

// State 当前状态
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// BreakerStats 熔断器统计
type BreakerStats struct {
	State    string `json:"state"`
	Failures int    `json:"failures"`
	Trips    int64  `json:"trips"`
}

// Stats 统计信息（健康检查使用）
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{State: cb.state.String(), Failures: cb.failures, Trips: cb.trips}
}
