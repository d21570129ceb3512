package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull 事件队列已满，事件被丢弃
var ErrQueueFull = errors.New("event queue full")

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 2 * time.Second
	recentCapacity        = 50
)

// Dispatcher 异步事件分发：请求路径只入队，后台 worker 依次调用各发布者
type Dispatcher struct {
	publishers []Publisher
	queue      chan AlarmEvent
	logger     *zap.Logger
	timeout    time.Duration

	// onResult 发布结果回调（指标）
	onResult func(publisher string, err error)

	mu     sync.RWMutex
	recent []AlarmEvent

	wg sync.WaitGroup
}

// NewDispatcher 创建分发器
func NewDispatcher(logger *zap.Logger, pubs ...Publisher) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		publishers: pubs,
		queue:      make(chan AlarmEvent, defaultQueueSize),
		logger:     logger,
		timeout:    defaultPublishTimeout,
	}
}

// OnResult 设置发布结果回调
func (d *Dispatcher) OnResult(fn func(publisher string, err error)) { d.onResult = fn }

// Enqueue 非阻塞入队
func (d *Dispatcher) Enqueue(ev AlarmEvent) error {
	d.remember(ev)
	select {
	case d.queue <- ev:
		return nil
	default:
		d.logger.Warn("alarm event dropped", zap.String("event_id", ev.ID), zap.Error(ErrQueueFull))
		return ErrQueueFull
	}
}

// Start 启动后台 worker，ctx 取消后处理完队列剩余事件再退出
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case ev := <-d.queue:
				d.publish(ev)
			case <-ctx.Done():
				d.drain()
				return
			}
		}
	}()
}

// Wait 等待 worker 退出
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.publish(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ev AlarmEvent) {
	for _, p := range d.publishers {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := p.Publish(ctx, ev)
		cancel()
		if err != nil && !errors.Is(err, ErrCircuitOpen) {
			d.logger.Warn("publish alarm event failed",
				zap.String("publisher", p.Name()),
				zap.String("event_id", ev.ID),
				zap.Error(err))
		}
		if d.onResult != nil {
			d.onResult(p.Name(), err)
		}
	}
}

func (d *Dispatcher) remember(ev AlarmEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recent = append(d.recent, ev)
	if n := len(d.recent); n > recentCapacity {
		d.recent = append(d.recent[:0:0], d.recent[n-recentCapacity:]...)
	}
}

// Recent 最近的报警事件（旧在前）
func (d *Dispatcher) Recent() []AlarmEvent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]AlarmEvent(nil), d.recent...)
}
