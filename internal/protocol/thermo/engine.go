package thermo

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/thermo-emulator/internal/device"
)

// Handler 传输层调用的请求处理接口：一次写入对应一个响应。
// 返回 error 表示帧错误，此时不产生响应。
type Handler interface {
	HandleRequest(b []byte) ([]byte, error)
}

// Hooks 可选回调（指标、事件推送）。
// OnAlarm 在持有状态锁时按迁移顺序调用，不得阻塞，也不得回调 Engine；
// 其余回调在释放锁之后调用。
type Hooks struct {
	OnResult     func(req *Request, res Result, elapsed time.Duration)
	OnFrameError func(err error)
	OnAlarm      func(tr device.AlarmTransition)
}

// Engine 指令分发器，独占设备状态与包编号计数器。
// 请求串行处理：并发写入由内部互斥锁排队。
type Engine struct {
	mu    sync.Mutex
	state device.State

	env    env
	logger *zap.Logger
	hooks  Hooks
}

// Option 引擎选项
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithNoise 注入随机源（测试使用固定种子）
func WithNoise(n *device.Noise) Option {
	return func(e *Engine) {
		if n != nil {
			e.env.noise = n
		}
	}
}

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.env.now = now
		}
	}
}

func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// NewEngine 创建分发器
func NewEngine(st device.State, opts ...Option) *Engine {
	e := &Engine{
		state:  st.Clone(),
		env:    env{now: time.Now, noise: device.NewNoise(nil)},
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Snapshot 返回当前状态副本
func (e *Engine) Snapshot() device.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// HandleRequest 处理一个完整请求包并返回响应包
func (e *Engine) HandleRequest(b []byte) ([]byte, error) {
	start := time.Now()

	pkt, err := Parse(b)
	if err != nil {
		return nil, e.frameError(err)
	}
	fields, err := Decode(pkt.Payload)
	if err != nil {
		return nil, e.frameError(err)
	}

	req, err := ParseRequest(pkt, fields)
	if err != nil && IsFramingError(err) {
		return nil, e.frameError(err)
	}

	e.mu.Lock()
	var (
		next   device.State
		res    Result
		commit bool
	)
	if err != nil {
		req = &Request{Packet: pkt, Params: Params{}}
		res = internalFailure(err)
	} else {
		next, res, commit = e.route(req)
	}

	payload, encErr := encodeResult(res)
	if encErr != nil {
		res = internalFailure(fmt.Errorf("encode response: %w", encErr))
		commit = false
		if payload, encErr = encodeResult(res); encErr != nil {
			e.mu.Unlock()
			return nil, encErr
		}
	}
	if commit {
		e.state = next
		e.emitAlarms(res.Alarms)
	} else {
		res.Alarms = nil
	}
	number := e.state.NextPacketNumber()
	e.mu.Unlock()

	out, err := Build(PacketDeviceResponse, number, 0, payload)
	if err != nil {
		return nil, err
	}

	e.observe(req, res, number, time.Since(start))
	return out, nil
}

// route 按指令枚举分发；返回候选新状态及是否提交
func (e *Engine) route(req *Request) (device.State, Result, bool) {
	id := req.Command.ID()
	if id == CommandUnknown {
		return device.State{}, invalidParam(OutcomeUnknownCommand, req.Command, "unknown command"), false
	}
	if missing := req.Params.Missing(id.RequiredParams()...); len(missing) > 0 {
		return device.State{}, invalidParam(OutcomeMissingParam, id.Code(),
			"missing required params: "+strings.Join(missing, ",")), false
	}

	h := handlerFor(id)
	if h == nil {
		return device.State{}, internalFailure(fmt.Errorf("no handler for %s", id)), false
	}
	next, res, err := h(&e.env, e.state.Clone(), req)
	if err != nil {
		return device.State{}, internalFailure(fmt.Errorf("%s: %w", id, err)), false
	}
	return next, res, true
}

func encodeResult(res Result) ([]byte, error) {
	payload, err := EncodeItems(res.Items()...)
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	return payload, nil
}

func (e *Engine) frameError(err error) error {
	e.logger.Warn("drop malformed packet", zap.String("reason", FramingReason(err)), zap.Error(err))
	if e.hooks.OnFrameError != nil {
		e.hooks.OnFrameError(err)
	}
	return err
}

func (e *Engine) observe(req *Request, res Result, number uint16, elapsed time.Duration) {
	fields := []zap.Field{
		zap.Stringer("cmd", req.Command),
		zap.Stringer("status", res.Status),
		zap.Uint16("request_number", req.Packet.Number),
		zap.Uint16("packet_number", number),
		zap.Duration("elapsed", elapsed),
	}
	switch res.Outcome {
	case OutcomeOK:
		e.logger.Debug("request handled", fields...)
	case OutcomeInternalError:
		e.logger.Error("request failed", append(fields, zap.Error(res.Err))...)
	default:
		e.logger.Warn("request rejected", append(fields,
			zap.Stringer("outcome", res.Outcome),
			zap.Strings("params", req.Params.Tags()),
			zap.String("diagnostic", res.Diagnostic))...)
	}

	if e.hooks.OnResult != nil {
		e.hooks.OnResult(req, res, elapsed)
	}
}

// emitAlarms 须持有 e.mu：迁移与状态提交顺序一致
func (e *Engine) emitAlarms(trs []device.AlarmTransition) {
	for _, tr := range trs {
		e.logger.Info("alarm state changed",
			zap.String("alarm", device.AlarmName(tr.Alarm.ID)),
			zap.Bool("active", tr.Active),
			zap.Float32("temperature", tr.Temperature),
			zap.Float32("low", tr.Alarm.Low),
			zap.Float32("high", tr.Alarm.High))
		if e.hooks.OnAlarm != nil {
			e.hooks.OnAlarm(tr)
		}
	}
}
