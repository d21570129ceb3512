package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	goble "github.com/go-ble/ble"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
)

// ErrBLEUnsupported 当前平台没有 BLE 外设实现
var ErrBLEUnsupported = errors.New("ble peripheral not supported on this platform")

// Hooks 可选回调（指标）
type Hooks struct {
	OnWrite       func(n int)
	OnNotify      func(n int)
	OnFrameError  func(err error)
	OnSubscribers func(count int)
}

// Peripheral GATT 外设：特征值写入即一条请求，响应通过通知下发，同时保留给下一次读取
type Peripheral struct {
	cfg     cfgpkg.BLEConfig
	handler thermo.Handler
	logger  *zap.Logger
	hooks   Hooks

	mu        sync.Mutex
	last      []byte
	notifiers map[goble.Notifier]struct{}
}

// NewPeripheral 创建外设
func NewPeripheral(cfg cfgpkg.BLEConfig, h thermo.Handler, logger *zap.Logger) *Peripheral {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Peripheral{
		cfg:       cfg,
		handler:   h,
		logger:    logger,
		notifiers: make(map[goble.Notifier]struct{}),
	}
}

// SetHooks 设置回调，须在 Run 之前调用
func (p *Peripheral) SetHooks(h Hooks) { p.hooks = h }

// Subscribers 当前订阅通知的中心设备数
func (p *Peripheral) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.notifiers)
}

// Service 构建 GATT 服务
func (p *Peripheral) Service() (*goble.Service, error) {
	svcUUID, err := goble.Parse(p.cfg.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("parse service uuid %q: %w", p.cfg.ServiceUUID, err)
	}
	chrUUID, err := goble.Parse(p.cfg.CharacteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("parse characteristic uuid %q: %w", p.cfg.CharacteristicUUID, err)
	}

	svc := goble.NewService(svcUUID)
	chr := svc.NewCharacteristic(chrUUID)
	chr.HandleRead(goble.ReadHandlerFunc(p.serveRead))
	chr.HandleWrite(goble.WriteHandlerFunc(p.serveWrite))
	chr.HandleNotify(goble.NotifyHandlerFunc(p.serveNotify))
	return svc, nil
}

// Run 注册服务并广播，直到 ctx 取消
func (p *Peripheral) Run(ctx context.Context) error {
	svc, err := p.Service()
	if err != nil {
		return err
	}
	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("open ble device: %w", err)
	}
	defer func() {
		if err := dev.Stop(); err != nil {
			p.logger.Warn("stop ble device failed", zap.Error(err))
		}
	}()

	if err := dev.AddService(svc); err != nil {
		return fmt.Errorf("add gatt service: %w", err)
	}
	p.logger.Info("ble advertising",
		zap.String("name", p.cfg.DeviceName),
		zap.String("service", svc.UUID.String()))

	err = dev.AdvertiseNameAndServices(ctx, p.cfg.DeviceName, svc.UUID)
	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		return fmt.Errorf("advertise: %w", err)
	}
	return nil
}

func (p *Peripheral) serveWrite(req goble.Request, _ goble.ResponseWriter) {
	p.HandleWrite(req.Data())
}

// HandleWrite 处理一次特征值写入
func (p *Peripheral) HandleWrite(data []byte) {
	if p.hooks.OnWrite != nil {
		p.hooks.OnWrite(len(data))
	}
	resp, err := p.handler.HandleRequest(data)
	if err != nil {
		p.logger.Debug("ble write dropped", zap.Int("len", len(data)), zap.Error(err))
		if p.hooks.OnFrameError != nil {
			p.hooks.OnFrameError(err)
		}
		return
	}
	if len(resp) == 0 {
		return
	}

	p.mu.Lock()
	p.last = resp
	targets := make([]goble.Notifier, 0, len(p.notifiers))
	for n := range p.notifiers {
		targets = append(targets, n)
	}
	p.mu.Unlock()

	for _, n := range targets {
		written, err := n.Write(resp)
		if err != nil {
			p.logger.Debug("ble notify failed", zap.Error(err))
			continue
		}
		if p.hooks.OnNotify != nil {
			p.hooks.OnNotify(written)
		}
	}
}

// LastResponse 最近一次响应，供读取
func (p *Peripheral) LastResponse() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.last...)
}

func (p *Peripheral) serveRead(_ goble.Request, rsp goble.ResponseWriter) {
	if _, err := rsp.Write(p.LastResponse()); err != nil {
		p.logger.Debug("ble read response truncated", zap.Error(err))
	}
}

// serveNotify 阻塞直到中心设备取消订阅
func (p *Peripheral) serveNotify(_ goble.Request, n goble.Notifier) {
	count := p.subscribe(n, true)
	p.logger.Info("ble central subscribed", zap.Int("subscribers", count))
	<-n.Context().Done()
	count = p.subscribe(n, false)
	p.logger.Info("ble central unsubscribed", zap.Int("subscribers", count))
}

func (p *Peripheral) subscribe(n goble.Notifier, on bool) int {
	p.mu.Lock()
	if on {
		p.notifiers[n] = struct{}{}
	} else {
		delete(p.notifiers, n)
	}
	count := len(p.notifiers)
	p.mu.Unlock()
	if p.hooks.OnSubscribers != nil {
		p.hooks.OnSubscribers(count)
	}
	return count
}
