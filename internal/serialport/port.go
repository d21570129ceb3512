package serialport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	serial "github.com/tarm/goserial"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
)

// OpenFunc 打开串口，测试中可替换
type OpenFunc func(name string, baud int) (io.ReadWriteCloser, error)

// DefaultOpen 使用 goserial 打开真实串口
func DefaultOpen(name string, baud int) (io.ReadWriteCloser, error) {
	return serial.OpenPort(&serial.Config{Name: name, Baud: baud})
}

// Hooks 可选回调（指标）
type Hooks struct {
	OnRecvBytes func(n int)
	OnSendBytes func(n int)
	OnDiscard   func(err error)
	OnReopen    func()
}

// Transport 串口传输：单一连接，读错误后按固定间隔重新打开
type Transport struct {
	cfg     cfgpkg.SerialConfig
	handler thermo.Handler
	open    OpenFunc
	logger  *zap.Logger
	hooks   Hooks

	mu        sync.Mutex
	rwc       io.ReadWriteCloser
	connected bool
}

// New 创建串口传输
func New(cfg cfgpkg.SerialConfig, h thermo.Handler, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReopenDelay <= 0 {
		cfg.ReopenDelay = 2 * time.Second
	}
	return &Transport{cfg: cfg, handler: h, open: DefaultOpen, logger: logger}
}

// SetOpenFunc 替换串口打开函数
func (t *Transport) SetOpenFunc(fn OpenFunc) { t.open = fn }

// SetHooks 设置回调，须在 Run 之前调用
func (t *Transport) SetHooks(h Hooks) { t.hooks = h }

// Connected 串口当前是否已打开
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Device 设备路径
func (t *Transport) Device() string { return t.cfg.Device }

// Run 打开串口并处理请求，直到 ctx 取消
func (t *Transport) Run(ctx context.Context) error {
	if t.cfg.Device == "" {
		return errors.New("serial device not configured")
	}
	stop := context.AfterFunc(ctx, func() { t.closePort() })
	defer stop()

	first := true
	for {
		if !first {
			if t.hooks.OnReopen != nil {
				t.hooks.OnReopen()
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(t.cfg.ReopenDelay):
			}
		}
		first = false

		rwc, err := t.open(t.cfg.Device, t.cfg.Baud)
		if err != nil {
			t.logger.Error("open serial port failed",
				zap.String("device", t.cfg.Device), zap.Int("baud", t.cfg.Baud), zap.Error(err))
			continue
		}
		if !t.setPort(ctx, rwc) {
			return nil
		}
		t.logger.Info("serial port opened", zap.String("device", t.cfg.Device), zap.Int("baud", t.cfg.Baud))

		err = t.serve(rwc)
		t.closePort()
		if ctx.Err() != nil {
			return nil
		}
		t.logger.Warn("serial port read failed, reopening",
			zap.String("device", t.cfg.Device), zap.Duration("delay", t.cfg.ReopenDelay), zap.Error(err))
	}
}

func (t *Transport) setPort(ctx context.Context, rwc io.ReadWriteCloser) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ctx.Err() != nil {
		_ = rwc.Close()
		return false
	}
	t.rwc = rwc
	t.connected = true
	return true
}

func (t *Transport) closePort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rwc != nil {
		_ = t.rwc.Close()
		t.rwc = nil
	}
	t.connected = false
}

// serve 读循环：串口同一时刻只有一个主机，请求按序处理
func (t *Transport) serve(rwc io.ReadWriteCloser) error {
	a := thermo.NewAdapter(t.handler, func(b []byte) error {
		n, err := rwc.Write(b)
		if t.hooks.OnSendBytes != nil && n > 0 {
			t.hooks.OnSendBytes(n)
		}
		return err
	})
	a.SetLogger(t.logger)
	a.SetDiscardCallback(t.hooks.OnDiscard)

	buf := make([]byte, 1024)
	for {
		n, err := rwc.Read(buf)
		if n > 0 {
			if t.hooks.OnRecvBytes != nil {
				t.hooks.OnRecvBytes(n)
			}
			if werr := a.ProcessBytes(buf[:n]); werr != nil {
				return fmt.Errorf("write response: %w", werr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
}
