package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/thermo-emulator/internal/app"
	"github.com/taoyao-code/thermo-emulator/internal/ble"
	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
	"github.com/taoyao-code/thermo-emulator/internal/health"
	"github.com/taoyao-code/thermo-emulator/internal/httpserver"
	"github.com/taoyao-code/thermo-emulator/internal/metrics"
	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
	"github.com/taoyao-code/thermo-emulator/internal/serialport"
	redisstorage "github.com/taoyao-code/thermo-emulator/internal/storage/redis"
	"github.com/taoyao-code/thermo-emulator/internal/tcpserver"
)

// shutdownTimeout 优雅关闭超时
const shutdownTimeout = 10 * time.Second

// App 已组装的模拟器进程
type App struct {
	cfg      *cfgpkg.Config
	log      *zap.Logger
	instance string

	appm    *metrics.AppMetrics
	engine  *thermo.Engine
	handler thermo.Handler
	events  *app.EventPipeline
	redis   *redisstorage.Store
	health  *health.Aggregator

	httpSrv *httpserver.Server
	tcpSrv  *tcpserver.Server
	serial  *serialport.Transport
	ble     *ble.Peripheral

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 按依赖顺序初始化组件：指标 → Redis → 事件 → 引擎 → 健康检查 → 传输
func New(cfg *cfgpkg.Config, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log, instance: app.GenerateServerID(cfg.App.InstanceID)}

	reg, appm := app.NewMetrics()
	a.appm = appm

	store, err := app.NewRedisStore(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.redis = store
	a.events = app.NewEventPipeline(cfg.Redis, store, appm, log)

	a.engine, a.handler, err = app.NewEngine(cfg, a.instance, appm, a.events.Dispatcher, log)
	if err != nil {
		a.closeRedis()
		return nil, fmt.Errorf("device: %w", err)
	}
	st := a.engine.Snapshot()
	appm.Temperature.Set(float64(st.Temperature))

	a.health = app.NewHealthAggregator(a.engine)
	app.AddRedisChecker(a.health, store, a.events.Breaker)

	if cfg.TCP.Enable {
		a.tcpSrv = app.NewTCPServer(cfg.TCP, a.handler, appm, log)
		a.health.Readiness().Register("tcp")
		app.AddTCPChecker(a.health, a.tcpSrv)
	}
	if cfg.Serial.Enable {
		a.serial = app.NewSerialTransport(cfg.Serial, a.handler, appm, log)
		a.health.AddChecker(health.NewSerialChecker(cfg.Serial.Device, a.serial.Connected))
	}
	if cfg.BLE.Enable {
		a.ble = app.NewBLEPeripheral(cfg.BLE, a.handler, appm, log)
		a.health.AddChecker(health.NewBLEChecker(a.ble.Subscribers))
	}
	if cfg.HTTP.Enable {
		opts := httpserver.Options{
			Health:  a.health,
			Device:  a.engine,
			Handler: a.handler,
			Events:  a.events.Dispatcher.Recent,
			Logger:  log.With(zap.String("component", "http")),
		}
		if a.events.HasHistory() {
			opts.History = a.events.History
		}
		if cfg.Metrics.Enable {
			opts.MetricsPath = cfg.Metrics.Path
			opts.MetricsHandler = metrics.Handler(reg)
		}
		a.httpSrv = app.NewHTTPServer(cfg.HTTP, opts)
	}
	return a, nil
}

// Instance 实例ID
func (a *App) Instance() string { return a.instance }

// Engine 指令分发器
func (a *App) Engine() *thermo.Engine { return a.engine }

// TCPAddr TCP 实际监听地址，未启用时为 nil
func (a *App) TCPAddr() net.Addr {
	if a.tcpSrv == nil {
		return nil
	}
	return a.tcpSrv.Addr()
}

// HTTPAddr HTTP 实际监听地址，未启用时为 nil
func (a *App) HTTPAddr() net.Addr {
	if a.httpSrv == nil {
		return nil
	}
	return a.httpSrv.Addr()
}

// Start 启动事件推送与各传输层（非阻塞）。TCP/HTTP 监听失败直接返回。
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.events.Dispatcher.Start(ctx)

	if a.httpSrv != nil {
		if err := a.httpSrv.Listen(); err != nil {
			a.cancel()
			return fmt.Errorf("http listen: %w", err)
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.httpSrv.Start(); err != nil {
				a.log.Error("http server error", zap.Error(err))
			}
		}()
		a.log.Info("http server started", zap.Stringer("addr", a.httpSrv.Addr()))
	}

	if a.serial != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.serial.Run(ctx); err != nil {
				a.log.Error("serial transport stopped", zap.Error(err))
			}
		}()
	}

	if a.ble != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.ble.Run(ctx); err != nil {
				if errors.Is(err, ble.ErrBLEUnsupported) {
					a.log.Warn("ble transport unavailable", zap.Error(err))
					return
				}
				a.log.Error("ble transport stopped", zap.Error(err))
			}
		}()
	}

	// TCP 最后启动，此时其余依赖均已就绪
	if a.tcpSrv != nil {
		if err := a.tcpSrv.Start(); err != nil {
			a.cancel()
			return fmt.Errorf("tcp listen: %w", err)
		}
		a.health.Readiness().Set("tcp", true)
	}

	a.log.Info("thermo emulator ready",
		zap.String("instance", a.instance),
		zap.Bool("tcp", a.tcpSrv != nil),
		zap.Bool("serial", a.serial != nil),
		zap.Bool("ble", a.ble != nil),
		zap.Bool("http", a.httpSrv != nil))
	return nil
}

// Shutdown 停止所有传输并刷新事件队列
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.tcpSrv != nil {
		a.health.Readiness().Set("tcp", false)
		if err := a.tcpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tcp shutdown: %w", err))
		}
		a.log.Info("tcp server stopped")
	}
	if a.httpSrv != nil {
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		a.log.Info("http server stopped")
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.events.Dispatcher.Wait()
	a.closeRedis()
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeRedis() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("close redis failed", zap.Error(err))
		}
	}
}

// Run 统一启动流程，阻塞直至 ctx 取消（通常由信号触发）
func Run(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting thermo emulator", zap.String("env", cfg.App.Env))

	a, err := New(cfg, log)
	if err != nil {
		log.Error("initialization failed", zap.Error(err))
		return err
	}
	if err := a.Start(ctx); err != nil {
		log.Error("start failed", zap.Error(err))
		_ = a.Shutdown(context.Background())
		return err
	}

	<-ctx.Done()
	log.Info("received shutdown signal, gracefully shutting down...")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Shutdown(sctx)
}
