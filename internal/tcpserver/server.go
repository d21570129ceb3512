package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
)

// Hooks 可选回调（指标）
type Hooks struct {
	OnAccept     func()
	OnReject     func(reason string)
	OnRecvBytes  func(n int)
	OnSendBytes  func(n int)
	OnDiscard    func(err error)
	OnConnChange func(active int)
}

// Server TCP 传输：每个连接独立切帧，请求交给共享的 Handler 串行处理
type Server struct {
	cfg     cfgpkg.TCPConfig
	handler thermo.Handler
	logger  *zap.Logger
	hooks   Hooks

	admission *admission

	ln       net.Listener
	wg       sync.WaitGroup
	stopC    chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	conns map[string]*ConnContext
}

// New 创建 TCP 服务
func New(cfg cfgpkg.TCPConfig, h thermo.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		handler:   h,
		logger:    logger,
		admission: newAdmission(cfg),
		stopC:     make(chan struct{}),
		conns:     make(map[string]*ConnContext),
	}
}

// SetHooks 设置指标回调，须在 Start 之前调用
func (s *Server) SetHooks(h Hooks) { s.hooks = h }

// Start 监听并接受连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("tcp listening", zap.String("addr", ln.Addr().String()),
		zap.Int("max_connections", s.admission.maxConnections()),
		zap.Int("accept_rate_per_host", s.cfg.AcceptRate))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr 实际监听地址
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopC:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("tcp accept failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}

		release, err := s.admission.admit(context.Background(), c.RemoteAddr())
		if err != nil {
			s.reject(c, err)
			continue
		}
		if s.hooks.OnAccept != nil {
			s.hooks.OnAccept()
		}

		cc := newConnContext(s, c)
		s.track(cc, true)
		select {
		case <-s.stopC:
			// 关闭过程中接入的连接
			_ = cc.Close()
		default:
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer release()
			defer s.track(cc, false)
			cc.run()
		}()
	}
}

func (s *Server) reject(c net.Conn, err error) {
	reason := RejectReason(err)
	s.logger.Warn("tcp connection rejected",
		zap.String("remote_addr", c.RemoteAddr().String()),
		zap.String("reason", reason), zap.Error(err))
	_ = c.Close()
	if s.hooks.OnReject != nil {
		s.hooks.OnReject(reason)
	}
}

func (s *Server) track(cc *ConnContext, add bool) {
	s.mu.Lock()
	if add {
		s.conns[cc.ID()] = cc
	} else {
		delete(s.conns, cc.ID())
	}
	n := len(s.conns)
	s.mu.Unlock()

	if add {
		s.logger.Info("tcp connection opened", zap.String("conn_id", cc.ID()),
			zap.String("remote_addr", cc.RemoteAddr().String()), zap.Int("active", n))
	} else {
		s.logger.Info("tcp connection closed", zap.String("conn_id", cc.ID()), zap.Int("active", n))
	}
	if s.hooks.OnConnChange != nil {
		s.hooks.OnConnChange(n)
	}
}

// ActiveConnections 当前连接数
func (s *Server) ActiveConnections() int { return s.admission.activeConnections() }

// MaxConnections 最大连接数
func (s *Server) MaxConnections() int { return s.admission.maxConnections() }

// AdmissionStats 接入控制统计（含按来源主机的明细）
func (s *Server) AdmissionStats() AdmissionStats { return s.admission.stats() }

// Shutdown 关闭监听与所有连接，并等待 goroutine 退出
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopC)
		if s.ln != nil {
			_ = s.ln.Close()
		}
		s.mu.Lock()
		for _, cc := range s.conns {
			_ = cc.Close()
		}
		s.mu.Unlock()
	})

	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
