package tcpserver

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/thermo-emulator/internal/protocol/adapter"
	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
)

// ErrConnClosed 连接已关闭
var ErrConnClosed = errors.New("connection closed")

// ConnContext 单个 TCP 连接：读循环切帧分发，写循环按序回写响应
type ConnContext struct {
	s       *Server
	c       net.Conn
	id      string
	writeC  chan []byte
	doneC   chan struct{}
	once    sync.Once
	adapter adapter.Adapter
	logger  *zap.Logger
}

func newConnContext(s *Server, c net.Conn) *ConnContext {
	cc := &ConnContext{
		s:      s,
		c:      c,
		id:     uuid.NewString(),
		writeC: make(chan []byte, 32),
		doneC:  make(chan struct{}),
	}
	cc.logger = s.logger.With(zap.String("conn_id", cc.id))
	a := thermo.NewAdapter(s.handler, cc.Write)
	a.SetLogger(cc.logger)
	a.SetDiscardCallback(s.hooks.OnDiscard)
	cc.adapter = a
	return cc
}

// ID 连接ID（UUID）
func (cc *ConnContext) ID() string { return cc.id }

// RemoteAddr 远端地址
func (cc *ConnContext) RemoteAddr() net.Addr { return cc.c.RemoteAddr() }

// Done 连接关闭通知
func (cc *ConnContext) Done() <-chan struct{} { return cc.doneC }

// Write 异步写入：复制数据后进入写队列，队列满时按写超时等待
func (cc *ConnContext) Write(b []byte) error {
	dup := append([]byte(nil), b...)
	to := cc.s.cfg.WriteTimeout
	if to <= 0 {
		to = 5 * time.Second
	}
	timer := time.NewTimer(to)
	defer timer.Stop()

	select {
	case <-cc.doneC:
		return ErrConnClosed
	default:
	}
	select {
	case cc.writeC <- dup:
		return nil
	case <-cc.doneC:
		return ErrConnClosed
	case <-timer.C:
		return errors.New("write queue timeout")
	}
}

// Close 关闭连接
func (cc *ConnContext) Close() error {
	var err error
	cc.once.Do(func() {
		close(cc.doneC)
		err = cc.c.Close()
	})
	return err
}

// run 启动读/写循环，阻塞直至连接结束
func (cc *ConnContext) run() {
	defer cc.Close()

	cc.s.wg.Add(1)
	go func() {
		defer cc.s.wg.Done()
		cc.writeLoop()
	}()

	buf := make([]byte, 4096)
	for {
		if to := cc.s.cfg.ReadTimeout; to > 0 {
			_ = cc.c.SetReadDeadline(time.Now().Add(to))
		}
		n, err := cc.c.Read(buf)
		if n > 0 {
			if cc.s.hooks.OnRecvBytes != nil {
				cc.s.hooks.OnRecvBytes(n)
			}
			if perr := cc.adapter.ProcessBytes(buf[:n]); perr != nil {
				cc.logger.Warn("write response failed", zap.Error(perr))
				return
			}
		}
		if err != nil {
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				cc.logger.Info("tcp connection idle timeout")
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			default:
				cc.logger.Debug("tcp read failed", zap.Error(err))
			}
			return
		}
	}
}

func (cc *ConnContext) writeLoop() {
	for {
		select {
		case msg := <-cc.writeC:
			if to := cc.s.cfg.WriteTimeout; to > 0 {
				_ = cc.c.SetWriteDeadline(time.Now().Add(to))
			}
			n, err := cc.c.Write(msg)
			if cc.s.hooks.OnSendBytes != nil && n > 0 {
				cc.s.hooks.OnSendBytes(n)
			}
			if err != nil {
				cc.logger.Debug("tcp write failed", zap.Error(err))
				_ = cc.Close()
				return
			}
		case <-cc.doneC:
			return
		}
	}
}
