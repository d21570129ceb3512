package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
)

// ErrClosed 客户端已关闭
var ErrClosed = errors.New("client closed")

// deadliner net.Conn 等支持超时的连接
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Client 主机侧客户端：发送一条请求，等待一条设备响应
type Client struct {
	rw      io.ReadWriteCloser
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	seq     uint16
	dec     *thermo.StreamDecoder
	pending [][]byte
	closed  bool
}

// Option 客户端选项
type Option func(*Client)

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeout 设置默认请求超时（ctx 无截止时间时生效）
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New 基于已建立的连接创建客户端
func New(rw io.ReadWriteCloser, opts ...Option) *Client {
	c := &Client{
		rw:      rw,
		logger:  zap.NewNop(),
		timeout: 5 * time.Second,
		dec:     thermo.NewStreamDecoder(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Dial 连接 TCP 传输
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, opts...), nil
}

// Do 发送指令并等待响应
func (c *Client) Do(ctx context.Context, cmd thermo.Command, params ...thermo.Item) (*thermo.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	c.seq = (c.seq + 1) % 0x80
	req, err := thermo.NewRequest(cmd, c.seq, params...)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if dl, ok := c.rw.(deadliner); ok {
		deadline, has := ctx.Deadline()
		if !has && c.timeout > 0 {
			deadline = time.Now().Add(c.timeout)
		}
		_ = dl.SetDeadline(deadline)
		defer dl.SetDeadline(time.Time{})
	}

	if _, err := c.rw.Write(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	c.logger.Debug("request sent", zap.String("cmd", cmd.String()), zap.Uint16("packet_number", c.seq))

	raw, err := c.readFrame(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := thermo.ParseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	c.logger.Debug("response received",
		zap.String("cmd", resp.Command.String()),
		zap.String("status", resp.Status.String()),
		zap.Uint16("packet_number", resp.Packet.Number))
	return resp, nil
}

func (c *Client) readFrame(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 1024)
	for len(c.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := c.rw.Read(buf)
		if n > 0 {
			frames, errs := c.dec.Feed(buf[:n])
			for _, e := range errs {
				c.logger.Debug("discard response bytes", zap.Error(e))
			}
			c.pending = append(c.pending, frames...)
		}
		if err != nil && len(c.pending) == 0 {
			return nil, fmt.Errorf("read response: %w", err)
		}
	}
	fr := c.pending[0]
	c.pending = c.pending[1:]
	return fr, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rw.Close()
}
