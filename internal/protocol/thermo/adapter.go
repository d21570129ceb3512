package thermo

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/thermo-emulator/internal/protocol/adapter"
)

var _ adapter.Adapter = (*Adapter)(nil)

// Adapter 字节流协议适配器：切帧后交给 Handler，并把响应写回连接
type Adapter struct {
	decoder *StreamDecoder
	handler Handler
	write   func([]byte) error
	logger  *zap.Logger

	// onDiscard 丢弃候选包时回调（指标）
	onDiscard func(err error)
}

// NewAdapter 创建适配器，write 用于回写响应
func NewAdapter(h Handler, write func([]byte) error) *Adapter {
	return &Adapter{decoder: NewStreamDecoder(), handler: h, write: write, logger: zap.NewNop()}
}

// SetLogger 设置日志器
func (a *Adapter) SetLogger(l *zap.Logger) {
	if l != nil {
		a.logger = l
	}
}

// SetDiscardCallback 设置丢弃回调
func (a *Adapter) SetDiscardCallback(fn func(error)) { a.onDiscard = fn }

// ProcessBytes 处理原始字节流：切帧、分发、回写。帧错误只记录，不应答。
func (a *Adapter) ProcessBytes(p []byte) error {
	frames, errs := a.decoder.Feed(p)
	for _, err := range errs {
		a.logger.Debug("discard stream bytes", zap.Error(err))
		if a.onDiscard != nil {
			a.onDiscard(err)
		}
	}
	for _, fr := range frames {
		resp, err := a.handler.HandleRequest(fr)
		if err != nil {
			continue
		}
		if len(resp) == 0 {
			continue
		}
		if err := a.write(resp); err != nil {
			return err
		}
	}
	return nil
}
