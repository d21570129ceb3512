package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
	"github.com/taoyao-code/thermo-emulator/internal/metrics"
	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
	"github.com/taoyao-code/thermo-emulator/internal/tcpserver"
)

// NewTCPServer 根据配置创建 TCP 传输并挂接指标
func NewTCPServer(cfg cfgpkg.TCPConfig, h thermo.Handler, appm *metrics.AppMetrics, logger *zap.Logger) *tcpserver.Server {
	s := tcpserver.New(cfg, h, logger.With(zap.String("component", "tcp")))
	s.SetHooks(tcpserver.Hooks{
		OnAccept:     appm.TCPAccepted.Inc,
		OnReject:     func(reason string) { appm.TCPRejected.WithLabelValues(reason).Inc() },
		OnRecvBytes:  func(n int) { appm.AddBytes("rx", n) },
		OnSendBytes:  func(n int) { appm.AddBytes("tx", n) },
		OnDiscard:    appm.ObserveFrameError,
		OnConnChange: func(active int) { appm.TCPOnline.Set(float64(active)) },
	})
	return s
}
