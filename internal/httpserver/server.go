package httpserver

import (
	"context"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
	"github.com/taoyao-code/thermo-emulator/internal/device"
	"github.com/taoyao-code/thermo-emulator/internal/events"
	"github.com/taoyao-code/thermo-emulator/internal/health"
	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
)

// Options 路由依赖，未设置的依赖对应路由不注册
type Options struct {
	MetricsPath    string
	MetricsHandler http.Handler
	Health         *health.Aggregator
	// Device 设备状态快照
	Device health.Snapshotter
	// Handler 调试用的请求处理入口（与传输层同一条链路）
	Handler thermo.Handler
	// Events 最近的报警事件
	Events func() []events.AlarmEvent
	// History Redis 中的报警事件历史（新在前）
	History func(ctx context.Context, n int64) ([]events.AlarmEvent, error)
	Logger *zap.Logger
}

// Server HTTP 服务封装
type Server struct {
	srv    *http.Server
	engine *gin.Engine
	ln     net.Listener
}

// New 创建并配置 Gin + HTTP Server
func New(cfg cfgpkg.HTTPConfig, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), accessLog(logger))

	if opts.Health != nil {
		health.RegisterHTTPRoutes(r, opts.Health)
	} else {
		r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	}
	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(opts.MetricsHandler))
	}

	api := r.Group("/api/v1")
	if len(cfg.APIKeys) > 0 {
		api.Use(apiKeyAuth(cfg.APIKeys, logger))
	}
	h := &handlers{opts: opts, logger: logger}
	if opts.Device != nil {
		api.GET("/device", h.device)
	}
	if opts.Events != nil {
		api.GET("/events", h.events)
	}
	if opts.History != nil {
		api.GET("/events/history", h.history)
	}
	if opts.Handler != nil {
		api.POST("/packets", h.packet)
	}

	return &Server{
		engine: r,
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Handler 路由处理器（测试用）
func (s *Server) Handler() http.Handler { return s.engine }

// Listen 绑定监听地址，便于启动前获知实际端口
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr 实际监听地址
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start 启动 HTTP 服务（阻塞），正常关闭时返回 nil
func (s *Server) Start() error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type handlers struct {
	opts   Options
	logger *zap.Logger
}

type alarmView struct {
	ID     uint8   `json:"id"`
	Name   string  `json:"name"`
	Low    float32 `json:"low"`
	High   float32 `json:"high"`
	Active bool    `json:"active"`
}

type deviceView struct {
	Temperature   float32     `json:"temperature"`
	PacketCounter uint16      `json:"packet_counter"`
	Alarms        []alarmView `json:"alarms"`
}

func (h *handlers) device(c *gin.Context) {
	st := h.opts.Device.Snapshot()
	view := deviceView{
		Temperature:   st.Temperature,
		PacketCounter: st.PacketCounter(),
		Alarms:        make([]alarmView, 0, len(st.Alarms)),
	}
	for _, a := range st.Alarms {
		view.Alarms = append(view.Alarms, alarmView{
			ID: a.ID, Name: device.AlarmName(a.ID), Low: a.Low, High: a.High, Active: st.Active[a.ID],
		})
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) events(c *gin.Context) {
	list := h.opts.Events()
	if list == nil {
		list = []events.AlarmEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": list})
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// history ?limit=N，缺省 50，上限 1000
func (h *handlers) history(c *gin.Context) {
	limit := int64(defaultHistoryLimit)
	if s := c.Query("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	list, err := h.opts.History(c.Request.Context(), limit)
	if err != nil {
		h.logger.Warn("read event history failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []events.AlarmEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": list})
}

type packetRequest struct {
	Hex string `json:"hex" binding:"required"`
}

// packet 以十六进制提交一个原始请求包，返回响应包；帧错误或丢弃时 response 为空
func (h *handlers) packet(c *gin.Context) {
	var req packetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	raw, err := hex.DecodeString(strings.ReplaceAll(req.Hex, " ", ""))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hex: " + err.Error()})
		return
	}

	resp, err := h.opts.Handler.HandleRequest(raw)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"response": "", "dropped": true, "reason": thermo.FramingReason(err)})
		return
	}
	out := gin.H{"response": hex.EncodeToString(resp), "dropped": len(resp) == 0}
	if parsed, perr := thermo.ParseResponse(resp); perr == nil {
		out["command"] = parsed.Command.String()
		out["status"] = parsed.Status.String()
		if parsed.Diagnostic != "" {
			out["diagnostic"] = parsed.Diagnostic
		}
	}
	c.JSON(http.StatusOK, out)
}
