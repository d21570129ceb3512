package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/thermo-emulator/internal/tcpserver"
)

// TCPStats TCP 服务接入统计来源
type TCPStats interface {
	AdmissionStats() tcpserver.AdmissionStats
}

// TCPChecker TCP 传输健康检查器
type TCPChecker struct {
	server TCPStats
}

// NewTCPChecker 创建TCP健康检查器
func NewTCPChecker(server TCPStats) *TCPChecker {
	return &TCPChecker{server: server}
}

// Name 返回检查器名称
func (c *TCPChecker) Name() string {
	return "tcp"
}

// Check 按连接利用率判断：>80% 降级，>95% 不健康
func (c *TCPChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	st := c.server.AdmissionStats()
	active, maxConns := st.ActiveConnections, st.MaxConnections
	utilization := 0.0
	if maxConns > 0 {
		utilization = float64(active) / float64(maxConns)
	}

	status := StatusHealthy
	message := "ok"
	if utilization > 0.8 {
		status = StatusDegraded
		message = "high connection usage"
	}
	if utilization > 0.95 {
		status = StatusUnhealthy
		message = "connection limit near exhausted"
	}

	details := map[string]any{
		"active_connections": active,
		"max_connections":    maxConns,
		"utilization":        fmt.Sprintf("%.1f%%", utilization*100),
		"rejected_total":     st.RejectedTotal,
		"rate_limited_total": st.RateLimitedTotal,
		"hosts":              len(st.Hosts),
	}
	// 连接最多的来源主机，便于定位重连风暴
	var top *tcpserver.HostStats
	for i := range st.Hosts {
		if top == nil || st.Hosts[i].Active > top.Active {
			top = &st.Hosts[i]
		}
	}
	if top != nil && top.Active > 0 {
		details["top_host"] = top.Host
		details["top_host_active"] = top.Active
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
