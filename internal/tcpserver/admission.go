package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
)

// 接入拒绝原因
var (
	ErrConnLimit   = errors.New("connection limit exceeded")
	ErrRateLimited = errors.New("accept rate exceeded")
)

const (
	defaultMaxConnections = 64
	defaultAcquireWait    = time.Second
	// 无活跃连接且超过该时长未建连的来源主机被清理
	hostIdleTTL = 5 * time.Minute
)

// RejectReason 拒绝原因标签（指标使用）
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrConnLimit):
		return "conn_limit"
	default:
		return "other"
	}
}

// HostStats 单个来源主机的接入统计
type HostStats struct {
	Host     string `json:"host"`
	Active   int    `json:"active"`
	Rejected int64  `json:"rejected"`
}

// AdmissionStats 接入控制统计
type AdmissionStats struct {
	MaxConnections    int         `json:"max_connections"`
	ActiveConnections int         `json:"active_connections"`
	RejectedTotal     int64       `json:"rejected_total"`
	RateLimitedTotal  int64       `json:"rate_limited_total"`
	Hosts             []HostStats `json:"hosts"`
}

type hostGate struct {
	limiter  *rate.Limiter
	active   int
	rejected int64
	lastSeen time.Time
}

// admission 接入控制：全局并发槽位 + 按来源主机的建连令牌桶。
// 一个测试主机的重连风暴不会占满其他主机的建连配额。
type admission struct {
	slots chan struct{}
	wait  time.Duration
	limit rate.Limit
	burst int
	now   func() time.Time

	mu          sync.Mutex
	hosts       map[string]*hostGate
	active      int
	rejected    int64
	rateLimited int64
}

func newAdmission(cfg cfgpkg.TCPConfig) *admission {
	maxConn := cfg.MaxConnections
	if maxConn <= 0 {
		maxConn = defaultMaxConnections
	}
	wait := cfg.AcquireTimeout
	if wait <= 0 {
		wait = defaultAcquireWait
	}
	a := &admission{
		slots: make(chan struct{}, maxConn),
		wait:  wait,
		now:   time.Now,
		hosts: make(map[string]*hostGate),
	}
	if cfg.AcceptRate > 0 {
		a.limit = rate.Limit(cfg.AcceptRate)
		a.burst = cfg.AcceptBurst
		if a.burst <= 0 {
			a.burst = cfg.AcceptRate * 2
		}
	}
	return a
}

// admit 先按来源主机限速，再在 wait 内等待全局槽位。
// 成功时返回的 release 在连接结束时调用，重复调用无副作用。
func (a *admission) admit(ctx context.Context, addr net.Addr) (func(), error) {
	host := hostOf(addr)

	a.mu.Lock()
	g := a.gateLocked(host)
	if g.limiter != nil && !g.limiter.AllowN(a.now(), 1) {
		g.rejected++
		a.rateLimited++
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: host=%s", ErrRateLimited, host)
	}
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, a.wait)
	defer cancel()
	select {
	case a.slots <- struct{}{}:
	case <-ctx.Done():
		a.mu.Lock()
		g.rejected++
		a.rejected++
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: max=%d", ErrConnLimit, cap(a.slots))
	}

	a.mu.Lock()
	g.active++
	a.active++
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			<-a.slots
			a.mu.Lock()
			g.active--
			a.active--
			g.lastSeen = a.now()
			a.mu.Unlock()
		})
	}, nil
}

// gateLocked 取得（必要时创建）来源主机的闸门，并顺带清理空闲主机。须持有 a.mu。
func (a *admission) gateLocked(host string) *hostGate {
	now := a.now()
	for h, g := range a.hosts {
		if h != host && g.active == 0 && now.Sub(g.lastSeen) > hostIdleTTL {
			delete(a.hosts, h)
		}
	}
	g, ok := a.hosts[host]
	if !ok {
		g = &hostGate{}
		if a.limit > 0 {
			g.limiter = rate.NewLimiter(a.limit, a.burst)
		}
		a.hosts[host] = g
	}
	g.lastSeen = now
	return g
}

func (a *admission) maxConnections() int { return cap(a.slots) }

func (a *admission) activeConnections() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *admission) stats() AdmissionStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := AdmissionStats{
		MaxConnections:    cap(a.slots),
		ActiveConnections: a.active,
		RejectedTotal:     a.rejected,
		RateLimitedTotal:  a.rateLimited,
		Hosts:             make([]HostStats, 0, len(a.hosts)),
	}
	for h, g := range a.hosts {
		st.Hosts = append(st.Hosts, HostStats{Host: h, Active: g.active, Rejected: g.rejected})
	}
	sort.Slice(st.Hosts, func(i, j int) bool { return st.Hosts[i].Host < st.Hosts[j].Host })
	return st
}

// hostOf 取来源 IP；无法解析时使用完整地址
func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if ta, ok := addr.(*net.TCPAddr); ok {
		return ta.IP.String()
	}
	if h, _, err := net.SplitHostPort(addr.String()); err == nil {
		return h
	}
	return addr.String()
}
