package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/thermo-emulator/internal/device"
	"github.com/taoyao-code/thermo-emulator/internal/events"
	"github.com/taoyao-code/thermo-emulator/internal/tcpserver"
)

// mockChecker 模拟检查器
type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "mock", Latency: time.Millisecond}
}

type slowChecker struct{}

func (slowChecker) Name() string { return "slow" }

func (slowChecker) Check(ctx context.Context) CheckResult {
	<-ctx.Done()
	return CheckResult{Status: StatusUnhealthy, Message: ctx.Err().Error()}
}

func TestAggregator(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		states []Status
		want   Status
		ready  bool
	}{
		{"全部健康", []Status{StatusHealthy, StatusHealthy}, StatusHealthy, true},
		{"部分降级仍就绪", []Status{StatusHealthy, StatusDegraded}, StatusDegraded, true},
		{"任一不健康", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy, false},
		{"无检查器", nil, StatusHealthy, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg := NewAggregator()
			for i, s := range tc.states {
				agg.AddChecker(&mockChecker{name: string(rune('a' + i)), status: s})
			}
			assert.Equal(t, tc.want, agg.OverallStatus(ctx))
			assert.Equal(t, tc.ready, agg.Ready(ctx))
			assert.Len(t, agg.CheckAll(ctx), len(tc.states))
		})
	}

	t.Run("传输未就绪", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"engine", StatusHealthy})
		agg.Readiness().Register("tcp")
		agg.Readiness().Register("serial")
		assert.False(t, agg.Ready(ctx))
		assert.Equal(t, []string{"serial", "tcp"}, agg.Readiness().Pending())

		agg.Readiness().Set("tcp", true)
		agg.Readiness().Set("serial", true)
		assert.True(t, agg.Ready(ctx))
		assert.True(t, agg.Report(ctx).Ready)
	})

	t.Run("检查器超时", func(t *testing.T) {
		agg := NewAggregator(slowChecker{})
		agg.timeout = 20 * time.Millisecond
		res := agg.CheckAll(ctx)
		assert.Equal(t, StatusUnhealthy, res["slow"].Status)
	})

	t.Run("Alive始终返回true", func(t *testing.T) {
		assert.True(t, NewAggregator().Alive())
	})
}

type fakeTCP struct {
	active, max int
	rejected    int64
	hosts       []tcpserver.HostStats
}

func (f fakeTCP) AdmissionStats() tcpserver.AdmissionStats {
	return tcpserver.AdmissionStats{
		MaxConnections:    f.max,
		ActiveConnections: f.active,
		RejectedTotal:     f.rejected,
		RateLimitedTotal:  3,
		Hosts:             f.hosts,
	}
}

func TestTCPChecker(t *testing.T) {
	cases := []struct {
		active int
		want   Status
	}{
		{0, StatusHealthy},
		{80, StatusHealthy},
		{85, StatusDegraded},
		{96, StatusUnhealthy},
	}
	for _, tc := range cases {
		res := NewTCPChecker(fakeTCP{active: tc.active, max: 100, rejected: 2}).Check(context.Background())
		assert.Equal(t, tc.want, res.Status, "active=%d", tc.active)
		assert.Equal(t, int64(2), res.Details["rejected_total"])
		assert.Equal(t, int64(3), res.Details["rate_limited_total"])
	}

	res := NewTCPChecker(fakeTCP{active: 5, max: 100, hosts: []tcpserver.HostStats{
		{Host: "10.0.0.1", Active: 1},
		{Host: "10.0.0.2", Active: 4, Rejected: 9},
	}}).Check(context.Background())
	assert.Equal(t, 2, res.Details["hosts"])
	assert.Equal(t, "10.0.0.2", res.Details["top_host"])
	assert.Equal(t, 4, res.Details["top_host_active"])
}

type fakeRedis struct{ err error }

func (f fakeRedis) HealthCheck(context.Context) error { return f.err }
func (f fakeRedis) Stats() *redis.PoolStats           { return &redis.PoolStats{TotalConns: 2, IdleConns: 1} }

func TestRedisChecker(t *testing.T) {
	ctx := context.Background()

	res := NewRedisChecker(fakeRedis{}, nil).Check(ctx)
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, uint32(2), res.Details["total_conns"])

	res = NewRedisChecker(fakeRedis{err: errors.New("connection refused")}, nil).Check(ctx)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Contains(t, res.Message, "connection refused")

	cb := events.NewCircuitBreaker(1, time.Hour)
	_ = cb.Call(func() error { return errors.New("boom") })
	res = NewRedisChecker(fakeRedis{}, cb).Check(ctx)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "open", res.Details["breaker_state"])
}

type fakeEngine struct{ st device.State }

func (f fakeEngine) Snapshot() device.State { return f.st }

func TestEngineChecker(t *testing.T) {
	st := device.NewState(nil)
	st.NextPacketNumber()
	st.Active[device.AlarmLED] = true

	res := NewEngineChecker(fakeEngine{st: st}).Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, uint16(1), res.Details["packet_counter"])
	assert.Equal(t, []string{"led"}, res.Details["active_alarms"])
}

func TestTransportCheckers(t *testing.T) {
	open := false
	sc := NewSerialChecker("/dev/ttyUSB0", func() bool { return open })
	assert.Equal(t, StatusDegraded, sc.Check(context.Background()).Status)
	open = true
	assert.Equal(t, StatusHealthy, sc.Check(context.Background()).Status)

	bc := NewBLEChecker(func() int { return 2 })
	assert.Equal(t, 2, bc.Check(context.Background()).Details["subscribers"])
}

func TestHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	agg := NewAggregator(&mockChecker{"engine", StatusHealthy})
	agg.Readiness().Register("tcp")
	r := gin.New()
	RegisterHTTPRoutes(r, agg)

	do := func(path string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w.Code
	}
	assert.Equal(t, http.StatusOK, do("/healthz"))
	assert.Equal(t, http.StatusOK, do("/health/live"))
	assert.Equal(t, http.StatusServiceUnavailable, do("/readyz"))
	assert.Equal(t, http.StatusOK, do("/health"))

	agg.Readiness().Set("tcp", true)
	assert.Equal(t, http.StatusOK, do("/health/ready"))

	agg.AddChecker(&mockChecker{"redis", StatusUnhealthy})
	require.Equal(t, http.StatusServiceUnavailable, do("/health"))
}
