package bootstrap

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/thermo-emulator/internal/client"
	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
)

func testConfig(t *testing.T) *cfgpkg.Config {
	t.Helper()
	profile := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("temperature: 31.0\n"), 0o644))

	return &cfgpkg.Config{
		App:     cfgpkg.AppConfig{Name: "thermo-emulator", Env: "test", InstanceID: "thermo-test"},
		HTTP:    cfgpkg.HTTPConfig{Enable: true, Addr: "127.0.0.1:0"},
		TCP:     cfgpkg.TCPConfig{Enable: true, Addr: "127.0.0.1:0", MaxConnections: 4, WriteTimeout: time.Second},
		Device:  cfgpkg.DeviceConfig{Profile: profile, Seed: 11},
		Metrics: cfgpkg.MetricsConfig{Enable: true, Path: "/metrics"},
	}
}

func TestApp_EndToEnd(t *testing.T) {
	a, err := New(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "thermo-test", a.Instance())

	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, a.Shutdown(ctx))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, a.TCPAddr().String())
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Do(ctx, thermo.CmdGetTemp)
	require.NoError(t, err)
	require.Equal(t, thermo.StatusOK, resp.Status)
	v, ok := resp.Field(thermo.TagTemperature)
	require.True(t, ok)
	assert.InDelta(t, 31.0, v.(float32), 0.11)

	// 31℃ 越过蜂鸣器上限 30，产生一条报警事件
	require.Eventually(t, func() bool {
		return len(a.events.Dispatcher.Recent()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	ev := a.events.Dispatcher.Recent()[0]
	assert.Equal(t, "buzzer", ev.Alarm)
	assert.True(t, ev.Active)
	assert.Equal(t, "thermo-test", ev.Instance)

	base := "http://" + a.HTTPAddr().String()
	get := func(path string) (int, string) {
		r, err := http.Get(base + path)
		require.NoError(t, err)
		defer r.Body.Close()
		b, _ := io.ReadAll(r.Body)
		return r.StatusCode, string(b)
	}

	code, _ := get("/readyz")
	assert.Equal(t, http.StatusOK, code)

	code, body := get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `thermo_request_total{cmd="temp",status="ok"} 1`)
	assert.Contains(t, body, `thermo_alarm_active{alarm="buzzer"} 1`)
	assert.Contains(t, body, "tcp_accept_total 1")

	code, body = get("/api/v1/device")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"packet_counter":1`)
}

func TestApp_BadProfile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device.Profile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTP.Enable = false
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, zap.NewNop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
