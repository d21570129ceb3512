package serialport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
	"github.com/taoyao-code/thermo-emulator/internal/device"
	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
)

// fakePorts 每次打开返回一对管道，主机端通过 hosts 交给测试
type fakePorts struct {
	hosts chan net.Conn
	fails atomic.Int32
	opens atomic.Int32
}

func newFakePorts(failFirst int32) *fakePorts {
	f := &fakePorts{hosts: make(chan net.Conn, 4)}
	f.fails.Store(failFirst)
	return f
}

func (f *fakePorts) open(name string, baud int) (io.ReadWriteCloser, error) {
	f.opens.Add(1)
	if f.fails.Add(-1) >= 0 {
		return nil, errors.New("no such device")
	}
	host, dev := net.Pipe()
	f.hosts <- host
	return dev, nil
}

func roundTrip(t *testing.T, host net.Conn, cmd thermo.Command) *thermo.Response {
	t.Helper()
	_ = host.SetDeadline(time.Now().Add(2 * time.Second))
	req, err := thermo.NewRequest(cmd, 1)
	require.NoError(t, err)
	_, err = host.Write(req)
	require.NoError(t, err)

	dec := thermo.NewStreamDecoder()
	buf := make([]byte, 256)
	for {
		n, err := host.Read(buf)
		require.NoError(t, err)
		if frames, _ := dec.Feed(buf[:n]); len(frames) > 0 {
			resp, err := thermo.ParseResponse(frames[0])
			require.NoError(t, err)
			return resp
		}
	}
}

func TestTransport_ServeAndReopen(t *testing.T) {
	ports := newFakePorts(1)
	engine := thermo.NewEngine(device.NewState(nil))
	tr := New(cfgpkg.SerialConfig{Device: "/dev/ttyFAKE", Baud: 115200, ReopenDelay: 10 * time.Millisecond}, engine, nil)
	tr.SetOpenFunc(ports.open)

	var reopens, rx atomic.Int32
	tr.SetHooks(Hooks{
		OnReopen:    func() { reopens.Add(1) },
		OnRecvBytes: func(n int) { rx.Add(int32(n)) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	host := <-ports.hosts
	assert.Eventually(t, tr.Connected, time.Second, 5*time.Millisecond)
	resp := roundTrip(t, host, thermo.CmdPing)
	assert.Equal(t, thermo.StatusOK, resp.Status)
	assert.Equal(t, uint16(1), resp.Packet.Number)

	// 断开后重新打开，计数器延续
	require.NoError(t, host.Close())
	host = <-ports.hosts
	resp = roundTrip(t, host, thermo.CmdGetTemp)
	assert.Equal(t, thermo.StatusOK, resp.Status)
	assert.Equal(t, uint16(2), resp.Packet.Number)

	assert.Equal(t, int32(3), ports.opens.Load())
	assert.Equal(t, int32(2), reopens.Load())
	assert.Positive(t, rx.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not stop")
	}
	assert.False(t, tr.Connected())
}

func TestTransport_RequiresDevice(t *testing.T) {
	tr := New(cfgpkg.SerialConfig{}, thermo.NewEngine(device.NewState(nil)), nil)
	assert.Error(t, tr.Run(context.Background()))
}
