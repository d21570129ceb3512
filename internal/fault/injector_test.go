package fault

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/thermo-emulator/internal/device"
	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
)

// seqSampler 依次返回预设值
type seqSampler struct {
	vals []float64
	i    int
}

func (s *seqSampler) Float64() float64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

func newEngine() *thermo.Engine {
	return thermo.NewEngine(device.NewState(nil), thermo.WithNoise(device.NewSeededNoise(1)))
}

func ping(t *testing.T) []byte {
	t.Helper()
	b, err := thermo.NewRequest(thermo.CmdPing, 1)
	require.NoError(t, err)
	return b
}

func TestNew_DisabledReturnsNext(t *testing.T) {
	e := newEngine()
	h := New(e, Config{}, &seqSampler{vals: []float64{0}}, nil)
	assert.Same(t, e, h)
}

func TestInjector_Drop(t *testing.T) {
	var kinds []string
	h := New(newEngine(), Config{DropRate: 0.5}, &seqSampler{vals: []float64{0.1, 0.9}}, nil)
	h.(*Injector).OnFault(func(k string) { kinds = append(kinds, k) })

	resp, err := h.HandleRequest(ping(t))
	require.NoError(t, err)
	assert.Nil(t, resp)

	resp, err = h.HandleRequest(ping(t))
	require.NoError(t, err)
	_, err = thermo.ParseResponse(resp)
	assert.NoError(t, err)

	assert.Equal(t, []string{KindDrop}, kinds)
}

func TestInjector_CorruptCRC(t *testing.T) {
	h := New(newEngine(), Config{CorruptCRCRate: 1}, &seqSampler{vals: []float64{0.3}}, nil)

	resp, err := h.HandleRequest(ping(t))
	require.NoError(t, err)
	require.NotEmpty(t, resp)
	_, err = thermo.ParseResponse(resp)
	assert.True(t, errors.Is(err, thermo.ErrCRCMismatch))
}

func TestInjector_PassesFramingErrors(t *testing.T) {
	h := New(newEngine(), Config{DropRate: 1}, &seqSampler{vals: []float64{0}}, nil)
	bad := ping(t)
	bad[0] = 0
	resp, err := h.HandleRequest(bad)
	assert.ErrorIs(t, err, thermo.ErrBadStartMarker)
	assert.Nil(t, resp)
}
