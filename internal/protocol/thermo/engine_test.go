package thermo

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/thermo-emulator/internal/device"
)

// 2024-03-17 是周日
var fixedNow = time.Date(2024, time.March, 17, 13, 45, 30, 0, time.UTC)

func newTestEngine(t *testing.T, p *device.Profile, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithNoise(device.NewSeededNoise(42)),
		WithClock(func() time.Time { return fixedNow }),
	}
	return NewEngine(device.NewState(p), append(base, opts...)...)
}

func call(t *testing.T, e *Engine, cmd Command, params ...Item) *Response {
	t.Helper()
	req, err := NewRequest(cmd, 1, params...)
	require.NoError(t, err)
	out, err := e.HandleRequest(req)
	require.NoError(t, err)
	resp, err := ParseResponse(out)
	require.NoError(t, err)
	return resp
}

func TestEngine_Ping(t *testing.T) {
	e := newTestEngine(t, nil)
	resp := call(t, e, CmdPing)

	assert.Equal(t, CmdPing, resp.Command)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, PacketDeviceResponse, resp.Packet.Type)
	assert.Equal(t, uint16(0), resp.Packet.ResponseNumber)
	assert.Equal(t, uint16(1), resp.Packet.Number)
	assert.Empty(t, resp.Fields)
	assert.Empty(t, resp.Diagnostic)
}

func TestEngine_PacketNumberWraps(t *testing.T) {
	e := newTestEngine(t, nil)
	for i := 1; i <= 130; i++ {
		resp := call(t, e, CmdPing)
		assert.Equal(t, uint16(i%128), resp.Packet.Number, "dispatch %d", i)
	}
}

func TestEngine_PacketNumberAdvancesOnRejection(t *testing.T) {
	e := newTestEngine(t, nil)
	assert.Equal(t, uint16(1), call(t, e, Command("zzzz")).Packet.Number)
	assert.Equal(t, uint16(2), call(t, e, CmdSetRTCDate).Packet.Number)
	assert.Equal(t, uint16(3), call(t, e, CmdPing).Packet.Number)
}

func TestEngine_UnknownCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{"ASCII", Command("zzzz")},
		{"非ASCII", Command([]byte{0x01, 0x02, 0xFE, 0xFF})},
		{"空指令码", Command("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, nil)
			resp := call(t, e, tt.cmd)
			assert.Equal(t, tt.cmd, resp.Command)
			assert.Equal(t, StatusInvalidParam, resp.Status)
			assert.NotEmpty(t, resp.Diagnostic)
		})
	}
}

func TestEngine_MissingIN(t *testing.T) {
	e := newTestEngine(t, nil)
	payload, err := Encode(TagYear, 24)
	require.NoError(t, err)
	req, err := Build(PacketHostRequest, 9, 0, payload)
	require.NoError(t, err)

	out, err := e.HandleRequest(req)
	require.NoError(t, err)
	resp, err := ParseResponse(out)
	require.NoError(t, err)
	assert.Equal(t, Command(""), resp.Command)
	assert.Equal(t, StatusInvalidParam, resp.Status)
}

func TestEngine_SetRTCDate(t *testing.T) {
	e := newTestEngine(t, nil)
	before := e.Snapshot()

	resp := call(t, e, CmdSetRTCDate,
		Item{Tag: TagYear, Value: 24},
		Item{Tag: TagMonth, Value: 3},
		Item{Tag: TagDay, Value: 17},
	)
	assert.Equal(t, CmdSetRTCDate, resp.Command)
	assert.Equal(t, StatusInvalidParam, resp.Status)
	assert.Contains(t, resp.Diagnostic, "WK")

	after := e.Snapshot()
	assert.Equal(t, before.Temperature, after.Temperature)
	assert.Equal(t, before.Alarms, after.Alarms)

	resp = call(t, e, CmdSetRTCDate,
		Item{Tag: TagYear, Value: 24},
		Item{Tag: TagMonth, Value: 3},
		Item{Tag: TagDay, Value: 17},
		Item{Tag: TagWeekday, Value: 7},
	)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Empty(t, resp.Fields)
}

func TestEngine_SetRTCTime(t *testing.T) {
	e := newTestEngine(t, nil)

	resp := call(t, e, CmdSetRTCTime, Item{Tag: TagHour, Value: 1})
	assert.Equal(t, StatusInvalidParam, resp.Status)
	assert.Contains(t, resp.Diagnostic, "MM")
	assert.Contains(t, resp.Diagnostic, "SS")

	// 取值范围不校验
	resp = call(t, e, CmdSetRTCTime,
		Item{Tag: TagHour, Value: 99},
		Item{Tag: TagMinute, Value: 99},
		Item{Tag: TagSecond, Value: 99},
	)
	assert.Equal(t, StatusOK, resp.Status)

	// 设置后读取的仍是宿主时钟
	resp = call(t, e, CmdGetRTCTime)
	hh, _ := resp.Field(TagHour)
	assert.Equal(t, uint8(13), hh)
}

func TestEngine_GetRTC(t *testing.T) {
	e := newTestEngine(t, nil)

	resp := call(t, e, CmdGetRTCDate)
	require.Equal(t, StatusOK, resp.Status)
	want := map[string]uint8{TagYear: 24, TagMonth: 3, TagDay: 17, TagWeekday: 7}
	for tag, v := range want {
		got, ok := resp.Field(tag)
		require.True(t, ok, tag)
		assert.Equal(t, v, got, tag)
	}

	resp = call(t, e, CmdGetRTCTime)
	require.Equal(t, StatusOK, resp.Status)
	want = map[string]uint8{TagHour: 13, TagMinute: 45, TagSecond: 30}
	for tag, v := range want {
		got, ok := resp.Field(tag)
		require.True(t, ok, tag)
		assert.Equal(t, v, got, tag)
	}
}

func TestEngine_GetTemperatureWalk(t *testing.T) {
	e := newTestEngine(t, nil)
	prev := device.DefaultTemperature
	for i := 0; i < 20; i++ {
		resp := call(t, e, CmdGetTemp)
		require.Equal(t, StatusOK, resp.Status)
		v, ok := resp.Field(TagTemperature)
		require.True(t, ok)
		temp := v.(float32)
		assert.InDelta(t, prev, temp, 0.1001)
		assert.Equal(t, temp, e.Snapshot().Temperature)
		prev = temp
	}
}

func TestEngine_GetLog(t *testing.T) {
	e := newTestEngine(t, nil)

	resp := call(t, e, CmdGetLog,
		Item{Tag: TagLogStart, Value: 0},
		Item{Tag: TagLogEnd, Value: 900},
		Item{Tag: TagMaxCount, Value: 10},
	)
	require.Equal(t, StatusOK, resp.Status)
	v, ok := resp.Field(TagLogList)
	require.True(t, ok)
	entries := DecodeLog(v.(TypedFields))
	require.Len(t, entries, 4)
	for i, le := range entries {
		assert.Equal(t, uint64(i*300), le.Timestamp)
		assert.GreaterOrEqual(t, le.Temperature, float32(20))
		assert.LessOrEqual(t, le.Temperature, float32(30))
	}
}

func TestEngine_GetLogLimits(t *testing.T) {
	tests := []struct {
		name   string
		params []Item
		want   int
	}{
		{"默认上限100", []Item{{Tag: TagLogStart, Value: 0}, {Tag: TagLogEnd, Value: 1_000_000}}, 100},
		{"MX=2", []Item{{Tag: TagLogStart, Value: 0}, {Tag: TagLogEnd, Value: 1_000_000}, {Tag: TagMaxCount, Value: 2}}, 2},
		{"MX=0", []Item{{Tag: TagLogStart, Value: 0}, {Tag: TagLogEnd, Value: 900}, {Tag: TagMaxCount, Value: 0}}, 0},
		{"起点大于终点", []Item{{Tag: TagLogStart, Value: 1000}, {Tag: TagLogEnd, Value: 10}}, 0},
		{"单点区间", []Item{{Tag: TagLogStart, Value: 600}, {Tag: TagLogEnd, Value: 600}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, nil)
			resp := call(t, e, CmdGetLog, tt.params...)
			require.Equal(t, StatusOK, resp.Status)
			v, ok := resp.Field(TagLogList)
			require.True(t, ok)
			list, _ := v.(TypedFields)
			assert.Len(t, DecodeLog(list), tt.want)
		})
	}
}

func TestEngine_GetLogMissingRange(t *testing.T) {
	e := newTestEngine(t, nil)
	resp := call(t, e, CmdGetLog, Item{Tag: TagLogStart, Value: 0})
	assert.Equal(t, CmdGetLog, resp.Command)
	assert.Equal(t, StatusInvalidParam, resp.Status)
	assert.Contains(t, resp.Diagnostic, TagLogEnd)
}

func TestEngine_Alarms(t *testing.T) {
	e := newTestEngine(t, nil)

	resp := call(t, e, CmdGetAlarms)
	require.Equal(t, StatusOK, resp.Status)
	v, _ := resp.Field(TagAlarmList)
	assert.Equal(t, device.DefaultAlarms(), DecodeAlarms(v.(TypedFields)))

	resp = call(t, e, CmdSetAlarms, Item{Tag: TagAlarmList, Value: List{
		{Tag: TagAlarmID, Value: uint8(0)},
		{Tag: TagAlarmLow, Value: float32(5)},
		{Tag: TagAlarmHigh, Value: float32(40)},
		{Tag: TagAlarmID, Value: uint8(1)},
		{Tag: TagAlarmLow, Value: float32(-10.5)},
		{Tag: TagAlarmHigh, Value: float32(50)},
	}})
	require.Equal(t, StatusOK, resp.Status)

	resp = call(t, e, CmdGetAlarms)
	v, _ = resp.Field(TagAlarmList)
	assert.Equal(t, []device.Alarm{
		{ID: 0, Low: 5, High: 40},
		{ID: 1, Low: -10.5, High: 50},
	}, DecodeAlarms(v.(TypedFields)))
}

func TestEngine_SetAlarmsPartialRecord(t *testing.T) {
	e := newTestEngine(t, nil)
	resp := call(t, e, CmdSetAlarms, Item{Tag: TagAlarmList, Value: List{
		{Tag: TagAlarmID, Value: uint8(1)},
	}})
	require.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, []device.Alarm{{ID: 1}}, e.Snapshot().Alarms)

	resp = call(t, e, CmdSetAlarms)
	assert.Equal(t, StatusInvalidParam, resp.Status)
	assert.Contains(t, resp.Diagnostic, TagAlarmList)
}

func TestEngine_SetAlarmsMalformedSubField(t *testing.T) {
	e := newTestEngine(t, nil)
	resp := call(t, e, CmdSetAlarms, Item{Tag: TagAlarmList, Value: List{
		{Tag: TagAlarmID, Value: uint8(1)},
		{Tag: TagAlarmLow, Value: []byte{0x01, 0x02}},
		{Tag: TagAlarmHigh, Value: float32(40)},
		{Tag: "ZZ", Value: []byte{0xFF, 0xFE}},
	}})
	require.Equal(t, CmdSetAlarms, resp.Command)
	require.Equal(t, StatusOK, resp.Status)
	assert.Empty(t, resp.Diagnostic)
	assert.Equal(t, []device.Alarm{{ID: 1, High: 40}}, e.Snapshot().Alarms)

	// 嵌套截断仍按帧错误丢弃
	truncated, err := EncodeItems(
		Item{Tag: TagInstruction, Value: CmdSetAlarms},
		Item{Tag: TagAlarmList, Value: []byte{'I', 'D', 0x01}},
	)
	require.NoError(t, err)
	pkt, err := Build(PacketHostRequest, 2, 0, truncated)
	require.NoError(t, err)
	out, err := e.HandleRequest(pkt)
	assert.ErrorIs(t, err, ErrTruncatedField)
	assert.Nil(t, out)
	assert.Equal(t, []device.Alarm{{ID: 1, High: 40}}, e.Snapshot().Alarms)
}

func TestEngine_AlarmTransitions(t *testing.T) {
	var (
		mu  sync.Mutex
		got []device.AlarmTransition
	)
	e := newTestEngine(t, &device.Profile{Temperature: 31, Alarms: device.DefaultAlarms()},
		WithHooks(Hooks{OnAlarm: func(tr device.AlarmTransition) {
			mu.Lock()
			got = append(got, tr)
			mu.Unlock()
		}}))

	call(t, e, CmdGetTemp)
	call(t, e, CmdGetTemp)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, device.AlarmBuzzer, got[0].Alarm.ID)
	assert.True(t, got[0].Active)
	assert.True(t, e.Snapshot().Active[device.AlarmBuzzer])
	assert.False(t, e.Snapshot().Active[device.AlarmLED])
}

func TestEngine_AlarmTransitionsOrderedUnderConcurrency(t *testing.T) {
	var (
		mu      sync.Mutex
		history = map[uint8][]bool{}
	)
	e := newTestEngine(t, &device.Profile{Temperature: 30, Alarms: device.DefaultAlarms()},
		WithHooks(Hooks{OnAlarm: func(tr device.AlarmTransition) {
			mu.Lock()
			history[tr.Alarm.ID] = append(history[tr.Alarm.ID], tr.Active)
			mu.Unlock()
		}}))

	const workers, rounds = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				req, err := NewRequest(CmdGetTemp, uint16(w*rounds+i))
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := e.HandleRequest(req); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	active := e.Snapshot().Active
	for id, seq := range history {
		for i, on := range seq {
			// 通道初始未报警，迁移必须严格交替
			assert.Equal(t, i%2 == 0, on, "alarm %d transition %d", id, i)
		}
		assert.Equal(t, seq[len(seq)-1], active[id], "alarm %d final state", id)
	}
	for id := range active {
		assert.NotEmpty(t, history[id], "alarm %d active without transition", id)
	}
}

func TestEngine_FramingErrorsProduceNoResponse(t *testing.T) {
	var frameErrs int
	e := newTestEngine(t, nil, WithHooks(Hooks{OnFrameError: func(error) { frameErrs++ }}))

	good, err := NewRequest(CmdPing, 1)
	require.NoError(t, err)

	bad := append([]byte(nil), good...)
	bad[HeaderSize] ^= 0x01
	out, err := e.HandleRequest(bad)
	assert.ErrorIs(t, err, ErrCRCMismatch)
	assert.Nil(t, out)

	truncated, err := Build(PacketHostRequest, 1, 0, []byte{'I', 'N', 0x04, 0x00, 'p'})
	require.NoError(t, err)
	out, err = e.HandleRequest(truncated)
	assert.ErrorIs(t, err, ErrTruncatedField)
	assert.Nil(t, out)

	out, err = e.HandleRequest([]byte{0xAA, 0x55})
	assert.ErrorIs(t, err, ErrTooShort)
	assert.Nil(t, out)

	assert.Equal(t, 3, frameErrs)
	assert.Equal(t, uint16(0), e.Snapshot().PacketCounter())
}

func TestEngine_InternalError(t *testing.T) {
	e := newTestEngine(t, nil)
	resp := call(t, e, CmdGetLog,
		Item{Tag: TagLogStart, Value: 0},
		Item{Tag: TagLogEnd, Value: 900},
		Item{Tag: TagMaxCount, Value: []byte{1, 2, 3}},
	)
	assert.Equal(t, CmdPing, resp.Command)
	assert.Equal(t, StatusInternalError, resp.Status)
	assert.NotEmpty(t, resp.Diagnostic)
	assert.Equal(t, uint16(1), resp.Packet.Number)
}

func TestEngine_OnResultHook(t *testing.T) {
	var outcomes []Outcome
	e := newTestEngine(t, nil, WithHooks(Hooks{OnResult: func(_ *Request, res Result, _ time.Duration) {
		outcomes = append(outcomes, res.Outcome)
	}}))

	call(t, e, CmdPing)
	call(t, e, Command("nope"))
	call(t, e, CmdSetRTCTime)
	assert.Equal(t, []Outcome{OutcomeOK, OutcomeUnknownCommand, OutcomeMissingParam}, outcomes)
}

func TestEngine_ConcurrentRequests(t *testing.T) {
	e := newTestEngine(t, nil)
	req, err := NewRequest(CmdGetTemp, 1)
	require.NoError(t, err)

	const n = 64
	numbers := make(chan uint16, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.HandleRequest(req)
			if !assert.NoError(t, err) {
				return
			}
			resp, err := ParseResponse(out)
			if assert.NoError(t, err) {
				numbers <- resp.Packet.Number
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[uint16]bool)
	for num := range numbers {
		assert.False(t, seen[num], "duplicate packet number %d", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, uint16(n), e.Snapshot().PacketCounter())
}
