package thermo

import (
	"fmt"
	"time"

	"github.com/taoyao-code/thermo-emulator/internal/device"
)

// env 处理器依赖：时钟与随机源
type env struct {
	now   func() time.Time
	noise *device.Noise
}

// handler 指令处理器：输入当前状态副本与参数，返回新状态与结果。
// 返回 error 表示内部错误，新状态将被丢弃。
type handler func(e *env, st device.State, req *Request) (device.State, Result, error)

// handlerFor 封闭匹配全部已知指令
func handlerFor(id CommandID) handler {
	switch id {
	case CommandPing:
		return handlePing
	case CommandGetTemp:
		return handleGetTemp
	case CommandGetRTCDate:
		return handleGetRTCDate
	case CommandGetRTCTime:
		return handleGetRTCTime
	case CommandSetRTCDate:
		return handleSetRTCDate
	case CommandSetRTCTime:
		return handleSetRTCTime
	case CommandGetAlarms:
		return handleGetAlarms
	case CommandSetAlarms:
		return handleSetAlarms
	case CommandGetLog:
		return handleGetLog
	default:
		return nil
	}
}

func handlePing(_ *env, st device.State, _ *Request) (device.State, Result, error) {
	return st, okResult(CmdPing), nil
}

// handleGetTemp 读取温度前叠加 ±0.1 的随机扰动（模拟环境波动），并检查报警阈值
func handleGetTemp(e *env, st device.State, _ *Request) (device.State, Result, error) {
	st.Temperature += float32(e.noise.Uniform(-device.TemperatureDelta, device.TemperatureDelta))
	res := okResult(CmdGetTemp, Item{Tag: TagTemperature, Value: st.Temperature})
	res.Alarms = st.EvaluateAlarms()
	return st, res, nil
}

func handleGetRTCDate(e *env, st device.State, _ *Request) (device.State, Result, error) {
	now := e.now()
	return st, okResult(CmdGetRTCDate,
		Item{Tag: TagYear, Value: uint8(now.Year() % 100)},
		Item{Tag: TagMonth, Value: uint8(now.Month())},
		Item{Tag: TagDay, Value: uint8(now.Day())},
		Item{Tag: TagWeekday, Value: isoWeekday(now)},
	), nil
}

func handleGetRTCTime(e *env, st device.State, _ *Request) (device.State, Result, error) {
	now := e.now()
	return st, okResult(CmdGetRTCTime,
		Item{Tag: TagHour, Value: uint8(now.Hour())},
		Item{Tag: TagMinute, Value: uint8(now.Minute())},
		Item{Tag: TagSecond, Value: uint8(now.Second())},
	), nil
}

// 设置日期/时间：参数齐全即应答成功，不校验取值范围，也不改变时钟
func handleSetRTCDate(_ *env, st device.State, _ *Request) (device.State, Result, error) {
	return st, okResult(CmdSetRTCDate), nil
}

func handleSetRTCTime(_ *env, st device.State, _ *Request) (device.State, Result, error) {
	return st, okResult(CmdSetRTCTime), nil
}

func handleGetAlarms(_ *env, st device.State, _ *Request) (device.State, Result, error) {
	return st, okResult(CmdGetAlarms, Item{Tag: TagAlarmList, Value: EncodeAlarms(st.Alarms)}), nil
}

func handleSetAlarms(_ *env, st device.State, req *Request) (device.State, Result, error) {
	list, ok := req.Params.List(TagAlarmList)
	if !ok {
		return st, Result{}, fmt.Errorf("%s is not a list", TagAlarmList)
	}
	st.ReplaceAlarms(DecodeAlarms(list))
	return st, okResult(CmdSetAlarms), nil
}

func handleGetLog(e *env, st device.State, req *Request) (device.State, Result, error) {
	start, ok1 := req.Params.Uint64(TagLogStart)
	end, ok2 := req.Params.Uint64(TagLogEnd)
	if !ok1 || !ok2 {
		return st, Result{}, fmt.Errorf("log range %s/%s must be integers", TagLogStart, TagLogEnd)
	}
	limit := device.DefaultMaxLogCount
	if mx, ok := req.Params.Uint16(TagMaxCount); ok {
		limit = int(mx)
	}

	entries := device.GenerateLog(e.noise, start, end, limit)
	return st, okResult(CmdGetLog, Item{Tag: TagLogList, Value: EncodeLog(entries)}), nil
}

// isoWeekday 周一=1 ... 周日=7
func isoWeekday(t time.Time) uint8 {
	if wd := t.Weekday(); wd != time.Sunday {
		return uint8(wd)
	}
	return 7
}

// EncodeAlarms 报警列表：每条记录依次为 ID, L, H
func EncodeAlarms(alarms []device.Alarm) List {
	out := make(List, 0, len(alarms)*3)
	for _, a := range alarms {
		out = append(out,
			Item{Tag: TagAlarmID, Value: a.ID},
			Item{Tag: TagAlarmLow, Value: a.Low},
			Item{Tag: TagAlarmHigh, Value: a.High},
		)
	}
	return out
}

// DecodeAlarms 从嵌套列表恢复报警记录：遇到 ID 开始新记录。
// 记录缺少的子字段保持零值，不做拒绝；ID 之前出现的子字段归入一条隐式记录。
func DecodeAlarms(list TypedFields) []device.Alarm {
	var out []device.Alarm
	var cur *device.Alarm
	for _, f := range list {
		if f.Tag != TagAlarmID && f.Tag != TagAlarmLow && f.Tag != TagAlarmHigh {
			continue
		}
		if f.Tag == TagAlarmID || cur == nil {
			out = append(out, device.Alarm{})
			cur = &out[len(out)-1]
		}
		switch f.Tag {
		case TagAlarmID:
			if v, ok := f.Value.(uint8); ok {
				cur.ID = v
			}
		case TagAlarmLow:
			if v, ok := f.Value.(float32); ok {
				cur.Low = v
			}
		case TagAlarmHigh:
			if v, ok := f.Value.(float32); ok {
				cur.High = v
			}
		}
	}
	return out
}

// EncodeLog 日志列表：每条记录依次为 TS, T
func EncodeLog(entries []device.LogEntry) List {
	out := make(List, 0, len(entries)*2)
	for _, le := range entries {
		out = append(out,
			Item{Tag: TagTimestamp, Value: le.Timestamp},
			Item{Tag: TagTemperature, Value: le.Temperature},
		)
	}
	return out
}

// DecodeLog 从嵌套列表恢复日志条目：遇到 TS 开始新条目
func DecodeLog(list TypedFields) []device.LogEntry {
	var out []device.LogEntry
	var cur *device.LogEntry
	for _, f := range list {
		if f.Tag != TagTimestamp && f.Tag != TagTemperature {
			continue
		}
		if f.Tag == TagTimestamp || cur == nil {
			out = append(out, device.LogEntry{})
			cur = &out[len(out)-1]
		}
		switch v := f.Value.(type) {
		case uint64:
			cur.Timestamp = v
		case float32:
			cur.Temperature = v
		}
	}
	return out
}
