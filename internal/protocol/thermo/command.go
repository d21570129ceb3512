package thermo

import (
	"encoding/hex"
	"fmt"
)

// Command 指令码：IN 字段的原始字节，正常为 4 字节 ASCII，不做文本转换
type Command string

// 指令定义
const (
	CmdPing       Command = "ping"
	CmdGetTemp    Command = "temp"
	CmdGetRTCDate Command = "gdat"
	CmdGetRTCTime Command = "gtim"
	CmdSetRTCDate Command = "sdat"
	CmdSetRTCTime Command = "stim"
	CmdGetAlarms  Command = "galm"
	CmdSetAlarms  Command = "salm"
	CmdGetLog     Command = "glog"
)

// String 可打印时原样输出，否则输出十六进制
func (c Command) String() string {
	for i := 0; i < len(c); i++ {
		if c[i] < 0x20 || c[i] > 0x7E {
			return "0x" + hex.EncodeToString([]byte(c))
		}
	}
	return string(c)
}

// CommandID 封闭的指令枚举，CommandUnknown 表示未识别的指令码
type CommandID uint8

const (
	CommandUnknown CommandID = iota
	CommandPing
	CommandGetTemp
	CommandGetRTCDate
	CommandGetRTCTime
	CommandSetRTCDate
	CommandSetRTCTime
	CommandGetAlarms
	CommandSetAlarms
	CommandGetLog
)

var commandCodes = map[CommandID]Command{
	CommandPing:       CmdPing,
	CommandGetTemp:    CmdGetTemp,
	CommandGetRTCDate: CmdGetRTCDate,
	CommandGetRTCTime: CmdGetRTCTime,
	CommandSetRTCDate: CmdSetRTCDate,
	CommandSetRTCTime: CmdSetRTCTime,
	CommandGetAlarms:  CmdGetAlarms,
	CommandSetAlarms:  CmdSetAlarms,
	CommandGetLog:     CmdGetLog,
}

var commandIDs = func() map[Command]CommandID {
	m := make(map[Command]CommandID, len(commandCodes))
	for id, c := range commandCodes {
		m[c] = id
	}
	return m
}()

// ID 返回指令码对应的枚举值
func (c Command) ID() CommandID {
	if id, ok := commandIDs[c]; ok {
		return id
	}
	return CommandUnknown
}

// Code 返回枚举对应的指令码，未知指令返回空
func (id CommandID) Code() Command { return commandCodes[id] }

func (id CommandID) String() string {
	if c, ok := commandCodes[id]; ok {
		return string(c)
	}
	return "unknown"
}

// requiredParams 变更类指令的必填参数
var requiredParams = map[CommandID][]string{
	CommandSetRTCDate: {TagYear, TagMonth, TagDay, TagWeekday},
	CommandSetRTCTime: {TagHour, TagMinute, TagSecond},
	CommandSetAlarms:  {TagAlarmList},
	CommandGetLog:     {TagLogStart, TagLogEnd},
}

// RequiredParams 返回指令必填参数标签，查询类指令为空
func (id CommandID) RequiredParams() []string { return requiredParams[id] }

// ParseCommandName 解析命令行中的指令名，支持指令码（ping）或枚举名（get-temperature）
func ParseCommandName(name string) (Command, error) {
	if c := Command(name); c.ID() != CommandUnknown {
		return c, nil
	}
	for id, n := range commandNames {
		if n == name {
			return id.Code(), nil
		}
	}
	return "", fmt.Errorf("unknown command %q", name)
}

var commandNames = map[CommandID]string{
	CommandPing:       "ping",
	CommandGetTemp:    "get-temperature",
	CommandGetRTCDate: "get-rtc-date",
	CommandGetRTCTime: "get-rtc-time",
	CommandSetRTCDate: "set-rtc-date",
	CommandSetRTCTime: "set-rtc-time",
	CommandGetAlarms:  "get-alarms",
	CommandSetAlarms:  "set-alarms",
	CommandGetLog:     "get-log",
}

// Status 响应状态码
type Status uint8

const (
	StatusOK             Status = 0x00
	StatusInvalidParam   Status = 0x01
	StatusNotInitialized Status = 0x02
	StatusSensorError    Status = 0x03
	StatusStorageError   Status = 0x04
	StatusInternalError  Status = 0xFF
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidParam:
		return "invalid_param"
	case StatusNotInitialized:
		return "not_initialized"
	case StatusSensorError:
		return "sensor_error"
	case StatusStorageError:
		return "storage_error"
	case StatusInternalError:
		return "internal_error"
	default:
		return fmt.Sprintf("0x%02X", uint8(s))
	}
}
