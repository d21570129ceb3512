package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/taoyao-code/thermo-emulator/internal/device"
	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
)

// normalizeTag 单字符标签补空格（T -> "T "）
func normalizeTag(tag string) string {
	if len(tag) == 1 {
		return tag + " "
	}
	return tag
}

// parseParam 解析 TAG=VALUE，按标签类型转换取值。
// AL 取值格式：id:low:high[,id:low:high...]
func parseParam(s string) (thermo.Item, error) {
	tag, value, ok := strings.Cut(s, "=")
	if !ok {
		return thermo.Item{}, fmt.Errorf("param %q: expected TAG=VALUE", s)
	}
	tag = normalizeTag(tag)
	if len(tag) != 2 {
		return thermo.Item{}, fmt.Errorf("param %q: tag must be 1 or 2 characters", s)
	}

	switch kind := thermo.KindOf(tag); kind {
	case thermo.KindUint8, thermo.KindUint16, thermo.KindUint64:
		bits := map[thermo.Kind]int{thermo.KindUint8: 8, thermo.KindUint16: 16, thermo.KindUint64: 64}[kind]
		v, err := strconv.ParseUint(value, 10, bits)
		if err != nil {
			return thermo.Item{}, fmt.Errorf("param %s: %w", tag, err)
		}
		return thermo.Item{Tag: tag, Value: v}, nil
	case thermo.KindFloat32:
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return thermo.Item{}, fmt.Errorf("param %s: %w", tag, err)
		}
		return thermo.Item{Tag: tag, Value: float32(v)}, nil
	case thermo.KindList:
		if tag != thermo.TagAlarmList {
			return thermo.Item{}, fmt.Errorf("param %s: list values are only supported for %s", tag, thermo.TagAlarmList)
		}
		alarms, err := parseAlarms(value)
		if err != nil {
			return thermo.Item{}, fmt.Errorf("param %s: %w", tag, err)
		}
		return thermo.Item{Tag: tag, Value: thermo.EncodeAlarms(alarms)}, nil
	case thermo.KindCommand:
		return thermo.Item{}, fmt.Errorf("param %s: the command is given as an argument", tag)
	default:
		return thermo.Item{Tag: tag, Value: value}, nil
	}
}

func parseAlarms(s string) ([]device.Alarm, error) {
	var out []device.Alarm
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, rec := range strings.Split(s, ",") {
		parts := strings.Split(rec, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("alarm %q: expected id:low:high", rec)
		}
		id, err := strconv.ParseUint(parts[0], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("alarm %q: %w", rec, err)
		}
		low, err := strconv.ParseFloat(parts[1], 32)
		if err != nil {
			return nil, fmt.Errorf("alarm %q: %w", rec, err)
		}
		high, err := strconv.ParseFloat(parts[2], 32)
		if err != nil {
			return nil, fmt.Errorf("alarm %q: %w", rec, err)
		}
		out = append(out, device.Alarm{ID: uint8(id), Low: float32(low), High: float32(high)})
	}
	return out, nil
}
