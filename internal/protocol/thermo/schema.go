package thermo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// 协议中的 TLV 标签
const (
	TagInstruction = "IN"
	TagStatus      = "ST"
	TagErrorCode   = "EC"
	TagErrorDesc   = "ED"
	TagTemperature = "T " // 注意有空格
	TagYear        = "YY"
	TagMonth       = "MM"
	TagDay         = "DD"
	TagWeekday     = "WK"
	TagHour        = "HH"
	TagMinute      = "MM" // 与月份同标签，按指令区分
	TagSecond      = "SS"
	TagAlarmList   = "AL"
	TagAlarmID     = "ID"
	TagAlarmLow    = "L "
	TagAlarmHigh   = "H "
	TagLogList     = "LG"
	TagTimestamp   = "TS"
	TagLogStart    = "T1" // 日志起始时间（TS1）
	TagLogEnd      = "T2" // 日志结束时间（TS2）
	TagMaxCount    = "MX"
)

// Kind 标签对应的值类型
type Kind uint8

const (
	KindString Kind = iota
	KindUint8
	KindUint16
	KindUint64
	KindFloat32
	KindList
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindUint64:
		return "uint64"
	case KindFloat32:
		return "float32"
	case KindList:
		return "list"
	case KindCommand:
		return "command"
	default:
		return "string"
	}
}

// tagSchema 标签 -> 值类型。TLV 本身不携带类型，编解码两侧共用此表。
// TS1/TS2 为日志区间的逻辑名，三字符无法作为线上标签，实际使用 T1/T2。
var tagSchema = map[string]Kind{
	"YY": KindUint8, "MM": KindUint8, "DD": KindUint8, "WK": KindUint8,
	"HH": KindUint8, "SS": KindUint8, "ID": KindUint8, "ST": KindUint8, "EC": KindUint8,

	"MX": KindUint16,

	"TS": KindUint64, "TS1": KindUint64, "TS2": KindUint64,
	TagLogStart: KindUint64, TagLogEnd: KindUint64,

	"T ": KindFloat32, "L ": KindFloat32, "H ": KindFloat32,

	"AL": KindList, "LG": KindList,

	"IN": KindCommand,
}

// KindOf 返回标签的值类型，未登记的标签按 UTF-8 字符串处理
func KindOf(tag string) Kind {
	if k, ok := tagSchema[tag]; ok {
		return k
	}
	return KindString
}

// ErrFieldSize 字段长度与标签类型不符
var ErrFieldSize = errors.New("TLV value size does not match tag kind")

// ErrInvalidString 字符串字段不是合法 UTF-8
var ErrInvalidString = errors.New("TLV string is not valid UTF-8")

// TypedField 按标签类型解释后的字段
type TypedField struct {
	Tag   string
	Value any // uint8 / uint16 / uint64 / float32 / string / Command / TypedFields
}

// TypedFields 解释后的字段序列
type TypedFields []TypedField

// Interpret 按标签表解释原始字段值。
// 整数字段按小端读取并零扩展，以兼容编码端的最小宽度选择。
func Interpret(f Field) (TypedField, error) {
	v, err := interpretValue(f)
	if err != nil {
		return TypedField{}, fmt.Errorf("interpret %q: %w", f.Tag, err)
	}
	return TypedField{Tag: f.Tag, Value: v}, nil
}

// InterpretAll 逐个解释字段
func InterpretAll(fields Fields) (TypedFields, error) {
	out := make(TypedFields, 0, len(fields))
	for _, f := range fields {
		tf, err := Interpret(f)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	return out, nil
}

func interpretValue(f Field) (any, error) {
	switch KindOf(f.Tag) {
	case KindUint8:
		if len(f.Value) < 1 {
			return nil, fmt.Errorf("%w: empty uint8", ErrFieldSize)
		}
		return f.Value[0], nil
	case KindUint16:
		u, err := readUint(f.Value, 2)
		return uint16(u), err
	case KindUint64:
		return readUint(f.Value, 8)
	case KindFloat32:
		if len(f.Value) != 4 {
			return nil, fmt.Errorf("%w: float32 needs 4 bytes, got %d", ErrFieldSize, len(f.Value))
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(f.Value)), nil
	case KindList:
		nested, err := Decode(f.Value)
		if err != nil {
			return nil, err
		}
		return interpretList(nested)
	case KindCommand:
		return Command(f.Value), nil
	default:
		if !utf8.Valid(f.Value) {
			return nil, ErrInvalidString
		}
		return string(f.Value), nil
	}
}

func readUint(b []byte, width int) (uint64, error) {
	if len(b) == 0 || len(b) > width {
		return 0, fmt.Errorf("%w: %d bytes for %d-byte integer", ErrFieldSize, len(b), width)
	}
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// interpretList 逐个解释列表子字段。无法解释的子字段直接丢弃，记录中对应项保持零值；
// 只有嵌套截断作为帧错误返回。
func interpretList(fields Fields) (TypedFields, error) {
	out := make(TypedFields, 0, len(fields))
	for _, f := range fields {
		tf, err := Interpret(f)
		if err != nil {
			if errors.Is(err, ErrTruncatedField) {
				return nil, err
			}
			continue
		}
		out = append(out, tf)
	}
	return out, nil
}
