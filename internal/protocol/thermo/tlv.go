package thermo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidTag       = errors.New("TLV tag must be exactly 2 characters")
	ErrTruncatedField   = errors.New("truncated TLV field")
	ErrUnsupportedValue = errors.New("unsupported TLV value type")
	ErrValueTooLong     = errors.New("TLV value too long")
)

const (
	tagSize       = 2
	fieldHeadSize = tagSize + 2
)

// Field 原始 TLV 字段，Value 引用解码时的输入缓冲区
type Field struct {
	Tag   string
	Value []byte
}

// Fields 按出现顺序排列的 TLV 字段
type Fields []Field

// Find 查找首个匹配标签的字段
func (fs Fields) Find(tag string) (Field, bool) {
	for _, f := range fs {
		if f.Tag == tag {
			return f, true
		}
	}
	return Field{}, false
}

// Item 待编码的字段，Value 可为 string / 整数 / float32 / float64 / Command / []byte / List
type Item struct {
	Tag   string
	Value any
}

// List 嵌套 TLV 列表
type List []Item

// Encode 编码单个 TLV 字段：tag(2) + len(2, LE) + value
func Encode(tag string, value any) ([]byte, error) {
	if len(tag) != tagSize {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTag, tag)
	}
	v, err := encodeValue(value)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", tag, err)
	}
	if len(v) > math.MaxUint16 {
		return nil, fmt.Errorf("encode %q: %w: %d bytes", tag, ErrValueTooLong, len(v))
	}

	out := make([]byte, 0, fieldHeadSize+len(v))
	out = append(out, tag...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(v)))
	return append(out, v...), nil
}

// EncodeItems 依次编码多个字段并拼接
func EncodeItems(items ...Item) ([]byte, error) {
	var out []byte
	for _, it := range items {
		b, err := Encode(it.Tag, it.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func encodeValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case Command:
		return []byte(v), nil
	case []byte:
		return v, nil
	case float32:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(v)), nil
	case float64:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(v))), nil
	case List:
		return EncodeItems(v...)
	case []Item:
		return EncodeItems(v...)
	case uint8:
		return encodeUint(uint64(v)), nil
	case uint16:
		return encodeUint(uint64(v)), nil
	case uint32:
		return encodeUint(uint64(v)), nil
	case uint64:
		return encodeUint(v), nil
	case uint:
		return encodeUint(uint64(v)), nil
	case Status:
		return encodeUint(uint64(v)), nil
	case int, int8, int16, int32, int64:
		n := toInt64(v)
		if n < 0 {
			return nil, fmt.Errorf("%w: negative integer %d", ErrUnsupportedValue, n)
		}
		return encodeUint(uint64(n)), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
	}
}

// encodeUint 选择能容纳数值的最小宽度：1/2/4/8 字节，小端无符号
func encodeUint(u uint64) []byte {
	switch {
	case u <= math.MaxUint8:
		return []byte{byte(u)}
	case u <= math.MaxUint16:
		return binary.LittleEndian.AppendUint16(nil, uint16(u))
	case u <= math.MaxUint32:
		return binary.LittleEndian.AppendUint32(nil, uint32(u))
	default:
		return binary.LittleEndian.AppendUint64(nil, u)
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

// Decode 从左到右解析 TLV 序列，缓冲区恰好耗尽时正常结束
func Decode(payload []byte) (Fields, error) {
	var fields Fields
	pos := 0
	for pos < len(payload) {
		if pos+fieldHeadSize > len(payload) {
			return nil, fmt.Errorf("%w: header needs %d bytes, %d left at offset %d",
				ErrTruncatedField, fieldHeadSize, len(payload)-pos, pos)
		}
		tag := string(payload[pos : pos+tagSize])
		length := int(binary.LittleEndian.Uint16(payload[pos+tagSize : pos+fieldHeadSize]))
		pos += fieldHeadSize

		if pos+length > len(payload) {
			return nil, fmt.Errorf("%w: tag %q declares %d bytes, %d left",
				ErrTruncatedField, tag, length, len(payload)-pos)
		}
		fields = append(fields, Field{Tag: tag, Value: payload[pos : pos+length]})
		pos += length
	}
	return fields, nil
}
