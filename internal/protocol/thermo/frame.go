package thermo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// 帧格式常量
// 格式：AA55(2) + version(1) + type(1) + packetNo(2) + respNo(2) + len(2) + crc32(4) + payload(var) + 55AA(2)
const (
	Version = 0x01

	HeaderSize    = 14 // 起始符到CRC32结束
	TrailerSize   = 2  // 结束符
	MinPacketSize = HeaderSize + TrailerSize
	MaxPayloadLen = 0xFFFF

	// MaxPacketNumber 包编号上限，超过后回绕到0
	MaxPacketNumber = 0x7F
)

var (
	startMarker = []byte{0xAA, 0x55}
	endMarker   = []byte{0x55, 0xAA}
)

// 帧错误：均不产生响应包，由传输层丢弃
var (
	ErrTooShort        = errors.New("packet too short")
	ErrBadStartMarker  = errors.New("bad start marker")
	ErrCRCMismatch     = errors.New("crc32 mismatch")
	ErrBadEndMarker    = errors.New("bad end marker")
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrStalledFrame 候选包声明的长度迟迟凑不齐，而其后已有可校验的完整包
	ErrStalledFrame = errors.New("stalled frame skipped")
)

// PacketType 数据包类别
type PacketType uint8

const (
	PacketHostRequest    PacketType = 0x00
	PacketHostResponse   PacketType = 0x01
	PacketHostError      PacketType = 0x0F
	PacketDeviceRequest  PacketType = 0x10
	PacketDeviceResponse PacketType = 0x11
	PacketDeviceError    PacketType = 0x1F
)

func (t PacketType) String() string {
	switch t {
	case PacketHostRequest:
		return "host_request"
	case PacketHostResponse:
		return "host_response"
	case PacketHostError:
		return "host_error"
	case PacketDeviceRequest:
		return "device_request"
	case PacketDeviceResponse:
		return "device_response"
	case PacketDeviceError:
		return "device_error"
	default:
		return fmt.Sprintf("0x%02X", uint8(t))
	}
}

// Packet 解析后的数据包
type Packet struct {
	Version        uint8
	Type           PacketType
	Number         uint16 // 数据包编号（发送方分配）
	ResponseNumber uint16 // 响应编号，设备主动响应为0
	CRC            uint32
	Payload        []byte // TLV 数据区
}

// Build 构建完整数据包
func Build(t PacketType, number, responseNumber uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	crc := CalculateCRC32(t, number, responseNumber, payload)

	buf := make([]byte, 0, MinPacketSize+len(payload))
	buf = append(buf, startMarker...)
	buf = append(buf, Version, byte(t))
	buf = binary.LittleEndian.AppendUint16(buf, number)
	buf = binary.LittleEndian.AppendUint16(buf, responseNumber)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	buf = binary.LittleEndian.AppendUint32(buf, crc)
	buf = append(buf, payload...)
	buf = append(buf, endMarker...)
	return buf, nil
}

// Parse 解析并校验数据包，按顺序：长度 -> 起始符 -> CRC32 -> 结束符，首个错误即返回。
// 不修改输入，返回的 Payload 为独立副本。
func Parse(b []byte) (*Packet, error) {
	if len(b) < MinPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooShort, len(b))
	}
	if !bytes.Equal(b[:2], startMarker) {
		return nil, fmt.Errorf("%w: % X", ErrBadStartMarker, b[:2])
	}

	p := &Packet{
		Version:        b[2],
		Type:           PacketType(b[3]),
		Number:         binary.LittleEndian.Uint16(b[4:6]),
		ResponseNumber: binary.LittleEndian.Uint16(b[6:8]),
		CRC:            binary.LittleEndian.Uint32(b[10:14]),
	}

	// 按声明长度截取数据区；声明长度超出缓冲区时按实际可用截断
	end := HeaderSize + int(binary.LittleEndian.Uint16(b[8:10]))
	payload := b[HeaderSize:min(end, len(b))]

	if got := CalculateCRC32(p.Type, p.Number, p.ResponseNumber, payload); got != p.CRC {
		return nil, fmt.Errorf("%w: expected 0x%08X, got 0x%08X", ErrCRCMismatch, p.CRC, got)
	}

	if end+TrailerSize > len(b) || !bytes.Equal(b[end:end+TrailerSize], endMarker) {
		return nil, ErrBadEndMarker
	}

	p.Payload = append([]byte(nil), payload...)
	return p, nil
}

// IsFramingError 判断是否为帧/TLV层错误（不应答）
func IsFramingError(err error) bool {
	return errors.Is(err, ErrTooShort) ||
		errors.Is(err, ErrBadStartMarker) ||
		errors.Is(err, ErrCRCMismatch) ||
		errors.Is(err, ErrBadEndMarker) ||
		errors.Is(err, ErrStalledFrame) ||
		errors.Is(err, ErrTruncatedField)
}

// FramingReason 帧错误的指标标签
func FramingReason(err error) string {
	switch {
	case errors.Is(err, ErrTooShort):
		return "too_short"
	case errors.Is(err, ErrBadStartMarker):
		return "bad_start"
	case errors.Is(err, ErrCRCMismatch):
		return "crc"
	case errors.Is(err, ErrBadEndMarker):
		return "bad_end"
	case errors.Is(err, ErrStalledFrame):
		return "stalled"
	case errors.Is(err, ErrTruncatedField):
		return "truncated_field"
	default:
		return "other"
	}
}
