package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/taoyao-code/thermo-emulator/internal/device"
)

// AlarmEvent 报警通道状态变化事件
type AlarmEvent struct {
	ID          string    `json:"id" msgpack:"id"`
	Instance    string    `json:"instance" msgpack:"instance"`
	Alarm       string    `json:"alarm" msgpack:"alarm"`
	AlarmID     uint8     `json:"alarm_id" msgpack:"alarm_id"`
	Active      bool      `json:"active" msgpack:"active"`
	Temperature float32   `json:"temperature" msgpack:"temperature"`
	Low         float32   `json:"low" msgpack:"low"`
	High        float32   `json:"high" msgpack:"high"`
	Timestamp   time.Time `json:"timestamp" msgpack:"timestamp"`
}

// NewAlarmEvent 由状态变化构造事件
func NewAlarmEvent(instance string, tr device.AlarmTransition, at time.Time) AlarmEvent {
	return AlarmEvent{
		ID:          uuid.NewString(),
		Instance:    instance,
		Alarm:       device.AlarmName(tr.Alarm.ID),
		AlarmID:     tr.Alarm.ID,
		Active:      tr.Active,
		Temperature: tr.Temperature,
		Low:         tr.Alarm.Low,
		High:        tr.Alarm.High,
		Timestamp:   at,
	}
}

// Publisher 事件发布者
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev AlarmEvent) error
}

// 事件编码
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Encode 按编码名序列化事件，空值按 JSON 处理
func Encode(encoding string, ev AlarmEvent) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "", EncodingJSON:
		return json.Marshal(ev)
	case EncodingMsgpack:
		return msgpack.Marshal(ev)
	default:
		return nil, fmt.Errorf("unknown event encoding %q", encoding)
	}
}

// Decode Encode 的逆操作（订阅端与测试使用）
func Decode(encoding string, b []byte) (AlarmEvent, error) {
	var ev AlarmEvent
	var err error
	switch strings.ToLower(encoding) {
	case "", EncodingJSON:
		err = json.Unmarshal(b, &ev)
	case EncodingMsgpack:
		err = msgpack.Unmarshal(b, &ev)
	default:
		err = fmt.Errorf("unknown event encoding %q", encoding)
	}
	return ev, err
}
