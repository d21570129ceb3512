package thermo

import (
	"fmt"
	"sort"
)

// Params 按标签解释后的请求参数（同一标签重复出现时后者覆盖前者）
type Params map[string]any

// Has 是否包含标签
func (p Params) Has(tag string) bool {
	_, ok := p[tag]
	return ok
}

// Missing 返回缺失的标签
func (p Params) Missing(tags ...string) []string {
	var out []string
	for _, t := range tags {
		if !p.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

func (p Params) Uint8(tag string) (uint8, bool) {
	v, ok := p[tag].(uint8)
	return v, ok
}

func (p Params) Uint16(tag string) (uint16, bool) {
	v, ok := p[tag].(uint16)
	return v, ok
}

func (p Params) Uint64(tag string) (uint64, bool) {
	v, ok := p[tag].(uint64)
	return v, ok
}

func (p Params) Float32(tag string) (float32, bool) {
	v, ok := p[tag].(float32)
	return v, ok
}

// List 嵌套列表参数
func (p Params) List(tag string) (TypedFields, bool) {
	v, ok := p[tag].(TypedFields)
	return v, ok
}

// Tags 参数标签（排序后），用于日志
func (p Params) Tags() []string {
	out := make([]string, 0, len(p))
	for t := range p {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Request 解码后的请求
type Request struct {
	Packet  *Packet
	Command Command // IN 字段原始值，缺失时为空
	Params  Params
}

// ParseRequest 解释请求载荷：IN 作为指令码，其余字段按标签表解释为参数
func ParseRequest(pkt *Packet, fields Fields) (*Request, error) {
	req := &Request{Packet: pkt, Params: make(Params, len(fields))}
	for _, f := range fields {
		tf, err := Interpret(f)
		if err != nil {
			return nil, err
		}
		if f.Tag == TagInstruction {
			req.Command = tf.Value.(Command)
			continue
		}
		req.Params[f.Tag] = tf.Value
	}
	return req, nil
}

// NewRequest 构建主机请求包：IN 字段在前，随后为参数字段
func NewRequest(cmd Command, number uint16, params ...Item) ([]byte, error) {
	items := append([]Item{{Tag: TagInstruction, Value: cmd}}, params...)
	payload, err := EncodeItems(items...)
	if err != nil {
		return nil, err
	}
	return Build(PacketHostRequest, number, 0, payload)
}

// Response 设备响应（主机侧解析结果）
type Response struct {
	Packet     *Packet
	Command    Command
	Status     Status
	Diagnostic string
	Fields     TypedFields // 除 IN / ST / ED 以外的结果字段
}

// Field 查找结果字段
func (r *Response) Field(tag string) (any, bool) {
	for _, f := range r.Fields {
		if f.Tag == tag {
			return f.Value, true
		}
	}
	return nil, false
}

// ParseResponse 解析设备响应包
func ParseResponse(b []byte) (*Response, error) {
	pkt, err := Parse(b)
	if err != nil {
		return nil, err
	}
	fields, err := Decode(pkt.Payload)
	if err != nil {
		return nil, err
	}
	typed, err := InterpretAll(fields)
	if err != nil {
		return nil, err
	}

	resp := &Response{Packet: pkt}
	hasStatus := false
	for _, f := range typed {
		switch f.Tag {
		case TagInstruction:
			resp.Command = f.Value.(Command)
		case TagStatus:
			resp.Status = Status(f.Value.(uint8))
			hasStatus = true
		case TagErrorDesc:
			resp.Diagnostic = f.Value.(string)
		default:
			resp.Fields = append(resp.Fields, f)
		}
	}
	if !hasStatus {
		return nil, fmt.Errorf("response without %s field", TagStatus)
	}
	return resp, nil
}
