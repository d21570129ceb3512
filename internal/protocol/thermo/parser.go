package thermo

import (
	"bytes"
	"encoding/binary"
)

// StreamDecoder 字节流切帧：按起始符同步，按声明长度截取整包并校验。
// 校验失败时丢弃1字节重新同步（半包/粘包由内部缓冲处理）。
// 候选包长度不足时，若后续已出现可校验的完整包，则放弃该候选并从后者同步，
// 避免损坏的长度字段吞掉之后的所有包。
type StreamDecoder struct{ buf []byte }

func NewStreamDecoder() *StreamDecoder { return &StreamDecoder{} }

// Feed 追加数据，返回已校验的完整包以及丢弃的候选包错误
func (d *StreamDecoder) Feed(p []byte) (frames [][]byte, errs []error) {
	d.buf = append(d.buf, p...)
	for {
		idx := bytes.Index(d.buf, startMarker)
		if idx < 0 {
			// 保留末尾可能是半个起始符的字节
			if n := len(d.buf); n > 0 {
				if d.buf[n-1] == startMarker[0] {
					d.buf = d.buf[n-1:]
				} else {
					d.buf = d.buf[:0]
				}
				if n > 1 {
					errs = append(errs, ErrBadStartMarker)
				}
			}
			return frames, errs
		}
		if idx > 0 {
			d.buf = d.buf[idx:]
			errs = append(errs, ErrBadStartMarker)
		}
		if len(d.buf) < HeaderSize {
			return frames, errs
		}
		total := HeaderSize + int(binary.LittleEndian.Uint16(d.buf[8:10])) + TrailerSize
		if len(d.buf) < total {
			if next := d.nextFrame(len(startMarker)); next > 0 {
				errs = append(errs, ErrStalledFrame)
				d.buf = d.buf[next:]
				continue
			}
			return frames, errs
		}
		if _, err := Parse(d.buf[:total]); err != nil {
			errs = append(errs, err)
			d.buf = d.buf[1:]
			continue
		}
		frames = append(frames, append([]byte(nil), d.buf[:total]...))
		d.buf = d.buf[total:]
	}
}

// nextFrame 从 from 开始查找后续起始符，返回第一个能完整校验的包的偏移，没有则返回 -1
func (d *StreamDecoder) nextFrame(from int) int {
	for from < len(d.buf) {
		i := bytes.Index(d.buf[from:], startMarker)
		if i < 0 {
			return -1
		}
		at := from + i
		rest := d.buf[at:]
		if len(rest) >= HeaderSize {
			total := HeaderSize + int(binary.LittleEndian.Uint16(rest[8:10])) + TrailerSize
			if len(rest) >= total {
				if _, err := Parse(rest[:total]); err == nil {
					return at
				}
			}
		}
		from = at + 1
	}
	return -1
}

// Buffered 当前缓存的未成帧字节数
func (d *StreamDecoder) Buffered() int { return len(d.buf) }

// Reset 清空缓冲
func (d *StreamDecoder) Reset() { d.buf = d.buf[:0] }
