package fault

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
)

// 故障类型（指标标签）
const (
	KindDrop       = "drop"
	KindCorruptCRC = "corrupt_crc"
)

// crcOffset 包头中 CRC32 字段的起始偏移
const crcOffset = 10

// Sampler [0,1) 均匀随机源
type Sampler interface {
	Float64() float64
}

// Config 故障概率
type Config struct {
	DropRate       float64
	CorruptCRCRate float64
}

// Injector 在响应返回传输层之前模拟不可靠硬件：丢弃响应或损坏 CRC
type Injector struct {
	next    thermo.Handler
	cfg     Config
	sampler Sampler
	logger  *zap.Logger
	onFault func(kind string)
}

// New 包装 Handler；两项概率均为 0 时直接返回原 Handler
func New(next thermo.Handler, cfg Config, s Sampler, logger *zap.Logger) thermo.Handler {
	if cfg.DropRate <= 0 && cfg.CorruptCRCRate <= 0 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Injector{next: next, cfg: cfg, sampler: s, logger: logger}
}

// OnFault 设置故障回调（指标）
func (i *Injector) OnFault(fn func(kind string)) { i.onFault = fn }

// HandleRequest 实现 thermo.Handler
func (i *Injector) HandleRequest(b []byte) ([]byte, error) {
	resp, err := i.next.HandleRequest(b)
	if err != nil || len(resp) == 0 {
		return resp, err
	}

	if i.cfg.DropRate > 0 && i.sampler.Float64() < i.cfg.DropRate {
		i.fire(KindDrop)
		return nil, nil
	}
	if i.cfg.CorruptCRCRate > 0 && i.sampler.Float64() < i.cfg.CorruptCRCRate && len(resp) > crcOffset {
		resp[crcOffset] ^= 0x01
		i.fire(KindCorruptCRC)
	}
	return resp, nil
}

func (i *Injector) fire(kind string) {
	i.logger.Debug("fault injected", zap.String("kind", kind))
	if i.onFault != nil {
		i.onFault(kind)
	}
}
