package device

import (
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// Noise 进程级均匀随机源，用于温度随机游走与合成日志。
// 测试可注入固定种子的 Source。
type Noise struct {
	mu  sync.Mutex
	src rand.Source
	r   *rand.Rand
}

// NewNoise 创建随机源，src 为 nil 时按当前时间播种
func NewNoise(src rand.Source) *Noise {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>17|1)
	}
	return &Noise{src: src, r: rand.New(src)}
}

// NewSeededNoise 固定种子，便于复现
func NewSeededNoise(seed uint64) *Noise {
	return NewNoise(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
}

// Float64 返回 [0,1) 的均匀随机数
func (n *Noise) Float64() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.r.Float64()
}

// Uniform 返回 [lo,hi) 的均匀随机数，由 distuv 从共享 Source 抽样
func (n *Noise) Uniform(lo, hi float64) float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return distuv.Uniform{Min: lo, Max: hi, Src: n.src}.Rand()
}
