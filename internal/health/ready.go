package health

import (
	"sort"
	"sync"
)

// Readiness 传输层就绪标记：注册过的组件全部为 true 才就绪
type Readiness struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewReadiness 创建就绪标记
func NewReadiness() *Readiness { return &Readiness{flags: make(map[string]bool)} }

// Register 登记一个需要等待的组件（初始未就绪）
func (r *Readiness) Register(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.flags[name]; !ok {
		r.flags[name] = false
	}
}

// Set 设置组件就绪状态
func (r *Readiness) Set(name string, ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[name] = ready
}

// Ready 总体就绪
func (r *Readiness) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ok := range r.flags {
		if !ok {
			return false
		}
	}
	return true
}

// Pending 尚未就绪的组件
func (r *Readiness) Pending() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, ok := range r.flags {
		if !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
