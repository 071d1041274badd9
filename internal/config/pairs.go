package config

import "sync"

// PairSet 是当前活跃交易对集合；扫描器写入、信号循环读取，所有访问都持锁。
type PairSet struct {
	mu    sync.Mutex
	pairs []string
}

func NewPairSet(pairs []string) *PairSet {
	return &PairSet{pairs: append([]string(nil), pairs...)}
}

// Snapshot returns a copy in iteration order.
func (p *PairSet) Snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.pairs...)
}

// Replace swaps in next if it differs from the current set (order-insensitive).
// It returns the previous pairs and whether a swap happened.
func (p *PairSet) Replace(next []string) (prev []string, changed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev = append([]string(nil), p.pairs...)
	if SameSet(prev, next) {
		return prev, false
	}
	p.pairs = append([]string(nil), next...)
	return prev, true
}

// Add appends sym unless present.
func (p *PairSet) Add(sym string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.pairs {
		if s == sym {
			return false
		}
	}
	p.pairs = append(p.pairs, sym)
	return true
}

func (p *PairSet) Remove(sym string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.pairs {
		if s == sym {
			p.pairs = append(p.pairs[:i:i], p.pairs[i+1:]...)
			return true
		}
	}
	return false
}

func (p *PairSet) Contains(sym string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.pairs {
		if s == sym {
			return true
		}
	}
	return false
}

// SameSet compares a and b as sets.
func SameSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, s := range a {
		as[s] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, s := range b {
		bs[s] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for s := range as {
		if _, ok := bs[s]; !ok {
			return false
		}
	}
	return true
}
