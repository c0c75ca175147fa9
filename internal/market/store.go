package market

import (
	"strings"
	"sync"
)

// KlineStore 维护每个 symbol/interval 的有界滚动窗口。
type KlineStore interface {
	Get(symbol, interval string) []Candle
	Set(symbol, interval string, candles []Candle)
	Put(symbol, interval string, c Candle)
}

// MemoryStore 是 KlineStore 的进程内实现。
// 窗口按 OpenTime 去重：同一根未收盘 K 线的多次推送只保留最新值。
type MemoryStore struct {
	mu   sync.RWMutex
	max  int
	data map[string][]Candle
}

// NewMemoryStore 创建容量为 max 的存储，max<=0 时使用 500。
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 500
	}
	return &MemoryStore{max: max, data: make(map[string][]Candle)}
}

func storeKey(symbol, interval string) string {
	return strings.ToUpper(strings.TrimSpace(symbol)) + "|" + strings.ToLower(strings.TrimSpace(interval))
}

// Get 返回窗口副本。
func (s *MemoryStore) Get(symbol, interval string) []Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.data[storeKey(symbol, interval)]
	if len(src) == 0 {
		return nil
	}
	out := make([]Candle, len(src))
	copy(out, src)
	return out
}

// Set 整体替换窗口（用于历史预热）。
func (s *MemoryStore) Set(symbol, interval string, candles []Candle) {
	dst := make([]Candle, len(candles))
	copy(dst, candles)
	if len(dst) > s.max {
		dst = dst[len(dst)-s.max:]
	}
	s.mu.Lock()
	s.data[storeKey(symbol, interval)] = dst
	s.mu.Unlock()
}

// Put 追加或更新一根 K 线，窗口超限时丢弃最旧的。
func (s *MemoryStore) Put(symbol, interval string, c Candle) {
	if c.IsZero() {
		return
	}
	key := storeKey(symbol, interval)
	s.mu.Lock()
	defer s.mu.Unlock()
	window := s.data[key]
	if n := len(window); n > 0 && window[n-1].OpenTime == c.OpenTime {
		window[n-1] = c
		s.data[key] = window
		return
	}
	window = append(window, c)
	if len(window) > s.max {
		window = window[len(window)-s.max:]
	}
	s.data[key] = window
}
