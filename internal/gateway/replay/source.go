// Package replay 从预加载的历史 K 线回放行情, 实现 market.Source。
// Live() 恒为 false: 微结构打分在回放数据上必须保持关闭。
package replay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"helmsman/internal/market"
	symbolpkg "helmsman/internal/pkg/symbol"
)

type seriesKey struct {
	symbol   string
	interval string
}

type Source struct {
	mu     sync.Mutex
	series map[seriesKey][]market.Candle
	stats  market.SourceStats
}

func New() *Source {
	return &Source{series: make(map[seriesKey][]market.Candle)}
}

// Load 装入一段历史序列, 覆盖同 key 旧数据。
func (s *Source) Load(symbol, interval string, candles []market.Candle) {
	key := seriesKey{
		symbol:   symbolpkg.Normalize(symbol),
		interval: strings.ToLower(strings.TrimSpace(interval)),
	}
	cp := make([]market.Candle, len(candles))
	copy(cp, candles)
	s.mu.Lock()
	s.series[key] = cp
	s.mu.Unlock()
}

func (s *Source) Live() bool { return false }

func (s *Source) FetchHistory(_ context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	key := seriesKey{
		symbol:   symbolpkg.Normalize(symbol),
		interval: strings.ToLower(strings.TrimSpace(interval)),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	candles, ok := s.series[key]
	if !ok {
		return nil, fmt.Errorf("no replay data for %s %s", symbol, interval)
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]market.Candle, len(candles))
	copy(out, candles)
	return out, nil
}

// Subscribe 顺序回放所有已装入的序列, 回放完即关闭通道。
func (s *Source) Subscribe(ctx context.Context, symbols, intervals []string, opts market.SubscribeOptions) (<-chan market.CandleEvent, error) {
	wanted := make(map[seriesKey]bool)
	for _, sym := range symbolpkg.NormalizeList(symbols) {
		for _, iv := range intervals {
			wanted[seriesKey{symbol: sym, interval: strings.ToLower(strings.TrimSpace(iv))}] = true
		}
	}
	if len(wanted) == 0 {
		return nil, fmt.Errorf("no valid symbols or intervals for replay")
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 512
	}
	out := make(chan market.CandleEvent, buffer)

	go func() {
		defer close(out)
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
		s.mu.Lock()
		batches := make(map[seriesKey][]market.Candle, len(wanted))
		for key := range wanted {
			if candles, ok := s.series[key]; ok {
				batches[key] = candles
			}
		}
		s.mu.Unlock()

		for key, candles := range batches {
			for _, c := range candles {
				ev := market.CandleEvent{
					Symbol:   key.symbol,
					Interval: key.interval,
					Candle:   c,
					Closed:   true,
				}
				select {
				case <-ctx.Done():
					return
				case out <- ev:
					s.mu.Lock()
					s.stats.CandleEvents++
					s.stats.LastEventAt = time.Now()
					s.mu.Unlock()
				}
			}
		}
	}()
	return out, nil
}

// SubscribeTrades 回放源没有逐笔数据, 返回立即关闭的空通道。
func (s *Source) SubscribeTrades(context.Context, []string, market.SubscribeOptions) (<-chan market.TickEvent, error) {
	out := make(chan market.TickEvent)
	close(out)
	return out, nil
}

// SubscribeDepth 回放源没有盘口数据, 返回立即关闭的空通道。
func (s *Source) SubscribeDepth(context.Context, []string, market.SubscribeOptions) (<-chan market.DepthEvent, error) {
	out := make(chan market.DepthEvent)
	close(out)
	return out, nil
}

func (s *Source) Stats() market.SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Source) Close() error { return nil }
