package indicator

import (
	"sort"

	"helmsman/internal/market"
)

// Indicator 是所有指标的统一契约：吃进一根收盘 K 线，
// 返回一个完整 Reading。实现必须在历史不足时返回中性读数，
// 永远不返回错误——组合层依赖统一形状。
type Indicator interface {
	ID() string
	// MinBars 返回产生有效读数所需的最少 K 线数。
	MinBars() int
	Update(c market.Candle) Reading
}

// window 是指标私有的有界滚动窗口。
type window struct {
	max     int
	candles []market.Candle
}

func newWindow(max int) *window {
	if max < 2 {
		max = 2
	}
	return &window{max: max}
}

// push 追加或覆盖（同 OpenTime）一根 K 线。
func (w *window) push(c market.Candle) {
	if n := len(w.candles); n > 0 && w.candles[n-1].OpenTime == c.OpenTime {
		w.candles[n-1] = c
		return
	}
	w.candles = append(w.candles, c)
	if len(w.candles) > w.max {
		copy(w.candles, w.candles[len(w.candles)-w.max:])
		w.candles = w.candles[:w.max]
	}
}

func (w *window) len() int { return len(w.candles) }

func (w *window) closes() []float64 {
	out := make([]float64, len(w.candles))
	for i, c := range w.candles {
		out[i] = c.Close
	}
	return out
}

func (w *window) highs() []float64 {
	out := make([]float64, len(w.candles))
	for i, c := range w.candles {
		out[i] = c.High
	}
	return out
}

func (w *window) lows() []float64 {
	out := make([]float64, len(w.candles))
	for i, c := range w.candles {
		out[i] = c.Low
	}
	return out
}

// Set 是一个 symbol/interval 专属的指标集合。
// 同一 Set 的更新严格串行，由持有它的 worker 保证。
type Set struct {
	indicators []Indicator
}

// NewSet 构造集合并按 ID 排序，保证读数顺序稳定。
func NewSet(indicators ...Indicator) *Set {
	list := make([]Indicator, 0, len(indicators))
	for _, ind := range indicators {
		if ind != nil {
			list = append(list, ind)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return &Set{indicators: list}
}

// Update 把一根收盘 K 线推给所有指标，返回全部读数。
func (s *Set) Update(c market.Candle) []Reading {
	out := make([]Reading, 0, len(s.indicators))
	for _, ind := range s.indicators {
		out = append(out, ind.Update(c))
	}
	return out
}

// Warmup 依次推入历史 K 线（预热滚动状态），丢弃读数。
func (s *Set) Warmup(candles []market.Candle) {
	for _, c := range candles {
		for _, ind := range s.indicators {
			ind.Update(c)
		}
	}
}

// IDs 返回集合内全部指标 ID。
func (s *Set) IDs() []string {
	out := make([]string, 0, len(s.indicators))
	for _, ind := range s.indicators {
		out = append(out, ind.ID())
	}
	return out
}
