package indicator

import (
	talib "github.com/markcheno/go-talib"

	"helmsman/internal/market"
)

// EMATrendConfig 控制三均线趋势指标参数。
type EMATrendConfig struct {
	Fast   int
	Mid    int
	Slow   int
	Window int
}

// EMATrend 根据快/中/慢 EMA 排列判定趋势，并在快线穿越慢线时
// 发出 trend_cross 信号。它同时对外提供更大周期趋势方向。
type EMATrend struct {
	cfg EMATrendConfig
	win *window

	prevSpread float64
	hasPrev    bool
}

// NewEMATrend 构造趋势指标，零值参数回落到 9/21/55。
func NewEMATrend(cfg EMATrendConfig) *EMATrend {
	if cfg.Fast <= 0 {
		cfg.Fast = 9
	}
	if cfg.Mid <= 0 {
		cfg.Mid = 21
	}
	if cfg.Slow <= 0 {
		cfg.Slow = 55
	}
	if cfg.Window <= 0 {
		cfg.Window = cfg.Slow * 3
	}
	return &EMATrend{cfg: cfg, win: newWindow(cfg.Window)}
}

func (e *EMATrend) ID() string   { return "ema_trend" }
func (e *EMATrend) MinBars() int { return e.cfg.Slow + 1 }

// Trend 返回当前趋势方向（给隐藏背离确认与趋势对齐门控用）。
func (e *EMATrend) Trend() Direction {
	if e.win.len() < e.MinBars() {
		return Neutral
	}
	fast, mid, slow := e.latest()
	switch {
	case fast > mid && mid > slow:
		return Bullish
	case fast < mid && mid < slow:
		return Bearish
	default:
		return Neutral
	}
}

func (e *EMATrend) latest() (fast, mid, slow float64) {
	closes := e.win.closes()
	fastArr := talib.Ema(closes, e.cfg.Fast)
	midArr := talib.Ema(closes, e.cfg.Mid)
	slowArr := talib.Ema(closes, e.cfg.Slow)
	n := len(closes) - 1
	return fastArr[n], midArr[n], slowArr[n]
}

// Update 计算最新趋势读数。
func (e *EMATrend) Update(c market.Candle) Reading {
	e.win.push(c)
	if e.win.len() < e.MinBars() {
		return neutralReading(e.ID())
	}
	fast, mid, slow := e.latest()
	spread := fast - slow

	reading := Reading{
		IndicatorID: e.ID(),
		Value:       spread,
		Ready:       true,
		Direction:   e.Trend(),
		Components: map[string]float64{
			"ema_fast": fast,
			"ema_mid":  mid,
			"ema_slow": slow,
		},
	}
	ref := c.Close
	if ref > 0 {
		reading.Score = clampScore(spread / ref * 100 * 50)
	}

	// 快线相对慢线的价差变号即主趋势交叉。
	if e.hasPrev {
		if e.prevSpread <= 0 && spread > 0 {
			reading.Signals = append(reading.Signals, Signal{
				Type:      SignalTrendCross,
				Direction: Bullish,
				Strength:  VeryStrong,
				Metadata:  map[string]any{"spread": spread, "spread_prev": e.prevSpread},
			})
		} else if e.prevSpread >= 0 && spread < 0 {
			reading.Signals = append(reading.Signals, Signal{
				Type:      SignalTrendCross,
				Direction: Bearish,
				Strength:  VeryStrong,
				Metadata:  map[string]any{"spread": spread, "spread_prev": e.prevSpread},
			})
		}
	}
	e.prevSpread = spread
	e.hasPrev = true
	return reading
}
