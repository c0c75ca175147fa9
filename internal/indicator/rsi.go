package indicator

import (
	talib "github.com/markcheno/go-talib"

	"helmsman/internal/market"
)

// RSIConfig 控制 RSI 指标参数。
type RSIConfig struct {
	Period     int
	Overbought float64
	Oversold   float64
	Window     int
	Divergence DivergenceConfig
}

// RSI 输出 Wilder RSI 值、超买超卖 zone 信号与背离信号。
type RSI struct {
	cfg RSIConfig
	win *window
	// trendHint 由持有方注入更大周期方向，用于隐藏背离确认。
	trendHint Direction
}

// NewRSI 构造 RSI 指标，零值参数回落到 14/70/30。
func NewRSI(cfg RSIConfig) *RSI {
	if cfg.Period <= 0 {
		cfg.Period = 14
	}
	if cfg.Overbought <= 0 {
		cfg.Overbought = 70
	}
	if cfg.Oversold <= 0 {
		cfg.Oversold = 30
	}
	if cfg.Window <= 0 {
		cfg.Window = cfg.Period*2 + 60
	}
	cfg.Divergence = cfg.Divergence.withDefaults()
	return &RSI{cfg: cfg, win: newWindow(cfg.Window), trendHint: Neutral}
}

func (r *RSI) ID() string   { return "rsi" }
func (r *RSI) MinBars() int { return r.cfg.Period + 1 }

// SetTrendHint 注入更大周期趋势方向。
func (r *RSI) SetTrendHint(d Direction) { r.trendHint = d }

// Update 计算最新 RSI 读数。历史不足时返回中性读数。
func (r *RSI) Update(c market.Candle) Reading {
	r.win.push(c)
	if r.win.len() < r.MinBars() {
		return neutralReading(r.ID())
	}
	closes := r.win.closes()
	series := talib.Rsi(closes, r.cfg.Period)
	val := series[len(series)-1]

	reading := Reading{
		IndicatorID: r.ID(),
		Value:       val,
		Ready:       true,
		Direction:   Neutral,
		Components:  map[string]float64{"rsi": val},
	}

	// 50 为中线，离中线越远分值越高；zone 内再按深度加强。
	reading.Score = clampScore((50 - val) * 2)
	switch {
	case val <= r.cfg.Oversold:
		depth := r.cfg.Oversold - val
		reading.Direction = Bullish
		reading.Signals = append(reading.Signals, Signal{
			Type:      SignalZone,
			Direction: Bullish,
			Strength:  zoneStrength(depth),
			Metadata:  map[string]any{"rsi": val, "threshold": r.cfg.Oversold},
		})
	case val >= r.cfg.Overbought:
		depth := val - r.cfg.Overbought
		reading.Direction = Bearish
		reading.Signals = append(reading.Signals, Signal{
			Type:      SignalZone,
			Direction: Bearish,
			Strength:  zoneStrength(depth),
			Metadata:  map[string]any{"rsi": val, "threshold": r.cfg.Overbought},
		})
	case val < 45:
		reading.Direction = Bullish
	case val > 55:
		reading.Direction = Bearish
	}

	// 背离在价格低点/高点 与 RSI 序列之间扫描。
	if sig, ok := detectDivergence(r.win.lows(), series, r.cfg.Divergence, r.trendHint); ok && sig.Direction == Bullish {
		reading.Signals = append(reading.Signals, sig)
		reading.Direction = Bullish
		reading.Score = clampScore(reading.Score + 30)
	} else if sig, ok := detectDivergence(r.win.highs(), series, r.cfg.Divergence, r.trendHint); ok && sig.Direction == Bearish {
		reading.Signals = append(reading.Signals, sig)
		reading.Direction = Bearish
		reading.Score = clampScore(reading.Score - 30)
	}
	return reading
}

func zoneStrength(depth float64) Strength {
	switch {
	case depth >= 15:
		return Extreme
	case depth >= 10:
		return VeryStrong
	case depth >= 5:
		return Strong
	case depth >= 2:
		return Moderate
	default:
		return Weak
	}
}
