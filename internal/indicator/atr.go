package indicator

import (
	talib "github.com/markcheno/go-talib"

	"helmsman/internal/market"
)

// ATRConfig 控制 ATR 指标参数。
type ATRConfig struct {
	Period int
	Window int
}

// ATR 输出真实波幅及 ATR 百分比（ATR/收盘价）。
// 它不产生方向信号，只为杠杆分层与波动单位追踪距离提供输入。
type ATR struct {
	cfg ATRConfig
	win *window

	lastValue   float64
	lastPercent float64
}

// NewATR 构造 ATR 指标，零值参数回落到 14。
func NewATR(cfg ATRConfig) *ATR {
	if cfg.Period <= 0 {
		cfg.Period = 14
	}
	if cfg.Window <= 0 {
		cfg.Window = cfg.Period*3 + 20
	}
	return &ATR{cfg: cfg, win: newWindow(cfg.Window)}
}

func (a *ATR) ID() string   { return "atr" }
func (a *ATR) MinBars() int { return a.cfg.Period + 1 }

// Value 返回最近一次计算的 ATR 绝对值。
func (a *ATR) Value() float64 { return a.lastValue }

// Percent 返回最近一次计算的 ATR 百分比（如 0.012 = 1.2%）。
func (a *ATR) Percent() float64 { return a.lastPercent }

// Update 计算最新 ATR 读数。
func (a *ATR) Update(c market.Candle) Reading {
	a.win.push(c)
	if a.win.len() < a.MinBars() {
		return neutralReading(a.ID())
	}
	series := talib.Atr(a.win.highs(), a.win.lows(), a.win.closes(), a.cfg.Period)
	val := series[len(series)-1]
	a.lastValue = val
	a.lastPercent = 0
	if c.Close > 0 {
		a.lastPercent = val / c.Close
	}
	return Reading{
		IndicatorID: a.ID(),
		Value:       val,
		Ready:       true,
		Direction:   Neutral,
		Components: map[string]float64{
			"atr":         val,
			"atr_percent": a.lastPercent,
		},
	}
}
