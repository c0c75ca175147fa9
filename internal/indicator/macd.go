package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"helmsman/internal/market"
)

// MACDConfig 控制 MACD 指标参数。
type MACDConfig struct {
	Fast   int
	Slow   int
	Signal int
	Window int
}

// MACD 输出柱状图动能与金叉/死叉信号。
type MACD struct {
	cfg MACDConfig
	win *window
}

// NewMACD 构造 MACD 指标，零值参数回落到 12/26/9。
func NewMACD(cfg MACDConfig) *MACD {
	if cfg.Fast <= 0 {
		cfg.Fast = 12
	}
	if cfg.Slow <= 0 {
		cfg.Slow = 26
	}
	if cfg.Signal <= 0 {
		cfg.Signal = 9
	}
	if cfg.Window <= 0 {
		cfg.Window = cfg.Slow + cfg.Signal + 60
	}
	return &MACD{cfg: cfg, win: newWindow(cfg.Window)}
}

func (m *MACD) ID() string   { return "macd" }
func (m *MACD) MinBars() int { return m.cfg.Slow + m.cfg.Signal }

// Update 计算最新 MACD 读数。
func (m *MACD) Update(c market.Candle) Reading {
	m.win.push(c)
	if m.win.len() < m.MinBars() {
		return neutralReading(m.ID())
	}
	closes := m.win.closes()
	macd, signal, hist := talib.Macd(closes, m.cfg.Fast, m.cfg.Slow, m.cfg.Signal)
	idx := len(hist) - 1
	histVal := hist[idx]
	histPrev := hist[idx-1]

	reading := Reading{
		IndicatorID: m.ID(),
		Value:       histVal,
		Ready:       true,
		Direction:   Neutral,
		Components: map[string]float64{
			"macd":   macd[idx],
			"signal": signal[idx],
			"hist":   histVal,
		},
	}

	// 柱状图相对价格归一化后映射到 [-100,100]。
	ref := closes[len(closes)-1]
	if ref > 0 {
		reading.Score = clampScore(histVal / ref * 100 * 400)
	}
	if histVal > 0 {
		reading.Direction = Bullish
	} else if histVal < 0 {
		reading.Direction = Bearish
	}

	// 柱状图穿越零轴即 MACD 线与信号线交叉。
	if histPrev <= 0 && histVal > 0 {
		reading.Signals = append(reading.Signals, Signal{
			Type:      SignalCrossover,
			Direction: Bullish,
			Strength:  crossStrength(histVal, histPrev),
			Metadata:  map[string]any{"hist": histVal, "hist_prev": histPrev},
		})
	} else if histPrev >= 0 && histVal < 0 {
		reading.Signals = append(reading.Signals, Signal{
			Type:      SignalCrossover,
			Direction: Bearish,
			Strength:  crossStrength(histVal, histPrev),
			Metadata:  map[string]any{"hist": histVal, "hist_prev": histPrev},
		})
	} else if math.Abs(histVal) > math.Abs(histPrev) && histVal*histPrev > 0 {
		// 同向且柱体扩张：动能延续。
		dir := Bullish
		if histVal < 0 {
			dir = Bearish
		}
		reading.Signals = append(reading.Signals, Signal{
			Type:      SignalMomentum,
			Direction: dir,
			Strength:  Moderate,
			Metadata:  map[string]any{"hist": histVal, "hist_prev": histPrev},
		})
	}
	return reading
}

func crossStrength(cur, prev float64) Strength {
	gap := math.Abs(cur - prev)
	base := math.Abs(cur) + math.Abs(prev)
	if base <= 0 {
		return Moderate
	}
	if gap/base > 1.5 {
		return VeryStrong
	}
	return Strong
}
