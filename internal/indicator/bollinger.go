package indicator

import (
	talib "github.com/markcheno/go-talib"

	"helmsman/internal/market"
)

// BollingerConfig 控制布林带指标参数。
type BollingerConfig struct {
	Period        int
	NumDev        float64
	SqueezeLookup int // 带宽分位回看长度
	SqueezeRatio  float64
	Window        int
}

// Bollinger 输出价格触带 zone 信号与带宽收缩 squeeze 信号。
type Bollinger struct {
	cfg BollingerConfig
	win *window
}

// NewBollinger 构造布林带指标，零值参数回落到 20/2.0。
func NewBollinger(cfg BollingerConfig) *Bollinger {
	if cfg.Period <= 0 {
		cfg.Period = 20
	}
	if cfg.NumDev <= 0 {
		cfg.NumDev = 2.0
	}
	if cfg.SqueezeLookup <= 0 {
		cfg.SqueezeLookup = 60
	}
	if cfg.SqueezeRatio <= 0 {
		cfg.SqueezeRatio = 0.6
	}
	if cfg.Window <= 0 {
		cfg.Window = cfg.Period + cfg.SqueezeLookup + 20
	}
	return &Bollinger{cfg: cfg, win: newWindow(cfg.Window)}
}

func (b *Bollinger) ID() string   { return "bollinger" }
func (b *Bollinger) MinBars() int { return b.cfg.Period + 1 }

// Update 计算最新布林带读数。
func (b *Bollinger) Update(c market.Candle) Reading {
	b.win.push(c)
	if b.win.len() < b.MinBars() {
		return neutralReading(b.ID())
	}
	closes := b.win.closes()
	upper, middle, lower := talib.BBands(closes, b.cfg.Period, b.cfg.NumDev, b.cfg.NumDev, talib.SMA)
	idx := len(closes) - 1
	up, mid, low := upper[idx], middle[idx], lower[idx]
	price := closes[idx]

	reading := Reading{
		IndicatorID: b.ID(),
		Value:       price,
		Ready:       true,
		Direction:   Neutral,
		Components: map[string]float64{
			"upper":  up,
			"middle": mid,
			"lower":  low,
		},
	}
	if up <= low || mid <= 0 {
		return reading
	}

	// %B 映射：0.5 为中轨，越靠下越偏多。
	pctB := (price - low) / (up - low)
	reading.Score = clampScore((0.5 - pctB) * 160)
	if price <= low {
		reading.Direction = Bullish
		reading.Signals = append(reading.Signals, Signal{
			Type:      SignalZone,
			Direction: Bullish,
			Strength:  bandStrength(pctB, true),
			Metadata:  map[string]any{"pct_b": pctB, "lower": low},
		})
	} else if price >= up {
		reading.Direction = Bearish
		reading.Signals = append(reading.Signals, Signal{
			Type:      SignalZone,
			Direction: Bearish,
			Strength:  bandStrength(pctB, false),
			Metadata:  map[string]any{"pct_b": pctB, "upper": up},
		})
	} else if pctB < 0.4 {
		reading.Direction = Bullish
	} else if pctB > 0.6 {
		reading.Direction = Bearish
	}

	// 带宽显著低于近期均值即 squeeze（方向中性，预示波动释放）。
	width := (up - low) / mid
	if avg, ok := b.avgBandwidth(upper, middle, lower); ok && width < avg*b.cfg.SqueezeRatio {
		reading.Signals = append(reading.Signals, Signal{
			Type:      SignalSqueeze,
			Direction: Neutral,
			Strength:  Strong,
			Metadata:  map[string]any{"bandwidth": width, "avg_bandwidth": avg},
		})
	}
	return reading
}

func (b *Bollinger) avgBandwidth(upper, middle, lower []float64) (float64, bool) {
	n := len(middle)
	lookback := b.cfg.SqueezeLookup
	if n < b.cfg.Period+lookback {
		return 0, false
	}
	sum, count := 0.0, 0
	for i := n - lookback; i < n-1; i++ {
		if middle[i] <= 0 {
			continue
		}
		sum += (upper[i] - lower[i]) / middle[i]
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

func bandStrength(pctB float64, lowSide bool) Strength {
	dist := pctB - 1
	if lowSide {
		dist = -pctB
	}
	switch {
	case dist >= 0.25:
		return Extreme
	case dist >= 0.1:
		return VeryStrong
	case dist >= 0:
		return Strong
	default:
		return Moderate
	}
}
