package scoring

import (
	"math"
	"time"

	"helmsman/internal/indicator"
	"helmsman/internal/market"
)

// MicroInputs 汇集实时微结构数据。任一字段可缺失。
type MicroInputs struct {
	Book    *market.BookSnapshot
	CVD     *market.CVDMetrics
	Funding *market.FundingSnapshot
}

const (
	microBookWeight    = 15.0
	microCVDWeight     = 12.0
	microFundingWeight = 8.0
	bookStaleAfter     = 30 * time.Second
)

// scoreMicro 把盘口失衡、CVD 与资金费率偏斜映射为微结构分值。
// 调用方负责保证只在实时数据上调用。
func (e *Engine) scoreMicro(in MicroInputs) (float64, []indicator.Signal) {
	total := 0.0
	var signals []indicator.Signal

	if in.Book != nil && time.Since(in.Book.UpdatedAt) < bookStaleAfter {
		if imb, ok := bookImbalance(*in.Book); ok {
			total += imb * microBookWeight
			if math.Abs(imb) > 0.5 {
				dir := indicator.Bullish
				if imb < 0 {
					dir = indicator.Bearish
				}
				signals = append(signals, indicator.Signal{
					Type:      indicator.SignalMomentum,
					Direction: dir,
					Strength:  indicator.Strong,
					Metadata:  map[string]any{"source": "book_imbalance", "imbalance": imb},
				})
			}
		}
	}

	if in.CVD != nil {
		norm, _ := in.CVD.Normalized.Float64()
		// Normalized ∈ [0,1]，0.5 为中性。
		total += (norm - 0.5) * 2 * microCVDWeight
		switch in.CVD.Divergence {
		case "bullish":
			signals = append(signals, indicator.Signal{
				Type:      indicator.SignalDivergence,
				Direction: indicator.Bullish,
				Strength:  indicator.Strong,
				Metadata:  map[string]any{"source": "cvd"},
			})
			total += 5
		case "bearish":
			signals = append(signals, indicator.Signal{
				Type:      indicator.SignalDivergence,
				Direction: indicator.Bearish,
				Strength:  indicator.Strong,
				Metadata:  map[string]any{"source": "cvd"},
			})
			total -= 5
		}
	}

	if in.Funding != nil {
		// 资金费率极端偏斜是反向信号：多头过热利空，反之利多。
		rate := in.Funding.CurrentRate
		if math.Abs(rate) > 0.0001 {
			total += -sign(rate) * math.Min(math.Abs(rate)/0.001, 1) * microFundingWeight
		}
	}
	return total, signals
}

// bookImbalance 返回 [-1,1] 区间的买卖盘量失衡。
func bookImbalance(book market.BookSnapshot) (float64, bool) {
	bidVol, askVol := 0.0, 0.0
	for _, lvl := range book.Bids {
		bidVol += lvl.Size
	}
	for _, lvl := range book.Asks {
		askVol += lvl.Size
	}
	if bidVol+askVol <= 0 {
		return 0, false
	}
	return (bidVol - askVol) / (bidVol + askVol), true
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	if v > 0 {
		return 1
	}
	return 0
}
