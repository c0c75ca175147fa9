package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// CVDMetrics 汇总累计主动成交量差（cumulative volume delta）。
type CVDMetrics struct {
	Value      decimal.Decimal
	Momentum   decimal.Decimal
	Normalized decimal.Decimal
	Divergence string // bullish | bearish | neutral
}

// ComputeCVD 基于 K 线的 taker 买卖量计算 CVD 指标。
// 缺少 taker 量数据时返回 ok=false。
func ComputeCVD(candles []Candle) (CVDMetrics, bool) {
	if len(candles) == 0 {
		return CVDMetrics{}, false
	}
	hasFlow := false
	cvd := make([]decimal.Decimal, 0, len(candles))
	cumulative := decimal.Zero
	for _, c := range candles {
		if c.TakerBuyVolume > 0 || c.TakerSellVolume > 0 {
			hasFlow = true
		}
		buy := decimal.NewFromFloat(c.TakerBuyVolume)
		sell := decimal.NewFromFloat(c.TakerSellVolume)
		cumulative = cumulative.Add(buy.Sub(sell))
		cvd = append(cvd, cumulative)
	}
	if !hasFlow {
		return CVDMetrics{}, false
	}

	last := cvd[len(cvd)-1]
	momentum := decimal.Zero
	if len(cvd) > 6 {
		momentum = last.Sub(cvd[len(cvd)-6])
	}

	minVal, maxVal := cvd[0], cvd[0]
	for _, v := range cvd[1:] {
		if v.LessThan(minVal) {
			minVal = v
		}
		if v.GreaterThan(maxVal) {
			maxVal = v
		}
	}
	norm := decimal.NewFromFloat(0.5)
	if maxVal.GreaterThan(minVal) {
		norm = last.Sub(minVal).Div(maxVal.Sub(minVal))
	}

	divergence := "neutral"
	if len(candles) > 6 {
		priceNow := decimal.NewFromFloat(candles[len(candles)-1].Close)
		pricePrev := decimal.NewFromFloat(candles[len(candles)-6].Close)
		cvdPrev := cvd[len(cvd)-6]
		if priceNow.GreaterThan(pricePrev) && last.LessThan(cvdPrev) {
			divergence = "bearish"
		} else if priceNow.LessThan(pricePrev) && last.GreaterThan(cvdPrev) {
			divergence = "bullish"
		}
	}

	return CVDMetrics{
		Value:      last,
		Momentum:   momentum,
		Normalized: norm,
		Divergence: divergence,
	}, true
}

// FlowAccumulator 把逐笔成交按 K 线周期聚合为 taker 买卖量，
// 供没有 taker 量字段的数据源补齐 CVD 输入。
type FlowAccumulator struct {
	mu       sync.Mutex
	interval time.Duration
	bucketTs int64
	buy      float64
	sell     float64
}

// NewFlowAccumulator 创建聚合器，interval 为 K 线周期。
func NewFlowAccumulator(interval time.Duration) *FlowAccumulator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &FlowAccumulator{interval: interval}
}

// Add 记录一笔成交。跨桶时返回上一桶的 (buy, sell, true)。
func (f *FlowAccumulator) Add(p TradePrint) (buy, sell float64, rolled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := p.Time.Truncate(f.interval).UnixMilli()
	if f.bucketTs != 0 && bucket != f.bucketTs {
		buy, sell, rolled = f.buy, f.sell, true
		f.buy, f.sell = 0, 0
	}
	f.bucketTs = bucket
	if p.Side == "sell" {
		f.sell += p.Size
	} else {
		f.buy += p.Size
	}
	return buy, sell, rolled
}

// Current 返回当前桶的累计值。
func (f *FlowAccumulator) Current() (buy, sell float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buy, f.sell
}
