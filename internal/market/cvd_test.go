package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flowCandle(ts int64, close, buy, sell float64) Candle {
	return Candle{
		OpenTime: ts, Close: close, Open: close, High: close, Low: close,
		Volume: buy + sell, TakerBuyVolume: buy, TakerSellVolume: sell,
	}
}

func TestComputeCVDRequiresFlowData(t *testing.T) {
	// 纯 OHLCV 回放没有 taker 量，CVD 必须判定为不可用。
	candles := []Candle{
		{OpenTime: 1, Close: 100, Volume: 10},
		{OpenTime: 2, Close: 101, Volume: 12},
	}
	_, ok := ComputeCVD(candles)
	assert.False(t, ok)

	_, ok = ComputeCVD(nil)
	assert.False(t, ok)
}

func TestComputeCVDAccumulates(t *testing.T) {
	candles := []Candle{
		flowCandle(1, 100, 10, 4),
		flowCandle(2, 101, 12, 6),
		flowCandle(3, 102, 8, 10),
	}
	m, ok := ComputeCVD(candles)
	require.True(t, ok)
	// (10−4)+(12−6)+(8−10) = 10
	assert.Equal(t, "10", m.Value.String())
	assert.True(t, m.Normalized.GreaterThanOrEqual(decimal.Zero))
	assert.True(t, m.Normalized.LessThanOrEqual(decimal.NewFromInt(1)))
}

func TestComputeCVDBearishDivergence(t *testing.T) {
	// 价格走高但 CVD 走低 → 空头背离。
	candles := make([]Candle, 0, 10)
	for i := 0; i < 10; i++ {
		candles = append(candles, flowCandle(int64(i), 100+float64(i), 2, 6))
	}
	m, ok := ComputeCVD(candles)
	require.True(t, ok)
	assert.Equal(t, "bearish", m.Divergence)
}

func TestFlowAccumulatorRollsBuckets(t *testing.T) {
	acc := NewFlowAccumulator(time.Minute)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	_, _, rolled := acc.Add(TradePrint{Side: "buy", Size: 3, Time: base})
	assert.False(t, rolled)
	_, _, rolled = acc.Add(TradePrint{Side: "sell", Size: 1, Time: base.Add(20 * time.Second)})
	assert.False(t, rolled)

	buy, sell := acc.Current()
	assert.Equal(t, 3.0, buy)
	assert.Equal(t, 1.0, sell)

	// 跨分钟时返回上一桶并清零。
	buy, sell, rolled = acc.Add(TradePrint{Side: "buy", Size: 5, Time: base.Add(70 * time.Second)})
	assert.True(t, rolled)
	assert.Equal(t, 3.0, buy)
	assert.Equal(t, 1.0, sell)

	buy, sell = acc.Current()
	assert.Equal(t, 5.0, buy)
	assert.Equal(t, 0.0, sell)
}
