package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioConfig() LevelConfig {
	return LevelConfig{
		StopLossROI:      5,
		TakeProfitROI:    20,
		BreakEvenTrigROI: 15,
		EntryFeeRate:     0.000125,
		ExitFeeRate:      0.000125,
		SafetyBufferPct:  1.75,
	}
}

func TestDeriveLevelsLong(t *testing.T) {
	plan, err := scenarioConfig().DeriveLevels("btcusdt", "long", decimal.NewFromInt(50000), 10)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", plan.Symbol)
	assert.True(t, plan.StopLossPrice.Equal(decimal.NewFromInt(49750)), "stop %s", plan.StopLossPrice)
	assert.True(t, plan.TakeProfitPrice.Equal(decimal.NewFromInt(51000)), "tp %s", plan.TakeProfitPrice)
	assert.True(t, plan.BreakEvenTriggerPrice.Equal(decimal.NewFromFloat(50762.5)),
		"be trigger %s", plan.BreakEvenTriggerPrice)
	assert.True(t, plan.BreakEvenStopPrice.Equal(decimal.NewFromInt(50100)),
		"be stop %s", plan.BreakEvenStopPrice)
}

func TestDeriveLevelsShortMirror(t *testing.T) {
	plan, err := scenarioConfig().DeriveLevels("BTCUSDT", "short", decimal.NewFromInt(50000), 10)
	require.NoError(t, err)

	assert.True(t, plan.StopLossPrice.Equal(decimal.NewFromInt(50250)))
	assert.True(t, plan.TakeProfitPrice.Equal(decimal.NewFromInt(49000)))
	assert.True(t, plan.BreakEvenTriggerPrice.Equal(decimal.NewFromFloat(49237.5)))
	assert.True(t, plan.BreakEvenStopPrice.Equal(decimal.NewFromInt(49900)))
}

func TestDeriveLevelsRejectsBadInput(t *testing.T) {
	cfg := scenarioConfig()
	_, err := cfg.DeriveLevels("BTCUSDT", "sideways", decimal.NewFromInt(50000), 10)
	assert.Error(t, err)
	_, err = cfg.DeriveLevels("BTCUSDT", "long", decimal.Zero, 10)
	assert.Error(t, err)
	_, err = cfg.DeriveLevels("BTCUSDT", "long", decimal.NewFromInt(50000), 0)
	assert.Error(t, err)
}

func TestBreakEvenROIAlwaysAboveFeesOnly(t *testing.T) {
	cfg := scenarioConfig()
	for lev := 1; lev <= 20; lev++ {
		feesOnly := (cfg.EntryFeeRate + cfg.ExitFeeRate) * float64(lev) * 100
		assert.Greater(t, cfg.FeeAdjustedBreakEvenROI(lev), feesOnly,
			"杠杆 %d 下保本 ROI 必须严格大于纯费率保本", lev)
	}
}

// 保本安全性：保本锁生效后按止损价离场，扣除双边手续费仍不亏。
func TestBreakEvenSafetyAcrossLeverage(t *testing.T) {
	cfg := scenarioConfig()
	entry := decimal.NewFromInt(50000)
	size := decimal.NewFromFloat(0.1)
	feeIn := decimal.NewFromFloat(cfg.EntryFeeRate)
	feeOut := decimal.NewFromFloat(cfg.ExitFeeRate)

	for lev := 1; lev <= 20; lev++ {
		plan, err := cfg.DeriveLevels("BTCUSDT", "long", entry, lev)
		if err != nil {
			// 高杠杆下强平缓冲不足属于预期拒绝。
			continue
		}
		gross := plan.BreakEvenStopPrice.Sub(entry).Mul(size)
		feeCost := entry.Mul(feeIn).Add(plan.BreakEvenStopPrice.Mul(feeOut)).Mul(size)
		net := gross.Sub(feeCost)
		assert.True(t, net.GreaterThanOrEqual(decimal.Zero),
			"杠杆 %d: 保本价离场净收益 %s < 0", lev, net)
	}
}

// 强平缓冲：每一档杠杆下入场价到强平价的距离比例 ≥ 配置下限。
func TestLiquidationBufferPerTier(t *testing.T) {
	cfg := scenarioConfig()
	cfg.MinLiqBuffer = 0.01
	entry := decimal.NewFromInt(50000)

	for _, lev := range []int{1, 3, 5, 10, 20} {
		plan, err := cfg.DeriveLevels("BTCUSDT", "long", entry, lev)
		require.NoError(t, err, "杠杆 %d", lev)
		buffer := plan.LiquidationPrice.Sub(entry).Abs().Div(entry)
		assert.True(t, buffer.GreaterThanOrEqual(decimal.NewFromFloat(0.01)),
			"杠杆 %d 缓冲 %s", lev, buffer)
	}
}

func TestLiquidationBufferTooTight(t *testing.T) {
	cfg := scenarioConfig()
	cfg.MinLiqBuffer = 0.06
	// 20 倍杠杆强平距离约 4.98%，低于 6% 下限必须拒绝。
	_, err := cfg.DeriveLevels("BTCUSDT", "long", decimal.NewFromInt(50000), 20)
	assert.Error(t, err)
}
