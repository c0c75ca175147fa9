package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionSizeFromRiskBudget(t *testing.T) {
	cfg := SizingConfig{RiskPercent: 0.01, MaxPositionPct: 0.5, LotStep: 0.001}
	// 权益 10000，风险预算 100，止损距离 250 → 0.4。
	qty, notional, err := cfg.PositionSize(
		decimal.NewFromInt(10000), decimal.NewFromInt(50000), decimal.NewFromInt(49750), 10)
	require.NoError(t, err)
	assert.True(t, qty.Equal(decimal.NewFromFloat(0.1)), "qty %s", qty)
	assert.True(t, notional.Equal(decimal.NewFromInt(5000)), "notional %s", notional)
}

func TestPositionSizeFloorsNeverRounds(t *testing.T) {
	cfg := SizingConfig{RiskPercent: 0.01, MaxPositionPct: 0.9, LotStep: 0.01}
	// 原始数量 0.0769…，步长 0.01 → 向下取整到 0.07 而非 0.08。
	qty, _, err := cfg.PositionSize(
		decimal.NewFromInt(10000), decimal.NewFromInt(2000), decimal.NewFromInt(700), 5)
	require.NoError(t, err)
	assert.True(t, qty.Equal(decimal.NewFromFloat(0.07)), "qty %s", qty)
}

func TestPositionSizeNotionalCap(t *testing.T) {
	cfg := SizingConfig{RiskPercent: 0.05, MaxPositionPct: 0.2, LotStep: 0.001}
	// 止损极近导致原始数量巨大，名义价值被钳到权益 × 20%。
	qty, notional, err := cfg.PositionSize(
		decimal.NewFromInt(10000), decimal.NewFromInt(50000), decimal.NewFromInt(49990), 10)
	require.NoError(t, err)
	assert.True(t, notional.LessThanOrEqual(decimal.NewFromInt(2000)),
		"notional %s 超出上限", notional)
	assert.True(t, qty.GreaterThan(decimal.Zero))
}

func TestPositionSizeBelowMinimum(t *testing.T) {
	cfg := SizingConfig{RiskPercent: 0.001, MaxPositionPct: 0.2, LotStep: 0.001, MinQty: 0.01}
	_, _, err := cfg.PositionSize(
		decimal.NewFromInt(100), decimal.NewFromInt(50000), decimal.NewFromInt(49750), 10)
	assert.Error(t, err)
}

func TestPositionSizeRejectsZeroStopDistance(t *testing.T) {
	cfg := SizingConfig{}
	_, _, err := cfg.PositionSize(
		decimal.NewFromInt(10000), decimal.NewFromInt(50000), decimal.NewFromInt(50000), 10)
	assert.Error(t, err)
}
