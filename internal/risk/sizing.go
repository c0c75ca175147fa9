package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SizingConfig 控制按风险预算推导仓位。
type SizingConfig struct {
	RiskPercent    float64 `toml:"risk_percent"`     // 单笔最大亏损占权益比例，如 0.01
	MaxPositionPct float64 `toml:"max_position_pct"` // 单仓名义价值占权益上限（杠杆后）
	LotStep        float64 `toml:"lot_step"`         // 交易所最小数量步长
	MinQty         float64 `toml:"min_qty"`
}

func (c SizingConfig) withDefaults() SizingConfig {
	if c.RiskPercent <= 0 {
		c.RiskPercent = 0.01
	}
	if c.MaxPositionPct <= 0 {
		c.MaxPositionPct = 0.2
	}
	if c.LotStep <= 0 {
		c.LotStep = 0.001
	}
	return c
}

// PositionSize 由风险预算除以止损距离得到数量，并向下取整到
// 步长倍数。只向下取整、永不四舍五入：保证实际承担的风险
// 不超过预算。
func (c SizingConfig) PositionSize(equity, entry, stop decimal.Decimal, leverage int) (qty, notional decimal.Decimal, err error) {
	cfg := c.withDefaults()
	if equity.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("equity 必须 > 0")
	}
	stopDistance := entry.Sub(stop).Abs()
	if stopDistance.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("止损距离必须 > 0")
	}

	riskBudget := equity.Mul(decimal.NewFromFloat(cfg.RiskPercent))
	qty = riskBudget.Div(stopDistance)

	// 名义价值上限不变式：positionNotional ≤ balance × maxPositionPercent。
	maxNotional := equity.Mul(decimal.NewFromFloat(cfg.MaxPositionPct))
	if qty.Mul(entry).GreaterThan(maxNotional) {
		qty = maxNotional.Div(entry)
	}

	step := decimal.NewFromFloat(cfg.LotStep)
	qty = qty.Div(step).Floor().Mul(step)
	if cfg.MinQty > 0 && qty.LessThan(decimal.NewFromFloat(cfg.MinQty)) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("数量 %s 低于交易所最小值 %.8f", qty.String(), cfg.MinQty)
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("风险预算不足以开出最小仓位")
	}
	return qty, qty.Mul(entry), nil
}
