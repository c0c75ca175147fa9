package risk

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Plan 是风险层产出的完整开仓计划。
// 所有价格与名义价值都是精确十进制，绝不使用二进制浮点——
// 复利式舍入误差直接对应真金白银的损失。
type Plan struct {
	Symbol                string          `json:"symbol"`
	Side                  string          `json:"side"` // long | short
	Leverage              int             `json:"leverage"`
	PositionSize          decimal.Decimal `json:"position_size"`
	PositionNotional      decimal.Decimal `json:"position_notional"`
	EntryPrice            decimal.Decimal `json:"entry_price"`
	StopLossPrice         decimal.Decimal `json:"stop_loss_price"`
	TakeProfitPrice       decimal.Decimal `json:"take_profit_price"`
	BreakEvenTriggerPrice decimal.Decimal `json:"break_even_trigger_price"`
	BreakEvenStopPrice    decimal.Decimal `json:"break_even_stop_price"`
	LiquidationPrice      decimal.Decimal `json:"liquidation_price"`
}

// LevelConfig 控制价格层级推导。ROI 一律以保证金收益率百分数表示
// （杠杆后的收益，见术语表），价格位移 = ROI / 杠杆 / 100。
type LevelConfig struct {
	StopLossROI       float64 `toml:"stop_loss_roi"`
	TakeProfitROI     float64 `toml:"take_profit_roi"`
	BreakEvenTrigROI  float64 `toml:"break_even_trigger_roi"`
	EntryFeeRate      float64 `toml:"entry_fee_rate"`
	ExitFeeRate       float64 `toml:"exit_fee_rate"`
	SafetyBufferPct   float64 `toml:"safety_buffer_pct"` // 叠加在费率保本 ROI 上
	MaintenanceMargin float64 `toml:"maintenance_margin_rate"`
	MinLiqBuffer      float64 `toml:"min_liquidation_buffer"` // 入场价到强平价的最小距离比例
}

func (c LevelConfig) withDefaults() LevelConfig {
	if c.StopLossROI <= 0 {
		c.StopLossROI = 5
	}
	if c.TakeProfitROI <= 0 {
		c.TakeProfitROI = 20
	}
	if c.BreakEvenTrigROI <= 0 {
		c.BreakEvenTrigROI = 15
	}
	if c.EntryFeeRate <= 0 {
		c.EntryFeeRate = 0.0004
	}
	if c.ExitFeeRate <= 0 {
		c.ExitFeeRate = 0.0004
	}
	if c.MaintenanceMargin <= 0 {
		c.MaintenanceMargin = 0.004
	}
	if c.MinLiqBuffer <= 0 {
		c.MinLiqBuffer = 0.01
	}
	return c
}

var (
	decOne     = decimal.NewFromInt(1)
	decHundred = decimal.NewFromInt(100)
)

// priceMove 返回 ROI 对应的价格位移比例：roi / leverage / 100。
func priceMove(roi float64, leverage int) decimal.Decimal {
	return decimal.NewFromFloat(roi).
		Div(decimal.NewFromInt(int64(leverage))).
		Div(decHundred)
}

// FeeAdjustedBreakEvenROI 返回覆盖双边手续费的保本 ROI（百分数）：
// (entryFee + exitFee) × leverage × 100 + safetyBuffer。
// 结果必须严格大于纯费率保本值，否则保本锁本身锁进亏损。
func (c LevelConfig) FeeAdjustedBreakEvenROI(leverage int) float64 {
	cfg := c.withDefaults()
	return (cfg.EntryFeeRate+cfg.ExitFeeRate)*float64(leverage)*100 + cfg.SafetyBufferPct
}

// EffectiveBreakEvenTriggerROI 返回触发保本锁所需的 ROI：
// 配置触发值叠加费率调整，绝不允许比纯费率保本更小。
func (c LevelConfig) EffectiveBreakEvenTriggerROI(leverage int) float64 {
	cfg := c.withDefaults()
	return cfg.BreakEvenTrigROI + (cfg.EntryFeeRate+cfg.ExitFeeRate)*float64(leverage)*100
}

// DeriveLevels 以精确十进制推导全部价格层级。
func (c LevelConfig) DeriveLevels(symbol, side string, entry decimal.Decimal, leverage int) (Plan, error) {
	cfg := c.withDefaults()
	side = strings.ToLower(strings.TrimSpace(side))
	if side != "long" && side != "short" {
		return Plan{}, fmt.Errorf("side 只能是 long 或 short: %q", side)
	}
	if entry.LessThanOrEqual(decimal.Zero) {
		return Plan{}, fmt.Errorf("entry price 必须 > 0")
	}
	if leverage <= 0 {
		return Plan{}, fmt.Errorf("leverage 必须 > 0")
	}

	stopMove := priceMove(cfg.StopLossROI, leverage)
	tpMove := priceMove(cfg.TakeProfitROI, leverage)
	beTrigMove := priceMove(cfg.EffectiveBreakEvenTriggerROI(leverage), leverage)
	beStopMove := priceMove(cfg.FeeAdjustedBreakEvenROI(leverage), leverage)

	// 逐仓近似强平价：entry × (1 ∓ (1/lev)×(1−维持保证金率))。
	liqMove := decOne.Div(decimal.NewFromInt(int64(leverage))).
		Mul(decOne.Sub(decimal.NewFromFloat(cfg.MaintenanceMargin)))

	plan := Plan{
		Symbol:     strings.ToUpper(strings.TrimSpace(symbol)),
		Side:       side,
		Leverage:   leverage,
		EntryPrice: entry,
	}
	if side == "long" {
		plan.StopLossPrice = entry.Mul(decOne.Sub(stopMove))
		plan.TakeProfitPrice = entry.Mul(decOne.Add(tpMove))
		plan.BreakEvenTriggerPrice = entry.Mul(decOne.Add(beTrigMove))
		plan.BreakEvenStopPrice = entry.Mul(decOne.Add(beStopMove))
		plan.LiquidationPrice = entry.Mul(decOne.Sub(liqMove))
	} else {
		plan.StopLossPrice = entry.Mul(decOne.Add(stopMove))
		plan.TakeProfitPrice = entry.Mul(decOne.Sub(tpMove))
		plan.BreakEvenTriggerPrice = entry.Mul(decOne.Sub(beTrigMove))
		plan.BreakEvenStopPrice = entry.Mul(decOne.Sub(beStopMove))
		plan.LiquidationPrice = entry.Mul(decOne.Add(liqMove))
	}

	// 强平缓冲不变式：入场价到强平价的距离比例不得小于配置下限。
	buffer := plan.LiquidationPrice.Sub(entry).Abs().Div(entry)
	if buffer.LessThan(decimal.NewFromFloat(cfg.MinLiqBuffer)) {
		return Plan{}, fmt.Errorf("强平缓冲不足: %s < %.4f", buffer.String(), cfg.MinLiqBuffer)
	}
	return plan, nil
}
