package position

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// TrailingMode 选择追踪止损算法。四种算法可互换，
// 产出的候选止损一律再经 shouldReplaceStop 闸门。
type TrailingMode string

const (
	// ModeFixedPct 固定比例：锚点价 × trail_pct 作为回撤距离。
	ModeFixedPct TrailingMode = "fixed_pct"
	// ModeATRDistance 波动单位距离：ATR × 乘数作为回撤距离。
	ModeATRDistance TrailingMode = "atr_distance"
	// ModeStaircase 阶梯式：回撤比例随未实现 ROI 跨过阈值逐级收窄，
	// 早期放宽避免过早离场，后期收紧保护利润。
	ModeStaircase TrailingMode = "staircase"
	// ModePeakPct 峰值利润比例：锁定峰值利润的固定份额。
	ModePeakPct TrailingMode = "peak_pct"
)

// StaircaseStep 是一级阶梯：ROI 达到 TriggerROI 后改用 TrailPct。
type StaircaseStep struct {
	TriggerROI float64 `toml:"trigger_roi" yaml:"trigger_roi" json:"trigger_roi"`
	TrailPct   float64 `toml:"trail_pct" yaml:"trail_pct" json:"trail_pct"`
}

// TrailingConfig 是追踪控制器的全部可配置面。
type TrailingConfig struct {
	Mode          TrailingMode    `toml:"mode" yaml:"mode"`
	ActivationROI float64         `toml:"activation_roi" yaml:"activation_roi"` // 进入 TRAILING_ACTIVE 的保证金 ROI 阈值
	TrailPct      float64         `toml:"trail_pct" yaml:"trail_pct"`      // fixed_pct 模式的回撤比例
	ATRMultiplier float64         `toml:"atr_multiplier" yaml:"atr_multiplier"` // atr_distance 模式的乘数
	Steps         []StaircaseStep `toml:"steps" yaml:"steps"`          // staircase 模式的阶梯表
	LockFraction  float64         `toml:"lock_fraction" yaml:"lock_fraction"`  // peak_pct 模式锁定的峰值利润份额
}

// Validate 在启动期快速失败，不合法配置绝不进入交易循环。
func (c TrailingConfig) Validate() error {
	switch c.Mode {
	case ModeFixedPct:
		if c.TrailPct <= 0 || c.TrailPct >= 0.25 {
			return fmt.Errorf("trail_pct 需在 (0, 0.25) 区间，当前=%.4f", c.TrailPct)
		}
	case ModeATRDistance:
		if c.ATRMultiplier <= 0 {
			return fmt.Errorf("atr_multiplier 必须 > 0")
		}
	case ModeStaircase:
		if len(c.Steps) == 0 {
			return fmt.Errorf("staircase 模式至少需要一级阶梯")
		}
		for i := 1; i < len(c.Steps); i++ {
			if c.Steps[i].TriggerROI <= c.Steps[i-1].TriggerROI {
				return fmt.Errorf("阶梯 trigger_roi 必须严格递增")
			}
			if c.Steps[i].TrailPct >= c.Steps[i-1].TrailPct {
				return fmt.Errorf("阶梯 trail_pct 必须随 ROI 递减（后期收紧）")
			}
		}
		for _, s := range c.Steps {
			if s.TrailPct <= 0 {
				return fmt.Errorf("阶梯 trail_pct 必须 > 0")
			}
		}
	case ModePeakPct:
		if c.LockFraction <= 0 || c.LockFraction >= 1 {
			return fmt.Errorf("lock_fraction 需在 (0, 1) 区间，当前=%.4f", c.LockFraction)
		}
	default:
		return fmt.Errorf("未知的追踪模式: %q", c.Mode)
	}
	if c.ActivationROI <= 0 {
		return fmt.Errorf("activation_roi 必须 > 0")
	}
	return nil
}

func (c TrailingConfig) withDefaults() TrailingConfig {
	if c.Mode == "" {
		c.Mode = ModeFixedPct
	}
	c.Mode = TrailingMode(strings.ToLower(string(c.Mode)))
	if c.Mode == ModeFixedPct && c.TrailPct <= 0 {
		c.TrailPct = 0.01
	}
	if c.Mode == ModeATRDistance && c.ATRMultiplier <= 0 {
		c.ATRMultiplier = 2.0
	}
	if c.Mode == ModePeakPct && c.LockFraction <= 0 {
		c.LockFraction = 0.5
	}
	if c.ActivationROI <= 0 {
		c.ActivationROI = 10
	}
	return c
}

// Trailer 按配置模式计算候选止损。它不做任何状态变更，
// 防回撤闸门由管理器统一执行。
type Trailer struct {
	cfg TrailingConfig
}

// NewTrailer 构造追踪控制器。
func NewTrailer(cfg TrailingConfig) *Trailer {
	return &Trailer{cfg: cfg.withDefaults()}
}

// ActivationROI 返回激活阈值。
func (t *Trailer) ActivationROI() decimal.Decimal {
	return decimal.NewFromFloat(t.cfg.ActivationROI)
}

// Candidate 基于当前锚点（多头峰值/空头谷值）计算候选止损。
// atr 仅在 atr_distance 模式下使用，非正值时该模式产出零值（不更新）。
func (t *Trailer) Candidate(pos *Position, roi, atr decimal.Decimal) decimal.Decimal {
	anchor := pos.PeakPrice
	if pos.Side == SideShort {
		anchor = pos.TroughPrice
	}
	if anchor.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	switch t.cfg.Mode {
	case ModeFixedPct:
		dist := anchor.Mul(decimal.NewFromFloat(t.cfg.TrailPct))
		return stopFromDistance(pos.Side, anchor, dist)

	case ModeATRDistance:
		if atr.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero
		}
		dist := atr.Mul(decimal.NewFromFloat(t.cfg.ATRMultiplier))
		return stopFromDistance(pos.Side, anchor, dist)

	case ModeStaircase:
		pct := t.staircasePct(roi)
		if pct <= 0 {
			return decimal.Zero
		}
		dist := anchor.Mul(decimal.NewFromFloat(pct))
		return stopFromDistance(pos.Side, anchor, dist)

	case ModePeakPct:
		// 锁定峰值利润的固定份额：entry + (anchor − entry) × fraction。
		profit := anchor.Sub(pos.EntryPrice)
		locked := profit.Mul(decimal.NewFromFloat(t.cfg.LockFraction))
		return pos.EntryPrice.Add(locked)

	default:
		return decimal.Zero
	}
}

// staircasePct 返回当前 ROI 已跨过的最高阶梯的回撤比例。
func (t *Trailer) staircasePct(roi decimal.Decimal) float64 {
	steps := make([]StaircaseStep, len(t.cfg.Steps))
	copy(steps, t.cfg.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].TriggerROI < steps[j].TriggerROI })
	pct := 0.0
	for _, s := range steps {
		if roi.GreaterThanOrEqual(decimal.NewFromFloat(s.TriggerROI)) {
			pct = s.TrailPct
		}
	}
	return pct
}
