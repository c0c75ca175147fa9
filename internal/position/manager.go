package position

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"helmsman/internal/logger"
	"helmsman/internal/risk"
)

// ProfitTarget 是一档部分锁利里程碑：ROI 达到 TriggerROI 后，
// 把止损棘轮到保住该里程碑利润 LockFraction 份额的价位。
// 它只是又一个候选止损，同样过防回撤闸门，不是独立代码路径。
type ProfitTarget struct {
	TriggerROI   float64 `toml:"trigger_roi" yaml:"trigger_roi" json:"trigger_roi"`
	LockFraction float64 `toml:"lock_fraction" yaml:"lock_fraction" json:"lock_fraction"`
}

// ManagerConfig 汇总生命周期管理所需配置。
type ManagerConfig struct {
	Trailing      TrailingConfig `toml:"trailing" yaml:"trailing"`
	ProfitTargets []ProfitTarget `toml:"profit_targets" yaml:"profit_targets"`
	Levels        risk.LevelConfig
}

// TickResult 是一次价格处理的全部产出。
type TickResult struct {
	Intents    []OrderIntent
	Violations []InvariantViolation
	Closed     bool
}

// Manager 驱动单个持仓的状态机。每个 symbol worker 持有自己的
// Manager，tick 严格串行处理——这正是防回撤不变式成立的前提
// （currentStopPrice 不会被并发变更）。
type Manager struct {
	log     *logger.Logger
	cfg     ManagerConfig
	trailer *Trailer

	position *Position
	halted   bool
}

// NewManager 构造生命周期管理器并发出入场与初始止损意图。
// 止损意图与入场意图同批产生：OPEN 状态必须伴随止损，没有例外。
func NewManager(log *logger.Logger, cfg ManagerConfig, plan risk.Plan) (*Manager, []OrderIntent, error) {
	pos, err := NewPosition(plan)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Trailing.withDefaults().Validate(); err != nil {
		return nil, nil, fmt.Errorf("追踪配置无效: %w", err)
	}
	// 调用方持有的配置切片不参与原地排序。
	targets := make([]ProfitTarget, len(cfg.ProfitTargets))
	copy(targets, cfg.ProfitTargets)
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].TriggerROI < targets[j].TriggerROI
	})
	cfg.ProfitTargets = targets

	m := &Manager{
		log:      log,
		cfg:      cfg,
		trailer:  NewTrailer(cfg.Trailing),
		position: pos,
	}

	entry := newEntryIntent(pos.Symbol, pos.Side, pos.Size, pos.EntryPrice)
	stop := newExitIntent(IntentStop, pos.Symbol, pos.Side, pos.Size, pos.StopPrice, "initial_stop")
	tp := newExitIntent(IntentTakeProfit, pos.Symbol, pos.Side, pos.Size, pos.TakeProfitPrice, "initial_take_profit")
	return m, []OrderIntent{entry, stop, tp}, nil
}

// Position 返回受管持仓。
func (m *Manager) Position() *Position { return m.position }

// Halted 返回该持仓是否因不变式破坏而冻结。
func (m *Manager) Halted() bool { return m.halted }

// ConfirmEntry 在入场意图被接受后把状态推进到 OPEN。
func (m *Manager) ConfirmEntry() error {
	if m.position.State != StatePendingEntry {
		return fmt.Errorf("非法状态迁移: %s -> OPEN", m.position.State)
	}
	if m.position.StopPrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("OPEN 状态必须携带止损价")
	}
	m.position.State = StateOpen
	return nil
}

// OnPrice 处理一个价格 tick。出场检查先于追踪更新，
// 同一 tick 内首个命中的触发器胜出。
func (m *Manager) OnPrice(price, atr decimal.Decimal) TickResult {
	var res TickResult
	pos := m.position
	if m.halted || !pos.IsOpen() || price.LessThanOrEqual(decimal.Zero) {
		return res
	}

	// 不变式自检：场内持仓丢失止损是致命条件，冻结该持仓。
	if pos.StopPrice.LessThanOrEqual(decimal.Zero) {
		return m.violate("场内持仓缺失止损价")
	}

	// 出场触发器，先到先得。
	if priceBreachedStop(pos.Side, price, pos.StopPrice) {
		return m.close(price, "stop_hit")
	}
	if targetHit(pos.Side, price, pos.TakeProfitPrice) {
		return m.close(price, "take_profit_hit")
	}

	if shouldUpdateAnchor(pos.Side, price, m.anchor()) {
		if pos.Side == SideShort {
			pos.TroughPrice = price
		} else {
			pos.PeakPrice = price
		}
	}

	roi := pos.UnrealizedROI(price)

	// 保本锁：仅触发一次，之后的更新全部走常规追踪闸门。
	if !pos.BreakEvenLocked {
		trigger := decimal.NewFromFloat(m.cfg.Levels.EffectiveBreakEvenTriggerROI(pos.Leverage))
		if roi.GreaterThanOrEqual(trigger) {
			pos.BreakEvenLocked = true
			if intent, ok := m.applyStop(pos.Plan.BreakEvenStopPrice, "break_even_lock"); ok {
				res.Intents = append(res.Intents, intent)
			}
		}
	}

	// 部分锁利里程碑：每档只棘轮一次，候选同样过闸门。
	for i, tgt := range m.cfg.ProfitTargets {
		if pos.lockedTargets[i] {
			continue
		}
		if roi.LessThan(decimal.NewFromFloat(tgt.TriggerROI)) {
			break
		}
		pos.lockedTargets[i] = true
		candidate := m.profitLockStop(tgt)
		if intent, ok := m.applyStop(candidate, fmt.Sprintf("profit_lock_%d", i)); ok {
			res.Intents = append(res.Intents, intent)
		}
	}

	// 追踪激活与候选计算。
	if pos.State == StateOpen && roi.GreaterThanOrEqual(m.trailer.ActivationROI()) {
		pos.State = StateTrailingActive
		m.log.Infof("[%s] 追踪止损激活 roi=%s price=%s", pos.Symbol, roi.StringFixed(2), price.String())
	}
	if pos.State == StateTrailingActive {
		candidate := m.trailer.Candidate(pos, roi, atr)
		if intent, ok := m.applyStop(candidate, "trailing_adjust"); ok {
			res.Intents = append(res.Intents, intent)
		}
	}
	return res
}

// CloseManual 发出手动/紧急平仓意图。
func (m *Manager) CloseManual(price decimal.Decimal, reason string) TickResult {
	if !m.position.IsOpen() {
		return TickResult{}
	}
	if reason == "" {
		reason = "manual_close"
	}
	return m.close(price, reason)
}

// applyStop 是所有止损变更的唯一入口：候选未通过防回撤闸门
// 即静默丢弃，通过则更新状态并产出 replaceStop 意图。
func (m *Manager) applyStop(candidate decimal.Decimal, reason string) (OrderIntent, bool) {
	pos := m.position
	if !shouldReplaceStop(pos.Side, candidate, pos.StopPrice) {
		return OrderIntent{}, false
	}
	prev := pos.StopPrice
	pos.StopPrice = candidate
	m.log.Debugf("[%s] 止损上移 %s -> %s (%s)", pos.Symbol, prev.String(), candidate.String(), reason)
	return newExitIntent(IntentReplaceStop, pos.Symbol, pos.Side, pos.Size, candidate, reason), true
}

// profitLockStop 计算里程碑锁利价：entry + 该档利润 × 锁定份额。
// 短仓由符号自然镜像。
func (m *Manager) profitLockStop(tgt ProfitTarget) decimal.Decimal {
	pos := m.position
	move := decimal.NewFromFloat(tgt.TriggerROI).
		Div(decimal.NewFromInt(int64(pos.Leverage))).
		Div(decimal.NewFromInt(100))
	if pos.Side == SideShort {
		move = move.Neg()
	}
	milestone := pos.EntryPrice.Mul(decimal.NewFromInt(1).Add(move))
	profit := milestone.Sub(pos.EntryPrice)
	return pos.EntryPrice.Add(profit.Mul(decimal.NewFromFloat(tgt.LockFraction)))
}

func (m *Manager) close(price decimal.Decimal, reason string) TickResult {
	pos := m.position
	exitPrice := price
	switch reason {
	case "stop_hit":
		exitPrice = pos.StopPrice
	case "take_profit_hit":
		exitPrice = pos.TakeProfitPrice
	}
	pos.State = StateClosed
	pos.ClosedAt = time.Now()
	pos.ExitPrice = exitPrice
	pos.ExitKind = reason
	m.log.Infof("[%s] 平仓 reason=%s exit=%s pnl=%s",
		pos.Symbol, reason, exitPrice.String(), pos.UnrealizedPnL(exitPrice).StringFixed(4))
	return TickResult{
		Intents: []OrderIntent{newExitIntent(IntentClose, pos.Symbol, pos.Side, pos.Size, exitPrice, reason)},
		Closed:  true,
	}
}

func (m *Manager) violate(desc string) TickResult {
	m.halted = true
	v := InvariantViolation{
		ID:          uuid.NewString(),
		Symbol:      m.position.Symbol,
		Description: desc,
		At:          time.Now(),
	}
	m.log.Errorf("[%s] 不变式破坏，冻结持仓: %s", m.position.Symbol, desc)
	return TickResult{Violations: []InvariantViolation{v}}
}

func (m *Manager) anchor() decimal.Decimal {
	if m.position.Side == SideShort {
		return m.position.TroughPrice
	}
	return m.position.PeakPrice
}
