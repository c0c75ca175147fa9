package position

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"helmsman/internal/risk"
)

// Side 是持仓方向。
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ParseSide 归一化方向字符串。
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy":
		return SideLong, nil
	case "short", "sell":
		return SideShort, nil
	default:
		return "", fmt.Errorf("无效的持仓方向: %q", raw)
	}
}

// State 是持仓生命周期状态。
// PENDING_ENTRY 仅存在到入场意图发出为止；
// OPEN 状态下必须存在关联的止损意图（不变式，而非可选项）；
// TRAILING_ACTIVE 是 OPEN 的子状态，在未实现 ROI 超过激活阈值后进入。
type State string

const (
	StatePendingEntry   State = "PENDING_ENTRY"
	StateOpen           State = "OPEN"
	StateTrailingActive State = "TRAILING_ACTIVE"
	StateClosed         State = "CLOSED"
)

// IntentKind 是订单意图类别。
type IntentKind string

const (
	IntentEntry       IntentKind = "entry"
	IntentStop        IntentKind = "stop"
	IntentTakeProfit  IntentKind = "takeProfit"
	IntentReplaceStop IntentKind = "replaceStop"
	IntentClose       IntentKind = "close"
)

// IsExit 判断意图是否属于出场类（stop/takeProfit/replaceStop/close）。
func (k IntentKind) IsExit() bool {
	switch k {
	case IntentStop, IntentTakeProfit, IntentReplaceStop, IntentClose:
		return true
	default:
		return false
	}
}

// OrderIntent 是决策核心对外的唯一输出形态。
// 出场类意图的 ReduceOnly 必须为 true——这不是默认值而是不变式，
// 缺失它是历史上唯一一次意外反向开仓的成因。
type OrderIntent struct {
	ID         string          `json:"id"`
	Kind       IntentKind      `json:"kind"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Size       decimal.Decimal `json:"size"`
	Price      decimal.Decimal `json:"price"` // 市价意图为零值
	ReduceOnly bool            `json:"reduce_only"`
	Reason     string          `json:"reason,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// newEntryIntent 构造入场意图。入场是唯一不带 ReduceOnly 的类别。
func newEntryIntent(symbol string, side Side, size, price decimal.Decimal) OrderIntent {
	return OrderIntent{
		ID:        uuid.NewString(),
		Kind:      IntentEntry,
		Symbol:    symbol,
		Side:      side,
		Size:      size,
		Price:     price,
		CreatedAt: time.Now(),
	}
}

// newExitIntent 构造出场类意图，ReduceOnly 在此处强制置位，
// 不提供任何绕过路径。
func newExitIntent(kind IntentKind, symbol string, side Side, size, price decimal.Decimal, reason string) OrderIntent {
	return OrderIntent{
		ID:         uuid.NewString(),
		Kind:       kind,
		Symbol:     symbol,
		Side:       side,
		Size:       size,
		Price:      price,
		ReduceOnly: true,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}
}

// InvariantViolation 表示检测到的不变式破坏。
// 绝不吞掉：对该 symbol 而言是致命条件，需要人工介入后才能恢复。
type InvariantViolation struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Description string    `json:"description"`
	At          time.Time `json:"at"`
}

// Position 是单个持仓的全量状态，所有价格用精确十进制。
// 它只被该 symbol 的 worker 串行访问，结构体本身不加锁。
type Position struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	State      State           `json:"state"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Size       decimal.Decimal `json:"size"`
	Leverage   int             `json:"leverage"`

	StopPrice       decimal.Decimal `json:"stop_price"`
	TakeProfitPrice decimal.Decimal `json:"take_profit_price"`
	PeakPrice       decimal.Decimal `json:"peak_price"`
	TroughPrice     decimal.Decimal `json:"trough_price"`

	BreakEvenLocked bool `json:"break_even_locked"`
	lockedTargets   map[int]bool

	Plan risk.Plan `json:"plan"`

	OpenedAt  time.Time       `json:"opened_at"`
	ClosedAt  time.Time       `json:"closed_at"`
	ExitPrice decimal.Decimal `json:"exit_price"`
	ExitKind  string          `json:"exit_kind"`
}

// NewPosition 从风险层计划构造待入场持仓。
func NewPosition(plan risk.Plan) (*Position, error) {
	side, err := ParseSide(plan.Side)
	if err != nil {
		return nil, err
	}
	if plan.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("entry price 必须 > 0")
	}
	if plan.StopLossPrice.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("止损价必须 > 0: 无止损不开仓")
	}
	return &Position{
		ID:              uuid.NewString(),
		Symbol:          plan.Symbol,
		Side:            side,
		State:           StatePendingEntry,
		EntryPrice:      plan.EntryPrice,
		Size:            plan.PositionSize,
		Leverage:        plan.Leverage,
		StopPrice:       plan.StopLossPrice,
		TakeProfitPrice: plan.TakeProfitPrice,
		PeakPrice:       plan.EntryPrice,
		TroughPrice:     plan.EntryPrice,
		lockedTargets:   make(map[int]bool),
		Plan:            plan,
		OpenedAt:        time.Now(),
	}, nil
}

// UnrealizedROI 返回保证金收益率百分数：价格位移比例 × 杠杆 × 100。
func (p *Position) UnrealizedROI(price decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.LessThanOrEqual(decimal.Zero) || price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	move := price.Sub(p.EntryPrice).Div(p.EntryPrice)
	if p.Side == SideShort {
		move = move.Neg()
	}
	return move.Mul(decimal.NewFromInt(int64(p.Leverage))).Mul(decimal.NewFromInt(100))
}

// UnrealizedPnL 返回以计价币种表示的未实现盈亏（不含手续费）。
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(p.EntryPrice)
	if p.Side == SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(p.Size)
}

// IsOpen 判断持仓是否仍在场内（OPEN 或 TRAILING_ACTIVE）。
func (p *Position) IsOpen() bool {
	return p.State == StateOpen || p.State == StateTrailingActive
}
