package model

import (
	"gorm.io/datatypes"
)

// TradeModel 是一条已平仓交易记录。
type TradeModel struct {
	ID          int64          `gorm:"column:id;primaryKey"`
	PositionID  string         `gorm:"column:position_id;uniqueIndex"`
	Symbol      string         `gorm:"column:symbol;index"`
	Side        string         `gorm:"column:side"`
	EntryPrice  float64        `gorm:"column:entry_price"`
	ExitPrice   float64        `gorm:"column:exit_price"`
	Size        float64        `gorm:"column:size"`
	Leverage    int            `gorm:"column:leverage"`
	RealizedPnL float64        `gorm:"column:realized_pnl"`
	ExitKind    string         `gorm:"column:exit_kind"`
	PlanJSON    datatypes.JSON `gorm:"column:plan_json;type:TEXT"`
	OpenedAt    int64          `gorm:"column:opened_at"`
	ClosedAt    int64          `gorm:"column:closed_at;index"`
}

func (TradeModel) TableName() string { return "trades" }

// RejectionModel 记录一次门控拒绝。静默拒绝被禁止, 全部落库。
type RejectionModel struct {
	ID         int64          `gorm:"column:id;primaryKey"`
	Symbol     string         `gorm:"column:symbol;index"`
	Reason     string         `gorm:"column:reason"`
	ScoreJSON  datatypes.JSON `gorm:"column:score_json;type:TEXT"`
	OccurredAt int64          `gorm:"column:occurred_at;index"`
}

func (RejectionModel) TableName() string { return "rejection_events" }

// ViolationModel 记录不变式破坏, 人工介入前该 symbol 停摆。
type ViolationModel struct {
	ID          int64  `gorm:"column:id;primaryKey"`
	ViolationID string `gorm:"column:violation_id;uniqueIndex"`
	Symbol      string `gorm:"column:symbol;index"`
	Description string `gorm:"column:description"`
	OccurredAt  int64  `gorm:"column:occurred_at"`
}

func (ViolationModel) TableName() string { return "invariant_violations" }

// ExecutionEventModel 记录执行边界的每次结果(成交/丢弃/熔断)。
type ExecutionEventModel struct {
	ID         int64          `gorm:"column:id;primaryKey"`
	Kind       string         `gorm:"column:kind;index"`
	IntentID   string         `gorm:"column:intent_id"`
	Symbol     string         `gorm:"column:symbol;index"`
	IntentJSON datatypes.JSON `gorm:"column:intent_json;type:TEXT"`
	Error      string         `gorm:"column:error"`
	OccurredAt int64          `gorm:"column:occurred_at;index"`
}

func (ExecutionEventModel) TableName() string { return "execution_events" }
