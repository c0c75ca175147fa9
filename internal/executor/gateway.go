// Package executor 是意图与交易所之间的 I/O 边界:
// 决策核心只产出 OrderIntent, 由本包负责提交、重试与熔断。
package executor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"helmsman/internal/position"
)

// Fill 是网关回报的成交结果。
type Fill struct {
	IntentID string          `json:"intent_id"`
	Symbol   string          `json:"symbol"`
	Kind     position.IntentKind `json:"kind"`
	Price    decimal.Decimal `json:"price"`
	Size     decimal.Decimal `json:"size"`
	At       time.Time       `json:"at"`
}

// OrderGateway 抽象订单提交端点。
// 实现必须原样尊重 ReduceOnly 标志, 不得擅自翻转。
type OrderGateway interface {
	Name() string
	Submit(ctx context.Context, intent position.OrderIntent) (Fill, error)
}
