package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"helmsman/internal/logger"
	"helmsman/internal/position"
)

// PaperGateway 在内存里模拟成交, 用于 paper 模式与回放。
// 限价意图按意图价成交, 市价意图按最近一次 SetMark 的标记价成交。
type PaperGateway struct {
	mu       sync.Mutex
	marks    map[string]decimal.Decimal
	fills    []Fill
	failNext int
	log      *logger.Logger
}

func NewPaperGateway() *PaperGateway {
	return &PaperGateway{
		marks: make(map[string]decimal.Decimal),
		log:   logger.Named("paper-gateway"),
	}
}

func (g *PaperGateway) Name() string { return "paper" }

// SetMark 更新某 symbol 的标记价, 供零价(市价)意图成交用。
func (g *PaperGateway) SetMark(symbol string, price decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.marks[symbol] = price
}

// FailNext 使接下来 n 次 Submit 返回错误, 用于演练重试与熔断路径。
func (g *PaperGateway) FailNext(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = n
}

// Fills 返回已成交记录的副本。
func (g *PaperGateway) Fills() []Fill {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Fill, len(g.fills))
	copy(out, g.fills)
	return out
}

func (g *PaperGateway) Submit(ctx context.Context, intent position.OrderIntent) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failNext > 0 {
		g.failNext--
		return Fill{}, fmt.Errorf("模拟网关注入失败 (剩余 %d 次)", g.failNext)
	}

	price := intent.Price
	if price.IsZero() {
		mark, ok := g.marks[intent.Symbol]
		if !ok {
			return Fill{}, fmt.Errorf("市价意图缺少 %s 的标记价", intent.Symbol)
		}
		price = mark
	}

	fill := Fill{
		IntentID: intent.ID,
		Symbol:   intent.Symbol,
		Kind:     intent.Kind,
		Price:    price,
		Size:     intent.Size,
		At:       time.Now(),
	}
	g.fills = append(g.fills, fill)
	g.log.Debugf("%s %s %s@%s reduceOnly=%v",
		intent.Kind, intent.Symbol, intent.Size, price, intent.ReduceOnly)
	return fill, nil
}
