package engine

import (
	"sort"
	"sync"
	"time"

	"helmsman/internal/market"
	"helmsman/internal/position"
)

// positionBoard 保存各 worker 发布的持仓快照副本,
// 供 HTTP 层无锁争用地读取。
type positionBoard struct {
	mu    sync.RWMutex
	items map[string]position.Position
}

func newPositionBoard() *positionBoard {
	return &positionBoard{items: make(map[string]position.Position)}
}

func (b *positionBoard) publish(pos position.Position) {
	b.mu.Lock()
	b.items[pos.Symbol] = pos
	b.mu.Unlock()
}

func (b *positionBoard) clear(symbol string) {
	b.mu.Lock()
	delete(b.items, symbol)
	b.mu.Unlock()
}

func (b *positionBoard) list() []position.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]position.Position, 0, len(b.items))
	for _, p := range b.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Status 是引擎运行状态快照。
type Status struct {
	Symbols   []string           `json:"symbols"`
	Live      bool               `json:"live"`
	Balance   float64            `json:"balance"`
	Exposure  float64            `json:"exposure"`
	DailyPnL  float64            `json:"daily_pnl"`
	OpenCount int                `json:"open_count"`
	Source    market.SourceStats `json:"source"`
	At        time.Time          `json:"at"`
}

func (e *Engine) Status() Status {
	balance, exposure, dailyPnL, openCount := e.account.Snapshot()
	syms := e.symbols()
	sort.Strings(syms)
	return Status{
		Symbols:   syms,
		Live:      e.source.Live(),
		Balance:   balance.InexactFloat64(),
		Exposure:  exposure.InexactFloat64(),
		DailyPnL:  dailyPnL.InexactFloat64(),
		OpenCount: openCount,
		Source:    e.source.Stats(),
		At:        time.Now(),
	}
}

// Positions 返回当前持仓快照列表。
func (e *Engine) Positions() []position.Position {
	return e.board.list()
}
