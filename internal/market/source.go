package market

import (
	"context"
	"time"
)

// CandleEvent 是订阅推送的单根 K 线事件。
type CandleEvent struct {
	Symbol   string
	Interval string
	Candle   Candle
	// Closed 表示该 K 线是否已收盘；指标层只消费收盘 K 线。
	Closed bool
}

// TickEvent 是逐笔成交事件。
type TickEvent struct {
	Symbol string
	Print  TradePrint
}

// DepthEvent 是盘口快照事件。
type DepthEvent struct {
	Symbol string
	Book   BookSnapshot
}

// SubscribeOptions 控制订阅行为。
type SubscribeOptions struct {
	Buffer       int
	OnConnect    func()
	OnDisconnect func(error)
}

// SourceStats 汇总数据源运行指标。
type SourceStats struct {
	Connected    bool      `json:"connected"`
	Reconnects   int64     `json:"reconnects"`
	CandleEvents int64     `json:"candle_events"`
	TickEvents   int64     `json:"tick_events"`
	DepthEvents  int64     `json:"depth_events"`
	Dropped      int64     `json:"dropped"`
	LastEventAt  time.Time `json:"last_event_at"`
}

// Source 抽象一个行情数据源。决策核心只依赖该接口，
// 历史回放器与交易所网关均实现它。
type Source interface {
	// FetchHistory 拉取最近 limit 根已收盘 K 线。
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	// Subscribe 订阅多标的多周期 K 线。
	Subscribe(ctx context.Context, symbols, intervals []string, opts SubscribeOptions) (<-chan CandleEvent, error)
	// SubscribeTrades 订阅逐笔成交。
	SubscribeTrades(ctx context.Context, symbols []string, opts SubscribeOptions) (<-chan TickEvent, error)
	// SubscribeDepth 订阅盘口快照。
	SubscribeDepth(ctx context.Context, symbols []string, opts SubscribeOptions) (<-chan DepthEvent, error)
	// Live 标识数据是否为实时流。微结构打分只在 live 数据上生效，
	// 历史回放源必须返回 false。
	Live() bool
	Stats() SourceStats
	Close() error
}
