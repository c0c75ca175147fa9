package market

import "time"

// Candle 表示单根已解析的 K 线。
type Candle struct {
	OpenTime        int64   `json:"open_time"`
	CloseTime       int64   `json:"close_time"`
	Open            float64 `json:"open"`
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	Close           float64 `json:"close"`
	Volume          float64 `json:"volume"`
	TakerBuyVolume  float64 `json:"taker_buy_volume,omitempty"`
	TakerSellVolume float64 `json:"taker_sell_volume,omitempty"`
	Trades          int64   `json:"trades"`
}

// IsZero 判断是否为空 K 线。
func (c Candle) IsZero() bool {
	return c.OpenTime == 0 && c.Open == 0 && c.High == 0 && c.Low == 0 && c.Close == 0
}

// BookLevel 是盘口单档（价格/数量）。
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookSnapshot 表示一次已解析的盘口快照。
type BookSnapshot struct {
	Symbol    string      `json:"symbol"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// BestBid 返回买一价，若盘口为空返回 0。
func (b BookSnapshot) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk 返回卖一价，若盘口为空返回 0。
func (b BookSnapshot) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// TradePrint 表示一笔成交回报。
type TradePrint struct {
	Symbol string    `json:"symbol"`
	Side   string    `json:"side"` // "buy" | "sell"（taker 方向）
	Price  float64   `json:"price"`
	Size   float64   `json:"size"`
	Time   time.Time `json:"time"`
}

// FundingSnapshot 表示资金费率快照。
type FundingSnapshot struct {
	Symbol          string    `json:"symbol"`
	CurrentRate     float64   `json:"current_rate"`
	PredictedRate   float64   `json:"predicted_rate"`
	NextFundingTime time.Time `json:"next_funding_time"`
}
