package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"helmsman/internal/market"
	symbolpkg "helmsman/internal/pkg/symbol"
)

// FetchFunding 获取最新资金费率快照(0.0001 即 0.01%)。
func (s *Source) FetchFunding(ctx context.Context, sym string) (market.FundingSnapshot, error) {
	if s == nil || s.client == nil {
		return market.FundingSnapshot{}, fmt.Errorf("binance source not initialized")
	}
	cleanSymbol := symbolpkg.Normalize(sym)
	if cleanSymbol == "" {
		return market.FundingSnapshot{}, fmt.Errorf("invalid symbol: %s", sym)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return market.FundingSnapshot{}, err
	}
	res, err := s.client.NewPremiumIndexService().Symbol(cleanSymbol).Do(ctx)
	if err != nil {
		return market.FundingSnapshot{}, err
	}
	for _, entry := range res {
		if entry == nil {
			continue
		}
		if strings.EqualFold(entry.Symbol, cleanSymbol) {
			return market.FundingSnapshot{
				Symbol:          cleanSymbol,
				CurrentRate:     parseFloat(entry.LastFundingRate),
				NextFundingTime: time.UnixMilli(entry.NextFundingTime),
			}, nil
		}
	}
	return market.FundingSnapshot{}, fmt.Errorf("funding rate not available for %s", sym)
}
