package replay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helmsman/internal/market"
)

func sampleCandles(n int) []market.Candle {
	out := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, market.Candle{
			OpenTime: int64(i+1) * 300_000,
			Open:     100, High: 101, Low: 99, Close: 100.5, Volume: 10,
		})
	}
	return out
}

func TestReplayIsNotLive(t *testing.T) {
	assert.False(t, New().Live())
}

func TestFetchHistoryTail(t *testing.T) {
	s := New()
	s.Load("btcusdt", "5m", sampleCandles(10))

	got, err := s.FetchHistory(context.Background(), "BTCUSDT", "5m", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(8*300_000), got[0].OpenTime)

	_, err = s.FetchHistory(context.Background(), "ETHUSDT", "5m", 3)
	assert.Error(t, err)
}

func TestSubscribeReplaysAllClosed(t *testing.T) {
	s := New()
	s.Load("BTCUSDT", "5m", sampleCandles(5))

	ch, err := s.Subscribe(context.Background(), []string{"BTCUSDT"}, []string{"5m"}, market.SubscribeOptions{})
	require.NoError(t, err)

	var events []market.CandleEvent
	for ev := range ch {
		events = append(events, ev)
	}
	require.Len(t, events, 5)
	for _, ev := range events {
		assert.True(t, ev.Closed)
		assert.Equal(t, "BTCUSDT", ev.Symbol)
	}
}

func TestTradeAndDepthChannelsClosed(t *testing.T) {
	s := New()
	trades, err := s.SubscribeTrades(context.Background(), []string{"BTCUSDT"}, market.SubscribeOptions{})
	require.NoError(t, err)
	_, open := <-trades
	assert.False(t, open)

	depth, err := s.SubscribeDepth(context.Background(), []string{"BTCUSDT"}, market.SubscribeOptions{})
	require.NoError(t, err)
	_, open = <-depth
	assert.False(t, open)
}
