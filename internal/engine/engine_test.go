package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helmsman/internal/config"
	"helmsman/internal/executor"
	"helmsman/internal/gateway/replay"
	"helmsman/internal/indicator"
	"helmsman/internal/market"
	"helmsman/internal/position"
	"helmsman/internal/scoring"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Market.Symbols = []string{"BTCUSDT"}
	cfg.Market.Interval = "5m"
	cfg.Market.HTFInterval = "1h"
	cfg.Kline.MaxCached = 500
	cfg.Kline.HistoryBars = 60
	cfg.Risk.InitialBalance = 10000
	cfg.Executor = config.ExecutorConfig{
		Mode:            "paper",
		Retry:           config.RetryConfig{MaxAttempts: 2, BaseBackoffMS: 1, MaxBackoffMS: 2},
		CircuitFailures: 3,
		CircuitCooldown: 30,
	}
	return cfg
}

func makeCandles(n int, startMS, stepMS int64, base float64) []market.Candle {
	candles := make([]market.Candle, n)
	for i := range candles {
		price := base + float64(i%7)*2
		candles[i] = market.Candle{
			OpenTime:  startMS + int64(i)*stepMS,
			CloseTime: startMS + int64(i+1)*stepMS - 1,
			Open:      price,
			High:      price + 5,
			Low:       price - 5,
			Close:     price + 1,
			Volume:    100,
		}
	}
	return candles
}

func newTestEngine(t *testing.T, cfg *config.Config) (*Engine, *executor.PaperGateway, *replay.Source) {
	t.Helper()
	src := replay.New()
	src.Load("BTCUSDT", "5m", makeCandles(60, 0, 300_000, 50000))
	src.Load("BTCUSDT", "1h", makeCandles(60, 0, 3_600_000, 50000))
	gw := executor.NewPaperGateway()
	eng, err := New(Options{
		Config:     cfg,
		Source:     src,
		Dispatcher: executor.NewDispatcher(gw, cfg.Executor),
	})
	require.NoError(t, err)
	return eng, gw, src
}

// recordingJournal 记录收到的事件, 断言用。
type recordingJournal struct {
	mu         sync.Mutex
	trades     []position.Position
	rejections []scoring.RejectionEvent
	violations []position.InvariantViolation
}

func (j *recordingJournal) RecordTrade(_ context.Context, pos *position.Position) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, *pos)
	return nil
}

func (j *recordingJournal) RecordRejection(_ context.Context, ev scoring.RejectionEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rejections = append(j.rejections, ev)
	return nil
}

func (j *recordingJournal) RecordViolation(_ context.Context, v position.InvariantViolation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.violations = append(j.violations, v)
	return nil
}

func (j *recordingJournal) RecordExecution(context.Context, executor.Event) error { return nil }

func TestNewValidatesOptions(t *testing.T) {
	cfg := testConfig()
	src := replay.New()
	disp := executor.NewDispatcher(executor.NewPaperGateway(), cfg.Executor)

	_, err := New(Options{Source: src, Dispatcher: disp})
	require.Error(t, err)

	_, err = New(Options{Config: cfg, Dispatcher: disp})
	require.Error(t, err)

	_, err = New(Options{Config: cfg, Source: src})
	require.Error(t, err)

	empty := testConfig()
	empty.Market.Symbols = nil
	_, err = New(Options{Config: empty, Source: src, Dispatcher: disp})
	require.Error(t, err)
}

func TestPreheatWarmsIndicators(t *testing.T) {
	eng, _, _ := newTestEngine(t, testConfig())
	require.NoError(t, eng.preheat(context.Background()))

	cached := eng.klines.Get("BTCUSDT", "5m")
	assert.Len(t, cached, 60)

	w := eng.workers["BTCUSDT"]
	require.NotNil(t, w)
	assert.Greater(t, w.atr.Value(), 0.0)
}

func TestWorkerIgnoresUnclosedCandle(t *testing.T) {
	eng, _, _ := newTestEngine(t, testConfig())
	w := eng.workers["BTCUSDT"]

	w.handleCandle(context.Background(), market.CandleEvent{
		Symbol:   "BTCUSDT",
		Interval: "5m",
		Candle:   makeCandles(1, 0, 300_000, 50000)[0],
		Closed:   false,
	})
	assert.Empty(t, eng.klines.Get("BTCUSDT", "5m"))
}

func TestWorkerRoutesHTFCandleToTrendOnly(t *testing.T) {
	eng, _, _ := newTestEngine(t, testConfig())
	w := eng.workers["BTCUSDT"]

	w.handleCandle(context.Background(), market.CandleEvent{
		Symbol:   "BTCUSDT",
		Interval: "1h",
		Candle:   makeCandles(1, 0, 3_600_000, 50000)[0],
		Closed:   true,
	})
	assert.Empty(t, eng.klines.Get("BTCUSDT", "1h"))
	assert.Empty(t, eng.klines.Get("BTCUSDT", "5m"))
}

func TestWorkerJournalsRejection(t *testing.T) {
	cfg := testConfig()
	src := replay.New()
	journal := &recordingJournal{}
	eng, err := New(Options{
		Config:     cfg,
		Source:     src,
		Dispatcher: executor.NewDispatcher(executor.NewPaperGateway(), cfg.Executor),
		Journal:    journal,
	})
	require.NoError(t, err)

	w := eng.workers["BTCUSDT"]
	w.evaluateEntry(context.Background(), nil, decimal.NewFromInt(50000))

	require.Len(t, journal.rejections, 1)
	assert.Equal(t, "BTCUSDT", journal.rejections[0].Symbol)
	assert.NotEmpty(t, journal.rejections[0].Reason)
}

func TestWorkerOpensAndStopsOutPosition(t *testing.T) {
	cfg := testConfig()
	src := replay.New()
	gw := executor.NewPaperGateway()
	journal := &recordingJournal{}
	eng, err := New(Options{
		Config:     cfg,
		Source:     src,
		Dispatcher: executor.NewDispatcher(gw, cfg.Executor),
		Journal:    journal,
	})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go eng.dispatcher.Run(runCtx)

	w := eng.workers["BTCUSDT"]
	candidate := scoring.TradeCandidate{
		Symbol:                 "BTCUSDT",
		Direction:              indicator.Bullish,
		MeetsEntryRequirements: true,
	}
	ctx := context.Background()
	w.openPosition(ctx, candidate, decimal.NewFromInt(50000))

	require.NotNil(t, w.manager)
	pos := w.manager.Position()
	assert.Equal(t, position.SideLong, pos.Side)
	assert.Equal(t, position.StateOpen, pos.State)
	assert.True(t, pos.StopPrice.GreaterThan(decimal.Zero))
	// 入场同步成交, 初始止损/止盈经后台队列落地
	require.Eventually(t, func() bool {
		return len(gw.Fills()) == 3
	}, time.Second, 5*time.Millisecond)

	published := eng.Positions()
	require.Len(t, published, 1)
	assert.Equal(t, "BTCUSDT", published[0].Symbol)

	_, exposure, _, openCount := eng.account.Snapshot()
	assert.True(t, exposure.GreaterThan(decimal.Zero))
	assert.Equal(t, 1, openCount)

	// 跌破止损价, 持仓应被关闭并结算
	w.tickPosition(ctx, pos.StopPrice.Mul(decimal.NewFromFloat(0.99)))

	assert.Nil(t, w.manager)
	assert.Empty(t, eng.Positions())
	require.Len(t, journal.trades, 1)
	assert.Equal(t, position.StateClosed, journal.trades[0].State)

	_, exposure, _, openCount = eng.account.Snapshot()
	assert.True(t, exposure.IsZero())
	assert.Equal(t, 0, openCount)
}

func TestWorkerRespectsAccountLimits(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.Account.MaxExposurePct = 0.0001
	src := replay.New()
	gw := executor.NewPaperGateway()
	journal := &recordingJournal{}
	eng, err := New(Options{
		Config:     cfg,
		Source:     src,
		Dispatcher: executor.NewDispatcher(gw, cfg.Executor),
		Journal:    journal,
	})
	require.NoError(t, err)

	w := eng.workers["BTCUSDT"]
	candidate := scoring.TradeCandidate{
		Symbol:                 "BTCUSDT",
		Direction:              indicator.Bullish,
		MeetsEntryRequirements: true,
	}
	w.openPosition(context.Background(), candidate, decimal.NewFromInt(50000))

	assert.Nil(t, w.manager)
	assert.Empty(t, gw.Fills())
	assert.Empty(t, eng.Positions())

	// 风控阶段的丢弃同样要落拒绝事件
	require.Len(t, journal.rejections, 1)
	assert.Equal(t, "BTCUSDT", journal.rejections[0].Symbol)
	assert.Contains(t, journal.rejections[0].Reason, "账户限额")
}

func TestWorkerDropsTradeWhenEntryFails(t *testing.T) {
	cfg := testConfig()
	src := replay.New()
	gw := executor.NewPaperGateway()
	gw.FailNext(1)
	eng, err := New(Options{
		Config:     cfg,
		Source:     src,
		Dispatcher: executor.NewDispatcher(gw, cfg.Executor),
	})
	require.NoError(t, err)

	w := eng.workers["BTCUSDT"]
	candidate := scoring.TradeCandidate{
		Symbol:                 "BTCUSDT",
		Direction:              indicator.Bullish,
		MeetsEntryRequirements: true,
	}
	w.openPosition(context.Background(), candidate, decimal.NewFromInt(50000))

	// 入场失败必须整笔放弃并释放敞口
	assert.Nil(t, w.manager)
	assert.Empty(t, gw.Fills())
	_, exposure, _, openCount := eng.account.Snapshot()
	assert.True(t, exposure.IsZero())
	assert.Equal(t, 0, openCount)
}
