package executor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helmsman/internal/config"
	"helmsman/internal/position"
)

func testExecutorConfig() config.ExecutorConfig {
	return config.ExecutorConfig{
		Mode: "paper",
		Retry: config.RetryConfig{
			MaxAttempts:   3,
			BaseBackoffMS: 1,
			MaxBackoffMS:  5,
		},
		CircuitFailures: 3,
		CircuitCooldown: 30,
	}
}

func entryIntent(symbol string) position.OrderIntent {
	return position.OrderIntent{
		ID:        "entry-1",
		Kind:      position.IntentEntry,
		Symbol:    symbol,
		Side:      position.SideLong,
		Size:      decimal.NewFromFloat(0.1),
		Price:     decimal.NewFromInt(50000),
		CreatedAt: time.Now(),
	}
}

func replaceStopIntent(symbol string) position.OrderIntent {
	return position.OrderIntent{
		ID:         "stop-1",
		Kind:       position.IntentReplaceStop,
		Symbol:     symbol,
		Side:       position.SideLong,
		Size:       decimal.NewFromFloat(0.1),
		Price:      decimal.NewFromInt(50100),
		ReduceOnly: true,
		Reason:     "trail",
		CreatedAt:  time.Now(),
	}
}

// startDispatcher 启动出场消费循环, 测试结束时取消。
func startDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)
}

func TestPaperGatewayFillsAtIntentPrice(t *testing.T) {
	gw := NewPaperGateway()
	fill, err := gw.Submit(context.Background(), entryIntent("BTCUSDT"))
	require.NoError(t, err)
	assert.True(t, fill.Price.Equal(decimal.NewFromInt(50000)))
	assert.Len(t, gw.Fills(), 1)
}

func TestPaperGatewayMarketIntentNeedsMark(t *testing.T) {
	gw := NewPaperGateway()
	intent := entryIntent("BTCUSDT")
	intent.Price = decimal.Zero

	_, err := gw.Submit(context.Background(), intent)
	assert.Error(t, err)

	gw.SetMark("BTCUSDT", decimal.NewFromInt(50250))
	fill, err := gw.Submit(context.Background(), intent)
	require.NoError(t, err)
	assert.True(t, fill.Price.Equal(decimal.NewFromInt(50250)))
}

func TestEntryFailureDroppedWithoutRetry(t *testing.T) {
	gw := NewPaperGateway()
	gw.FailNext(1)
	d := NewDispatcher(gw, testExecutorConfig())

	_, err := d.Dispatch(context.Background(), entryIntent("BTCUSDT"))
	require.Error(t, err)

	// 只尝试了一次: 第二次提交应当成功(注入的失败已耗尽)。
	assert.Empty(t, gw.Fills())

	ev := <-d.Events()
	assert.Equal(t, EventEntryDropped, ev.Kind)
	assert.NotEmpty(t, ev.Error)
}

func TestExitRetriesUntilSuccess(t *testing.T) {
	gw := NewPaperGateway()
	gw.FailNext(2)
	d := NewDispatcher(gw, testExecutorConfig())
	startDispatcher(t, d)

	_, err := d.Dispatch(context.Background(), replaceStopIntent("BTCUSDT"))
	require.NoError(t, err)

	select {
	case ev := <-d.Events():
		assert.Equal(t, EventFilled, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("等待出场成交事件超时")
	}
	fills := gw.Fills()
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Price.Equal(decimal.NewFromInt(50100)))
}

func TestExitExhaustedEmitsEvent(t *testing.T) {
	gw := NewPaperGateway()
	gw.FailNext(10)
	d := NewDispatcher(gw, testExecutorConfig())
	startDispatcher(t, d)

	_, err := d.Dispatch(context.Background(), replaceStopIntent("BTCUSDT"))
	require.NoError(t, err)

	select {
	case ev := <-d.Events():
		assert.Equal(t, EventExitExhausted, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("等待重试耗尽事件超时")
	}
}

func TestExitDispatchDoesNotBlockOnGatewayFailure(t *testing.T) {
	cfg := testExecutorConfig()
	cfg.Retry.BaseBackoffMS = 200
	cfg.Retry.MaxBackoffMS = 400

	gw := NewPaperGateway()
	gw.FailNext(10)
	d := NewDispatcher(gw, cfg)
	startDispatcher(t, d)

	// 网关持续失败时, 提交方不陪着退避等待: 后台队列承担重试。
	start := time.Now()
	_, err := d.Dispatch(context.Background(), replaceStopIntent("BTCUSDT"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	select {
	case ev := <-d.Events():
		assert.Equal(t, EventExitExhausted, ev.Kind)
	case <-time.After(3 * time.Second):
		t.Fatal("等待重试耗尽事件超时")
	}
}

func TestExitWithoutReduceOnlyRejected(t *testing.T) {
	gw := NewPaperGateway()
	d := NewDispatcher(gw, testExecutorConfig())

	bad := replaceStopIntent("BTCUSDT")
	bad.ReduceOnly = false

	_, err := d.Dispatch(context.Background(), bad)
	require.Error(t, err)
	assert.Empty(t, gw.Fills())

	ev := <-d.Events()
	assert.Equal(t, EventInvalidIntent, ev.Kind)
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	gw := NewPaperGateway()
	gw.FailNext(100)
	d := NewDispatcher(gw, testExecutorConfig())

	// 3 次入场失败(每次 1 attempt)触发熔断。
	for i := 0; i < 3; i++ {
		_, err := d.Dispatch(context.Background(), entryIntent("BTCUSDT"))
		require.Error(t, err)
	}

	_, err := d.Dispatch(context.Background(), entryIntent("BTCUSDT"))
	require.Error(t, err)

	// 前三个是 entry_dropped, 第四个是熔断拒绝。
	var kinds []EventKind
	for i := 0; i < 4; i++ {
		ev := <-d.Events()
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, EventCircuitRejected, kinds[3])
}

func TestDispatchAllContinuesPastEntryFailure(t *testing.T) {
	gw := NewPaperGateway()
	gw.FailNext(1)
	d := NewDispatcher(gw, testExecutorConfig())
	startDispatcher(t, d)

	intents := []position.OrderIntent{
		entryIntent("BTCUSDT"),
		replaceStopIntent("BTCUSDT"),
	}
	err := d.DispatchAll(context.Background(), intents)
	assert.Error(t, err)

	// 入场失败不拦截随后的止损挂单。
	require.Eventually(t, func() bool {
		return len(gw.Fills()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, position.IntentReplaceStop, gw.Fills()[0].Kind)
}
