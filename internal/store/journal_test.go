package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helmsman/internal/executor"
	"helmsman/internal/position"
	"helmsman/internal/scoring"
)

func tempJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func closedPosition() *position.Position {
	now := time.Now()
	return &position.Position{
		ID:         "pos-1",
		Symbol:     "BTCUSDT",
		Side:       position.SideLong,
		State:      position.StateClosed,
		EntryPrice: decimal.NewFromInt(50000),
		ExitPrice:  decimal.NewFromInt(50100),
		Size:       decimal.NewFromFloat(0.1),
		Leverage:   10,
		ExitKind:   "stop",
		OpenedAt:   now.Add(-time.Hour),
		ClosedAt:   now,
	}
}

func TestRecordTradeIdempotent(t *testing.T) {
	j := tempJournal(t)
	ctx := context.Background()

	pos := closedPosition()
	require.NoError(t, j.RecordTrade(ctx, pos))
	require.NoError(t, j.RecordTrade(ctx, pos))

	trades, err := j.ListRecentTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "BTCUSDT", trades[0].Symbol)
	assert.InDelta(t, 10.0, trades[0].RealizedPnL, 1e-9)
	assert.Equal(t, "stop", trades[0].ExitKind)
}

func TestRecordTradeRejectsOpenPosition(t *testing.T) {
	j := tempJournal(t)
	pos := closedPosition()
	pos.State = position.StateOpen
	assert.Error(t, j.RecordTrade(context.Background(), pos))
}

func TestRecordRejection(t *testing.T) {
	j := tempJournal(t)
	ctx := context.Background()

	ev := scoring.RejectionEvent{
		Symbol:     "ETHUSDT",
		Reason:     "总分未达入场阈值",
		OccurredAt: time.Now(),
	}
	require.NoError(t, j.RecordRejection(ctx, ev))

	out, err := j.ListRecentRejections(ctx, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ev.Reason, out[0].Reason)
}

func TestRecordViolationIdempotent(t *testing.T) {
	j := tempJournal(t)
	ctx := context.Background()

	v := position.InvariantViolation{
		ID:          "viol-1",
		Symbol:      "BTCUSDT",
		Description: "持仓无止损",
		At:          time.Now(),
	}
	require.NoError(t, j.RecordViolation(ctx, v))
	require.NoError(t, j.RecordViolation(ctx, v))

	out, err := j.ListViolations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestRecordExecution(t *testing.T) {
	j := tempJournal(t)
	ctx := context.Background()

	ev := executor.Event{
		Kind: executor.EventEntryDropped,
		Intent: position.OrderIntent{
			ID:     "intent-1",
			Kind:   position.IntentEntry,
			Symbol: "BTCUSDT",
			Side:   position.SideLong,
			Size:   decimal.NewFromFloat(0.1),
		},
		Error: "network down",
		At:    time.Now(),
	}
	require.NoError(t, j.RecordExecution(ctx, ev))

	out, err := j.ListRecentExecutions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, string(executor.EventEntryDropped), out[0].Kind)
	assert.Equal(t, "network down", out[0].Error)
}
