package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"helmsman/internal/engine"
	"helmsman/internal/position"
	"helmsman/internal/store/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	status    engine.Status
	positions []position.Position
}

func (s *stubEngine) Status() engine.Status          { return s.status }
func (s *stubEngine) Positions() []position.Position { return s.positions }

type stubJournal struct {
	trades []model.TradeModel
	err    error
}

func (s *stubJournal) ListRecentTrades(context.Context, int) ([]model.TradeModel, error) {
	return s.trades, s.err
}

func (s *stubJournal) ListRecentRejections(context.Context, int) ([]model.RejectionModel, error) {
	return nil, s.err
}

func (s *stubJournal) ListViolations(context.Context, int) ([]model.ViolationModel, error) {
	return nil, s.err
}

func (s *stubJournal) ListRecentExecutions(context.Context, int) ([]model.ExecutionEventModel, error) {
	return nil, s.err
}

func newTestServer(t *testing.T, eng StatusSource, journal JournalReader) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{Addr: ":0", Engine: eng, Journal: journal})
	require.NoError(t, err)
	return srv
}

func doGet(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerRequiresEngine(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	require.Error(t, err)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &stubEngine{}, nil)
	rec := doGet(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	eng := &stubEngine{status: engine.Status{
		Symbols:   []string{"BTCUSDT", "ETHUSDT"},
		Live:      true,
		Balance:   10000,
		OpenCount: 1,
		At:        time.Now(),
	}}
	srv := newTestServer(t, eng, nil)

	rec := doGet(t, srv, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got engine.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, got.Symbols)
	assert.True(t, got.Live)
	assert.Equal(t, 1, got.OpenCount)
}

func TestPositionsEndpoint(t *testing.T) {
	eng := &stubEngine{positions: []position.Position{{
		ID:         "pos-1",
		Symbol:     "BTCUSDT",
		Side:       position.SideLong,
		State:      position.StateOpen,
		EntryPrice: decimal.NewFromInt(50000),
		Size:       decimal.NewFromFloat(0.1),
		Leverage:   10,
	}}}
	srv := newTestServer(t, eng, nil)

	rec := doGet(t, srv, "/api/positions")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Count     int                 `json:"count"`
		Positions []position.Position `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 1, got.Count)
	assert.Equal(t, "BTCUSDT", got.Positions[0].Symbol)
	assert.Equal(t, position.SideLong, got.Positions[0].Side)
}

func TestTradesEndpoint(t *testing.T) {
	journal := &stubJournal{trades: []model.TradeModel{
		{PositionID: "pos-1", Symbol: "BTCUSDT", Side: "long", ExitKind: "stop"},
	}}
	srv := newTestServer(t, &stubEngine{}, journal)

	rec := doGet(t, srv, "/api/trades?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Count  int                `json:"count"`
		Trades []model.TradeModel `json:"trades"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 1, got.Count)
	assert.Equal(t, "pos-1", got.Trades[0].PositionID)
}

func TestJournalRoutesAbsentWithoutJournal(t *testing.T) {
	srv := newTestServer(t, &stubEngine{}, nil)
	rec := doGet(t, srv, "/api/trades")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
