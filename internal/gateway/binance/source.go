// Package binance 基于 go-binance SDK 实现 market.Source,
// 盘口快照走原生 websocket 组合流。
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"helmsman/internal/logger"
	"helmsman/internal/market"
	symbolpkg "helmsman/internal/pkg/symbol"
	"helmsman/internal/scheduler"
)

const maxHistoryLimit = 1500

type Source struct {
	cfg     Config
	client  *futures.Client
	limiter *rate.Limiter

	mu           sync.Mutex
	candleCancel context.CancelFunc
	tradeCancel  context.CancelFunc
	depthCancel  context.CancelFunc

	statsMu sync.Mutex
	stats   market.SourceStats
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	if final.ProxyEnabled {
		wsProxy := final.WSProxyURL
		if wsProxy == "" {
			wsProxy = final.RESTProxyURL
		}
		if wsProxy != "" {
			futures.SetWsProxyUrl(wsProxy)
		}
	}
	return &Source{
		cfg:     final,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(final.RatePerSec), int(final.RatePerSec)+1),
	}, nil
}

// Live 标识实时数据源; 微结构打分依赖该标记。
func (s *Source) Live() bool { return true }

func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	cleanSymbol := symbolpkg.Normalize(symbol)
	if cleanSymbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	kls, err := s.client.NewKlinesService().Symbol(cleanSymbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		volume := parseFloat(kl.Volume)
		takerBuy := parseFloat(kl.TakerBuyBaseAssetVolume)
		out = append(out, market.Candle{
			OpenTime:        kl.OpenTime,
			CloseTime:       kl.CloseTime,
			Open:            parseFloat(kl.Open),
			High:            parseFloat(kl.High),
			Low:             parseFloat(kl.Low),
			Close:           parseFloat(kl.Close),
			Volume:          volume,
			TakerBuyVolume:  takerBuy,
			TakerSellVolume: volume - takerBuy,
			Trades:          kl.TradeNum,
		})
	}
	if dur, ok := scheduler.ParseIntervalDuration(interval); ok {
		out = scheduler.DropUnclosedKline(out, dur)
	}
	return out, nil
}

func (s *Source) Subscribe(ctx context.Context, symbols, intervals []string, opts market.SubscribeOptions) (<-chan market.CandleEvent, error) {
	mapping := buildSymbolIntervals(symbolpkg.NormalizeList(symbols), intervals)
	if len(mapping) == 0 {
		return nil, fmt.Errorf("no valid symbols or intervals for subscription")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 512
	}
	out := make(chan market.CandleEvent, buffer)
	subCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.candleCancel != nil {
		s.candleCancel()
	}
	s.candleCancel = cancel
	s.mu.Unlock()

	go func() {
		defer close(out)
		s.runKlineLoop(subCtx, mapping, out, opts)
	}()
	return out, nil
}

func (s *Source) SubscribeTrades(ctx context.Context, symbols []string, opts market.SubscribeOptions) (<-chan market.TickEvent, error) {
	cleanSymbols := symbolpkg.NormalizeList(symbols)
	if len(cleanSymbols) == 0 {
		return nil, fmt.Errorf("symbols are required for trade subscription")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	out := make(chan market.TickEvent, buffer)
	subCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.tradeCancel != nil {
		s.tradeCancel()
	}
	s.tradeCancel = cancel
	s.mu.Unlock()

	go func() {
		defer close(out)
		s.runTradeLoop(subCtx, cleanSymbols, out, opts)
	}()
	return out, nil
}

func (s *Source) runKlineLoop(ctx context.Context, mapping map[string][]string, out chan<- market.CandleEvent, opts market.SubscribeOptions) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		var errMu sync.Mutex
		var lastErr error
		handler := func(event *futures.WsKlineEvent) {
			ce, ok := convertKlineEvent(event)
			if !ok {
				return
			}
			select {
			case <-ctx.Done():
				return
			case out <- ce:
				s.recordEvent(func(st *market.SourceStats) { st.CandleEvents++ })
			default:
				s.recordEvent(func(st *market.SourceStats) { st.Dropped++ })
				logger.Warnf("[binance] kline channel full, drop %s %s", ce.Symbol, ce.Interval)
			}
		}
		errHandler := func(err error) {
			if err == nil {
				return
			}
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}
		doneC, stopC, err := futures.WsCombinedKlineServeMultiInterval(mapping, handler, errHandler)
		if err != nil {
			s.recordDisconnect()
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = time.Second
		s.recordConnect()
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}
		close(stopC)
		errMu.Lock()
		errCopy := lastErr
		errMu.Unlock()
		s.recordDisconnect()
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(errCopy)
		}
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (s *Source) runTradeLoop(ctx context.Context, symbols []string, out chan<- market.TickEvent, opts market.SubscribeOptions) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		var errMu sync.Mutex
		var lastErr error
		handler := func(event *futures.WsAggTradeEvent) {
			te, ok := convertAggTradeEvent(event)
			if !ok {
				return
			}
			select {
			case <-ctx.Done():
				return
			case out <- te:
				s.recordEvent(func(st *market.SourceStats) { st.TickEvents++ })
			default:
				s.recordEvent(func(st *market.SourceStats) { st.Dropped++ })
				logger.Warnf("[binance] aggTrade channel full, drop %s", te.Symbol)
			}
		}
		errHandler := func(err error) {
			if err == nil {
				return
			}
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}
		doneC, stopC, err := futures.WsCombinedAggTradeServe(symbols, handler, errHandler)
		if err != nil {
			s.recordDisconnect()
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = time.Second
		s.recordConnect()
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}
		close(stopC)
		errMu.Lock()
		errCopy := lastErr
		errMu.Unlock()
		s.recordDisconnect()
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(errCopy)
		}
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.candleCancel != nil {
		s.candleCancel()
		s.candleCancel = nil
	}
	if s.tradeCancel != nil {
		s.tradeCancel()
		s.tradeCancel = nil
	}
	if s.depthCancel != nil {
		s.depthCancel()
		s.depthCancel = nil
	}
	return nil
}

func (s *Source) recordEvent(apply func(*market.SourceStats)) {
	s.statsMu.Lock()
	apply(&s.stats)
	s.stats.LastEventAt = time.Now()
	s.statsMu.Unlock()
}

func (s *Source) recordConnect() {
	s.statsMu.Lock()
	s.stats.Connected = true
	s.statsMu.Unlock()
}

func (s *Source) recordDisconnect() {
	s.statsMu.Lock()
	s.stats.Connected = false
	s.stats.Reconnects++
	s.statsMu.Unlock()
}

func buildSymbolIntervals(symbols, intervals []string) map[string][]string {
	out := make(map[string][]string)
	for _, sym := range symbols {
		upper := strings.ToUpper(strings.TrimSpace(sym))
		if upper == "" {
			continue
		}
		for _, iv := range intervals {
			interval := strings.ToLower(strings.TrimSpace(iv))
			if interval == "" {
				continue
			}
			out[upper] = appendUnique(out[upper], interval)
		}
	}
	return out
}

func appendUnique(target []string, val string) []string {
	for _, existing := range target {
		if existing == val {
			return target
		}
	}
	return append(target, val)
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

func convertKlineEvent(ev *futures.WsKlineEvent) (market.CandleEvent, bool) {
	if ev == nil {
		return market.CandleEvent{}, false
	}
	volume := parseFloat(ev.Kline.Volume)
	takerBuy := parseFloat(ev.Kline.ActiveBuyVolume)
	c := market.Candle{
		OpenTime:        ev.Kline.StartTime,
		CloseTime:       ev.Kline.EndTime,
		Open:            parseFloat(ev.Kline.Open),
		High:            parseFloat(ev.Kline.High),
		Low:             parseFloat(ev.Kline.Low),
		Close:           parseFloat(ev.Kline.Close),
		Volume:          volume,
		TakerBuyVolume:  takerBuy,
		TakerSellVolume: volume - takerBuy,
		Trades:          ev.Kline.TradeNum,
	}
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	interval := strings.ToLower(strings.TrimSpace(ev.Kline.Interval))
	if symbol == "" || interval == "" {
		return market.CandleEvent{}, false
	}
	return market.CandleEvent{
		Symbol:   symbol,
		Interval: interval,
		Candle:   c,
		Closed:   ev.Kline.IsFinal,
	}, true
}

func convertAggTradeEvent(ev *futures.WsAggTradeEvent) (market.TickEvent, bool) {
	if ev == nil {
		return market.TickEvent{}, false
	}
	price := parseFloat(ev.Price)
	if price <= 0 {
		return market.TickEvent{}, false
	}
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if symbol == "" {
		return market.TickEvent{}, false
	}
	// Maker=true 表示买方挂单, taker 方向为卖出。
	side := "buy"
	if ev.Maker {
		side = "sell"
	}
	return market.TickEvent{
		Symbol: symbol,
		Print: market.TradePrint{
			Symbol: symbol,
			Side:   side,
			Price:  price,
			Size:   parseFloat(ev.Quantity),
			Time:   time.UnixMilli(ev.TradeTime),
		},
	}, true
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
