package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"helmsman/internal/logger"
	"helmsman/internal/market"
	symbolpkg "helmsman/internal/pkg/symbol"
)

// SubscribeDepth 订阅合并部分盘口流。
// go-binance 的盘口接口是单 symbol 的, 这里直接走组合流:
// wss://fstream.binance.com/stream?streams=btcusdt@depth20@250ms/...
func (s *Source) SubscribeDepth(ctx context.Context, symbols []string, opts market.SubscribeOptions) (<-chan market.DepthEvent, error) {
	cleanSymbols := symbolpkg.NormalizeList(symbols)
	if len(cleanSymbols) == 0 {
		return nil, fmt.Errorf("symbols are required for depth subscription")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	out := make(chan market.DepthEvent, buffer)
	subCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.depthCancel != nil {
		s.depthCancel()
	}
	s.depthCancel = cancel
	s.mu.Unlock()

	endpoint := s.depthEndpoint(cleanSymbols)
	go func() {
		defer close(out)
		s.runDepthLoop(subCtx, endpoint, out, opts)
	}()
	return out, nil
}

func (s *Source) depthEndpoint(symbols []string) string {
	streams := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		streams = append(streams, fmt.Sprintf("%s@depth%d@%s",
			strings.ToLower(sym), s.cfg.DepthLevels, s.cfg.DepthInterval))
	}
	return strings.TrimRight(s.cfg.WSBaseURL, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

func (s *Source) runDepthLoop(ctx context.Context, endpoint string, out chan<- market.DepthEvent, opts market.SubscribeOptions) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
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

		// 读循环被 ctx 取消时通过关闭连接解除阻塞。
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-done:
			}
		}()

		readErr := s.readDepthMessages(ctx, conn, out)
		close(done)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		s.recordDisconnect()
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(readErr)
		}
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (s *Source) readDepthMessages(ctx context.Context, conn *websocket.Conn, out chan<- market.DepthEvent) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, ok := parseDepthMessage(msg)
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- ev:
			s.recordEvent(func(st *market.SourceStats) { st.DepthEvents++ })
		default:
			s.recordEvent(func(st *market.SourceStats) { st.Dropped++ })
			logger.Warnf("[binance] depth channel full, drop %s", ev.Symbol)
		}
	}
}

func parseDepthMessage(msg []byte) (market.DepthEvent, bool) {
	data := gjson.GetBytes(msg, "data")
	if !data.Exists() {
		return market.DepthEvent{}, false
	}
	symbol := strings.ToUpper(data.Get("s").String())
	if symbol == "" {
		return market.DepthEvent{}, false
	}
	book := market.BookSnapshot{
		Symbol:    symbol,
		Bids:      parseBookLevels(data.Get("b")),
		Asks:      parseBookLevels(data.Get("a")),
		UpdatedAt: time.UnixMilli(data.Get("E").Int()),
	}
	if len(book.Bids) == 0 && len(book.Asks) == 0 {
		return market.DepthEvent{}, false
	}
	return market.DepthEvent{Symbol: symbol, Book: book}, true
}

func parseBookLevels(levels gjson.Result) []market.BookLevel {
	if !levels.IsArray() {
		return nil
	}
	raw := levels.Array()
	out := make([]market.BookLevel, 0, len(raw))
	for _, lv := range raw {
		pair := lv.Array()
		if len(pair) < 2 {
			continue
		}
		price := pair[0].Float()
		size := pair[1].Float()
		if price <= 0 || size < 0 {
			continue
		}
		out = append(out, market.BookLevel{Price: price, Size: size})
	}
	return out
}
