// Package engine 把行情、指标、打分、风险与持仓生命周期
// 编排为每 symbol 一个串行 worker 的流水线。
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"helmsman/internal/config"
	"helmsman/internal/executor"
	"helmsman/internal/logger"
	"helmsman/internal/market"
	"helmsman/internal/position"
	"helmsman/internal/profile"
	"helmsman/internal/risk"
	"helmsman/internal/scheduler"
	"helmsman/internal/scoring"
)

// Journal 抽象事件落盘。store.Journal 是其生产实现。
type Journal interface {
	RecordTrade(ctx context.Context, pos *position.Position) error
	RecordRejection(ctx context.Context, ev scoring.RejectionEvent) error
	RecordViolation(ctx context.Context, v position.InvariantViolation) error
	RecordExecution(ctx context.Context, ev executor.Event) error
}

// NopJournal 丢弃全部事件, 测试与回放用。
type NopJournal struct{}

func (NopJournal) RecordTrade(context.Context, *position.Position) error         { return nil }
func (NopJournal) RecordRejection(context.Context, scoring.RejectionEvent) error { return nil }
func (NopJournal) RecordViolation(context.Context, position.InvariantViolation) error {
	return nil
}
func (NopJournal) RecordExecution(context.Context, executor.Event) error { return nil }

// FundingFetcher 由支持资金费率查询的数据源实现。
type FundingFetcher interface {
	FetchFunding(ctx context.Context, symbol string) (market.FundingSnapshot, error)
}

type Engine struct {
	cfg        *config.Config
	source     market.Source
	klines     *market.MemoryStore
	scorer     *scoring.Engine
	selector   *risk.LeverageSelector
	account    *risk.Account
	dispatcher *executor.Dispatcher
	journal    Journal
	profiles   *profile.Registry
	log        *logger.Logger

	workers map[string]*symbolWorker
	board   *positionBoard
}

type Options struct {
	Config     *config.Config
	Source     market.Source
	Dispatcher *executor.Dispatcher
	Journal    Journal
	Profiles   *profile.Registry // 可为 nil
}

func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("engine: config 不能为空")
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("engine: market source 不能为空")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("engine: dispatcher 不能为空")
	}
	journal := opts.Journal
	if journal == nil {
		journal = NopJournal{}
	}
	eng := &Engine{
		cfg:        opts.Config,
		source:     opts.Source,
		klines:     market.NewMemoryStore(opts.Config.Kline.MaxCached),
		scorer:     scoring.NewEngine(opts.Config.Scoring.ToEngine()),
		selector:   risk.NewLeverageSelector(opts.Config.Risk.Leverage),
		account:    risk.NewAccount(decimal.NewFromFloat(opts.Config.Risk.InitialBalance), opts.Config.Risk.Account),
		dispatcher: opts.Dispatcher,
		journal:    journal,
		profiles:   opts.Profiles,
		log:        logger.Named("engine"),
		workers:    make(map[string]*symbolWorker),
		board:      newPositionBoard(),
	}
	for _, sym := range opts.Config.Market.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		eng.workers[sym] = newSymbolWorker(eng, sym)
	}
	if len(eng.workers) == 0 {
		return nil, fmt.Errorf("engine: 没有可用 symbol")
	}
	return eng, nil
}

func (e *Engine) Account() *risk.Account { return e.account }

// Run 预热历史后启动全部流与 worker, 阻塞直到 ctx 取消或某个
// 环节失败。
func (e *Engine) Run(ctx context.Context) error {
	if err := e.preheat(ctx); err != nil {
		return fmt.Errorf("engine: 预热失败: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)

	for _, w := range e.workers {
		w := w
		group.Go(func() error {
			err := w.run(gctx)
			if err != nil && gctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	group.Go(func() error { return e.dispatcher.Run(gctx) })
	group.Go(func() error { return e.runCandleStream(gctx) })
	group.Go(func() error { return e.runTradeStream(gctx) })
	group.Go(func() error { return e.runDepthStream(gctx) })
	group.Go(func() error { return e.runExecutionLog(gctx) })

	if ff, ok := e.source.(FundingFetcher); ok && e.source.Live() {
		group.Go(func() error {
			e.runFundingRefresh(gctx, ff)
			return nil
		})
	}

	e.log.Infof("engine 启动 symbols=%d interval=%s htf=%s live=%v",
		len(e.workers), e.cfg.Market.Interval, e.cfg.Market.HTFInterval, e.source.Live())
	return group.Wait()
}

// preheat 拉取历史并完成指标预热, 指标未就绪前不做任何决策。
func (e *Engine) preheat(ctx context.Context) error {
	for sym, w := range e.workers {
		for _, interval := range []string{e.cfg.Market.Interval, e.cfg.Market.HTFInterval} {
			candles, err := e.source.FetchHistory(ctx, sym, interval, e.cfg.Kline.HistoryBars)
			if err != nil {
				return fmt.Errorf("%s %s: %w", sym, interval, err)
			}
			if strings.EqualFold(interval, e.cfg.Market.Interval) {
				e.klines.Set(sym, interval, candles)
				w.set.Warmup(candles)
			} else {
				for _, c := range candles {
					w.htf.Update(c)
				}
				w.rsi.SetTrendHint(w.htf.Trend())
			}
			e.log.Debugf("预热 %s %s bars=%d", sym, interval, len(candles))
		}
	}
	return nil
}

func (e *Engine) runCandleStream(ctx context.Context) error {
	intervals := []string{e.cfg.Market.Interval, e.cfg.Market.HTFInterval}
	ch, err := e.source.Subscribe(ctx, e.symbols(), intervals, market.SubscribeOptions{
		OnDisconnect: func(err error) {
			e.log.Warnf("K线流断开: %v", err)
		},
	})
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return streamClosedErr(ctx, "kline")
			}
			if w, found := e.workers[ev.Symbol]; found {
				evCopy := ev
				w.submit(workerEvent{candle: &evCopy})
			}
		}
	}
}

func (e *Engine) runTradeStream(ctx context.Context) error {
	ch, err := e.source.SubscribeTrades(ctx, e.symbols(), market.SubscribeOptions{})
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				// 回放源没有逐笔流, 静默退出。
				return nil
			}
			if w, found := e.workers[ev.Symbol]; found {
				evCopy := ev
				w.submit(workerEvent{tick: &evCopy})
			}
		}
	}
}

func (e *Engine) runDepthStream(ctx context.Context) error {
	ch, err := e.source.SubscribeDepth(ctx, e.symbols(), market.SubscribeOptions{})
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if w, found := e.workers[ev.Symbol]; found {
				evCopy := ev
				w.submit(workerEvent{depth: &evCopy})
			}
		}
	}
}

// runExecutionLog 把执行事件流落盘。
func (e *Engine) runExecutionLog(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-e.dispatcher.Events():
			if !ok {
				return nil
			}
			if err := e.journal.RecordExecution(ctx, ev); err != nil {
				e.log.Errorf("落盘执行事件失败: %v", err)
			}
		}
	}
}

// runFundingRefresh 在每个决策周期收盘后刷新资金费率快照。
func (e *Engine) runFundingRefresh(ctx context.Context, ff FundingFetcher) {
	interval, ok := scheduler.ParseIntervalDuration(e.cfg.Market.Interval)
	if !ok {
		interval = 5 * time.Minute
	}
	sched := scheduler.NewAlignedScheduler(ctx, interval, 2*time.Second)
	sched.RunImmediately = true
	sched.Start(func() {
		for sym, w := range e.workers {
			snap, err := ff.FetchFunding(ctx, sym)
			if err != nil {
				e.log.Debugf("资金费率查询失败 %s: %v", sym, err)
				continue
			}
			snapCopy := snap
			// funding 只被该 worker 串行读取, 经事件队列写入。
			w.submit(workerEvent{funding: &snapCopy})
		}
	})
}

func (e *Engine) symbols() []string {
	out := make([]string, 0, len(e.workers))
	for sym := range e.workers {
		out = append(out, sym)
	}
	return out
}

func streamClosedErr(ctx context.Context, name string) error {
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("engine: %s 流意外关闭", name)
}
