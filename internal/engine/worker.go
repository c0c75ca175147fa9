package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"helmsman/internal/indicator"
	"helmsman/internal/logger"
	"helmsman/internal/market"
	"helmsman/internal/position"
	"helmsman/internal/scheduler"
	"helmsman/internal/scoring"
)

type workerEvent struct {
	candle  *market.CandleEvent
	tick    *market.TickEvent
	depth   *market.DepthEvent
	funding *market.FundingSnapshot
}

// symbolWorker 串行处理单个 symbol 的全部事件。
// 串行化是止损防回撤不变式的前提, worker 内部不加锁。
type symbolWorker struct {
	symbol string
	eng    *Engine
	log    *logger.Logger

	set *indicator.Set
	rsi *indicator.RSI
	atr *indicator.ATR
	htf *indicator.EMATrend

	flow    *market.FlowAccumulator
	book    *market.BookSnapshot
	funding *market.FundingSnapshot

	manager  *position.Manager
	notional decimal.Decimal

	events chan workerEvent
}

func newSymbolWorker(eng *Engine, symbol string) *symbolWorker {
	ic := eng.cfg.Indicator
	rsi := indicator.NewRSI(indicator.RSIConfig{
		Period:     ic.RSI.Period,
		Overbought: ic.RSI.Overbought,
		Oversold:   ic.RSI.Oversold,
		Divergence: indicator.DivergenceConfig{
			Lookback:    ic.Divergence.Lookback,
			MinPivotGap: ic.Divergence.MinPivotGap,
		},
	})
	atr := indicator.NewATR(indicator.ATRConfig{Period: ic.ATR.Period})
	set := indicator.NewSet(
		rsi,
		indicator.NewMACD(indicator.MACDConfig{
			Fast:   ic.MACD.Fast,
			Slow:   ic.MACD.Slow,
			Signal: ic.MACD.Signal,
		}),
		indicator.NewEMATrend(indicator.EMATrendConfig{
			Fast: ic.EMA.Fast,
			Mid:  ic.EMA.Mid,
			Slow: ic.EMA.Slow,
		}),
		indicator.NewBollinger(indicator.BollingerConfig{
			Period: ic.Bollinger.Period,
			NumDev: ic.Bollinger.NumDev,
		}),
		atr,
	)
	htf := indicator.NewEMATrend(indicator.EMATrendConfig{
		Fast: ic.EMA.Fast,
		Mid:  ic.EMA.Mid,
		Slow: ic.EMA.Slow,
	})
	interval, _ := scheduler.ParseIntervalDuration(eng.cfg.Market.Interval)
	return &symbolWorker{
		symbol: symbol,
		eng:    eng,
		log:    logger.Named("worker." + strings.ToLower(symbol)),
		set:    set,
		rsi:    rsi,
		atr:    atr,
		htf:    htf,
		flow:   market.NewFlowAccumulator(interval),
		events: make(chan workerEvent, 1024),
	}
}

func (w *symbolWorker) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-w.events:
			switch {
			case ev.candle != nil:
				w.handleCandle(ctx, *ev.candle)
			case ev.tick != nil:
				w.handleTick(ctx, *ev.tick)
			case ev.depth != nil:
				w.handleDepth(*ev.depth)
			case ev.funding != nil:
				w.funding = ev.funding
			}
		}
	}
}

// submit 非阻塞投递, 队列满时丢弃并告警, 不允许反压到流读取。
func (w *symbolWorker) submit(ev workerEvent) {
	select {
	case w.events <- ev:
	default:
		w.log.Warnf("事件队列已满, 丢弃")
	}
}

func (w *symbolWorker) handleCandle(ctx context.Context, ev market.CandleEvent) {
	if !ev.Closed {
		return
	}
	if strings.EqualFold(ev.Interval, w.eng.cfg.Market.HTFInterval) {
		w.htf.Update(ev.Candle)
		w.rsi.SetTrendHint(w.htf.Trend())
		return
	}
	if !strings.EqualFold(ev.Interval, w.eng.cfg.Market.Interval) {
		return
	}

	w.eng.klines.Put(w.symbol, ev.Interval, ev.Candle)
	readings := w.set.Update(ev.Candle)
	price := decimal.NewFromFloat(ev.Candle.Close)

	if w.manager != nil {
		w.tickPosition(ctx, price)
		return
	}
	w.evaluateEntry(ctx, readings, price)
}

func (w *symbolWorker) handleTick(ctx context.Context, ev market.TickEvent) {
	w.flow.Add(ev.Print)
	if w.manager != nil && ev.Print.Price > 0 {
		w.tickPosition(ctx, decimal.NewFromFloat(ev.Print.Price))
	}
}

func (w *symbolWorker) handleDepth(ev market.DepthEvent) {
	book := ev.Book
	w.book = &book
}

// tickPosition 把最新价送入持仓状态机并执行产出的意图。
func (w *symbolWorker) tickPosition(ctx context.Context, price decimal.Decimal) {
	atr := decimal.NewFromFloat(w.atr.Value())
	res := w.manager.OnPrice(price, atr)
	w.applyTickResult(ctx, res)
	if w.manager != nil {
		w.eng.board.publish(*w.manager.Position())
	}
}

func (w *symbolWorker) applyTickResult(ctx context.Context, res position.TickResult) {
	for _, v := range res.Violations {
		w.log.Errorf("不变式破坏: %s", v.Description)
		if err := w.eng.journal.RecordViolation(ctx, v); err != nil {
			w.log.Errorf("落盘不变式事件失败: %v", err)
		}
	}
	if len(res.Intents) > 0 {
		if err := w.eng.dispatcher.DispatchAll(ctx, res.Intents); err != nil {
			w.log.Warnf("意图提交失败: %v", err)
		}
	}
	if res.Closed {
		w.finishPosition(ctx)
	}
}

func (w *symbolWorker) finishPosition(ctx context.Context) {
	pos := w.manager.Position()
	pnl := pos.UnrealizedPnL(pos.ExitPrice)
	w.eng.account.Release(w.notional, pnl)
	if err := w.eng.journal.RecordTrade(ctx, pos); err != nil {
		w.log.Errorf("落盘交易失败: %v", err)
	}
	w.log.Infof("持仓关闭 %s exit=%s kind=%s pnl=%s",
		pos.Symbol, pos.ExitPrice, pos.ExitKind, pnl)
	w.manager = nil
	w.notional = decimal.Zero
	w.eng.board.clear(w.symbol)
}

func (w *symbolWorker) evaluateEntry(ctx context.Context, readings []indicator.Reading, price decimal.Decimal) {
	micro := scoring.MicroInputs{}
	if w.eng.source.Live() {
		micro.Book = w.book
		micro.Funding = w.funding
		if cvd, ok := market.ComputeCVD(w.eng.klines.Get(w.symbol, w.eng.cfg.Market.Interval)); ok {
			micro.CVD = &cvd
		}
	}
	score := w.eng.scorer.Score(w.symbol, readings, micro, w.eng.source.Live())
	candidate, rejection := w.eng.scorer.Gate(score, w.htf.Trend())
	if rejection != nil {
		if err := w.eng.journal.RecordRejection(ctx, *rejection); err != nil {
			w.log.Errorf("落盘拒绝事件失败: %v", err)
		}
		return
	}
	if !candidate.MeetsEntryRequirements {
		return
	}
	w.openPosition(ctx, candidate, price)
}

func (w *symbolWorker) openPosition(ctx context.Context, candidate scoring.TradeCandidate, price decimal.Decimal) {
	side := "long"
	if candidate.Direction == indicator.Bearish {
		side = "short"
	}
	leverage := w.eng.selector.Select(w.symbol, w.atr.Percent())

	plan, err := w.eng.cfg.Risk.Levels.DeriveLevels(w.symbol, side, price, leverage)
	if err != nil {
		w.log.Warnf("层级推导失败, 放弃入场: %v", err)
		w.journalRiskDrop(ctx, candidate.Score, "层级推导失败: %v", err)
		return
	}
	qty, notional, err := w.eng.cfg.Risk.Sizing.PositionSize(
		w.eng.account.Balance(), plan.EntryPrice, plan.StopLossPrice, leverage)
	if err != nil {
		w.log.Warnf("仓位推导失败, 放弃入场: %v", err)
		w.journalRiskDrop(ctx, candidate.Score, "仓位推导失败: %v", err)
		return
	}
	plan.PositionSize = qty
	plan.PositionNotional = notional

	if err := w.eng.account.Reserve(notional); err != nil {
		w.log.Infof("账户限额拒绝开仓: %v", err)
		w.journalRiskDrop(ctx, candidate.Score, "账户限额拒绝: %v", err)
		return
	}

	mgr, intents, err := position.NewManager(w.log, w.managerConfig(), plan)
	if err != nil {
		w.eng.account.Release(notional, decimal.Zero)
		w.log.Warnf("持仓构造失败: %v", err)
		return
	}

	// 入场意图失败即放弃整笔交易, 不重试也不挂出场单。
	if _, err := w.eng.dispatcher.Dispatch(ctx, intents[0]); err != nil {
		w.eng.account.Release(notional, decimal.Zero)
		return
	}
	if err := mgr.ConfirmEntry(); err != nil {
		w.eng.account.Release(notional, decimal.Zero)
		w.log.Errorf("入场确认失败: %v", err)
		return
	}
	if err := w.eng.dispatcher.DispatchAll(ctx, intents[1:]); err != nil {
		w.log.Warnf("保护单提交失败: %v", err)
	}

	w.manager = mgr
	w.notional = notional
	w.eng.board.publish(*mgr.Position())
	w.log.Infof("开仓 %s %s lev=%dx qty=%s entry=%s stop=%s tp=%s",
		w.symbol, side, leverage, qty, plan.EntryPrice, plan.StopLossPrice, plan.TakeProfitPrice)
}

// journalRiskDrop 把风控阶段丢弃的信号写入拒绝事件:
// 过了门控却没能开仓的交易同样不允许静默消失。
func (w *symbolWorker) journalRiskDrop(ctx context.Context, score scoring.CompositeScore, format string, args ...any) {
	ev := scoring.RejectionEvent{
		Symbol:     w.symbol,
		Reason:     fmt.Sprintf(format, args...),
		Score:      score,
		OccurredAt: time.Now(),
	}
	if err := w.eng.journal.RecordRejection(ctx, ev); err != nil {
		w.log.Errorf("落盘拒绝事件失败: %v", err)
	}
}

// managerConfig 优先使用热重载 profile 的追踪参数。
func (w *symbolWorker) managerConfig() position.ManagerConfig {
	cfg := position.ManagerConfig{
		Trailing:      w.eng.cfg.Position.Trailing,
		ProfitTargets: w.eng.cfg.Position.ProfitTargets,
		Levels:        w.eng.cfg.Risk.Levels,
	}
	if w.eng.profiles != nil {
		if p, ok := w.eng.profiles.ForSymbol(w.symbol); ok {
			cfg.Trailing = p.Trailing
			cfg.ProfitTargets = p.ProfitTargets
		}
	}
	return cfg
}

