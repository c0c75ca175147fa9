package executor

import (
	"context"
	"fmt"
	"time"

	"helmsman/internal/config"
	"helmsman/internal/logger"
	"helmsman/internal/pkg/circuit"
	"helmsman/internal/pkg/retry"
	"helmsman/internal/position"
)

// EventKind 是执行事件类别。
type EventKind string

const (
	EventFilled          EventKind = "filled"
	EventEntryDropped    EventKind = "entry_dropped"
	EventExitDropped     EventKind = "exit_dropped"
	EventExitExhausted   EventKind = "exit_exhausted"
	EventCircuitRejected EventKind = "circuit_rejected"
	EventInvalidIntent   EventKind = "invalid_intent"
)

// Event 记录一次执行结果, 供日志与落库消费。
type Event struct {
	Kind   EventKind            `json:"kind"`
	Intent position.OrderIntent `json:"intent"`
	Error  string               `json:"error,omitempty"`
	At     time.Time            `json:"at"`
}

// Dispatcher 把订单意图送入网关。
// 出场类意图(止损替换/平仓)是幂等的, 走有界重试;
// 入场意图失败只丢弃并发事件, 绝不盲目重发——
// 重发一笔可能已部分成交的入场等于加仓。
//
// 出场重试在 Run 的后台 goroutine 上退避, 投递方 (每 symbol 的
// tick worker) 只做入队, 不会被网关故障拖住新 tick 的处理。
type Dispatcher struct {
	gateway OrderGateway
	breaker *circuit.Breaker
	policy  retry.Policy
	exits   chan position.OrderIntent
	events  chan Event
	log     *logger.Logger
}

func NewDispatcher(gw OrderGateway, cfg config.ExecutorConfig) *Dispatcher {
	cooldown := time.Duration(cfg.CircuitCooldown) * time.Second
	return &Dispatcher{
		gateway: gw,
		breaker: circuit.NewBreaker(gw.Name(), cfg.CircuitFailures, cooldown),
		policy: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseBackoff: cfg.Retry.BaseBackoff(),
			MaxBackoff:  cfg.Retry.MaxBackoff(),
		},
		exits:  make(chan position.OrderIntent, 256),
		events: make(chan Event, 256),
		log:    logger.Named("dispatcher"),
	}
}

// Events 返回执行事件流。消费方不及时时事件会被丢弃并告警,
// 事件流不允许反压到交易路径上。
func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

// Run 串行消费出场意图队列, 阻塞直到 ctx 取消。
// 单消费者是刻意的: 同一持仓的连续止损替换必须保序,
// 并发提交可能让旧止损价覆盖新止损价。
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case intent := <-d.exits:
			d.processExit(ctx, intent)
		}
	}
}

// Dispatch 提交单个意图。入场同步执行单次提交并返回成交;
// 出场入队后立即返回, 成交与耗尽结果经 Events 流上报。
func (d *Dispatcher) Dispatch(ctx context.Context, intent position.OrderIntent) (Fill, error) {
	if intent.Kind.IsExit() && !intent.ReduceOnly {
		err := fmt.Errorf("出场意图 %s 缺少 reduceOnly 标志, 拒绝提交", intent.ID)
		d.emit(EventInvalidIntent, intent, err)
		return Fill{}, err
	}

	if intent.Kind.IsExit() {
		select {
		case d.exits <- intent:
			return Fill{}, nil
		default:
			err := fmt.Errorf("出场队列已满, 丢弃 %s %s", intent.Kind, intent.ID)
			d.log.Errorf("%v", err)
			d.emit(EventExitDropped, intent, err)
			return Fill{}, err
		}
	}

	if !d.breaker.Allow() {
		err := fmt.Errorf("熔断器打开, 拒绝 %s %s", intent.Kind, intent.Symbol)
		d.emit(EventCircuitRejected, intent, err)
		return Fill{}, err
	}
	return d.submitOnce(ctx, intent)
}

// DispatchAll 按序提交一批意图, 返回首个错误但不中断后续提交:
// 一笔入场失败不应该拦住同批的止损挂单。
func (d *Dispatcher) DispatchAll(ctx context.Context, intents []position.OrderIntent) error {
	var firstErr error
	for _, intent := range intents {
		if _, err := d.Dispatch(ctx, intent); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *Dispatcher) submitOnce(ctx context.Context, intent position.OrderIntent) (Fill, error) {
	fill, err := d.gateway.Submit(ctx, intent)
	if err != nil {
		d.breaker.RecordFailure()
		d.log.Warnf("入场意图 %s %s 提交失败, 丢弃: %v", intent.Symbol, intent.ID, err)
		d.emit(EventEntryDropped, intent, err)
		return Fill{}, err
	}
	d.breaker.RecordSuccess()
	d.emit(EventFilled, intent, nil)
	return fill, nil
}

func (d *Dispatcher) processExit(ctx context.Context, intent position.OrderIntent) {
	if !d.breaker.Allow() {
		err := fmt.Errorf("熔断器打开, 拒绝 %s %s", intent.Kind, intent.Symbol)
		d.emit(EventCircuitRejected, intent, err)
		return
	}
	err := d.policy.Do(ctx, func() error {
		_, err := d.gateway.Submit(ctx, intent)
		if err != nil {
			d.breaker.RecordFailure()
			return err
		}
		d.breaker.RecordSuccess()
		return nil
	})
	if err != nil {
		d.log.Errorf("出场意图 %s %s 重试耗尽: %v", intent.Symbol, intent.ID, err)
		d.emit(EventExitExhausted, intent, err)
		return
	}
	d.emit(EventFilled, intent, nil)
}

func (d *Dispatcher) emit(kind EventKind, intent position.OrderIntent, err error) {
	ev := Event{Kind: kind, Intent: intent, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	select {
	case d.events <- ev:
	default:
		d.log.Warnf("执行事件队列已满, 丢弃 %s %s", kind, intent.ID)
	}
}
