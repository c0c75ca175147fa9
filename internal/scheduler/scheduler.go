package scheduler

import (
	"context"
	"time"

	"helmsman/internal/logger"
)

// AlignedScheduler 在每个 K 线周期收盘后 Offset 时刻执行任务,
// 用于 REST 回补等不依赖 websocket 推送的周期性工作。
type AlignedScheduler struct {
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewAlignedScheduler(ctx context.Context, interval, offset time.Duration) *AlignedScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &AlignedScheduler{
		Interval: interval,
		Offset:   offset,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start 阻塞运行直到 ctx 取消。调用方自行决定是否放入 goroutine。
func (s *AlignedScheduler) Start(task func()) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("AlignedScheduler: invalid interval=%s, exit", s.Interval)
		return
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("AlignedScheduler: started interval=%s offset=%s at=%s",
		s.Interval, s.Offset, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		task()
	}

	for {
		now := s.nowFn().UTC()
		nextClose, wakeAt, wait := s.nextTimes(now)
		logger.Debugf("AlignedScheduler: 下一收盘=%s 将在=%s 执行 (in %s)",
			nextClose.Format(time.RFC3339), wakeAt.Format(time.RFC3339), wait.Truncate(time.Second))

		if wait <= 0 {
			task()
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			logger.Infof("AlignedScheduler: ctx done, exit")
			return
		case <-timer.C:
		}
		task()
	}
}

func (s *AlignedScheduler) nextTimes(now time.Time) (nextClose, wakeAt time.Time, wait time.Duration) {
	now = now.UTC()
	nextClose = now.Truncate(s.Interval).Add(s.Interval)
	wakeAt = nextClose.Add(s.Offset)
	wait = wakeAt.Sub(now)
	return nextClose, wakeAt, wait
}
