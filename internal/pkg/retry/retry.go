// Package retry 提供一个显式的有界重试策略:
// 最大尝试次数 + 指数退避, 由调用方决定哪些操作是幂等可重试的。
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy 描述一次有界重试: 最多 MaxAttempts 次,
// 退避从 BaseBackoff 起每次翻倍, 封顶 MaxBackoff。
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseBackoff: 200 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = 200 * time.Millisecond
	}
	if p.MaxBackoff < p.BaseBackoff {
		p.MaxBackoff = p.BaseBackoff
	}
	return p
}

// Do 执行 fn 直到成功或尝试次数耗尽。
// ctx 取消会立即中断等待并返回 ctx.Err()。
func (p Policy) Do(ctx context.Context, fn func() error) error {
	p = p.normalized()

	var lastErr error
	backoff := p.BaseBackoff
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return fmt.Errorf("重试 %d 次后仍失败: %w", p.MaxAttempts, lastErr)
}
