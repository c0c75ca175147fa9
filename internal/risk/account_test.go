package risk

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountReserveAndRelease(t *testing.T) {
	acc := NewAccount(decimal.NewFromInt(10000), AccountLimits{
		MaxConcurrentPositions: 2,
		MaxExposurePct:         0.5,
		MaxDailyDrawdownPct:    0.05,
	})

	require.NoError(t, acc.Reserve(decimal.NewFromInt(2000)))
	require.NoError(t, acc.Reserve(decimal.NewFromInt(2000)))

	// 并发持仓上限。
	err := acc.Reserve(decimal.NewFromInt(100))
	assert.Error(t, err)

	acc.Release(decimal.NewFromInt(2000), decimal.NewFromInt(50))

	// 总敞口上限：剩余 2000 + 3500 > 10050 × 0.5。
	err = acc.Reserve(decimal.NewFromInt(3500))
	assert.Error(t, err)

	require.NoError(t, acc.Reserve(decimal.NewFromInt(3000)))

	balance, exposure, pnl, count := acc.Snapshot()
	assert.True(t, balance.Equal(decimal.NewFromInt(10050)))
	assert.True(t, exposure.Equal(decimal.NewFromInt(5000)))
	assert.True(t, pnl.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 2, count)
}

func TestAccountDailyDrawdownHalt(t *testing.T) {
	acc := NewAccount(decimal.NewFromInt(10000), AccountLimits{
		MaxConcurrentPositions: 10,
		MaxExposurePct:         0.9,
		MaxDailyDrawdownPct:    0.05,
	})

	require.NoError(t, acc.Reserve(decimal.NewFromInt(1000)))
	// 当日亏损触及 5% 上限后拒绝新开仓。
	acc.Release(decimal.NewFromInt(1000), decimal.NewFromInt(-600))
	err := acc.Reserve(decimal.NewFromInt(100))
	assert.Error(t, err)
}

// 多个 symbol 并发抢开仓时不得发生丢失更新。
func TestAccountConcurrentReserve(t *testing.T) {
	acc := NewAccount(decimal.NewFromInt(10000), AccountLimits{
		MaxConcurrentPositions: 100,
		MaxExposurePct:         0.5,
		MaxDailyDrawdownPct:    0.5,
	})

	var wg sync.WaitGroup
	granted := make(chan struct{}, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if acc.Reserve(decimal.NewFromInt(500)) == nil {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	n := 0
	for range granted {
		n++
	}
	// 敞口上限 5000 / 每笔 500 → 最多放行 10 笔。
	assert.Equal(t, 10, n)
	_, exposure, _, _ := acc.Snapshot()
	assert.True(t, exposure.Equal(decimal.NewFromInt(5000)))
}
