package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// AccountLimits 是账户级风控上限。
type AccountLimits struct {
	MaxConcurrentPositions int     `toml:"max_concurrent_positions"`
	MaxExposurePct         float64 `toml:"max_exposure_pct"`  // 总名义价值占权益上限
	MaxDailyDrawdownPct    float64 `toml:"max_daily_drawdown_pct"`
}

func (l AccountLimits) withDefaults() AccountLimits {
	if l.MaxConcurrentPositions <= 0 {
		l.MaxConcurrentPositions = 5
	}
	if l.MaxExposurePct <= 0 {
		l.MaxExposurePct = 0.6
	}
	if l.MaxDailyDrawdownPct <= 0 {
		l.MaxDailyDrawdownPct = 0.05
	}
	return l
}

// Account 持有账户级共享状态：总敞口、当日回撤、持仓数。
// 多个 symbol worker 并发开仓时，这里是唯一的变更入口，
// 入场/出场都经过同一把锁，避免丢失更新。
type Account struct {
	limits AccountLimits

	mu        sync.Mutex
	balance   decimal.Decimal
	exposure  decimal.Decimal
	openCount int
	dailyPnL  decimal.Decimal
	dayStart  time.Time
}

// NewAccount 构造账户状态。
func NewAccount(balance decimal.Decimal, limits AccountLimits) *Account {
	return &Account{
		limits:   limits.withDefaults(),
		balance:  balance,
		dayStart: time.Now().UTC().Truncate(24 * time.Hour),
	}
}

// Balance 返回当前权益。
func (a *Account) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Snapshot 返回只读汇总。
func (a *Account) Snapshot() (balance, exposure, dailyPnL decimal.Decimal, openCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance, a.exposure, a.dailyPnL, a.openCount
}

// Reserve 在开仓前原子地校验并占用敞口。
// 任一上限触顶即拒绝，调用方应把原因记入拒绝事件。
func (a *Account) Reserve(notional decimal.Decimal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollDayLocked()

	if a.openCount >= a.limits.MaxConcurrentPositions {
		return fmt.Errorf("并发持仓已达上限 %d", a.limits.MaxConcurrentPositions)
	}
	maxExposure := a.balance.Mul(decimal.NewFromFloat(a.limits.MaxExposurePct))
	if a.exposure.Add(notional).GreaterThan(maxExposure) {
		return fmt.Errorf("总敞口将超限: %s + %s > %s",
			a.exposure.StringFixed(2), notional.StringFixed(2), maxExposure.StringFixed(2))
	}
	ddLimit := a.balance.Mul(decimal.NewFromFloat(a.limits.MaxDailyDrawdownPct)).Neg()
	if a.dailyPnL.LessThanOrEqual(ddLimit) {
		return fmt.Errorf("当日回撤已达上限 %.2f%%", a.limits.MaxDailyDrawdownPct*100)
	}

	a.exposure = a.exposure.Add(notional)
	a.openCount++
	return nil
}

// Release 在平仓后释放敞口并入账已实现盈亏。
func (a *Account) Release(notional, realizedPnL decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollDayLocked()
	a.exposure = a.exposure.Sub(notional)
	if a.exposure.LessThan(decimal.Zero) {
		a.exposure = decimal.Zero
	}
	if a.openCount > 0 {
		a.openCount--
	}
	a.balance = a.balance.Add(realizedPnL)
	a.dailyPnL = a.dailyPnL.Add(realizedPnL)
}

func (a *Account) rollDayLocked() {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if today.After(a.dayStart) {
		a.dayStart = today
		a.dailyPnL = decimal.Zero
	}
}
