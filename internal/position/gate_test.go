package position

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestShouldReplaceStopLong(t *testing.T) {
	assert.True(t, shouldReplaceStop(SideLong, d(100), d(99)), "更优候选应被采纳")
	assert.False(t, shouldReplaceStop(SideLong, d(99), d(100)), "回撤候选必须被丢弃")
	assert.False(t, shouldReplaceStop(SideLong, d(100), d(100)), "等值候选不是严格更优")
	assert.True(t, shouldReplaceStop(SideLong, d(100), decimal.Zero), "初始止损总是可设")
	assert.False(t, shouldReplaceStop(SideLong, decimal.Zero, d(100)), "零值候选无效")
}

func TestShouldReplaceStopShort(t *testing.T) {
	assert.True(t, shouldReplaceStop(SideShort, d(99), d(100)))
	assert.False(t, shouldReplaceStop(SideShort, d(100), d(99)))
	assert.False(t, shouldReplaceStop(SideShort, d(100), d(100)))
}

func TestShouldReplaceStopEpsilon(t *testing.T) {
	cur := d(100)
	// epsilon 范围内的抖动不触发更新
	assert.False(t, shouldReplaceStop(SideLong, cur.Add(decimal.NewFromFloat(1e-9)), cur))
	assert.False(t, shouldReplaceStop(SideShort, cur.Sub(decimal.NewFromFloat(1e-9)), cur))
}

func TestPriceBreachedStop(t *testing.T) {
	assert.True(t, priceBreachedStop(SideLong, d(99), d(100)))
	assert.True(t, priceBreachedStop(SideLong, d(100), d(100)))
	assert.False(t, priceBreachedStop(SideLong, d(101), d(100)))
	assert.True(t, priceBreachedStop(SideShort, d(101), d(100)))
	assert.False(t, priceBreachedStop(SideShort, d(99), d(100)))
	assert.False(t, priceBreachedStop(SideLong, d(99), decimal.Zero), "无止损时不判穿越")
}

func TestTargetHit(t *testing.T) {
	assert.True(t, targetHit(SideLong, d(101), d(100)))
	assert.False(t, targetHit(SideLong, d(99), d(100)))
	assert.True(t, targetHit(SideShort, d(99), d(100)))
}

func TestStopFromDistance(t *testing.T) {
	assert.True(t, stopFromDistance(SideLong, d(100), d(2)).Equal(d(98)))
	assert.True(t, stopFromDistance(SideShort, d(100), d(2)).Equal(d(102)))
	assert.True(t, stopFromDistance(SideLong, d(100), decimal.Zero).IsZero())
}
