package position

import "github.com/shopspring/decimal"

// 防回撤闸门与价格穿越判定。
// 全部比较走 shopspring/decimal，epsilon 吸收上游 float 噪声。

var stopEpsilon = decimal.NewFromFloat(1e-8)

// shouldReplaceStop 是整个系统里最重要的不变式的唯一实现：
// 候选止损仅在严格优于当前止损时才被采纳
// （多头 candidate > current，空头 candidate < current），
// 否则静默丢弃、保留现有止损。所有追踪模式和保本迁移
// 都必须经过这同一个函数，不存在第二条路径。
func shouldReplaceStop(side Side, candidate, current decimal.Decimal) bool {
	if candidate.LessThanOrEqual(decimal.Zero) {
		return false
	}
	if current.LessThanOrEqual(decimal.Zero) {
		return true
	}
	if side == SideShort {
		return candidate.Cmp(current.Sub(stopEpsilon)) < 0
	}
	return candidate.Cmp(current.Add(stopEpsilon)) > 0
}

// priceBreachedStop 判断价格是否穿越止损位。
func priceBreachedStop(side Side, price, stop decimal.Decimal) bool {
	if stop.LessThanOrEqual(decimal.Zero) || price.LessThanOrEqual(decimal.Zero) {
		return false
	}
	if side == SideShort {
		return price.GreaterThanOrEqual(stop)
	}
	return price.LessThanOrEqual(stop)
}

// targetHit 判断价格是否触达止盈目标。
func targetHit(side Side, price, target decimal.Decimal) bool {
	if target.LessThanOrEqual(decimal.Zero) || price.LessThanOrEqual(decimal.Zero) {
		return false
	}
	if side == SideShort {
		return price.LessThanOrEqual(target)
	}
	return price.GreaterThanOrEqual(target)
}

// shouldUpdateAnchor 判断价格是否刷新了追踪锚点（多头峰值/空头谷值）。
func shouldUpdateAnchor(side Side, price, anchor decimal.Decimal) bool {
	if price.LessThanOrEqual(decimal.Zero) {
		return false
	}
	if anchor.LessThanOrEqual(decimal.Zero) {
		return true
	}
	if side == SideShort {
		return price.LessThan(anchor)
	}
	return price.GreaterThan(anchor)
}

// stopFromDistance 从锚点按距离回撤出止损价：多头减、空头加。
func stopFromDistance(side Side, anchor, distance decimal.Decimal) decimal.Decimal {
	if anchor.LessThanOrEqual(decimal.Zero) || distance.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	if side == SideShort {
		return anchor.Add(distance)
	}
	return anchor.Sub(distance)
}
