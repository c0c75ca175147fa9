package indicator

// DivergenceConfig 控制摆动点扫描窗口。
// 窗口长度与枢轴最小间隔是可调参数，不从公式推导。
type DivergenceConfig struct {
	Lookback    int // 最近 N 根内扫描枢轴
	MinPivotGap int // 两个枢轴之间的最少间隔（bar 数）
}

func (c DivergenceConfig) withDefaults() DivergenceConfig {
	if c.Lookback <= 0 {
		c.Lookback = 40
	}
	if c.MinPivotGap <= 0 {
		c.MinPivotGap = 3
	}
	return c
}

type pivot struct {
	idx int
	val float64
}

// findPivots 扫描局部极值：严格高于（或低于）左右各两个邻居。
// 返回按时间升序的枢轴，末尾两根不可能成为枢轴（缺右邻居）。
func findPivots(series []float64, cfg DivergenceConfig, low bool) []pivot {
	n := len(series)
	if n < 5 {
		return nil
	}
	start := n - cfg.Lookback
	if start < 2 {
		start = 2
	}
	var out []pivot
	for i := start; i <= n-3; i++ {
		v := series[i]
		ok := false
		if low {
			ok = v < series[i-1] && v < series[i-2] && v < series[i+1] && v < series[i+2]
		} else {
			ok = v > series[i-1] && v > series[i-2] && v > series[i+1] && v > series[i+2]
		}
		if !ok {
			continue
		}
		if len(out) > 0 && i-out[len(out)-1].idx < cfg.MinPivotGap {
			// 间隔不足时保留更极端的那个
			prev := out[len(out)-1]
			if (low && v < prev.val) || (!low && v > prev.val) {
				out[len(out)-1] = pivot{idx: i, val: v}
			}
			continue
		}
		out = append(out, pivot{idx: i, val: v})
	}
	return out
}

// detectDivergence 在价格与振荡器序列上寻找背离。
// 常规背离（价格与振荡器在极值处反向）意味着反转，强度 very_strong；
// 隐藏背离意味着顺势延续，必须用独立的类型标记——
// 二者混淆是正确性错误。trend 是更大周期的方向，用于确认隐藏背离。
func detectDivergence(price, osc []float64, cfg DivergenceConfig, trend Direction) (Signal, bool) {
	cfg = cfg.withDefaults()
	if len(price) != len(osc) || len(price) < 5 {
		return Signal{}, false
	}

	lows := findPivots(price, cfg, true)
	if len(lows) >= 2 {
		a, b := lows[len(lows)-2], lows[len(lows)-1]
		priceLowerLow := b.val < a.val
		oscHigherLow := osc[b.idx] > osc[a.idx]
		// 隐藏背离要求双边严格不等: 低点持平的回踩不算背离。
		priceHigherLow := b.val > a.val
		oscLowerLow := osc[b.idx] < osc[a.idx]
		switch {
		case priceLowerLow && oscHigherLow:
			return Signal{
				Type:      SignalDivergence,
				Direction: Bullish,
				Strength:  VeryStrong,
				Metadata:  pivotMeta(a, b, osc),
			}, true
		case priceHigherLow && oscLowerLow && trend == Bullish:
			// 价格抬高低点而振荡器走低：上升趋势中的延续信号。
			return Signal{
				Type:      SignalHiddenDivergence,
				Direction: Bullish,
				Strength:  Strong,
				Metadata:  pivotMeta(a, b, osc),
			}, true
		}
	}

	highs := findPivots(price, cfg, false)
	if len(highs) >= 2 {
		a, b := highs[len(highs)-2], highs[len(highs)-1]
		priceHigherHigh := b.val > a.val
		oscLowerHigh := osc[b.idx] < osc[a.idx]
		priceLowerHigh := b.val < a.val
		oscHigherHigh := osc[b.idx] > osc[a.idx]
		switch {
		case priceHigherHigh && oscLowerHigh:
			return Signal{
				Type:      SignalDivergence,
				Direction: Bearish,
				Strength:  VeryStrong,
				Metadata:  pivotMeta(a, b, osc),
			}, true
		case priceLowerHigh && oscHigherHigh && trend == Bearish:
			return Signal{
				Type:      SignalHiddenDivergence,
				Direction: Bearish,
				Strength:  Strong,
				Metadata:  pivotMeta(a, b, osc),
			}, true
		}
	}
	return Signal{}, false
}

func pivotMeta(a, b pivot, osc []float64) map[string]any {
	return map[string]any{
		"pivot_prev_idx": a.idx,
		"pivot_last_idx": b.idx,
		"price_prev":     a.val,
		"price_last":     b.val,
		"osc_prev":       osc[a.idx],
		"osc_last":       osc[b.idx],
	}
}
