package risk

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// LeverageTier 把一段 ATR 百分比区间映射到一个杠杆档位。
// Ceiling 是该档允许的最大 ATR%（如 0.01 = 1%）。
type LeverageTier struct {
	Ceiling  float64 `toml:"atr_percent_ceiling"`
	Leverage int     `toml:"leverage"`
}

// LeverageConfig 控制杠杆分层与迟滞带。
type LeverageConfig struct {
	Tiers       []LeverageTier `toml:"tiers"`
	MinLeverage int            `toml:"min_leverage"`
	MaxLeverage int            `toml:"max_leverage"`
	// Hysteresis 是切档所需的越界幅度（0.1 = 超出边界 10% 才切换），
	// 防止 ATR% 在边界附近抖动导致杠杆每 tick 振荡。
	Hysteresis float64 `toml:"hysteresis"`
}

func (c LeverageConfig) withDefaults() LeverageConfig {
	if len(c.Tiers) == 0 {
		c.Tiers = []LeverageTier{
			{Ceiling: 0.005, Leverage: 20},
			{Ceiling: 0.010, Leverage: 10},
			{Ceiling: 0.020, Leverage: 5},
			{Ceiling: 0.040, Leverage: 3},
		}
	}
	if c.MinLeverage <= 0 {
		c.MinLeverage = 1
	}
	if c.MaxLeverage <= 0 {
		c.MaxLeverage = 20
	}
	if c.Hysteresis <= 0 {
		c.Hysteresis = 0.10
	}
	return c
}

// Validate 检查分层单调性：ATR 上限递增、杠杆严格递减。
// 波动越高杠杆必须越低，反向配置直接拒绝启动。
func (c LeverageConfig) Validate() error {
	cfg := c.withDefaults()
	for i := 1; i < len(cfg.Tiers); i++ {
		if cfg.Tiers[i].Ceiling <= cfg.Tiers[i-1].Ceiling {
			return fmt.Errorf("杠杆分层#%d ATR 上限必须递增", i+1)
		}
		if cfg.Tiers[i].Leverage >= cfg.Tiers[i-1].Leverage {
			return fmt.Errorf("杠杆分层#%d 杠杆必须随波动递减", i+1)
		}
	}
	for i, tier := range cfg.Tiers {
		if tier.Leverage < cfg.MinLeverage || tier.Leverage > cfg.MaxLeverage {
			return fmt.Errorf("杠杆分层#%d 杠杆 %d 超出 [%d,%d]", i+1, tier.Leverage, cfg.MinLeverage, cfg.MaxLeverage)
		}
	}
	return nil
}

// LeverageSelector 按 ATR% 选择杠杆档位，带迟滞。
// 每个 symbol 独立记忆上次档位。
type LeverageSelector struct {
	cfg   LeverageConfig
	tiers []LeverageTier

	mu   sync.Mutex
	last map[string]int // symbol -> tier index
}

// NewLeverageSelector 构造选择器，配置需先通过 Validate。
func NewLeverageSelector(cfg LeverageConfig) *LeverageSelector {
	final := cfg.withDefaults()
	tiers := make([]LeverageTier, len(final.Tiers))
	copy(tiers, final.Tiers)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Ceiling < tiers[j].Ceiling })
	return &LeverageSelector{cfg: final, tiers: tiers, last: make(map[string]int)}
}

// Pick 无状态选档：返回 ATR% 落入的档位杠杆。
// 超出最大上限时回落到 MinLeverage。
func (s *LeverageSelector) Pick(atrPercent float64) int {
	idx := s.rawIndex(atrPercent)
	if idx < 0 {
		return s.cfg.MinLeverage
	}
	return s.tiers[idx].Leverage
}

// Select 带迟滞选档：ATR% 必须越过档位边界 Hysteresis 比例
// 才切换档位，否则沿用上次结果。
func (s *LeverageSelector) Select(symbol string, atrPercent float64) int {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	raw := s.rawIndex(atrPercent)

	s.mu.Lock()
	defer s.mu.Unlock()
	last, seen := s.last[symbol]
	if !seen || raw == last {
		if raw < 0 {
			// 超出全部档位：无条件降到最低杠杆。
			s.last[symbol] = len(s.tiers)
			return s.cfg.MinLeverage
		}
		s.last[symbol] = raw
		return s.tiers[raw].Leverage
	}

	switch {
	case raw < 0 || raw > last:
		// 波动升高（目标档更低杠杆）：需越过上次档位上限。
		if last < len(s.tiers) && atrPercent <= s.tiers[last].Ceiling*(1+s.cfg.Hysteresis) {
			return s.leverageAt(last)
		}
	case raw < last:
		// 波动回落（目标档更高杠杆）：需明显低于目标档上限。
		if atrPercent >= s.tiers[raw].Ceiling*(1-s.cfg.Hysteresis) {
			return s.leverageAt(last)
		}
	}
	if raw < 0 {
		s.last[symbol] = len(s.tiers)
		return s.cfg.MinLeverage
	}
	s.last[symbol] = raw
	return s.tiers[raw].Leverage
}

func (s *LeverageSelector) rawIndex(atrPercent float64) int {
	for i, tier := range s.tiers {
		if atrPercent <= tier.Ceiling {
			return i
		}
	}
	return -1
}

func (s *LeverageSelector) leverageAt(idx int) int {
	if idx < 0 || idx >= len(s.tiers) {
		return s.cfg.MinLeverage
	}
	return s.tiers[idx].Leverage
}
