package config

import (
	"fmt"
	"strings"
)

var validIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true,
}

// validate 在启动期对配置快速失败。这是唯一允许中止进程的
// 错误类别：越界阈值或缺失必填项绝不带病进入交易循环。
func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Kline.validate(); err != nil {
		return err
	}
	if err := c.Scoring.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Position.validate(); err != nil {
		return err
	}
	if err := c.Executor.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if len(m.Symbols) == 0 {
		return fmt.Errorf("market.symbols requires at least one symbol")
	}
	if !validIntervals[m.Interval] {
		return fmt.Errorf("market.interval %q is not a supported interval", m.Interval)
	}
	if !validIntervals[m.HTFInterval] {
		return fmt.Errorf("market.htf_interval %q is not a supported interval", m.HTFInterval)
	}
	src := m.ResolveActiveSource()
	if strings.TrimSpace(src.Name) == "" {
		return fmt.Errorf("market.sources resolved to an empty source")
	}
	return nil
}

func (k *KlineConfig) validate() error {
	if k.HistoryBars > k.MaxCached {
		return fmt.Errorf("kline.history_bars (%d) cannot exceed kline.max_cached (%d)",
			k.HistoryBars, k.MaxCached)
	}
	return nil
}

func (s *ScoringConfig) validate() error {
	for id, w := range s.Weights {
		if w < 0 {
			return fmt.Errorf("scoring.weights.%s must be >= 0", id)
		}
	}
	if s.MinScore < 0 || (s.TotalCap > 0 && s.MinScore > s.TotalCap) {
		return fmt.Errorf("scoring.min_score %.1f out of range", s.MinScore)
	}
	if s.MinConfidence < 0 || s.MinConfidence > 100 {
		return fmt.Errorf("scoring.min_confidence must be within [0,100]")
	}
	if s.MinIndicatorsAgreeing < 0 {
		return fmt.Errorf("scoring.min_indicators_agreeing must be >= 0")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if err := r.Leverage.Validate(); err != nil {
		return fmt.Errorf("risk.leverage: %w", err)
	}
	if r.Levels.EntryFeeRate < 0 || r.Levels.ExitFeeRate < 0 {
		return fmt.Errorf("risk.levels fee rates must be >= 0")
	}
	if r.Levels.SafetyBufferPct < 0 {
		return fmt.Errorf("risk.levels.safety_buffer_pct must be >= 0")
	}
	if r.Sizing.RiskPercent < 0 || r.Sizing.RiskPercent > 0.1 {
		return fmt.Errorf("risk.sizing.risk_percent %.4f out of sane range (0, 0.1]", r.Sizing.RiskPercent)
	}
	if r.Sizing.MaxPositionPct < 0 || r.Sizing.MaxPositionPct > 1 {
		return fmt.Errorf("risk.sizing.max_position_pct must be within [0,1]")
	}
	if r.Account.MaxExposurePct < 0 || r.Account.MaxExposurePct > 1 {
		return fmt.Errorf("risk.account.max_exposure_pct must be within [0,1]")
	}
	return nil
}

func (p *PositionConfig) validate() error {
	if p.Trailing.Mode != "" {
		if err := p.Trailing.Validate(); err != nil {
			return fmt.Errorf("position.trailing: %w", err)
		}
	}
	prev := 0.0
	for i, tgt := range p.ProfitTargets {
		if tgt.TriggerROI <= prev {
			return fmt.Errorf("position.profit_targets[%d].trigger_roi must be strictly increasing", i)
		}
		if tgt.LockFraction <= 0 || tgt.LockFraction >= 1 {
			return fmt.Errorf("position.profit_targets[%d].lock_fraction must be within (0,1)", i)
		}
		prev = tgt.TriggerROI
	}
	return nil
}

func (e *ExecutorConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Mode)) {
	case "paper", "live":
	default:
		return fmt.Errorf("executor.mode must be paper or live, got %q", e.Mode)
	}
	if e.Retry.MaxAttempts > 10 {
		return fmt.Errorf("executor.retry.max_attempts %d is unreasonably large", e.Retry.MaxAttempts)
	}
	if e.Retry.BaseBackoffMS > e.Retry.MaxBackoffMS {
		return fmt.Errorf("executor.retry.base_backoff_ms cannot exceed max_backoff_ms")
	}
	return nil
}
