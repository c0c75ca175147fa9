package scoring

import (
	"math"
	"time"

	"helmsman/internal/indicator"
)

// Engine 把一个 symbol 的全部指标读数聚合为单一有界分值。
type Engine struct {
	cfg Config
}

// NewEngine 构造打分引擎。
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.WithDefaults()}
}

// Score 聚合读数与微结构输入。micro 仅在 live=true 时计入；
// 历史回放没有有效的微结构等价物，必须硬性禁用。
func (e *Engine) Score(symbol string, readings []indicator.Reading, micro MicroInputs, live bool) CompositeScore {
	score := CompositeScore{
		Symbol:     symbol,
		Direction:  indicator.Neutral,
		ComputedAt: time.Now(),
	}

	indicatorSum := 0.0
	bullish, bearish := 0, 0
	divergences := 0
	for _, r := range readings {
		if !r.Ready {
			continue
		}
		score.ActiveIndicators++
		weight := e.weightFor(r.IndicatorID)
		typeMult, strengthMult := 1.0, 1.0
		if sig, ok := r.Dominant(); ok {
			typeMult = e.typeMultiplier(sig.Type)
			strengthMult = e.strengthMultiplier(sig.Strength)
		}
		indicatorSum += r.Score * weight * typeMult * strengthMult
		switch r.Direction {
		case indicator.Bullish:
			bullish++
		case indicator.Bearish:
			bearish++
		}
		for _, sig := range r.Signals {
			score.Signals = append(score.Signals, sig)
			if sig.Type == indicator.SignalDivergence || sig.Type == indicator.SignalHiddenDivergence {
				divergences++
			}
		}
	}
	score.IndicatorScore = clamp(indicatorSum, e.cfg.IndicatorCap)

	// 微结构独立限幅后再与指标分求和（参见设计记录）。
	if live {
		microScore, microSignals := e.scoreMicro(micro)
		score.MicroScore = clamp(microScore, e.cfg.MicroCap)
		score.Signals = append(score.Signals, microSignals...)
	}
	score.TotalScore = clamp(score.IndicatorScore+score.MicroScore, e.cfg.TotalCap)

	switch {
	case bullish > bearish:
		score.Direction = indicator.Bullish
		score.IndicatorsAgreeing = bullish
	case bearish > bullish:
		score.Direction = indicator.Bearish
		score.IndicatorsAgreeing = bearish
	default:
		score.Direction = indicator.Neutral
		score.IndicatorsAgreeing = bullish
	}

	score.Confidence = e.confidence(score.ActiveIndicators, score.IndicatorsAgreeing, divergences)
	return score
}

// confidence = clamp(60*一致占比 + 指标数量加成 + 背离加成, 0, 100)。
func (e *Engine) confidence(active, agreeing, divergences int) float64 {
	if active == 0 {
		return 0
	}
	agreementFraction := float64(agreeing) / float64(active)
	indicatorBonus := math.Min(float64(active)*e.cfg.ConfidencePerIndicator, e.cfg.IndicatorBonusCap)
	divBonus := math.Min(float64(divergences)*e.cfg.ConfidencePerDiv, e.cfg.DivergenceBonusCap)
	conf := 60*agreementFraction + indicatorBonus + divBonus
	if conf < 0 {
		return 0
	}
	if conf > 100 {
		return 100
	}
	return conf
}

func (e *Engine) weightFor(id string) float64 {
	if w, ok := e.cfg.Weights[id]; ok && w > 0 {
		return w
	}
	return 1.0
}

func (e *Engine) typeMultiplier(t indicator.SignalType) float64 {
	if m, ok := e.cfg.TypeMultipliers[t]; ok && m > 0 {
		return m
	}
	return 1.0
}

func (e *Engine) strengthMultiplier(s indicator.Strength) float64 {
	if m, ok := e.cfg.StrengthMultipliers[s]; ok && m > 0 {
		return m
	}
	return 1.0
}

func clamp(v, limit float64) float64 {
	if limit <= 0 {
		return v
	}
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
