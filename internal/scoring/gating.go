package scoring

import (
	"fmt"
	"math"
	"time"

	"helmsman/internal/indicator"
)

// Gate 评估入场门槛。四个条件是合取关系，分数单独达标不放行。
// 失败时返回带原因的 RejectionEvent，绝不静默丢弃。
func (e *Engine) Gate(score CompositeScore, htfTrend indicator.Direction) (TradeCandidate, *RejectionEvent) {
	candidate := TradeCandidate{
		Symbol:    score.Symbol,
		Direction: score.Direction,
		Score:     score,
	}
	reject := func(format string, args ...any) (TradeCandidate, *RejectionEvent) {
		return candidate, &RejectionEvent{
			Symbol:     score.Symbol,
			Reason:     fmt.Sprintf(format, args...),
			Score:      score,
			OccurredAt: time.Now(),
		}
	}

	if score.Direction == indicator.Neutral {
		return reject("方向中性，无法入场")
	}
	if abs := math.Abs(score.TotalScore); abs < e.cfg.MinScore {
		return reject("总分不足: |%.1f| < %.1f", score.TotalScore, e.cfg.MinScore)
	}
	if score.Confidence < e.cfg.MinConfidence {
		return reject("置信度不足: %.1f < %.1f", score.Confidence, e.cfg.MinConfidence)
	}
	if score.IndicatorsAgreeing < e.cfg.MinIndicatorsAgreeing {
		return reject("共振指标数不足: %d < %d", score.IndicatorsAgreeing, e.cfg.MinIndicatorsAgreeing)
	}
	if e.cfg.RequireTrendAlignment && htfTrend != indicator.Neutral && htfTrend != score.Direction {
		return reject("方向 %s 与更大周期趋势 %s 不一致", score.Direction, htfTrend)
	}

	candidate.MeetsEntryRequirements = true
	return candidate, nil
}
