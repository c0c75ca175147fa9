package scoring

import (
	"time"

	"helmsman/internal/indicator"
)

// CompositeScore 是一次打分的完整快照。每次更新整体重算，
// 绝不增量修补，避免字段陈旧。
type CompositeScore struct {
	Symbol             string              `json:"symbol"`
	IndicatorScore     float64             `json:"indicator_score"` // [-120,120]
	MicroScore         float64             `json:"micro_score"`     // [-35,35]
	TotalScore         float64             `json:"total_score"`     // [-150,150]
	Confidence         float64             `json:"confidence"`      // [0,100]
	Direction          indicator.Direction `json:"direction"`
	IndicatorsAgreeing int                 `json:"indicators_agreeing"`
	ActiveIndicators   int                 `json:"active_indicators"`
	Signals            []indicator.Signal  `json:"signals,omitempty"`
	ComputedAt         time.Time           `json:"computed_at"`
}

// TradeCandidate 是通过入场门控的候选，由风险层一次性消费。
type TradeCandidate struct {
	Symbol                 string              `json:"symbol"`
	Direction              indicator.Direction `json:"direction"`
	Score                  CompositeScore      `json:"score"`
	MeetsEntryRequirements bool                `json:"meets_entry_requirements"`
}

// RejectionEvent 记录未通过门控的信号及原因。
// 静默拒绝是被禁止的：每次门控失败都必须产生该事件。
type RejectionEvent struct {
	Symbol     string         `json:"symbol"`
	Reason     string         `json:"reason"`
	Score      CompositeScore `json:"score"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Config 是组合打分层的全部可调参数。
type Config struct {
	Weights             map[string]float64
	TypeMultipliers     map[indicator.SignalType]float64
	StrengthMultipliers map[indicator.Strength]float64

	IndicatorCap float64 // 指标分值独立上限
	MicroCap     float64 // 微结构分值独立上限
	TotalCap     float64

	ConfidencePerIndicator float64 // 每个活跃指标的置信度加成
	IndicatorBonusCap      float64
	ConfidencePerDiv       float64 // 每个背离信号的置信度加成
	DivergenceBonusCap     float64

	MinScore              float64
	MinConfidence         float64
	MinIndicatorsAgreeing int
	RequireTrendAlignment bool
}

// WithDefaults 填充零值字段。类型乘数必须把背离/交叉/挤压/趋势交叉
// 排在纯 zone 之上：仅超买超卖共振是最弱的证据。
func (c Config) WithDefaults() Config {
	if c.Weights == nil {
		c.Weights = map[string]float64{}
	}
	if c.TypeMultipliers == nil {
		c.TypeMultipliers = map[indicator.SignalType]float64{
			indicator.SignalDivergence:       1.5,
			indicator.SignalHiddenDivergence: 1.3,
			indicator.SignalTrendCross:       1.4,
			indicator.SignalCrossover:        1.25,
			indicator.SignalSqueeze:          1.2,
			indicator.SignalMomentum:         1.0,
			indicator.SignalZone:             0.8,
		}
	}
	if c.StrengthMultipliers == nil {
		c.StrengthMultipliers = map[indicator.Strength]float64{
			indicator.Weak:       0.5,
			indicator.Moderate:   0.8,
			indicator.Strong:     1.0,
			indicator.VeryStrong: 1.25,
			indicator.Extreme:    1.5,
		}
	}
	if c.IndicatorCap <= 0 {
		c.IndicatorCap = 120
	}
	if c.MicroCap <= 0 {
		c.MicroCap = 35
	}
	if c.TotalCap <= 0 {
		c.TotalCap = 150
	}
	if c.ConfidencePerIndicator <= 0 {
		c.ConfidencePerIndicator = 4
	}
	if c.IndicatorBonusCap <= 0 {
		c.IndicatorBonusCap = 20
	}
	if c.ConfidencePerDiv <= 0 {
		c.ConfidencePerDiv = 10
	}
	if c.DivergenceBonusCap <= 0 {
		c.DivergenceBonusCap = 20
	}
	if c.MinScore <= 0 {
		c.MinScore = 60
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 55
	}
	if c.MinIndicatorsAgreeing <= 0 {
		c.MinIndicatorsAgreeing = 2
	}
	return c
}
