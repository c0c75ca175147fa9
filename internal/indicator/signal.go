package indicator

// SignalType 是封闭的信号类型集合，组合打分层按类型加权。
type SignalType string

const (
	SignalDivergence       SignalType = "divergence"
	SignalHiddenDivergence SignalType = "hidden_divergence"
	SignalCrossover        SignalType = "crossover"
	SignalZone             SignalType = "zone"
	SignalMomentum         SignalType = "momentum"
	SignalSqueeze          SignalType = "squeeze"
	SignalTrendCross       SignalType = "trend_cross"
)

// Direction 表示信号方向。
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Opposite 返回相反方向，Neutral 不变。
func (d Direction) Opposite() Direction {
	switch d {
	case Bullish:
		return Bearish
	case Bearish:
		return Bullish
	default:
		return Neutral
	}
}

// Strength 是信号强度等级。
type Strength string

const (
	Weak       Strength = "weak"
	Moderate   Strength = "moderate"
	Strong     Strength = "strong"
	VeryStrong Strength = "very_strong"
	Extreme    Strength = "extreme"
)

// Rank 返回强度序号，用于挑选主导信号。
func (s Strength) Rank() int {
	switch s {
	case Weak:
		return 1
	case Moderate:
		return 2
	case Strong:
		return 3
	case VeryStrong:
		return 4
	case Extreme:
		return 5
	default:
		return 0
	}
}

// Signal 是不可变的信号值对象。
type Signal struct {
	Type      SignalType     `json:"type"`
	Direction Direction      `json:"direction"`
	Strength  Strength       `json:"strength"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Reading 是指标单次更新的快照。历史不足时 Ready=false、
// Score=0、无信号，但结构完整，组合层不需要判空。
type Reading struct {
	IndicatorID string    `json:"indicator_id"`
	Value       float64   `json:"value"`
	Score       float64   `json:"score"` // [-100, 100]，正为多头
	Direction   Direction `json:"direction"`
	Ready       bool      `json:"ready"`
	Signals     []Signal  `json:"signals,omitempty"`
	Components  map[string]float64 `json:"components,omitempty"`
}

// Dominant 返回强度最高的信号，没有信号时 ok=false。
func (r Reading) Dominant() (Signal, bool) {
	if len(r.Signals) == 0 {
		return Signal{}, false
	}
	best := r.Signals[0]
	for _, s := range r.Signals[1:] {
		if s.Strength.Rank() > best.Strength.Rank() {
			best = s
		}
	}
	return best, true
}

func neutralReading(id string) Reading {
	return Reading{IndicatorID: id, Direction: Neutral}
}

func clampScore(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < -100 {
		return -100
	}
	return v
}
