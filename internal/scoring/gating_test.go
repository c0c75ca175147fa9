package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helmsman/internal/indicator"
)

func passingScore() CompositeScore {
	return CompositeScore{
		Symbol:             "BTCUSDT",
		TotalScore:         85,
		Confidence:         70,
		Direction:          indicator.Bullish,
		IndicatorsAgreeing: 3,
		ActiveIndicators:   4,
	}
}

func TestGatePasses(t *testing.T) {
	e := NewEngine(Config{})
	candidate, rejection := e.Gate(passingScore(), indicator.Bullish)
	require.Nil(t, rejection)
	assert.True(t, candidate.MeetsEntryRequirements)
	assert.Equal(t, indicator.Bullish, candidate.Direction)
}

func TestGateConjunction(t *testing.T) {
	e := NewEngine(Config{RequireTrendAlignment: true})

	cases := []struct {
		name   string
		mutate func(*CompositeScore)
		htf    indicator.Direction
	}{
		{"方向中性", func(s *CompositeScore) { s.Direction = indicator.Neutral }, indicator.Bullish},
		{"总分不足", func(s *CompositeScore) { s.TotalScore = 59.9 }, indicator.Bullish},
		{"负分同样按绝对值判定", func(s *CompositeScore) { s.TotalScore = -59.9 }, indicator.Bullish},
		{"置信度不足", func(s *CompositeScore) { s.Confidence = 54 }, indicator.Bullish},
		{"共振不足", func(s *CompositeScore) { s.IndicatorsAgreeing = 1 }, indicator.Bullish},
		{"逆更大周期趋势", func(s *CompositeScore) {}, indicator.Bearish},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score := passingScore()
			tc.mutate(&score)
			candidate, rejection := e.Gate(score, tc.htf)
			require.NotNil(t, rejection, "必须产生拒绝事件")
			assert.NotEmpty(t, rejection.Reason)
			assert.False(t, candidate.MeetsEntryRequirements)
		})
	}
}

func TestGateNeutralHTFDoesNotBlock(t *testing.T) {
	e := NewEngine(Config{RequireTrendAlignment: true})
	_, rejection := e.Gate(passingScore(), indicator.Neutral)
	assert.Nil(t, rejection, "更大周期无明确趋势时不应阻断")
}
