package config

import (
	"strings"
	"time"

	"helmsman/internal/indicator"
	"helmsman/internal/position"
	"helmsman/internal/risk"
	"helmsman/internal/scoring"
)

// Config 是 helmsman 的主配置载体。
// 每层拿到的都是不可变的显式结构体，任何层都不读全局状态。
type Config struct {
	App       AppConfig       `toml:"app"`
	Market    MarketConfig    `toml:"market"`
	Kline     KlineConfig     `toml:"kline"`
	Indicator IndicatorConfig `toml:"indicator"`
	Scoring   ScoringConfig   `toml:"scoring"`
	Risk      RiskConfig      `toml:"risk"`
	Position  PositionConfig  `toml:"position"`
	Executor  ExecutorConfig  `toml:"executor"`
	Store     StoreConfig     `toml:"store"`
	Profile   ProfileConfig   `toml:"profile"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // text | json
	HTTPAddr  string `toml:"http_addr"`
}

type KlineConfig struct {
	MaxCached   int `toml:"max_cached"`
	HistoryBars int `toml:"history_bars"` // 启动预热拉取的历史根数
}

type MarketConfig struct {
	Symbols      []string       `toml:"symbols"`
	Interval     string         `toml:"interval"`      // 决策周期
	HTFInterval  string         `toml:"htf_interval"`  // 更大周期趋势对齐
	ActiveSource string         `toml:"active_source"` // binance | paper
	Sources      []MarketSource `toml:"sources"`
}

type MarketSource struct {
	Name        string      `toml:"name"`
	Enabled     bool        `toml:"enabled"`
	RESTBaseURL string      `toml:"rest_base_url"`
	WSBaseURL   string      `toml:"ws_base_url"`
	Proxy       ProxyConfig `toml:"proxy"`
	// RateLimit 是 REST 请求速率上限（次/秒）。
	RateLimit float64 `toml:"rate_limit"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
	WSURL   string `toml:"ws_url"`
}

func (p *ProxyConfig) normalize() {
	if p == nil {
		return
	}
	p.RESTURL = strings.TrimSpace(p.RESTURL)
	p.WSURL = strings.TrimSpace(p.WSURL)
}

// ResolveActiveSource 返回启用中的行情源，缺省回落到 Binance 合约。
func (m MarketConfig) ResolveActiveSource() MarketSource {
	if len(m.Sources) == 0 {
		return MarketSource{
			Name:        "binance",
			Enabled:     true,
			RESTBaseURL: "https://fapi.binance.com",
			WSBaseURL:   "wss://fstream.binance.com",
			RateLimit:   10,
		}
	}
	active := strings.ToLower(strings.TrimSpace(m.ActiveSource))
	var fallback MarketSource
	for _, src := range m.Sources {
		if fallback.Name == "" {
			fallback = src
		}
		if !src.Enabled {
			continue
		}
		if active == "" || strings.ToLower(src.Name) == active {
			return src
		}
	}
	return fallback
}

// IndicatorConfig 汇总各指标周期参数。
type IndicatorConfig struct {
	RSI struct {
		Period     int     `toml:"period"`
		Overbought float64 `toml:"overbought"`
		Oversold   float64 `toml:"oversold"`
	} `toml:"rsi"`
	MACD struct {
		Fast   int `toml:"fast"`
		Slow   int `toml:"slow"`
		Signal int `toml:"signal"`
	} `toml:"macd"`
	EMA struct {
		Fast int `toml:"fast"`
		Mid  int `toml:"mid"`
		Slow int `toml:"slow"`
	} `toml:"ema"`
	Bollinger struct {
		Period int     `toml:"period"`
		NumDev float64 `toml:"num_dev"`
	} `toml:"bollinger"`
	ATR struct {
		Period int `toml:"period"`
	} `toml:"atr"`
	Divergence struct {
		Lookback    int `toml:"lookback"`
		MinPivotGap int `toml:"min_pivot_gap"`
	} `toml:"divergence"`
}

// ScoringConfig 是组合打分层的配置面。
type ScoringConfig struct {
	Weights             map[string]float64 `toml:"weights"`
	TypeMultipliers     map[string]float64 `toml:"type_multipliers"`
	StrengthMultipliers map[string]float64 `toml:"strength_multipliers"`
	IndicatorCap        float64            `toml:"indicator_cap"`
	MicroCap            float64            `toml:"micro_cap"`
	TotalCap            float64            `toml:"total_cap"`

	MinScore              float64 `toml:"min_score"`
	MinConfidence         float64 `toml:"min_confidence"`
	MinIndicatorsAgreeing int     `toml:"min_indicators_agreeing"`
	RequireTrendAlignment bool    `toml:"require_trend_alignment"`
}

// ToEngine 转换为打分引擎的构造参数。
func (s ScoringConfig) ToEngine() scoring.Config {
	cfg := scoring.Config{
		Weights:               s.Weights,
		IndicatorCap:          s.IndicatorCap,
		MicroCap:              s.MicroCap,
		TotalCap:              s.TotalCap,
		MinScore:              s.MinScore,
		MinConfidence:         s.MinConfidence,
		MinIndicatorsAgreeing: s.MinIndicatorsAgreeing,
		RequireTrendAlignment: s.RequireTrendAlignment,
	}
	if len(s.TypeMultipliers) > 0 {
		cfg.TypeMultipliers = make(map[indicator.SignalType]float64, len(s.TypeMultipliers))
		for k, v := range s.TypeMultipliers {
			cfg.TypeMultipliers[indicator.SignalType(strings.ToLower(k))] = v
		}
	}
	if len(s.StrengthMultipliers) > 0 {
		cfg.StrengthMultipliers = make(map[indicator.Strength]float64, len(s.StrengthMultipliers))
		for k, v := range s.StrengthMultipliers {
			cfg.StrengthMultipliers[indicator.Strength(strings.ToLower(k))] = v
		}
	}
	return cfg
}

// RiskConfig 汇总风险层配置，字段类型直接复用风险层定义。
type RiskConfig struct {
	Leverage risk.LeverageConfig `toml:"leverage"`
	Levels   risk.LevelConfig    `toml:"levels"`
	Sizing   risk.SizingConfig   `toml:"sizing"`
	Account  risk.AccountLimits  `toml:"account"`
	// InitialBalance 是模拟盘初始权益（USDT）。
	InitialBalance float64 `toml:"initial_balance"`
}

// PositionConfig 汇总持仓生命周期配置。
type PositionConfig struct {
	Trailing      position.TrailingConfig `toml:"trailing"`
	ProfitTargets []position.ProfitTarget `toml:"profit_targets"`
}

// ExecutorConfig 控制意图执行边界。
type ExecutorConfig struct {
	Mode  string      `toml:"mode"` // paper | live
	Retry RetryConfig `toml:"retry"`
	// CircuitFailures 次连续失败后熔断，冷却后半开试探。
	CircuitFailures int `toml:"circuit_failures"`
	CircuitCooldown int `toml:"circuit_cooldown_seconds"`
}

type RetryConfig struct {
	MaxAttempts   int `toml:"max_attempts"`
	BaseBackoffMS int `toml:"base_backoff_ms"`
	MaxBackoffMS  int `toml:"max_backoff_ms"`
}

// BaseBackoff 返回首次重试退避时长。
func (r RetryConfig) BaseBackoff() time.Duration {
	return time.Duration(r.BaseBackoffMS) * time.Millisecond
}

// MaxBackoff 返回退避时长上限。
func (r RetryConfig) MaxBackoff() time.Duration {
	return time.Duration(r.MaxBackoffMS) * time.Millisecond
}

type StoreConfig struct {
	SQLitePath string `toml:"sqlite_path"`
}

type ProfileConfig struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
