package config

import "strings"

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogFormat    = "text"
	defaultAppHTTPAddr     = ":9917"
	defaultKlineMaxCached  = 500
	defaultKlineHistory    = 300
	defaultMarketName      = "binance"
	defaultMarketREST      = "https://fapi.binance.com"
	defaultMarketWS        = "wss://fstream.binance.com"
	defaultMarketInterval  = "5m"
	defaultMarketHTF       = "1h"
	defaultMarketRateLimit = 10
	defaultExecutorMode    = "paper"
	defaultRetryAttempts   = 4
	defaultRetryBaseMS     = 200
	defaultRetryMaxMS      = 5000
	defaultCircuitFailures = 5
	defaultCircuitCooldown = 30
	defaultSQLitePath      = "data/helmsman.db"
	defaultProfileDir      = "configs/profiles"
	defaultInitialBalance  = 10000
)

// applyDefaults 为所有子配置应用默认值。指标/风险/持仓层的
// 数值默认值由各层构造函数自行兜底，这里只补运行面字段。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Kline.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Executor.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Profile.applyDefaults(keys)
	if c.Risk.InitialBalance <= 0 && !keys.isSet("risk.initial_balance") {
		c.Risk.InitialBalance = defaultInitialBalance
	}
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (k *KlineConfig) applyDefaults(keys keySet) {
	if k == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "kline.max_cached",
			need:  func() bool { return k.MaxCached <= 0 },
			apply: func() { k.MaxCached = defaultKlineMaxCached },
		},
		fieldDefault{
			key:   "kline.history_bars",
			need:  func() bool { return k.HistoryBars <= 0 },
			apply: func() { k.HistoryBars = defaultKlineHistory },
		},
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.interval", &m.Interval, defaultMarketInterval),
		stringFieldDefault("market.htf_interval", &m.HTFInterval, defaultMarketHTF),
		fieldDefault{
			key:   "market.active_source",
			need:  func() bool { return strings.TrimSpace(m.ActiveSource) == "" },
			apply: func() { m.ActiveSource = firstEnabledMarket(m.Sources) },
		},
	)
	for i := range m.Sources {
		src := &m.Sources[i]
		if strings.TrimSpace(src.RESTBaseURL) == "" {
			src.RESTBaseURL = defaultMarketREST
		}
		if strings.TrimSpace(src.WSBaseURL) == "" {
			src.WSBaseURL = defaultMarketWS
		}
		if src.RateLimit <= 0 {
			src.RateLimit = defaultMarketRateLimit
		}
		src.Proxy.normalize()
	}
	out := make([]string, 0, len(m.Symbols))
	for _, s := range m.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	m.Symbols = out
}

func (e *ExecutorConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("executor.mode", &e.Mode, defaultExecutorMode),
		fieldDefault{
			key:   "executor.retry.max_attempts",
			need:  func() bool { return e.Retry.MaxAttempts <= 0 },
			apply: func() { e.Retry.MaxAttempts = defaultRetryAttempts },
		},
		fieldDefault{
			key:   "executor.retry.base_backoff_ms",
			need:  func() bool { return e.Retry.BaseBackoffMS <= 0 },
			apply: func() { e.Retry.BaseBackoffMS = defaultRetryBaseMS },
		},
		fieldDefault{
			key:   "executor.retry.max_backoff_ms",
			need:  func() bool { return e.Retry.MaxBackoffMS <= 0 },
			apply: func() { e.Retry.MaxBackoffMS = defaultRetryMaxMS },
		},
		fieldDefault{
			key:   "executor.circuit_failures",
			need:  func() bool { return e.CircuitFailures <= 0 },
			apply: func() { e.CircuitFailures = defaultCircuitFailures },
		},
		fieldDefault{
			key:   "executor.circuit_cooldown_seconds",
			need:  func() bool { return e.CircuitCooldown <= 0 },
			apply: func() { e.CircuitCooldown = defaultCircuitCooldown },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.sqlite_path", &s.SQLitePath, defaultSQLitePath),
	)
}

func (p *ProfileConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("profile.dir", &p.Dir, defaultProfileDir),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func firstEnabledMarket(sources []MarketSource) string {
	for _, src := range sources {
		name := strings.TrimSpace(src.Name)
		if src.Enabled && name != "" {
			return name
		}
	}
	if len(sources) > 0 {
		if name := strings.TrimSpace(sources[0].Name); name != "" {
			return name
		}
	}
	return defaultMarketName
}
