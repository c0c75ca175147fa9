package binance

import (
	"strings"
	"time"
)

type Config struct {
	RESTBaseURL string
	WSBaseURL   string
	HTTPTimeout time.Duration

	ProxyEnabled bool
	RESTProxyURL string
	WSProxyURL   string

	// RatePerSec 限制 REST 历史拉取速率, 0 取默认值。
	RatePerSec float64
	// DepthLevels 是盘口订阅档位, 仅支持 5/10/20。
	DepthLevels int
	// DepthInterval 是盘口推送频率, 仅支持 100ms/250ms/500ms。
	DepthInterval string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://fapi.binance.com"
	}
	out.WSBaseURL = strings.TrimSpace(out.WSBaseURL)
	if out.WSBaseURL == "" {
		out.WSBaseURL = "wss://fstream.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	out.WSProxyURL = strings.TrimSpace(out.WSProxyURL)
	if out.RatePerSec <= 0 {
		out.RatePerSec = 10
	}
	switch out.DepthLevels {
	case 5, 10, 20:
	default:
		out.DepthLevels = 20
	}
	switch out.DepthInterval {
	case "100ms", "250ms", "500ms":
	default:
		out.DepthInterval = "250ms"
	}
	return out
}
