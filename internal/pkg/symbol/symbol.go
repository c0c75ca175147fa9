// Package symbol 统一标的命名: 内部一律使用交易所风格的
// 无分隔大写形式(BTCUSDT), 展示层可用 Pair() 还原 BTC/USDT。
package symbol

import (
	"strings"
)

type Symbol struct {
	Base  string
	Quote string
}

// String 返回交易所风格符号(BTCUSDT)。
func (s Symbol) String() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// Pair 返回展示用的 BASE/QUOTE 形式。
func (s Symbol) Pair() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Parse 接受 "BTC/USDT"、"btcusdt"、"BTCUSDT:USDT" 等写法。
// 无法识别计价货币时返回零值。
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{
			Base:  strings.TrimSpace(parts[0]),
			Quote: strings.TrimSpace(parts[1]),
		}
	}

	quoteCurrencies := []string{"USDT", "BUSD", "USDC", "TUSD", "BTC", "ETH", "BNB"}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}

	return Symbol{}
}

// Normalize 归一化为交易所风格符号, 无法解析返回空串。
func Normalize(s string) string {
	return Parse(s).String()
}

func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Normalize(s)
		if norm == "" {
			norm = strings.ToUpper(strings.TrimSpace(s))
			if norm == "" {
				continue
			}
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}
