package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert.Equal(t, Symbol{Base: "BTC", Quote: "USDT"}, Parse("BTC/USDT"))
	assert.Equal(t, Symbol{Base: "BTC", Quote: "USDT"}, Parse("btcusdt"))
	assert.Equal(t, Symbol{Base: "ETH", Quote: "USDT"}, Parse("ETHUSDT:USDT"))
	assert.Equal(t, Symbol{}, Parse("???"))
	assert.Equal(t, Symbol{}, Parse(""))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Normalize("btc/usdt"))
	assert.Equal(t, "BTCUSDT", Normalize(" BTCUSDT "))
	assert.Equal(t, "", Normalize("junk"))
	assert.Equal(t, "BTC/USDT", Parse("btcusdt").Pair())
}

func TestNormalizeListDedup(t *testing.T) {
	out := NormalizeList([]string{"btcusdt", "BTC/USDT", "ethusdt", ""})
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, out)
}
