package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutAndDedup(t *testing.T) {
	s := NewMemoryStore(10)
	s.Put("btcusdt", "5m", Candle{OpenTime: 1000, Close: 100})
	s.Put("BTCUSDT", "5m", Candle{OpenTime: 1000, Close: 101}) // 同根更新
	s.Put("BTCUSDT", "5M", Candle{OpenTime: 2000, Close: 102})

	got := s.Get("BTCUSDT", "5m")
	require.Len(t, got, 2, "symbol/interval 大小写不敏感且同 OpenTime 去重")
	assert.Equal(t, 101.0, got[0].Close)
	assert.Equal(t, 102.0, got[1].Close)
}

func TestMemoryStoreBoundedWindow(t *testing.T) {
	s := NewMemoryStore(5)
	for i := 1; i <= 8; i++ {
		s.Put("ETHUSDT", "1m", Candle{OpenTime: int64(i * 1000), Close: float64(i)})
	}
	got := s.Get("ETHUSDT", "1m")
	require.Len(t, got, 5)
	assert.Equal(t, int64(4000), got[0].OpenTime, "最旧的 K 线被丢弃")
}

func TestMemoryStoreSetTruncates(t *testing.T) {
	s := NewMemoryStore(3)
	candles := []Candle{
		{OpenTime: 1, Close: 1}, {OpenTime: 2, Close: 2},
		{OpenTime: 3, Close: 3}, {OpenTime: 4, Close: 4},
	}
	s.Set("BTCUSDT", "1h", candles)
	got := s.Get("BTCUSDT", "1h")
	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got[0].OpenTime)
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore(10)
	s.Put("BTCUSDT", "1m", Candle{OpenTime: 1000, Close: 100})
	got := s.Get("BTCUSDT", "1m")
	got[0].Close = 999
	assert.Equal(t, 100.0, s.Get("BTCUSDT", "1m")[0].Close, "外部修改不得影响内部窗口")
}

func TestMemoryStoreIgnoresZeroCandle(t *testing.T) {
	s := NewMemoryStore(10)
	s.Put("BTCUSDT", "1m", Candle{})
	assert.Empty(t, s.Get("BTCUSDT", "1m"))
}
