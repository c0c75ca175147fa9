package scheduler

import (
	"strconv"
	"strings"
	"time"
)

var intervalUnits = map[byte]time.Duration{
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// ParseIntervalDuration 把交易所周期串("5m"/"1h"/"4h"/"1d"/"1w")
// 解析为 time.Duration, 非法输入返回 (0, false)。
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if len(interval) < 2 {
		return 0, false
	}
	unit, ok := intervalUnits[interval[len(interval)-1]]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(interval[:len(interval)-1]))
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * unit, true
}
