package service

import (
	"fmt"
	"strconv"
	"time"
)

// StringToFloat 解析交易所推送的字符串价格
func StringToFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func StringToInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// FormatInterval 把周期时长格式化为最大整除单位的写法，如 60s -> "1m", 120m -> "2h"
func FormatInterval(d time.Duration) string {
	for _, u := range []struct {
		unit string
		size time.Duration
	}{{"h", time.Hour}, {"m", time.Minute}, {"s", time.Second}} {
		if d >= u.size && d%u.size == 0 {
			return fmt.Sprintf("%d%s", d/u.size, u.unit)
		}
	}
	return d.String()
}

// 将 K 线周期字符串解析为 time.Duration
// 例如 "1m" -> 1*time.Minute
func ParseIntervalDuration(s string) (time.Duration, error) {
	// 简单的解析逻辑，匹配末尾的 's', 'm', 'h', 'd' 等
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid interval format: %s", s)
	}

	unit := s[len(s)-1:]
	valueStr := s[:len(s)-1]

	var unitDuration time.Duration
	switch unit {
	case "s":
		unitDuration = time.Second
	case "m":
		unitDuration = time.Minute
	case "h":
		unitDuration = time.Hour
	case "d":
		unitDuration = 24 * time.Hour
	default:
		return 0, fmt.Errorf("unsupported interval unit: %s", unit)
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid interval value: %s", valueStr)
	}

	return time.Duration(value) * unitDuration, nil
}
