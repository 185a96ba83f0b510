package model

import (
	"fmt"
	"time"

	"kline-structure/internal/structure"
)

// Ticker 代表最小粒度的市场数据（成交或价格快照）
type Ticker struct {
	Symbol       string  // 所属交易对，例如 "BTCUSDT"
	Timestamp    int64   // 毫秒时间戳
	Price        float64 // 价格
	Volume       float64 // 交易量 (0 表示价格快照)
	IsBuyerMaker bool    // 是否为 Maker 导致的成交 (用于判断方向)
}

// KLine 代表聚合后的 K 线数据
type KLine struct {
	Symbol    string // 所属交易对
	Interval  string // 周期，例如 "1m", "5m", "1h"
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	StartTime time.Time
	EndTime   time.Time
	IsFinal   bool // 周期已结束；Flush 输出的未完成 K 线为 false
}

// ToBar 转换为结构分析使用的原始 Bar，时间取 K 线起始时间 (毫秒)
func (k KLine) ToBar() structure.Bar {
	return structure.Bar{
		Time:  k.StartTime.UnixMilli(),
		Open:  k.Open,
		High:  k.High,
		Low:   k.Low,
		Close: k.Close,
	}
}

func (k KLine) String() string {
	return fmt.Sprintf("KLINE [%s %s] %s O:%.4f H:%.4f L:%.4f C:%.4f V:%.4f",
		k.Symbol, k.Interval, k.StartTime.UTC().Format(time.RFC3339), k.Open, k.High, k.Low, k.Close, k.Volume)
}
