package model

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"kline-structure/internal/service"

	"go.uber.org/zap"
)

// DataEngine 负责接收 Ticker，聚合 K 线，并发送给结构分析层
type DataEngine struct {
	tickerChan <-chan Ticker
	klineChan  chan KLine
	aggregator *KlineAggregator
	symbol     string
	logger     *zap.Logger
}

// NewDataEngine 创建并初始化 DataEngine，interval 如 "1m", "5m"
func NewDataEngine(tickerChan <-chan Ticker, symbol, interval string, logger *zap.Logger) (*DataEngine, error) {
	agg, err := NewKlineAggregator(symbol, interval)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = service.Logger
	}
	return &DataEngine{
		tickerChan: tickerChan,
		klineChan:  make(chan KLine, 100),
		aggregator: agg,
		symbol:     symbol,
		logger:     logger,
	}, nil
}

// Start 启动数据处理循环，直到 ctx 结束或 Ticker 通道关闭。
// 退出前发送正在构建的 K 线并关闭 K 线通道。
func (de *DataEngine) Start(ctx context.Context) {
	de.logger.Info("Data Engine started, monitoring ticker stream...",
		zap.String("Interval", de.aggregator.Interval))
	defer close(de.klineChan)

	for {
		select {
		case <-ctx.Done():
			de.flush()
			return
		case ticker, ok := <-de.tickerChan:
			if !ok {
				de.flush()
				de.logger.Info("Ticker stream closed, Data Engine stopped")
				return
			}
			// 只处理与本 DataEngine 实例 Symbol 匹配的数据
			if ticker.Symbol != de.symbol {
				continue
			}
			if completed, done := de.aggregator.ProcessTicker(ticker); done {
				de.emit(completed)
			}
		}
	}
}

func (de *DataEngine) flush() {
	if k, ok := de.aggregator.Flush(); ok {
		de.emit(k)
	}
}

func (de *DataEngine) emit(k KLine) {
	select {
	case de.klineChan <- k:
	default:
		de.logger.Warn("KLine output channel full! Dropping completed KLine.",
			zap.String("Symbol", k.Symbol), zap.String("Interval", k.Interval), zap.Time("Start", k.StartTime))
	}
}

// GetKlineChannel 供分析层调用以获取 K 线数据流
func (de *DataEngine) GetKlineChannel() <-chan KLine {
	return de.klineChan
}

// KlineAggregator K 线聚合器 (用于根据 Ticker 聚合特定周期和 Symbol 的 K 线)
type KlineAggregator struct {
	mu       sync.Mutex
	Symbol   string        // 所属交易对
	Interval string        // 聚合周期，如 "1m", "5m"
	duration time.Duration // Interval 解析后的时长
	Current  KLine         // 正在构建的当前 K 线
}

// NewKlineAggregator 创建一个新的聚合器
func NewKlineAggregator(symbol, intervalStr string) (*KlineAggregator, error) {
	d, err := service.ParseIntervalDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("kline aggregator %s: %w", symbol, err)
	}
	return &KlineAggregator{
		Symbol:   symbol,
		Interval: intervalStr,
		duration: d,
		Current: KLine{
			Symbol:    symbol,
			Interval:  intervalStr,
			StartTime: time.Time{}, // time.Time{} 表示零时间，即未初始化
		},
	}, nil
}

// ProcessTicker 负责将 Ticker 聚合到 Current KLine。
// Ticker 进入新的周期时返回上一根已完成的 K 线。早于当前周期的 Ticker 被忽略。
func (agg *KlineAggregator) ProcessTicker(ticker Ticker) (KLine, bool) {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	// 将 Ticker 时间戳对齐到 K 线起始时间
	tickerTime := time.UnixMilli(ticker.Timestamp).UTC()
	klineStart := tickerTime.Truncate(agg.duration)

	if agg.Current.StartTime.IsZero() {
		// 第一次收到 Ticker，初始化 K 线
		agg.Current = agg.open(klineStart, ticker.Price, ticker.Price)
	} else if klineStart.Before(agg.Current.StartTime) {
		return KLine{}, false
	}

	var completed KLine
	done := false
	// 当前 K 线的起始时间在 Ticker 所在的周期之前，说明之前的 K 线已完成
	if klineStart.After(agg.Current.StartTime) {
		completed = agg.Current
		completed.IsFinal = true
		done = true
		agg.Current = agg.open(klineStart, agg.Current.Close, ticker.Price) // 新 K 线的开盘价取上一根 K 线的收盘价
	}

	// 更新 OHLCV
	agg.Current.Close = ticker.Price // 最后一个 Ticker 的价格作为收盘价
	agg.Current.High = math.Max(agg.Current.High, ticker.Price)
	agg.Current.Low = math.Min(agg.Current.Low, ticker.Price)
	agg.Current.Volume += ticker.Volume // 累加交易量

	return completed, done
}

func (agg *KlineAggregator) open(start time.Time, open, price float64) KLine {
	return KLine{
		Symbol:    agg.Symbol,
		Interval:  agg.Interval,
		Open:      open,
		High:      price,
		Low:       price,
		Close:     price,
		StartTime: start,
		EndTime:   start.Add(agg.duration).Add(-time.Millisecond),
	}
}

// Flush 返回正在构建的 K 线 (IsFinal 为 false) 并清空，没有数据时返回 false
func (agg *KlineAggregator) Flush() (KLine, bool) {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	if agg.Current.StartTime.IsZero() {
		return KLine{}, false
	}
	k := agg.Current
	agg.Current = KLine{Symbol: agg.Symbol, Interval: agg.Interval}
	return k, true
}
