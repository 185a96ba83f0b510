package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kline-structure/internal/model"
	"kline-structure/internal/store"
	"kline-structure/internal/structure"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Analyzer 负责一个品种的结构分析：先写入原始 Bar 存储，再推入流水线。
// 流水线出现不变量错误后，从存储完整重放以恢复。
type Analyzer struct {
	mu       sync.Mutex
	name     string
	symbol   string
	store    store.BarStore
	pipeline *structure.Pipeline
	base     *zap.Logger
	logger   *zap.Logger
	runID    string

	// 当前结构状态从存储的 start 处开始构建；started 为 false 时从下一根写入的 Bar 开始
	start   int
	started bool
}

// New 创建 Analyzer。store 中已有的 Bar 不会自动载入，需要调用 Replay；
// 不重放时结构从之后写入的第一根 Bar 开始。
func New(name, symbol string, st store.BarStore, cfg structure.Config, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := logger.With(zap.String("Instance", name), zap.String("Symbol", symbol))
	a := &Analyzer{
		name:     name,
		symbol:   symbol,
		store:    st,
		pipeline: structure.New(cfg, base),
		base:     base,
	}
	a.newRun()
	return a
}

// newRun 每次从头构建结构时生成新的 RunID，用于关联日志
func (a *Analyzer) newRun() {
	a.runID = uuid.NewString()
	a.logger = a.base.With(zap.String("RunID", a.runID))
}

// RunID 当前结构状态对应的运行 ID
func (a *Analyzer) RunID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runID
}

// Pipeline 用于只读查询。调用方不能与 Ingest 并发使用。
func (a *Analyzer) Pipeline() *structure.Pipeline {
	return a.pipeline
}

// Ingest 存储并处理一根新 Bar。
// 输入错误的 Bar 既不存储也不处理；流水线处于 Faulted 状态时 Bar 仍然被存储，恢复时会被重放。
func (a *Analyzer) Ingest(bar structure.Bar) ([]structure.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.pipeline.Validate(bar); err != nil {
		if !errors.Is(err, structure.ErrPipelineFaulted) {
			a.logger.Warn("Rejected bar", zap.Int64("Time", bar.Time), zap.Error(err))
			return nil, err
		}
		if _, serr := a.append(bar); serr != nil {
			return nil, fmt.Errorf("store bar: %w", serr)
		}
		return nil, err
	}

	idx, err := a.append(bar)
	if err != nil {
		return nil, fmt.Errorf("store bar: %w", err)
	}
	events, err := a.pipeline.PushIndexed(bar, idx)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		a.logEvent(ev)
	}
	return events, nil
}

func (a *Analyzer) append(bar structure.Bar) (int, error) {
	idx, err := a.store.Append(bar)
	if err != nil {
		return 0, err
	}
	if !a.started {
		a.start, a.started = idx, true
	}
	return idx, nil
}

func (a *Analyzer) logEvent(ev structure.Event) {
	switch ev.Kind {
	case structure.EventSegment:
		if ev.SegmentChange == structure.SegmentClosed {
			a.logger.Info("Segment closed",
				zap.Stringer("Closed", ev.ClosedSegment), zap.Stringer("Opened", ev.Segment))
			return
		}
		a.logger.Info("Segment extended", zap.Stringer("Segment", ev.Segment))
	case structure.EventPen:
		fields := []zap.Field{zap.Stringer("Change", ev.PenChange), zap.Stringer("Pen", ev.Pen)}
		if ev.CompletedPen != nil {
			fields = append(fields, zap.Stringer("Completed", ev.CompletedPen))
		}
		a.logger.Info("Pen updated", fields...)
	case structure.EventFractal:
		a.logger.Debug("Fractal detected",
			zap.Stringer("Kind", ev.Fractal.Kind),
			zap.Float64("Price", ev.Fractal.Price()),
			zap.Int("CandleID", ev.Fractal.CenterCandleID))
	case structure.EventCandle:
		a.logger.Debug("Candle",
			zap.Int("ID", ev.Candle.ID),
			zap.Bool("Finalized", ev.Finalized),
			zap.Float64("High", ev.Candle.High),
			zap.Float64("Low", ev.Candle.Low))
	}
}

// Replay 清空结构状态，从存储中第一根 Time >= from 的 Bar 开始重新处理
func (a *Analyzer) Replay(ctx context.Context, from int64) error {
	idx, ok, err := a.store.TimeToIndex(from)
	if err != nil {
		return err
	}
	if !ok {
		a.mu.Lock()
		a.pipeline.Reset()
		a.newRun()
		a.started = false
		a.mu.Unlock()
		return nil
	}
	return a.replayFrom(ctx, idx)
}

// Recover 重置 Faulted 的流水线，从当前结构的起始 Bar 重放以得到相同的结构状态
func (a *Analyzer) Recover(ctx context.Context) error {
	a.mu.Lock()
	fault, logger := a.pipeline.Fault(), a.logger
	from, started := a.start, a.started
	a.mu.Unlock()
	logger.Warn("Recovering pipeline from store", zap.NamedError("fault", fault), zap.Int("From", from))
	if !started {
		a.mu.Lock()
		a.pipeline.Reset()
		a.newRun()
		a.mu.Unlock()
		return nil
	}
	return a.replayFrom(ctx, from)
}

func (a *Analyzer) replayFrom(ctx context.Context, from int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pipeline.Reset()
	a.newRun()
	a.start, a.started = from, true

	count := 0
	err := a.store.Range(ctx, from, func(i int, bar structure.Bar) error {
		if _, err := a.pipeline.PushIndexed(bar, i); err != nil {
			return fmt.Errorf("replay bar %d: %w", i, err)
		}
		count++
		return nil
	})
	if err != nil {
		a.logger.Error("Replay failed", zap.Int("From", from), zap.Int("Replayed", count), zap.Error(err))
		return err
	}

	fields := []zap.Field{zap.Int("From", from), zap.Int("Replayed", count), zap.Int("Pens", len(a.pipeline.Pens()))}
	if seg, ok := a.pipeline.CurrentSegment(); ok {
		fields = append(fields, zap.Stringer("CurrentSegment", seg))
	}
	a.logger.Info("Replay finished", fields...)
	return nil
}

// Run 消费 DataEngine 输出的 K 线，直到通道关闭或 ctx 结束
func (a *Analyzer) Run(ctx context.Context, klines <-chan model.KLine) {
	a.logger.Info("Starting structure analysis...")
	for {
		select {
		case <-ctx.Done():
			return
		case k, ok := <-klines:
			if !ok {
				a.logger.Info("KLine stream closed, analyzer stopped")
				return
			}
			// 未完成的 K 线不写入存储，重启后同一周期会以完整的 K 线到达
			if !k.IsFinal {
				a.logger.Info("Skipping unfinished KLine", zap.Time("Start", k.StartTime))
				continue
			}
			_, err := a.Ingest(k.ToBar())
			var inv *structure.InvariantError
			if errors.As(err, &inv) {
				if rerr := a.Recover(ctx); rerr != nil {
					a.logger.Error("Recovery failed, pipeline stays faulted", zap.Error(rerr))
				}
			}
		}
	}
}
