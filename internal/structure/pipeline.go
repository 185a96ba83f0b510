package structure

import (
	"fmt"

	"go.uber.org/zap"
)

// State 流水线状态
type State string

const (
	StateRunning State = "RUNNING"
	StateFaulted State = "FAULTED" // 内部不变量被破坏，必须 Reset 后从存储重放
)

// Config 流水线参数
type Config struct {
	PenMinDistance int
}

// Pipeline 包含处理 -> 分型 -> 笔 -> 线段 的单线程流水线。
// 每次 Push 同步执行全部四层后返回，实例之间不共享任何可变状态。
type Pipeline struct {
	cfg    Config
	logger *zap.Logger
	bus    *Bus

	state State
	fault error

	barCount int
	lastTime int64

	merge    *MergeEngine
	fractals *FractalDetector
	pens     *PenBuilder
	segments *SegmentBuilder
}

// New 创建流水线。logger 为 nil 时不输出日志。
func New(cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.PenMinDistance <= 0 {
		cfg.PenMinDistance = DefaultPenMinDistance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:    cfg,
		logger: logger,
		bus:    NewBus(),
	}
	p.Reset()
	return p
}

// Reset 清空全部结构状态，回到初始状态。订阅不受影响。
func (p *Pipeline) Reset() {
	p.state = StateRunning
	p.fault = nil
	p.barCount = 0
	p.lastTime = 0
	p.merge = NewMergeEngine()
	p.fractals = NewFractalDetector()
	p.pens = NewPenBuilder(p.cfg.PenMinDistance)
	p.segments = NewSegmentBuilder()
}

// Validate 检查输入 Bar，不修改任何状态
func (p *Pipeline) Validate(bar Bar) error {
	if p.state == StateFaulted {
		return fmt.Errorf("%w: %v", ErrPipelineFaulted, p.fault)
	}
	if bar.High < bar.Low {
		return fmt.Errorf("%w: time=%d high=%v low=%v", ErrMalformedBar, bar.Time, bar.High, bar.Low)
	}
	if p.barCount > 0 && bar.Time < p.lastTime {
		return fmt.Errorf("%w: %d after %d", ErrNonMonotonicTime, bar.Time, p.lastTime)
	}
	return nil
}

// Push 处理一根新 Bar，原始存储索引按接收顺序自动编号
func (p *Pipeline) Push(bar Bar) ([]Event, error) {
	return p.PushIndexed(bar, p.barCount)
}

// PushIndexed 处理一根新 Bar，barIndex 为该 Bar 在外部存储中的索引
func (p *Pipeline) PushIndexed(bar Bar, barIndex int) ([]Event, error) {
	if err := p.Validate(bar); err != nil {
		return nil, err
	}
	p.barCount++
	p.lastTime = bar.Time

	events := make([]Event, 0, 4)
	before, hadCandle := p.merge.Last()

	// 1. 包含处理
	outcome, err := p.merge.Push(bar, barIndex)
	if err != nil {
		return nil, err
	}
	if ev, ok := p.candleEvent(outcome, before, hadCandle); ok {
		ev.BarIndex = barIndex
		events = append(events, ev)
	}
	if outcome != Appended {
		return p.publish(events), nil
	}

	// 2. 分型
	f, err := p.fractals.OnCandleAppended(p.merge)
	if err != nil {
		return nil, p.setFault(err)
	}
	if f == nil {
		return p.publish(events), nil
	}
	events = append(events, Event{Kind: EventFractal, BarIndex: barIndex, Fractal: f})

	// 3. 笔
	pr, err := p.pens.OnFractal(*f)
	if err != nil {
		return nil, p.setFault(err)
	}
	if pr.Change != PenNone {
		events = append(events, Event{
			Kind:         EventPen,
			BarIndex:     barIndex,
			Pen:          pr.Pen,
			PenChange:    pr.Change,
			CompletedPen: pr.Completed,
		})
	}
	if pr.Completed == nil {
		return p.publish(events), nil
	}

	// 4. 线段
	sr, err := p.segments.OnPenCompleted(*pr.Completed)
	if err != nil {
		return nil, p.setFault(err)
	}
	if sr.Change != SegmentNone {
		events = append(events, Event{
			Kind:          EventSegment,
			BarIndex:      barIndex,
			Segment:       sr.Segment,
			SegmentChange: sr.Change,
			ClosedSegment: sr.Closed,
		})
	}
	return p.publish(events), nil
}

func (p *Pipeline) candleEvent(outcome MergeOutcome, before Candle, hadCandle bool) (Event, bool) {
	if outcome == Appended {
		if n := p.merge.Len(); n >= 2 {
			c := p.merge.At(n - 2)
			return Event{Kind: EventCandle, Candle: &c, Finalized: true}, true
		}
		c, _ := p.merge.Last()
		return Event{Kind: EventCandle, Candle: &c}, true
	}
	after, _ := p.merge.Last()
	if hadCandle && after == before {
		return Event{}, false
	}
	return Event{Kind: EventCandle, Candle: &after}, true
}

func (p *Pipeline) publish(events []Event) []Event {
	if dropped := p.bus.Publish(events); dropped > 0 {
		p.logger.Warn("Event subscriber too slow, dropping events", zap.Int("dropped", dropped))
	}
	return events
}

func (p *Pipeline) setFault(err error) error {
	p.state = StateFaulted
	p.fault = err
	p.logger.Error("!!! Pipeline faulted !!!", zap.Error(err), zap.Int("bars", p.barCount))
	return err
}

// Subscribe 订阅结构事件
func (p *Pipeline) Subscribe(buffer int) <-chan Event {
	return p.bus.Subscribe(buffer)
}

// Close 关闭所有订阅通道
func (p *Pipeline) Close() {
	p.bus.Close()
}

// State 当前状态
func (p *Pipeline) State() State {
	return p.state
}

// Fault 导致 Faulted 状态的错误
func (p *Pipeline) Fault() error {
	return p.fault
}

// BarCount 已接收的 Bar 数量
func (p *Pipeline) BarCount() int {
	return p.barCount
}

// LatestOpenPen 当前未完成的笔
func (p *Pipeline) LatestOpenPen() (Pen, bool) {
	return p.pens.LatestOpen()
}

// FractalsSince 中心 Candle ID >= candleID 的分型
func (p *Pipeline) FractalsSince(candleID int) []Fractal {
	return p.fractals.Since(candleID)
}

// SegmentsInRange 与 [from, to] 有交集的线段
func (p *Pipeline) SegmentsInRange(from, to int64) []Segment {
	return p.segments.InRange(from, to)
}

func (p *Pipeline) Candles() []Candle {
	return p.merge.Candles()
}

func (p *Pipeline) Fractals() []Fractal {
	return p.fractals.Fractals()
}

func (p *Pipeline) Pens() []Pen {
	return p.pens.Pens()
}

func (p *Pipeline) Segments() []Segment {
	return p.segments.Segments()
}

func (p *Pipeline) CurrentSegment() (Segment, bool) {
	return p.segments.Current()
}

// PenAnchor 笔构造器当前采纳的分型
func (p *Pipeline) PenAnchor() (Fractal, bool) {
	return p.pens.Anchor()
}

// PendingBoundary 等待确认的线段分界点
func (p *Pipeline) PendingBoundary() (time int64, price float64, ok bool) {
	return p.segments.Pending()
}
