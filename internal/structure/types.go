package structure

import "fmt"

// Bar 未经包含处理的原始 K 线 (时间为毫秒时间戳)
type Bar struct {
	Time  int64
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Candle 经过包含处理后的 K 线。
// 序列中最后一根是临时的 (provisional)，其余全部已确定且不再变化。
type Candle struct {
	ID             int // 严格递增，仅用于计算分型之间的距离
	Time           int64
	High           float64
	Low            float64
	OriginBarIndex int // 设置当前极值的原始 Bar 在存储中的索引
}

func (c Candle) contains(b Bar) bool {
	return c.High >= b.High && c.Low <= b.Low
}

func (c Candle) containedBy(b Bar) bool {
	return b.High >= c.High && b.Low <= c.Low
}

// FractalKind 分型类型
type FractalKind int

const (
	Top FractalKind = iota
	Bottom
)

func (k FractalKind) String() string {
	if k == Top {
		return "TOP"
	}
	return "BOTTOM"
}

// Fractal 由三根已确定 Candle 组成的顶底分型，创建后不可变
type Fractal struct {
	ID             int
	Time           int64
	Kind           FractalKind
	CenterHigh     float64
	CenterLow      float64
	EnvelopeHigh   float64 // 三根 K 线的最高点
	EnvelopeLow    float64 // 三根 K 线的最低点
	CenterCandleID int
	OriginBarIndex int
}

// Price 分型的极值价格：顶分型取高点，底分型取低点
func (f Fractal) Price() float64 {
	if f.Kind == Top {
		return f.CenterHigh
	}
	return f.CenterLow
}

// Direction 笔和线段的方向
type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "UP"
	}
	return "DOWN"
}

func (d Direction) opposite() Direction {
	if d == Up {
		return Down
	}
	return Up
}

// PenStatus 笔的状态
type PenStatus int

const (
	PenOpen PenStatus = iota
	PenComplete
)

func (s PenStatus) String() string {
	if s == PenOpen {
		return "OPEN"
	}
	return "COMPLETE"
}

// Pen 两个分型之间的一笔。
// StartFractal/EndFractal 是分型 ID (弱引用)，价格和时间字段由分型派生。
type Pen struct {
	ID           int
	Direction    Direction
	StartFractal int
	EndFractal   int
	StartTime    int64
	StartPrice   float64
	EndTime      int64
	EndPrice     float64
	Status       PenStatus
}

func (p Pen) String() string {
	return fmt.Sprintf("PEN#%d %s %.4f@%d -> %.4f@%d [%s]",
		p.ID, p.Direction, p.StartPrice, p.StartTime, p.EndPrice, p.EndTime, p.Status)
}

// SegmentStatus 线段的状态
type SegmentStatus int

const (
	SegmentOpen SegmentStatus = iota
	SegmentConfirmed
)

func (s SegmentStatus) String() string {
	if s == SegmentOpen {
		return "OPEN"
	}
	return "CONFIRMED"
}

// Segment 由同向笔组成的线段，边界由特征序列分型确定。
// Pens 只保存与线段同方向的笔 ID，按时间顺序排列。
type Segment struct {
	ID         int
	Direction  Direction
	Pens       []int
	StartTime  int64
	StartPrice float64
	EndTime    int64
	EndPrice   float64
	Status     SegmentStatus
}

func (s Segment) String() string {
	return fmt.Sprintf("SEGMENT#%d %s %.4f@%d -> %.4f@%d pens=%d [%s]",
		s.ID, s.Direction, s.StartPrice, s.StartTime, s.EndPrice, s.EndTime, len(s.Pens), s.Status)
}

func (s Segment) clone() Segment {
	out := s
	out.Pens = append([]int(nil), s.Pens...)
	return out
}
