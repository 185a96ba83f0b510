package structure

import (
	"fmt"
	"sync"
)

// EventKind 结构事件所属的层级
type EventKind int

const (
	EventCandle EventKind = iota
	EventFractal
	EventPen
	EventSegment
)

func (k EventKind) String() string {
	switch k {
	case EventCandle:
		return "CANDLE"
	case EventFractal:
		return "FRACTAL"
	case EventPen:
		return "PEN"
	case EventSegment:
		return "SEGMENT"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event 一次 Push 产生的结构更新。每次 Push 每个层级最多产生一个事件。
type Event struct {
	Kind     EventKind
	BarIndex int // 触发该事件的 Bar 在存储中的索引

	// EventCandle: Finalized 为 true 时 Candle 是刚刚确定的那根，否则是被修改或新加入的临时 Candle
	Candle    *Candle
	Finalized bool

	// EventFractal
	Fractal *Fractal

	// EventPen
	Pen          *Pen
	PenChange    PenChange
	CompletedPen *Pen

	// EventSegment
	Segment       *Segment
	SegmentChange SegmentChange
	ClosedSegment *Segment
}

// Bus 把事件分发给订阅者。发送不阻塞，订阅者处理不过来时事件被丢弃并计数；
// Push 的返回值才是完整、确定的事件序列。
type Bus struct {
	mu      sync.Mutex
	subs    []chan Event
	dropped int
	closed  bool
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe 注册一个带缓冲的订阅通道
func (b *Bus) Subscribe(buffer int) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish 返回本次被丢弃的事件数
func (b *Bus) Publish(events []Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}
	dropped := 0
	for _, ev := range events {
		for _, ch := range b.subs {
			select {
			case ch <- ev:
			default:
				dropped++
			}
		}
	}
	b.dropped += dropped
	return dropped
}

// Dropped 累计丢弃的事件数
func (b *Bus) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close 关闭所有订阅通道
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
