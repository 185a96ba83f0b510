package structure

// DefaultPenMinDistance 两个分型中心 Candle 的最小 ID 差 (一笔至少 5 根合并后的 K 线)
const DefaultPenMinDistance = 4

// PenChange 笔事件类型
type PenChange int

const (
	PenNone PenChange = iota
	PenNew
	PenContinued
)

func (c PenChange) String() string {
	switch c {
	case PenNew:
		return "NEW"
	case PenContinued:
		return "CONTINUED"
	default:
		return "NONE"
	}
}

// PenResult OnFractal 的处理结果
type PenResult struct {
	Change    PenChange
	Pen       *Pen // 当前未完成的笔 (Change != PenNone 时有效)
	Completed *Pen // 被新笔替代而完成的前一笔
}

// PenBuilder 根据分型生成笔。
//
// 新笔：前顶后底、距离足够、后底的高低点都低于前顶 -> 向下笔；前底后顶对称生成向上笔。
// 延续：前顶后顶且后顶更高 -> 向上笔延伸；前底后底且后底更低 -> 向下笔延伸。
// 其它情况暂时无法与噪音区分，直接忽略。
type PenBuilder struct {
	minDistance int
	anchor      *Fractal
	pens        []Pen
}

func NewPenBuilder(minDistance int) *PenBuilder {
	if minDistance <= 0 {
		minDistance = DefaultPenMinDistance
	}
	return &PenBuilder{minDistance: minDistance}
}

// Anchor 最近一个被采纳的分型
func (b *PenBuilder) Anchor() (Fractal, bool) {
	if b.anchor == nil {
		return Fractal{}, false
	}
	return *b.anchor, true
}

// OnFractal 处理一个新确认的分型
func (b *PenBuilder) OnFractal(f Fractal) (PenResult, error) {
	if b.anchor == nil {
		b.setAnchor(f)
		return PenResult{}, nil
	}
	f1 := *b.anchor
	open := b.openPen()

	if f1.Kind != f.Kind {
		if !b.separated(f1, f) {
			return PenResult{}, nil
		}
		distance := f.CenterCandleID - f1.CenterCandleID
		if distance < b.minDistance {
			return PenResult{}, nil
		}
		return b.newPen(f1, f)
	}

	if !improves(f1, f) {
		return PenResult{}, nil
	}

	if open == nil {
		// 第一笔之前，同类更极端的分型直接替换起点
		b.setAnchor(f)
		return PenResult{}, nil
	}

	if open.EndFractal != f1.ID {
		return PenResult{}, invariantf("pen", "anchor-is-pen-end", []int{open.ID, f1.ID},
			"open pen ends at fractal %d but anchor is %d", open.EndFractal, f1.ID)
	}
	open.EndFractal = f.ID
	open.EndTime = f.Time
	open.EndPrice = f.Price()
	b.setAnchor(f)

	pen := *open
	return PenResult{Change: PenContinued, Pen: &pen}, nil
}

func (b *PenBuilder) newPen(f1, f2 Fractal) (PenResult, error) {
	var res PenResult
	if open := b.openPen(); open != nil {
		open.Status = PenComplete
		completed := *open
		res.Completed = &completed
	}

	dir := Down
	if f1.Kind == Bottom {
		dir = Up
	}
	pen := Pen{
		ID:           len(b.pens) + 1,
		Direction:    dir,
		StartFractal: f1.ID,
		EndFractal:   f2.ID,
		StartTime:    f1.Time,
		StartPrice:   f1.Price(),
		EndTime:      f2.Time,
		EndPrice:     f2.Price(),
		Status:       PenOpen,
	}
	b.pens = append(b.pens, pen)
	b.setAnchor(f2)

	res.Change = PenNew
	res.Pen = &pen
	return res, nil
}

// separated 两个分型的区间严格错开：向下笔要求后底的高低点都低于前顶，向上笔对称
func (b *PenBuilder) separated(f1, f2 Fractal) bool {
	if f1.Kind == Top {
		return f1.EnvelopeLow > f2.EnvelopeLow && f1.EnvelopeHigh > f2.EnvelopeHigh
	}
	return f1.EnvelopeLow < f2.EnvelopeLow && f1.EnvelopeHigh < f2.EnvelopeHigh
}

func improves(f1, f2 Fractal) bool {
	if f1.Kind == Top {
		return f2.EnvelopeHigh > f1.EnvelopeHigh
	}
	return f2.EnvelopeLow < f1.EnvelopeLow
}

func (b *PenBuilder) setAnchor(f Fractal) {
	b.anchor = &f
}

func (b *PenBuilder) openPen() *Pen {
	if len(b.pens) == 0 {
		return nil
	}
	last := &b.pens[len(b.pens)-1]
	if last.Status != PenOpen {
		return nil
	}
	return last
}

// LatestOpen 当前未完成的笔
func (b *PenBuilder) LatestOpen() (Pen, bool) {
	if p := b.openPen(); p != nil {
		return *p, true
	}
	return Pen{}, false
}

// ByID 按 ID 查找笔
func (b *PenBuilder) ByID(id int) (Pen, bool) {
	if id < 1 || id > len(b.pens) {
		return Pen{}, false
	}
	return b.pens[id-1], true
}

// Pens 返回所有笔的副本
func (b *PenBuilder) Pens() []Pen {
	out := make([]Pen, len(b.pens))
	copy(out, b.pens)
	return out
}
