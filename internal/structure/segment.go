package structure

/*
线段

特征序列：向上线段的向下笔、向下线段的向上笔。相邻特征序列元素存在包含关系时按线段方向合并：
向上取高高 (高点取高、低点取高)，向下取低低；相等时保留前一个元素的端点。
合并可能使尾部元素与更前的元素形成新的包含，所以合并向前级联，保证序列中不存在包含关系。

特征序列分型与 K 线分型相同，但元素够三个立即判定，不需要等第四个：
元素只有在对应的笔完成之后才会加入。

线段结束：
 1. 顶 (底) 分型的第一、第二元素之间没有缺口：线段在分型的高 (低) 点结束。
 2. 有缺口：以该点为起点的反向走势，其特征序列出现底 (顶) 分型时才确认结束；
    确认之前价格再创新高 (新低) 则假设的分界点作废。
 3. 反向笔跌破 (升破) 线段起点：线段在当前极值处结束。
*/

// SegmentChange 线段事件类型
type SegmentChange int

const (
	SegmentNone SegmentChange = iota
	SegmentExtended
	SegmentClosed
)

func (c SegmentChange) String() string {
	switch c {
	case SegmentExtended:
		return "EXTENDED"
	case SegmentClosed:
		return "CLOSED"
	default:
		return "NONE"
	}
}

// SegmentResult OnPenCompleted 的处理结果
type SegmentResult struct {
	Change  SegmentChange
	Segment *Segment // 当前未结束的线段
	Closed  *Segment // 刚被确认结束的线段
}

// point 价格走势上的一个端点。next 是从该点出发的那一笔在已完成笔列表中的位置。
type point struct {
	time  int64
	price float64
	next  int
}

// element 特征序列元素，hi/lo 是元素的两个端点
type element struct {
	hi point
	lo point
}

func newElement(p Pen, idx int) element {
	start := point{time: p.StartTime, price: p.StartPrice, next: idx}
	end := point{time: p.EndTime, price: p.EndPrice, next: idx + 1}
	if p.Direction == Down {
		return element{hi: start, lo: end}
	}
	return element{hi: end, lo: start}
}

func (e element) contains(o element) bool {
	return e.hi.price >= o.hi.price && e.lo.price <= o.lo.price
}

func mergeElements(a, b element, dir Direction) element {
	out := a
	if dir == Up {
		if b.hi.price > a.hi.price {
			out.hi = b.hi
		}
		if b.lo.price > a.lo.price {
			out.lo = b.lo
		}
		return out
	}
	if b.hi.price < a.hi.price {
		out.hi = b.hi
	}
	if b.lo.price < a.lo.price {
		out.lo = b.lo
	}
	return out
}

// featureSequence 由 pens 中与 dir 反向的笔构成合并后的特征序列。offset 是 pens[0] 在完整列表中的位置。
// boundary 不为空时，从该时刻出发的元素 (假设分界点) 不与之前的元素合并，合并也不越过它。
func featureSequence(pens []Pen, offset int, dir Direction, boundary *int64) []element {
	seq := make([]element, 0, len(pens)/2+1)
	barrier := -1
	for i, p := range pens {
		if p.Direction == dir {
			continue
		}
		seq = append(seq, newElement(p, offset+i))
		if boundary != nil && p.StartTime == *boundary {
			barrier = len(seq) - 1
		}
		for len(seq) >= 2 && len(seq)-1 != barrier {
			a, b := seq[len(seq)-2], seq[len(seq)-1]
			if !a.contains(b) && !b.contains(a) {
				break
			}
			seq = seq[:len(seq)-1]
			seq[len(seq)-1] = mergeElements(a, b, dir)
		}
	}
	return seq
}

// findFractal 在特征序列中寻找线段 dir 的结束分型：向上线段找顶分型，向下线段找底分型。
// extreme 不为空时，分型的极值必须等于线段的极值。
func findFractal(seq []element, dir Direction, extreme *float64) (int, bool) {
	for i := 1; i+1 < len(seq); i++ {
		k1, k2, k3 := seq[i-1], seq[i], seq[i+1]
		var ok bool
		var peak float64
		if dir == Up {
			ok = k1.hi.price < k2.hi.price && k2.hi.price > k3.hi.price
			peak = k2.hi.price
		} else {
			ok = k1.lo.price > k2.lo.price && k2.lo.price < k3.lo.price
			peak = k2.lo.price
		}
		if !ok {
			continue
		}
		if extreme != nil && peak != *extreme {
			continue
		}
		return i, true
	}
	return 0, false
}

// hasGap 分型第一、第二元素之间是否存在缺口
func hasGap(k1, k2 element, dir Direction) bool {
	if dir == Up {
		return k1.hi.price < k2.lo.price
	}
	return k1.lo.price > k2.hi.price
}

func beyond(price, ref float64, dir Direction) bool {
	if dir == Up {
		return price > ref
	}
	return price < ref
}

// SegmentBuilder 由已完成的笔构造线段
type SegmentBuilder struct {
	pens     []Pen // 已完成的笔
	segments []Segment
	first    int    // 当前线段第一笔在 pens 中的位置
	pending  *point // 有缺口时假设的分界点，等待确认
}

func NewSegmentBuilder() *SegmentBuilder {
	return &SegmentBuilder{}
}

// OnPenCompleted 处理一笔刚完成的笔。每次调用最多产生一个线段事件。
func (b *SegmentBuilder) OnPenCompleted(p Pen) (SegmentResult, error) {
	if p.Status != PenComplete {
		return SegmentResult{}, invariantf("segment", "pen-complete", []int{p.ID},
			"segment builder fed a pen with status %s", p.Status)
	}
	if n := len(b.pens); n > 0 {
		last := b.pens[n-1]
		if last.Direction == p.Direction || last.EndTime != p.StartTime {
			return SegmentResult{}, invariantf("segment", "pens-alternate", []int{last.ID, p.ID},
				"pen %d (%s, ends %d) does not continue pen %d (%s, starts %d)",
				p.ID, p.Direction, p.StartTime, last.ID, last.Direction, last.EndTime)
		}
	}

	b.pens = append(b.pens, p)

	if len(b.segments) == 0 {
		b.first = 0
		b.segments = append(b.segments, Segment{
			ID:         1,
			Direction:  p.Direction,
			Pens:       []int{p.ID},
			StartTime:  p.StartTime,
			StartPrice: p.StartPrice,
			EndTime:    p.EndTime,
			EndPrice:   p.EndPrice,
			Status:     SegmentOpen,
		})
		seg := b.segments[0].clone()
		return SegmentResult{Change: SegmentExtended, Segment: &seg}, nil
	}

	cur := b.current()
	extended := false
	if p.Direction == cur.Direction {
		cur.Pens = append(cur.Pens, p.ID)
		if beyond(p.EndPrice, cur.EndPrice, cur.Direction) {
			cur.EndTime = p.EndTime
			cur.EndPrice = p.EndPrice
		}
		extended = true
	}

	var res SegmentResult
	if b.pending != nil {
		res = b.checkPending(p)
	} else {
		res = b.evaluate(p)
	}
	if res.Change == SegmentClosed {
		return res, nil
	}
	if extended {
		seg := b.current().clone()
		return SegmentResult{Change: SegmentExtended, Segment: &seg}, nil
	}
	return SegmentResult{}, nil
}

func (b *SegmentBuilder) current() *Segment {
	return &b.segments[len(b.segments)-1]
}

// breaksStart 反向笔突破线段起点
func (b *SegmentBuilder) breaksStart(p Pen) bool {
	cur := b.current()
	return p.Direction != cur.Direction && beyond(p.EndPrice, cur.StartPrice, p.Direction)
}

// extreme 当前线段的极值点 (同向笔的终点)，相等时取较早的
func (b *SegmentBuilder) extreme() point {
	cur := b.current()
	var ext point
	found := false
	for i := b.first; i < len(b.pens); i++ {
		p := b.pens[i]
		if p.Direction != cur.Direction {
			continue
		}
		if !found || beyond(p.EndPrice, ext.price, cur.Direction) {
			ext = point{time: p.EndTime, price: p.EndPrice, next: i + 1}
			found = true
		}
	}
	return ext
}

func (b *SegmentBuilder) evaluate(p Pen) SegmentResult {
	cur := b.current()
	ext := b.extreme()

	if b.breaksStart(p) {
		return b.closeAt(ext)
	}

	seq := featureSequence(b.pens[b.first:], b.first, cur.Direction, &ext.time)
	i, ok := findFractal(seq, cur.Direction, &ext.price)
	if !ok {
		return SegmentResult{}
	}

	peak := seq[i].hi
	if cur.Direction == Down {
		peak = seq[i].lo
	}
	if hasGap(seq[i-1], seq[i], cur.Direction) {
		b.pending = &peak
		return SegmentResult{}
	}
	return b.closeAt(peak)
}

// checkPending 检查以假设分界点为起点的反向走势是否确认了线段结束
func (b *SegmentBuilder) checkPending(p Pen) SegmentResult {
	cur := b.current()
	peak := *b.pending

	for i := peak.next; i < len(b.pens); i++ {
		q := b.pens[i]
		if q.Direction == cur.Direction && beyond(q.EndPrice, peak.price, cur.Direction) {
			// 创出新的极值，假设的分界点作废
			b.pending = nil
			return b.evaluate(p)
		}
	}

	if b.breaksStart(p) {
		return b.closeAt(peak)
	}

	leg := cur.Direction.opposite()
	seq := featureSequence(b.pens[peak.next:], peak.next, leg, nil)
	if _, ok := findFractal(seq, leg, nil); ok {
		return b.closeAt(peak)
	}
	return SegmentResult{}
}

// closeAt 在 peak 处结束当前线段，之后的笔归入新的反向线段
func (b *SegmentBuilder) closeAt(peak point) SegmentResult {
	cur := b.current()
	split := peak.next

	kept := make([]int, 0, len(cur.Pens))
	for i := b.first; i < split; i++ {
		if b.pens[i].Direction == cur.Direction {
			kept = append(kept, b.pens[i].ID)
		}
	}
	cur.Pens = kept
	cur.EndTime = peak.time
	cur.EndPrice = peak.price
	cur.Status = SegmentConfirmed
	closed := cur.clone()

	next := Segment{
		ID:         len(b.segments) + 1,
		Direction:  cur.Direction.opposite(),
		StartTime:  peak.time,
		StartPrice: peak.price,
		EndTime:    peak.time,
		EndPrice:   peak.price,
		Status:     SegmentOpen,
	}
	for i := split; i < len(b.pens); i++ {
		q := b.pens[i]
		if q.Direction != next.Direction {
			continue
		}
		next.Pens = append(next.Pens, q.ID)
		if len(next.Pens) == 1 || beyond(q.EndPrice, next.EndPrice, next.Direction) {
			next.EndTime = q.EndTime
			next.EndPrice = q.EndPrice
		}
	}

	b.segments = append(b.segments, next)
	b.first = split
	b.pending = nil

	opened := next.clone()
	return SegmentResult{Change: SegmentClosed, Segment: &opened, Closed: &closed}
}

// Pending 等待确认的假设分界点
func (b *SegmentBuilder) Pending() (time int64, price float64, ok bool) {
	if b.pending == nil {
		return 0, 0, false
	}
	return b.pending.time, b.pending.price, true
}

// Current 当前未结束的线段
func (b *SegmentBuilder) Current() (Segment, bool) {
	if len(b.segments) == 0 {
		return Segment{}, false
	}
	return b.current().clone(), true
}

// InRange 返回与 [from, to] 时间区间有交集的线段
func (b *SegmentBuilder) InRange(from, to int64) []Segment {
	out := make([]Segment, 0)
	for _, s := range b.segments {
		if s.StartTime <= to && s.EndTime >= from {
			out = append(out, s.clone())
		}
	}
	return out
}

// Segments 返回所有线段的副本
func (b *SegmentBuilder) Segments() []Segment {
	out := make([]Segment, len(b.segments))
	for i, s := range b.segments {
		out[i] = s.clone()
	}
	return out
}
