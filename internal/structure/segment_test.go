package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zigzag 把价格拐点串成已完成的笔：第 i 笔从 prices[i-1]@i-1 走到 prices[i]@i
func zigzag(prices ...float64) []Pen {
	pens := make([]Pen, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		dir := Up
		if prices[i] < prices[i-1] {
			dir = Down
		}
		pens = append(pens, Pen{
			ID:           i,
			Direction:    dir,
			StartFractal: i,
			EndFractal:   i + 1,
			StartTime:    int64(i - 1),
			StartPrice:   prices[i-1],
			EndTime:      int64(i),
			EndPrice:     prices[i],
			Status:       PenComplete,
		})
	}
	return pens
}

func feedPens(t *testing.T, b *SegmentBuilder, pens []Pen) []SegmentResult {
	t.Helper()
	out := make([]SegmentResult, 0, len(pens))
	for _, p := range pens {
		res, err := b.OnPenCompleted(p)
		require.NoError(t, err)
		out = append(out, res)
	}
	return out
}

func changes(results []SegmentResult) []SegmentChange {
	out := make([]SegmentChange, len(results))
	for i, r := range results {
		out[i] = r.Change
	}
	return out
}

func TestFeatureSequence_Merge(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		dir    Direction
		want   [][2]float64 // lo, hi
	}{
		{
			name:   "up segment, later element inside earlier",
			prices: []float64{10, 30, 20, 28, 22, 35},
			dir:    Up,
			want:   [][2]float64{{22, 30}},
		},
		{
			name:   "up segment, later element covers earlier",
			prices: []float64{10, 30, 25, 32, 18, 35},
			dir:    Up,
			want:   [][2]float64{{25, 32}},
		},
		{
			name:   "down segment, later element inside earlier",
			prices: []float64{40, 10, 30, 15, 25, 5},
			dir:    Down,
			want:   [][2]float64{{10, 25}},
		},
		{
			name:   "no containment",
			prices: []float64{10, 20, 15, 25, 18, 30},
			dir:    Up,
			want:   [][2]float64{{15, 20}, {18, 25}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := featureSequence(zigzag(tt.prices...), 0, tt.dir, nil)
			got := make([][2]float64, len(seq))
			for i, e := range seq {
				got[i] = [2]float64{e.lo.price, e.hi.price}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeatureSequence_MergeCascades(t *testing.T) {
	// 第三个元素包含第二个，合并后又包含第一个
	pens := zigzag(0, 30, 20, 25, 10, 35, 5)
	seq := featureSequence(pens, 0, Up, nil)

	require.Len(t, seq, 1)
	assert.Equal(t, 35.0, seq[0].hi.price)
	assert.Equal(t, 20.0, seq[0].lo.price)
	assert.Equal(t, 5, seq[0].hi.next, "hi point keeps the pen starting there")
	assert.Equal(t, 2, seq[0].lo.next)
}

func TestFeatureSequence_NoMergeAcrossBoundary(t *testing.T) {
	// 从 35 出发的向下笔包含前一个元素，但 35 是假设分界点，不能向前合并
	pens := zigzag(10, 30, 22, 35, 20, 26, 15)
	boundary := int64(3)

	seq := featureSequence(pens, 0, Up, &boundary)
	require.Len(t, seq, 3)
	assert.Equal(t, [2]float64{22, 30}, [2]float64{seq[0].lo.price, seq[0].hi.price})
	assert.Equal(t, [2]float64{20, 35}, [2]float64{seq[1].lo.price, seq[1].hi.price})
	assert.Equal(t, [2]float64{15, 26}, [2]float64{seq[2].lo.price, seq[2].hi.price})

	merged := featureSequence(pens, 0, Up, nil)
	require.Len(t, merged, 2)
	assert.Equal(t, [2]float64{22, 35}, [2]float64{merged[0].lo.price, merged[0].hi.price})
}

func TestSegmentBuilder_BoundaryElementKeepsItsPredecessor(t *testing.T) {
	b := NewSegmentBuilder()
	res := feedPens(t, b, zigzag(10, 30, 22, 35, 20, 26, 15))

	assert.Equal(t, []SegmentChange{
		SegmentExtended, SegmentNone, SegmentExtended, SegmentNone, SegmentExtended, SegmentClosed,
	}, changes(res))

	last := res[len(res)-1]
	require.NotNil(t, last.Closed)
	assert.Equal(t, []int{1, 3}, last.Closed.Pens)
	assert.Equal(t, 35.0, last.Closed.EndPrice)
	assert.Equal(t, int64(3), last.Closed.EndTime)

	next := last.Segment
	assert.Equal(t, Down, next.Direction)
	assert.Equal(t, []int{4, 6}, next.Pens)
	assert.Equal(t, 35.0, next.StartPrice)
	assert.Equal(t, 15.0, next.EndPrice)
}

func TestSegmentBuilder_FirstPenOpensSegment(t *testing.T) {
	b := NewSegmentBuilder()
	res := feedPens(t, b, zigzag(10, 20))

	require.Equal(t, SegmentExtended, res[0].Change)
	seg := res[0].Segment
	assert.Equal(t, 1, seg.ID)
	assert.Equal(t, Up, seg.Direction)
	assert.Equal(t, []int{1}, seg.Pens)
	assert.Equal(t, SegmentOpen, seg.Status)
}

func TestSegmentBuilder_CloseWithoutGap(t *testing.T) {
	b := NewSegmentBuilder()
	res := feedPens(t, b, zigzag(10, 20, 15, 25, 18, 30, 22, 26, 19))

	assert.Equal(t, []SegmentChange{
		SegmentExtended, SegmentNone, SegmentExtended, SegmentNone,
		SegmentExtended, SegmentNone, SegmentExtended, SegmentClosed,
	}, changes(res))

	last := res[len(res)-1]
	closed := last.Closed
	require.NotNil(t, closed)
	assert.Equal(t, Up, closed.Direction)
	assert.Equal(t, []int{1, 3, 5}, closed.Pens)
	assert.Equal(t, 10.0, closed.StartPrice)
	assert.Equal(t, 30.0, closed.EndPrice)
	assert.Equal(t, int64(5), closed.EndTime)
	assert.Equal(t, SegmentConfirmed, closed.Status)

	next := last.Segment
	require.NotNil(t, next)
	assert.Equal(t, 2, next.ID)
	assert.Equal(t, Down, next.Direction)
	assert.Equal(t, []int{6, 8}, next.Pens)
	assert.Equal(t, 30.0, next.StartPrice)
	assert.Equal(t, int64(5), next.StartTime)
	assert.Equal(t, 19.0, next.EndPrice)
	assert.Equal(t, int64(8), next.EndTime)
	assert.Equal(t, SegmentOpen, next.Status)

	assert.Len(t, b.Segments(), 2)
	cur, ok := b.Current()
	require.True(t, ok)
	assert.Equal(t, *next, cur)
}

func TestSegmentBuilder_GapWaitsForConfirmation(t *testing.T) {
	prices := []float64{10, 20, 15, 25, 22, 40, 30, 35, 28, 33, 24, 29, 25, 32, 27}
	pens := zigzag(prices...)
	b := NewSegmentBuilder()

	// 第 8 笔完成后出现带缺口的顶分型
	res := feedPens(t, b, pens[:8])
	assert.Equal(t, SegmentNone, res[7].Change)
	tm, price, ok := b.Pending()
	require.True(t, ok)
	assert.Equal(t, int64(5), tm)
	assert.Equal(t, 40.0, price)

	// 反向走势的特征序列在第 13 笔形成底分型
	res = feedPens(t, b, pens[8:13])
	assert.Equal(t, []SegmentChange{
		SegmentExtended, SegmentNone, SegmentExtended, SegmentNone, SegmentClosed,
	}, changes(res))

	closed := res[4].Closed
	require.NotNil(t, closed)
	assert.Equal(t, []int{1, 3, 5}, closed.Pens)
	assert.Equal(t, 40.0, closed.EndPrice)
	assert.Equal(t, int64(5), closed.EndTime)

	down := res[4].Segment
	require.NotNil(t, down)
	assert.Equal(t, Down, down.Direction)
	assert.Equal(t, []int{6, 8, 10, 12}, down.Pens)
	assert.Equal(t, 24.0, down.EndPrice)
	assert.Equal(t, int64(10), down.EndTime)
	_, _, ok = b.Pending()
	assert.False(t, ok)

	// 新线段在下一笔完成时按自己的特征序列判断
	res = feedPens(t, b, pens[13:])
	require.Equal(t, SegmentClosed, res[0].Change)
	closed = res[0].Closed
	assert.Equal(t, Down, closed.Direction)
	assert.Equal(t, []int{6, 8, 10}, closed.Pens)
	assert.Equal(t, 24.0, closed.EndPrice)

	up := res[0].Segment
	assert.Equal(t, Up, up.Direction)
	assert.Equal(t, []int{11, 13}, up.Pens)
	assert.Equal(t, 24.0, up.StartPrice)
	assert.Equal(t, 32.0, up.EndPrice)
	assert.Len(t, b.Segments(), 3)
}

func TestSegmentBuilder_NewExtremeInvalidatesPendingBoundary(t *testing.T) {
	pens := zigzag(10, 20, 15, 25, 22, 40, 30, 35, 28, 45)
	b := NewSegmentBuilder()

	feedPens(t, b, pens[:8])
	_, _, ok := b.Pending()
	require.True(t, ok)

	res := feedPens(t, b, pens[8:])
	assert.Equal(t, SegmentExtended, res[0].Change)
	_, _, ok = b.Pending()
	assert.False(t, ok)

	cur, ok := b.Current()
	require.True(t, ok)
	assert.Equal(t, 1, cur.ID)
	assert.Equal(t, 45.0, cur.EndPrice)
	assert.Equal(t, []int{1, 3, 5, 7, 9}, cur.Pens)
}

func TestSegmentBuilder_OppositePenBreaksStart(t *testing.T) {
	b := NewSegmentBuilder()
	res := feedPens(t, b, zigzag(10, 20, 8))

	require.Equal(t, SegmentClosed, res[1].Change)
	assert.Equal(t, []int{1}, res[1].Closed.Pens)
	assert.Equal(t, 20.0, res[1].Closed.EndPrice)
	assert.Equal(t, Down, res[1].Segment.Direction)
	assert.Equal(t, []int{2}, res[1].Segment.Pens)
	assert.Equal(t, 8.0, res[1].Segment.EndPrice)
}

func TestSegmentBuilder_RejectsBrokenPenChain(t *testing.T) {
	pens := zigzag(10, 20, 15)
	b := NewSegmentBuilder()
	feedPens(t, b, pens[:1])

	open := pens[1]
	open.Status = PenOpen
	_, err := b.OnPenCompleted(open)
	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "pen-complete", inv.Invariant)

	_, err = b.OnPenCompleted(pens[0])
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "pens-alternate", inv.Invariant)
}

func TestSegmentBuilder_InRange(t *testing.T) {
	b := NewSegmentBuilder()
	feedPens(t, b, zigzag(10, 20, 15, 25, 18, 30, 22, 26, 19))

	assert.Len(t, b.InRange(0, 2), 1)
	assert.Len(t, b.InRange(5, 5), 2)
	assert.Len(t, b.InRange(6, 100), 1)
	assert.Empty(t, b.InRange(100, 200))
}
