package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func top(id, candle int, low, high float64) Fractal {
	return Fractal{
		ID: id, Time: int64(candle), Kind: Top,
		CenterHigh: high, CenterLow: low + 1,
		EnvelopeHigh: high, EnvelopeLow: low,
		CenterCandleID: candle,
	}
}

func bottom(id, candle int, low, high float64) Fractal {
	return Fractal{
		ID: id, Time: int64(candle), Kind: Bottom,
		CenterHigh: high - 1, CenterLow: low,
		EnvelopeHigh: high, EnvelopeLow: low,
		CenterCandleID: candle,
	}
}

func feed(t *testing.T, b *PenBuilder, fractals ...Fractal) []PenResult {
	t.Helper()
	out := make([]PenResult, 0, len(fractals))
	for _, f := range fractals {
		res, err := b.OnFractal(f)
		require.NoError(t, err)
		out = append(out, res)
	}
	return out
}

func TestPenBuilder_TooCloseIsIgnored(t *testing.T) {
	b := NewPenBuilder(DefaultPenMinDistance)
	f1 := top(1, 3, 10, 20)
	res := feed(t, b, f1, bottom(2, 6, 5, 15))

	assert.Equal(t, PenNone, res[1].Change)
	assert.Empty(t, b.Pens())
	anchor, ok := b.Anchor()
	require.True(t, ok)
	assert.Equal(t, f1, anchor)
}

func TestPenBuilder_OverlappingFractalsAreIgnored(t *testing.T) {
	b := NewPenBuilder(DefaultPenMinDistance)
	res := feed(t, b, top(1, 3, 10, 20), bottom(2, 8, 12, 18))

	assert.Equal(t, PenNone, res[1].Change)
	assert.Empty(t, b.Pens())
}

func TestPenBuilder_NewPenCompletesPrevious(t *testing.T) {
	b := NewPenBuilder(DefaultPenMinDistance)
	res := feed(t, b, top(1, 3, 10, 20), bottom(2, 8, 5, 15))

	require.Equal(t, PenNew, res[1].Change)
	assert.Nil(t, res[1].Completed)
	down := res[1].Pen
	require.NotNil(t, down)
	assert.Equal(t, 1, down.ID)
	assert.Equal(t, Down, down.Direction)
	assert.Equal(t, 1, down.StartFractal)
	assert.Equal(t, 2, down.EndFractal)
	assert.Equal(t, 20.0, down.StartPrice)
	assert.Equal(t, 5.0, down.EndPrice)
	assert.Equal(t, PenOpen, down.Status)

	res = feed(t, b, top(3, 13, 12, 25))
	require.Equal(t, PenNew, res[0].Change)
	require.NotNil(t, res[0].Completed)
	assert.Equal(t, 1, res[0].Completed.ID)
	assert.Equal(t, PenComplete, res[0].Completed.Status)

	up := res[0].Pen
	assert.Equal(t, 2, up.ID)
	assert.Equal(t, Up, up.Direction)
	assert.Equal(t, 2, up.StartFractal)
	assert.Equal(t, 3, up.EndFractal)
	assert.Equal(t, down.EndTime, up.StartTime)

	open, ok := b.LatestOpen()
	require.True(t, ok)
	assert.Equal(t, 2, open.ID)
	first, ok := b.ByID(1)
	require.True(t, ok)
	assert.Equal(t, PenComplete, first.Status)
}

func TestPenBuilder_ContinuationOnlyOnNewExtreme(t *testing.T) {
	b := NewPenBuilder(DefaultPenMinDistance)
	feed(t, b, top(1, 3, 10, 20), bottom(2, 8, 5, 15))

	res := feed(t, b, bottom(3, 10, 3, 9))
	require.Equal(t, PenContinued, res[0].Change)
	assert.Equal(t, 1, res[0].Pen.ID)
	assert.Equal(t, 3, res[0].Pen.EndFractal)
	assert.Equal(t, 3.0, res[0].Pen.EndPrice)
	assert.Equal(t, int64(10), res[0].Pen.EndTime)

	// 不更低的底分型不改变笔
	res = feed(t, b, bottom(4, 12, 4, 8))
	assert.Equal(t, PenNone, res[0].Change)
	// 距离不够的顶分型也不改变
	res = feed(t, b, top(5, 13, 6, 14))
	assert.Equal(t, PenNone, res[0].Change)

	open, ok := b.LatestOpen()
	require.True(t, ok)
	assert.Equal(t, 3.0, open.EndPrice)
	assert.Len(t, b.Pens(), 1)

	anchor, _ := b.Anchor()
	assert.Equal(t, 3, anchor.ID)
}

func TestPenBuilder_HigherTopReplacesAnchorBeforeFirstPen(t *testing.T) {
	b := NewPenBuilder(DefaultPenMinDistance)
	res := feed(t, b, top(1, 3, 10, 20), top(2, 6, 12, 22), top(3, 9, 11, 21))

	for _, r := range res {
		assert.Equal(t, PenNone, r.Change)
	}
	anchor, ok := b.Anchor()
	require.True(t, ok)
	assert.Equal(t, 2, anchor.ID)

	res = feed(t, b, bottom(4, 10, 4, 14))
	require.Equal(t, PenNew, res[0].Change)
	assert.Equal(t, 2, res[0].Pen.StartFractal)
	assert.Equal(t, 22.0, res[0].Pen.StartPrice)
}

func TestPenBuilder_MinDistanceIsConfigurable(t *testing.T) {
	b := NewPenBuilder(2)
	res := feed(t, b, top(1, 3, 10, 20), bottom(2, 5, 5, 15))
	assert.Equal(t, PenNew, res[1].Change)

	assert.Equal(t, DefaultPenMinDistance, NewPenBuilder(0).minDistance)
}
