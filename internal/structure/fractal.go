package structure

// FractalDetector 在已确定的 Candle 上检测顶底分型。
// 最新一根 Candle 仍可能被包含处理修改，所以只检测倒数第 4~2 根。
type FractalDetector struct {
	fractals []Fractal
}

func NewFractalDetector() *FractalDetector {
	return &FractalDetector{}
}

// OnCandleAppended 只在 Appended 之后调用 (合并不会改变 Candle 数量，不可能形成新的窗口)
func (d *FractalDetector) OnCandleAppended(engine *MergeEngine) (*Fractal, error) {
	n := engine.Len()
	if n < 4 {
		return nil, nil
	}
	k1, k2, k3 := engine.At(n-4), engine.At(n-3), engine.At(n-2)

	if k1.High == k2.High || k2.High == k3.High || k1.Low == k2.Low || k2.Low == k3.Low {
		return nil, invariantf("fractal", "strict-extremes", []int{k1.ID, k2.ID, k3.ID},
			"adjacent candles share an extreme: highs %v/%v/%v lows %v/%v/%v",
			k1.High, k2.High, k3.High, k1.Low, k2.Low, k3.Low)
	}

	var kind FractalKind
	switch {
	case k1.High < k2.High && k2.High > k3.High:
		kind = Top
	case k1.Low > k2.Low && k2.Low < k3.Low:
		kind = Bottom
	default:
		return nil, nil
	}

	f := Fractal{
		ID:             len(d.fractals) + 1,
		Time:           k2.Time,
		Kind:           kind,
		CenterHigh:     k2.High,
		CenterLow:      k2.Low,
		EnvelopeHigh:   max(k1.High, k2.High, k3.High),
		EnvelopeLow:    min(k1.Low, k2.Low, k3.Low),
		CenterCandleID: k2.ID,
		OriginBarIndex: k2.OriginBarIndex,
	}
	d.fractals = append(d.fractals, f)
	return &f, nil
}

// ByID 按 ID 查找分型
func (d *FractalDetector) ByID(id int) (Fractal, bool) {
	if id < 1 || id > len(d.fractals) {
		return Fractal{}, false
	}
	return d.fractals[id-1], true
}

// Since 返回中心 Candle ID >= candleID 的所有分型
func (d *FractalDetector) Since(candleID int) []Fractal {
	out := make([]Fractal, 0)
	for _, f := range d.fractals {
		if f.CenterCandleID >= candleID {
			out = append(out, f)
		}
	}
	return out
}

// Fractals 返回所有分型的副本
func (d *FractalDetector) Fractals() []Fractal {
	out := make([]Fractal, len(d.fractals))
	copy(out, d.fractals)
	return out
}
