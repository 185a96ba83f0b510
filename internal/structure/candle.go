package structure

// MergeOutcome 包含处理的结果
type MergeOutcome int

const (
	Merged MergeOutcome = iota
	Appended
)

func (o MergeOutcome) String() string {
	if o == Merged {
		return "MERGED"
	}
	return "APPENDED"
}

// MergeEngine 负责去除相邻 K 线之间的包含关系。
// 只有最后一根 Candle 可以被修改，之前的 Candle 一经确定便不再变化。
type MergeEngine struct {
	candles []Candle
	nextID  int
}

// NewMergeEngine 创建包含处理引擎，Candle ID 从 1 开始
func NewMergeEngine() *MergeEngine {
	return &MergeEngine{nextID: 1}
}

// Push 处理一根新的 Bar。barIndex 是该 Bar 在原始存储中的索引。
func (m *MergeEngine) Push(bar Bar, barIndex int) (MergeOutcome, error) {
	if bar.High < bar.Low {
		return Merged, ErrMalformedBar
	}

	switch len(m.candles) {
	case 0:
		m.appendBar(bar, barIndex)
		return Appended, nil

	case 1:
		// 起始两根就存在包含关系时没有趋势可以参考：
		// 第一根包含第二根则忽略新 Bar；第二根包含第一根则丢弃第一根，从新 Bar 重新开始
		first := m.candles[0]
		if first.contains(bar) {
			return Merged, nil
		}
		if first.containedBy(bar) {
			m.candles[0] = Candle{
				ID:             first.ID,
				Time:           bar.Time,
				High:           bar.High,
				Low:            bar.Low,
				OriginBarIndex: barIndex,
			}
			return Merged, nil
		}
		m.appendBar(bar, barIndex)
		return Appended, nil
	}

	n := len(m.candles)
	prev := m.candles[n-2]
	last := &m.candles[n-1]

	if !last.contains(bar) && !last.containedBy(bar) {
		m.appendBar(bar, barIndex)
		return Appended, nil
	}

	doji := bar.High == bar.Low // 一字板
	if prev.High+prev.Low > last.High+last.Low {
		// 下包含，取低低
		high := min(last.High, bar.High)
		low := min(last.Low, bar.Low)
		if doji && low == bar.Low {
			return Merged, nil
		}
		if bar.Low < last.Low {
			last.Time = bar.Time
			last.OriginBarIndex = barIndex
		}
		last.High, last.Low = high, low
	} else {
		// 上包含，取高高
		high := max(last.High, bar.High)
		low := max(last.Low, bar.Low)
		if doji && high == bar.High {
			return Merged, nil
		}
		if bar.High > last.High {
			last.Time = bar.Time
			last.OriginBarIndex = barIndex
		}
		last.High, last.Low = high, low
	}
	return Merged, nil
}

func (m *MergeEngine) appendBar(bar Bar, barIndex int) {
	m.candles = append(m.candles, Candle{
		ID:             m.nextID,
		Time:           bar.Time,
		High:           bar.High,
		Low:            bar.Low,
		OriginBarIndex: barIndex,
	})
	m.nextID++
}

// Len 当前 Candle 数量 (包含最后一根临时 Candle)
func (m *MergeEngine) Len() int {
	return len(m.candles)
}

// At 按位置返回 Candle 的副本
func (m *MergeEngine) At(i int) Candle {
	return m.candles[i]
}

// Last 返回最后一根 (临时) Candle
func (m *MergeEngine) Last() (Candle, bool) {
	if len(m.candles) == 0 {
		return Candle{}, false
	}
	return m.candles[len(m.candles)-1], true
}

// ByID 按 ID 查找 Candle
func (m *MergeEngine) ByID(id int) (Candle, bool) {
	if len(m.candles) == 0 {
		return Candle{}, false
	}
	// ID 连续递增，位置可以直接换算
	i := id - m.candles[0].ID
	if i < 0 || i >= len(m.candles) {
		return Candle{}, false
	}
	return m.candles[i], true
}

// Candles 返回所有 Candle 的副本
func (m *MergeEngine) Candles() []Candle {
	out := make([]Candle, len(m.candles))
	copy(out, m.candles)
	return out
}
