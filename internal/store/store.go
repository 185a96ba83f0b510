package store

import (
	"context"
	"errors"

	"kline-structure/internal/structure"
)

var (
	// ErrIndexOutOfRange ByIndex 越界
	ErrIndexOutOfRange = errors.New("bar index out of range")
	// ErrOutOfOrder 追加的 Bar 时间早于最后一根
	ErrOutOfOrder = errors.New("bar time before last stored bar")
)

// BarStore 只追加、按时间有序的原始 Bar 存储。索引从 0 开始连续编号。
type BarStore interface {
	Append(bar structure.Bar) (int, error)
	ByIndex(i int) (structure.Bar, error)
	// TimeToIndex 返回第一根 Time >= t 的 Bar 的索引，没有时返回 false
	TimeToIndex(t int64) (int, bool, error)
	Len() (int, error)
	// Range 从 from 开始按顺序遍历，fn 返回错误时停止
	Range(ctx context.Context, from int, fn func(i int, bar structure.Bar) error) error
	Close() error
}
