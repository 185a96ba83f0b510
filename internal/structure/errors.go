package structure

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedBar high < low 的输入
	ErrMalformedBar = errors.New("malformed bar: high < low")
	// ErrNonMonotonicTime 时间戳倒退的输入
	ErrNonMonotonicTime = errors.New("non-monotonic bar time")
	// ErrPipelineFaulted 出现内部不变量错误后，Reset 之前拒绝一切输入
	ErrPipelineFaulted = errors.New("pipeline faulted, reset required")
)

// InvariantError 内部不变量被破坏。这是逻辑错误，不是可恢复的输入问题。
type InvariantError struct {
	Invariant string
	Layer     string
	RecordIDs []int
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant %q violated in %s (records %v): %s", e.Invariant, e.Layer, e.RecordIDs, e.Detail)
}

func invariantf(layer, invariant string, ids []int, format string, args ...any) *InvariantError {
	return &InvariantError{
		Invariant: invariant,
		Layer:     layer,
		RecordIDs: ids,
		Detail:    fmt.Sprintf(format, args...),
	}
}
