package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kline-structure/internal/structure"
)

// MemoryStore 进程内的 BarStore
type MemoryStore struct {
	mu   sync.RWMutex
	bars []structure.Bar
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(bar structure.Bar) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.bars); n > 0 && bar.Time < s.bars[n-1].Time {
		return 0, fmt.Errorf("%w: %d after %d", ErrOutOfOrder, bar.Time, s.bars[n-1].Time)
	}
	s.bars = append(s.bars, bar)
	return len(s.bars) - 1, nil
}

func (s *MemoryStore) ByIndex(i int) (structure.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 || i >= len(s.bars) {
		return structure.Bar{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(s.bars))
	}
	return s.bars[i], nil
}

func (s *MemoryStore) TimeToIndex(t int64) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := sort.Search(len(s.bars), func(i int) bool { return s.bars[i].Time >= t })
	return i, i < len(s.bars), nil
}

func (s *MemoryStore) Len() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bars), nil
}

func (s *MemoryStore) Range(ctx context.Context, from int, fn func(i int, bar structure.Bar) error) error {
	s.mu.RLock()
	bars := s.bars[:len(s.bars):len(s.bars)]
	s.mu.RUnlock()

	for i := max(from, 0); i < len(bars); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(i, bars[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
