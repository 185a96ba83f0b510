package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"kline-structure/internal/structure"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore 把原始 Bar 持久化到 SQLite，每个 series (品种+周期) 一段独立的索引
type SQLiteStore struct {
	db     *sql.DB
	series string
	logger *zap.Logger

	mu       sync.Mutex
	n        int   // 已存储的 Bar 数量
	lastTime int64 // 最后一根 Bar 的时间
}

// OpenSQLiteStore 打开 (或创建) 数据库并执行迁移
func OpenSQLiteStore(dbPath, series string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 写入串行化，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	// 多个 series 共用一个文件时等待其它连接的写锁
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, series: series, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.loadTail(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load tail: %w", err)
	}

	logger.Info("SQLite bar store opened",
		zap.String("Path", dbPath), zap.String("Series", series), zap.Int("Bars", s.n))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			series TEXT    NOT NULL,
			idx    INTEGER NOT NULL,
			time   INTEGER NOT NULL,
			open   REAL,
			high   REAL,
			low    REAL,
			close  REAL,
			PRIMARY KEY (series, idx)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bars_time ON bars(series, time)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) loadTail() error {
	row := s.db.QueryRow(`SELECT idx, time FROM bars WHERE series = ? ORDER BY idx DESC LIMIT 1`, s.series)
	var idx int
	var t int64
	if err := row.Scan(&idx, &t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	s.n = idx + 1
	s.lastTime = t
	return nil
}

func (s *SQLiteStore) Append(bar structure.Bar) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.n > 0 && bar.Time < s.lastTime {
		return 0, fmt.Errorf("%w: %d after %d", ErrOutOfOrder, bar.Time, s.lastTime)
	}
	idx := s.n
	_, err := s.db.Exec(`INSERT INTO bars (series, idx, time, open, high, low, close) VALUES (?,?,?,?,?,?,?)`,
		s.series, idx, bar.Time, bar.Open, bar.High, bar.Low, bar.Close)
	if err != nil {
		return 0, fmt.Errorf("insert bar %d: %w", idx, err)
	}
	s.n++
	s.lastTime = bar.Time
	return idx, nil
}

func (s *SQLiteStore) ByIndex(i int) (structure.Bar, error) {
	var b structure.Bar
	err := s.db.QueryRow(`SELECT time, open, high, low, close FROM bars WHERE series = ? AND idx = ?`, s.series, i).
		Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close)
	if errors.Is(err, sql.ErrNoRows) {
		return structure.Bar{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	if err != nil {
		return structure.Bar{}, fmt.Errorf("query bar %d: %w", i, err)
	}
	return b, nil
}

func (s *SQLiteStore) TimeToIndex(t int64) (int, bool, error) {
	var idx int
	err := s.db.QueryRow(`SELECT idx FROM bars WHERE series = ? AND time >= ? ORDER BY idx LIMIT 1`, s.series, t).
		Scan(&idx)
	if errors.Is(err, sql.ErrNoRows) {
		n, _ := s.Len()
		return n, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query time %d: %w", t, err)
	}
	return idx, true, nil
}

func (s *SQLiteStore) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n, nil
}

func (s *SQLiteStore) Range(ctx context.Context, from int, fn func(i int, bar structure.Bar) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, time, open, high, low, close FROM bars WHERE series = ? AND idx >= ? ORDER BY idx`,
		s.series, max(from, 0))
	if err != nil {
		return fmt.Errorf("range from %d: %w", from, err)
	}

	// 先读出全部结果再回调，fn 中可以继续 Append
	type item struct {
		idx int
		bar structure.Bar
	}
	var items []item
	for rows.Next() {
		var it item
		if err := rows.Scan(&it.idx, &it.bar.Time, &it.bar.Open, &it.bar.High, &it.bar.Low, &it.bar.Close); err != nil {
			rows.Close()
			return fmt.Errorf("scan bar: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(it.idx, it.bar); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.logger.Info("Closing SQLite bar store", zap.String("Series", s.series))
	return s.db.Close()
}
