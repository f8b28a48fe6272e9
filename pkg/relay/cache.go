package relay

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const DefaultCacheSize = 10

// Record is one finished summary kept on this machine. The local cache is
// independent of the durable history on the server.
type Record struct {
	PatientName string
	DateOfVisit string
	Summary     string
	CreatedAt   time.Time
}

// LocalCache keeps the most recent N records.
type LocalCache interface {
	Put(ctx context.Context, rec Record) error
	Recent(ctx context.Context) ([]Record, error)
	Close() error
}

// MemoryCache is a bounded in-process cache, newest first.
type MemoryCache struct {
	mu      sync.Mutex
	size    int
	records []Record
}

func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &MemoryCache{size: size}
}

func (c *MemoryCache) Put(ctx context.Context, rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append([]Record{rec}, c.records...)
	if len(c.records) > c.size {
		c.records = c.records[:c.size]
	}
	return nil
}

func (c *MemoryCache) Recent(ctx context.Context) ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...), nil
}

func (c *MemoryCache) Close() error { return nil }

// SQLiteCache persists the recents list in a local SQLite file.
type SQLiteCache struct {
	db   *sql.DB
	size int
}

func OpenSQLiteCache(path string, size int) (*SQLiteCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	stmts := []string{
		"PRAGMA busy_timeout = 5000",
		`CREATE TABLE IF NOT EXISTS recent_summaries (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            patient_name TEXT NOT NULL,
            date_of_visit TEXT NOT NULL,
            summary TEXT NOT NULL,
            created_at TEXT NOT NULL
        )`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache: %w", err)
		}
	}
	return &SQLiteCache{db: db, size: size}, nil
}

func (c *SQLiteCache) Put(ctx context.Context, rec Record) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO recent_summaries (patient_name, date_of_visit, summary, created_at) VALUES (?, ?, ?, ?)`,
		rec.PatientName, rec.DateOfVisit, rec.Summary, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recent_summaries WHERE id NOT IN (SELECT id FROM recent_summaries ORDER BY id DESC LIMIT ?)`,
		c.size,
	); err != nil {
		return fmt.Errorf("prune records: %w", err)
	}
	return tx.Commit()
}

func (c *SQLiteCache) Recent(ctx context.Context) ([]Record, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT patient_name, date_of_visit, summary, created_at FROM recent_summaries ORDER BY id DESC LIMIT ?`,
		c.size,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			createdAt string
		)
		if err := rows.Scan(&rec.PatientName, &rec.DateOfVisit, &rec.Summary, &createdAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (c *SQLiteCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
