package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS platforms (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS news_items (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	title            TEXT NOT NULL,
	platform_id      TEXT NOT NULL REFERENCES platforms(id),
	rank             INTEGER NOT NULL,
	url              TEXT NOT NULL DEFAULT '',
	mobile_url       TEXT NOT NULL DEFAULT '',
	first_crawl_time TEXT NOT NULL,
	last_crawl_time  TEXT NOT NULL,
	crawl_count      INTEGER NOT NULL DEFAULT 1,
	created_at       TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_news_items_platform_url ON news_items(platform_id, url);
CREATE INDEX IF NOT EXISTS idx_news_items_last_crawl ON news_items(last_crawl_time);

CREATE TABLE IF NOT EXISTS rank_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	news_item_id INTEGER NOT NULL REFERENCES news_items(id) ON DELETE CASCADE,
	rank         INTEGER NOT NULL,
	crawl_time   TEXT NOT NULL,
	created_at   TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_rank_history_item ON rank_history(news_item_id);

CREATE TABLE IF NOT EXISTS title_changes (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	news_item_id INTEGER NOT NULL REFERENCES news_items(id) ON DELETE CASCADE,
	old_title    TEXT NOT NULL,
	new_title    TEXT NOT NULL,
	changed_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS crawl_records (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	crawl_time  TEXT NOT NULL UNIQUE,
	total_items INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS crawl_source_status (
	crawl_record_id INTEGER NOT NULL REFERENCES crawl_records(id) ON DELETE CASCADE,
	platform_id     TEXT NOT NULL,
	status          TEXT NOT NULL CHECK (status IN ('success', 'failed')),
	PRIMARY KEY (crawl_record_id, platform_id)
);

CREATE TABLE IF NOT EXISTS push_records (
	date        TEXT PRIMARY KEY,
	pushed      INTEGER NOT NULL DEFAULT 0,
	push_time   TEXT,
	report_type TEXT,
	created_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

type openConfig struct {
	journalMode string
	busyTimeout int
	mkdirAll    bool
}

type openOption func(*openConfig)

// withJournalMode задаёт PRAGMA journal_mode (по умолчанию WAL).
func withJournalMode(mode string) openOption { return func(c *openConfig) { c.journalMode = mode } }

func withMkdirAll() openOption { return func(c *openConfig) { c.mkdirAll = true } }

// openStore открывает базу даты, применяет PRAGMA и схему.
// Соединение одно: PRAGMA действуют на соединение, а запись в день редкая.
func openStore(ctx context.Context, path string, opts ...openOption) (*sql.DB, error) {
	cfg := openConfig{journalMode: "WAL", busyTimeout: 10_000}
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_mode = %s", cfg.journalMode),
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
