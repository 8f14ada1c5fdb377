package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/maine/trendradar/internal/news"
)

const dbFileName = "news.db"

// LocalOptions - параметры локального бэкенда.
type LocalOptions struct {
	DataDir  string
	TXT      bool
	Location *time.Location
	Clock    func() time.Time
	Logger   zerolog.Logger
}

// LocalBackend хранит dataDir/{date}/news.db. Соединение открывается лениво
// и живёт до Close.
type LocalBackend struct {
	dataDir string
	txt     bool
	loc     *time.Location
	now     func() time.Time
	log     zerolog.Logger

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

var _ Backend = (*LocalBackend)(nil)

// NewLocalBackend создаёт локальный бэкенд.
func NewLocalBackend(opts LocalOptions) *LocalBackend {
	if opts.DataDir == "" {
		opts.DataDir = "output"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &LocalBackend{
		dataDir: opts.DataDir,
		txt:     opts.TXT,
		loc:     opts.Location,
		now:     opts.Clock,
		log:     opts.Logger,
		dbs:     make(map[string]*sql.DB),
	}
}

// Name реализует Backend.
func (l *LocalBackend) Name() string { return BackendLocal }

func (l *LocalBackend) dbPath(date string) string {
	return filepath.Join(l.dataDir, date, dbFileName)
}

// db возвращает соединение даты. Без create отсутствующая база даёт (nil, nil).
func (l *LocalBackend) db(ctx context.Context, date string, create bool) (*sql.DB, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if db, ok := l.dbs[date]; ok {
		return db, nil
	}

	path := l.dbPath(date)
	if !create && !fileExists(path) {
		return nil, nil
	}

	db, err := openStore(ctx, path, withMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", date, err)
	}
	l.dbs[date] = db
	return db, nil
}

// SaveBatch реализует Backend.
func (l *LocalBackend) SaveBatch(ctx context.Context, batch *news.Batch) error {
	db, err := l.db(ctx, batch.Date, true)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	st, err := mergeBatch(ctx, db, batch, l.log)
	if err != nil {
		return fmt.Errorf("%w: save %s: %w", ErrPersistence, batch.Date, err)
	}

	l.log.Info().
		Str("date", batch.Date).
		Str("crawl_time", batch.CrawlTime).
		Int("inserted", st.Inserted).
		Int("updated", st.Updated).
		Int("title_changes", st.TitleChanged).
		Int("skipped", st.Skipped).
		Msg("batch saved")
	return nil
}

// GetAllForDate реализует Backend.
func (l *LocalBackend) GetAllForDate(ctx context.Context, date string) (*news.Batch, error) {
	db, err := l.db(ctx, date, false)
	if err != nil || db == nil {
		return nil, err
	}
	return readBatch(ctx, db, date, false)
}

// GetLatestCrawl реализует Backend.
func (l *LocalBackend) GetLatestCrawl(ctx context.Context, date string) (*news.Batch, error) {
	db, err := l.db(ctx, date, false)
	if err != nil || db == nil {
		return nil, err
	}
	return readBatch(ctx, db, date, true)
}

// DetectNewTitles реализует Backend.
func (l *LocalBackend) DetectNewTitles(ctx context.Context, batch *news.Batch) (news.NewTitles, error) {
	return detectNewTitles(ctx, batch, l.GetAllForDate)
}

// IsFirstCrawlToday реализует Backend.
func (l *LocalBackend) IsFirstCrawlToday(ctx context.Context, date string) (bool, error) {
	db, err := l.db(ctx, date, false)
	if err != nil {
		return false, err
	}
	if db == nil {
		return true, nil
	}
	n, err := crawlCount(ctx, db)
	if err != nil {
		return false, err
	}
	return n <= 1, nil
}

// CrawlTimes реализует Backend.
func (l *LocalBackend) CrawlTimes(ctx context.Context, date string) ([]string, error) {
	db, err := l.db(ctx, date, false)
	if err != nil || db == nil {
		return nil, err
	}
	return crawlTimes(ctx, db)
}

// ListDates реализует Backend.
func (l *LocalBackend) ListDates(ctx context.Context) ([]string, error) {
	return listDateDirs(l.dataDir, l.loc)
}

// HasPushed реализует Backend.
func (l *LocalBackend) HasPushed(ctx context.Context, date string) (bool, error) {
	db, err := l.db(ctx, date, false)
	if err != nil || db == nil {
		return false, err
	}
	return hasPushed(ctx, db, date)
}

// RecordPush реализует Backend.
func (l *LocalBackend) RecordPush(ctx context.Context, reportType, date string) error {
	db, err := l.db(ctx, date, true)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := recordPush(ctx, db, reportType, date, l.now().In(l.loc).Format("15:04:05")); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// SaveSnapshot реализует Backend.
func (l *LocalBackend) SaveSnapshot(ctx context.Context, batch *news.Batch) (string, error) {
	if !l.txt {
		return "", nil
	}
	path, err := writeSnapshot(l.dataDir, batch)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return path, nil
}

// Cleanup реализует Backend: удаляет каталоги дат целиком.
func (l *LocalBackend) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	// Открытые базы удаляемых дат закрываются заранее.
	cutoff := cutoffDate(l.now(), l.loc, retentionDays).Format(news.DateLayout)
	l.mu.Lock()
	for date, db := range l.dbs {
		if date < cutoff {
			_ = db.Close()
			delete(l.dbs, date)
		}
	}
	l.mu.Unlock()

	removed, err := removeExpiredDirs(l.dataDir, l.now(), l.loc, retentionDays)
	for _, name := range removed {
		l.log.Info().Str("dir", name).Msg("removed expired local data")
	}
	return len(removed), err
}

// Close закрывает все открытые базы.
func (l *LocalBackend) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for date, db := range l.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", date, err)
		}
		delete(l.dbs, date)
	}
	return firstErr
}
