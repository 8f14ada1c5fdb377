package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/maine/trendradar/internal/news"
)

const (
	remotePrefix      = "news/"
	sqliteContentType = "application/x-sqlite3"
)

// RemoteKey - ключ объекта даты.
func RemoteKey(date string) string {
	return remotePrefix + date + ".db"
}

// RemoteOptions - параметры удалённого бэкенда.
type RemoteOptions struct {
	TXT      bool
	TempDir  string // пусто - создаётся временный каталог trendradar_*
	Location *time.Location
	Clock    func() time.Time
	Logger   zerolog.Logger
}

// RemoteBackend держит базу даты в объектном хранилище.
//
// Каждая запись: скачать базу во временный каталог (если её ещё нет), слить
// локально, выгрузить файл целиком. Это read-modify-write всего файла без
// блокировок: два процесса, пишущие одну дату, потеряют обновления друг друга.
type RemoteBackend struct {
	objects ObjectStore
	tempDir string
	txt     bool
	loc     *time.Location
	now     func() time.Time
	log     zerolog.Logger

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

var _ Backend = (*RemoteBackend)(nil)

// NewRemoteBackend создаёт удалённый бэкенд с собственным временным каталогом.
func NewRemoteBackend(objects ObjectStore, opts RemoteOptions) (*RemoteBackend, error) {
	if objects == nil {
		return nil, ErrRemoteNotConfigured
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	dir := opts.TempDir
	if dir == "" {
		var err error
		if dir, err = os.MkdirTemp("", "trendradar_*"); err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
	}

	return &RemoteBackend{
		objects: objects,
		tempDir: dir,
		txt:     opts.TXT,
		loc:     opts.Location,
		now:     opts.Clock,
		log:     opts.Logger,
		dbs:     make(map[string]*sql.DB),
	}, nil
}

// Name реализует Backend.
func (r *RemoteBackend) Name() string { return BackendRemote }

func (r *RemoteBackend) localPath(date string) string {
	return filepath.Join(r.tempDir, date, dbFileName)
}

// db скачивает базу даты при первом обращении. Без create отсутствие
// объекта даёт (nil, nil).
func (r *RemoteBackend) db(ctx context.Context, date string, create bool) (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.dbs[date]; ok {
		return db, nil
	}

	path := r.localPath(date)
	if !fileExists(path) {
		data, err := r.objects.Get(ctx, RemoteKey(date))
		switch {
		case err == nil:
			if err := writeFileAtomic(path, data); err != nil {
				return nil, fmt.Errorf("store download %s: %w", date, err)
			}
			r.log.Debug().Str("date", date).Int("bytes", len(data)).Msg("downloaded remote store")
		case errors.Is(err, ErrObjectNotFound):
			if !create {
				return nil, nil
			}
		default:
			return nil, fmt.Errorf("download %s: %w", date, err)
		}
	}

	// DELETE-журнал: после коммита всё лежит в основном файле и его можно выгружать.
	db, err := openStore(ctx, path, withMkdirAll(), withJournalMode("DELETE"))
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", date, err)
	}
	r.dbs[date] = db
	return db, nil
}

// upload выгружает файл даты целиком и проверяет, что объект появился.
func (r *RemoteBackend) upload(ctx context.Context, date string) error {
	data, err := os.ReadFile(r.localPath(date))
	if err != nil {
		return fmt.Errorf("read store %s: %w", date, err)
	}

	key := RemoteKey(date)
	if err := r.objects.Put(ctx, key, data, sqliteContentType); err != nil {
		return err
	}

	ok, err := r.objects.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("verify upload %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("verify upload %s: object missing after put", key)
	}

	r.log.Info().Str("key", key).Int("bytes", len(data)).Msg("uploaded store")
	return nil
}

// SaveBatch реализует Backend. Ошибка выгрузки после успешного слияния -
// тоже ошибка записи.
func (r *RemoteBackend) SaveBatch(ctx context.Context, batch *news.Batch) error {
	db, err := r.db(ctx, batch.Date, true)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	st, err := mergeBatch(ctx, db, batch, r.log)
	if err != nil {
		return fmt.Errorf("%w: save %s: %w", ErrPersistence, batch.Date, err)
	}

	if err := r.upload(ctx, batch.Date); err != nil {
		return fmt.Errorf("%w: upload %s: %w", ErrPersistence, batch.Date, err)
	}

	r.log.Info().
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
func (r *RemoteBackend) GetAllForDate(ctx context.Context, date string) (*news.Batch, error) {
	db, err := r.db(ctx, date, false)
	if err != nil || db == nil {
		return nil, err
	}
	return readBatch(ctx, db, date, false)
}

// GetLatestCrawl реализует Backend.
func (r *RemoteBackend) GetLatestCrawl(ctx context.Context, date string) (*news.Batch, error) {
	db, err := r.db(ctx, date, false)
	if err != nil || db == nil {
		return nil, err
	}
	return readBatch(ctx, db, date, true)
}

// DetectNewTitles реализует Backend.
func (r *RemoteBackend) DetectNewTitles(ctx context.Context, batch *news.Batch) (news.NewTitles, error) {
	return detectNewTitles(ctx, batch, r.GetAllForDate)
}

// IsFirstCrawlToday реализует Backend.
func (r *RemoteBackend) IsFirstCrawlToday(ctx context.Context, date string) (bool, error) {
	db, err := r.db(ctx, date, false)
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
func (r *RemoteBackend) CrawlTimes(ctx context.Context, date string) ([]string, error) {
	db, err := r.db(ctx, date, false)
	if err != nil || db == nil {
		return nil, err
	}
	return crawlTimes(ctx, db)
}

// ListDates реализует Backend по списку объектов news/.
func (r *RemoteBackend) ListDates(ctx context.Context) ([]string, error) {
	keys, err := r.objects.List(ctx, remotePrefix)
	if err != nil {
		return nil, err
	}
	var dates []string
	for _, key := range keys {
		if date, ok := dateFromKey(key); ok {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates, nil
}

// HasPushed реализует Backend.
func (r *RemoteBackend) HasPushed(ctx context.Context, date string) (bool, error) {
	db, err := r.db(ctx, date, false)
	if err != nil || db == nil {
		return false, err
	}
	return hasPushed(ctx, db, date)
}

// RecordPush реализует Backend и сразу выгружает базу.
func (r *RemoteBackend) RecordPush(ctx context.Context, reportType, date string) error {
	db, err := r.db(ctx, date, true)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := recordPush(ctx, db, reportType, date, r.now().In(r.loc).Format("15:04:05")); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := r.upload(ctx, date); err != nil {
		return fmt.Errorf("%w: upload %s: %w", ErrPersistence, date, err)
	}
	return nil
}

// SaveSnapshot реализует Backend. Снимок остаётся во временном каталоге.
func (r *RemoteBackend) SaveSnapshot(ctx context.Context, batch *news.Batch) (string, error) {
	if !r.txt {
		return "", nil
	}
	path, err := writeSnapshot(r.tempDir, batch)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return path, nil
}

// Cleanup реализует Backend: удаляет объекты дат старше срока хранения.
// Возвращает число удалённых дат.
func (r *RemoteBackend) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := cutoffDate(r.now(), r.loc, retentionDays).Format(news.DateLayout)
	dates, objects, err := deleteExpiredObjects(ctx, r.objects, cutoff)
	if err != nil || len(dates) == 0 {
		return 0, err
	}

	r.mu.Lock()
	for date := range dates {
		if db, ok := r.dbs[date]; ok {
			_ = db.Close()
			delete(r.dbs, date)
		}
		_ = os.RemoveAll(filepath.Join(r.tempDir, date))
	}
	r.mu.Unlock()

	r.log.Info().Int("dates", len(dates)).Int("objects", objects).Msg("removed expired remote data")
	return len(dates), nil
}

// deleteExpiredObjects удаляет одним запросом объекты дат раньше cutoff.
// Возвращает затронутые даты и число удалённых объектов.
func deleteExpiredObjects(ctx context.Context, objects ObjectStore, cutoff string) (map[string]struct{}, int, error) {
	keys, err := objects.List(ctx, remotePrefix)
	if err != nil {
		return nil, 0, err
	}

	var expired []string
	dates := make(map[string]struct{})
	for _, key := range keys {
		date, ok := dateFromKey(key)
		if !ok || date >= cutoff {
			continue
		}
		expired = append(expired, key)
		dates[date] = struct{}{}
	}
	if len(expired) == 0 {
		return nil, 0, nil
	}

	if err := objects.Delete(ctx, expired); err != nil {
		return nil, 0, err
	}
	return dates, len(expired), nil
}

// Close закрывает базы и удаляет временный каталог.
func (r *RemoteBackend) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for date, db := range r.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", date, err))
		}
		delete(r.dbs, date)
	}
	if err := os.RemoveAll(r.tempDir); err != nil {
		errs = append(errs, fmt.Errorf("remove temp dir: %w", err))
	}
	return errors.Join(errs...)
}
