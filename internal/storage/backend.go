// Package storage хранит новости по датам: одна база SQLite на календарный день,
// локально или в S3-совместимом хранилище.
package storage

import (
	"context"
	"errors"

	"github.com/maine/trendradar/internal/news"
)

var (
	// ErrPersistence оборачивает любую ошибку записи или выгрузки.
	// Обход при этом считается успешным: пакет в памяти можно использовать.
	ErrPersistence = errors.New("persistence failed")
	// ErrUnknownBackend - неизвестное значение storage.backend.
	ErrUnknownBackend = errors.New("unknown storage backend")
	// ErrRemoteNotConfigured - удалённое хранилище выбрано, но реквизитов нет.
	ErrRemoteNotConfigured = errors.New("remote storage not configured")
)

// Имена бэкендов.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
	BackendAuto   = "auto"
)

// Backend - хранилище новостей по датам.
//
// Чтение отсутствующей даты возвращает (nil, nil): это "нет данных", а не ошибка.
// Удалённый бэкенд не защищён от параллельных писателей одной даты:
// вызывающий обязан запускать не больше одного процесса записи на дату.
type Backend interface {
	Name() string

	// SaveBatch сливает пакет обхода в хранилище даты пакета.
	SaveBatch(ctx context.Context, batch *news.Batch) error
	// GetAllForDate восстанавливает все новости дня с историей позиций.
	GetAllForDate(ctx context.Context, date string) (*news.Batch, error)
	// GetLatestCrawl восстанавливает новости, встреченные в последнем обходе дня.
	GetLatestCrawl(ctx context.Context, date string) (*news.Batch, error)
	// DetectNewTitles возвращает заголовки пакета, которых не было до его обхода.
	DetectNewTitles(ctx context.Context, batch *news.Batch) (news.NewTitles, error)
	// IsFirstCrawlToday - true, если базы нет или в ней не больше одного обхода.
	IsFirstCrawlToday(ctx context.Context, date string) (bool, error)
	// CrawlTimes возвращает времена обходов дня по возрастанию.
	CrawlTimes(ctx context.Context, date string) ([]string, error)
	// ListDates возвращает даты, для которых есть хранилище.
	ListDates(ctx context.Context) ([]string, error)

	HasPushed(ctx context.Context, date string) (bool, error)
	RecordPush(ctx context.Context, reportType, date string) error

	// SaveSnapshot пишет текстовый снимок обхода; "" если снимки выключены.
	SaveSnapshot(ctx context.Context, batch *news.Batch) (string, error)
	// Cleanup удаляет даты старше retentionDays (0 - хранить всё) и возвращает их число.
	Cleanup(ctx context.Context, retentionDays int) (int, error)

	Close() error
}
