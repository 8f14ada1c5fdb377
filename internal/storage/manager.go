package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maine/trendradar/internal/config"
	"github.com/maine/trendradar/internal/news"
)

// ciEnvVar - переменная, по которой auto распознаёт запуск в CI.
const ciEnvVar = "GITHUB_ACTIONS"

// Manager выбирает бэкенд, владеет его жизненным циклом и применяет
// политику хранения.
type Manager struct {
	cfg     config.Storage
	loc     *time.Location
	env     config.Env
	now     func() time.Time
	log     zerolog.Logger
	factory func(config.Remote) ObjectStore

	backend Backend
	objects ObjectStore
}

// ManagerOption настраивает Manager.
type ManagerOption func(*Manager)

// WithEnv задаёт источник переменных окружения для режима auto.
func WithEnv(env config.Env) ManagerOption {
	return func(m *Manager) { m.env = env }
}

// WithObjectStoreFactory подменяет создание клиента объектного хранилища.
func WithObjectStoreFactory(f func(config.Remote) ObjectStore) ManagerOption {
	return func(m *Manager) { m.factory = f }
}

// WithClock задаёт часы.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithLogger задаёт логгер.
func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// NewManager разрешает бэкенд по cfg.Backend и создаёт его.
func NewManager(cfg config.Storage, loc *time.Location, opts ...ManagerOption) (*Manager, error) {
	if loc == nil {
		loc = time.UTC
	}
	m := &Manager{
		cfg: cfg,
		loc: loc,
		env: config.OSEnv,
		now: time.Now,
		factory: func(r config.Remote) ObjectStore {
			return NewS3ObjectStore(r)
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	kind, err := m.resolve()
	if err != nil {
		return nil, err
	}

	if m.cfg.Remote.Complete() {
		m.objects = m.factory(m.cfg.Remote)
	}

	switch kind {
	case BackendRemote:
		rb, err := NewRemoteBackend(m.objects, RemoteOptions{
			TXT:      config.Bool(cfg.Formats.TXT),
			Location: loc,
			Clock:    m.now,
			Logger:   m.log,
		})
		if err != nil {
			return nil, err
		}
		m.backend = rb
	default:
		m.backend = NewLocalBackend(LocalOptions{
			DataDir:  cfg.Local.DataDir,
			TXT:      config.Bool(cfg.Formats.TXT),
			Location: loc,
			Clock:    m.now,
			Logger:   m.log,
		})
	}

	m.log.Info().Str("backend", kind).Str("configured", cfg.Backend).Msg("storage backend selected")
	return m, nil
}

// resolve превращает local|remote|auto в конкретный бэкенд.
func (m *Manager) resolve() (string, error) {
	switch strings.ToLower(m.cfg.Backend) {
	case BackendLocal:
		return BackendLocal, nil
	case BackendRemote:
		if !m.cfg.Remote.Complete() {
			return "", ErrRemoteNotConfigured
		}
		return BackendRemote, nil
	case BackendAuto, "":
		if v, _ := m.env(ciEnvVar); v == "true" && m.cfg.Remote.Complete() {
			return BackendRemote, nil
		}
		return BackendLocal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, m.cfg.Backend)
	}
}

// Backend возвращает активный бэкенд.
func (m *Manager) Backend() Backend { return m.backend }

// RemoteConfigured сообщает, доступно ли удалённое хранилище.
func (m *Manager) RemoteConfigured() bool { return m.objects != nil }

// ListRemoteDates перечисляет даты в удалённом хранилище.
func (m *Manager) ListRemoteDates(ctx context.Context) ([]string, error) {
	if m.objects == nil {
		return nil, ErrRemoteNotConfigured
	}
	keys, err := m.objects.List(ctx, remotePrefix)
	if err != nil {
		return nil, fmt.Errorf("list remote dates: %w", err)
	}
	var dates []string
	for _, key := range keys {
		if date, ok := dateFromKey(key); ok {
			dates = append(dates, date)
		}
	}
	return dates, nil
}

// PullRecent скачивает базы последних days дней в локальный каталог.
// Даты, уже лежащие локально или отсутствующие удалённо, пропускаются.
// Возвращает число скачанных дат.
func (m *Manager) PullRecent(ctx context.Context, days int) (int, error) {
	if m.objects == nil {
		return 0, ErrRemoteNotConfigured
	}
	if days <= 0 {
		return 0, nil
	}

	today := m.now().In(m.loc)
	pulled := 0
	for i := 0; i < days; i++ {
		date := news.DateToken(today.AddDate(0, 0, -i), m.loc)
		path := filepath.Join(m.cfg.Local.DataDir, date, dbFileName)
		if fileExists(path) {
			m.log.Debug().Str("date", date).Msg("pull skipped, present locally")
			continue
		}

		data, err := m.objects.Get(ctx, RemoteKey(date))
		if errors.Is(err, ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return pulled, fmt.Errorf("pull %s: %w", date, err)
		}
		if err := writeFileAtomic(path, data); err != nil {
			return pulled, fmt.Errorf("pull %s: %w", date, err)
		}

		m.log.Info().Str("date", date).Int("bytes", len(data)).Msg("pulled remote store")
		pulled++
	}
	return pulled, nil
}

// Cleanup применяет сроки хранения. Удалённый бэкенд чистит себя сам;
// при локальном бэкенде удалённое хранилище, если оно настроено, чистится
// отдельно по Remote.RetentionDays. Возвращает общее число удалённых дат.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	if m.backend.Name() == BackendRemote {
		n, err := m.backend.Cleanup(ctx, m.cfg.Remote.RetentionDays)
		if err != nil {
			return n, fmt.Errorf("cleanup %s: %w", BackendRemote, err)
		}
		return n, nil
	}

	n, err := m.backend.Cleanup(ctx, m.cfg.Local.RetentionDays)
	if err != nil {
		return n, fmt.Errorf("cleanup %s: %w", BackendLocal, err)
	}

	days := m.cfg.Remote.RetentionDays
	if m.objects == nil || days <= 0 {
		return n, nil
	}
	cutoff := cutoffDate(m.now(), m.loc, days).Format(news.DateLayout)
	dates, objects, err := deleteExpiredObjects(ctx, m.objects, cutoff)
	if err != nil {
		return n, fmt.Errorf("cleanup %s: %w", BackendRemote, err)
	}
	if len(dates) > 0 {
		m.log.Info().Int("dates", len(dates)).Int("objects", objects).Msg("removed expired remote data")
	}
	return n + len(dates), nil
}

// Close освобождает бэкенд.
func (m *Manager) Close() error {
	if m.backend == nil {
		return nil
	}
	return m.backend.Close()
}
