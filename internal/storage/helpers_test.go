package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maine/trendradar/internal/news"
)

// memObjectStore - объектное хранилище в памяти.
type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	puts    int
	failPut error
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjectStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *memObjectStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return m.failPut
	}
	m.objects[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	m.puts++
	return nil
}

func (m *memObjectStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memObjectStore) Delete(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil
}

func (m *memObjectStore) keys() []string {
	keys, _ := m.List(context.Background(), "")
	return keys
}

// titleChanges возвращает историю переименований (старый -> новый) новости.
func titleChanges(ctx context.Context, db *sql.DB, itemID int64) ([][2]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT old_title, new_title FROM title_changes WHERE news_item_id = ? ORDER BY id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query title changes: %w", err)
	}
	defer rows.Close()

	var out [][2]string
	for rows.Next() {
		var c [2]string
		if err := rows.Scan(&c[0], &c[1]); err != nil {
			return nil, fmt.Errorf("scan title change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// fixedClock возвращает часы, стоящие на указанном моменте.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// batchOf строит пакет одного источника src1.
func batchOf(date, crawlTime string, items ...news.Item) *news.Batch {
	b := &news.Batch{
		Date:        date,
		CrawlTime:   crawlTime,
		Items:       map[string][]news.Item{},
		SourceNames: map[string]string{"src1": "Source One"},
	}
	for _, it := range items {
		if it.SourceID == "" {
			it.SourceID = "src1"
		}
		b.Items[it.SourceID] = append(b.Items[it.SourceID], it)
	}
	return b
}

func newLocal(t *testing.T) *LocalBackend {
	t.Helper()
	l := NewLocalBackend(LocalOptions{
		DataDir:  t.TempDir(),
		TXT:      true,
		Location: time.UTC,
		Clock:    fixedClock(time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)),
	})
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func mustSave(t *testing.T, b Backend, batch *news.Batch) {
	t.Helper()
	if err := b.SaveBatch(context.Background(), batch); err != nil {
		t.Fatalf("SaveBatch(%s) error = %v", batch.CrawlTime, err)
	}
}

func findItem(t *testing.T, batch *news.Batch, sourceID, title string) news.Item {
	t.Helper()
	if batch == nil {
		t.Fatalf("batch is nil, want item %q", title)
	}
	for _, it := range batch.Items[sourceID] {
		if it.Title == title {
			return it
		}
	}
	t.Fatalf("item %q not found in %s", title, sourceID)
	return news.Item{}
}
