package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/maine/trendradar/internal/news"
)

const day = "2025-01-02"

func TestLocal_EndToEndScenario(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	mustSave(t, l, batchOf(day, "10-00", news.Item{Title: "Title1", Rank: 3, URL: "https://x/a?utm_source=y"}))
	b := batchOf(day, "11-00", news.Item{Title: "Title1", Rank: 1, URL: "https://x/a"})

	newTitles, err := l.DetectNewTitles(ctx, b)
	if err != nil {
		t.Fatalf("DetectNewTitles() error = %v", err)
	}
	mustSave(t, l, b)

	all, err := l.GetAllForDate(ctx, day)
	if err != nil {
		t.Fatalf("GetAllForDate() error = %v", err)
	}
	if n := all.TotalItems(); n != 1 {
		t.Fatalf("TotalItems() = %d, want 1", n)
	}
	it := findItem(t, all, "src1", "Title1")
	if !reflect.DeepEqual(it.Ranks, []int{3, 1}) {
		t.Errorf("Ranks = %v, want [3 1]", it.Ranks)
	}
	if it.FirstSeen != "10-00" || it.LastSeen != "11-00" {
		t.Errorf("seen = %s..%s, want 10-00..11-00", it.FirstSeen, it.LastSeen)
	}
	if it.Count != 2 {
		t.Errorf("Count = %d, want 2", it.Count)
	}
	if it.URL != "https://x/a" {
		t.Errorf("URL = %q, want normalized https://x/a", it.URL)
	}
	if newTitles.Count() != 0 {
		t.Errorf("DetectNewTitles() = %v, want empty", newTitles)
	}

	// Повторная проверка по уже записанным данным тоже ничего не находит.
	again, err := l.DetectNewTitles(ctx, b)
	if err != nil {
		t.Fatalf("DetectNewTitles() error = %v", err)
	}
	if again.Count() != 0 {
		t.Errorf("DetectNewTitles() after save = %v, want empty", again)
	}
}

func TestLocal_DedupByNormalizedURL(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	mustSave(t, l, batchOf(day, "08-00", news.Item{Title: "A", Rank: 5, URL: "https://x/p?id=1&ref=home"}))
	mustSave(t, l, batchOf(day, "09-00", news.Item{Title: "A", Rank: 2, URL: "https://x/p?ref=feed&id=1"}))

	all, err := l.GetAllForDate(ctx, day)
	if err != nil {
		t.Fatalf("GetAllForDate() error = %v", err)
	}
	if n := all.TotalItems(); n != 1 {
		t.Fatalf("TotalItems() = %d, want 1", n)
	}
	it := findItem(t, all, "src1", "A")
	if !reflect.DeepEqual(it.Ranks, []int{5, 2}) {
		t.Errorf("Ranks = %v, want [5 2]", it.Ranks)
	}
	if it.Rank != 2 {
		t.Errorf("Rank = %d, want latest 2", it.Rank)
	}
}

func TestLocal_TitleChangeAudit(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	mustSave(t, l, batchOf(day, "08-00", news.Item{Title: "A", Rank: 1, URL: "https://x/1"}))
	mustSave(t, l, batchOf(day, "09-00", news.Item{Title: "B", Rank: 1, URL: "https://x/1"}))

	all, err := l.GetAllForDate(ctx, day)
	if err != nil {
		t.Fatalf("GetAllForDate() error = %v", err)
	}
	if n := all.TotalItems(); n != 1 {
		t.Fatalf("TotalItems() = %d, want 1", n)
	}
	it := findItem(t, all, "src1", "B")

	db, err := l.db(ctx, day, false)
	if err != nil || db == nil {
		t.Fatalf("db() = %v, %v", db, err)
	}
	changes, err := titleChanges(ctx, db, it.ID)
	if err != nil {
		t.Fatalf("titleChanges() error = %v", err)
	}
	if want := [][2]string{{"A", "B"}}; !reflect.DeepEqual(changes, want) {
		t.Errorf("title changes = %v, want %v", changes, want)
	}

	// Тот же заголовок - без новой записи аудита.
	mustSave(t, l, batchOf(day, "10-00", news.Item{Title: "B", Rank: 2, URL: "https://x/1"}))
	changes, err = titleChanges(ctx, db, it.ID)
	if err != nil {
		t.Fatalf("titleChanges() error = %v", err)
	}
	if len(changes) != 1 {
		t.Errorf("title changes = %v, want exactly one", changes)
	}
}

func TestLocal_EmptyURLNeverDeduplicated(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	mustSave(t, l, batchOf(day, "08-00", news.Item{Title: "Same", Rank: 1}))
	mustSave(t, l, batchOf(day, "09-00", news.Item{Title: "Same", Rank: 1}))

	all, err := l.GetAllForDate(ctx, day)
	if err != nil {
		t.Fatalf("GetAllForDate() error = %v", err)
	}
	if n := len(all.Items["src1"]); n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
}

func TestLocal_DetectNewTitles(t *testing.T) {
	ctx := context.Background()

	t.Run("first crawl of the day marks everything new", func(t *testing.T) {
		l := newLocal(t)
		b := batchOf(day, "08-00",
			news.Item{Title: "X", Rank: 1, URL: "https://x/x"},
			news.Item{Title: "Y", Rank: 2, URL: "https://x/y"},
		)
		got, err := l.DetectNewTitles(ctx, b)
		if err != nil {
			t.Fatalf("DetectNewTitles() error = %v", err)
		}
		if got.Count() != 2 || !got.Has("src1", "X") || !got.Has("src1", "Y") {
			t.Errorf("DetectNewTitles() = %v, want X and Y", got)
		}
	})

	t.Run("only titles unseen before the crawl", func(t *testing.T) {
		l := newLocal(t)
		mustSave(t, l, batchOf(day, "08-00", news.Item{Title: "X", Rank: 1, URL: "https://x/x"}))

		b := batchOf(day, "09-00",
			news.Item{Title: "X", Rank: 2, URL: "https://x/x"},
			news.Item{Title: "Y", Rank: 1, URL: "https://x/y"},
		)
		got, err := l.DetectNewTitles(ctx, b)
		if err != nil {
			t.Fatalf("DetectNewTitles() error = %v", err)
		}
		if got.Count() != 1 || !got.Has("src1", "Y") {
			t.Errorf("DetectNewTitles() = %v, want only Y", got)
		}
	})

	t.Run("url drift keeps title known", func(t *testing.T) {
		l := newLocal(t)
		mustSave(t, l, batchOf(day, "08-00", news.Item{Title: "X", Rank: 1, URL: "https://x/old"}))

		got, err := l.DetectNewTitles(ctx, batchOf(day, "09-00", news.Item{Title: "X", Rank: 1, URL: "https://x/new"}))
		if err != nil {
			t.Fatalf("DetectNewTitles() error = %v", err)
		}
		if got.Count() != 0 {
			t.Errorf("DetectNewTitles() = %v, want empty", got)
		}
	})

	t.Run("history made of the same crawl only", func(t *testing.T) {
		l := newLocal(t)
		b := batchOf(day, "08-00", news.Item{Title: "X", Rank: 1, URL: "https://x/x"})
		mustSave(t, l, b)

		got, err := l.DetectNewTitles(ctx, b)
		if err != nil {
			t.Fatalf("DetectNewTitles() error = %v", err)
		}
		if got.Count() != 0 {
			t.Errorf("DetectNewTitles() = %v, want empty", got)
		}
	})
}

func TestLocal_IsFirstCrawlToday(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	first, err := l.IsFirstCrawlToday(ctx, day)
	if err != nil || !first {
		t.Fatalf("IsFirstCrawlToday() without store = %v, %v; want true", first, err)
	}

	mustSave(t, l, batchOf(day, "08-00", news.Item{Title: "X", Rank: 1}))
	if first, _ = l.IsFirstCrawlToday(ctx, day); !first {
		t.Errorf("IsFirstCrawlToday() after one crawl = false, want true")
	}

	mustSave(t, l, batchOf(day, "09-00", news.Item{Title: "X", Rank: 1}))
	if first, _ = l.IsFirstCrawlToday(ctx, day); first {
		t.Errorf("IsFirstCrawlToday() after two crawls = true, want false")
	}

	times, err := l.CrawlTimes(ctx, day)
	if err != nil {
		t.Fatalf("CrawlTimes() error = %v", err)
	}
	if !reflect.DeepEqual(times, []string{"08-00", "09-00"}) {
		t.Errorf("CrawlTimes() = %v", times)
	}
}

func TestLocal_GetLatestCrawl(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	mustSave(t, l, batchOf(day, "08-00",
		news.Item{Title: "Old", Rank: 1, URL: "https://x/old"},
		news.Item{Title: "Kept", Rank: 2, URL: "https://x/kept"},
	))
	b := batchOf(day, "09-00", news.Item{Title: "Kept", Rank: 1, URL: "https://x/kept"})
	b.FailedSourceIDs = []string{"broken"}
	mustSave(t, l, b)

	latest, err := l.GetLatestCrawl(ctx, day)
	if err != nil {
		t.Fatalf("GetLatestCrawl() error = %v", err)
	}
	if latest.CrawlTime != "09-00" {
		t.Errorf("CrawlTime = %q, want 09-00", latest.CrawlTime)
	}
	if n := latest.TotalItems(); n != 1 {
		t.Fatalf("TotalItems() = %d, want 1", n)
	}
	kept := findItem(t, latest, "src1", "Kept")
	if !reflect.DeepEqual(kept.Ranks, []int{2, 1}) {
		t.Errorf("Ranks = %v, want full history [2 1]", kept.Ranks)
	}
	if kept.SourceName != "Source One" {
		t.Errorf("SourceName = %q", kept.SourceName)
	}
	if !reflect.DeepEqual(latest.FailedSourceIDs, []string{"broken"}) {
		t.Errorf("FailedSourceIDs = %v", latest.FailedSourceIDs)
	}
}

func TestLocal_MissingDateIsNotAnError(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	all, err := l.GetAllForDate(ctx, "2020-01-01")
	if err != nil || all != nil {
		t.Errorf("GetAllForDate() = %v, %v; want nil, nil", all, err)
	}
	latest, err := l.GetLatestCrawl(ctx, "2020-01-01")
	if err != nil || latest != nil {
		t.Errorf("GetLatestCrawl() = %v, %v; want nil, nil", latest, err)
	}
	if _, err := os.Stat(filepath.Join(l.dataDir, "2020-01-01")); !os.IsNotExist(err) {
		t.Errorf("read created a date dir: %v", err)
	}
}

func TestLocal_PushRecords(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	pushed, err := l.HasPushed(ctx, day)
	if err != nil || pushed {
		t.Fatalf("HasPushed() = %v, %v; want false", pushed, err)
	}
	if err := l.RecordPush(ctx, "daily", day); err != nil {
		t.Fatalf("RecordPush() error = %v", err)
	}
	if pushed, _ = l.HasPushed(ctx, day); !pushed {
		t.Errorf("HasPushed() after RecordPush = false")
	}
	if err := l.RecordPush(ctx, "current", day); err != nil {
		t.Errorf("RecordPush() twice error = %v", err)
	}
}

func TestLocal_SaveSnapshot(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	b := batchOf(day, "10-30",
		news.Item{Title: "Second", Rank: 2, URL: "https://x/2"},
		news.Item{Title: "First", Rank: 1, URL: "https://x/1", MobileURL: "https://m.x/1"},
	)
	b.FailedSourceIDs = []string{"down"}

	path, err := l.SaveSnapshot(ctx, b)
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if want := filepath.Join(l.dataDir, day, "txt", "10-30.txt"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}

	want := strings.Join([]string{
		"src1 | Source One",
		"1. First [URL:https://x/1] [MOBILE:https://m.x/1]",
		"2. Second [URL:https://x/2]",
		"",
		"==== Failed IDs ====",
		"down",
		"",
	}, "\n")
	if string(data) != want {
		t.Errorf("snapshot =\n%s\nwant\n%s", data, want)
	}

	off := NewLocalBackend(LocalOptions{DataDir: t.TempDir()})
	if path, err := off.SaveSnapshot(ctx, b); err != nil || path != "" {
		t.Errorf("SaveSnapshot() disabled = %q, %v; want empty", path, err)
	}
}

func TestLocal_SaveBatchReadOnlyDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := t.TempDir()
	if err := os.Chmod(root, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(root, 0o700) })

	l := NewLocalBackend(LocalOptions{DataDir: root})
	defer l.Close()

	err := l.SaveBatch(context.Background(), batchOf(day, "08-00", news.Item{Title: "X", Rank: 1}))
	if !errors.Is(err, ErrPersistence) {
		t.Errorf("SaveBatch() error = %v, want ErrPersistence", err)
	}
}
