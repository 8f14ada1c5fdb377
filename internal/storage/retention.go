package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/maine/trendradar/internal/news"
)

// legacyDateLayout - старые каталоги вида 2025年01月02日.
const legacyDateLayout = "2006年01月02日"

// parseDateDir разбирает имя каталога даты в обоих форматах.
func parseDateDir(name string, loc *time.Location) (time.Time, bool) {
	for _, layout := range []string{news.DateLayout, legacyDateLayout} {
		if t, err := time.ParseInLocation(layout, name, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// cutoffDate - самая ранняя дата, которая ещё хранится.
func cutoffDate(now time.Time, loc *time.Location, retentionDays int) time.Time {
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return today.AddDate(0, 0, -retentionDays)
}

// removeExpiredDirs удаляет каталоги дат старше срока хранения.
// Возвращает удалённые имена каталогов.
func removeExpiredDirs(root string, now time.Time, loc *time.Location, retentionDays int) ([]string, error) {
	if retentionDays <= 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	cutoff := cutoffDate(now, loc, retentionDays)
	var removed []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		date, ok := parseDateDir(e.Name(), loc)
		if !ok || !date.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}

// listDateDirs возвращает даты (YYYY-MM-DD), для которых есть news.db.
func listDateDirs(root string, loc *time.Location) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var dates []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		date, ok := parseDateDir(e.Name(), loc)
		if !ok || !fileExists(filepath.Join(root, e.Name(), dbFileName)) {
			continue
		}
		dates = append(dates, date.Format(news.DateLayout))
	}
	sort.Strings(dates)
	return dates, nil
}

// dateFromKey извлекает дату из ключа news/YYYY-MM-DD.db.
func dateFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, remotePrefix) || !strings.HasSuffix(key, ".db") {
		return "", false
	}
	date := strings.TrimSuffix(strings.TrimPrefix(key, remotePrefix), ".db")
	if _, err := time.Parse(news.DateLayout, date); err != nil {
		return "", false
	}
	return date, true
}
