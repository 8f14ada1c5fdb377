package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/maine/trendradar/internal/news"
)

const failedHeader = "==== Failed IDs ===="

// renderSnapshot строит текстовый снимок обхода:
//
//	id | name
//	1. title [URL:u] [MOBILE:m]
//
//	==== Failed IDs ====
//	id
func renderSnapshot(batch *news.Batch) string {
	var sb strings.Builder

	for _, sourceID := range batch.SourceIDs() {
		name := batch.SourceName(sourceID)
		if name != sourceID {
			fmt.Fprintf(&sb, "%s | %s\n", sourceID, name)
		} else {
			sb.WriteString(sourceID + "\n")
		}

		items := append([]news.Item(nil), batch.Items[sourceID]...)
		news.SortByRank(items)
		for _, it := range items {
			fmt.Fprintf(&sb, "%d. %s", it.Rank, it.Title)
			if it.URL != "" {
				fmt.Fprintf(&sb, " [URL:%s]", it.URL)
			}
			if it.MobileURL != "" {
				fmt.Fprintf(&sb, " [MOBILE:%s]", it.MobileURL)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(batch.FailedSourceIDs) > 0 {
		sb.WriteString(failedHeader + "\n")
		for _, id := range batch.FailedSourceIDs {
			sb.WriteString(id + "\n")
		}
	}
	return sb.String()
}

// writeSnapshot пишет снимок в root/date/txt/HH-MM.txt через временный файл.
func writeSnapshot(root string, batch *news.Batch) (string, error) {
	dir := filepath.Join(root, batch.Date, "txt")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}

	path := filepath.Join(dir, batch.CrawlTime+".txt")
	if err := writeFileAtomic(path, []byte(renderSnapshot(batch))); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// writeFileAtomic пишет во временный файл рядом и переименовывает его.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
