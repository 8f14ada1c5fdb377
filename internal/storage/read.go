package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/maine/trendradar/internal/news"
)

// readBatch восстанавливает день из базы. Если onlyLatest, остаются только
// новости, встреченные в последнем обходе. В новостях полная история позиций.
func readBatch(ctx context.Context, db *sql.DB, date string, onlyLatest bool) (*news.Batch, error) {
	latest, err := latestCrawlTime(ctx, db)
	if err != nil {
		return nil, err
	}

	batch := &news.Batch{
		Date:        date,
		CrawlTime:   latest,
		Items:       make(map[string][]news.Item),
		SourceNames: make(map[string]string),
	}

	names, err := db.QueryContext(ctx, `SELECT id, name FROM platforms`)
	if err != nil {
		return nil, fmt.Errorf("query platforms: %w", err)
	}
	for names.Next() {
		var id, name string
		if err := names.Scan(&id, &name); err != nil {
			names.Close()
			return nil, fmt.Errorf("scan platform: %w", err)
		}
		batch.SourceNames[id] = name
	}
	if err := names.Err(); err != nil {
		names.Close()
		return nil, fmt.Errorf("iterate platforms: %w", err)
	}
	if err := names.Close(); err != nil {
		return nil, err
	}

	history, err := rankHistory(ctx, db)
	if err != nil {
		return nil, err
	}

	query := `SELECT n.id, n.title, n.platform_id, COALESCE(p.name, n.platform_id), n.rank, n.url, n.mobile_url,
	                 n.first_crawl_time, n.last_crawl_time, n.crawl_count
	            FROM news_items n
	            LEFT JOIN platforms p ON p.id = n.platform_id`
	args := []any{}
	if onlyLatest {
		query += ` WHERE n.last_crawl_time = ?`
		args = append(args, latest)
	}
	query += ` ORDER BY n.platform_id, n.last_crawl_time, n.rank, n.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it news.Item
		if err := rows.Scan(&it.ID, &it.Title, &it.SourceID, &it.SourceName, &it.Rank, &it.URL, &it.MobileURL,
			&it.FirstSeen, &it.LastSeen, &it.Count); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Ranks = history[it.ID]
		if len(it.Ranks) == 0 {
			it.Ranks = []int{it.Rank}
		}
		batch.Items[it.SourceID] = append(batch.Items[it.SourceID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	failed, err := failedSources(ctx, db, latest)
	if err != nil {
		return nil, err
	}
	batch.FailedSourceIDs = failed
	return batch, nil
}

func rankHistory(ctx context.Context, db *sql.DB) (map[int64][]int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT news_item_id, rank FROM rank_history ORDER BY news_item_id, crawl_time, id`)
	if err != nil {
		return nil, fmt.Errorf("query rank history: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]int)
	for rows.Next() {
		var id int64
		var rank int
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("scan rank history: %w", err)
		}
		out[id] = append(out[id], rank)
	}
	return out, rows.Err()
}

func latestCrawlTime(ctx context.Context, db *sql.DB) (string, error) {
	var t string
	err := db.QueryRowContext(ctx,
		`SELECT crawl_time FROM crawl_records ORDER BY crawl_time DESC LIMIT 1`).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest crawl time: %w", err)
	}
	return t, nil
}

func failedSources(ctx context.Context, db *sql.DB, crawlTime string) ([]string, error) {
	if crawlTime == "" {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx,
		`SELECT s.platform_id
		   FROM crawl_source_status s
		   JOIN crawl_records r ON r.id = s.crawl_record_id
		  WHERE r.crawl_time = ? AND s.status = 'failed'
		  ORDER BY s.platform_id`, crawlTime)
	if err != nil {
		return nil, fmt.Errorf("query failed sources: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failed source: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func crawlTimes(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT crawl_time FROM crawl_records ORDER BY crawl_time`)
	if err != nil {
		return nil, fmt.Errorf("query crawl times: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan crawl time: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func crawlCount(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crawl_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count crawls: %w", err)
	}
	return n, nil
}

func hasPushed(ctx context.Context, db *sql.DB, date string) (bool, error) {
	var pushed bool
	err := db.QueryRowContext(ctx, `SELECT pushed FROM push_records WHERE date = ?`, date).Scan(&pushed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query push record: %w", err)
	}
	return pushed, nil
}

func recordPush(ctx context.Context, db *sql.DB, reportType, date, pushTime string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO push_records (date, pushed, push_time, report_type) VALUES (?, 1, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET pushed = 1, push_time = excluded.push_time, report_type = excluded.report_type`,
		date, pushTime, reportType)
	if err != nil {
		return fmt.Errorf("record push: %w", err)
	}
	return nil
}
