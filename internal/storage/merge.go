package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/maine/trendradar/internal/news"
	"github.com/maine/trendradar/internal/urlnorm"
)

// mergeStats - итог слияния пакета.
type mergeStats struct {
	Inserted     int
	Updated      int
	TitleChanged int
	Skipped      int
}

// mergeBatch сливает пакет в базу даты одной транзакцией.
//
// Идентичность новости - (источник, нормализованный URL). Для найденной строки
// обновляются заголовок, позиция и время, смена заголовка пишется в title_changes.
// Новости без URL всегда вставляются новой строкой. Каждая встреча добавляет
// запись в rank_history. Ошибка на отдельной новости пропускает только её.
func mergeBatch(ctx context.Context, db *sql.DB, batch *news.Batch, log zerolog.Logger) (mergeStats, error) {
	var st mergeStats

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return st, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertPlatforms(ctx, tx, batch); err != nil {
		return st, err
	}

	for _, sourceID := range batch.SourceIDs() {
		for _, it := range batch.Items[sourceID] {
			if strings.TrimSpace(it.Title) == "" {
				log.Warn().Str("source", sourceID).Msg("skip item without title")
				st.Skipped++
				continue
			}

			if _, err := tx.ExecContext(ctx, "SAVEPOINT item"); err != nil {
				return st, fmt.Errorf("savepoint: %w", err)
			}
			outcome, err := mergeItem(ctx, tx, sourceID, it, batch.CrawlTime)
			if err != nil {
				log.Warn().Err(err).Str("source", sourceID).Str("title", it.Title).Msg("skip item")
				st.Skipped++
				if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO item"); rbErr != nil {
					return st, fmt.Errorf("rollback to savepoint: %w", rbErr)
				}
			}
			if _, err := tx.ExecContext(ctx, "RELEASE item"); err != nil {
				return st, fmt.Errorf("release savepoint: %w", err)
			}

			switch outcome {
			case outcomeInserted:
				st.Inserted++
			case outcomeUpdated:
				st.Updated++
			case outcomeRenamed:
				st.Updated++
				st.TitleChanged++
			}
		}
	}

	if err := recordCrawl(ctx, tx, batch); err != nil {
		return st, err
	}

	if err := tx.Commit(); err != nil {
		return st, fmt.Errorf("commit: %w", err)
	}
	return st, nil
}

type mergeOutcome int

const (
	outcomeNone mergeOutcome = iota
	outcomeInserted
	outcomeUpdated
	outcomeRenamed
)

func mergeItem(ctx context.Context, tx *sql.Tx, sourceID string, it news.Item, crawlTime string) (mergeOutcome, error) {
	normURL := urlnorm.Normalize(it.URL, sourceID)
	rank := it.Rank
	if rank <= 0 && len(it.Ranks) > 0 {
		rank = it.Ranks[0]
	}

	var (
		id        int64
		oldTitle  string
		firstSeen string
		lastSeen  string
	)
	found := false
	if normURL != "" {
		err := tx.QueryRowContext(ctx,
			`SELECT id, title, first_crawl_time, last_crawl_time
			   FROM news_items
			  WHERE platform_id = ? AND url = ?
			  ORDER BY id LIMIT 1`,
			sourceID, normURL,
		).Scan(&id, &oldTitle, &firstSeen, &lastSeen)
		switch {
		case err == nil:
			found = true
		case !errors.Is(err, sql.ErrNoRows):
			return outcomeNone, fmt.Errorf("lookup item: %w", err)
		}
	}

	outcome := outcomeInserted
	if found {
		outcome = outcomeUpdated
		if oldTitle != it.Title {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO title_changes (news_item_id, old_title, new_title, changed_at) VALUES (?, ?, ?, ?)`,
				id, oldTitle, it.Title, crawlTime,
			); err != nil {
				return outcomeNone, fmt.Errorf("record title change: %w", err)
			}
			outcome = outcomeRenamed
		}

		if crawlTime < firstSeen {
			firstSeen = crawlTime
		}
		if crawlTime > lastSeen {
			lastSeen = crawlTime
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE news_items
			    SET title = ?, rank = ?, mobile_url = ?, first_crawl_time = ?, last_crawl_time = ?,
			        crawl_count = crawl_count + 1, updated_at = CURRENT_TIMESTAMP
			  WHERE id = ?`,
			it.Title, rank, it.MobileURL, firstSeen, lastSeen, id,
		); err != nil {
			return outcomeNone, fmt.Errorf("update item: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO news_items (title, platform_id, rank, url, mobile_url, first_crawl_time, last_crawl_time, crawl_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
			it.Title, sourceID, rank, normURL, it.MobileURL, crawlTime, crawlTime,
		)
		if err != nil {
			return outcomeNone, fmt.Errorf("insert item: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return outcomeNone, fmt.Errorf("insert item id: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rank_history (news_item_id, rank, crawl_time) VALUES (?, ?, ?)`,
		id, rank, crawlTime,
	); err != nil {
		return outcomeNone, fmt.Errorf("append rank history: %w", err)
	}
	return outcome, nil
}

func upsertPlatforms(ctx context.Context, tx *sql.Tx, batch *news.Batch) error {
	ids := make(map[string]struct{}, len(batch.Items)+len(batch.FailedSourceIDs))
	for id := range batch.Items {
		ids[id] = struct{}{}
	}
	for id := range batch.SourceNames {
		ids[id] = struct{}{}
	}
	for _, id := range batch.FailedSourceIDs {
		ids[id] = struct{}{}
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	for _, id := range sorted {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO platforms (id, name, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
			id, batch.SourceName(id),
		); err != nil {
			return fmt.Errorf("upsert platform %s: %w", id, err)
		}
	}
	return nil
}

func recordCrawl(ctx context.Context, tx *sql.Tx, batch *news.Batch) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO crawl_records (crawl_time, total_items) VALUES (?, ?)
		 ON CONFLICT(crawl_time) DO UPDATE SET total_items = excluded.total_items`,
		batch.CrawlTime, batch.TotalItems(),
	); err != nil {
		return fmt.Errorf("record crawl: %w", err)
	}

	var recordID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM crawl_records WHERE crawl_time = ?`, batch.CrawlTime,
	).Scan(&recordID); err != nil {
		return fmt.Errorf("crawl record id: %w", err)
	}

	status := func(platformID, value string) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO crawl_source_status (crawl_record_id, platform_id, status) VALUES (?, ?, ?)
			 ON CONFLICT(crawl_record_id, platform_id) DO UPDATE SET status = excluded.status`,
			recordID, platformID, value,
		)
		if err != nil {
			return fmt.Errorf("record source status %s: %w", platformID, err)
		}
		return nil
	}

	for _, id := range batch.SourceIDs() {
		if err := status(id, "success"); err != nil {
			return err
		}
	}
	for _, id := range batch.FailedSourceIDs {
		if err := status(id, "failed"); err != nil {
			return err
		}
	}
	return nil
}
