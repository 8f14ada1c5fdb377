package storage

import (
	"context"

	"github.com/maine/trendradar/internal/news"
)

type historyLoader func(ctx context.Context, date string) (*news.Batch, error)

// detectNewTitles сравнивает пакет с историей дня.
//
// Нет истории - новое всё. Иначе по каждому источнику берутся заголовки,
// впервые встреченные раньше времени пакета; новые - те, кого там нет.
// Если таких заголовков нет ни в одном источнике (история состоит только из
// этого же обхода), возвращается пустой результат.
// Сравнение идёт по заголовку: новость со сменившимся URL, но старым
// заголовком, новой не считается.
func detectNewTitles(ctx context.Context, batch *news.Batch, load historyLoader) (news.NewTitles, error) {
	out := news.NewTitles{}
	if batch == nil {
		return out, nil
	}

	history, err := load(ctx, batch.Date)
	if err != nil {
		return nil, err
	}

	if history == nil || history.TotalItems() == 0 {
		for sourceID, items := range batch.Items {
			for _, it := range items {
				addNew(out, sourceID, it)
			}
		}
		return out, nil
	}

	before := make(map[string]map[string]struct{}, len(history.Items))
	known := 0
	for sourceID, items := range history.Items {
		for _, it := range items {
			if it.FirstSeen >= batch.CrawlTime {
				continue
			}
			if before[sourceID] == nil {
				before[sourceID] = make(map[string]struct{})
			}
			before[sourceID][it.Title] = struct{}{}
			known++
		}
	}
	if known == 0 {
		return out, nil
	}

	for sourceID, items := range batch.Items {
		seen := before[sourceID]
		for _, it := range items {
			if _, ok := seen[it.Title]; !ok {
				addNew(out, sourceID, it)
			}
		}
	}
	return out, nil
}

func addNew(out news.NewTitles, sourceID string, it news.Item) {
	if out[sourceID] == nil {
		out[sourceID] = make(map[string]news.Item)
	}
	out[sourceID][it.Title] = it
}
