package news

import "sort"

// defaultRank используется, если сборщик не передал ни одной позиции.
const defaultRank = 99

// FromResult превращает результат сборщиков в пакет обхода.
// Позиция новости - первая из переданных позиций.
func FromResult(result FetchResult, names map[string]string, failed []string, date, crawlTime string) *Batch {
	batch := &Batch{
		Date:            date,
		CrawlTime:       crawlTime,
		Items:           make(map[string][]Item, len(result)),
		SourceNames:     make(map[string]string, len(names)),
		FailedSourceIDs: append([]string(nil), failed...),
	}
	for id, name := range names {
		batch.SourceNames[id] = name
	}

	for sourceID, titles := range result {
		items := make([]Item, 0, len(titles))
		for title, info := range titles {
			rank := defaultRank
			if len(info.Ranks) > 0 {
				rank = info.Ranks[0]
			}
			items = append(items, Item{
				Title:      title,
				SourceID:   sourceID,
				SourceName: batch.SourceName(sourceID),
				Rank:       rank,
				URL:        info.URL,
				MobileURL:  info.MobileURL,
				Ranks:      append([]int(nil), info.Ranks...),
				FirstSeen:  crawlTime,
				LastSeen:   crawlTime,
				Count:      1,
			})
		}
		SortByRank(items)
		batch.Items[sourceID] = items
	}
	return batch
}

// SortByRank упорядочивает новости по позиции, при равенстве - по заголовку.
func SortByRank(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Rank != items[j].Rank {
			return items[i].Rank < items[j].Rank
		}
		return items[i].Title < items[j].Title
	})
}

// CollapseByTitle склеивает строки одного источника с одинаковым заголовком.
// Так бывает с новостями без URL: каждая встреча хранится отдельной строкой.
func CollapseByTitle(items []Item) []Item {
	index := make(map[string]int, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		pos, ok := index[it.Title]
		if !ok {
			it.Ranks = append([]int(nil), it.Ranks...)
			index[it.Title] = len(out)
			out = append(out, it)
			continue
		}
		merged := &out[pos]
		merged.Ranks = append(merged.Ranks, it.Ranks...)
		merged.Count += it.Count
		if it.FirstSeen != "" && (merged.FirstSeen == "" || it.FirstSeen < merged.FirstSeen) {
			merged.FirstSeen = it.FirstSeen
		}
		if it.LastSeen > merged.LastSeen {
			merged.LastSeen = it.LastSeen
			merged.Rank = it.Rank
			if it.URL != "" {
				merged.URL = it.URL
			}
			if it.MobileURL != "" {
				merged.MobileURL = it.MobileURL
			}
		}
	}
	return out
}

// MinRank возвращает лучшую (наименьшую) позицию из истории.
func (it Item) MinRank() int {
	if len(it.Ranks) == 0 {
		if it.Rank > 0 {
			return it.Rank
		}
		return defaultRank
	}
	best := it.Ranks[0]
	for _, r := range it.Ranks[1:] {
		if r < best {
			best = r
		}
	}
	return best
}
