package news

import "sort"

// Item описывает одну новость внутри источника.
// Для собранного пакета Ranks содержит позиции из текущего обхода,
// для восстановленного из хранилища - всю историю позиций за день.
type Item struct {
	ID         int64  `json:"id,omitempty"`
	Title      string `json:"title"`
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	Rank       int    `json:"rank"`
	URL        string `json:"url"`
	MobileURL  string `json:"mobile_url"`
	Ranks      []int  `json:"ranks"`
	FirstSeen  string `json:"first_seen"`
	LastSeen   string `json:"last_seen"`
	Count      int    `json:"count"`
}

// Batch - полный набор новостей одного обхода (или восстановленный день).
type Batch struct {
	Date            string            `json:"date"`
	CrawlTime       string            `json:"crawl_time"`
	Items           map[string][]Item `json:"items"`
	SourceNames     map[string]string `json:"source_names"`
	FailedSourceIDs []string          `json:"failed_source_ids"`
}

// TitleInfo - то, что сборщик знает о заголовке в одном источнике.
type TitleInfo struct {
	Ranks     []int  `json:"ranks"`
	URL       string `json:"url"`
	MobileURL string `json:"mobileUrl"`
}

// FetchResult - контракт сборщиков: источник -> заголовок -> данные.
type FetchResult map[string]map[string]TitleInfo

// NewTitles - новые заголовки по источникам.
type NewTitles map[string]map[string]Item

// Count возвращает общее число новых заголовков.
func (n NewTitles) Count() int {
	total := 0
	for _, titles := range n {
		total += len(titles)
	}
	return total
}

// Has сообщает, помечен ли заголовок как новый.
func (n NewTitles) Has(sourceID, title string) bool {
	_, ok := n[sourceID][title]
	return ok
}

// TotalItems возвращает число новостей во всех источниках.
func (b *Batch) TotalItems() int {
	if b == nil {
		return 0
	}
	total := 0
	for _, items := range b.Items {
		total += len(items)
	}
	return total
}

// SourceIDs возвращает идентификаторы источников в стабильном порядке.
func (b *Batch) SourceIDs() []string {
	if b == nil {
		return nil
	}
	ids := make([]string, 0, len(b.Items))
	for id := range b.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SourceName возвращает отображаемое имя источника.
func (b *Batch) SourceName(sourceID string) string {
	if b != nil {
		if name, ok := b.SourceNames[sourceID]; ok && name != "" {
			return name
		}
	}
	return sourceID
}
