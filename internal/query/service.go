// Package query отдаёт сохранённые новости для чтения: последние, за дату,
// поиск по заголовкам и частоту ключевых слов. Частые запросы идут через кэш.
package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maine/trendradar/internal/cache"
	"github.com/maine/trendradar/internal/filter"
	"github.com/maine/trendradar/internal/news"
	"github.com/maine/trendradar/internal/storage"
)

const (
	defaultLatestTTL = 900 * time.Second
	dateTTL          = 1800 * time.Second
	defaultLimit     = 50
	maxSearchDays    = 31
)

// NotFoundError - данных нет; Suggestion подсказывает, что сделать.
type NotFoundError struct {
	Resource   string
	Suggestion string
}

func (e *NotFoundError) Error() string {
	if e.Suggestion == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Suggestion)
}

// IsNotFound сообщает, что err - *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// NewsItem - новость в ответе запроса.
type NewsItem struct {
	Title        string  `json:"title"`
	Platform     string  `json:"platform"`
	PlatformName string  `json:"platform_name"`
	Rank         int     `json:"rank"`
	AvgRank      float64 `json:"avg_rank"`
	Ranks        []int   `json:"ranks,omitempty"`
	Count        int     `json:"count"`
	URL          string  `json:"url,omitempty"`
	MobileURL    string  `json:"mobile_url,omitempty"`
	Date         string  `json:"date"`
	FirstSeen    string  `json:"first_seen"`
	LastSeen     string  `json:"last_seen"`
}

// SearchResult - итог поиска по заголовкам.
type SearchResult struct {
	Keyword    string         `json:"keyword"`
	Results    []NewsItem     `json:"results"`
	TotalFound int            `json:"total_found"`
	ByPlatform map[string]int `json:"by_platform"`
	AvgRank    float64        `json:"avg_rank"`
}

// Topic - ключевое слово и число совпавших заголовков.
type Topic struct {
	Keyword   string `json:"keyword"`
	Frequency int    `json:"frequency"`
	Titles    int    `json:"titles"`
}

// Service читает новости из бэкенда через кэш.
type Service struct {
	backend   storage.Backend
	cache     *cache.Cache
	words     *filter.Filter
	latestTTL time.Duration
	loc       *time.Location
	now       func() time.Time
	log       zerolog.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithLatestTTL задаёт срок жизни ответа LatestNews.
func WithLatestTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.latestTTL = ttl
		}
	}
}

// WithClock задаёт часы и часовой пояс для "сегодня".
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(s *Service) {
		s.now = now
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// New создаёт сервис. words может быть nil: тогда TrendingTopics пуст.
func New(backend storage.Backend, c *cache.Cache, words *filter.Filter, opts ...Option) *Service {
	s := &Service{
		backend:   backend,
		cache:     c,
		words:     words,
		latestTTL: defaultLatestTTL,
		loc:       time.UTC,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.New(s.now)
	}
	return s
}

func (s *Service) today() string {
	return news.DateToken(s.now(), s.loc)
}

// LatestNews - новости последнего обхода даты (пусто - сегодня), по позиции.
func (s *Service) LatestNews(ctx context.Context, date string, platforms []string, limit int) ([]NewsItem, error) {
	if date == "" {
		date = s.today()
	}
	key := fmt.Sprintf("latest_news:%s:%s:%d", date, platformKey(platforms), limit)
	if v, ok := s.cache.Get(key, s.latestTTL); ok {
		return cloneItems(v.([]NewsItem)), nil
	}

	batch, err := s.backend.GetLatestCrawl(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("latest crawl %s: %w", date, err)
	}
	if batch == nil || batch.TotalItems() == 0 {
		return nil, &NotFoundError{
			Resource:   "news for " + date,
			Suggestion: "trigger a crawl first",
		}
	}

	items := limitItems(toItems(batch, platforms), limit)
	s.cache.Set(key, items)
	return cloneItems(items), nil
}

// NewsByDate - все новости дня с историей позиций.
func (s *Service) NewsByDate(ctx context.Context, date string, platforms []string, limit int) ([]NewsItem, error) {
	if _, err := time.Parse(news.DateLayout, date); err != nil {
		return nil, fmt.Errorf("date %q: want YYYY-MM-DD", date)
	}
	key := fmt.Sprintf("news_by_date:%s:%s:%d", date, platformKey(platforms), limit)
	if v, ok := s.cache.Get(key, dateTTL); ok {
		return cloneItems(v.([]NewsItem)), nil
	}

	batch, err := s.backend.GetAllForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("news for %s: %w", date, err)
	}
	if batch == nil || batch.TotalItems() == 0 {
		return nil, &NotFoundError{
			Resource:   "news for " + date,
			Suggestion: "pick a date from AvailableDates",
		}
	}

	items := limitItems(toItems(batch, platforms), limit)
	s.cache.Set(key, items)
	return cloneItems(items), nil
}

// SearchTitles ищет подстроку (без учёта регистра) в заголовках за даты
// от start до end включительно. Результат не кэшируется.
func (s *Service) SearchTitles(ctx context.Context, keyword, start, end string, limit int) (*SearchResult, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, errors.New("empty keyword")
	}
	if start == "" {
		start = s.today()
	}
	if end == "" {
		end = start
	}
	from, err := time.Parse(news.DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("start %q: want YYYY-MM-DD", start)
	}
	to, err := time.Parse(news.DateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("end %q: want YYYY-MM-DD", end)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("end %s is before start %s", end, start)
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > maxSearchDays {
		return nil, fmt.Errorf("range of %d days exceeds %d", days, maxSearchDays)
	}

	res := &SearchResult{Keyword: keyword, ByPlatform: map[string]int{}}
	needle := strings.ToLower(keyword)
	rankSum, rankN := 0, 0

	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		date := d.Format(news.DateLayout)
		batch, err := s.backend.GetAllForDate(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("news for %s: %w", date, err)
		}
		for _, it := range toItems(batch, nil) {
			if !strings.Contains(strings.ToLower(it.Title), needle) {
				continue
			}
			res.Results = append(res.Results, it)
			res.ByPlatform[it.Platform]++
			for _, r := range it.Ranks {
				rankSum += r
				rankN++
			}
		}
	}

	if len(res.Results) == 0 {
		return nil, &NotFoundError{
			Resource:   fmt.Sprintf("titles containing %q", keyword),
			Suggestion: "try different keywords or expand the date range",
		}
	}

	res.TotalFound = len(res.Results)
	if rankN > 0 {
		res.AvgRank = round2(float64(rankSum) / float64(rankN))
	}
	if limit > 0 && len(res.Results) > limit {
		res.Results = res.Results[:limit]
	}
	return res, nil
}

// TrendingTopics считает, сколько заголовков дня содержат каждое слово групп.
func (s *Service) TrendingTopics(ctx context.Context, date string, topN int) ([]Topic, error) {
	if date == "" {
		date = s.today()
	}
	key := fmt.Sprintf("trending_topics:%s:%d", date, topN)
	if v, ok := s.cache.Get(key, dateTTL); ok {
		return slices.Clone(v.([]Topic)), nil
	}

	batch, err := s.backend.GetAllForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("news for %s: %w", date, err)
	}
	if batch == nil || batch.TotalItems() == 0 {
		return nil, &NotFoundError{
			Resource:   "news for " + date,
			Suggestion: "ensure the crawler has run successfully",
		}
	}

	freq := map[string]int{}
	titles := map[string]map[string]struct{}{}
	if s.words != nil {
		for _, sourceID := range batch.SourceIDs() {
			for _, it := range news.CollapseByTitle(batch.Items[sourceID]) {
				lower := strings.ToLower(it.Title)
				for _, g := range s.words.Groups {
					for _, w := range append(append([]string(nil), g.Required...), g.Normal...) {
						if w == "" || !strings.Contains(lower, strings.ToLower(w)) {
							continue
						}
						freq[w]++
						if titles[w] == nil {
							titles[w] = map[string]struct{}{}
						}
						titles[w][it.Title] = struct{}{}
					}
				}
			}
		}
	}

	topics := make([]Topic, 0, len(freq))
	for w, n := range freq {
		topics = append(topics, Topic{Keyword: w, Frequency: n, Titles: len(titles[w])})
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Frequency != topics[j].Frequency {
			return topics[i].Frequency > topics[j].Frequency
		}
		return topics[i].Keyword < topics[j].Keyword
	})
	if topN > 0 && len(topics) > topN {
		topics = topics[:topN]
	}

	s.cache.Set(key, topics)
	return slices.Clone(topics), nil
}

// AvailableDates - даты с данными в активном бэкенде.
func (s *Service) AvailableDates(ctx context.Context) ([]string, error) {
	dates, err := s.backend.ListDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dates: %w", err)
	}
	if len(dates) == 0 {
		return nil, &NotFoundError{Resource: "stored dates", Suggestion: "trigger a crawl first"}
	}
	return dates, nil
}

// CacheStats возвращает состояние кэша.
func (s *Service) CacheStats() cache.Stats { return s.cache.Stats() }

// Sweep удаляет записи старше самого длинного срока жизни.
func (s *Service) Sweep() int {
	n := s.cache.CleanupExpired(max(s.latestTTL, dateTTL))
	if n > 0 {
		s.log.Debug().Int("removed", n).Msg("cache sweep")
	}
	return n
}

func toItems(batch *news.Batch, platforms []string) []NewsItem {
	if batch == nil {
		return nil
	}
	allow := map[string]bool{}
	for _, p := range platforms {
		allow[p] = true
	}

	var out []NewsItem
	for _, sourceID := range batch.SourceIDs() {
		if len(allow) > 0 && !allow[sourceID] {
			continue
		}
		for _, it := range news.CollapseByTitle(batch.Items[sourceID]) {
			item := NewsItem{
				Title:        it.Title,
				Platform:     sourceID,
				PlatformName: batch.SourceName(sourceID),
				Rank:         it.Rank,
				Ranks:        it.Ranks,
				Count:        it.Count,
				URL:          it.URL,
				MobileURL:    it.MobileURL,
				Date:         batch.Date,
				FirstSeen:    it.FirstSeen,
				LastSeen:     it.LastSeen,
			}
			if len(it.Ranks) > 0 {
				sum := 0
				for _, r := range it.Ranks {
					sum += r
				}
				item.AvgRank = round2(float64(sum) / float64(len(it.Ranks)))
			}
			out = append(out, item)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].Platform < out[j].Platform
	})
	return out
}

// platformKey не зависит от порядка площадок в запросе.
func platformKey(platforms []string) string {
	sorted := slices.Clone(platforms)
	slices.Sort(sorted)
	return strings.Join(sorted, ",")
}

// cloneItems отдаёт копию, чтобы вызывающий не портил значение в кэше.
func cloneItems(items []NewsItem) []NewsItem {
	out := make([]NewsItem, len(items))
	for i, it := range items {
		it.Ranks = slices.Clone(it.Ranks)
		out[i] = it
	}
	return out
}

func limitItems(items []NewsItem, limit int) []NewsItem {
	if limit <= 0 {
		limit = defaultLimit
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
