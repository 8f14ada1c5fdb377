package ranking

import (
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/maine/trendradar/internal/config"
	"github.com/maine/trendradar/internal/filter"
	"github.com/maine/trendradar/internal/news"
)

// Режимы отчёта.
const (
	ModeDaily       = "daily"
	ModeCurrent     = "current"
	ModeIncremental = "incremental"
)

const defaultRankThreshold = 5

// Input - данные одного построения отчёта.
type Input struct {
	Current         *news.Batch // результат текущего обхода
	History         *news.Batch // весь день из хранилища, может быть nil
	NewTitles       news.NewTitles
	FirstCrawlToday bool
}

// Entry - новость в группе отчёта.
type Entry struct {
	Item        news.Item
	Weight      float64
	IsNew       bool
	TimeDisplay string
}

// Group - группа ключевых слов со своими новостями.
type Group struct {
	Key        string
	Count      int // совпадений до обрезки
	Position   int // порядок в файле ключевых слов
	Percentage float64
	Entries    []Entry
}

// Report - итог ранжирования.
type Report struct {
	Mode        string
	Groups      []Group
	TotalTitles int
}

// Matched возвращает число новостей, попавших в отчёт.
func (r Report) Matched() int {
	total := 0
	for _, g := range r.Groups {
		if g.Count > 0 {
			total += len(g.Entries)
		}
	}
	return total
}

// Ranker раскладывает новости по группам ключевых слов и упорядочивает их.
type Ranker struct {
	cfg    config.Report
	weight config.Weight
	filter *filter.Filter
	log    zerolog.Logger
}

// NewRanker создаёт новый экземпляр ранкера.
func NewRanker(cfg config.Report, weight config.Weight, f *filter.Filter, log zerolog.Logger) *Ranker {
	if cfg.RankThreshold <= 0 {
		cfg.RankThreshold = defaultRankThreshold
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeDaily
	}
	return &Ranker{cfg: cfg, weight: weight, filter: f, log: log}
}

// Rank строит отчёт в настроенном режиме.
func (r *Ranker) Rank(in Input) Report {
	return r.RankMode(r.cfg.Mode, in)
}

// RankMode строит отчёт в заданном режиме:
//   - daily: все новости дня;
//   - current: только новости последнего обхода, со статистикой за весь день;
//   - incremental: только новые в этом обходе (в первый обход дня - все).
func (r *Ranker) RankMode(mode string, in Input) Report {
	groups := r.groups()
	history := indexByTitle(in.History)

	allNew := false
	var source *news.Batch
	switch mode {
	case ModeIncremental:
		allNew = true
		if in.FirstCrawlToday {
			source = in.Current
		} else {
			source = batchFromNew(in.NewTitles)
		}
	case ModeCurrent:
		source = currentOnly(in.History)
		if source == nil {
			source = in.Current
		}
	default:
		mode = ModeDaily
		source = in.History
		if source == nil {
			source = in.Current
		}
	}

	buckets := make([][]Entry, len(groups))
	counts := make([]int, len(groups))
	total := 0

	for _, sourceID := range source.SourceIDs() {
		items := news.CollapseByTitle(source.Items[sourceID])
		total += len(items)

		for _, it := range items {
			if !r.filter.Matches(it.Title) {
				continue
			}
			idx := 0
			if !r.filter.Empty() {
				if idx = r.filter.MatchGroup(it.Title); idx < 0 {
					continue
				}
			}

			if h, ok := history[sourceID][it.Title]; ok {
				it = enrich(it, h)
			}
			if len(it.Ranks) == 0 {
				it.Ranks = []int{it.MinRank()}
			}
			if it.SourceName == "" {
				it.SourceName = source.SourceName(sourceID)
			}

			counts[idx]++
			buckets[idx] = append(buckets[idx], Entry{
				Item:        it,
				Weight:      Weight(it, r.cfg.RankThreshold, r.weight),
				IsNew:       allNew || in.NewTitles.Has(sourceID, it.Title),
				TimeDisplay: TimeDisplay(it.FirstSeen, it.LastSeen),
			})
		}
	}

	report := Report{Mode: mode, TotalTitles: total, Groups: make([]Group, 0, len(groups))}
	for i, g := range groups {
		entries := buckets[i]
		sortEntries(entries)

		limit := g.MaxCount
		if limit == 0 {
			limit = r.cfg.MaxNewsPerKeyword
		}
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}

		pct := 0.0
		if total > 0 {
			pct = math.Round(float64(counts[i])/float64(total)*100*100) / 100
		}
		report.Groups = append(report.Groups, Group{
			Key:        g.Key,
			Count:      counts[i],
			Position:   i,
			Percentage: pct,
			Entries:    entries,
		})
	}

	sortGroups(report.Groups, r.cfg.SortByPositionFirst)
	r.logDistribution(report)
	return report
}

func (r *Ranker) groups() []filter.WordGroup {
	if r.filter.Empty() {
		return []filter.WordGroup{{Key: filter.AllNewsKey}}
	}
	return r.filter.Groups
}

func (r *Ranker) logDistribution(report Report) {
	r.log.Info().
		Str("mode", report.Mode).
		Int("titles", report.TotalTitles).
		Int("matched", report.Matched()).
		Msg("ranking complete")
	for _, g := range report.Groups {
		if g.Count == 0 {
			continue
		}
		r.log.Debug().Str("group", g.Key).Int("count", g.Count).Int("shown", len(g.Entries)).Msg("group")
	}
}

// sortEntries: вес по убыванию, лучшая позиция, число появлений по убыванию.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if ra, rb := a.Item.MinRank(), b.Item.MinRank(); ra != rb {
			return ra < rb
		}
		return a.Item.Count > b.Item.Count
	})
}

func sortGroups(groups []Group, byPosition bool) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if byPosition {
			if a.Position != b.Position {
				return a.Position < b.Position
			}
			return a.Count > b.Count
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Position < b.Position
	})
}

// TimeDisplay переводит "HH-MM" в "HH:MM"; диапазон показывается как "[a ~ b]".
func TimeDisplay(first, last string) string {
	if first == "" {
		return ""
	}
	a := strings.ReplaceAll(first, "-", ":")
	b := strings.ReplaceAll(last, "-", ":")
	if a == b || b == "" {
		return a
	}
	return "[" + a + " ~ " + b + "]"
}

func enrich(it, h news.Item) news.Item {
	it.FirstSeen = h.FirstSeen
	it.LastSeen = h.LastSeen
	it.Count = h.Count
	if len(h.Ranks) > 0 {
		it.Ranks = h.Ranks
	}
	if h.URL != "" {
		it.URL = h.URL
	}
	if h.MobileURL != "" {
		it.MobileURL = h.MobileURL
	}
	if h.SourceName != "" {
		it.SourceName = h.SourceName
	}
	return it
}

func indexByTitle(b *news.Batch) map[string]map[string]news.Item {
	out := make(map[string]map[string]news.Item)
	if b == nil {
		return out
	}
	for sourceID, items := range b.Items {
		byTitle := make(map[string]news.Item, len(items))
		for _, it := range news.CollapseByTitle(items) {
			byTitle[it.Title] = it
		}
		out[sourceID] = byTitle
	}
	return out
}

// currentOnly оставляет новости, встреченные в последнем обходе дня.
func currentOnly(history *news.Batch) *news.Batch {
	if history == nil {
		return nil
	}
	latest := ""
	for _, items := range history.Items {
		for _, it := range items {
			if it.LastSeen > latest {
				latest = it.LastSeen
			}
		}
	}
	if latest == "" {
		return history
	}

	out := &news.Batch{
		Date:        history.Date,
		CrawlTime:   latest,
		Items:       make(map[string][]news.Item),
		SourceNames: history.SourceNames,
	}
	for sourceID, items := range history.Items {
		for _, it := range items {
			if it.LastSeen == latest {
				out.Items[sourceID] = append(out.Items[sourceID], it)
			}
		}
	}
	return out
}

func batchFromNew(nt news.NewTitles) *news.Batch {
	out := &news.Batch{Items: make(map[string][]news.Item, len(nt))}
	for sourceID, titles := range nt {
		items := make([]news.Item, 0, len(titles))
		for _, it := range titles {
			items = append(items, it)
		}
		news.SortByRank(items)
		out.Items[sourceID] = items
	}
	return out
}
