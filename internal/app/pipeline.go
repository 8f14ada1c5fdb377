package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/maine/trendradar/internal/config"
	"github.com/maine/trendradar/internal/formatter"
	"github.com/maine/trendradar/internal/news"
	"github.com/maine/trendradar/internal/ranking"
	"github.com/maine/trendradar/internal/sources"
	"github.com/maine/trendradar/internal/storage"
)

// ErrNotConfigured возвращается, когда пайплайн запущен без обязательных зависимостей.
var ErrNotConfigured = errors.New("pipeline dependencies not configured")

// Clock определяет источник времени (удобно подменять в тестах).
type Clock func() time.Time

// Причины, по которым отчёт не отправлен.
const (
	SkipDisabled     = "notification disabled"
	SkipEmptyReport  = "no matched news"
	SkipOutsideTime  = "outside push window"
	SkipAlreadyToday = "already pushed today"
)

// Collector обходит источники.
type Collector interface {
	Collect(ctx context.Context) (*sources.Collection, error)
}

// Ranker строит отчёт по ключевым словам.
type Ranker interface {
	Rank(in ranking.Input) ranking.Report
}

// Formatter превращает отчёт в сообщения.
type Formatter interface {
	BuildMessages(report ranking.Report, meta formatter.Meta) []string
}

// Sender публикует подготовленные сообщения.
type Sender interface {
	Send(ctx context.Context, messages []string) error
}

// PipelineDeps перечисляет зависимости пайплайна. Sender может быть nil,
// тогда уведомления не отправляются.
type PipelineDeps struct {
	Collector    Collector
	Storage      storage.Backend
	Ranker       Ranker
	Formatter    Formatter
	Sender       Sender
	Notification config.Notification
	ReportMode   string
	Location     *time.Location
	Clock        Clock
	Logger       zerolog.Logger
}

// Result - итог одного обхода.
type Result struct {
	Date       string
	CrawlTime  string
	Items      int
	Failed     []string
	Persisted  bool
	Snapshot   string
	NewTitles  int
	Matched    int
	Messages   int
	Pushed     bool
	SkipReason string
}

// Pipeline исполняет один обход: сбор, сохранение, поиск новых, отчёт и отправку.
type Pipeline struct {
	collector    Collector
	storage      storage.Backend
	ranker       Ranker
	formatter    Formatter
	sender       Sender
	notification config.Notification
	reportMode   string
	loc          *time.Location
	clock        Clock
	log          zerolog.Logger
}

// NewPipeline создаёт новый экземпляр пайплайна.
func NewPipeline(deps PipelineDeps) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	mode := deps.ReportMode
	if mode == "" {
		mode = ranking.ModeDaily
	}

	return &Pipeline{
		collector:    deps.Collector,
		storage:      deps.Storage,
		ranker:       deps.Ranker,
		formatter:    deps.Formatter,
		sender:       deps.Sender,
		notification: deps.Notification,
		reportMode:   mode,
		loc:          loc,
		clock:        clock,
		log:          deps.Logger,
	}
}

// Run исполняет полный цикл. Ошибка хранилища не прерывает обход:
// отчёт строится по собранному пакету.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := p.validateDeps(); err != nil {
		return nil, err
	}

	now := p.clock()
	res := &Result{
		Date:      news.DateToken(now, p.loc),
		CrawlTime: news.CrawlTimeToken(now, p.loc),
	}
	log := p.log.With().Str("date", res.Date).Str("crawl_time", res.CrawlTime).Logger()

	log.Info().Msg("step 1: collecting sources")
	collected, err := p.collector.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect sources: %w", err)
	}
	batch := news.FromResult(collected.Result, collected.Names, collected.Failed, res.Date, res.CrawlTime)
	res.Items = batch.TotalItems()
	res.Failed = batch.FailedSourceIDs
	log.Info().Int("items", res.Items).Int("failed", len(res.Failed)).Msg("sources collected")

	log.Info().Msg("step 2: saving batch")
	if err := p.storage.SaveBatch(ctx, batch); err != nil {
		log.Error().Err(err).Str("backend", p.storage.Name()).Msg("crawl succeeded, persistence failed")
	} else {
		res.Persisted = true
	}

	if path, err := p.storage.SaveSnapshot(ctx, batch); err != nil {
		log.Warn().Err(err).Msg("snapshot not written")
	} else if path != "" {
		res.Snapshot = path
		log.Debug().Str("path", path).Msg("snapshot written")
	}

	log.Info().Msg("step 3: detecting new titles")
	input := p.rankingInput(ctx, batch, res.Persisted, log)
	res.NewTitles = input.NewTitles.Count()
	log.Info().Int("new", res.NewTitles).Bool("first_crawl", input.FirstCrawlToday).Msg("new titles detected")

	log.Info().Str("mode", p.reportMode).Msg("step 4: ranking")
	report := p.ranker.Rank(input)
	res.Matched = report.Matched()

	messages := p.formatter.BuildMessages(report, formatter.Meta{
		Date:          res.Date,
		CrawlTime:     res.CrawlTime,
		FailedSources: batch.FailedSourceIDs,
		SourceNames:   batch.SourceNames,
	})
	res.Messages = len(messages)
	log.Info().Int("matched", res.Matched).Int("messages", res.Messages).Msg("report built")

	log.Info().Msg("step 5: notifying")
	if reason := p.skipReason(ctx, res.Date, now, len(messages)); reason != "" {
		res.SkipReason = reason
		log.Info().Str("reason", reason).Msg("notification skipped")
		return res, nil
	}

	if err := p.sender.Send(ctx, messages); err != nil {
		return res, fmt.Errorf("send report: %w", err)
	}
	res.Pushed = true

	if err := p.storage.RecordPush(ctx, p.reportMode, res.Date); err != nil {
		log.Warn().Err(err).Msg("push not recorded")
	}
	log.Info().Int("messages", len(messages)).Msg("report sent")
	return res, nil
}

// rankingInput собирает историю дня. Если хранилище недоступно, всё в пакете
// считается новым, а история - самим пакетом.
func (p *Pipeline) rankingInput(ctx context.Context, batch *news.Batch, persisted bool, log zerolog.Logger) ranking.Input {
	fallback := ranking.Input{
		Current:         batch,
		History:         batch,
		NewTitles:       allNew(batch),
		FirstCrawlToday: true,
	}
	if !persisted {
		return fallback
	}

	in := ranking.Input{Current: batch}

	newTitles, err := p.storage.DetectNewTitles(ctx, batch)
	if err != nil {
		log.Warn().Err(err).Msg("detect new titles failed, treating all as new")
		newTitles = fallback.NewTitles
	}
	in.NewTitles = newTitles

	history, err := p.storage.GetAllForDate(ctx, batch.Date)
	if err != nil || history == nil {
		if err != nil {
			log.Warn().Err(err).Msg("load history failed, using batch")
		}
		history = batch
	}
	in.History = history

	first, err := p.storage.IsFirstCrawlToday(ctx, batch.Date)
	if err != nil {
		log.Warn().Err(err).Msg("first crawl check failed")
		first = true
	}
	in.FirstCrawlToday = first
	return in
}

func (p *Pipeline) skipReason(ctx context.Context, date string, now time.Time, messages int) string {
	if p.sender == nil || !config.Bool(p.notification.Enabled) {
		return SkipDisabled
	}
	if messages == 0 {
		return SkipEmptyReport
	}

	window := p.notification.PushWindow
	if !window.Enabled {
		return ""
	}
	if !InWindow(now.In(p.loc).Format("15:04"), window.Start, window.End) {
		return SkipOutsideTime
	}
	if config.Bool(window.OncePerDay) {
		pushed, err := p.storage.HasPushed(ctx, date)
		if err != nil {
			p.log.Warn().Err(err).Str("date", date).Msg("push record unavailable")
			return ""
		}
		if pushed {
			return SkipAlreadyToday
		}
	}
	return ""
}

// InWindow сообщает, попадает ли HH:MM в [start, end] включительно.
// Окно с start > end переходит через полночь.
func InWindow(hhmm, start, end string) bool {
	if start <= end {
		return hhmm >= start && hhmm <= end
	}
	return hhmm >= start || hhmm <= end
}

func (p *Pipeline) validateDeps() error {
	// sender опционален: без него пайплайн только собирает и сохраняет
	switch {
	case p.collector == nil,
		p.storage == nil,
		p.ranker == nil,
		p.formatter == nil,
		p.clock == nil:
		return ErrNotConfigured
	default:
		return nil
	}
}

func allNew(batch *news.Batch) news.NewTitles {
	out := news.NewTitles{}
	for sourceID, items := range batch.Items {
		titles := make(map[string]news.Item, len(items))
		for _, it := range items {
			titles[it.Title] = it
		}
		out[sourceID] = titles
	}
	return out
}
