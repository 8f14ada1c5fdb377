package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/maine/trendradar/internal/app"
	"github.com/maine/trendradar/internal/config"
	"github.com/maine/trendradar/internal/filter"
	"github.com/maine/trendradar/internal/formatter"
	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/ranking"
	"github.com/maine/trendradar/internal/sources"
	"github.com/maine/trendradar/internal/storage"
	"github.com/maine/trendradar/internal/telegram"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: CONFIG_PATH or config/config.yaml)")
	flag.Parse()

	// .env необязателен
	_ = godotenv.Load()

	log := logger.New(withService(logger.FromEnv(os.LookupEnv), "trendradar"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, log); err != nil {
		log.Error().Err(err).Msg("crawl failed")
		stop()
		os.Exit(1)
	}
}

func withService(opts logger.Options, name string) logger.Options {
	opts.Service = name
	return opts
}

func run(ctx context.Context, configPath string, log zerolog.Logger) error {
	cfg, err := config.Load(configPath, config.OSEnv)
	if err != nil {
		return err
	}
	loc := cfg.App.Location()

	words, err := filter.Load(cfg.FrequencyWordsPath)
	if err != nil {
		return err
	}

	mgr, err := storage.NewManager(cfg.Storage, loc, storage.WithLogger(logger.Named(log, "storage")))
	if err != nil {
		return err
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Warn().Err(err).Msg("close storage")
		}
	}()

	if cfg.Storage.Pull.Enabled && mgr.RemoteConfigured() && mgr.Backend().Name() == storage.BackendLocal {
		n, err := mgr.PullRecent(ctx, cfg.Storage.Pull.Days)
		if err != nil {
			log.Warn().Err(err).Msg("pull recent dates")
		} else {
			log.Info().Int("dates", n).Msg("pulled remote dates")
		}
	}

	if !config.Bool(cfg.Crawler.Enabled) {
		log.Info().Msg("crawler disabled, nothing to do")
		return cleanup(ctx, mgr, log)
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}
	api := sources.NewAPIFetcher(cfg.Crawler,
		sources.WithHTTPClient(httpClient),
		sources.WithAPILogger(logger.Named(log, "api")),
	)
	var rss sources.FeedFetcher
	if cfg.Crawler.RSS.Enabled {
		rss = sources.NewRSSFetcher(httpClient, cfg.Crawler.RequestIntervalMS, logger.Named(log, "rss"))
	}
	collector := sources.NewCollector(cfg.Crawler, api, rss, logger.Named(log, "collector"))

	var sender app.Sender
	tg := cfg.Notification.Telegram
	if config.Bool(cfg.Notification.Enabled) && tg.BotToken != "" && tg.ChatID != "" {
		sender = telegram.NewSender(telegram.NewClient(tg.BotToken, ""), tg.ChatID, logger.Named(log, "telegram"))
	} else {
		log.Info().Msg("telegram not configured, notifications off")
	}

	p := app.NewPipeline(app.PipelineDeps{
		Collector:    collector,
		Storage:      mgr.Backend(),
		Ranker:       ranking.NewRanker(cfg.Report, cfg.Weight, words, logger.Named(log, "ranking")),
		Formatter:    formatter.NewFormatter(cfg.Report.RankThreshold),
		Sender:       sender,
		Notification: cfg.Notification,
		ReportMode:   cfg.Report.Mode,
		Location:     loc,
		Logger:       logger.Named(log, "pipeline"),
	})

	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Str("date", res.Date).
		Str("crawl_time", res.CrawlTime).
		Int("items", res.Items).
		Bool("persisted", res.Persisted).
		Bool("pushed", res.Pushed).
		Msg("crawl completed")

	return cleanup(ctx, mgr, log)
}

// cleanup не валит обход: ошибку очистки достаточно записать в лог.
func cleanup(ctx context.Context, mgr *storage.Manager, log zerolog.Logger) error {
	n, err := mgr.Cleanup(ctx)
	if errors.Is(err, context.Canceled) {
		return err
	}
	if err != nil {
		log.Warn().Err(err).Msg("retention cleanup")
	}
	if n > 0 {
		log.Info().Int("removed", n).Msg("expired dates removed")
	}
	return nil
}
