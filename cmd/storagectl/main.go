// Command storagectl обслуживает хранилище новостей и читает из него.
//
//	storagectl [-config path] <command> [flags]
//
// Команды обслуживания: pull, cleanup, dates, status.
// Команды чтения: latest, bydate, search, topics (ответ в JSON).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/maine/trendradar/internal/cache"
	"github.com/maine/trendradar/internal/config"
	"github.com/maine/trendradar/internal/filter"
	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/news"
	"github.com/maine/trendradar/internal/query"
	"github.com/maine/trendradar/internal/storage"
)

const usage = `usage: storagectl [-config path] <command> [flags]

maintenance:
  pull    [-days N]                  download recent remote stores into the local data dir
  cleanup                            apply local and remote retention policies
  dates   [-remote]                  list stored dates
  status  [-date YYYY-MM-DD]         backend and crawl times of a date

queries:
  latest  [-date D] [-platforms a,b] [-limit N]
  bydate  -date D [-platforms a,b] [-limit N]
  search  -keyword K [-start D] [-end D] [-limit N]
  topics  [-date D] [-top N]
`

type command struct {
	cfg config.Root
	loc *time.Location
	mgr *storage.Manager
	out io.Writer
	log zerolog.Logger
}

func main() {
	fs := flag.NewFlagSet("storagectl", flag.ExitOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := fs.String("config", "", "path to config.yaml")
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	log := logger.New(logger.FromEnv(os.LookupEnv))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, fs.Args(), os.Stdout, log); err != nil {
		if query.IsNotFound(err) {
			fmt.Fprintln(os.Stderr, err)
		} else {
			log.Error().Err(err).Msg("storagectl failed")
		}
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, args []string, out io.Writer, log zerolog.Logger) error {
	cfg, err := config.Load(configPath, config.OSEnv)
	if err != nil {
		return err
	}
	loc := cfg.App.Location()

	mgr, err := storage.NewManager(cfg.Storage, loc, storage.WithLogger(logger.Named(log, "storage")))
	if err != nil {
		return err
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Warn().Err(err).Msg("close storage")
		}
	}()

	c := &command{cfg: cfg, loc: loc, mgr: mgr, out: out, log: log}
	name, rest := args[0], args[1:]
	switch name {
	case "pull":
		return c.pull(ctx, rest)
	case "cleanup":
		return c.cleanup(ctx)
	case "dates":
		return c.dates(ctx, rest)
	case "status":
		return c.status(ctx, rest)
	case "latest", "bydate", "search", "topics":
		return c.query(ctx, name, rest)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func (c *command) pull(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pull", flag.ContinueOnError)
	days := fs.Int("days", c.cfg.Storage.Pull.Days, "number of days to pull")
	if err := fs.Parse(args); err != nil {
		return err
	}

	n, err := c.mgr.PullRecent(ctx, *days)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "pulled %d date(s)\n", n)
	return nil
}

func (c *command) cleanup(ctx context.Context) error {
	n, err := c.mgr.Cleanup(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "removed %d expired date(s)\n", n)
	return nil
}

func (c *command) dates(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dates", flag.ContinueOnError)
	remote := fs.Bool("remote", false, "list dates in remote storage")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		dates []string
		err   error
	)
	if *remote {
		dates, err = c.mgr.ListRemoteDates(ctx)
	} else {
		dates, err = c.mgr.Backend().ListDates(ctx)
	}
	if err != nil {
		return err
	}
	for _, d := range dates {
		fmt.Fprintln(c.out, d)
	}
	return nil
}

func (c *command) status(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	date := fs.String("date", news.DateToken(time.Now(), c.loc), "date YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}

	backend := c.mgr.Backend()
	times, err := backend.CrawlTimes(ctx, *date)
	if err != nil {
		return err
	}
	pushed, err := backend.HasPushed(ctx, *date)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "backend:  %s\n", backend.Name())
	fmt.Fprintf(c.out, "remote:   %t\n", c.mgr.RemoteConfigured())
	fmt.Fprintf(c.out, "date:     %s\n", *date)
	fmt.Fprintf(c.out, "crawls:   %d %s\n", len(times), strings.Join(times, " "))
	fmt.Fprintf(c.out, "pushed:   %t\n", pushed)
	return nil
}

func (c *command) query(ctx context.Context, name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	date := fs.String("date", "", "date YYYY-MM-DD (default today)")
	platforms := fs.String("platforms", "", "comma separated platform ids")
	limit := fs.Int("limit", 0, "max results")
	keyword := fs.String("keyword", "", "search keyword")
	start := fs.String("start", "", "search start date")
	end := fs.String("end", "", "search end date")
	top := fs.Int("top", 10, "number of topics")
	if err := fs.Parse(args); err != nil {
		return err
	}

	words, err := filter.Load(c.cfg.FrequencyWordsPath)
	if err != nil {
		c.log.Warn().Err(err).Msg("frequency words unavailable, topics disabled")
	}
	svc := query.New(c.mgr.Backend(), cache.New(time.Now), words,
		query.WithLatestTTL(time.Duration(c.cfg.Cache.TTLSeconds)*time.Second),
		query.WithClock(time.Now, c.loc),
		query.WithLogger(logger.Named(c.log, "query")),
	)

	var ids []string
	if *platforms != "" {
		for _, p := range strings.Split(*platforms, ",") {
			if p = strings.TrimSpace(p); p != "" {
				ids = append(ids, p)
			}
		}
	}

	var result any
	switch name {
	case "latest":
		result, err = svc.LatestNews(ctx, *date, ids, *limit)
	case "bydate":
		if *date == "" {
			return errors.New("bydate: -date is required")
		}
		result, err = svc.NewsByDate(ctx, *date, ids, *limit)
	case "search":
		result, err = svc.SearchTitles(ctx, *keyword, *start, *end, *limit)
	case "topics":
		result, err = svc.TrendingTopics(ctx, *date, *top)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(result)
}
