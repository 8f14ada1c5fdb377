package sources

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/maine/trendradar/internal/config"
	"github.com/maine/trendradar/internal/news"
)

// Collection - итог обхода всех источников.
type Collection struct {
	Result news.FetchResult
	Names  map[string]string
	Failed []string
}

// Fetcher загружает одну площадку API.
type Fetcher interface {
	Fetch(ctx context.Context, platformID string) (map[string]news.TitleInfo, error)
}

// FeedFetcher загружает одну ленту.
type FeedFetcher interface {
	Fetch(ctx context.Context, feed config.Feed) (map[string]news.TitleInfo, error)
}

// Collector обходит площадки и ленты по очереди.
// Ошибка источника не прерывает обход: источник попадает в Failed.
type Collector struct {
	api       Fetcher
	rss       FeedFetcher
	platforms []config.Platform
	feeds     []config.Feed
	log       zerolog.Logger
}

// NewCollector собирает обход по конфигурации. rss может быть nil,
// тогда ленты пропускаются.
func NewCollector(cfg config.Crawler, api Fetcher, rss FeedFetcher, log zerolog.Logger) *Collector {
	c := &Collector{
		api:       api,
		rss:       rss,
		platforms: cfg.Platforms,
		log:       log,
	}
	if cfg.RSS.Enabled {
		c.feeds = cfg.RSS.Feeds
	}
	return c
}

// Collect обходит все источники. Ошибку возвращает только отмена контекста.
func (c *Collector) Collect(ctx context.Context) (*Collection, error) {
	out := &Collection{
		Result: news.FetchResult{},
		Names:  map[string]string{},
	}

	for _, p := range c.platforms {
		out.Names[p.ID] = nameOr(p.Name, p.ID)
		items, err := c.api.Fetch(ctx, p.ID)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			c.log.Error().Err(err).Str("source", p.ID).Msg("platform failed")
			out.Failed = append(out.Failed, p.ID)
			continue
		}
		out.Result[p.ID] = items
	}

	if c.rss != nil {
		for _, feed := range c.feeds {
			out.Names[feed.ID] = nameOr(feed.Name, feed.ID)
			items, err := c.rss.Fetch(ctx, feed)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if err != nil {
				c.log.Error().Err(err).Str("source", feed.ID).Msg("feed failed")
				out.Failed = append(out.Failed, feed.ID)
				continue
			}
			out.Result[feed.ID] = items
		}
	}

	c.log.Info().
		Int("succeeded", len(out.Result)).
		Strs("failed", out.Failed).
		Msg("collection finished")
	return out, nil
}

func nameOr(name, id string) string {
	if name == "" {
		return id
	}
	return name
}
