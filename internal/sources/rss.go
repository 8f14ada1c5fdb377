package sources

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/maine/trendradar/internal/config"
	"github.com/maine/trendradar/internal/news"
)

const defaultMaxFeedItems = 50

// errEmptyFeed - лента разобрана, но в ней нет ни одной записи с заголовком.
var errEmptyFeed = errors.New("no valid items in feed")

// RSSFetcher читает RSS/Atom-ленты. Позиция в рейтинге - порядок записи в ленте.
type RSSFetcher struct {
	parser  *gofeed.Parser
	strip   *bluemonday.Policy
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewRSSFetcher создаёт загрузчик лент. client может быть nil.
func NewRSSFetcher(client *http.Client, intervalMS int, log zerolog.Logger) *RSSFetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = defaultUserAgent

	return &RSSFetcher{
		parser:  parser,
		strip:   bluemonday.StrictPolicy(),
		limiter: newLimiter(intervalMS),
		log:     log,
	}
}

// Fetch загружает ленту и возвращает не больше MaxItems записей.
func (f *RSSFetcher) Fetch(ctx context.Context, feed config.Feed) (map[string]news.TitleInfo, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	parsed, err := f.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feed.ID, err)
	}

	limit := feed.MaxItems
	if limit <= 0 {
		limit = defaultMaxFeedItems
	}

	out := make(map[string]news.TitleInfo)
	rank := 0
	for _, item := range parsed.Items {
		if rank >= limit {
			break
		}
		title := f.cleanTitle(item.Title)
		if title == "" {
			continue
		}
		rank++
		link := strings.TrimSpace(item.Link)
		addTitle(out, title, rank, link, link)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("feed %s: %w", feed.ID, errEmptyFeed)
	}
	f.log.Debug().Str("source", feed.ID).Int("items", rank).Msg("fetched feed")
	return out, nil
}

// cleanTitle убирает HTML-разметку из заголовка ленты.
func (f *RSSFetcher) cleanTitle(raw string) string {
	s := f.strip.Sanitize(raw)
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
