// Package sources собирает рейтинги площадок: JSON API в стиле NewsNow и RSS-ленты.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/maine/trendradar/internal/config"
	"github.com/maine/trendradar/internal/news"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultRetries   = 2
)

// APIFetcher загружает рейтинг площадки из {apiURL}?id={id}&latest.
type APIFetcher struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	retries int
	backoff func(attempt int) time.Duration
	log     zerolog.Logger
}

// APIOption настраивает APIFetcher.
type APIOption func(*APIFetcher)

// WithHTTPClient подменяет HTTP-клиента.
func WithHTTPClient(c *http.Client) APIOption {
	return func(f *APIFetcher) { f.client = c }
}

// WithBackoff подменяет паузу перед повтором (attempt начинается с 1).
func WithBackoff(fn func(attempt int) time.Duration) APIOption {
	return func(f *APIFetcher) { f.backoff = fn }
}

// WithAPILogger задаёт логгер.
func WithAPILogger(log zerolog.Logger) APIOption {
	return func(f *APIFetcher) { f.log = log }
}

// NewAPIFetcher создаёт загрузчик. Запросы к площадкам идут не чаще
// одного за RequestIntervalMS.
func NewAPIFetcher(cfg config.Crawler, opts ...APIOption) *APIFetcher {
	f := &APIFetcher{
		baseURL: cfg.APIURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: newLimiter(cfg.RequestIntervalMS),
		retries: defaultRetries,
		backoff: jitterBackoff,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func newLimiter(intervalMS int) *rate.Limiter {
	if intervalMS <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Duration(intervalMS)*time.Millisecond), 1)
}

// jitterBackoff: 3-5 с плюс 1-2 с за каждый предыдущий повтор.
func jitterBackoff(attempt int) time.Duration {
	base := 3 + rand.Float64()*2
	extra := float64(attempt-1) * (1 + rand.Float64())
	return time.Duration((base + extra) * float64(time.Second))
}

type apiResponse struct {
	Status string    `json:"status"`
	Items  []apiItem `json:"items"`
}

type apiItem struct {
	Title     any    `json:"title"`
	URL       string `json:"url"`
	MobileURL string `json:"mobileUrl"`
}

// Fetch загружает одну площадку с повторами.
func (f *APIFetcher) Fetch(ctx context.Context, platformID string) (map[string]news.TitleInfo, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			wait := f.backoff(attempt)
			f.log.Warn().Err(lastErr).Str("source", platformID).Dur("wait", wait).Msg("request failed, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, err := f.fetchOnce(ctx, platformID)
		if err == nil {
			f.log.Debug().Str("source", platformID).Str("status", resp.Status).Int("items", len(resp.Items)).Msg("fetched")
			return parseItems(resp.Items), nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("fetch %s: %w", platformID, lastErr)
}

func (f *APIFetcher) fetchOnce(ctx context.Context, platformID string) (*apiResponse, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	// Флаг latest без значения, как ожидает API.
	u.RawQuery = "id=" + url.QueryEscape(platformID) + "&latest"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if out.Status != "success" && out.Status != "cache" {
		return nil, fmt.Errorf("abnormal response status %q", out.Status)
	}
	return &out, nil
}

// parseItems превращает список площадки в заголовок -> данные.
// Позиция - порядковый номер в исходном списке (с единицы), пустые и
// нестроковые заголовки пропускаются, повтор заголовка добавляет позицию.
func parseItems(items []apiItem) map[string]news.TitleInfo {
	out := make(map[string]news.TitleInfo, len(items))
	for i, it := range items {
		s, ok := it.Title.(string)
		if !ok {
			continue
		}
		title := strings.TrimSpace(s)
		if title == "" {
			continue
		}
		addTitle(out, title, i+1, it.URL, it.MobileURL)
	}
	return out
}

func addTitle(out map[string]news.TitleInfo, title string, rank int, link, mobile string) {
	if info, ok := out[title]; ok {
		info.Ranks = append(info.Ranks, rank)
		out[title] = info
		return
	}
	out[title] = news.TitleInfo{Ranks: []int{rank}, URL: link, MobileURL: mobile}
}
