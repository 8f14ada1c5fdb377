package sources

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/maine/trendradar/internal/config"
	"github.com/maine/trendradar/internal/news"
)

type fakeAPI map[string]map[string]news.TitleInfo

func (f fakeAPI) Fetch(_ context.Context, id string) (map[string]news.TitleInfo, error) {
	items, ok := f[id]
	if !ok {
		return nil, errors.New("boom")
	}
	return items, nil
}

type fakeFeeds map[string]map[string]news.TitleInfo

func (f fakeFeeds) Fetch(_ context.Context, feed config.Feed) (map[string]news.TitleInfo, error) {
	items, ok := f[feed.ID]
	if !ok {
		return nil, errors.New("boom")
	}
	return items, nil
}

func TestCollector_Collect(t *testing.T) {
	api := fakeAPI{"weibo": {"A": {Ranks: []int{1}}}}
	feeds := fakeFeeds{"hn": {"B": {Ranks: []int{1}}}}
	cfg := config.Crawler{
		Platforms: []config.Platform{{ID: "weibo", Name: "Weibo"}, {ID: "down"}},
		RSS: config.RSS{
			Enabled: true,
			Feeds:   []config.Feed{{ID: "hn", Name: "Hacker News", URL: "https://hn"}, {ID: "gone", URL: "https://gone"}},
		},
	}

	got, err := NewCollector(cfg, api, feeds, zerolog.Nop()).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if len(got.Result) != 2 || got.Result["weibo"] == nil || got.Result["hn"] == nil {
		t.Errorf("Result = %v", got.Result)
	}
	wantNames := map[string]string{"weibo": "Weibo", "down": "down", "hn": "Hacker News", "gone": "gone"}
	if !reflect.DeepEqual(got.Names, wantNames) {
		t.Errorf("Names = %v, want %v", got.Names, wantNames)
	}
	if want := []string{"down", "gone"}; !reflect.DeepEqual(got.Failed, want) {
		t.Errorf("Failed = %v, want %v", got.Failed, want)
	}
}

func TestCollector_RSSDisabled(t *testing.T) {
	cfg := config.Crawler{
		RSS: config.RSS{Feeds: []config.Feed{{ID: "hn", URL: "https://hn"}}},
	}
	got, err := NewCollector(cfg, fakeAPI{}, fakeFeeds{"hn": {}}, zerolog.Nop()).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(got.Result) != 0 || len(got.Failed) != 0 {
		t.Errorf("disabled RSS was fetched: %+v", got)
	}
}

func TestCollector_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := config.Crawler{Platforms: []config.Platform{{ID: "weibo"}}}
	if _, err := NewCollector(cfg, fakeAPI{}, nil, zerolog.Nop()).Collect(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Collect() error = %v, want context.Canceled", err)
	}
}
