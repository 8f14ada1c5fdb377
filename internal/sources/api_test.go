package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maine/trendradar/internal/config"
)

func noBackoff(int) time.Duration { return 0 }

func TestAPIFetcher_Fetch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","items":[
			{"title":"First","url":"https://x/1","mobileUrl":"https://m.x/1"},
			{"title":"  ","url":"https://x/blank"},
			{"title":12.5,"url":"https://x/num"},
			{"title":"First","url":"https://x/1b"},
			{"title":" Third ","url":"https://x/3"}
		]}`))
	}))
	defer srv.Close()

	f := NewAPIFetcher(config.Crawler{APIURL: srv.URL}, WithBackoff(noBackoff))
	got, err := f.Fetch(context.Background(), "weibo")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotQuery != "id=weibo&latest" {
		t.Errorf("query = %q, want id=weibo&latest", gotQuery)
	}
	if len(got) != 2 {
		t.Fatalf("titles = %v, want 2", got)
	}
	first := got["First"]
	if !reflect.DeepEqual(first.Ranks, []int{1, 4}) {
		t.Errorf("First ranks = %v, want [1 4]", first.Ranks)
	}
	if first.URL != "https://x/1" || first.MobileURL != "https://m.x/1" {
		t.Errorf("First urls = %q, %q", first.URL, first.MobileURL)
	}
	if ranks := got["Third"].Ranks; !reflect.DeepEqual(ranks, []int{5}) {
		t.Errorf("Third ranks = %v, want [5]", ranks)
	}
}

func TestAPIFetcher_Retries(t *testing.T) {
	tests := []struct {
		name      string
		responses []string
		wantErr   bool
		wantCalls int32
	}{
		{
			name:      "cache status accepted after failure",
			responses: []string{"500", `{"status":"cache","items":[{"title":"A"}]}`},
			wantCalls: 2,
		},
		{
			name:      "abnormal status exhausts retries",
			responses: []string{`{"status":"error"}`, `{"status":"error"}`, `{"status":"error"}`},
			wantErr:   true,
			wantCalls: 3,
		},
		{
			name:      "broken json",
			responses: []string{"{", "{", "{"},
			wantErr:   true,
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(calls.Add(1)) - 1
				body := tt.responses[min(n, len(tt.responses)-1)]
				if body == "500" {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			f := NewAPIFetcher(config.Crawler{APIURL: srv.URL}, WithBackoff(noBackoff))
			_, err := f.Fetch(context.Background(), "p")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Fetch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestJitterBackoff(t *testing.T) {
	for attempt := 1; attempt <= 3; attempt++ {
		for i := 0; i < 50; i++ {
			d := jitterBackoff(attempt)
			lo := time.Duration(3+(attempt-1)) * time.Second
			hi := time.Duration(5+2*(attempt-1)) * time.Second
			if d < lo || d > hi {
				t.Fatalf("jitterBackoff(%d) = %v, want in [%v, %v]", attempt, d, lo, hi)
			}
		}
	}
}

func TestAPIFetcher_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewAPIFetcher(config.Crawler{APIURL: srv.URL}, WithBackoff(func(int) time.Duration { return time.Hour }))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := f.Fetch(ctx, "p"); err == nil {
		t.Fatal("Fetch() error = nil, want context error")
	}
}
