package filter

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sampleWords = `[GLOBAL_FILTER]
advert
!ignored
+ignored

[WORD_GROUPS]
AI
ChatGPT
@3

+Tesla
recall
!rumor

+Apple
+iPhone

@abc
@-2
Mars
`

func TestParse(t *testing.T) {
	f := Parse(sampleWords)

	if !reflect.DeepEqual(f.GlobalFilters, []string{"advert"}) {
		t.Errorf("GlobalFilters = %v, want [advert]", f.GlobalFilters)
	}
	if !reflect.DeepEqual(f.FilterWords, []string{"rumor"}) {
		t.Errorf("FilterWords = %v, want [rumor]", f.FilterWords)
	}
	if len(f.Groups) != 4 {
		t.Fatalf("len(Groups) = %d, want 4", len(f.Groups))
	}

	tests := []struct {
		idx      int
		key      string
		maxCount int
		required []string
		normal   []string
	}{
		{idx: 0, key: "AI ChatGPT", maxCount: 3, normal: []string{"AI", "ChatGPT"}},
		{idx: 1, key: "recall", required: []string{"Tesla"}, normal: []string{"recall"}},
		{idx: 2, key: "Apple iPhone", required: []string{"Apple", "iPhone"}},
		{idx: 3, key: "Mars", normal: []string{"Mars"}},
	}
	for _, tt := range tests {
		g := f.Groups[tt.idx]
		if g.Key != tt.key {
			t.Errorf("group %d key = %q, want %q", tt.idx, g.Key, tt.key)
		}
		if g.MaxCount != tt.maxCount {
			t.Errorf("group %d max = %d, want %d", tt.idx, g.MaxCount, tt.maxCount)
		}
		if !reflect.DeepEqual(g.Required, tt.required) {
			t.Errorf("group %d required = %v, want %v", tt.idx, g.Required, tt.required)
		}
		if !reflect.DeepEqual(g.Normal, tt.normal) {
			t.Errorf("group %d normal = %v, want %v", tt.idx, g.Normal, tt.normal)
		}
	}
}

func TestParse_FilterOnlyGroupDropped(t *testing.T) {
	f := Parse("!spam\n@5\n\nGo\r\n")
	if len(f.Groups) != 1 || f.Groups[0].Key != "Go" {
		t.Errorf("Groups = %+v", f.Groups)
	}
	if !reflect.DeepEqual(f.FilterWords, []string{"spam"}) {
		t.Errorf("FilterWords = %v", f.FilterWords)
	}
}

func TestFilter_Matches(t *testing.T) {
	f := Parse(sampleWords)

	tests := []struct {
		name  string
		title string
		want  bool
	}{
		{name: "empty title", title: "   ", want: false},
		{name: "normal word", title: "New ai model released", want: true},
		{name: "global filter wins", title: "AI advert campaign", want: false},
		{name: "required and normal", title: "Tesla announces recall", want: true},
		{name: "required without normal", title: "Tesla stock up", want: false},
		{name: "filter word", title: "Tesla recall rumor", want: false},
		{name: "filter word is flat", title: "AI rumor mill", want: false},
		{name: "all required", title: "Apple unveils iPhone 20", want: true},
		{name: "partial required", title: "Apple earnings", want: false},
		{name: "no group", title: "Weather today", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Matches(tt.title); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.title, got, tt.want)
			}
		})
	}
}

func TestFilter_MatchesWithoutGroups(t *testing.T) {
	f := Parse("[GLOBAL_FILTER]\nspam\n")
	if !f.Empty() {
		t.Fatal("Empty() = false, want true")
	}
	if !f.Matches("anything at all") {
		t.Error("no groups must match everything")
	}
	if f.Matches("spam offer") {
		t.Error("global filter must still apply")
	}
	if f.MatchGroup("anything") != -1 {
		t.Error("MatchGroup() without groups must be -1")
	}

	var nilFilter *Filter
	if !nilFilter.Matches("title") {
		t.Error("nil filter must match everything")
	}
}

func TestFilter_MatchGroupFirstWins(t *testing.T) {
	f := Parse("AI\n\n+OpenAI\nAI\n")
	if got := f.MatchGroup("OpenAI ships AI"); got != 0 {
		t.Errorf("MatchGroup() = %d, want 0", got)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	if err := os.WriteFile(path, []byte("Go\nRust\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(f.Groups) != 1 || f.Groups[0].Key != "Go Rust" {
		t.Errorf("Groups = %+v", f.Groups)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("Load() of missing file must fail")
	}
}
