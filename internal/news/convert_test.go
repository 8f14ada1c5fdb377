package news

import (
	"reflect"
	"testing"
)

func TestFromResult(t *testing.T) {
	result := FetchResult{
		"weibo": {
			"B": {Ranks: []int{2, 5}, URL: "https://b"},
			"A": {Ranks: []int{1}, URL: "https://a", MobileURL: "https://m.a"},
			"C": {},
		},
	}
	batch := FromResult(result, map[string]string{"weibo": "Weibo"}, []string{"zhihu"}, "2025-01-02", "10-00")

	if batch.Date != "2025-01-02" || batch.CrawlTime != "10-00" {
		t.Fatalf("unexpected batch header: %+v", batch)
	}
	items := batch.Items["weibo"]
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	gotOrder := []string{items[0].Title, items[1].Title, items[2].Title}
	if !reflect.DeepEqual(gotOrder, []string{"A", "B", "C"}) {
		t.Errorf("order = %v, want [A B C]", gotOrder)
	}
	if items[1].Rank != 2 {
		t.Errorf("B rank = %d, want 2", items[1].Rank)
	}
	if items[2].Rank != defaultRank {
		t.Errorf("C rank = %d, want %d", items[2].Rank, defaultRank)
	}
	if items[0].SourceName != "Weibo" || items[0].Count != 1 || items[0].FirstSeen != "10-00" {
		t.Errorf("unexpected item A: %+v", items[0])
	}
	if !reflect.DeepEqual(batch.FailedSourceIDs, []string{"zhihu"}) {
		t.Errorf("failed = %v", batch.FailedSourceIDs)
	}
	if batch.TotalItems() != 3 {
		t.Errorf("TotalItems() = %d, want 3", batch.TotalItems())
	}
}

func TestCollapseByTitle(t *testing.T) {
	items := []Item{
		{Title: "X", Rank: 3, Ranks: []int{3}, FirstSeen: "09-00", LastSeen: "09-00", Count: 1},
		{Title: "Y", Rank: 1, Ranks: []int{1}, FirstSeen: "09-00", LastSeen: "09-00", Count: 1},
		{Title: "X", Rank: 2, Ranks: []int{2}, FirstSeen: "10-00", LastSeen: "10-00", Count: 1, URL: ""},
	}
	got := CollapseByTitle(items)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	x := got[0]
	if x.Count != 2 || x.FirstSeen != "09-00" || x.LastSeen != "10-00" || x.Rank != 2 {
		t.Errorf("merged X = %+v", x)
	}
	if !reflect.DeepEqual(x.Ranks, []int{3, 2}) {
		t.Errorf("ranks = %v, want [3 2]", x.Ranks)
	}
	if items[0].Ranks[0] != 3 || len(items[0].Ranks) != 1 {
		t.Errorf("input mutated: %v", items[0].Ranks)
	}
}

func TestMinRank(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want int
	}{
		{name: "history", item: Item{Rank: 4, Ranks: []int{4, 2, 7}}, want: 2},
		{name: "no history", item: Item{Rank: 4}, want: 4},
		{name: "nothing", item: Item{}, want: defaultRank},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.MinRank(); got != tt.want {
				t.Errorf("MinRank() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewTitles(t *testing.T) {
	nt := NewTitles{"a": {"t1": {}, "t2": {}}, "b": {"t3": {}}}
	if nt.Count() != 3 {
		t.Errorf("Count() = %d, want 3", nt.Count())
	}
	if !nt.Has("a", "t2") || nt.Has("b", "t1") {
		t.Errorf("Has() gave wrong answer")
	}
}
