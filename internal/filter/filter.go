package filter

import "strings"

// Filter хранит правила отбора заголовков по ключевым словам.
type Filter struct {
	Groups        []WordGroup
	FilterWords   []string // стоп-слова из всех групп
	GlobalFilters []string
}

// New создаёт фильтр из готовых групп.
func New(groups []WordGroup, filterWords, globalFilters []string) *Filter {
	return &Filter{Groups: groups, FilterWords: filterWords, GlobalFilters: globalFilters}
}

// Empty сообщает, что группы не заданы и показываются все новости.
func (f *Filter) Empty() bool {
	return f == nil || len(f.Groups) == 0
}

// Matches проверяет заголовок по правилам.
// Порядок: глобальные стоп-слова, затем "группы не заданы - подходит всё",
// затем стоп-слова групп, затем хотя бы одна подходящая группа.
func (f *Filter) Matches(title string) bool {
	if strings.TrimSpace(title) == "" {
		return false
	}
	lower := strings.ToLower(title)

	if f != nil && containsAny(lower, f.GlobalFilters) {
		return false
	}
	if f.Empty() {
		return true
	}
	if containsAny(lower, f.FilterWords) {
		return false
	}
	return f.groupIndex(lower) >= 0
}

// MatchGroup возвращает индекс первой подходящей группы или -1.
// Стоп-слова здесь не проверяются: вызывающий сначала зовёт Matches.
func (f *Filter) MatchGroup(title string) int {
	if f.Empty() {
		return -1
	}
	return f.groupIndex(strings.ToLower(title))
}

func (f *Filter) groupIndex(lower string) int {
	for i, g := range f.Groups {
		if g.matches(lower) {
			return i
		}
	}
	return -1
}

func (g WordGroup) matches(lower string) bool {
	for _, w := range g.Required {
		if !strings.Contains(lower, strings.ToLower(w)) {
			return false
		}
	}
	if len(g.Normal) > 0 && !containsAny(lower, g.Normal) {
		return false
	}
	return true
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
