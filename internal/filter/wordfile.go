package filter

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	sectionGlobalFilter = "GLOBAL_FILTER"
	sectionWordGroups   = "WORD_GROUPS"

	// AllNewsKey - подпись виртуальной группы, когда группы не заданы.
	AllNewsKey = "All News"
)

// WordGroup - одна группа ключевых слов.
type WordGroup struct {
	Required []string
	Normal   []string
	Filter   []string
	MaxCount int
	Key      string
}

// Load читает файл ключевых слов. Отсутствие файла - ошибка конфигурации.
func Load(path string) (*Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frequency words: %w", err)
	}
	return Parse(string(data)), nil
}

// Parse разбирает содержимое файла ключевых слов.
//
// Группы разделяются пустой строкой. Блок, начинающийся с [GLOBAL_FILTER],
// задаёт глобальные стоп-слова (строки с префиксами в нём пропускаются),
// [WORD_GROUPS] возвращает к обычным группам. Префиксы в группе:
// "+" обязательное слово, "!" стоп-слово, "@N" лимит показа (только N > 0).
func Parse(content string) *Filter {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	f := &Filter{}
	section := sectionWordGroups

	for _, block := range strings.Split(content, "\n\n") {
		var lines []string
		for _, line := range strings.Split(block, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}

		if head := lines[0]; strings.HasPrefix(head, "[") && strings.HasSuffix(head, "]") {
			name := strings.ToUpper(head[1 : len(head)-1])
			if name == sectionGlobalFilter || name == sectionWordGroups {
				section = name
				lines = lines[1:]
			}
		}

		if section == sectionGlobalFilter {
			for _, line := range lines {
				if strings.HasPrefix(line, "!") || strings.HasPrefix(line, "+") || strings.HasPrefix(line, "@") {
					continue
				}
				f.GlobalFilters = append(f.GlobalFilters, line)
			}
			continue
		}

		if group, ok := parseGroup(lines, &f.FilterWords); ok {
			f.Groups = append(f.Groups, group)
		}
	}

	return f
}

func parseGroup(lines []string, filterWords *[]string) (WordGroup, bool) {
	var g WordGroup
	for _, word := range lines {
		switch {
		case strings.HasPrefix(word, "@"):
			if n, err := strconv.Atoi(word[1:]); err == nil && n > 0 {
				g.MaxCount = n
			}
		case strings.HasPrefix(word, "!"):
			if word == "!" {
				continue
			}
			g.Filter = append(g.Filter, word[1:])
			*filterWords = append(*filterWords, word[1:])
		case strings.HasPrefix(word, "+"):
			if word == "+" {
				continue
			}
			g.Required = append(g.Required, word[1:])
		default:
			g.Normal = append(g.Normal, word)
		}
	}

	if len(g.Required) == 0 && len(g.Normal) == 0 {
		return WordGroup{}, false
	}
	if len(g.Normal) > 0 {
		g.Key = strings.Join(g.Normal, " ")
	} else {
		g.Key = strings.Join(g.Required, " ")
	}
	return g, true
}
