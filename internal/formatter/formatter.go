// Package formatter превращает отчёт ранжирования в текстовые сообщения для чата.
package formatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maine/trendradar/internal/ranking"
)

const (
	// telegramMaxMessageLength - предел длины сообщения в Telegram.
	telegramMaxMessageLength = 4096
	// headerTemplate - нумерация, если сообщений больше одного.
	headerTemplate = "(%d/%d)\n"
	ellipsis       = "..."
	// headerReserve - место под нумерацию.
	headerReserve  = 16
	groupSeparator = "\n\n"
)

// Meta - сведения об обходе для шапки и подвала отчёта.
type Meta struct {
	Date          string
	CrawlTime     string // HH-MM
	FailedSources []string
	SourceNames   map[string]string
}

// Formatter строит сообщения отчёта.
type Formatter struct {
	rankThreshold int
	maxLength     int
}

// NewFormatter создаёт форматтер. rankThreshold выделяет высокие позиции.
func NewFormatter(rankThreshold int) *Formatter {
	return &Formatter{rankThreshold: rankThreshold, maxLength: telegramMaxMessageLength}
}

// BuildMessages раскладывает отчёт по сообщениям. Группа не разрывается,
// пока помещается в одно сообщение. Пустой отчёт даёт nil.
func (f *Formatter) BuildMessages(report ranking.Report, meta Meta) []string {
	var blocks []string
	for _, g := range report.Groups {
		if len(g.Entries) == 0 {
			continue
		}
		blocks = append(blocks, f.groupBlock(g, len(blocks)+1))
	}
	if len(blocks) == 0 {
		return nil
	}

	blocks[0] = f.header(report, meta) + groupSeparator + blocks[0]
	if footer := f.footer(meta); footer != "" {
		blocks[len(blocks)-1] += groupSeparator + footer
	}
	return f.split(blocks)
}

func (f *Formatter) header(report ranking.Report, meta Meta) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Trending report (%s)", report.Mode)
	if meta.Date != "" {
		fmt.Fprintf(&sb, " %s", meta.Date)
	}
	if meta.CrawlTime != "" {
		fmt.Fprintf(&sb, " %s", strings.ReplaceAll(meta.CrawlTime, "-", ":"))
	}
	fmt.Fprintf(&sb, "\nMatched %d of %d titles", report.Matched(), report.TotalTitles)
	return sb.String()
}

func (f *Formatter) footer(meta Meta) string {
	if len(meta.FailedSources) == 0 {
		return ""
	}
	names := make([]string, 0, len(meta.FailedSources))
	for _, id := range meta.FailedSources {
		if name, ok := meta.SourceNames[id]; ok && name != "" && name != id {
			names = append(names, fmt.Sprintf("%s (%s)", name, id))
		} else {
			names = append(names, id)
		}
	}
	sort.Strings(names)
	return "Failed sources: " + strings.Join(names, ", ")
}

// groupBlock:
//
//	[1] keyword: 5 (12.5%)
//	  1. [Source] Title [1 - 3] [08:00 ~ 10:00] (3x) NEW
//	     https://...
func (f *Formatter) groupBlock(g ranking.Group, n int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] %s: %d (%.1f%%)", n, g.Key, g.Count, g.Percentage)
	for i, e := range g.Entries {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "  %d. %s", i+1, f.entryLine(e))
		if link := entryLink(e); link != "" {
			fmt.Fprintf(&sb, "\n     %s", link)
		}
	}
	return sb.String()
}

func (f *Formatter) entryLine(e ranking.Entry) string {
	parts := make([]string, 0, 6)
	if e.Item.SourceName != "" {
		parts = append(parts, "["+e.Item.SourceName+"]")
	}
	parts = append(parts, e.Item.Title)
	if r := RankDisplay(e.Item.Ranks, f.rankThreshold); r != "" {
		parts = append(parts, r)
	}
	if e.TimeDisplay != "" {
		parts = append(parts, e.TimeDisplay)
	}
	if e.Item.Count > 1 {
		parts = append(parts, fmt.Sprintf("(%dx)", e.Item.Count))
	}
	if e.IsNew {
		parts = append(parts, "NEW")
	}
	return strings.Join(parts, " ")
}

func entryLink(e ranking.Entry) string {
	if e.Item.URL != "" {
		return e.Item.URL
	}
	return e.Item.MobileURL
}

// RankDisplay показывает диапазон позиций: "[1]" или "[1 - 5]". Если лучшая
// позиция не хуже порога, диапазон отмечается звёздочкой.
func RankDisplay(ranks []int, threshold int) string {
	if len(ranks) == 0 {
		return ""
	}
	lo, hi := ranks[0], ranks[0]
	for _, r := range ranks[1:] {
		lo = min(lo, r)
		hi = max(hi, r)
	}

	s := fmt.Sprintf("[%d]", lo)
	if lo != hi {
		s = fmt.Sprintf("[%d - %d]", lo, hi)
	}
	if threshold > 0 && lo <= threshold {
		s = "*" + s
	}
	return s
}

// split собирает блоки в сообщения не длиннее maxLength байт.
// Блок длиннее сообщения режется по строкам.
func (f *Formatter) split(blocks []string) []string {
	limit := f.maxLength - headerReserve

	var (
		messages []string
		current  strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			messages = append(messages, strings.TrimSuffix(current.String(), "\n"))
			current.Reset()
		}
	}

	for _, block := range blocks {
		sep := ""
		if current.Len() > 0 {
			sep = groupSeparator
		}
		if current.Len()+len(sep)+len(block) <= limit {
			current.WriteString(sep + block)
			continue
		}

		flush()
		if len(block) <= limit {
			current.WriteString(block)
			continue
		}

		for _, line := range strings.Split(block, "\n") {
			if current.Len()+len(line)+1 > limit {
				flush()
			}
			if len(line)+1 > limit {
				line = truncate(line, limit-1)
			}
			current.WriteString(line + "\n")
		}
	}
	flush()

	if len(messages) <= 1 {
		return messages
	}
	total := len(messages)
	for i, msg := range messages {
		messages[i] = fmt.Sprintf(headerTemplate, i+1, total) + msg
	}
	return messages
}

// truncate обрезает строку до n байт, не разрывая символ UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - len(ellipsis)
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
