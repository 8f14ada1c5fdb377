// Package urlnorm приводит ссылки к каноническому виду, чтобы одна и та же
// новость узнавалась между обходами, даже если площадка добавляет в URL
// метки трекинга или текущую позицию в рейтинге.
package urlnorm

import (
	"net/url"
	"strings"
)

// commonParams удаляются у всех площадок (сравнение без учёта регистра).
var commonParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"ref":          {},
	"referrer":     {},
	"source":       {},
	"channel":      {},
	"_t":           {},
	"timestamp":    {},
	"_":            {},
	"random":       {},
	"share_token":  {},
	"share_id":     {},
	"share_from":   {},
}

// platformParams - динамические параметры конкретных площадок.
// weibo: band_rank - позиция в рейтинге, Refer - откуда пришли, t - временной диапазон.
var platformParams = map[string][]string{
	"weibo": {"band_rank", "Refer", "t"},
}

// Normalize возвращает каноническую форму ссылки.
// Без query ссылка возвращается как есть; при ошибке разбора тоже.
// Оставшиеся параметры сортируются по ключу, фрагмент отбрасывается.
func Normalize(raw, platformID string) string {
	if raw == "" {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}

	params, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return raw
	}

	drop := make(map[string]struct{}, len(commonParams)+4)
	for k := range commonParams {
		drop[k] = struct{}{}
	}
	for _, k := range platformParams[platformID] {
		drop[strings.ToLower(k)] = struct{}{}
	}

	for key := range params {
		if _, ok := drop[strings.ToLower(key)]; ok {
			params.Del(key)
		}
	}

	// Encode сортирует ключи и сохраняет порядок значений.
	u.RawQuery = params.Encode()
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
