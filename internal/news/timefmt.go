package news

import "time"

// Форматы токенов даты и времени обхода. Оба сравниваются лексикографически.
const (
	DateLayout      = "2006-01-02"
	CrawlTimeLayout = "15-04"
)

// DateToken возвращает "YYYY-MM-DD" в заданной зоне.
func DateToken(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DateLayout)
}

// CrawlTimeToken возвращает "HH-MM" в заданной зоне.
func CrawlTimeToken(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(CrawlTimeLayout)
}
