package ranking

import (
	"github.com/maine/trendradar/internal/config"
	"github.com/maine/trendradar/internal/news"
)

const (
	rankCap      = 10 // позиции ниже 10-й дают одинаковый минимальный вклад
	frequencyCap = 10
)

// Components возвращает три составляющие веса новости без коэффициентов.
//
//	rank      = среднее (11 - min(rank, 10)) по истории позиций
//	frequency = min(count, 10) * 10
//	hotness   = доля позиций <= rankThreshold * 100
func Components(it news.Item, rankThreshold int) (rank, frequency, hotness float64) {
	if len(it.Ranks) == 0 {
		return 0, 0, 0
	}

	count := it.Count
	if count <= 0 {
		count = len(it.Ranks)
	}

	var sum, high int
	for _, r := range it.Ranks {
		sum += rankCap + 1 - min(r, rankCap)
		if r <= rankThreshold {
			high++
		}
	}

	total := float64(len(it.Ranks))
	rank = float64(sum) / total
	frequency = float64(min(count, frequencyCap) * 10)
	hotness = float64(high) / total * 100
	return rank, frequency, hotness
}

// Weight - итоговый вес новости для сортировки внутри группы.
func Weight(it news.Item, rankThreshold int, w config.Weight) float64 {
	rank, frequency, hotness := Components(it, rankThreshold)
	return rank*w.RankWeight + frequency*w.FrequencyWeight + hotness*w.HotnessWeight
}
