package analysis

type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// VolumeTrend compares the second half of a series against the first.
// A change of exactly 20% in either direction is stable.
func VolumeTrend(first, second float64) Trend {
	switch {
	case second > first*1.2:
		return TrendIncreasing
	case second < first*0.8:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// CategoryTrend splits sorted dates at floor(n/2) and compares the category's
// volume in each half.
func CategoryTrend(sortedDates []string, perDate map[string]map[string]int, category string) Trend {
	if len(sortedDates) < 2 {
		return TrendStable
	}

	mid := len(sortedDates) / 2
	var first, second int
	for _, d := range sortedDates[:mid] {
		first += perDate[d][category]
	}
	for _, d := range sortedDates[mid:] {
		second += perDate[d][category]
	}
	return VolumeTrend(float64(first), float64(second))
}
