package domain

// MaxCapacity is the saturation ceiling for congestion values.
const MaxCapacity = 100.0

// ComputeTrend is the mean first difference of the series, 0 for fewer than two points.
func ComputeTrend(history []float64) float64 {
	if len(history) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(history); i++ {
		sum += history[i] - history[i-1]
	}
	return sum / float64(len(history)-1)
}

// PredictWithSaturation extrapolates one step ahead, damping the trend as the
// last value approaches maxCapacity. The result is clamped to [0, maxCapacity].
func PredictWithSaturation(history []float64, maxCapacity float64) float64 {
	if len(history) == 0 {
		return 0
	}
	last := history[len(history)-1]
	damping := max(0, 1-last/maxCapacity)
	return clamp(last+ComputeTrend(history)*damping, 0, maxCapacity)
}

// TrendPredict extrapolates the next value from the mean first difference,
// never going below zero.
func TrendPredict(series []float64) float64 {
	switch len(series) {
	case 0:
		return 0
	case 1:
		return series[0]
	}
	return max(0, series[len(series)-1]+ComputeTrend(series))
}

// Mean averages the series, 0 when empty.
func Mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// Prediction is the daily congestion forecast for one segment.
type Prediction struct {
	Segment        string  `json:"segment"`
	City           string  `json:"city"`
	Avg7d          float64 `json:"avg_7d"`
	PredictedToday float64 `json:"predicted_today"`
	Status         string  `json:"status"`
}

// HistoryWindow is seven days of 30-minute buckets.
const HistoryWindow = 336

// ForecastSegment builds a Prediction from a chronological history.
func ForecastSegment(city, segmentID string, history []float64) Prediction {
	p := Prediction{Segment: segmentID, City: city, Status: "no_data"}
	if len(history) < 2 {
		return p
	}
	p.Avg7d = Mean(history)
	p.PredictedToday = PredictWithSaturation(history, MaxCapacity)
	p.Status = "ok"
	return p
}
