package domain

import "context"

// TrafficReading is a point-in-time flow measurement near a coordinate.
type TrafficReading struct {
	SpeedKmh    float64 `json:"speed"`
	JamFactor   float64 `json:"jamFactor"`
	TravelTimeS float64 `json:"travel_time"`
	Severity    int     `json:"severity"`
	Source      string  `json:"source,omitempty"`
}

// TrafficProvider returns live flow near a point.
type TrafficProvider interface {
	TrafficAt(ctx context.Context, p Point) (TrafficReading, error)
}

// freeFlowKmh is the speed treated as uncongested.
const freeFlowKmh = 80.0

// SeverityFromJamFactor maps a 0–10 jam factor linearly onto 0–100.
func SeverityFromJamFactor(jf float64) int {
	return int(clamp(jf, 0, 10) / 10 * 100)
}

// SeverityFromSpeed maps speed onto 0–100 where 80 km/h or more is 0.
func SeverityFromSpeed(kmh float64) int {
	return int(clamp((freeFlowKmh-kmh)/freeFlowKmh, 0, 1) * 100)
}

// JamFactorFromSpeed estimates a 0–10 jam factor from speed.
func JamFactorFromSpeed(kmh float64) float64 {
	return clamp((freeFlowKmh-kmh)/8, 0, 10)
}

// SamplePath picks about limit evenly strided points from path.
func SamplePath(path []Point, limit int) []Point {
	if len(path) == 0 || limit <= 0 {
		return nil
	}
	count := min(limit, len(path))
	step := len(path) / count
	if step < 1 {
		step = 1
	}
	out := make([]Point, 0, count+1)
	for i := 0; i < len(path); i += step {
		out = append(out, path[i])
	}
	return out
}

// fallbackSeverityPct is assumed when no live reading is available.
const fallbackSeverityPct = 10.0

// ScoreReadings averages readings sampled along a route. A zero severity next
// to a non-zero jam factor counts as missing, and likewise the other way round.
// When severities exist their mean is the score and the jam factor falls back
// to severity/10; otherwise the mean jam factor is scaled to percent. With
// neither a light-traffic fallback is returned. Severity is clamped to [0, 100].
func ScoreReadings(readings []TrafficReading) TrafficScore {
	var sevs, jams []float64
	for _, r := range readings {
		if r.Severity != 0 || r.JamFactor == 0 {
			sevs = append(sevs, float64(r.Severity))
		}
		if r.JamFactor != 0 || r.Severity == 0 {
			jams = append(jams, r.JamFactor)
		}
	}
	switch {
	case len(sevs) > 0:
		avgSev := mean(sevs)
		avgJF := avgSev / 10
		if len(jams) > 0 {
			avgJF = mean(jams)
		}
		return TrafficScore{AvgJamFactor: avgJF, SeverityPct: clamp(avgSev, 0, 100)}
	case len(jams) > 0:
		avgJF := mean(jams)
		return TrafficScore{AvgJamFactor: avgJF, SeverityPct: clamp(avgJF*10, 0, 100)}
	default:
		return TrafficScore{SeverityPct: fallbackSeverityPct}
	}
}

func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// ScoreRoute samples up to eight points along the route and queries the
// provider for each. Failed lookups are skipped. An empty path scores zero.
func ScoreRoute(ctx context.Context, path []Point, provider TrafficProvider) TrafficScore {
	if len(path) == 0 {
		return TrafficScore{}
	}
	if provider == nil {
		return TrafficScore{SeverityPct: fallbackSeverityPct}
	}
	var readings []TrafficReading
	for _, p := range SamplePath(path, 8) {
		r, err := provider.TrafficAt(ctx, p)
		if err != nil {
			continue
		}
		readings = append(readings, r)
	}
	return ScoreReadings(readings)
}
