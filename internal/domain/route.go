package domain

import (
	"fmt"
	"math"
	"time"
)

// AvgUrbanSpeedMPS is the assumed speed (~40 km/h) for routes built without a provider.
const AvgUrbanSpeedMPS = 11.11

// Intersection fractions along a path where signal pre-emption is scheduled.
var intersectionFractions = []float64{0.25, 0.5, 0.75}

// Intersection is a signalized junction on a route with its expected arrival.
type Intersection struct {
	ID       string  `json:"id"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	ETAS     float64 `json:"eta_s"`
	ETAEpoch float64 `json:"eta_epoch"`
	Passed   bool    `json:"passed,omitempty"`
}

// TrafficScore summarises live congestion sampled along a route.
type TrafficScore struct {
	AvgJamFactor float64 `json:"avg_jam_factor"`
	SeverityPct  float64 `json:"severity_pct"`
}

// Route is a provider-independent driving route.
type Route struct {
	DistanceM         float64        `json:"distance_m"`
	DurationS         float64        `json:"duration_s"`
	DurationAdjustedS float64        `json:"duration_s_adjusted,omitempty"`
	Polyline          string         `json:"polyline"`
	Intersections     []Intersection `json:"intersections"`
	Path              []Point        `json:"path"`
	Provider          string         `json:"provider,omitempty"`
	Traffic           *TrafficScore  `json:"traffic,omitempty"`
}

// Severity returns the route's traffic severity, 0 when unscored.
func (r Route) Severity() float64 {
	if r.Traffic == nil {
		return 0
	}
	return r.Traffic.SeverityPct
}

// Destination returns the last path point.
func (r Route) Destination() (Point, bool) {
	if len(r.Path) == 0 {
		return Point{}, false
	}
	return r.Path[len(r.Path)-1], true
}

// PlaceIntersections schedules intersections at 25%, 50% and 75% of the path's
// index range, IDs prefix_1..prefix_3. A path shorter than two points yields one
// intersection at its first point with a zero ETA.
func PlaceIntersections(path []Point, durationS float64, prefix string, now time.Time) []Intersection {
	epoch := epochSeconds(now)
	n := len(path)
	if n < 2 {
		var p Point
		if n == 1 {
			p = path[0]
		}
		return []Intersection{{ID: prefix + "_1", Lat: p.Lat, Lon: p.Lon, ETAEpoch: epoch}}
	}
	out := make([]Intersection, 0, len(intersectionFractions))
	for i, frac := range intersectionFractions {
		idx := min(n-1, int(frac*float64(n-1)))
		eta := durationS * frac
		out = append(out, Intersection{
			ID:       fmt.Sprintf("%s_%d", prefix, i+1),
			Lat:      path[idx].Lat,
			Lon:      path[idx].Lon,
			ETAS:     eta,
			ETAEpoch: epoch + eta,
		})
	}
	return out
}

// NewRoute assembles a Route from a normalized path and provider metrics,
// encoding the polyline and placing intersections.
func NewRoute(provider string, path []Point, distanceM, durationS float64, prefix string, now time.Time) Route {
	return Route{
		DistanceM:     distanceM,
		DurationS:     durationS,
		Polyline:      EncodePolyline(path),
		Intersections: PlaceIntersections(path, durationS, prefix, now),
		Path:          path,
		Provider:      provider,
	}
}

// RouteAlongPath builds a route over an arbitrary path, estimating duration at
// AvgUrbanSpeedMPS (never below one second).
func RouteAlongPath(provider string, path []Point, prefix string, now time.Time) Route {
	dist := PathLength(path)
	duration := math.Max(1, dist/AvgUrbanSpeedMPS)
	return NewRoute(provider, path, dist, duration, prefix, now)
}

// SyntheticRoute is a straight-line route used when no provider answers.
func SyntheticRoute(origin, dest Point, points int, prefix string, now time.Time) Route {
	path := Interpolate(origin, dest, points)
	r := RouteAlongPath("synthetic", path, prefix, now)
	r.DistanceM = Haversine(origin, dest)
	r.DurationS = math.Max(1, r.DistanceM/AvgUrbanSpeedMPS)
	r.Intersections = PlaceIntersections(path, r.DurationS, prefix, now)
	return r
}

const (
	dupDistanceM = 50.0
	dupDurationS = 5.0
	dupEndSepM   = 40.0
)

// SimilarRoutes reports whether two routes are near-identical in distance and
// duration. When checkEnds is set their endpoints must also lie within 40 m.
func SimilarRoutes(a, b Route, checkEnds bool) bool {
	if math.Abs(a.DistanceM-b.DistanceM) >= dupDistanceM || math.Abs(a.DurationS-b.DurationS) >= dupDurationS {
		return false
	}
	if !checkEnds {
		return true
	}
	ae, okA := a.Destination()
	be, okB := b.Destination()
	if !okA || !okB {
		return true
	}
	return Haversine(ae, be) < dupEndSepM
}

// DedupeRoutes keeps the first of every group of similar routes, at most limit.
func DedupeRoutes(routes []Route, limit int) []Route {
	unique := make([]Route, 0, len(routes))
	for _, r := range routes {
		dup := false
		for _, u := range unique {
			if SimilarRoutes(r, u, false) {
				dup = true
				break
			}
		}
		if !dup {
			unique = append(unique, r)
		}
	}
	if limit > 0 && len(unique) > limit {
		unique = unique[:limit]
	}
	return unique
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
