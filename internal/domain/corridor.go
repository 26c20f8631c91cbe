package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Corridor request statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Corridor tuning, in metres.
const (
	passedRadiusM  = 30.0
	arrivedRadiusM = 50.0
)

// EmergencyRequest is raised by a vehicle asking for a green corridor.
type EmergencyRequest struct {
	VehicleID string  `json:"vehicle_id"`
	OriginLat float64 `json:"origin_lat"`
	OriginLon float64 `json:"origin_lon"`
	DestLat   float64 `json:"dest_lat"`
	DestLon   float64 `json:"dest_lon"`
	Priority  string  `json:"priority"`
}

// Origin returns the request's start point.
func (r EmergencyRequest) Origin() Point { return Point{Lat: r.OriginLat, Lon: r.OriginLon} }

// Dest returns the request's destination point.
func (r EmergencyRequest) Dest() Point { return Point{Lat: r.DestLat, Lon: r.DestLon} }

// Validate checks coordinates and normalizes the priority (default "high").
func (r *EmergencyRequest) Validate() error {
	if !r.Origin().Valid() || !r.Dest().Valid() {
		return fmt.Errorf("%w: missing or placeholder 0,0", ErrInvalidCoordinates)
	}
	switch p := strings.ToLower(strings.TrimSpace(r.Priority)); p {
	case "":
		r.Priority = "high"
	case "high", "medium":
		r.Priority = p
	default:
		return fmt.Errorf("%w: priority must be high or medium", ErrInvalidInput)
	}
	return nil
}

// GPSUpdate is a periodic position fix from a vehicle on an active corridor.
type GPSUpdate struct {
	VehicleID  string   `json:"vehicle_id"`
	RequestID  string   `json:"request_id"`
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	SpeedMPS   *float64 `json:"speed_mps,omitempty"`
	BearingDeg *float64 `json:"bearing_deg,omitempty"`
	TS         *float64 `json:"ts,omitempty"`
}

// Position is the last known vehicle fix.
type Position struct {
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	SpeedMPS   *float64 `json:"speed_mps,omitempty"`
	BearingDeg *float64 `json:"bearing_deg,omitempty"`
	TS         *float64 `json:"ts,omitempty"`
}

// Alternative is a ranked backup route shown alongside the primary.
type Alternative struct {
	ID      string       `json:"id"`
	Route   Route        `json:"route"`
	Traffic TrafficScore `json:"traffic"`
}

// CorridorPlan is the signal schedule for the primary route plus visible alternatives.
type CorridorPlan struct {
	Intersections []Intersection `json:"intersections"`
	Alternatives  []Alternative  `json:"alternatives"`
}

// Corridor is the full persisted state of one emergency request.
type Corridor struct {
	RequestID    string           `json:"request_id"`
	Request      EmergencyRequest `json:"request"`
	Route        Route            `json:"route"`
	Routes       []Route          `json:"routes_all"`
	CreatedAt    float64          `json:"created_at"`
	UpdatedAt    float64          `json:"updated_at,omitempty"`
	Status       string           `json:"status"`
	LastPosition Position         `json:"last_position"`
	Plan         CorridorPlan     `json:"corridor_plan"`
}

// DurationMultiplier slows a route by up to 50% as severity rises to 100.
func DurationMultiplier(severityPct float64) float64 {
	return 1 + severityPct/100*0.5
}

// RouteCost ranks routes by duration with an extra congestion penalty.
func RouteCost(r Route) float64 {
	return r.DurationS * (1 + r.Severity()/200)
}

// ApplyTraffic attaches a traffic score and stretches the duration accordingly.
func ApplyTraffic(r Route, score TrafficScore) Route {
	r.Traffic = &score
	adjusted := r.DurationS * DurationMultiplier(score.SeverityPct)
	r.DurationAdjustedS = adjusted
	r.DurationS = adjusted
	return r
}

// RankRoutes returns routes sorted by ascending RouteCost. The input is not modified.
func RankRoutes(routes []Route) []Route {
	out := append([]Route(nil), routes...)
	sort.SliceStable(out, func(i, j int) bool { return RouteCost(out[i]) < RouteCost(out[j]) })
	return out
}

// VisibleAlternatives picks the backups to surface: two when the primary is
// heavily congested (severity above 50), otherwise one.
func VisibleAlternatives(ranked []Route) []Alternative {
	if len(ranked) < 2 {
		return []Alternative{}
	}
	n := 1
	if ranked[0].Severity() > 50 {
		n = 2
	}
	rest := ranked[1:min(len(ranked), 1+n)]
	out := make([]Alternative, 0, len(rest))
	for i, r := range rest {
		var score TrafficScore
		if r.Traffic != nil {
			score = *r.Traffic
		}
		out = append(out, Alternative{ID: fmt.Sprintf("alt_%d", i+1), Route: r, Traffic: score})
	}
	return out
}

// PlanCorridor stretches the primary route's intersection ETAs by its congestion.
func PlanCorridor(r Route, now time.Time) CorridorPlan {
	mult := DurationMultiplier(r.Severity())
	epoch := epochSeconds(now)
	adjusted := make([]Intersection, 0, len(r.Intersections))
	for _, in := range r.Intersections {
		in.ETAS *= mult
		in.ETAEpoch = epoch + in.ETAS
		adjusted = append(adjusted, in)
	}
	return CorridorPlan{Intersections: adjusted, Alternatives: []Alternative{}}
}

// AdvanceCorridor applies a GPS fix: it records the position, marks
// intersections the vehicle has reached or passed, re-estimates ETAs for the
// rest from along-path distance, and completes the corridor near the destination.
func AdvanceCorridor(c Corridor, u GPSUpdate, now time.Time) Corridor {
	pos := Point{Lat: u.Lat, Lon: u.Lon}
	c.LastPosition = Position{Lat: u.Lat, Lon: u.Lon, SpeedMPS: u.SpeedMPS, BearingDeg: u.BearingDeg, TS: u.TS}
	c.UpdatedAt = epochSeconds(now)

	path := c.Route.Path
	if len(path) == 0 || !pos.Valid() {
		return c
	}

	speed := 0.0
	if u.SpeedMPS != nil && *u.SpeedMPS > 0.5 {
		speed = *u.SpeedMPS
	} else if c.Route.DurationS > 0 && c.Route.DistanceM > 0 {
		speed = c.Route.DistanceM / c.Route.DurationS
	}
	if speed <= 0 {
		speed = AvgUrbanSpeedMPS
	}

	vehicleIdx, _ := NearestIndex(path, pos)
	cumulative := cumulativeDistances(path)
	epoch := epochSeconds(now)

	plan := c.Plan
	intersections := make([]Intersection, len(plan.Intersections))
	for i, in := range plan.Intersections {
		ip := Point{Lat: in.Lat, Lon: in.Lon}
		idx, _ := NearestIndex(path, ip)
		if in.Passed || idx <= vehicleIdx || Haversine(pos, ip) <= passedRadiusM {
			in.Passed = true
			in.ETAS = 0
			in.ETAEpoch = epoch
		} else {
			remaining := Haversine(pos, path[vehicleIdx]) + cumulative[idx] - cumulative[vehicleIdx]
			in.ETAS = remaining / speed
			in.ETAEpoch = epoch + in.ETAS
		}
		intersections[i] = in
	}
	plan.Intersections = intersections
	c.Plan = plan

	if dest, ok := c.Route.Destination(); ok && Haversine(pos, dest) <= arrivedRadiusM {
		c.Status = StatusCompleted
	}
	return c
}

func cumulativeDistances(path []Point) []float64 {
	out := make([]float64, len(path))
	for i := 1; i < len(path); i++ {
		out[i] = out[i-1] + Haversine(path[i-1], path[i])
	}
	return out
}

// RemainingDistance is the along-path distance from the vehicle's nearest path
// point to the destination.
func RemainingDistance(path []Point, pos Point) float64 {
	idx, d := NearestIndex(path, pos)
	if idx < 0 {
		return 0
	}
	cum := cumulativeDistances(path)
	return d + cum[len(cum)-1] - cum[idx]
}
