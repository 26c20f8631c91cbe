package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CoordOrder tells the path parser how to read two-element coordinate arrays.
type CoordOrder int

const (
	// OrderAuto guesses the order from magnitudes and an optional reference point.
	OrderAuto CoordOrder = iota
	// OrderLatLon reads [lat, lon].
	OrderLatLon
	// OrderLonLat reads [lon, lat], the GeoJSON convention.
	OrderLonLat
)

func (o CoordOrder) String() string {
	switch o {
	case OrderLatLon:
		return "latlon"
	case OrderLonLat:
		return "lonlat"
	default:
		return "auto"
	}
}

// ParseCoordOrder maps "latlon", "lonlat" and "auto" (or empty) to a CoordOrder.
func ParseCoordOrder(s string) (CoordOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return OrderAuto, nil
	case "latlon", "lat,lon", "lat_lon":
		return OrderLatLon, nil
	case "lonlat", "lon,lat", "lon_lat", "lnglat":
		return OrderLonLat, nil
	default:
		return OrderAuto, fmt.Errorf("%w: unknown coordinate order %q", ErrInvalidInput, s)
	}
}

var (
	latKeys  = []string{"lat", "latitude", "y"}
	lonKeys  = []string{"lon", "lng", "long", "longitude", "x"}
	pathKeys = []string{"path", "geometry", "points", "coordinates", "polyline", "shape", "route"}
	// Provider envelopes hold a list of alternatives; the first usable one wins.
	envelopeKeys = []string{"routes", "paths", "features"}
)

// ParsePoint reads a single coordinate from a loosely typed value: an object
// with any of the lat/latitude/y and lon/lng/long/longitude/x keys (numbers or
// numeric strings), a GeoJSON Point, or a two-element array read in the given order.
func ParsePoint(v any, order CoordOrder) (Point, bool) {
	switch t := v.(type) {
	case Point:
		return t, t.Valid()
	case map[string]any:
		if strings.EqualFold(stringField(t, "type"), "Point") {
			if pair, ok := toPair(t["coordinates"]); ok {
				return pairToPoint(pair, OrderLonLat)
			}
		}
		lat, okLat := firstFloat(t, latKeys)
		lon, okLon := firstFloat(t, lonKeys)
		if !okLat || !okLon {
			return Point{}, false
		}
		p := Point{Lat: lat, Lon: lon}
		return p, p.Valid()
	default:
		pair, ok := toPair(v)
		if !ok {
			return Point{}, false
		}
		if order == OrderAuto {
			order = ResolveOrder([][2]float64{pair}, nil)
		}
		return pairToPoint(pair, order)
	}
}

// ParsePath extracts an ordered coordinate path from a heterogeneous route or
// segment payload. It understands arrays of points, GeoJSON geometries, features
// and feature collections, objects carrying their path under a well-known key,
// and encoded polyline strings. Invalid points are skipped and consecutive
// duplicates dropped.
func ParsePath(v any, order CoordOrder) []Point {
	return dedupePath(parser{order: order, fallback: OrderLatLon}.parse(v, 0))
}

// ParsePathNear is ParsePath with OrderAuto, breaking lat/lon ambiguity by
// choosing the reading whose first point lies nearer ref.
func ParsePathNear(v any, ref Point) []Point {
	return dedupePath(parser{order: OrderAuto, fallback: OrderLatLon, ref: &ref}.parse(v, 0))
}

// ResolveOrder guesses how to read a batch of coordinate pairs. A first
// component beyond ±90 can only be a longitude and a second one beyond ±90 can
// only be a longitude too; when magnitudes do not decide, the reading whose first
// point is closer to ref wins, and lat/lon is the final default.
func ResolveOrder(pairs [][2]float64, ref *Point) CoordOrder {
	return resolveOrder(pairs, ref, OrderLatLon)
}

func resolveOrder(pairs [][2]float64, ref *Point, fallback CoordOrder) CoordOrder {
	for _, p := range pairs {
		if math.Abs(p[0]) > 90 && math.Abs(p[0]) <= 180 {
			return OrderLonLat
		}
		if math.Abs(p[1]) > 90 && math.Abs(p[1]) <= 180 {
			return OrderLatLon
		}
	}
	if ref != nil && len(pairs) > 0 {
		asLatLon := Point{Lat: pairs[0][0], Lon: pairs[0][1]}
		asLonLat := Point{Lat: pairs[0][1], Lon: pairs[0][0]}
		if Haversine(asLonLat, *ref) < Haversine(asLatLon, *ref) {
			return OrderLonLat
		}
		return OrderLatLon
	}
	return fallback
}

const maxParseDepth = 8

// parser carries the caller's order choice through nested payloads. fallback
// is the order used when neither magnitudes nor ref decide.
type parser struct {
	order    CoordOrder
	fallback CoordOrder
	ref      *Point
}

func (ps parser) with(order CoordOrder) parser {
	ps.order = order
	return ps
}

// geoJSON switches to [lon, lat] when the caller left the order open.
func (ps parser) geoJSON() parser {
	if ps.order == OrderAuto {
		ps.fallback = OrderLonLat
	}
	return ps
}

func (ps parser) resolve(pairs [][2]float64) CoordOrder {
	if ps.order != OrderAuto {
		return ps.order
	}
	return resolveOrder(pairs, ps.ref, ps.fallback)
}

func (ps parser) parse(v any, depth int) []Point {
	if depth > maxParseDepth || v == nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		return ps.parseString(t, depth)
	case []Point:
		return t
	case map[string]any:
		return ps.parseObject(t, depth)
	case []any:
		return ps.parseArray(t, depth)
	default:
		return nil
	}
}

func (ps parser) parseString(s string, depth int) []Point {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if s[0] == '[' || s[0] == '{' {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			return ps.parse(decoded, depth+1)
		}
	}
	if !looksLikePolyline(s) {
		return nil
	}
	decoded := DecodePolyline(s)
	out := make([]Point, 0, len(decoded))
	for _, p := range decoded {
		if p.Valid() {
			out = append(out, p)
		}
	}
	return out
}

func (ps parser) parseObject(obj map[string]any, depth int) []Point {
	switch strings.ToLower(stringField(obj, "type")) {
	case "featurecollection":
		feats, _ := obj["features"].([]any)
		var out []Point
		for _, f := range feats {
			out = append(out, ps.parse(f, depth+1)...)
		}
		return out
	case "feature":
		return ps.parse(obj["geometry"], depth+1)
	case "linestring", "multilinestring", "multipoint":
		// GeoJSON positions are always [lon, lat].
		return ps.with(OrderLonLat).parse(obj["coordinates"], depth+1)
	case "polygon":
		return ps.with(OrderLonLat).parse(firstElem(obj["coordinates"]), depth+1)
	case "multipolygon":
		return ps.with(OrderLonLat).parse(firstElem(firstElem(obj["coordinates"])), depth+1)
	case "point":
		if p, ok := ParsePoint(obj, OrderLonLat); ok {
			return []Point{p}
		}
		return nil
	}

	for _, key := range pathKeys {
		inner, ok := obj[key]
		if !ok {
			continue
		}
		sub := ps
		if key == "coordinates" {
			sub = ps.geoJSON()
		}
		if path := sub.parse(inner, depth+1); len(path) > 0 {
			return path
		}
	}
	for _, key := range envelopeKeys {
		alts, _ := obj[key].([]any)
		for _, alt := range alts {
			if path := ps.parse(alt, depth+1); len(path) > 0 {
				return path
			}
		}
	}
	if p, ok := ParsePoint(obj, ps.order); ok {
		return []Point{p}
	}
	return nil
}

func (ps parser) parseArray(items []any, depth int) []Point {
	if len(items) == 0 {
		return nil
	}

	// Nested line strings: [[[a,b],[c,d]], [[e,f]]].
	if first, ok := items[0].([]any); ok && len(first) > 0 {
		if _, nested := first[0].([]any); nested {
			var out []Point
			for _, it := range items {
				out = append(out, ps.parse(it, depth+1)...)
			}
			return out
		}
	}

	// Bare pairs share one order, resolved across all of them; every other
	// element is read on its own and keeps its position.
	var pairs [][2]float64
	for _, it := range items {
		if pair, ok := toPair(it); ok {
			pairs = append(pairs, pair)
		}
	}
	order := ps.order
	if len(pairs) > 0 {
		order = ps.resolve(pairs)
	}

	out := make([]Point, 0, len(items))
	for _, it := range items {
		if pair, ok := toPair(it); ok {
			if p, ok := pairToPoint(pair, order); ok {
				out = append(out, p)
			}
			continue
		}
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if p, ok := ParsePoint(obj, ps.order); ok {
			out = append(out, p)
			continue
		}
		out = append(out, ps.parse(obj, depth+1)...)
	}
	return out
}

func firstElem(v any) any {
	if items, ok := v.([]any); ok && len(items) > 0 {
		return items[0]
	}
	return nil
}

func pairToPoint(pair [2]float64, order CoordOrder) (Point, bool) {
	p := Point{Lat: pair[0], Lon: pair[1]}
	if order == OrderLonLat {
		p = Point{Lat: pair[1], Lon: pair[0]}
	}
	return p, p.Valid()
}

func toPair(v any) ([2]float64, bool) {
	switch t := v.(type) {
	case [2]float64:
		return t, true
	case []float64:
		if len(t) >= 2 {
			return [2]float64{t[0], t[1]}, true
		}
	case []any:
		if len(t) >= 2 {
			a, okA := toFloat(t[0])
			b, okB := toFloat(t[1])
			if okA && okB {
				return [2]float64{a, b}, true
			}
		}
	}
	return [2]float64{}, false
}

func dedupePath(path []Point) []Point {
	if len(path) < 2 {
		return path
	}
	out := make([]Point, 0, len(path))
	for i, p := range path {
		if i > 0 && p == out[len(out)-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}

func firstFloat(obj map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if f, ok := toFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}
