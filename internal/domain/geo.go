package domain

import "math"

const earthRadiusM = 6371000.0

// Point is a WGS-84 latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ValidCoord reports whether lat/lon lie in range and are not the (0,0)
// placeholder many clients send for "unset".
func ValidCoord(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Valid reports whether p is a usable coordinate.
func (p Point) Valid() bool { return ValidCoord(p.Lat, p.Lon) }

// Haversine returns the great-circle distance between a and b in metres.
func Haversine(a, b Point) float64 {
	lat1, lon1 := radians(a.Lat), radians(a.Lon)
	lat2, lon2 := radians(b.Lat), radians(b.Lon)
	dlat := lat2 - lat1
	dlon := lon2 - lon1
	s := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dlon/2), 2)
	return 2 * earthRadiusM * math.Asin(math.Min(1, math.Sqrt(s)))
}

// Bearing returns the initial bearing from a to b in degrees, normalized to [0, 360).
func Bearing(a, b Point) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dlon := radians(b.Lon - a.Lon)
	x := math.Sin(dlon) * math.Cos(lat2)
	y := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)
	br := math.Atan2(x, y) * 180 / math.Pi
	return math.Mod(br+360, 360)
}

// AngleDiff returns the smallest absolute difference between two bearings.
func AngleDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	return math.Min(d, 360-d)
}

// Interpolate returns n evenly spaced points on the straight line from a to b,
// both ends included. n < 2 yields just the endpoints.
func Interpolate(a, b Point, n int) []Point {
	if n < 2 {
		return []Point{a, b}
	}
	pts := make([]Point, n)
	for i := range n {
		t := float64(i) / float64(n-1)
		pts[i] = Point{
			Lat: a.Lat + (b.Lat-a.Lat)*t,
			Lon: a.Lon + (b.Lon-a.Lon)*t,
		}
	}
	return pts
}

// PathLength sums the haversine distance along a path.
func PathLength(path []Point) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += Haversine(path[i-1], path[i])
	}
	return total
}

// Centroid is the arithmetic mean of the points. It returns the zero Point for
// an empty slice.
func Centroid(path []Point) Point {
	if len(path) == 0 {
		return Point{}
	}
	var c Point
	for _, p := range path {
		c.Lat += p.Lat
		c.Lon += p.Lon
	}
	n := float64(len(path))
	return Point{Lat: c.Lat / n, Lon: c.Lon / n}
}

// NearestIndex returns the index of the path point closest to p and its distance.
// It returns -1 for an empty path.
func NearestIndex(path []Point, p Point) (int, float64) {
	best, bestD := -1, math.Inf(1)
	for i, q := range path {
		if d := Haversine(p, q); d < bestD {
			best, bestD = i, d
		}
	}
	return best, bestD
}

// BBox is a south/west/north/east bounding box in degrees.
type BBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Expand grows the box by deg on every side.
func (b BBox) Expand(deg float64) BBox {
	return BBox{South: b.South - deg, West: b.West - deg, North: b.North + deg, East: b.East + deg}
}

// DefaultCenter and DefaultBBox cover Mumbai, used when lookups fail.
var (
	DefaultCenter = Point{Lat: 19.0760, Lon: 72.8777}
	DefaultBBox   = BBox{South: 18.85, West: 72.65, North: 19.35, East: 73.1}
)

func radians(deg float64) float64 { return deg * math.Pi / 180 }
