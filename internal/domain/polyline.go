package domain

import "math"

// EncodePolyline encodes a path with Google's polyline algorithm at precision 5.
func EncodePolyline(path []Point) string {
	if len(path) == 0 {
		return ""
	}

	buf := make([]byte, 0, len(path)*4)
	prevLat, prevLon := 0, 0
	for _, p := range path {
		lat := int(math.Round(p.Lat * 1e5))
		lon := int(math.Round(p.Lon * 1e5))
		buf = appendPolylineValue(buf, lat-prevLat)
		buf = appendPolylineValue(buf, lon-prevLon)
		prevLat, prevLon = lat, lon
	}
	return string(buf)
}

// DecodePolyline decodes a precision-5 polyline. Truncated input yields the
// points decoded so far.
func DecodePolyline(encoded string) []Point {
	var path []Point
	index, lat, lon := 0, 0, 0

	for index < len(encoded) {
		dlat, next, ok := readPolylineValue(encoded, index)
		if !ok {
			break
		}
		dlon, next, ok := readPolylineValue(encoded, next)
		if !ok {
			break
		}
		index = next
		lat += dlat
		lon += dlon
		path = append(path, Point{Lat: float64(lat) / 1e5, Lon: float64(lon) / 1e5})
	}
	return path
}

func readPolylineValue(encoded string, index int) (int, int, bool) {
	shift, result := 0, 0
	for index < len(encoded) {
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			if result&1 != 0 {
				return ^(result >> 1), index, true
			}
			return result >> 1, index, true
		}
	}
	return 0, index, false
}

func appendPolylineValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}
	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}

// looksLikePolyline reports whether s only contains polyline alphabet characters.
func looksLikePolyline(s string) bool {
	if len(s) < 2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 63 || s[i] > 126 {
			return false
		}
	}
	return true
}
