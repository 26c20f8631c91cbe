package domain

import (
	"fmt"
	"strings"
	"time"
)

// Segment is a renderable stretch of road with a congestion severity (0–100).
type Segment struct {
	ID       string   `json:"id"`
	Members  []string `json:"members,omitempty"`
	Path     []Point  `json:"path"`
	Severity float64  `json:"severity"`
	LengthM  float64  `json:"length_m"`
}

// GroupSegments greedily merges consecutive segments, left to right, until each
// group is at least minLengthM long. Shared endpoints are not duplicated, the
// group severity is the length-weighted mean of its members, and a short
// trailing group is folded into its predecessor.
func GroupSegments(segs []Segment, minLengthM float64) []Segment {
	if len(segs) == 0 {
		return nil
	}

	type acc struct {
		seg      Segment
		weighted float64
		count    int
		plain    float64
	}
	finish := func(a acc) Segment {
		s := a.seg
		switch {
		case s.LengthM > 0:
			s.Severity = a.weighted / s.LengthM
		case a.count > 0:
			s.Severity = a.plain / float64(a.count)
		}
		return s
	}
	add := func(a *acc, s Segment) {
		length := PathLength(s.Path)
		a.seg.Path = joinPaths(a.seg.Path, s.Path)
		a.seg.Members = append(a.seg.Members, s.ID)
		a.seg.LengthM += length
		a.weighted += s.Severity * length
		a.plain += s.Severity
		a.count++
	}

	var groups []acc
	var cur *acc
	for _, s := range segs {
		if cur == nil {
			cur = &acc{seg: Segment{ID: s.ID}}
		}
		add(cur, s)
		if cur.seg.LengthM >= minLengthM {
			groups = append(groups, *cur)
			cur = nil
		}
	}
	if cur != nil {
		if len(groups) > 0 {
			last := &groups[len(groups)-1]
			last.seg.Path = joinPaths(last.seg.Path, cur.seg.Path)
			last.seg.Members = append(last.seg.Members, cur.seg.Members...)
			last.seg.LengthM += cur.seg.LengthM
			last.weighted += cur.weighted
			last.plain += cur.plain
			last.count += cur.count
		} else {
			groups = append(groups, *cur)
		}
	}

	out := make([]Segment, len(groups))
	for i, g := range groups {
		out[i] = finish(g)
	}
	return out
}

func joinPaths(a, b []Point) []Point {
	if len(a) > 0 && len(b) > 0 && a[len(a)-1] == b[0] {
		b = b[1:]
	}
	out := make([]Point, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

var (
	segmentIDKeys = []string{"id", "segment_id", "segment", "road_id", "name"}
	severityKeys  = []string{"severity", "severity_pct", "congestion", "value"}
	jamKeys       = []string{"jamFactor", "jam_factor", "jam"}
)

// ParseSegments reads a list of loosely shaped segment objects. Each item's path
// is found with ParsePath; severity comes from a severity-like field or from a
// 0–10 jam factor scaled to percent. Items without a usable path are skipped.
func ParseSegments(v any, order CoordOrder) []Segment {
	return parseSegments(v, parser{order: order, fallback: OrderLatLon})
}

// ParseSegmentsNear is ParseSegments with OrderAuto, resolving each item's
// coordinate order against ref the way ParsePathNear does.
func ParseSegmentsNear(v any, ref Point) []Segment {
	return parseSegments(v, parser{order: OrderAuto, fallback: OrderLatLon, ref: &ref})
}

func parseSegments(v any, ps parser) []Segment {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Segment, 0, len(items))
	for i, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		path := dedupePath(ps.parse(obj, 0))
		if len(path) < 2 {
			continue
		}
		seg := Segment{ID: fmt.Sprintf("seg_%d", i), Path: path, LengthM: PathLength(path)}
		for _, k := range segmentIDKeys {
			if id := fmt.Sprint(obj[k]); obj[k] != nil && id != "" {
				seg.ID = id
				break
			}
		}
		if sev, ok := firstFloat(obj, severityKeys); ok {
			seg.Severity = clamp(sev, 0, 100)
		} else if jf, ok := firstFloat(obj, jamKeys); ok {
			seg.Severity = float64(SeverityFromJamFactor(jf))
		}
		out = append(out, seg)
	}
	return out
}

// NormalizeSegmentID namespaces a road segment by city: "mumbai::way_12".
// Already-namespaced IDs for the same city are returned unchanged.
func NormalizeSegmentID(city, segmentID string) string {
	prefix := strings.ToLower(strings.TrimSpace(city)) + "::"
	if strings.HasPrefix(segmentID, prefix) {
		return segmentID
	}
	return prefix + segmentID
}

// RoundTime floors t (in UTC) to the start of its intervalMin-minute bucket.
// Buckets restart at every hour, so a 45-minute interval yields :00 and :45.
func RoundTime(t time.Time, intervalMin int) time.Time {
	if intervalMin <= 0 {
		intervalMin = 1
	}
	t = t.UTC()
	minute := t.Minute() - t.Minute()%intervalMin
	return t.Truncate(time.Hour).Add(time.Duration(minute) * time.Minute)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
