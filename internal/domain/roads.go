package domain

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// Road is a named polyline used as a traffic segment.
type Road struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Coordinates []Point `json:"coordinates"`
	LengthM     float64 `json:"length_m"`
}

// WayFragment is one raw way from a road source.
type WayFragment struct {
	ID   string
	Name string
	Path []Point
}

// Stitching thresholds.
const (
	stitchClusterM   = 2000.0
	stitchJoinM      = 60.0
	stitchMaxAngle   = 35.0
	splitTargetLenM  = 2000.0
	reorderMinGapM   = 200.0
	reorderGapFactor = 5.0
)

// OrderIfNeeded keeps the fragment as-is unless its largest adjacent gap
// exceeds max(200m, 5x average gap), in which case it greedily re-orders by
// nearest neighbour starting at the first point.
func OrderIfNeeded(path []Point) []Point {
	out := slices.Clone(path)
	if len(out) < 3 {
		return out
	}
	var maxGap, sum float64
	for i := 1; i < len(out); i++ {
		d := Haversine(out[i-1], out[i])
		sum += d
		maxGap = max(maxGap, d)
	}
	avg := sum / float64(len(out)-1)
	if maxGap < max(reorderMinGapM, reorderGapFactor*avg) {
		return out
	}

	rest := out[1:]
	ordered := []Point{out[0]}
	for len(rest) > 0 {
		last := ordered[len(ordered)-1]
		best, bestD := 0, math.Inf(1)
		for i, p := range rest {
			if d := Haversine(last, p); d < bestD {
				best, bestD = i, d
			}
		}
		ordered = append(ordered, rest[best])
		rest = slices.Delete(rest, best, best+1)
	}
	return ordered
}

// StitchFragments joins fragments of the same road. Fragments are first
// clustered by centroid so distant pieces are never joined, then stitched
// end-to-end when endpoints are within the join radius and bearings agree.
func StitchFragments(fragments [][]Point) [][]Point {
	if len(fragments) == 0 {
		return nil
	}

	centroids := make([]Point, len(fragments))
	for i, f := range fragments {
		centroids[i] = Centroid(f)
	}
	var clusters [][]int
	for i, c := range centroids {
		placed := false
		for k, cl := range clusters {
			if Haversine(c, centroids[cl[0]]) <= stitchClusterM {
				clusters[k] = append(cl, i)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []int{i})
		}
	}

	var out [][]Point
	for _, cl := range clusters {
		frags := make([][]Point, len(cl))
		for i, idx := range cl {
			frags[i] = OrderIfNeeded(fragments[idx])
		}
		used := make([]bool, len(frags))
		for i := range frags {
			if used[i] {
				continue
			}
			used[i] = true
			base := frags[i]
			for progress := true; progress; {
				progress = false
				for j := range frags {
					if used[j] {
						continue
					}
					if joined, ok := tryStitch(base, frags[j]); ok {
						base = joined
						used[j] = true
						progress = true
					}
				}
			}
			out = append(out, base)
		}
	}
	return out
}

func tryStitch(base, cand []Point) ([]Point, bool) {
	if len(base) < 2 || len(cand) < 2 {
		return nil, false
	}
	rev := slices.Clone(cand)
	slices.Reverse(rev)

	head := Bearing(base[len(base)-2], base[len(base)-1])
	tail := Bearing(base[1], base[0])

	for _, c := range [][]Point{cand, rev} {
		if Haversine(base[len(base)-1], c[0]) <= stitchJoinM &&
			AngleDiff(head, Bearing(c[0], c[1])) <= stitchMaxAngle {
			return joinPaths(base, c), true
		}
	}
	for _, c := range [][]Point{cand, rev} {
		n := len(c)
		if Haversine(base[0], c[n-1]) <= stitchJoinM &&
			AngleDiff(tail, Bearing(c[n-1], c[n-2])) <= stitchMaxAngle {
			return joinPaths(c, base), true
		}
	}
	return nil, false
}

// SplitEvenly cuts a polyline into parts pieces around evenly spaced arc
// length targets. Each piece keeps a neighbouring point on each side.
func SplitEvenly(path []Point, parts int) [][]Point {
	if parts <= 1 || len(path) < 2 {
		return [][]Point{path}
	}
	cum := cumulativeDistances(path)
	total := cum[len(cum)-1]
	if total == 0 {
		return [][]Point{path}
	}

	pieces := make([][]Point, 0, parts)
	for i := range parts {
		target := float64(i) * total / float64(parts)
		k := 0
		for k < len(cum)-1 && cum[k+1] < target {
			k++
		}
		start := max(0, k-1)
		end := min(len(path)-1, k+2)
		piece := slices.Clone(path[start : end+1])
		if len(piece) < 2 {
			piece = []Point{path[0], path[len(path)-1]}
		}
		pieces = append(pieces, piece)
	}
	return pieces
}

// MergeFragments groups fragments by name, stitches each group, and returns
// roads sorted by length descending.
func MergeFragments(frags []WayFragment) []Road {
	groups := map[string][][]Point{}
	var names []string
	for _, f := range frags {
		if len(f.Path) < 2 {
			continue
		}
		name := f.Name
		if name == "" {
			name = "unnamed_" + f.ID
		}
		if _, ok := groups[name]; !ok {
			names = append(names, name)
		}
		groups[name] = append(groups[name], f.Path)
	}

	var roads []Road
	for _, name := range names {
		for i, poly := range StitchFragments(groups[name]) {
			if len(poly) < 2 {
				continue
			}
			roads = append(roads, Road{
				ID:          fmt.Sprintf("merged_%s_%d", truncate(name, 30), i),
				Name:        name,
				Coordinates: poly,
				LengthM:     PathLength(poly),
			})
		}
	}
	sortByLength(roads)
	return roads
}

// BuildRoads splits long merged roads into roughly 2km parts until target
// segments exist, then trims to maxRoads.
func BuildRoads(merged []Road, maxRoads, target int) []Road {
	if target <= 0 {
		target = maxRoads
	}
	var out []Road
	taken := map[string]bool{}
	for _, r := range merged {
		if len(out) >= target {
			break
		}
		remaining := target - len(out)
		parts := 1
		if r.LengthM > splitTargetLenM && remaining > 1 {
			parts = max(1, min(remaining, int(math.Round(r.LengthM/splitTargetLenM))))
		}
		taken[r.ID] = true
		for i, p := range SplitEvenly(r.Coordinates, parts) {
			if len(out) >= target {
				break
			}
			out = append(out, Road{
				ID:          fmt.Sprintf("%s_part_%d", r.ID, i),
				Name:        r.Name,
				Coordinates: p,
				LengthM:     PathLength(p),
			})
		}
	}
	for _, r := range merged {
		if len(out) >= target {
			break
		}
		if !taken[r.ID] {
			out = append(out, r)
		}
	}
	if maxRoads > 0 && len(out) > maxRoads {
		sortByLength(out)
		out = out[:maxRoads]
	}
	return out
}

// SyntheticGrid lays evenly spaced horizontal and vertical roads over bbox.
func SyntheticGrid(b BBox, maxRoads int) []WayFragment {
	const pointsPerLine = 6
	lines := max(2, int(math.Sqrt(float64(maxRoads)/4)))
	latSpan := b.North - b.South
	lonSpan := b.East - b.West

	var out []WayFragment
	for i := range lines {
		if len(out) >= maxRoads {
			break
		}
		lat := b.South + float64(i+1)*latSpan/float64(lines+1)
		path := make([]Point, pointsPerLine)
		for k := range path {
			path[k] = Point{Lat: lat, Lon: b.West + lonSpan*float64(k)/(pointsPerLine-1)}
		}
		out = append(out, WayFragment{ID: fmt.Sprintf("synthetic_H_%d", len(out)), Name: fmt.Sprintf("Synthetic H Road %d", i), Path: path})
	}
	for j := range lines {
		if len(out) >= maxRoads {
			break
		}
		lon := b.West + float64(j+1)*lonSpan/float64(lines+1)
		path := make([]Point, pointsPerLine)
		for k := range path {
			path[k] = Point{Lat: b.South + latSpan*float64(k)/(pointsPerLine-1), Lon: lon}
		}
		out = append(out, WayFragment{ID: fmt.Sprintf("synthetic_V_%d", len(out)), Name: fmt.Sprintf("Synthetic V Road %d", j), Path: path})
	}
	return out
}

func sortByLength(roads []Road) {
	slices.SortStableFunc(roads, func(a, b Road) int { return cmp.Compare(b.LengthM, a.LengthM) })
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
