// Package domain models road traffic, driving routes, and emergency green
// corridors for the MargDarshak dashboard service.
//
// # Coordinates
//
// Every Point is WGS-84 latitude/longitude in degrees. A (0,0) pair is treated
// as a placeholder rather than a real location and is rejected by [ValidCoord].
// Distances are great-circle metres from [Haversine].
//
// # Normalization
//
// Route and segment payloads arrive from several routing engines and from the
// dashboard in whatever shape they were produced. [ParsePath] accepts:
//
//	[[lat, lon], ...] or [[lon, lat], ...]   raw pairs, order resolved per batch
//	[{"lat": .., "lng": ..}, ...]            named points (lat|latitude|y, lon|lng|long|longitude|x)
//	{"type": "LineString", ...}              GeoJSON geometry, Feature, FeatureCollection
//	{"path" | "geometry" | "points": ..}     wrappers, searched recursively
//	"_p~iF~ps|U_ulLnnqC"                     encoded polylines (precision 5)
//
// Pair order is resolved by [ResolveOrder]: a first component beyond ±90 can
// only be a longitude, a second beyond ±90 can only be a longitude, and when
// both readings are plausible the one nearer the reference point wins. GeoJSON
// coordinates are always lon/lat.
//
// # Congestion
//
// Severity is a 0–100 percentage. Providers report a jam factor on 0–10
// (severity = jf*10) or a speed (severity falls linearly from 0 at 80 km/h to
// 100 at standstill). Routes are scored by sampling up to 8 points along the
// path. A route with no readings scores a mild 10%.
//
// # History
//
// Congestion history is bucketed per city and segment. Segment IDs are
// namespaced as "city::id" by [NormalizeSegmentID] and timestamps are floored
// to the bucket width by [RoundTime]. Seven days of 30-minute buckets (336
// values) feed the saturation predictor, which damps the trend as the last
// value approaches capacity.
//
// # Corridors
//
// An emergency request produces a ranked set of routes, a primary plan with
// intersections at 25%, 50% and 75% of the path, and one or two visible
// alternatives depending on how congested the primary is. GPS fixes advance
// the plan via [AdvanceCorridor].
package domain
