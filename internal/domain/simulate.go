package domain

import (
	"context"
	"math"
	"math/rand/v2"
)

// SimulatedRow is one synthetic sample on one road at one time step.
type SimulatedRow struct {
	Segment      string  `json:"segment"`
	RoadName     string  `json:"road_name"`
	Time         int     `json:"time"`
	VehicleCount int     `json:"vehicle_count"`
	Speed        float64 `json:"speed"`
	Weather      string  `json:"weather"`
	Temp         float64 `json:"temp"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	LengthM      float64 `json:"length_m"`
}

// Simulation is the synthetic dataset for a location plus its map centre.
type Simulation struct {
	Data      []SimulatedRow `json:"data"`
	CenterLat float64        `json:"center_lat"`
	CenterLon float64        `json:"center_lon"`
}

const (
	simKernelSigma = 1.5
	simTrendAmp    = 0.15
	simSpeedNoise  = 0.08
	simCountNoise  = 0.12
)

// SimulateTraffic produces a spatially smoothed, temporally varying series for
// each road. Baselines come from the traffic provider at 3 to 8 points sampled
// along the road; provider errors fall back to random baselines. The centre is
// the mean of road centroids, or fallback when there are no roads.
func SimulateTraffic(ctx context.Context, roads []Road, traffic TrafficProvider, w Weather, timeSteps int, fallback Point, rng *rand.Rand) Simulation {
	sim := Simulation{Data: []SimulatedRow{}, CenterLat: fallback.Lat, CenterLon: fallback.Lon}
	if len(roads) == 0 {
		return sim
	}

	var sumLat, sumLon float64
	for _, r := range roads {
		c := Centroid(r.Coordinates)
		sumLat += c.Lat
		sumLon += c.Lon
		sim.Data = append(sim.Data, simulateRoad(ctx, r, traffic, w, timeSteps, rng)...)
	}
	sim.CenterLat = sumLat / float64(len(roads))
	sim.CenterLon = sumLon / float64(len(roads))
	return sim
}

func simulateRoad(ctx context.Context, r Road, traffic TrafficProvider, w Weather, timeSteps int, rng *rand.Rand) []SimulatedRow {
	if len(r.Coordinates) == 0 {
		return nil
	}
	n := min(max(3, len(r.Coordinates)/2), 8)
	sampled := make([]Point, n)
	for i := range n {
		sampled[i] = r.Coordinates[i*(len(r.Coordinates)-1)/max(1, n-1)]
	}

	speeds := make([]float64, n)
	counts := make([]float64, n)
	for i, p := range sampled {
		reading, err := readingAt(ctx, traffic, p)
		if err != nil {
			speeds[i] = 15 + rng.Float64()*40
			counts[i] = float64(5 + rng.IntN(115))
			continue
		}
		speeds[i] = reading.SpeedKmh
		counts[i] = max(1, math.Trunc(20+reading.JamFactor*15+float64(rng.IntN(10)-5)))
	}

	kernel := gaussianKernel(n, simKernelSigma)
	speeds = convolveSame(speeds, kernel)
	counts = convolveSame(counts, kernel)
	for i := range counts {
		counts[i] = max(1, math.Round(counts[i]))
	}

	lengthM := r.LengthM
	if lengthM == 0 {
		lengthM = max(1, PathLength(r.Coordinates))
	}

	rows := make([]SimulatedRow, 0, n*timeSteps)
	for t := range timeSteps {
		phase := 2 * math.Pi * float64(t) / float64(max(1, timeSteps))
		trend := 1 + simTrendAmp*math.Sin(phase+rng.Float64())
		for i, p := range sampled {
			speed := max(1, speeds[i]*(1+rng.NormFloat64()*simSpeedNoise*trend))
			count := max(0, int(counts[i]*(1+rng.NormFloat64()*simCountNoise*trend)))
			rows = append(rows, SimulatedRow{
				Segment:      r.ID,
				RoadName:     r.Name,
				Time:         t,
				VehicleCount: count,
				Speed:        speed,
				Weather:      w.Condition,
				Temp:         w.TempC,
				Lat:          p.Lat,
				Lon:          p.Lon,
				LengthM:      lengthM,
			})
		}
	}
	return rows
}

func readingAt(ctx context.Context, traffic TrafficProvider, p Point) (TrafficReading, error) {
	if traffic == nil {
		return TrafficReading{}, ErrNotFound
	}
	return traffic.TrafficAt(ctx, p)
}

// gaussianKernel is a normalized kernel of length n centred on (n-1)/2.
func gaussianKernel(n int, sigma float64) []float64 {
	k := make([]float64, n)
	centre := float64(n-1) / 2
	sum := 0.0
	for i := range k {
		d := float64(i) - centre
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum + 1e-9
	}
	return k
}

// convolveSame is a discrete convolution trimmed to the input length and centred.
func convolveSame(x, k []float64) []float64 {
	out := make([]float64, len(x))
	offset := (len(k) - 1) / 2
	for i := range out {
		sum := 0.0
		for j, kv := range k {
			idx := i + offset - j
			if idx >= 0 && idx < len(x) {
				sum += x[idx] * kv
			}
		}
		out[i] = sum
	}
	return out
}
