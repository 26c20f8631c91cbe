package domain

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateTraffic(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))
	w := Weather{TempC: 31.5, Condition: "Haze"}

	short := Road{ID: "r1", Name: "SV Road", Coordinates: eastward(72.8, 0.001, 4)}
	long := Road{ID: "r2", Name: "LBS Marg", Coordinates: eastward(72.9, 0.001, 20)}
	traffic := &stubTraffic{reading: TrafficReading{SpeedKmh: 40, JamFactor: 5}}

	sim := SimulateTraffic(ctx, []Road{short, long}, traffic, w, 4, DefaultCenter, rng)

	// 3 sampled points on the short road, 8 on the long one.
	require.Len(t, sim.Data, (3+8)*4)
	assert.Equal(t, 11, traffic.calls)

	c1, c2 := Centroid(short.Coordinates), Centroid(long.Coordinates)
	assert.InDelta(t, (c1.Lat+c2.Lat)/2, sim.CenterLat, 1e-9)
	assert.InDelta(t, (c1.Lon+c2.Lon)/2, sim.CenterLon, 1e-9)

	for _, row := range sim.Data {
		assert.GreaterOrEqual(t, row.Speed, 1.0)
		assert.GreaterOrEqual(t, row.VehicleCount, 0)
		assert.Equal(t, "Haze", row.Weather)
		assert.Equal(t, 31.5, row.Temp)
		assert.Positive(t, row.LengthM)
	}
	assert.Equal(t, "r1", sim.Data[0].Segment)
	assert.Equal(t, 0, sim.Data[0].Time)
	assert.Equal(t, 3, sim.Data[len(sim.Data)-1].Time)
}

func TestSimulateTrafficNoRoads(t *testing.T) {
	sim := SimulateTraffic(context.Background(), nil, nil, DefaultWeather, 4, DefaultCenter, rand.New(rand.NewPCG(1, 2)))
	assert.NotNil(t, sim.Data)
	assert.Empty(t, sim.Data)
	assert.Equal(t, DefaultCenter.Lat, sim.CenterLat)
}

func TestSimulateTrafficWithoutProvider(t *testing.T) {
	road := Road{ID: "r1", Coordinates: eastward(72.8, 0.001, 6)}
	sim := SimulateTraffic(context.Background(), []Road{road}, nil, DefaultWeather, 2, DefaultCenter, rand.New(rand.NewPCG(3, 4)))
	assert.Len(t, sim.Data, 3*2)
}

func TestGaussianKernel(t *testing.T) {
	k := gaussianKernel(5, 1.5)
	sum := 0.0
	for _, v := range k {
		sum += v
	}
	assert.InDelta(t, 1, sum, 1e-6)
	assert.InDelta(t, k[0], k[4], 1e-12)
	assert.Greater(t, k[2], k[1])

	smoothed := convolveSame([]float64{10, 10, 10, 10, 10}, k)
	assert.InDelta(t, 10, smoothed[2], 1e-6)
}
