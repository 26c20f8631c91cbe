package traffic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/margdarshak/internal/domain"
)

// Simulation bounds.
const (
	DefaultSimSegments  = 5
	DefaultSimTimeSteps = 10
	maxSimSegments      = 50
	maxSimTimeSteps     = 96
	simMinRoads         = 200
)

// Simulate builds a synthetic traffic dataset for location: it fetches
// numSegments roads, seeds baselines from live traffic, and attaches the
// current weather. The map centre falls back to the geocoded location and
// then the default centre when no roads are found.
func (s *Service) Simulate(ctx context.Context, location string, numSegments, timeSteps int) (domain.Simulation, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return domain.Simulation{}, fmt.Errorf("simulate: %w: location is required", domain.ErrInvalidInput)
	}
	if numSegments <= 0 {
		numSegments = DefaultSimSegments
	}
	if timeSteps <= 0 {
		timeSteps = DefaultSimTimeSteps
	}
	numSegments = min(numSegments, maxSimSegments)
	timeSteps = min(timeSteps, maxSimTimeSteps)

	if s.roads == nil {
		return domain.Simulation{}, errors.New("simulate: no road source configured")
	}
	roads, err := s.roads.ForCity(ctx, location, max(simMinRoads, numSegments*3), numSegments)
	if err != nil {
		return domain.Simulation{}, fmt.Errorf("simulate: %w", err)
	}
	if len(roads) > numSegments {
		roads = roads[:numSegments]
	}

	sim := domain.SimulateTraffic(ctx, roads, s.provider, s.currentWeather(ctx, location), timeSteps, s.center(ctx, location), s.newRand())
	s.logger.Debug("traffic simulated", "location", location, "roads", len(roads), "rows", len(sim.Data))
	return sim, nil
}

func (s *Service) center(ctx context.Context, location string) domain.Point {
	if s.geocoder == nil {
		return domain.DefaultCenter
	}
	res, err := s.geocoder.ForwardGeocode(ctx, location)
	if err != nil {
		s.logger.Debug("simulation geocode failed, using default centre", "location", location, "error", err)
		return domain.DefaultCenter
	}
	return domain.Point{Lat: res.Lat, Lon: res.Lon}
}

func (s *Service) currentWeather(ctx context.Context, location string) domain.Weather {
	if s.weather == nil {
		return domain.DefaultWeather
	}
	w, err := s.weather.Weather(ctx, location)
	if err != nil {
		return domain.DefaultWeather
	}
	return w
}
