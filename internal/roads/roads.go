// Package roads prepares per-city road segments from a road source, with a
// cache in front and a synthetic grid when the source has nothing.
package roads

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/margdarshak/internal/domain"
)

// Defaults and bbox growth, in degrees.
const (
	DefaultMaxRoads = 200
	expandStepDeg   = 0.01
	maxExpandSteps  = 10
)

// Service resolves and caches road sets.
type Service struct {
	bounds domain.CityBounds
	source domain.RoadSource
	cache  domain.RoadCache
	logger *slog.Logger
}

// New creates a Service. bounds and cache may be nil.
func New(bounds domain.CityBounds, source domain.RoadSource, cache domain.RoadCache, logger *slog.Logger) *Service {
	return &Service{bounds: bounds, source: source, cache: cache, logger: logger}
}

// ForCity returns up to maxRoads road segments for city, splitting long roads
// to approach targetSegments. A cached set is reused when it already holds
// min(maxRoads, targetSegments) roads. Otherwise the city bbox is grown by
// 0.01 degrees per step, up to 0.10, until the source yields enough merged
// roads. A failing source falls back to a synthetic grid, which is not cached.
func (s *Service) ForCity(ctx context.Context, city string, maxRoads, targetSegments int) ([]domain.Road, error) {
	if maxRoads <= 0 {
		maxRoads = DefaultMaxRoads
	}
	if targetSegments <= 0 {
		targetSegments = maxRoads
	}

	if cached, ok := s.fromCache(ctx, city, maxRoads, targetSegments); ok {
		return cached, nil
	}

	bbox := s.cityBBox(ctx, city)

	var merged []domain.Road
	synthetic := false
	for step := 0; step <= maxExpandSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		area := bbox.Expand(float64(step) * expandStepDeg)
		ways, err := s.source.Ways(ctx, area)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("road source failed, using synthetic grid", "city", city, "error", err)
			merged = domain.MergeFragments(domain.SyntheticGrid(area, maxRoads))
			synthetic = true
			break
		}
		if len(ways) == 0 && step == maxExpandSteps {
			merged = domain.MergeFragments(domain.SyntheticGrid(area, maxRoads))
			synthetic = true
			break
		}
		merged = domain.MergeFragments(ways)
		if len(merged) >= max(1, targetSegments) {
			break
		}
	}

	roads := domain.BuildRoads(merged, maxRoads, targetSegments)
	s.logger.Info("roads prepared", "city", city, "roads", len(roads), "synthetic", synthetic)

	if !synthetic && s.cache != nil && len(roads) > 0 {
		if err := s.cache.PutRoads(ctx, city, roads); err != nil {
			s.logger.Warn("roads cache write failed", "city", city, "error", err)
		}
	}
	return roads, nil
}

func (s *Service) fromCache(ctx context.Context, city string, maxRoads, targetSegments int) ([]domain.Road, bool) {
	if s.cache == nil {
		return nil, false
	}
	cached, ok, err := s.cache.GetRoads(ctx, city)
	if err != nil {
		s.logger.Warn("roads cache read failed", "city", city, "error", err)
		return nil, false
	}
	if !ok || len(cached) < min(maxRoads, targetSegments) {
		return nil, false
	}
	if len(cached) > maxRoads {
		cached = cached[:maxRoads]
	}
	return cached, true
}

func (s *Service) cityBBox(ctx context.Context, city string) domain.BBox {
	if s.bounds == nil {
		return domain.DefaultBBox
	}
	bbox, err := s.bounds.CityBBox(ctx, city)
	if err != nil {
		s.logger.Warn("city bbox lookup failed, using default", "city", city, "error", err)
		return domain.DefaultBBox
	}
	return bbox
}
