// Package traffic records live congestion readings and forecasts segment
// congestion from stored history.
package traffic

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
)

const (
	// LiveIntervalMin is the bucket width live readings are stored under.
	LiveIntervalMin = 30

	seedBaseValue = 35.0
	seedStep      = 4.0
	seedMaxRoads  = 200
)

// RoadLookup returns prepared roads for a city. roads.Service satisfies it.
type RoadLookup interface {
	ForCity(ctx context.Context, city string, maxRoads, targetSegments int) ([]domain.Road, error)
}

// LiveReading is the stored result of one live traffic lookup.
type LiveReading struct {
	SegmentID string    `json:"segment_id"`
	Severity  float64   `json:"severity"`
	Source    string    `json:"source"`
	TS        time.Time `json:"ts"`
}

// SeedResult summarises a SeedHistory run.
type SeedResult struct {
	City     string `json:"city"`
	Segments int    `json:"segments"`
	Points   int    `json:"points"`
}

// Service combines a live traffic provider with the history store.
type Service struct {
	provider domain.TrafficProvider
	history  domain.HistoryStore
	roads    RoadLookup
	geocoder domain.Geocoder
	weather  domain.WeatherProvider
	newRand  func() *rand.Rand
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithGeocoder sets the geocoder used to centre simulations.
func WithGeocoder(g domain.Geocoder) Option {
	return func(s *Service) { s.geocoder = g }
}

// WithWeather sets the weather provider attached to simulated rows.
func WithWeather(w domain.WeatherProvider) Option {
	return func(s *Service) { s.weather = w }
}

// WithRandSource overrides the per-simulation random source.
func WithRandSource(f func() *rand.Rand) Option {
	return func(s *Service) { s.newRand = f }
}

// New creates a Service. roads is only needed by SeedHistory and Simulate.
func New(provider domain.TrafficProvider, history domain.HistoryStore, roads RoadLookup, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		history:  history,
		roads:    roads,
		newRand:  func() *rand.Rand { return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) },
		logger:   logger,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Live reads current traffic at p (the default centre when nil), stores the
// severity as a history point for the road's segment, and returns it.
func (s *Service) Live(ctx context.Context, roadID, city string, p *domain.Point) (LiveReading, error) {
	if strings.TrimSpace(roadID) == "" || strings.TrimSpace(city) == "" {
		return LiveReading{}, fmt.Errorf("live traffic: %w: road_id and city are required", domain.ErrInvalidInput)
	}
	at := domain.DefaultCenter
	if p != nil {
		if !p.Valid() {
			return LiveReading{}, fmt.Errorf("live traffic: %w", domain.ErrInvalidCoordinates)
		}
		at = *p
	}

	reading, err := s.provider.TrafficAt(ctx, at)
	if err != nil {
		return LiveReading{}, fmt.Errorf("live traffic: %w", err)
	}

	severity := float64(reading.Severity)
	if severity == 0 && reading.JamFactor > 0 {
		severity = float64(domain.SeverityFromJamFactor(reading.JamFactor))
	}

	now := domain.Now()
	point := domain.NewTrafficPoint(city, roadID, severity, LiveIntervalMin, now)
	if err := s.history.StorePoint(ctx, point); err != nil {
		return LiveReading{}, fmt.Errorf("store live reading: %w", err)
	}
	s.metrics.TrafficPointsStored.Inc()

	s.logger.Debug("live traffic stored", "segment_id", point.SegmentID, "severity", severity, "provider_source", reading.Source)
	return LiveReading{SegmentID: point.SegmentID, Severity: severity, Source: "live", TS: now.UTC()}, nil
}

// PredictToday forecasts today's congestion for a segment from up to seven
// days of history at intervalMin. Fewer than two points yields status no_data.
func (s *Service) PredictToday(ctx context.Context, city, segmentID string, intervalMin int) (domain.Prediction, error) {
	if strings.TrimSpace(city) == "" || strings.TrimSpace(segmentID) == "" {
		return domain.Prediction{}, fmt.Errorf("predict today: %w: city and segment_id are required", domain.ErrInvalidInput)
	}
	if intervalMin <= 0 {
		intervalMin = domain.DefaultIntervalMin
	}
	cityKey := strings.ToLower(strings.TrimSpace(city))
	segment := domain.NormalizeSegmentID(city, segmentID)

	history, err := s.history.History(ctx, cityKey, segment, intervalMin, domain.HistoryWindow)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("predict today: %w", err)
	}
	return domain.ForecastSegment(city, segment, history), nil
}

// Predict returns the trend prediction for a series.
func (s *Service) Predict(series []float64) float64 {
	return domain.TrendPredict(series)
}

// PredictBatch runs Predict over every named series.
func (s *Service) PredictBatch(segments map[string][]float64) map[string]float64 {
	out := make(map[string]float64, len(segments))
	for seg, series := range segments {
		out[seg] = domain.TrendPredict(series)
	}
	return out
}

// SeedHistory writes points synthetic values (35, 39, 43, ...) for every road
// in city, one per interval bucket ending at the current bucket, so the
// series is immediately usable by PredictToday.
func (s *Service) SeedHistory(ctx context.Context, city string, points, intervalMin int) (SeedResult, error) {
	if strings.TrimSpace(city) == "" {
		return SeedResult{}, fmt.Errorf("seed history: %w: city is required", domain.ErrInvalidInput)
	}
	if points <= 0 {
		points = 6
	}
	if intervalMin <= 0 {
		intervalMin = domain.DefaultIntervalMin
	}
	if s.roads == nil {
		return SeedResult{}, fmt.Errorf("seed history: no road source configured")
	}

	roads, err := s.roads.ForCity(ctx, city, seedMaxRoads, 0)
	if err != nil {
		return SeedResult{}, fmt.Errorf("seed history: %w", err)
	}

	now := domain.Now()
	step := time.Duration(intervalMin) * time.Minute
	batch := make([]domain.TrafficPoint, 0, len(roads)*points)
	for _, r := range roads {
		for i := range points {
			ts := now.Add(-time.Duration(points-1-i) * step)
			batch = append(batch, domain.NewTrafficPoint(city, r.ID, seedBaseValue+float64(i)*seedStep, intervalMin, ts))
		}
	}
	if err := s.history.StoreBatch(ctx, batch); err != nil {
		return SeedResult{}, fmt.Errorf("seed history: %w", err)
	}
	s.metrics.TrafficPointsStored.Add(float64(len(batch)))

	s.logger.Info("history seeded", "city", city, "segments", len(roads), "points", points)
	return SeedResult{City: city, Segments: len(roads), Points: points}, nil
}
