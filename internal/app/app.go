// Package app assembles the stores, provider adapters and services shared by
// the server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	kafkaadapter "github.com/couchcryptid/margdarshak/internal/adapter/kafka"
	"github.com/couchcryptid/margdarshak/internal/adapter/mapbox"
	"github.com/couchcryptid/margdarshak/internal/adapter/memory"
	"github.com/couchcryptid/margdarshak/internal/adapter/nominatim"
	"github.com/couchcryptid/margdarshak/internal/adapter/openweather"
	"github.com/couchcryptid/margdarshak/internal/adapter/overpass"
	"github.com/couchcryptid/margdarshak/internal/adapter/postgres"
	redisadapter "github.com/couchcryptid/margdarshak/internal/adapter/redis"
	"github.com/couchcryptid/margdarshak/internal/adapter/routers"
	"github.com/couchcryptid/margdarshak/internal/adapter/tomtom"
	"github.com/couchcryptid/margdarshak/internal/auth"
	"github.com/couchcryptid/margdarshak/internal/config"
	"github.com/couchcryptid/margdarshak/internal/corridor"
	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
	"github.com/couchcryptid/margdarshak/internal/roads"
	"github.com/couchcryptid/margdarshak/internal/routing"
	"github.com/couchcryptid/margdarshak/internal/traffic"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// App holds the wired services.
type App struct {
	History   domain.HistoryStore
	Users     domain.UserStore
	Corridors domain.CorridorStore
	Geocoder  domain.Geocoder
	Weather   domain.WeatherProvider
	Publisher domain.CorridorPublisher

	Auth     *auth.Service
	Roads    *roads.Service
	Routing  *routing.Service
	Traffic  *traffic.Service
	Corridor *corridor.Service

	ready   []sharedobs.ReadinessChecker
	closers []func() error
}

// Build connects the configured stores and constructs every service. Empty
// DATABASE_URL or REDIS_URL select the in-memory store for that concern.
// Corridor events are published only when Kafka is enabled.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	a := &App{}
	mem := memory.New()

	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			a.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.History, a.Users = pg, pg
		a.ready = append(a.ready, pg)
		logger.Info("postgres history and user store enabled")
	} else {
		a.History, a.Users = mem, mem
		logger.Warn("DATABASE_URL not set, traffic history and users are kept in memory")
	}

	var roadCache domain.RoadCache = mem
	a.Corridors = mem
	if cfg.RedisURL != "" {
		rs, err := redisadapter.Open(cfg.RedisURL, cfg.CorridorTTL, cfg.RoadsCacheTTL)
		if err != nil {
			a.Close() //nolint:errcheck // already failing
			return nil, err
		}
		a.closers = append(a.closers, rs.Close)
		a.Corridors, roadCache = rs, rs
		a.ready = append(a.ready, rs)
		logger.Info("redis corridor store and roads cache enabled", "corridor_ttl", cfg.CorridorTTL)
	} else {
		logger.Warn("REDIS_URL not set, corridor state and roads cache are kept in memory")
	}

	nom := nominatim.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.NominatimRPS, cfg.ProviderTimeout, metrics, logger)
	var bounds domain.CityBounds = nom
	a.Geocoder = mapbox.NewCachedGeocoder(nom, "nominatim", cfg.MapboxCacheSize, mapbox.DefaultCacheTTL, metrics)
	if cfg.MapboxEnabled {
		mb := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		a.Geocoder = mapbox.NewCachedGeocoder(mb, "mapbox", cfg.MapboxCacheSize, mapbox.DefaultCacheTTL, metrics)
		bounds = mb
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	}

	trafficProvider := tomtom.NewClient(cfg.TomTomKey, cfg.TomTomURL, cfg.ProviderTimeout, metrics, logger)
	if cfg.TomTomKey == "" {
		logger.Warn("TOMTOM_KEY not set, live traffic is synthetic")
	}
	a.Weather = openweather.NewClient(cfg.OpenWeatherKey, cfg.OpenWeatherURL, cfg.ProviderTimeout, metrics, logger)

	source := overpass.NewClient(cfg.OverpassURL, cfg.NominatimUserAgent, cfg.ProviderTimeout, metrics, logger)
	a.Roads = roads.New(bounds, source, roadCache, logger)

	providers := []domain.RouteProvider{routers.NewOSRM(cfg.OSRMURL, cfg.ProviderTimeout, metrics, logger)}
	if cfg.GraphHopperKey != "" {
		providers = append(providers, routers.NewGraphHopper(cfg.GraphHopperKey, cfg.GraphHopperURL, cfg.ProviderTimeout, metrics, logger))
	}
	if cfg.ORSKey != "" {
		providers = append(providers, routers.NewORS(cfg.ORSKey, cfg.ORSURL, cfg.ProviderTimeout, metrics, logger))
	}
	a.Routing = routing.New(providers, a.Roads, logger, metrics,
		routing.WithRaceTimeout(cfg.RoutingTimeout),
		routing.WithDefaultCity(cfg.DefaultCity),
	)

	a.Traffic = traffic.New(trafficProvider, a.History, a.Roads, logger, metrics,
		traffic.WithGeocoder(a.Geocoder),
		traffic.WithWeather(a.Weather),
	)

	if cfg.KafkaEnabled {
		w := kafkaadapter.NewWriter(cfg, logger)
		a.closers = append(a.closers, w.Close)
		a.Publisher = w
		logger.Info("corridor events enabled", "topic", cfg.KafkaCorridorTopic)
	}
	a.Corridor = corridor.New(a.Routing, trafficProvider, a.Corridors, a.Publisher, logger, metrics)

	a.Auth = auth.New(a.Users, cfg.JWTSecret, cfg.TokenTTL, cfg.PasswordMin, logger)
	if cfg.DevSecrets {
		logger.Warn("MARG_API_KEY or MARG_JWT_SECRET not set, using development secrets")
	}

	return a, nil
}

// AddReadiness registers another component the service waits on before it is ready.
func (a *App) AddReadiness(c sharedobs.ReadinessChecker) {
	a.ready = append(a.ready, c)
}

// CheckReadiness reports the first failing store or component.
func (a *App) CheckReadiness(ctx context.Context) error {
	for _, c := range a.ready {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases store connections and the corridor event writer in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
