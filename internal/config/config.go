package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Development fallbacks. Production deployments must set MARG_API_KEY and MARG_JWT_SECRET.
const (
	devAPIKey    = "dev-api-key"
	devJWTSecret = "dev-jwt-secret-change-me"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	FrontendDir     string
	DefaultCity     string

	// Auth.
	APIKey      string
	JWTSecret   string
	TokenTTL    time.Duration
	DevSecrets  bool
	PasswordMin int

	// Storage. Empty URLs select the in-memory stores.
	DatabaseURL   string
	RedisURL      string
	CorridorTTL   time.Duration
	RoadsCacheTTL time.Duration

	// Kafka ingest and corridor events.
	KafkaEnabled           bool
	KafkaBrokers           []string
	KafkaObservationsTopic string
	KafkaCorridorTopic     string
	KafkaGroupID           string
	BatchSize              int
	BatchFlushInterval     time.Duration

	// Routing providers.
	GraphHopperKey  string
	GraphHopperURL  string
	OSRMURL         string
	ORSKey          string
	ORSURL          string
	RoutingTimeout  time.Duration
	ProviderTimeout time.Duration

	// Geocoding.
	NominatimURL       string
	NominatimUserAgent string
	NominatimRPS       float64
	MapboxToken        string
	MapboxEnabled      bool
	MapboxTimeout      time.Duration
	MapboxCacheSize    int

	// Traffic, weather and road data.
	TomTomKey      string
	TomTomURL      string
	OpenWeatherKey string
	OpenWeatherURL string
	OverpassURL    string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}
	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	tokenTTL, err := parseDuration("JWT_TTL", "4h")
	if err != nil {
		return nil, err
	}
	corridorTTL, err := parseDuration("CORRIDOR_TTL", "24h")
	if err != nil {
		return nil, err
	}
	roadsTTL, err := parseDuration("ROADS_CACHE_TTL", "24h")
	if err != nil {
		return nil, err
	}
	routingTimeout, err := parseDuration("ROUTING_TIMEOUT", "8s")
	if err != nil {
		return nil, err
	}
	providerTimeout, err := parseDuration("PROVIDER_TIMEOUT", "6s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	nominatimRPS, err := parsePositiveFloat("NOMINATIM_RPS", "1")
	if err != nil {
		return nil, err
	}
	passwordMin, err := parsePositiveInt("PASSWORD_MIN_LENGTH", 6)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	brokersRaw := os.Getenv("KAFKA_BROKERS")
	kafkaEnabled := brokersRaw != ""
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		FrontendDir:     sharedcfg.EnvOrDefault("FRONTEND_BUILD_DIR", "frontend/dist"),
		DefaultCity:     sharedcfg.EnvOrDefault("DEFAULT_CITY", "Mumbai"),

		APIKey:      os.Getenv("MARG_API_KEY"),
		JWTSecret:   os.Getenv("MARG_JWT_SECRET"),
		TokenTTL:    tokenTTL,
		PasswordMin: passwordMin,

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		CorridorTTL:   corridorTTL,
		RoadsCacheTTL: roadsTTL,

		KafkaEnabled:           kafkaEnabled,
		KafkaBrokers:           sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaObservationsTopic: sharedcfg.EnvOrDefault("KAFKA_OBSERVATIONS_TOPIC", "traffic-observations"),
		KafkaCorridorTopic:     sharedcfg.EnvOrDefault("KAFKA_CORRIDOR_TOPIC", "corridor-events"),
		KafkaGroupID:           sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "margdarshak-ingest"),
		BatchSize:              batchSize,
		BatchFlushInterval:     flushInterval,

		GraphHopperKey:  os.Getenv("GH_API_KEY"),
		GraphHopperURL:  sharedcfg.EnvOrDefault("GH_BASE_URL", "https://graphhopper.com/api/1/route"),
		OSRMURL:         sharedcfg.EnvOrDefault("OSRM_URL", "https://router.project-osrm.org"),
		ORSKey:          os.Getenv("ORS_API_KEY"),
		ORSURL:          sharedcfg.EnvOrDefault("ORS_BASE_URL", "https://api.openrouteservice.org"),
		RoutingTimeout:  routingTimeout,
		ProviderTimeout: providerTimeout,

		NominatimURL:       sharedcfg.EnvOrDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent: sharedcfg.EnvOrDefault("NOMINATIM_USER_AGENT", "margdarshak/1.0"),
		NominatimRPS:       nominatimRPS,
		MapboxToken:        mapboxToken,
		MapboxEnabled:      mapboxEnabled,
		MapboxTimeout:      mapboxTimeout,
		MapboxCacheSize:    parseMapboxCacheSize(),

		TomTomKey:      os.Getenv("TOMTOM_KEY"),
		TomTomURL:      sharedcfg.EnvOrDefault("TOMTOM_URL", "https://api.tomtom.com/traffic/services/5/flowSegmentData/absolute/10/json"),
		OpenWeatherKey: os.Getenv("OPENWEATHER_KEY"),
		OpenWeatherURL: sharedcfg.EnvOrDefault("OPENWEATHER_URL", "https://api.openweathermap.org/data/2.5"),
		OverpassURL:    sharedcfg.EnvOrDefault("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
	}

	if cfg.APIKey == "" || cfg.JWTSecret == "" {
		cfg.DevSecrets = true
		if cfg.APIKey == "" {
			cfg.APIKey = devAPIKey
		}
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devJWTSecret
		}
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaObservationsTopic == "" {
		return nil, errors.New("KAFKA_OBSERVATIONS_TOPIC is required")
	}
	if cfg.KafkaCorridorTopic == "" {
		return nil, errors.New("KAFKA_CORRIDOR_TOPIC is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parseDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", name)
	}
	return d, nil
}

func parsePositiveFloat(name, def string) (float64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(name, def), 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive number", name)
	}
	return f, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", name)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
