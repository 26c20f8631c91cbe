package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/margdarshak/internal/auth"
	"github.com/couchcryptid/margdarshak/internal/corridor"
	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
	"github.com/couchcryptid/margdarshak/internal/routing"
	"github.com/couchcryptid/margdarshak/internal/traffic"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Authenticator issues tokens for valid credentials and verifies them on the way back.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (auth.Token, error)
	Verify(token string) (string, error)
}

// RoutePlanner computes one best route.
type RoutePlanner interface {
	BestRoute(ctx context.Context, req routing.Request) (domain.Route, error)
}

// CorridorManager runs the emergency corridor lifecycle.
type CorridorManager interface {
	Create(ctx context.Context, req domain.EmergencyRequest) (corridor.CreateResult, error)
	UpdatePosition(ctx context.Context, u domain.GPSUpdate) (corridor.UpdateResult, error)
	Status(ctx context.Context, requestID string) (corridor.StatusResult, error)
}

// TrafficService covers live readings, predictions, history seeding and simulation.
type TrafficService interface {
	Live(ctx context.Context, roadID, city string, p *domain.Point) (traffic.LiveReading, error)
	PredictToday(ctx context.Context, city, segmentID string, intervalMin int) (domain.Prediction, error)
	Predict(series []float64) float64
	PredictBatch(segments map[string][]float64) map[string]float64
	SeedHistory(ctx context.Context, city string, points, intervalMin int) (traffic.SeedResult, error)
	Simulate(ctx context.Context, location string, numSegments, timeSteps int) (domain.Simulation, error)
}

// RoadFinder returns prepared roads for a city.
type RoadFinder interface {
	ForCity(ctx context.Context, city string, maxRoads, targetSegments int) ([]domain.Road, error)
}

// Deps are the services behind the API routes.
type Deps struct {
	Ready       sharedobs.ReadinessChecker
	Auth        Authenticator
	Geocoder    domain.Geocoder
	Router      RoutePlanner
	Corridors   CorridorManager
	Traffic     TrafficService
	Roads       RoadFinder
	Weather     domain.WeatherProvider
	APIKey      string
	FrontendDir string
	DefaultCity string
}

// Server exposes the MargDarshak API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the API, /healthz, /readyz, and /metrics routes.
func NewServer(addr string, deps Deps, logger *slog.Logger, metrics *observability.Metrics) *Server {
	if deps.DefaultCity == "" {
		deps.DefaultCity = "Mumbai"
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           observability.AccessLog(logger, metrics, routeLabel)(cors(mux)),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			// Routing and corridor creation race several providers.
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:   deps,
		logger: logger,
	}

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/predict_today", s.handlePredictToday)

	guarded := map[string]http.HandlerFunc{
		"POST /api/data":                  s.handleData,
		"GET /api/geocode":                s.handleGeocode,
		"POST /api/route":                 s.handleRoute,
		"POST /api/predict":               s.handlePredict,
		"POST /api/predict_batch":         s.handlePredictBatch,
		"GET /api/live_traffic":           s.handleLiveTraffic,
		"GET /api/weather/{city}":         s.handleWeather,
		"GET /api/air_quality":            s.handleAirQuality,
		"POST /api/dev/seed_city_history": s.handleSeedHistory,
		"GET /api/roads":                  s.handleRoads,
		"POST /api/normalize/path":        s.handleNormalizePath,
	}
	// Corridor operations additionally need a login token.
	emergency := map[string]http.HandlerFunc{
		"POST /api/emergency/request":         s.handleEmergencyRequest,
		"POST /api/emergency/update_position": s.handleEmergencyUpdate,
		"GET /api/emergency/status/{id}":      s.handleEmergencyStatus,
	}
	for pattern, h := range guarded {
		mux.Handle(pattern, requireAPIKey(deps.APIKey, h))
	}
	for pattern, h := range emergency {
		mux.Handle(pattern, requireAPIKey(deps.APIKey, s.requireBearer(h)))
	}

	if index := filepath.Join(deps.FrontendDir, "index.html"); deps.FrontendDir != "" && fileExists(index) {
		mux.Handle("GET /", http.FileServer(http.Dir(deps.FrontendDir)))
	} else {
		mux.HandleFunc("GET /{$}", handleRoot)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Server Started"})
}

// requireAPIKey rejects requests whose x-api-key header does not match key.
func requireAPIKey(key string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("x-api-key")
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			writeError(w, http.StatusUnauthorized, "Invalid or missing x-api-key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireBearer rejects requests without a valid "Authorization: Bearer" token
// issued by /api/login.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "Invalid or missing bearer token")
			return
		}
		subject, err := s.deps.Auth.Verify(strings.TrimSpace(token))
		if err != nil {
			s.logger.Debug("bearer token rejected", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "Invalid or missing bearer token")
			return
		}
		s.logger.Debug("bearer token accepted", "path", r.URL.Path, "subject", subject)
		next.ServeHTTP(w, r)
	})
}

// cors allows any origin, method and header.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
			h.Set("Access-Control-Allow-Headers", req)
		} else {
			h.Set("Access-Control-Allow-Headers", "*")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// routeLabel keeps metric cardinality bounded by using the matched mux pattern.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
