package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/routing"
)

const (
	defaultMaxRoads    = 200
	defaultSeedPoints  = 6
	defaultIntervalMin = 30
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := s.deps.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		s.fail(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

type locationRequest struct {
	Location    string `json:"location"`
	NumSegments int    `json:"num_segments"`
	TimeSteps   int    `json:"time_steps"`
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	req := locationRequest{Location: s.deps.DefaultCity, NumSegments: 5, TimeSteps: 10}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sim, err := s.deps.Traffic.Simulate(r.Context(), req.Location, req.NumSegments, req.TimeSteps)
	if err != nil {
		s.fail(w, r, "simulate", err)
		return
	}
	writeJSON(w, http.StatusOK, sim)
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	res, err := s.deps.Geocoder.ForwardGeocode(r.Context(), address)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Address not found")
			return
		}
		s.fail(w, r, "geocode", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type routeResponse struct {
	DistanceM     float64               `json:"distance_m"`
	DurationS     float64               `json:"duration_s"`
	Polyline      string                `json:"polyline"`
	Intersections []domain.Intersection `json:"intersections"`
	Provider      string                `json:"provider,omitempty"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routing.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	route, err := s.deps.Router.BestRoute(r.Context(), req)
	if err != nil {
		s.fail(w, r, "route", err)
		return
	}
	writeJSON(w, http.StatusOK, routeResponse{
		DistanceM:     route.DistanceM,
		DurationS:     route.DurationS,
		Polyline:      route.Polyline,
		Intersections: route.Intersections,
		Provider:      route.Provider,
	})
}

func (s *Server) handleEmergencyRequest(w http.ResponseWriter, r *http.Request) {
	var req domain.EmergencyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.deps.Corridors.Create(r.Context(), req)
	if err != nil {
		s.fail(w, r, "emergency request", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEmergencyUpdate(w http.ResponseWriter, r *http.Request) {
	var u domain.GPSUpdate
	if err := decodeJSON(r, &u); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.deps.Corridors.UpdatePosition(r.Context(), u)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "request_id not found")
			return
		}
		s.fail(w, r, "emergency update", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEmergencyStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Corridors.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "request_id not found")
			return
		}
		s.fail(w, r, "emergency status", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type predictRequest struct {
	SegmentData []float64 `json:"segment_data"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"predicted_congestion": s.deps.Traffic.Predict(req.SegmentData)})
}

type predictTodayRequest struct {
	SegmentID   string `json:"segment_id"`
	IntervalMin int    `json:"interval_min"`
}

func (s *Server) handlePredictToday(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		writeError(w, http.StatusBadRequest, "city is required")
		return
	}
	req := predictTodayRequest{IntervalMin: defaultIntervalMin}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.SegmentID) == "" {
		writeError(w, http.StatusBadRequest, "segment_id is required")
		return
	}
	pred, err := s.deps.Traffic.PredictToday(r.Context(), city, req.SegmentID, req.IntervalMin)
	if err != nil {
		s.fail(w, r, "predict today", err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

type predictBatchRequest struct {
	Segments map[string][]float64 `json:"segments"`
}

func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var req predictBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]map[string]float64{"predictions": s.deps.Traffic.PredictBatch(req.Segments)})
}

func (s *Server) handleLiveTraffic(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roadID, city := q.Get("road_id"), q.Get("city")
	if roadID == "" || city == "" {
		writeError(w, http.StatusBadRequest, "road_id and city are required")
		return
	}
	p, err := queryPoint(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reading, err := s.deps.Traffic.Live(r.Context(), roadID, city, p)
	if err != nil {
		s.fail(w, r, "live traffic", err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	city := r.PathValue("city")
	weather, err := s.deps.Weather.Weather(r.Context(), city)
	if err != nil {
		s.logger.Warn("weather lookup failed, using default", "city", city, "error", err)
		weather = domain.DefaultWeather
	}
	writeJSON(w, http.StatusOK, weather)
}

func (s *Server) handleAirQuality(w http.ResponseWriter, r *http.Request) {
	p, err := queryPoint(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p == nil {
		city := strings.TrimSpace(r.URL.Query().Get("city"))
		if city == "" {
			writeError(w, http.StatusBadRequest, "lat and lon or city are required")
			return
		}
		res, err := s.deps.Geocoder.ForwardGeocode(r.Context(), city)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "city not found")
				return
			}
			s.fail(w, r, "air quality geocode", err)
			return
		}
		p = &domain.Point{Lat: res.Lat, Lon: res.Lon}
	}
	if !p.Valid() {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidCoordinates.Error())
		return
	}
	aq, err := s.deps.Weather.AirQuality(r.Context(), *p)
	if err != nil {
		s.fail(w, r, "air quality", err)
		return
	}
	writeJSON(w, http.StatusOK, aq)
}

func (s *Server) handleSeedHistory(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		writeError(w, http.StatusBadRequest, "city is required")
		return
	}
	points, err := queryInt(r, "points", defaultSeedPoints)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	interval, err := queryInt(r, "interval_min", defaultIntervalMin)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.deps.Traffic.SeedHistory(r.Context(), city, points, interval)
	if err != nil {
		s.fail(w, r, "seed history", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRoads(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if city == "" {
		city = s.deps.DefaultCity
	}
	maxRoads, err := queryInt(r, "max_roads", defaultMaxRoads)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	target, err := queryInt(r, "target_segments", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	roads, err := s.deps.Roads.ForCity(r.Context(), city, maxRoads, target)
	if err != nil {
		s.fail(w, r, "roads", err)
		return
	}
	if roads == nil {
		roads = []domain.Road{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Road{"roads": roads})
}

type normalizeRequest struct {
	Payload       any           `json:"payload"`
	Order         string        `json:"order"`
	Ref           *domain.Point `json:"ref,omitempty"`
	Segments      bool          `json:"segments"`
	MinSegmentLen float64       `json:"min_segment_m"`
}

type normalizeResponse struct {
	Order    string           `json:"order"`
	Path     []domain.Point   `json:"path"`
	Polyline string           `json:"polyline"`
	Segments []domain.Segment `json:"segments,omitempty"`
}

func (s *Server) handleNormalizePath(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := domain.ParseCoordOrder(req.Order)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	near := req.Ref != nil && order == domain.OrderAuto
	var path []domain.Point
	if near {
		path = domain.ParsePathNear(req.Payload, *req.Ref)
	} else {
		path = domain.ParsePath(req.Payload, order)
	}
	if len(path) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no coordinates found in payload")
		return
	}

	resp := normalizeResponse{Order: order.String(), Path: path, Polyline: domain.EncodePolyline(path)}
	if req.Segments {
		var segs []domain.Segment
		if near {
			segs = domain.ParseSegmentsNear(req.Payload, *req.Ref)
		} else {
			segs = domain.ParseSegments(req.Payload, order)
		}
		resp.Segments = domain.GroupSegments(segs, req.MinSegmentLen)
	}
	writeJSON(w, http.StatusOK, resp)
}
