package routers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/margdarshak/internal/adapter/upstream"
	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

// OSRM queries an OSRM route service. Throttling and upstream 5xx responses
// are retried once after a short backoff.
type OSRM struct {
	baseURL string
	retries int
	backoff time.Duration
	http    *upstream.Client
}

// NewOSRM creates an OSRM provider.
func NewOSRM(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *OSRM {
	return &OSRM{
		baseURL: strings.TrimRight(baseURL, "/"),
		retries: 1,
		backoff: 300 * time.Millisecond,
		http:    upstream.New("osrm", timeout, metrics, logger),
	}
}

func (o *OSRM) Name() string { return "osrm" }

func (o *OSRM) Routes(ctx context.Context, origin, dest domain.Point, alternatives bool) ([]domain.Route, error) {
	u := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f", o.baseURL, origin.Lon, origin.Lat, dest.Lon, dest.Lat)
	params := url.Values{
		"overview":     {"full"},
		"geometries":   {"geojson"},
		"steps":        {"false"},
		"alternatives": {fmt.Sprint(alternatives)},
	}

	var (
		resp    osrmResponse
		err     error
		backoff = o.backoff
	)
	for attempt := 0; attempt <= o.retries; attempt++ {
		if attempt > 0 && !retry.SleepWithContext(ctx, backoff) {
			return nil, ctx.Err()
		}
		resp = osrmResponse{}
		err = o.http.GetJSON(ctx, u, params, &resp)
		if err == nil || !retryable(err) {
			break
		}
		backoff = retry.NextBackoff(backoff, 2*time.Second)
	}
	if err != nil {
		return nil, err
	}
	if resp.Code != "Ok" {
		o.http.Observe("empty")
		return nil, fmt.Errorf("osrm code %q: %w", resp.Code, domain.ErrNoRoute)
	}

	now := domain.Now()
	routes := make([]domain.Route, 0, len(resp.Routes))
	for i, r := range resp.Routes {
		path := domain.ParsePath(r.Geometry, domain.OrderLonLat)
		if len(path) < 2 {
			continue
		}
		routes = append(routes, domain.NewRoute(o.Name(), path, r.Distance, r.Duration, fmt.Sprintf("INT_OSRM_%d", i+1), now))
	}
	if len(routes) == 0 {
		o.http.Observe("empty")
		return nil, fmt.Errorf("osrm: %w", domain.ErrNoRoute)
	}
	return routes, nil
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry any     `json:"geometry"`
	} `json:"routes"`
}

func retryable(err error) bool {
	var se *upstream.StatusError
	if !errors.As(err, &se) {
		return true
	}
	return se.Status == http.StatusTooManyRequests || se.Status >= 500
}
