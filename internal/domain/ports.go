package domain

import (
	"context"
	"time"
)

// RouteProvider is an external routing engine.
type RouteProvider interface {
	// Name identifies the provider in metrics and intersection prefixes.
	Name() string
	// Routes returns the provider's route (and alternatives when asked),
	// already normalized to lat/lon paths. An empty result is an error.
	Routes(ctx context.Context, origin, dest Point, alternatives bool) ([]Route, error)
}

// RoadSource fetches raw road ways inside a bounding box.
type RoadSource interface {
	Ways(ctx context.Context, b BBox) ([]WayFragment, error)
}

// RoadCache stores the prepared road set for a city.
type RoadCache interface {
	GetRoads(ctx context.Context, city string) ([]Road, bool, error)
	PutRoads(ctx context.Context, city string, roads []Road) error
}

// HistoryStore persists bucketed congestion values.
type HistoryStore interface {
	// StorePoint upserts a point keyed by city, segment, and bucket timestamp.
	StorePoint(ctx context.Context, p TrafficPoint) error
	// StoreBatch upserts many points in one round trip where supported.
	StoreBatch(ctx context.Context, points []TrafficPoint) error
	// History returns up to limit most recent values in chronological order.
	History(ctx context.Context, city, segmentID string, intervalMin, limit int) ([]float64, error)
}

// User is an account allowed to log in to the dashboard.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}

// UserStore looks up and creates users.
type UserStore interface {
	GetUser(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, u User) error
}

// CorridorStore holds active corridor state.
type CorridorStore interface {
	SaveCorridor(ctx context.Context, c Corridor) error
	GetCorridor(ctx context.Context, requestID string) (Corridor, error)
}

// Corridor lifecycle event types.
const (
	EventCorridorCreated   = "corridor.created"
	EventCorridorPosition  = "corridor.position"
	EventCorridorCompleted = "corridor.completed"
)

// CorridorEvent is published whenever a corridor changes.
type CorridorEvent struct {
	Type       string    `json:"type"`
	RequestID  string    `json:"request_id"`
	VehicleID  string    `json:"vehicle_id"`
	Status     string    `json:"status"`
	Corridor   Corridor  `json:"corridor"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CorridorPublisher emits corridor events to downstream consumers.
type CorridorPublisher interface {
	PublishCorridor(ctx context.Context, e CorridorEvent) error
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
