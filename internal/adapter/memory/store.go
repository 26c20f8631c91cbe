// Package memory provides process-local stores used when PostgreSQL or Redis
// are not configured. Data is lost on restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/couchcryptid/margdarshak/internal/domain"
)

type historyKey struct {
	city    string
	segment string
}

// Store implements domain.HistoryStore, domain.UserStore,
// domain.CorridorStore and domain.RoadCache.
type Store struct {
	mu        sync.RWMutex
	history   map[historyKey][]domain.TrafficPoint
	users     map[string]domain.User
	corridors map[string]domain.Corridor
	roads     map[string][]domain.Road
}

// New creates an empty store.
func New() *Store {
	return &Store{
		history:   map[historyKey][]domain.TrafficPoint{},
		users:     map[string]domain.User{},
		corridors: map[string]domain.Corridor{},
		roads:     map[string][]domain.Road{},
	}
}

// StorePoint upserts by city, segment and bucket timestamp.
func (s *Store) StorePoint(_ context.Context, p domain.TrafficPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(p)
	return nil
}

func (s *Store) StoreBatch(_ context.Context, points []domain.TrafficPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.upsert(p)
	}
	return nil
}

func (s *Store) upsert(p domain.TrafficPoint) {
	k := historyKey{city: p.City, segment: p.SegmentID}
	pts := s.history[k]
	i := sort.Search(len(pts), func(i int) bool { return !pts[i].Timestamp.Before(p.Timestamp) })
	if i < len(pts) && pts[i].Timestamp.Equal(p.Timestamp) {
		pts[i] = p
		return
	}
	s.history[k] = slices.Insert(pts, i, p)
}

func (s *Store) History(_ context.Context, city, segmentID string, intervalMin, limit int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pts := s.history[historyKey{city: city, segment: segmentID}]
	var out []float64
	for i := len(pts) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if pts[i].IntervalMin == intervalMin {
			out = append(out, pts[i].Value)
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (s *Store) GetUser(_ context.Context, username string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *Store) CreateUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return fmt.Errorf("user %q: %w", u.Username, domain.ErrConflict)
	}
	s.users[u.Username] = u
	return nil
}

func (s *Store) SaveCorridor(_ context.Context, c domain.Corridor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corridors[c.RequestID] = c
	return nil
}

func (s *Store) GetCorridor(_ context.Context, requestID string) (domain.Corridor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.corridors[requestID]
	if !ok {
		return domain.Corridor{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *Store) GetRoads(_ context.Context, city string) ([]domain.Road, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roads[cityKey(city)]
	return slices.Clone(r), ok, nil
}

func (s *Store) PutRoads(_ context.Context, city string, roads []domain.Road) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roads[cityKey(city)] = slices.Clone(roads)
	return nil
}

// CheckReadiness always succeeds.
func (s *Store) CheckReadiness(context.Context) error { return nil }

// Points returns a copy of every stored point ordered by timestamp, for diagnostics.
func (s *Store) Points(city, segmentID string) []domain.TrafficPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.history[historyKey{city: city, segment: segmentID}])
}

func cityKey(city string) string { return strings.ToLower(strings.TrimSpace(city)) }
