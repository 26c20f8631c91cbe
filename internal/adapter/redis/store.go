// Package redis keeps emergency corridor state and prepared city road sets in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/margdarshak/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	corridorPrefix = "margdarshak:corridor:"
	roadsPrefix    = "margdarshak:roads:"
)

// Store implements domain.CorridorStore and domain.RoadCache.
type Store struct {
	client      *goredis.Client
	corridorTTL time.Duration
	roadsTTL    time.Duration
}

// Open parses a redis:// URL and returns a connected store.
func Open(rawURL string, corridorTTL, roadsTTL time.Duration) (*Store, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return New(goredis.NewClient(opts), corridorTTL, roadsTTL), nil
}

// New wraps an existing client.
func New(client *goredis.Client, corridorTTL, roadsTTL time.Duration) *Store {
	return &Store{client: client, corridorTTL: corridorTTL, roadsTTL: roadsTTL}
}

// Close closes the client.
func (s *Store) Close() error { return s.client.Close() }

// CheckReadiness pings Redis.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis not reachable: %w", err)
	}
	return nil
}

// SaveCorridor writes the corridor and refreshes its TTL.
func (s *Store) SaveCorridor(ctx context.Context, c domain.Corridor) error {
	buf, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal corridor: %w", err)
	}
	if err := s.client.Set(ctx, corridorPrefix+c.RequestID, buf, s.corridorTTL).Err(); err != nil {
		return fmt.Errorf("save corridor %s: %w", c.RequestID, err)
	}
	return nil
}

func (s *Store) GetCorridor(ctx context.Context, requestID string) (domain.Corridor, error) {
	buf, err := s.client.Get(ctx, corridorPrefix+requestID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.Corridor{}, domain.ErrNotFound
		}
		return domain.Corridor{}, fmt.Errorf("get corridor %s: %w", requestID, err)
	}
	var c domain.Corridor
	if err := json.Unmarshal(buf, &c); err != nil {
		return domain.Corridor{}, fmt.Errorf("decode corridor %s: %w", requestID, err)
	}
	return c, nil
}

func (s *Store) GetRoads(ctx context.Context, city string) ([]domain.Road, bool, error) {
	buf, err := s.client.Get(ctx, roadsKey(city)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get roads %s: %w", city, err)
	}
	var roads []domain.Road
	if err := json.Unmarshal(buf, &roads); err != nil {
		return nil, false, fmt.Errorf("decode roads %s: %w", city, err)
	}
	return roads, true, nil
}

func (s *Store) PutRoads(ctx context.Context, city string, roads []domain.Road) error {
	buf, err := json.Marshal(roads)
	if err != nil {
		return fmt.Errorf("marshal roads: %w", err)
	}
	if err := s.client.Set(ctx, roadsKey(city), buf, s.roadsTTL).Err(); err != nil {
		return fmt.Errorf("put roads %s: %w", city, err)
	}
	return nil
}

func roadsKey(city string) string {
	return roadsPrefix + strings.ToLower(strings.TrimSpace(city))
}
