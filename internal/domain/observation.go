package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultIntervalMin is the history bucket width in minutes.
const DefaultIntervalMin = 30

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// TrafficPoint is one bucketed congestion sample for a city segment.
type TrafficPoint struct {
	City        string    `json:"city"`
	SegmentID   string    `json:"segment_id"`
	Timestamp   time.Time `json:"timestamp"`
	IntervalMin int       `json:"interval_min"`
	Value       float64   `json:"vehicle_count"`
}

// NewTrafficPoint namespaces the segment, lower-cases the city, and buckets ts.
func NewTrafficPoint(city, segmentID string, value float64, intervalMin int, ts time.Time) TrafficPoint {
	if intervalMin <= 0 {
		intervalMin = DefaultIntervalMin
	}
	return TrafficPoint{
		City:        strings.ToLower(strings.TrimSpace(city)),
		SegmentID:   NormalizeSegmentID(city, segmentID),
		Timestamp:   RoundTime(ts, intervalMin),
		IntervalMin: intervalMin,
		Value:       value,
	}
}

var (
	obsSegmentKeys = []string{"segment_id", "road_id", "segment", "id"}
	obsTimeKeys    = []string{"ts", "timestamp", "time"}
	obsSpeedKeys   = []string{"speed", "currentSpeed", "speed_kmh"}
	obsCityKeys    = []string{"city", "location"}
)

// ParseObservation turns a loosely shaped observation message into a TrafficPoint.
// Severity is read directly when present, otherwise derived from a jam factor
// or, failing that, from speed. The timestamp falls back to the message time
// and then the clock.
func ParseObservation(raw RawEvent) (TrafficPoint, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw.Value, &obj); err != nil {
		return TrafficPoint{}, fmt.Errorf("parse observation: %w", err)
	}

	segment := firstString(obj, obsSegmentKeys)
	if segment == "" {
		segment = string(raw.Key)
	}
	city := firstString(obj, obsCityKeys)
	if segment == "" || city == "" {
		return TrafficPoint{}, errors.New("parse observation: segment and city are required")
	}

	var value float64
	if sev, ok := firstFloat(obj, severityKeys); ok {
		value = clamp(sev, 0, 100)
	} else if jf, ok := firstFloat(obj, jamKeys); ok {
		value = float64(SeverityFromJamFactor(jf))
	} else if speed, ok := firstFloat(obj, obsSpeedKeys); ok {
		value = float64(SeverityFromSpeed(speed))
	} else {
		return TrafficPoint{}, errors.New("parse observation: no severity, jam factor, or speed")
	}

	interval := DefaultIntervalMin
	if iv, ok := firstFloat(obj, []string{"interval_min"}); ok && iv > 0 {
		interval = int(iv)
	}

	return NewTrafficPoint(city, segment, value, interval, observationTime(obj, raw.Timestamp)), nil
}

func observationTime(obj map[string]any, fallback time.Time) time.Time {
	for _, k := range obsTimeKeys {
		switch v := obj[k].(type) {
		case float64:
			sec := int64(v)
			return time.Unix(sec, int64((v-float64(sec))*1e9)).UTC()
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t.UTC()
			}
		}
	}
	if !fallback.IsZero() {
		return fallback
	}
	return Now()
}

func firstString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
