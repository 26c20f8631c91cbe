package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/margdarshak/internal/adapter/memory"
	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/couchcryptid/margdarshak/internal/observability"
	"github.com/couchcryptid/margdarshak/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawEvent
	err     error
	calls   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	i := int(m.calls.Add(1) - 1)
	if m.err != nil && i == 0 {
		return nil, m.err
	}
	if m.err != nil {
		i--
	}
	if i >= 0 && i < len(m.batches) {
		return m.batches[i], nil
	}
	// block until context cancelled to simulate an idle topic
	<-ctx.Done()
	return nil, ctx.Err()
}

type mockTransformer struct {
	err error
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.TrafficPoint, error) {
	if m.err != nil {
		return domain.TrafficPoint{}, m.err
	}
	return domain.TrafficPoint{City: "pune", SegmentID: "pune::" + string(raw.Key), Value: 40}, nil
}

type mockLoader struct {
	mu     sync.Mutex
	err    error
	loaded []domain.TrafficPoint
}

func (m *mockLoader) StoreBatch(_ context.Context, points []domain.TrafficPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, points...)
	return nil
}

func (m *mockLoader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loaded)
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func runFor(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	ext := &mockExtractor{batches: [][]domain.RawEvent{{rawObservation(t, "seg-1", 20), rawObservation(t, "seg-2", 55)}}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), metrics, 10)
	runFor(t, p, 300*time.Millisecond)

	assert.Equal(t, 2, ldr.count())
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.MessagesConsumed), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.PointsStored), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{}, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Zero(t, ldr.count())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ParseErrorCommitsAndSkips(t *testing.T) {
	var commits atomic.Int64
	raw := rawObservation(t, "seg-1", 20)
	raw.Commit = func(context.Context) error {
		commits.Add(1)
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, &mockTransformer{err: errors.New("bad data")}, ldr, slog.Default(), metrics, 10)
	runFor(t, p, 300*time.Millisecond)

	assert.Zero(t, ldr.count())
	assert.Equal(t, int64(1), commits.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ParseErrors), 0)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_CommitsAfterStore(t *testing.T) {
	var committed atomic.Bool
	raw := rawObservation(t, "seg-5", 70)
	raw.Topic = "traffic-observations"
	raw.Commit = func(context.Context) error {
		committed.Store(true)
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	p := pipeline.New(ext, &mockTransformer{}, &mockLoader{}, slog.Default(), newTestMetrics(), 10)
	runFor(t, p, 300*time.Millisecond)

	assert.True(t, committed.Load())
}

func TestPipeline_Run_StoreErrorDoesNotCommit(t *testing.T) {
	var committed atomic.Bool
	raw := rawObservation(t, "seg-6", 70)
	raw.Commit = func(context.Context) error {
		committed.Store(true)
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ldr := &mockLoader{err: errors.New("db down")}
	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)
	runFor(t, p, 300*time.Millisecond)

	assert.False(t, committed.Load())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_RecoversAfterExtractError(t *testing.T) {
	ext := &mockExtractor{
		err:     errors.New("broker unavailable"),
		batches: [][]domain.RawEvent{{rawObservation(t, "seg-1", 20)}},
	}
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)

	// first backoff is 200ms
	runFor(t, p, time.Second)

	assert.Equal(t, 1, ldr.count())
	assert.GreaterOrEqual(t, ext.calls.Load(), int64(2))
}

func TestPipeline_WithClock_BackoffWaitsForClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ext := &mockExtractor{
		err:     errors.New("broker unavailable"),
		batches: [][]domain.RawEvent{{rawObservation(t, "seg-1", 20)}},
	}
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10, pipeline.WithClock(clock))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, int64(1), ext.calls.Load())
	assert.Zero(t, ldr.count())

	clock.Advance(199 * time.Millisecond)
	assert.Equal(t, int64(1), ext.calls.Load())

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return ldr.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestPipeline_Run_CancelDuringBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ext := &mockExtractor{err: errors.New("broker unavailable")}
	p := pipeline.New(ext, &mockTransformer{}, &mockLoader{}, slog.Default(), newTestMetrics(), 10, pipeline.WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	wait, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	require.NoError(t, clock.BlockUntilContext(wait, 1))
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop while backing off")
	}
	assert.Equal(t, int64(1), ext.calls.Load())
}

func TestPipeline_WithClock_RecordsBatchDuration(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ext := &mockExtractor{batches: [][]domain.RawEvent{{rawObservation(t, "seg-1", 20)}}}
	metrics := newTestMetrics()

	p := pipeline.New(ext, &mockTransformer{}, &mockLoader{}, slog.Default(), metrics, 10, pipeline.WithClock(clock))
	runFor(t, p, 300*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(metrics.BatchProcessingDuration))
}

func TestObservationTransformer_IntoMemoryStore(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC))
	domain.SetClock(clock)
	t.Cleanup(func() { domain.SetClock(nil) })

	store := memory.New()
	ext := &mockExtractor{batches: [][]domain.RawEvent{{
		rawObservation(t, "seg-1", 20),
		{Key: []byte("bad"), Value: []byte("not json")},
	}}}

	p := pipeline.New(ext, pipeline.NewTransformer(slog.Default()), store, slog.Default(), newTestMetrics(), 10)
	runFor(t, p, 300*time.Millisecond)

	stored := store.Points("pune", "pune::seg-1")
	require.Len(t, stored, 1)

	want := domain.NewTrafficPoint("Pune", "seg-1", float64(domain.SeverityFromSpeed(20)), domain.DefaultIntervalMin, clock.Now())
	if diff := cmp.Diff(want, stored[0]); diff != "" {
		t.Fatalf("stored point mismatch (-want +got):\n%s", diff)
	}
}

func TestObservationTransformer_Transform(t *testing.T) {
	tfm := pipeline.NewTransformer(slog.Default())
	ts := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)

	value, err := json.Marshal(map[string]any{
		"segment_id": "seg-9",
		"city":       "Mumbai",
		"jamFactor":  5.0,
		"timestamp":  ts.Format(time.RFC3339),
	})
	require.NoError(t, err)

	point, err := tfm.Transform(context.Background(), domain.RawEvent{Value: value})
	require.NoError(t, err)
	assert.Equal(t, "mumbai", point.City)
	assert.Equal(t, "mumbai::seg-9", point.SegmentID)
	assert.InDelta(t, float64(domain.SeverityFromJamFactor(5)), point.Value, 0)
	assert.Equal(t, domain.RoundTime(ts, domain.DefaultIntervalMin), point.Timestamp)

	_, err = tfm.Transform(context.Background(), domain.RawEvent{Value: []byte(`{"city":"Pune"}`)})
	assert.Error(t, err)
}

// --- helpers ---

func rawObservation(t *testing.T, segment string, speed float64) domain.RawEvent {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"segment_id": segment,
		"city":       "Pune",
		"speed":      speed,
	})
	require.NoError(t, err)
	return domain.RawEvent{Key: []byte(segment), Value: data}
}
