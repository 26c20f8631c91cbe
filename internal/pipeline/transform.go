package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/margdarshak/internal/domain"
)

// ObservationTransformer implements Transformer by parsing observation messages
// into traffic history points.
type ObservationTransformer struct {
	logger *slog.Logger
}

// NewTransformer creates an ObservationTransformer.
func NewTransformer(logger *slog.Logger) *ObservationTransformer {
	return &ObservationTransformer{logger: logger}
}

func (t *ObservationTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.TrafficPoint, error) {
	point, err := domain.ParseObservation(raw)
	if err != nil {
		return domain.TrafficPoint{}, err
	}
	t.logger.Debug("observation parsed",
		"city", point.City,
		"segment_id", point.SegmentID,
		"value", point.Value,
	)
	return point, nil
}
