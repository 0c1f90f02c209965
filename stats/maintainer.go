package stats

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ReviewAggregator computes the live rating aggregate of a tour.
type ReviewAggregator interface {
	AggregateByTour(ctx context.Context, tx bun.IDB, tourID uuid.UUID) (quantity int, average float64, err error)
}

// TourStatsWriter persists a recomputed aggregate.
type TourStatsWriter interface {
	UpdateRatingStatsTx(ctx context.Context, tx bun.IDB, tourID uuid.UUID, quantity int, average float64) error
}

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) { fmt.Printf("[ERR] STATS "+format+"\n", args...) }
func (d defLogger) Warn(format string, args ...any)  { fmt.Printf("[WRN] STATS "+format+"\n", args...) }
func (d defLogger) Info(format string, args ...any)  { fmt.Printf("[INF] STATS "+format+"\n", args...) }
func (d defLogger) Debug(format string, args ...any) { fmt.Printf("[DBG] STATS "+format+"\n", args...) }

// RatingsMaintainer keeps a tour's stored rating aggregate in line with its
// reviews. Recalculation always recomputes from the full review set, so
// applying it twice for the same write converges on the same numbers.
type RatingsMaintainer struct {
	aggregator ReviewAggregator
	writer     TourStatsWriter
	logger     Logger
}

func NewRatingsMaintainer(aggregator ReviewAggregator, writer TourStatsWriter) *RatingsMaintainer {
	return &RatingsMaintainer{
		aggregator: aggregator,
		writer:     writer,
		logger:     defLogger{},
	}
}

func (m *RatingsMaintainer) WithLogger(l Logger) *RatingsMaintainer {
	if l != nil {
		m.logger = l
	}
	return m
}

// Recalculate recomputes and stores the aggregate for one tour. With no
// remaining reviews the tour falls back to a zero count and the default
// average.
func (m *RatingsMaintainer) Recalculate(ctx context.Context, tx bun.IDB, tourID uuid.UUID) error {
	quantity, average, err := m.aggregator.AggregateByTour(ctx, tx, tourID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to aggregate tour reviews").
			WithMetadata(map[string]any{"tour_id": tourID.String()})
	}

	if quantity == 0 {
		average = DefaultRatingsAverage
	}

	if err := m.writer.UpdateRatingStatsTx(ctx, tx, tourID, quantity, average); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store tour rating stats").
			WithMetadata(map[string]any{"tour_id": tourID.String()})
	}

	m.logger.Debug("tour %s rating stats: quantity=%d average=%.2f", tourID, quantity, average)

	return nil
}
