package stats

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var AggregateTourRatingsSQL = `SELECT
	COUNT(*) AS ratings_quantity,
	COALESCE(AVG("rev"."rating"), 0) AS ratings_average
FROM "reviews" AS "rev"
WHERE
	"rev"."deleted_at" IS NULL
AND (
	"rev"."tour_id" = ?
);`

var UpdateTourRatingStatsSQL = `UPDATE "tours" AS "tour"
SET
	"ratings_quantity" = ?,
	"ratings_average" = ?
WHERE
	"tour"."deleted_at" IS NULL
AND (
	"tour"."id" = ?
) RETURNING *;`

type Tours interface {
	repository.Repository[*Tour]
	UpdateRatingStatsTx(ctx context.Context, tx bun.IDB, tourID uuid.UUID, quantity int, average float64) error
}

type tours struct {
	repository.Repository[*Tour]
	db *bun.DB
}

var _ Tours = (*tours)(nil)

func NewToursRepository(db *bun.DB) Tours {
	repo := repository.NewRepository[*Tour](db, repository.ModelHandlers[*Tour]{
		NewRecord: func() *Tour { return &Tour{} },
		GetID: func(t *Tour) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *Tour, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &tours{
		Repository: repo,
		db:         db,
	}
}

func (t *tours) UpdateRatingStatsTx(ctx context.Context, tx bun.IDB, tourID uuid.UUID, quantity int, average float64) error {
	res, err := t.Repository.RawTx(ctx, tx, UpdateTourRatingStatsSQL, quantity, average, tourID.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"tour_id": tourID.String(),
			})
	}

	return nil
}

// Reviews is the review store. Every write recomputes the owning tour's
// rating aggregate inside the same transaction.
type Reviews interface {
	repository.Repository[*Review]

	CreateReview(ctx context.Context, review *Review) (*Review, error)
	UpdateReview(ctx context.Context, review *Review) (*Review, error)
	DeleteReview(ctx context.Context, review *Review) error
	AggregateByTour(ctx context.Context, tx bun.IDB, tourID uuid.UUID) (int, float64, error)
}

type reviews struct {
	repository.Repository[*Review]
	db         *bun.DB
	maintainer *RatingsMaintainer
}

var (
	_ Reviews          = (*reviews)(nil)
	_ ReviewAggregator = (*reviews)(nil)
)

// NewReviewsRepository builds the review store and its maintainer: the
// repository doubles as the maintainer's aggregator.
func NewReviewsRepository(db *bun.DB, tourStore Tours) Reviews {
	repo := repository.NewRepository[*Review](db, repository.ModelHandlers[*Review]{
		NewRecord: func() *Review { return &Review{} },
		GetID: func(r *Review) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Review, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
	})

	rev := &reviews{
		Repository: repo,
		db:         db,
	}
	rev.maintainer = NewRatingsMaintainer(rev, tourStore)

	return rev
}

// Maintainer exposes the attached ratings maintainer.
func (r *reviews) Maintainer() *RatingsMaintainer {
	return r.maintainer
}

func (r *reviews) CreateReview(ctx context.Context, review *Review) (*Review, error) {
	if err := review.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid review")
	}

	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}

	var created *Review

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if created, err = r.Repository.CreateTx(ctx, tx, review); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create review")
		}

		return r.maintainer.Recalculate(ctx, tx, created.TourID)
	})

	if err != nil {
		return nil, err
	}

	return created, nil
}

func (r *reviews) UpdateReview(ctx context.Context, review *Review) (*Review, error) {
	if err := review.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid review")
	}

	var updated *Review

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if updated, err = r.Repository.UpdateTx(ctx, tx, review); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not update review")
		}

		return r.maintainer.Recalculate(ctx, tx, updated.TourID)
	})

	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *reviews) DeleteReview(ctx context.Context, review *Review) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := r.Repository.DeleteTx(ctx, tx, review); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not delete review")
		}

		return r.maintainer.Recalculate(ctx, tx, review.TourID)
	})
}

func (r *reviews) AggregateByTour(ctx context.Context, tx bun.IDB, tourID uuid.UUID) (int, float64, error) {
	var quantity int
	var average float64

	if err := tx.NewRaw(AggregateTourRatingsSQL, tourID.String()).Scan(ctx, &quantity, &average); err != nil {
		return 0, 0, err
	}

	return quantity, average, nil
}
