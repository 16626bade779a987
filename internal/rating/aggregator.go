// Package rating owns rating writes and keeps each media item's mean rating in
// step with its ratings.
package rating

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/reelrate/internal/domain"
	"github.com/Clark-Hu/reelrate/internal/metrics"
	"github.com/Clark-Hu/reelrate/internal/repository"
	"github.com/Clark-Hu/reelrate/internal/store"
)

// MaxCommentLength bounds free-text comments.
const MaxCommentLength = 2000

// Aggregator upserts ratings and recomputes the parent media's mean rating in
// the same transaction.
type Aggregator struct {
	store  *store.Store
	repo   *repository.Repository
	logger zerolog.Logger
}

// NewAggregator wires an Aggregator to a store.
func NewAggregator(st *store.Store, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		store:  st,
		repo:   repository.New(st),
		logger: logger,
	}
}

// UpsertRating creates or overwrites the caller's rating for the referenced
// item and refreshes the item's mean. The bool reports whether a new rating
// row was created.
func (a *Aggregator) UpsertRating(ctx context.Context, userID uuid.UUID, ref domain.MediaRef, score float64, comment *string) (domain.Rating, bool, error) {
	key, err := ref.Key()
	if err != nil {
		metrics.RatingUpserts.WithLabelValues("unknown", "rejected").Inc()
		return domain.Rating{}, false, err
	}
	if err := domain.ValidateScore(score); err != nil {
		metrics.RatingUpserts.WithLabelValues(string(key.Kind), "rejected").Inc()
		return domain.Rating{}, false, err
	}
	comment = normalizeComment(comment)
	if comment != nil && len(*comment) > MaxCommentLength {
		metrics.RatingUpserts.WithLabelValues(string(key.Kind), "rejected").Inc()
		return domain.Rating{}, false, &domain.ValidationError{Field: "comment", Message: "comment must be at most " + strconv.Itoa(MaxCommentLength) + " characters"}
	}

	var (
		rating   domain.Rating
		inserted bool
	)
	err = a.store.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewWithDB(tx)
		if err := repo.Media.Lock(ctx, key); err != nil {
			return mediaErr(err, key, "lock media")
		}
		var err error
		rating, inserted, err = repo.Ratings.Upsert(ctx, repository.RatingUpsertParams{
			UserID:  userID,
			Media:   key,
			Score:   score,
			Comment: comment,
		})
		if err != nil {
			return mediaErr(err, key, "upsert rating")
		}
		if _, err := repo.Media.SetMeanRating(ctx, key); err != nil {
			return mediaErr(err, key, "recompute mean rating")
		}
		return nil
	})
	if err != nil {
		metrics.RatingUpserts.WithLabelValues(string(key.Kind), "failed").Inc()
		return domain.Rating{}, false, asStorageErr(err, "upsert rating")
	}

	outcome := "updated"
	if inserted {
		outcome = "created"
	}
	metrics.RatingUpserts.WithLabelValues(string(key.Kind), outcome).Inc()
	a.logger.Debug().
		Str("media", key.String()).
		Str("user", userID.String()).
		Float64("score", score).
		Bool("created", inserted).
		Msg("rating upserted")
	return rating, inserted, nil
}

// RecomputeMeanRating rewrites the stored mean from the current ratings. The
// result is nil when the item has no ratings. Calling it repeatedly without new
// ratings has no further effect.
func (a *Aggregator) RecomputeMeanRating(ctx context.Context, key domain.MediaKey) (*float64, error) {
	if !key.Kind.Valid() {
		return nil, &domain.ValidationError{Field: "kind", Message: "unknown media kind"}
	}
	var mean *float64
	err := a.store.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewWithDB(tx)
		if err := repo.Media.Lock(ctx, key); err != nil {
			return mediaErr(err, key, "lock media")
		}
		var err error
		mean, err = repo.Media.SetMeanRating(ctx, key)
		if err != nil {
			return mediaErr(err, key, "recompute mean rating")
		}
		return nil
	})
	if err != nil {
		return nil, asStorageErr(err, "recompute mean rating")
	}
	return mean, nil
}

// DeleteRating removes one of the caller's ratings and refreshes the mean of
// the item it belonged to.
func (a *Aggregator) DeleteRating(ctx context.Context, userID uuid.UUID, ratingID int64) error {
	existing, err := a.repo.Ratings.GetByID(ctx, ratingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &domain.NotFoundError{Resource: "rating", ID: strconv.FormatInt(ratingID, 10)}
		}
		return &domain.StorageError{Op: "get rating", Err: err}
	}
	if existing.UserID != userID {
		return &domain.NotFoundError{Resource: "rating", ID: strconv.FormatInt(ratingID, 10)}
	}

	err = a.store.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewWithDB(tx)
		if err := repo.Media.Lock(ctx, existing.Media); err != nil {
			return mediaErr(err, existing.Media, "lock media")
		}
		if _, err := repo.Ratings.Delete(ctx, ratingID, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &domain.NotFoundError{Resource: "rating", ID: strconv.FormatInt(ratingID, 10)}
			}
			return &domain.StorageError{Op: "delete rating", Err: err}
		}
		if _, err := repo.Media.SetMeanRating(ctx, existing.Media); err != nil {
			return mediaErr(err, existing.Media, "recompute mean rating")
		}
		return nil
	})
	if err != nil {
		return asStorageErr(err, "delete rating")
	}
	a.logger.Debug().Int64("rating", ratingID).Str("media", existing.Media.String()).Msg("rating deleted")
	return nil
}

// Summary returns the current mean and count for an item.
func (a *Aggregator) Summary(ctx context.Context, key domain.MediaKey) (domain.RatingSummary, error) {
	summary, err := a.repo.Ratings.Aggregate(ctx, key)
	if err != nil {
		return domain.RatingSummary{}, &domain.StorageError{Op: "aggregate ratings", Err: err}
	}
	return summary, nil
}

func normalizeComment(comment *string) *string {
	if comment == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*comment)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func mediaErr(err error, key domain.MediaKey, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &domain.NotFoundError{Resource: string(key.Kind), ID: strconv.FormatInt(key.ID, 10)}
	}
	return &domain.StorageError{Op: op, Err: err}
}

// asStorageErr passes domain errors through and wraps anything else, such as a
// failed commit.
func asStorageErr(err error, op string) error {
	var (
		notFound   *domain.NotFoundError
		validation *domain.ValidationError
		storage    *domain.StorageError
	)
	if errors.As(err, &notFound) || errors.As(err, &validation) || errors.As(err, &storage) {
		return err
	}
	return &domain.StorageError{Op: op, Err: err}
}
