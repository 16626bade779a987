package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/reelrate/internal/domain"
)

// RatingsRepository provides helpers for user ratings.
type RatingsRepository struct {
	db DBTX
}

const ratingColumns = `id, user_id, movie_id, show_id, score, comment, created_at, updated_at`

// RatingUpsertParams captures the payload required to upsert a rating.
type RatingUpsertParams struct {
	UserID  uuid.UUID
	Media   domain.MediaKey
	Score   float64
	Comment *string
}

// Upsert inserts or updates a rating and indicates whether it was newly created.
func (r *RatingsRepository) Upsert(ctx context.Context, params RatingUpsertParams) (domain.Rating, bool, error) {
	_, _, fk, err := mediaTables(params.Media.Kind)
	if err != nil {
		return domain.Rating{}, false, err
	}
	query := fmt.Sprintf(`
        INSERT INTO ratings (user_id, %[1]s, score, comment)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id, %[1]s) WHERE %[1]s IS NOT NULL
        DO UPDATE SET score = EXCLUDED.score, comment = EXCLUDED.comment, updated_at = now()
        RETURNING %[2]s, (xmax = 0) AS inserted
    `, fk, ratingColumns)

	var inserted bool
	rating, err := scanRating(r.db.QueryRow(ctx, query, params.UserID, params.Media.ID, params.Score, params.Comment), &inserted)
	if err != nil {
		if err == pgx.ErrNoRows || pgCode(err) == pgForeignKeyViolation {
			return domain.Rating{}, false, ErrNotFound
		}
		return domain.Rating{}, false, err
	}
	return rating, inserted, nil
}

// Get retrieves the rating a user gave a media item.
func (r *RatingsRepository) Get(ctx context.Context, userID uuid.UUID, key domain.MediaKey) (domain.Rating, error) {
	_, _, fk, err := mediaTables(key.Kind)
	if err != nil {
		return domain.Rating{}, err
	}
	query := fmt.Sprintf(`SELECT %s FROM ratings WHERE user_id = $1 AND %s = $2`, ratingColumns, fk)
	rating, err := scanRating(r.db.QueryRow(ctx, query, userID, key.ID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Rating{}, ErrNotFound
		}
		return domain.Rating{}, err
	}
	return rating, nil
}

// GetByID retrieves a rating by its identifier.
func (r *RatingsRepository) GetByID(ctx context.Context, id int64) (domain.Rating, error) {
	query := fmt.Sprintf(`SELECT %s FROM ratings WHERE id = $1`, ratingColumns)
	rating, err := scanRating(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Rating{}, ErrNotFound
		}
		return domain.Rating{}, err
	}
	return rating, nil
}

// ListByUser returns every rating authored by a user, most recently updated first.
func (r *RatingsRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Rating, error) {
	query := fmt.Sprintf(`SELECT %s FROM ratings WHERE user_id = $1 ORDER BY updated_at DESC, id DESC`, ratingColumns)
	return r.query(ctx, query, userID)
}

// ListByMedia returns ratings for a media item, most recently updated first.
func (r *RatingsRepository) ListByMedia(ctx context.Context, key domain.MediaKey, limit, offset int) ([]domain.Rating, error) {
	_, _, fk, err := mediaTables(key.Kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	} else if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM ratings WHERE %s = $1 ORDER BY updated_at DESC, id DESC LIMIT $2 OFFSET $3`, ratingColumns, fk)
	return r.query(ctx, query, key.ID, limit, offset)
}

// Delete removes a rating owned by userID and returns what was deleted.
func (r *RatingsRepository) Delete(ctx context.Context, id int64, userID uuid.UUID) (domain.Rating, error) {
	query := fmt.Sprintf(`DELETE FROM ratings WHERE id = $1 AND user_id = $2 RETURNING %s`, ratingColumns)
	rating, err := scanRating(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Rating{}, ErrNotFound
		}
		return domain.Rating{}, err
	}
	return rating, nil
}

// Aggregate returns the rating average and count for a media item.
func (r *RatingsRepository) Aggregate(ctx context.Context, key domain.MediaKey) (domain.RatingSummary, error) {
	_, _, fk, err := mediaTables(key.Kind)
	if err != nil {
		return domain.RatingSummary{}, err
	}
	query := fmt.Sprintf(`SELECT AVG(score), COUNT(*)::int8 FROM ratings WHERE %s = $1`, fk)

	var agg domain.RatingSummary
	if err := r.db.QueryRow(ctx, query, key.ID).Scan(&agg.Average, &agg.Count); err != nil {
		return domain.RatingSummary{}, fmt.Errorf("aggregate ratings: %w", err)
	}
	return agg, nil
}

func (r *RatingsRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.Rating, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ratings := make([]domain.Rating, 0)
	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		ratings = append(ratings, rating)
	}
	return ratings, rows.Err()
}

// scanRating reads ratingColumns, optionally followed by extra trailing columns.
func scanRating(row pgx.Row, trail ...interface{}) (domain.Rating, error) {
	var (
		rating  domain.Rating
		movieID *int64
		showID  *int64
	)
	dest := []interface{}{
		&rating.ID,
		&rating.UserID,
		&movieID,
		&showID,
		&rating.Score,
		&rating.Comment,
		&rating.CreatedAt,
		&rating.UpdatedAt,
	}
	if err := row.Scan(append(dest, trail...)...); err != nil {
		return domain.Rating{}, err
	}
	rating.Media = keyFromColumns(movieID, showID)
	return rating, nil
}
