package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/reelrate/internal/domain"
	"github.com/Clark-Hu/reelrate/internal/store"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("repository: not found")

// ErrConflict indicates a uniqueness constraint rejected the write.
var ErrConflict = errors.New("repository: conflict")

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Media       *MediaRepository
	Genres      *GenresRepository
	Celebrities *CelebritiesRepository
	Ratings     *RatingsRepository
	Users       *UsersRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithDB(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return NewWithDB(pool)
}

// NewWithDB builds repositories over any DBTX, typically a pgx.Tx.
func NewWithDB(db DBTX) *Repository {
	return &Repository{
		Media:       &MediaRepository{db: db},
		Genres:      &GenresRepository{db: db},
		Celebrities: &CelebritiesRepository{db: db},
		Ratings:     &RatingsRepository{db: db},
		Users:       &UsersRepository{db: db},
	}
}

// Postgres error codes the repositories translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// mediaTables returns the entity table, the genre join table and the foreign
// key column used by ratings/roles for kind.
func mediaTables(kind domain.MediaKind) (table, genreTable, fkColumn string, err error) {
	switch kind {
	case domain.KindMovie:
		return "movies", "movie_genres", "movie_id", nil
	case domain.KindShow:
		return "shows", "show_genres", "show_id", nil
	}
	return "", "", "", fmt.Errorf("repository: unknown media kind %q", kind)
}

func keyFromColumns(movieID, showID *int64) domain.MediaKey {
	if movieID != nil {
		return domain.MediaKey{Kind: domain.KindMovie, ID: *movieID}
	}
	if showID != nil {
		return domain.MediaKey{Kind: domain.KindShow, ID: *showID}
	}
	return domain.MediaKey{}
}
