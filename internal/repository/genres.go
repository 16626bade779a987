package repository

import (
	"context"

	"github.com/Clark-Hu/reelrate/internal/domain"
)

// GenresRepository provides helpers for the seeded genre taxonomy.
type GenresRepository struct {
	db DBTX
}

// Upsert creates a genre if it does not exist yet. Existing genres are never modified.
func (r *GenresRepository) Upsert(ctx context.Context, genre domain.Genre) error {
	const query = `INSERT INTO genres (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`
	_, err := r.db.Exec(ctx, query, genre.ID, genre.Name)
	return err
}

// List returns every genre ordered by name.
func (r *GenresRepository) List(ctx context.Context) ([]domain.Genre, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM genres ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	genres := make([]domain.Genre, 0)
	for rows.Next() {
		var g domain.Genre
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}
