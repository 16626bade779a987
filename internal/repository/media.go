package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/reelrate/internal/domain"
)

// MediaRepository provides persistence helpers for movies and shows.
type MediaRepository struct {
	db DBTX
}

func mediaColumns(alias string) string {
	cols := []string{"id", "title", "release_date", "rating", "highlighted", "popularity", "options", "created_at", "updated_at"}
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// MediaListFilters encapsulates search, ordering and take/skip options.
type MediaListFilters struct {
	Query       *string
	GenreID     *int64
	Highlighted *bool
	Sort        string
	Desc        bool
	Limit       int
	Offset      int
}

var mediaSortColumns = map[string]string{
	"":             "popularity",
	"popularity":   "popularity",
	"rating":       "rating",
	"title":        "title",
	"release_date": "release_date",
	"releaseDate":  "release_date",
}

// ValidSort reports whether field names an orderable media column.
func ValidSort(field string) bool {
	_, ok := mediaSortColumns[field]
	return ok
}

// Get fetches a single media item with its genres.
func (r *MediaRepository) Get(ctx context.Context, key domain.MediaKey) (domain.Media, error) {
	table, _, _, err := mediaTables(key.Kind)
	if err != nil {
		return domain.Media{}, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s m WHERE m.id = $1`, mediaColumns("m"), table)
	media, err := scanMedia(r.db.QueryRow(ctx, query, key.ID), key.Kind)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Media{}, ErrNotFound
		}
		return domain.Media{}, err
	}
	items := []domain.Media{media}
	if err := r.attachGenres(ctx, items); err != nil {
		return domain.Media{}, err
	}
	return items[0], nil
}

// GetMany fetches media by id-set, preserving the order of keys. Unknown keys
// are skipped.
func (r *MediaRepository) GetMany(ctx context.Context, keys []domain.MediaKey) ([]domain.Media, error) {
	byKind := make(map[domain.MediaKind][]int64)
	for _, k := range keys {
		byKind[k.Kind] = append(byKind[k.Kind], k.ID)
	}

	found := make(map[domain.MediaKey]domain.Media, len(keys))
	for kind, ids := range byKind {
		table, _, _, err := mediaTables(kind)
		if err != nil {
			return nil, err
		}
		query := fmt.Sprintf(`SELECT %s FROM %s m WHERE m.id = ANY($1)`, mediaColumns("m"), table)
		items, err := r.queryMedia(ctx, kind, query, ids)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			found[item.Key()] = item
		}
	}

	result := make([]domain.Media, 0, len(found))
	for _, k := range keys {
		if item, ok := found[k]; ok {
			result = append(result, item)
			delete(found, k)
		}
	}
	if err := r.attachGenres(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// List returns media of one kind that match the provided filters.
func (r *MediaRepository) List(ctx context.Context, kind domain.MediaKind, filters MediaListFilters) ([]domain.Media, error) {
	table, genreTable, fk, err := mediaTables(kind)
	if err != nil {
		return nil, err
	}
	if filters.Limit <= 0 {
		filters.Limit = 20
	} else if filters.Limit > 100 {
		filters.Limit = 100
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	sortCol, ok := mediaSortColumns[filters.Sort]
	if !ok {
		return nil, fmt.Errorf("repository: unknown sort field %q", filters.Sort)
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Query != nil && strings.TrimSpace(*filters.Query) != "" {
		where = append(where, fmt.Sprintf("m.title ILIKE %s", arg("%"+strings.TrimSpace(*filters.Query)+"%")))
	}
	if filters.GenreID != nil {
		where = append(where, fmt.Sprintf("EXISTS (SELECT 1 FROM %s g WHERE g.%s = m.id AND g.genre_id = %s)", genreTable, fk, arg(*filters.GenreID)))
	}
	if filters.Highlighted != nil {
		where = append(where, fmt.Sprintf("m.highlighted = %s", arg(*filters.Highlighted)))
	}

	dir := "ASC"
	if filters.Desc {
		dir = "DESC"
	}

	var qb strings.Builder
	qb.WriteString("SELECT ")
	qb.WriteString(mediaColumns("m"))
	qb.WriteString(" FROM ")
	qb.WriteString(table)
	qb.WriteString(" m")
	if len(where) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(where, " AND "))
	}
	qb.WriteString(fmt.Sprintf(" ORDER BY m.%s %s NULLS LAST, m.id ASC", sortCol, dir))
	qb.WriteString(fmt.Sprintf(" LIMIT %s OFFSET %s", arg(filters.Limit), arg(filters.Offset)))

	items, err := r.queryMedia(ctx, kind, qb.String(), args...)
	if err != nil {
		return nil, err
	}
	if err := r.attachGenres(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Highlighted returns highlighted movies and shows ordered by mean rating,
// best first, with unrated items last.
func (r *MediaRepository) Highlighted(ctx context.Context, limit, offset int) ([]domain.Media, error) {
	query := fmt.Sprintf(`
        SELECT 'movie' AS kind, %s FROM movies m WHERE m.highlighted
        UNION ALL
        SELECT 'show' AS kind, %s FROM shows s WHERE s.highlighted
        ORDER BY rating DESC NULLS LAST, popularity DESC, kind ASC, id ASC
        LIMIT $1 OFFSET $2
    `, mediaColumns("m"), mediaColumns("s"))

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Media, 0)
	for rows.Next() {
		var kind string
		item, err := scanMedia(rows, "", &kind)
		if err != nil {
			return nil, err
		}
		item.Kind = domain.MediaKind(kind)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachGenres(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// SimilarCandidates returns items of the reference's kind that share at least
// one genre with it, excluding the reference and the given ids. Genres are
// loaded eagerly. Items are ordered by popularity, then id.
func (r *MediaRepository) SimilarCandidates(ctx context.Context, reference domain.Media, exclude []int64, limit int) ([]domain.Media, error) {
	table, genreTable, fk, err := mediaTables(reference.Kind)
	if err != nil {
		return nil, err
	}
	if len(reference.Genres) == 0 {
		return []domain.Media{}, nil
	}
	genreIDs := make([]int64, 0, len(reference.Genres))
	for _, g := range reference.Genres {
		genreIDs = append(genreIDs, g.ID)
	}
	if exclude == nil {
		exclude = []int64{}
	}

	query := fmt.Sprintf(`
        SELECT %s FROM %s m
        WHERE m.id <> $1
          AND NOT (m.id = ANY($2))
          AND EXISTS (SELECT 1 FROM %s g WHERE g.%s = m.id AND g.genre_id = ANY($3))
        ORDER BY m.popularity DESC, m.id ASC
        LIMIT $4
    `, mediaColumns("m"), table, genreTable, fk)

	items, err := r.queryMedia(ctx, reference.Kind, query, reference.ID, exclude, genreIDs, limit)
	if err != nil {
		return nil, err
	}
	if err := r.attachGenres(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Lock takes a row lock on the media item for the rest of the transaction.
// Concurrent rating writers for the same item queue behind it, so each
// recompute sees every previously committed rating.
func (r *MediaRepository) Lock(ctx context.Context, key domain.MediaKey) error {
	table, _, _, err := mediaTables(key.Kind)
	if err != nil {
		return err
	}
	var id int64
	err = r.db.QueryRow(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 FOR UPDATE`, table), key.ID).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// SetMeanRating recomputes the stored mean from the ratings table in a single
// statement and returns it. The mean is NULL when no ratings exist.
func (r *MediaRepository) SetMeanRating(ctx context.Context, key domain.MediaKey) (*float64, error) {
	table, _, fk, err := mediaTables(key.Kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
        UPDATE %s
        SET rating = (SELECT AVG(score) FROM ratings WHERE %s = $1),
            updated_at = now()
        WHERE id = $1
        RETURNING rating
    `, table, fk)

	var mean *float64
	if err := r.db.QueryRow(ctx, query, key.ID).Scan(&mean); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return mean, nil
}

// Upsert inserts or refreshes a seeded media row. The derived rating is left untouched.
func (r *MediaRepository) Upsert(ctx context.Context, media domain.Media) (domain.Media, error) {
	table, _, _, err := mediaTables(media.Kind)
	if err != nil {
		return domain.Media{}, err
	}
	options, err := json.Marshal(media.Options)
	if err != nil {
		return domain.Media{}, err
	}

	query := fmt.Sprintf(`
        INSERT INTO %s AS m (id, title, release_date, highlighted, popularity, options)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (id) DO UPDATE
        SET title = EXCLUDED.title,
            release_date = EXCLUDED.release_date,
            highlighted = EXCLUDED.highlighted,
            popularity = EXCLUDED.popularity,
            options = EXCLUDED.options,
            updated_at = now()
        RETURNING %s
    `, table, mediaColumns("m"))

	row := r.db.QueryRow(ctx, query, media.ID, media.Title, media.ReleaseDate, media.Highlighted, media.Popularity, options)
	stored, err := scanMedia(row, media.Kind)
	if err != nil {
		return domain.Media{}, err
	}
	stored.Genres = media.Genres
	return stored, nil
}

// SetGenres replaces the genre links of a media item.
func (r *MediaRepository) SetGenres(ctx context.Context, key domain.MediaKey, genreIDs []int64) error {
	_, genreTable, fk, err := mediaTables(key.Kind)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, genreTable, fk), key.ID); err != nil {
		return fmt.Errorf("clear genres: %w", err)
	}
	if len(genreIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
        INSERT INTO %s (%s, genre_id)
        SELECT $1, unnest($2::bigint[])
        ON CONFLICT DO NOTHING
    `, genreTable, fk)
	if _, err := r.db.Exec(ctx, query, key.ID, genreIDs); err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return ErrNotFound
		}
		return fmt.Errorf("link genres: %w", err)
	}
	return nil
}

func (r *MediaRepository) queryMedia(ctx context.Context, kind domain.MediaKind, query string, args ...interface{}) ([]domain.Media, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Media, 0)
	for rows.Next() {
		item, err := scanMedia(rows, kind)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// attachGenres fills Genres on every item with one query per kind.
func (r *MediaRepository) attachGenres(ctx context.Context, items []domain.Media) error {
	if len(items) == 0 {
		return nil
	}
	byKind := make(map[domain.MediaKind][]int64)
	for _, item := range items {
		byKind[item.Kind] = append(byKind[item.Kind], item.ID)
	}

	genres := make(map[domain.MediaKey][]domain.Genre)
	for kind, ids := range byKind {
		_, genreTable, fk, err := mediaTables(kind)
		if err != nil {
			return err
		}
		query := fmt.Sprintf(`
            SELECT x.%s, g.id, g.name
            FROM %s x
            JOIN genres g ON g.id = x.genre_id
            WHERE x.%s = ANY($1)
            ORDER BY g.id
        `, fk, genreTable, fk)
		rows, err := r.db.Query(ctx, query, ids)
		if err != nil {
			return fmt.Errorf("load genres: %w", err)
		}
		for rows.Next() {
			var mediaID int64
			var g domain.Genre
			if err := rows.Scan(&mediaID, &g.ID, &g.Name); err != nil {
				rows.Close()
				return err
			}
			key := domain.MediaKey{Kind: kind, ID: mediaID}
			genres[key] = append(genres[key], g)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
	}

	for i := range items {
		if gs, ok := genres[items[i].Key()]; ok {
			items[i].Genres = gs
		} else {
			items[i].Genres = []domain.Genre{}
		}
	}
	return nil
}

// scanMedia reads mediaColumns, optionally preceded by extra leading columns.
func scanMedia(row pgx.Row, kind domain.MediaKind, lead ...interface{}) (domain.Media, error) {
	var (
		media       domain.Media
		releaseDate *time.Time
		optionsJSON []byte
	)

	dest := append(lead,
		&media.ID,
		&media.Title,
		&releaseDate,
		&media.Rating,
		&media.Highlighted,
		&media.Popularity,
		&optionsJSON,
		&media.CreatedAt,
		&media.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return domain.Media{}, err
	}

	media.Kind = kind
	media.ReleaseDate = releaseDate
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &media.Options); err != nil {
			return domain.Media{}, err
		}
	}
	return media, nil
}
