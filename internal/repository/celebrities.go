package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/reelrate/internal/domain"
)

// CelebritiesRepository provides helpers for celebrities and their credits.
type CelebritiesRepository struct {
	db DBTX
}

const celebrityColumns = `id, name, birth_date, popularity, options`

// Upsert inserts or refreshes a celebrity row.
func (r *CelebritiesRepository) Upsert(ctx context.Context, c domain.Celebrity) error {
	options, err := json.Marshal(c.Options)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO celebrities (id, name, birth_date, popularity, options)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE
        SET name = EXCLUDED.name,
            birth_date = EXCLUDED.birth_date,
            popularity = EXCLUDED.popularity,
            options = EXCLUDED.options
    `
	_, err = r.db.Exec(ctx, query, c.ID, c.Name, c.BirthDate, c.Popularity, options)
	return err
}

// Get fetches a celebrity by id.
func (r *CelebritiesRepository) Get(ctx context.Context, id int64) (domain.Celebrity, error) {
	query := fmt.Sprintf(`SELECT %s FROM celebrities WHERE id = $1`, celebrityColumns)
	c, err := scanCelebrity(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Celebrity{}, ErrNotFound
		}
		return domain.Celebrity{}, err
	}
	return c, nil
}

// List returns celebrities by popularity, most popular first.
func (r *CelebritiesRepository) List(ctx context.Context, limit, offset int) ([]domain.Celebrity, error) {
	if limit <= 0 {
		limit = 20
	} else if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM celebrities ORDER BY popularity DESC, id ASC LIMIT $1 OFFSET $2`, celebrityColumns)
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Celebrity, 0)
	for rows.Next() {
		c, err := scanCelebrity(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// AddCast links a celebrity to a media item as an actor. Duplicate links are ignored.
func (r *CelebritiesRepository) AddCast(ctx context.Context, role domain.CastedRole) error {
	_, _, fk, err := mediaTables(role.Media.Kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO casted_roles (celebrity_id, %s, role) VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`, fk)
	if _, err := r.db.Exec(ctx, query, role.CelebrityID, role.Media.ID, role.Role); err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// AddCrew links a celebrity to a media item as crew. Duplicate links are ignored.
func (r *CelebritiesRepository) AddCrew(ctx context.Context, crew domain.CrewMember) error {
	_, _, fk, err := mediaTables(crew.Media.Kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO crews (celebrity_id, %s, job) VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`, fk)
	if _, err := r.db.Exec(ctx, query, crew.CelebrityID, crew.Media.ID, crew.Job); err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Filmography lists every cast and crew credit of a celebrity, newest release first.
func (r *CelebritiesRepository) Filmography(ctx context.Context, celebrityID int64) ([]domain.Credit, error) {
	query := fmt.Sprintf(`
        SELECT 'cast' AS credit, c.role AS label, 'movie' AS kind, %[1]s
        FROM casted_roles c JOIN movies m ON m.id = c.movie_id WHERE c.celebrity_id = $1
        UNION ALL
        SELECT 'cast', c.role, 'show', %[2]s
        FROM casted_roles c JOIN shows s ON s.id = c.show_id WHERE c.celebrity_id = $1
        UNION ALL
        SELECT 'crew', w.job, 'movie', %[1]s
        FROM crews w JOIN movies m ON m.id = w.movie_id WHERE w.celebrity_id = $1
        UNION ALL
        SELECT 'crew', w.job, 'show', %[2]s
        FROM crews w JOIN shows s ON s.id = w.show_id WHERE w.celebrity_id = $1
        ORDER BY release_date DESC NULLS LAST, kind ASC, id ASC, credit ASC, label ASC
    `, mediaColumns("m"), mediaColumns("s"))

	rows, err := r.db.Query(ctx, query, celebrityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	credits := make([]domain.Credit, 0)
	for rows.Next() {
		var credit domain.Credit
		var kind string
		media, err := scanMedia(rows, "", &credit.Kind, &credit.Label, &kind)
		if err != nil {
			return nil, err
		}
		media.Kind = domain.MediaKind(kind)
		credit.Media = media
		credits = append(credits, credit)
	}
	return credits, rows.Err()
}

func scanCelebrity(row pgx.Row) (domain.Celebrity, error) {
	var (
		c           domain.Celebrity
		birthDate   *time.Time
		optionsJSON []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &birthDate, &c.Popularity, &optionsJSON); err != nil {
		return domain.Celebrity{}, err
	}
	c.BirthDate = birthDate
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &c.Options); err != nil {
			return domain.Celebrity{}, err
		}
	}
	return c, nil
}
