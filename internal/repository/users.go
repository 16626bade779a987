package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/reelrate/internal/domain"
)

// UsersRepository provides helpers for accounts.
type UsersRepository struct {
	db DBTX
}

const userColumns = `id, username, email, password_hash, created_at`

// Create inserts a user. Duplicate usernames or emails return ErrConflict.
func (r *UsersRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	const query = `
        INSERT INTO users (id, username, email, password_hash)
        VALUES ($1,$2,$3,$4)
        RETURNING ` + userColumns

	created, err := scanUser(r.db.QueryRow(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash))
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return domain.User{}, ErrConflict
		}
		return domain.User{}, err
	}
	return created, nil
}

// GetByID fetches a user by id.
func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByUsername fetches a user by username.
func (r *UsersRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *UsersRepository) get(ctx context.Context, query string, arg interface{}) (domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	return u, err
}
