package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is an account able to author ratings.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
