package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Score bounds. Scores are half-point steps within the closed range.
const (
	MinScore  = 0.0
	MaxScore  = 10.0
	ScoreStep = 0.5
)

// Rating is a single user's score for a single media item.
type Rating struct {
	ID        int64
	UserID    uuid.UUID
	Media     MediaKey
	Score     float64
	Comment   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RatingSummary is the mean and count of ratings for a media item.
type RatingSummary struct {
	Average *float64
	Count   int64
}

// ValidateScore rejects NaN, out-of-range and off-step scores.
func ValidateScore(score float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) || score < MinScore || score > MaxScore {
		return &ValidationError{Field: "score", Message: fmt.Sprintf("score must be between %.1f and %.1f", MinScore, MaxScore)}
	}
	steps := score / ScoreStep
	if math.Abs(steps-math.Round(steps)) > 1e-9 {
		return &ValidationError{Field: "score", Message: fmt.Sprintf("score must be a multiple of %.1f", ScoreStep)}
	}
	return nil
}
