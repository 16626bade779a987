package httpserver

import (
	"net/http"
	"time"

	"github.com/Clark-Hu/reelrate/internal/auth"
	"github.com/Clark-Hu/reelrate/internal/domain"
)

type ratingRequest struct {
	MovieID *int64   `json:"movieId"`
	ShowID  *int64   `json:"showId"`
	Score   *float64 `json:"score" validate:"required"`
	Comment *string  `json:"comment" validate:"omitnil,max=2000"`
}

type ratingResponse struct {
	ID        int64           `json:"id"`
	Media     domain.MediaKey `json:"media"`
	Score     float64         `json:"score"`
	Comment   *string         `json:"comment,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type ratingListResponse struct {
	Items []ratingResponse `json:"items"`
}

// handleUpsertRating answers 201 when the caller rates an item for the first
// time and 200 when an existing rating is overwritten.
func (s *Server) handleUpsertRating(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	var req ratingRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ref := domain.MediaRef{MovieID: req.MovieID, ShowID: req.ShowID}
	rating, created, err := s.ratings.UpsertRating(r.Context(), principal.UserID, ref, *req.Score, req.Comment)
	if err != nil {
		s.respondServiceError(w, err, "save rating")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, toRatingResponse(rating))
}

func (s *Server) handleDeleteRating(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	id, err := idParam(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err := s.ratings.DeleteRating(r.Context(), principal.UserID, id); err != nil {
		s.respondServiceError(w, err, "delete rating")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMyRatings(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	ratings, err := s.repo.Ratings.ListByUser(r.Context(), principal.UserID)
	if err != nil {
		s.respondServiceError(w, err, "list ratings")
		return
	}
	resp := ratingListResponse{Items: make([]ratingResponse, 0, len(ratings))}
	for _, rt := range ratings {
		resp.Items = append(resp.Items, toRatingResponse(rt))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func toRatingResponse(r domain.Rating) ratingResponse {
	return ratingResponse{
		ID:        r.ID,
		Media:     r.Media,
		Score:     r.Score,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
