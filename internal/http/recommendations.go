package httpserver

import (
	"net/http"

	"github.com/Clark-Hu/reelrate/internal/auth"
	"github.com/Clark-Hu/reelrate/internal/domain"
)

type recommendationResponse struct {
	mediaResponse
	Score    int  `json:"score"`
	Fallback bool `json:"fallback"`
}

type recommendationListResponse struct {
	Items    []recommendationResponse `json:"items"`
	Fallback bool                     `json:"fallback"`
}

// handleRecommendations serves the personal feed for authenticated callers and
// the highlighted feed for everyone else.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var history []domain.Rating
	if userID != nil {
		var err error
		history, err = s.repo.Ratings.ListByUser(r.Context(), *userID)
		if err != nil {
			s.respondServiceError(w, err, "load rating history")
			return
		}
	}

	feed, err := s.recommender.RecommendFor(r.Context(), userID, history)
	if err != nil {
		s.respondServiceError(w, err, "build recommendations")
		return
	}

	resp := recommendationListResponse{
		Items:    make([]recommendationResponse, 0, len(feed)),
		Fallback: userID == nil || len(history) == 0,
	}
	for _, rec := range feed {
		resp.Items = append(resp.Items, recommendationResponse{
			mediaResponse: toMediaResponse(rec.Media),
			Score:         rec.Score,
			Fallback:      rec.Fallback,
		})
	}
	s.respondJSON(w, http.StatusOK, resp)
}
