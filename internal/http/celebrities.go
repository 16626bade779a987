package httpserver

import (
	"net/http"

	"github.com/Clark-Hu/reelrate/internal/domain"
	"github.com/Clark-Hu/reelrate/internal/paginate"
)

const (
	defaultCreditsPerPage = 10
	maxCreditsPerPage     = 50
)

type celebrityResponse struct {
	ID         int64                   `json:"id"`
	Name       string                  `json:"name"`
	BirthDate  *string                 `json:"birthDate,omitempty"`
	Popularity float64                 `json:"popularity"`
	Options    domain.CelebrityOptions `json:"options"`
}

type celebrityListResponse struct {
	Items  []celebrityResponse `json:"items"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

type creditResponse struct {
	Kind  string        `json:"kind"`
	Label string        `json:"label"`
	Media mediaResponse `json:"media"`
}

type filmographyResponse struct {
	Items      []creditResponse `json:"items"`
	Page       int              `json:"page"`
	PerPage    int              `json:"perPage"`
	TotalPages int              `json:"totalPages"`
	Total      int              `json:"total"`
}

type celebrityDetailResponse struct {
	celebrityResponse
	Filmography filmographyResponse `json:"filmography"`
}

func (s *Server) handleListCelebrities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := intParam(query, "limit", 0)
	if err != nil || limit < 0 {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid limit value")
		return
	}
	offset, err := intParam(query, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid offset value")
		return
	}

	items, err := s.repo.Celebrities.List(r.Context(), limit, offset)
	if err != nil {
		s.respondServiceError(w, err, "list celebrities")
		return
	}
	resp := celebrityListResponse{
		Items:  make([]celebrityResponse, 0, len(items)),
		Limit:  effectiveLimit(limit),
		Offset: offset,
	}
	for _, c := range items {
		resp.Items = append(resp.Items, toCelebrityResponse(c))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleGetCelebrity returns a profile with one page of its filmography.
func (s *Server) handleGetCelebrity(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	query := r.URL.Query()
	page, err := intParam(query, "page", 1)
	if err != nil || page < 1 {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid page value")
		return
	}
	perPage, err := intParam(query, "perPage", defaultCreditsPerPage)
	if err != nil || perPage < 1 || perPage > maxCreditsPerPage {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "perPage must be between 1 and 50")
		return
	}

	celebrity, err := s.repo.Celebrities.Get(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err, "fetch celebrity")
		return
	}
	credits, err := s.repo.Celebrities.Filmography(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err, "fetch filmography")
		return
	}

	pager := paginate.New(credits, perPage)
	// Page 1 of an empty filmography is an empty page, not an error.
	if page != 1 || pager.Len() > 0 {
		if !pager.GoToPage(page) {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "page out of range")
			return
		}
	}

	window := pager.Items()
	film := filmographyResponse{
		Items:      make([]creditResponse, 0, len(window)),
		Page:       pager.CurrentPage(),
		PerPage:    pager.PerPage(),
		TotalPages: pager.TotalPages(),
		Total:      pager.Len(),
	}
	for _, c := range window {
		film.Items = append(film.Items, creditResponse{Kind: c.Kind, Label: c.Label, Media: toMediaResponse(c.Media)})
	}
	s.respondJSON(w, http.StatusOK, celebrityDetailResponse{
		celebrityResponse: toCelebrityResponse(celebrity),
		Filmography:       film,
	})
}

func toCelebrityResponse(c domain.Celebrity) celebrityResponse {
	resp := celebrityResponse{
		ID:         c.ID,
		Name:       c.Name,
		Popularity: c.Popularity,
		Options:    c.Options,
	}
	if c.BirthDate != nil {
		d := c.BirthDate.Format("2006-01-02")
		resp.BirthDate = &d
	}
	return resp
}
