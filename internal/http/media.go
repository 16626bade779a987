package httpserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/reelrate/internal/domain"
	"github.com/Clark-Hu/reelrate/internal/repository"
	"github.com/Clark-Hu/reelrate/internal/similarity"
)

const similarPoolSize = 50

type mediaResponse struct {
	Kind        domain.MediaKind    `json:"kind"`
	ID          int64               `json:"id"`
	Title       string              `json:"title"`
	ReleaseDate *string             `json:"releaseDate,omitempty"`
	Rating      *float64            `json:"rating"`
	Highlighted bool                `json:"highlighted"`
	Popularity  float64             `json:"popularity"`
	Genres      []domain.Genre      `json:"genres"`
	Options     domain.MediaOptions `json:"options"`
}

type mediaListResponse struct {
	Items  []mediaResponse `json:"items"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type ratingSummaryResponse struct {
	Average *float64 `json:"average"`
	Count   int64    `json:"count"`
}

type mediaDetailResponse struct {
	mediaResponse
	Ratings ratingSummaryResponse `json:"ratings"`
}

type similarItemResponse struct {
	mediaResponse
	Score int `json:"score"`
}

type similarListResponse struct {
	Items []similarItemResponse `json:"items"`
}

type genreListResponse struct {
	Items []domain.Genre `json:"items"`
}

func (s *Server) handleListGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := s.repo.Genres.List(r.Context())
	if err != nil {
		s.respondServiceError(w, err, "list genres")
		return
	}
	s.respondJSON(w, http.StatusOK, genreListResponse{Items: genres})
}

func (s *Server) handleListMedia(kindParam string) http.HandlerFunc {
	kind, _ := domain.ParseMediaKind(kindParam)
	return func(w http.ResponseWriter, r *http.Request) {
		filters, err := buildMediaFilters(r.URL.Query())
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}

		items, err := s.repo.Media.List(r.Context(), kind, filters)
		if err != nil {
			s.respondServiceError(w, err, "list "+kindParam)
			return
		}

		resp := mediaListResponse{
			Items:  make([]mediaResponse, 0, len(items)),
			Limit:  effectiveLimit(filters.Limit),
			Offset: filters.Offset,
		}
		for _, m := range items {
			resp.Items = append(resp.Items, toMediaResponse(m))
		}
		s.respondJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleGetMedia(kindParam string) http.HandlerFunc {
	kind, _ := domain.ParseMediaKind(kindParam)
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := mediaKeyParam(r, kind)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}

		media, err := s.repo.Media.Get(r.Context(), key)
		if err != nil {
			s.respondServiceError(w, err, "fetch "+string(kind))
			return
		}
		summary, err := s.ratings.Summary(r.Context(), key)
		if err != nil {
			s.respondServiceError(w, err, "fetch rating")
			return
		}

		s.respondJSON(w, http.StatusOK, mediaDetailResponse{
			mediaResponse: toMediaResponse(media),
			Ratings:       ratingSummaryResponse{
				Average: roundedPtr(summary.Average),
				Count:   summary.Count,
			},
		})
	}
}

func (s *Server) handleSimilarMedia(kindParam string) http.HandlerFunc {
	kind, _ := domain.ParseMediaKind(kindParam)
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := mediaKeyParam(r, kind)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		limit, err := intParam(r.URL.Query(), "limit", 10)
		if err != nil || limit < 1 || limit > similarPoolSize {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("limit must be between 1 and %d", similarPoolSize))
			return
		}

		reference, err := s.repo.Media.Get(r.Context(), key)
		if err != nil {
			s.respondServiceError(w, err, "fetch "+string(kind))
			return
		}
		candidates, err := s.repo.Media.SimilarCandidates(r.Context(), reference, nil, similarPoolSize)
		if err != nil {
			s.respondServiceError(w, err, "fetch similar "+kindParam)
			return
		}

		ranked := similarity.Rank(candidates, reference)
		if len(ranked) > limit {
			ranked = ranked[:limit]
		}
		resp := similarListResponse{Items: make([]similarItemResponse, 0, len(ranked))}
		for _, sc := range ranked {
			resp.Items = append(resp.Items, similarItemResponse{mediaResponse: toMediaResponse(sc.Media), Score: sc.Score})
		}
		s.respondJSON(w, http.StatusOK, resp)
	}
}

func buildMediaFilters(query url.Values) (repository.MediaListFilters, error) {
	var filters repository.MediaListFilters

	if q := strings.TrimSpace(query.Get("q")); q != "" {
		filters.Query = &q
	}
	if val := strings.TrimSpace(query.Get("genre")); val != "" {
		id, err := strconv.ParseInt(val, 10, 64)
		if err != nil || id <= 0 {
			return filters, fmt.Errorf("invalid genre value")
		}
		filters.GenreID = &id
	}
	if val := strings.TrimSpace(query.Get("highlighted")); val != "" {
		highlighted, err := strconv.ParseBool(val)
		if err != nil {
			return filters, fmt.Errorf("invalid highlighted value")
		}
		filters.Highlighted = &highlighted
	}
	if val := strings.TrimSpace(query.Get("sort")); val != "" {
		if !repository.ValidSort(val) {
			return filters, fmt.Errorf("invalid sort field")
		}
		filters.Sort = val
	}
	switch strings.ToLower(strings.TrimSpace(query.Get("order"))) {
	case "":
		// Popularity reads best descending; explicit sorts default to ascending.
		filters.Desc = filters.Sort == "" || filters.Sort == "popularity" || filters.Sort == "rating"
	case "asc":
		filters.Desc = false
	case "desc":
		filters.Desc = true
	default:
		return filters, fmt.Errorf("invalid order value")
	}
	limit, err := intParam(query, "limit", 0)
	if err != nil || limit < 0 {
		return filters, fmt.Errorf("invalid limit value")
	}
	filters.Limit = limit
	offset, err := intParam(query, "offset", 0)
	if err != nil || offset < 0 {
		return filters, fmt.Errorf("invalid offset value")
	}
	filters.Offset = offset
	return filters, nil
}

// effectiveLimit mirrors the repository's clamping so responses report the
// window that was actually applied.
func effectiveLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	}
	return limit
}

func intParam(query url.Values, name string, fallback int) (int, error) {
	val := strings.TrimSpace(query.Get(name))
	if val == "" {
		return fallback, nil
	}
	return strconv.Atoi(val)
}

func mediaKeyParam(r *http.Request, kind domain.MediaKind) (domain.MediaKey, error) {
	id, err := idParam(r, "id")
	if err != nil {
		return domain.MediaKey{}, err
	}
	return domain.MediaKey{Kind: kind, ID: id}, nil
}

func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return 0, fmt.Errorf("missing %s parameter", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return id, nil
}

func toMediaResponse(m domain.Media) mediaResponse {
	resp := mediaResponse{
		Kind:        m.Kind,
		ID:          m.ID,
		Title:       m.Title,
		Rating:      roundedPtr(m.Rating),
		Highlighted: m.Highlighted,
		Popularity:  m.Popularity,
		Genres:      m.Genres,
		Options:     m.Options,
	}
	if resp.Genres == nil {
		resp.Genres = []domain.Genre{}
	}
	if m.ReleaseDate != nil {
		d := m.ReleaseDate.Format("2006-01-02")
		resp.ReleaseDate = &d
	}
	return resp
}
