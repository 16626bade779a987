package tmdb

import (
	"strings"
	"time"
)

// Genre is an entry of the movie or TV genre taxonomy.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type genreList struct {
	Genres []Genre `json:"genres"`
}

// Result is one row of a popular listing. Movies carry Title, shows carry Name.
type Result struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Name       string  `json:"name"`
	Popularity float64 `json:"popularity"`
	GenreIDs   []int64 `json:"genre_ids"`
}

// ResultPage is one page of a popular listing.
type ResultPage struct {
	Page         int      `json:"page"`
	TotalPages   int      `json:"total_pages"`
	TotalResults int      `json:"total_results"`
	Results      []Result `json:"results"`
}

type release struct {
	Certification string `json:"certification"`
	Type          int    `json:"type"`
}

type releaseCountry struct {
	CountryCode string    `json:"iso_3166_1"`
	Releases    []release `json:"release_dates"`
}

type releaseDates struct {
	Results []releaseCountry `json:"results"`
}

type contentRating struct {
	CountryCode string `json:"iso_3166_1"`
	Rating      string `json:"rating"`
}

type contentRatings struct {
	Results []contentRating `json:"results"`
}

// Movie is the detail record of a movie, with release certifications appended.
type Movie struct {
	ID           int64        `json:"id"`
	Title        string       `json:"title"`
	Overview     string       `json:"overview"`
	ReleaseDate  string       `json:"release_date"`
	Runtime      int          `json:"runtime"`
	Popularity   float64      `json:"popularity"`
	PosterPath   string       `json:"poster_path"`
	BackdropPath string       `json:"backdrop_path"`
	Genres       []Genre      `json:"genres"`
	ReleaseDates releaseDates `json:"release_dates"`
}

// Certification returns the first non-empty certification for country.
func (m Movie) Certification(country string) string {
	for _, c := range m.ReleaseDates.Results {
		if !strings.EqualFold(c.CountryCode, country) {
			continue
		}
		for _, r := range c.Releases {
			if r.Certification != "" {
				return r.Certification
			}
		}
	}
	return ""
}

// Show is the detail record of a TV show, with content ratings appended.
type Show struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Overview       string         `json:"overview"`
	FirstAirDate   string         `json:"first_air_date"`
	EpisodeRunTime []int          `json:"episode_run_time"`
	Popularity     float64        `json:"popularity"`
	PosterPath     string         `json:"poster_path"`
	BackdropPath   string         `json:"backdrop_path"`
	Genres         []Genre        `json:"genres"`
	ContentRatings contentRatings `json:"content_ratings"`
}

// Certification returns the content rating for country.
func (s Show) Certification(country string) string {
	for _, r := range s.ContentRatings.Results {
		if strings.EqualFold(r.CountryCode, country) && r.Rating != "" {
			return r.Rating
		}
	}
	return ""
}

// Runtime returns the first listed episode runtime in minutes.
func (s Show) Runtime() int {
	if len(s.EpisodeRunTime) == 0 {
		return 0
	}
	return s.EpisodeRunTime[0]
}

// Cast is an acting credit.
type Cast struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Character  string  `json:"character"`
	Order      int     `json:"order"`
	Popularity float64 `json:"popularity"`
}

// Crew is a writing, directing or other production credit.
type Crew struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Department string  `json:"department"`
	Job        string  `json:"job"`
	Popularity float64 `json:"popularity"`
}

// Credits lists the cast and crew of a movie or show.
type Credits struct {
	ID   int64  `json:"id"`
	Cast []Cast `json:"cast"`
	Crew []Crew `json:"crew"`
}

// Person is a celebrity profile.
type Person struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Birthday    string  `json:"birthday"`
	Biography   string  `json:"biography"`
	Birthplace  string  `json:"place_of_birth"`
	ProfilePath string  `json:"profile_path"`
	Popularity  float64 `json:"popularity"`
}

// ParseDate parses a YYYY-MM-DD date. Empty or malformed input yields nil.
func ParseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}
