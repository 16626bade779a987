package domain

import "time"

// CelebrityOptions holds optional profile details.
type CelebrityOptions struct {
	ImageURL   string `json:"imageUrl,omitempty"`
	Biography  string `json:"biography,omitempty"`
	Birthplace string `json:"birthplace,omitempty"`
}

// Celebrity is a person credited on movies or shows.
type Celebrity struct {
	ID         int64
	Name       string
	BirthDate  *time.Time
	Popularity float64
	Options    CelebrityOptions
}

// CastedRole links a celebrity to a media item they acted in.
type CastedRole struct {
	CelebrityID int64
	Media       MediaKey
	Role        string
}

// CrewMember links a celebrity to a media item they wrote or directed.
type CrewMember struct {
	CelebrityID int64
	Media       MediaKey
	Job         string
}

// Credit kinds.
const (
	CreditCast = "cast"
	CreditCrew = "crew"
)

// Credit is one line of a celebrity's filmography.
type Credit struct {
	Kind  string
	Label string
	Media Media
}
