package domain

import (
	"fmt"
	"time"
)

// MediaKind distinguishes the two families of rateable media.
type MediaKind string

const (
	KindMovie MediaKind = "movie"
	KindShow  MediaKind = "show"
)

// ParseMediaKind accepts "movie"/"movies" and "show"/"shows".
func ParseMediaKind(raw string) (MediaKind, error) {
	switch raw {
	case "movie", "movies":
		return KindMovie, nil
	case "show", "shows":
		return KindShow, nil
	}
	return "", &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown media kind %q", raw)}
}

// Valid reports whether k is one of the known kinds.
func (k MediaKind) Valid() bool {
	return k == KindMovie || k == KindShow
}

// MediaKey is the identity of a media item: same kind and same id means same item.
type MediaKey struct {
	Kind MediaKind `json:"kind"`
	ID   int64     `json:"id"`
}

func (k MediaKey) String() string {
	return fmt.Sprintf("%s:%d", k.Kind, k.ID)
}

// MediaRef is the request-side reference to a media item. Exactly one of the
// two ids must be set.
type MediaRef struct {
	MovieID *int64 `json:"movieId,omitempty"`
	ShowID  *int64 `json:"showId,omitempty"`
}

// RefFor builds a MediaRef pointing at key.
func RefFor(key MediaKey) MediaRef {
	id := key.ID
	if key.Kind == KindShow {
		return MediaRef{ShowID: &id}
	}
	return MediaRef{MovieID: &id}
}

// Key resolves the reference, failing when both or neither id is present.
func (r MediaRef) Key() (MediaKey, error) {
	switch {
	case r.MovieID != nil && r.ShowID != nil:
		return MediaKey{}, &ValidationError{Field: "media", Message: "only one of movieId or showId may be set"}
	case r.MovieID != nil:
		return MediaKey{Kind: KindMovie, ID: *r.MovieID}, nil
	case r.ShowID != nil:
		return MediaKey{Kind: KindShow, ID: *r.ShowID}, nil
	}
	return MediaKey{}, &ValidationError{Field: "media", Message: "one of movieId or showId is required"}
}

// MediaOptions holds the optional descriptive fields of a movie or show.
type MediaOptions struct {
	Description string `json:"description,omitempty"`
	Duration    int    `json:"duration,omitempty"`
	AgeRating   string `json:"ageRating,omitempty"`
	PosterURL   string `json:"posterUrl,omitempty"`
	BackdropURL string `json:"backdropUrl,omitempty"`
}

// Media is a movie or a show. Rating is the mean over all ratings of the item
// and is nil while nobody has rated it.
type Media struct {
	Kind        MediaKind
	ID          int64
	Title       string
	ReleaseDate *time.Time
	Rating      *float64
	Highlighted bool
	Popularity  float64
	Genres      []Genre
	Options     MediaOptions
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Key returns the identity of m.
func (m Media) Key() MediaKey {
	return MediaKey{Kind: m.Kind, ID: m.ID}
}

// Genre is a node of the externally seeded genre taxonomy.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
