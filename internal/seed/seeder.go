// Package seed populates genres, media, celebrities and credits from TMDB.
package seed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Clark-Hu/reelrate/internal/domain"
	"github.com/Clark-Hu/reelrate/internal/metrics"
	"github.com/Clark-Hu/reelrate/internal/repository"
	"github.com/Clark-Hu/reelrate/internal/store"
	"github.com/Clark-Hu/reelrate/internal/tmdb"
)

// CertificationCountry selects which age rating is stored.
const CertificationCountry = "US"

// Options controls how much is seeded.
type Options struct {
	// Pages of popular movies and of popular shows to walk.
	Pages int
	// HighlightTop flags the N most popular items of each kind as highlighted.
	HighlightTop int
	// CastLimit caps the billed cast members stored per item.
	CastLimit int
	// Concurrency bounds in-flight items.
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.Pages <= 0 {
		o.Pages = 1
	}
	if o.HighlightTop < 0 {
		o.HighlightTop = 0
	}
	if o.CastLimit <= 0 {
		o.CastLimit = 10
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// Report counts what a run wrote.
type Report struct {
	Genres      int
	Movies      int
	Shows       int
	Celebrities int
	Credits     int
	Skipped     int
}

// Seeder copies TMDB data into the store.
type Seeder struct {
	client tmdb.Client
	store  *store.Store
	logger zerolog.Logger

	people singleflight.Group
	mu     sync.Mutex
	cache  map[int64]domain.Celebrity
	report Report
}

// New builds a Seeder.
func New(client tmdb.Client, st *store.Store, logger zerolog.Logger) *Seeder {
	return &Seeder{
		client: client,
		store:  st,
		logger: logger,
		cache:  make(map[int64]domain.Celebrity),
	}
}

// Run seeds genres first, then popular movies and shows. Items whose upstream
// records cannot be fetched are logged and skipped; any storage failure stops
// the run.
func (s *Seeder) Run(ctx context.Context, opts Options) (Report, error) {
	opts = opts.withDefaults()
	s.mu.Lock()
	s.report = Report{}
	s.mu.Unlock()

	if err := s.seedGenres(ctx); err != nil {
		return s.snapshot(), err
	}

	for _, kind := range []domain.MediaKind{domain.KindMovie, domain.KindShow} {
		results, err := s.popular(ctx, kind, opts.Pages)
		if err != nil {
			return s.snapshot(), err
		}
		highlight := topByPopularity(results, opts.HighlightTop)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for _, r := range results {
			g.Go(func() error {
				return s.seedItem(gctx, kind, r.ID, highlight[r.ID], opts)
			})
		}
		if err := g.Wait(); err != nil {
			return s.snapshot(), err
		}
	}

	report := s.snapshot()
	s.logger.Info().
		Int("genres", report.Genres).
		Int("movies", report.Movies).
		Int("shows", report.Shows).
		Int("celebrities", report.Celebrities).
		Int("credits", report.Credits).
		Int("skipped", report.Skipped).
		Msg("seed complete")
	return report, nil
}

func (s *Seeder) seedGenres(ctx context.Context) error {
	movieGenres, err := s.client.MovieGenres(ctx)
	if err != nil {
		return fmt.Errorf("fetch movie genres: %w", err)
	}
	tvGenres, err := s.client.TVGenres(ctx)
	if err != nil {
		return fmt.Errorf("fetch tv genres: %w", err)
	}

	repo := repository.New(s.store)
	seen := make(map[int64]struct{})
	for _, g := range append(movieGenres, tvGenres...) {
		if _, dup := seen[g.ID]; dup {
			continue
		}
		seen[g.ID] = struct{}{}
		if err := repo.Genres.Upsert(ctx, domain.Genre{ID: g.ID, Name: g.Name}); err != nil {
			return &domain.StorageError{Op: "upsert genre", Err: err}
		}
		metrics.SeededItems.WithLabelValues("genre").Inc()
	}
	s.count(func(r *Report) { r.Genres = len(seen) })
	return nil
}

// popular walks up to pages listing pages and returns distinct results in
// listing order.
func (s *Seeder) popular(ctx context.Context, kind domain.MediaKind, pages int) ([]tmdb.Result, error) {
	fetch := s.client.PopularMovies
	if kind == domain.KindShow {
		fetch = s.client.PopularShows
	}

	var out []tmdb.Result
	seen := make(map[int64]struct{})
	for page := 1; page <= pages; page++ {
		p, err := fetch(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("fetch popular %ss page %d: %w", kind, page, err)
		}
		for _, r := range p.Results {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r)
		}
		if p.TotalPages > 0 && page >= p.TotalPages {
			break
		}
	}
	return out, nil
}

func topByPopularity(results []tmdb.Result, n int) map[int64]bool {
	sorted := make([]tmdb.Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Popularity > sorted[j].Popularity
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	top := make(map[int64]bool, n)
	for _, r := range sorted[:n] {
		top[r.ID] = true
	}
	return top
}

// item is everything fetched upstream for one media item before it is written.
type item struct {
	media  domain.Media
	genres []domain.Genre
	cast   []domain.CastedRole
	crew   []domain.CrewMember
	people []domain.Celebrity
}

func (s *Seeder) seedItem(ctx context.Context, kind domain.MediaKind, id int64, highlighted bool, opts Options) error {
	it, err := s.fetchItem(ctx, kind, id, opts)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn().Err(err).Str("kind", string(kind)).Int64("id", id).Msg("skipping item")
		s.count(func(r *Report) { r.Skipped++ })
		return nil
	}
	it.media.Highlighted = highlighted

	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewWithDB(tx)
		for _, g := range it.genres {
			if err := repo.Genres.Upsert(ctx, g); err != nil {
				return fmt.Errorf("upsert genre %d: %w", g.ID, err)
			}
		}
		if _, err := repo.Media.Upsert(ctx, it.media); err != nil {
			return fmt.Errorf("upsert %s: %w", it.media.Key(), err)
		}
		genreIDs := make([]int64, 0, len(it.genres))
		for _, g := range it.genres {
			genreIDs = append(genreIDs, g.ID)
		}
		if err := repo.Media.SetGenres(ctx, it.media.Key(), genreIDs); err != nil {
			return fmt.Errorf("link genres of %s: %w", it.media.Key(), err)
		}
		for _, c := range it.people {
			if err := repo.Celebrities.Upsert(ctx, c); err != nil {
				return fmt.Errorf("upsert celebrity %d: %w", c.ID, err)
			}
		}
		for _, role := range it.cast {
			if err := repo.Celebrities.AddCast(ctx, role); err != nil {
				return fmt.Errorf("add cast %d: %w", role.CelebrityID, err)
			}
		}
		for _, crew := range it.crew {
			if err := repo.Celebrities.AddCrew(ctx, crew); err != nil {
				return fmt.Errorf("add crew %d: %w", crew.CelebrityID, err)
			}
		}
		return nil
	})
	if err != nil {
		return &domain.StorageError{Op: "seed " + it.media.Key().String(), Err: err}
	}

	metrics.SeededItems.WithLabelValues(string(kind)).Inc()
	metrics.SeededItems.WithLabelValues("credit").Add(float64(len(it.cast) + len(it.crew)))
	s.count(func(r *Report) {
		if kind == domain.KindMovie {
			r.Movies++
		} else {
			r.Shows++
		}
		r.Credits += len(it.cast) + len(it.crew)
	})
	return nil
}

func (s *Seeder) fetchItem(ctx context.Context, kind domain.MediaKind, id int64, opts Options) (item, error) {
	var (
		it      item
		credits tmdb.Credits
		err     error
	)
	switch kind {
	case domain.KindMovie:
		var m tmdb.Movie
		if m, err = s.client.MovieDetail(ctx, id); err != nil {
			return item{}, fmt.Errorf("movie detail: %w", err)
		}
		it.media = domain.Media{
			Kind:        domain.KindMovie,
			ID:          m.ID,
			Title:       m.Title,
			ReleaseDate: tmdb.ParseDate(m.ReleaseDate),
			Popularity:  m.Popularity,
			Options: domain.MediaOptions{
				Description: m.Overview,
				Duration:    m.Runtime,
				AgeRating:   m.Certification(CertificationCountry),
				PosterURL:   s.client.ImageURL(m.PosterPath),
				BackdropURL: s.client.ImageURL(m.BackdropPath),
			},
		}
		it.genres = convertGenres(m.Genres)
		if credits, err = s.client.MovieCredits(ctx, id); err != nil {
			return item{}, fmt.Errorf("movie credits: %w", err)
		}
	case domain.KindShow:
		var sh tmdb.Show
		if sh, err = s.client.ShowDetail(ctx, id); err != nil {
			return item{}, fmt.Errorf("show detail: %w", err)
		}
		it.media = domain.Media{
			Kind:        domain.KindShow,
			ID:          sh.ID,
			Title:       sh.Name,
			ReleaseDate: tmdb.ParseDate(sh.FirstAirDate),
			Popularity:  sh.Popularity,
			Options: domain.MediaOptions{
				Description: sh.Overview,
				Duration:    sh.Runtime(),
				AgeRating:   sh.Certification(CertificationCountry),
				PosterURL:   s.client.ImageURL(sh.PosterPath),
				BackdropURL: s.client.ImageURL(sh.BackdropPath),
			},
		}
		it.genres = convertGenres(sh.Genres)
		if credits, err = s.client.ShowCredits(ctx, id); err != nil {
			return item{}, fmt.Errorf("show credits: %w", err)
		}
	default:
		return item{}, fmt.Errorf("unknown kind %q", kind)
	}
	if it.media.ID == 0 {
		it.media.ID = id
	}

	key := it.media.Key()
	people := make(map[int64]struct{})
	addPerson := func(personID int64, name string, popularity float64) {
		if _, ok := people[personID]; ok {
			return
		}
		people[personID] = struct{}{}
		it.people = append(it.people, s.person(ctx, personID, name, popularity))
	}

	cast := credits.Cast
	sort.SliceStable(cast, func(i, j int) bool { return cast[i].Order < cast[j].Order })
	if len(cast) > opts.CastLimit {
		cast = cast[:opts.CastLimit]
	}
	for _, c := range cast {
		addPerson(c.ID, c.Name, c.Popularity)
		it.cast = append(it.cast, domain.CastedRole{CelebrityID: c.ID, Media: key, Role: c.Character})
	}
	for _, c := range credits.Crew {
		if c.Department != "Directing" && c.Department != "Writing" {
			continue
		}
		addPerson(c.ID, c.Name, c.Popularity)
		it.crew = append(it.crew, domain.CrewMember{CelebrityID: c.ID, Media: key, Job: c.Job})
	}
	return it, nil
}

// person returns the profile of a celebrity, fetching it at most once per run.
// Without a profile the credit's name and popularity stand in.
func (s *Seeder) person(ctx context.Context, id int64, name string, popularity float64) domain.Celebrity {
	fallback := domain.Celebrity{ID: id, Name: name, Popularity: popularity}

	s.mu.Lock()
	if c, ok := s.cache[id]; ok {
		s.mu.Unlock()
		return c
	}
	s.mu.Unlock()

	v, err, _ := s.people.Do(strconv.FormatInt(id, 10), func() (interface{}, error) {
		s.mu.Lock()
		if c, ok := s.cache[id]; ok {
			s.mu.Unlock()
			return c, nil
		}
		s.mu.Unlock()

		c := fallback
		p, err := s.client.Person(ctx, id)
		switch {
		case err == nil:
			c.BirthDate = tmdb.ParseDate(p.Birthday)
			c.Popularity = p.Popularity
			c.Options = domain.CelebrityOptions{
				ImageURL:   s.client.ImageURL(p.ProfilePath),
				Biography:  p.Biography,
				Birthplace: p.Birthplace,
			}
			if p.Name != "" {
				c.Name = p.Name
			}
		case errors.Is(err, tmdb.ErrNotFound):
		default:
			return nil, err
		}
		s.mu.Lock()
		if _, known := s.cache[id]; !known {
			s.report.Celebrities++
			metrics.SeededItems.WithLabelValues("celebrity").Inc()
		}
		s.cache[id] = c
		s.mu.Unlock()
		return c, nil
	})
	if err != nil {
		s.logger.Debug().Err(err).Int64("person", id).Msg("person profile unavailable")
		return fallback
	}
	return v.(domain.Celebrity)
}

func convertGenres(in []tmdb.Genre) []domain.Genre {
	out := make([]domain.Genre, 0, len(in))
	for _, g := range in {
		out = append(out, domain.Genre{ID: g.ID, Name: g.Name})
	}
	return out
}

func (s *Seeder) count(fn func(r *Report)) {
	s.mu.Lock()
	fn(&s.report)
	s.mu.Unlock()
}

func (s *Seeder) snapshot() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}
