// Package recommend builds a user's recommendation feed from their rating
// history, falling back to the highlighted feed for anonymous users and users
// who have not rated anything.
package recommend

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/reelrate/internal/domain"
	"github.com/Clark-Hu/reelrate/internal/metrics"
	"github.com/Clark-Hu/reelrate/internal/similarity"
)

// Source is the slice of the data store the assembler reads from.
// repository.MediaRepository satisfies it.
type Source interface {
	Highlighted(ctx context.Context, limit, offset int) ([]domain.Media, error)
	GetMany(ctx context.Context, keys []domain.MediaKey) ([]domain.Media, error)
	SimilarCandidates(ctx context.Context, reference domain.Media, exclude []int64, limit int) ([]domain.Media, error)
}

// Config tunes feed sizes.
type Config struct {
	// FallbackPageSize and FallbackOffset window the highlighted feed.
	FallbackPageSize int
	FallbackOffset   int
	// MaxReferences caps how many rated items seed the feed. Zero consults
	// the whole history.
	MaxReferences int
	// CandidatePoolSize caps the candidates fetched per reference.
	CandidatePoolSize int
	// Limit caps the personalised feed.
	Limit int
}

// DefaultConfig mirrors the server defaults.
func DefaultConfig() Config {
	return Config{
		FallbackPageSize:  20,
		MaxReferences:     10,
		CandidatePoolSize: 50,
		Limit:             20,
	}
}

// Recommendation is one feed entry. Score is the accumulated genre overlap
// and is zero for fallback entries.
type Recommendation struct {
	Media    domain.Media
	Score    int
	Fallback bool
}

// Assembler produces recommendation feeds.
type Assembler struct {
	source Source
	cfg    Config
	logger zerolog.Logger
}

// NewAssembler applies defaults for non-positive sizes.
func NewAssembler(source Source, cfg Config, logger zerolog.Logger) *Assembler {
	def := DefaultConfig()
	if cfg.FallbackPageSize <= 0 {
		cfg.FallbackPageSize = def.FallbackPageSize
	}
	if cfg.FallbackOffset < 0 {
		cfg.FallbackOffset = 0
	}
	if cfg.MaxReferences < 0 {
		cfg.MaxReferences = 0
	}
	if cfg.CandidatePoolSize <= 0 {
		cfg.CandidatePoolSize = def.CandidatePoolSize
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	return &Assembler{source: source, cfg: cfg, logger: logger}
}

// RecommendFor returns the feed for userID given their ratings. A nil user or
// an empty history yields the highlighted feed. Items present in history are
// never recommended. Any store failure fails the whole call.
func (a *Assembler) RecommendFor(ctx context.Context, userID *uuid.UUID, history []domain.Rating) ([]Recommendation, error) {
	if userID == nil || len(history) == 0 {
		return a.fallback(ctx)
	}

	start := time.Now()
	defer func() {
		metrics.RecommendationDuration.WithLabelValues("personal").Observe(time.Since(start).Seconds())
	}()

	rated := make(map[domain.MediaKey]struct{}, len(history))
	exclude := make(map[domain.MediaKind][]int64)
	for _, r := range history {
		if _, dup := rated[r.Media]; dup {
			continue
		}
		rated[r.Media] = struct{}{}
		exclude[r.Media.Kind] = append(exclude[r.Media.Kind], r.Media.ID)
	}

	refs, err := a.source.GetMany(ctx, a.referenceKeys(history))
	if err != nil {
		return nil, &domain.StorageError{Op: "load reference media", Err: err}
	}

	scores := make(map[domain.MediaKey]int)
	order := make([]domain.Media, 0)
	for _, ref := range refs {
		pool, err := a.source.SimilarCandidates(ctx, ref, exclude[ref.Kind], a.cfg.CandidatePoolSize)
		if err != nil {
			return nil, &domain.StorageError{Op: "load similar candidates", Err: err}
		}
		for _, s := range similarity.Rank(pool, ref) {
			key := s.Media.Key()
			if _, ok := rated[key]; ok || s.Score == 0 {
				continue
			}
			if _, seen := scores[key]; !seen {
				order = append(order, s.Media)
			}
			scores[key] += s.Score
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i].Key()] > scores[order[j].Key()]
	})
	if len(order) > a.cfg.Limit {
		order = order[:a.cfg.Limit]
	}

	feed := make([]Recommendation, 0, len(order))
	for _, m := range order {
		feed = append(feed, Recommendation{Media: m, Score: scores[m.Key()]})
	}
	a.logger.Debug().
		Str("user", userID.String()).
		Int("references", len(refs)).
		Int("results", len(feed)).
		Msg("recommendations assembled")
	return feed, nil
}

func (a *Assembler) fallback(ctx context.Context) ([]Recommendation, error) {
	start := time.Now()
	defer func() {
		metrics.RecommendationDuration.WithLabelValues("fallback").Observe(time.Since(start).Seconds())
	}()
	metrics.RecommendationFallbacks.Inc()

	items, err := a.source.Highlighted(ctx, a.cfg.FallbackPageSize, a.cfg.FallbackOffset)
	if err != nil {
		return nil, &domain.StorageError{Op: "load highlighted media", Err: err}
	}
	feed := make([]Recommendation, 0, len(items))
	for _, m := range items {
		feed = append(feed, Recommendation{Media: m, Fallback: true})
	}
	return feed, nil
}

// referenceKeys orders the history best score first, most recent first on
// ties, and keeps at most MaxReferences distinct items.
func (a *Assembler) referenceKeys(history []domain.Rating) []domain.MediaKey {
	sorted := make([]domain.Rating, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})

	keys := make([]domain.MediaKey, 0, len(sorted))
	seen := make(map[domain.MediaKey]struct{}, len(sorted))
	for _, r := range sorted {
		if _, dup := seen[r.Media]; dup {
			continue
		}
		seen[r.Media] = struct{}{}
		keys = append(keys, r.Media)
		if a.cfg.MaxReferences > 0 && len(keys) == a.cfg.MaxReferences {
			break
		}
	}
	return keys
}
