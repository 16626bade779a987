package rating

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/Clark-Hu/reelrate/internal/domain"
	"github.com/Clark-Hu/reelrate/internal/logging"
	"github.com/Clark-Hu/reelrate/internal/repository"
	"github.com/Clark-Hu/reelrate/internal/store"
	"github.com/Clark-Hu/reelrate/internal/testdb"
)

type testEnv struct {
	ctx  context.Context
	agg  *Aggregator
	repo *repository.Repository
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()
	pool := testdb.New(t, "reelrate_rating_test")
	st := store.NewWithPool(pool, logging.Discard())
	return &testEnv{
		ctx:  context.Background(),
		agg:  NewAggregator(st, logging.Discard()),
		repo: repository.NewWithPool(pool),
	}
}

func (e *testEnv) movie(t testing.TB, id int64) domain.MediaKey {
	t.Helper()
	m, err := e.repo.Media.Upsert(e.ctx, domain.Media{Kind: domain.KindMovie, ID: id, Title: fmt.Sprintf("Movie %d", id)})
	if err != nil {
		t.Fatalf("upsert movie: %v", err)
	}
	return m.Key()
}

func (e *testEnv) user(t testing.TB, name string) uuid.UUID {
	t.Helper()
	u, err := e.repo.Users.Create(e.ctx, domain.User{ID: uuid.New(), Username: name, Email: name + "@example.com", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func (e *testEnv) storedMean(t testing.TB, key domain.MediaKey) *float64 {
	t.Helper()
	m, err := e.repo.Media.Get(e.ctx, key)
	if err != nil {
		t.Fatalf("get media: %v", err)
	}
	return m.Rating
}

func ptrID(id int64) *int64 { return &id }

func TestUpsertRating_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "val")
	env.movie(t, 1)

	tests := []struct {
		name  string
		ref   domain.MediaRef
		score float64
	}{
		{"neither ref", domain.MediaRef{}, 5},
		{"both refs", domain.MediaRef{MovieID: ptrID(1), ShowID: ptrID(1)}, 5},
		{"score too high", domain.MediaRef{MovieID: ptrID(1)}, 10.5},
		{"score negative", domain.MediaRef{MovieID: ptrID(1)}, -1},
		{"off step", domain.MediaRef{MovieID: ptrID(1)}, 3.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.agg.UpsertRating(env.ctx, user, tt.ref, tt.score, nil)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
		})
	}

	long := strings.Repeat("x", MaxCommentLength+1)
	if _, _, err := env.agg.UpsertRating(env.ctx, user, domain.MediaRef{MovieID: ptrID(1)}, 5, &long); err == nil {
		t.Fatalf("expected error for oversized comment")
	}

	if mean := env.storedMean(t, domain.MediaKey{Kind: domain.KindMovie, ID: 1}); mean != nil {
		t.Fatalf("rejected upserts must not touch the mean, got %v", *mean)
	}
}

func TestUpsertRating_NotFound(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "nf")
	_, _, err := env.agg.UpsertRating(env.ctx, user, domain.MediaRef{ShowID: ptrID(42)}, 5, nil)
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) || nf.Resource != "show" {
		t.Fatalf("error = %v, want NotFoundError for show", err)
	}
}

func TestUpsertRating_MaintainsMean(t *testing.T) {
	env := newTestEnv(t)
	key := env.movie(t, 10)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	ref := domain.RefFor(key)

	comment := "  loved it  "
	first, created, err := env.agg.UpsertRating(env.ctx, alice, ref, 8, &comment)
	if err != nil || !created {
		t.Fatalf("first upsert created=%v err=%v", created, err)
	}
	if first.Comment == nil || *first.Comment != "loved it" {
		t.Fatalf("comment not normalized: %v", first.Comment)
	}
	if mean := env.storedMean(t, key); mean == nil || *mean != 8 {
		t.Fatalf("mean after one rating = %v, want 8", mean)
	}

	if _, created, err := env.agg.UpsertRating(env.ctx, bob, ref, 5, nil); err != nil || !created {
		t.Fatalf("bob upsert created=%v err=%v", created, err)
	}
	if mean := env.storedMean(t, key); mean == nil || math.Abs(*mean-6.5) > 1e-9 {
		t.Fatalf("mean after two ratings = %v, want 6.5", mean)
	}

	second, created, err := env.agg.UpsertRating(env.ctx, alice, ref, 2, nil)
	if err != nil || created {
		t.Fatalf("alice re-upsert created=%v err=%v", created, err)
	}
	if second.ID != first.ID || second.Comment != nil {
		t.Fatalf("re-upsert should overwrite in place: %+v", second)
	}
	ratings, err := env.repo.Ratings.ListByUser(env.ctx, alice)
	if err != nil || len(ratings) != 1 {
		t.Fatalf("alice should have exactly one rating, got %d (%v)", len(ratings), err)
	}
	if mean := env.storedMean(t, key); mean == nil || math.Abs(*mean-3.5) > 1e-9 {
		t.Fatalf("mean after overwrite = %v, want 3.5", mean)
	}

	summary, err := env.agg.Summary(env.ctx, key)
	if err != nil || summary.Count != 2 || summary.Average == nil || math.Abs(*summary.Average-3.5) > 1e-9 {
		t.Fatalf("Summary = %+v, %v", summary, err)
	}
}

func TestRecomputeMeanRating_EmptyAndIdempotent(t *testing.T) {
	env := newTestEnv(t)
	key := env.movie(t, 20)

	mean, err := env.agg.RecomputeMeanRating(env.ctx, key)
	if err != nil || mean != nil {
		t.Fatalf("empty recompute = %v, %v; want nil", mean, err)
	}

	user := env.user(t, "idem")
	if _, _, err := env.agg.UpsertRating(env.ctx, user, domain.RefFor(key), 7.5, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	for i := 0; i < 3; i++ {
		mean, err = env.agg.RecomputeMeanRating(env.ctx, key)
		if err != nil || mean == nil || *mean != 7.5 {
			t.Fatalf("recompute #%d = %v, %v", i, mean, err)
		}
	}

	if _, err := env.agg.RecomputeMeanRating(env.ctx, domain.MediaKey{Kind: domain.KindMovie, ID: 999}); err == nil {
		t.Fatalf("expected error for unknown media")
	}
}

func TestDeleteRating(t *testing.T) {
	env := newTestEnv(t)
	key := env.movie(t, 30)
	owner := env.user(t, "owner")
	other := env.user(t, "other")

	rating, _, err := env.agg.UpsertRating(env.ctx, owner, domain.RefFor(key), 9, nil)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, _, err := env.agg.UpsertRating(env.ctx, other, domain.RefFor(key), 3, nil); err != nil {
		t.Fatalf("upsert other: %v", err)
	}

	var nf *domain.NotFoundError
	if err := env.agg.DeleteRating(env.ctx, other, rating.ID); !errors.As(err, &nf) {
		t.Fatalf("deleting someone else's rating = %v, want NotFoundError", err)
	}
	if err := env.agg.DeleteRating(env.ctx, owner, rating.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mean := env.storedMean(t, key); mean == nil || *mean != 3 {
		t.Fatalf("mean after delete = %v, want 3", mean)
	}
	if err := env.agg.DeleteRating(env.ctx, owner, rating.ID); !errors.As(err, &nf) {
		t.Fatalf("second delete = %v, want NotFoundError", err)
	}
}

func TestUpsertRating_ConcurrentUsersKeepMeanExact(t *testing.T) {
	env := newTestEnv(t)
	key := env.movie(t, 40)

	const workers = 8
	users := make([]uuid.UUID, workers)
	for i := range users {
		users[i] = env.user(t, fmt.Sprintf("c-%d", i))
	}

	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(u uuid.UUID, score float64) {
			defer wg.Done()
			if _, _, err := env.agg.UpsertRating(env.ctx, u, domain.RefFor(key), score, nil); err != nil {
				t.Errorf("upsert: %v", err)
			}
		}(u, float64(i+1))
	}
	wg.Wait()

	// Scores 1..8 average to 4.5.
	if mean := env.storedMean(t, key); mean == nil || math.Abs(*mean-4.5) > 1e-9 {
		t.Fatalf("mean after concurrent upserts = %v, want 4.5", mean)
	}
}
