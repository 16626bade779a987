package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/reelrate/internal/domain"
	"github.com/Clark-Hu/reelrate/internal/testdb"
)

type testEnv struct {
	ctx        context.Context
	pool       *pgxpool.Pool
	repository *Repository
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()
	pool := testdb.New(t, "reelrate_repo_test")
	return &testEnv{
		ctx:        context.Background(),
		pool:       pool,
		repository: NewWithPool(pool),
	}
}

func mustGenre(t testing.TB, env *testEnv, id int64, name string) domain.Genre {
	t.Helper()
	g := domain.Genre{ID: id, Name: name}
	if err := env.repository.Genres.Upsert(env.ctx, g); err != nil {
		t.Fatalf("upsert genre %q: %v", name, err)
	}
	return g
}

func mustMedia(t testing.TB, env *testEnv, kind domain.MediaKind, id int64, title string, popularity float64, highlighted bool, genres ...domain.Genre) domain.Media {
	t.Helper()
	release := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	media, err := env.repository.Media.Upsert(env.ctx, domain.Media{
		Kind:        kind,
		ID:          id,
		Title:       title,
		ReleaseDate: &release,
		Highlighted: highlighted,
		Popularity:  popularity,
		Options:     domain.MediaOptions{Description: title + " description", Duration: 120},
	})
	if err != nil {
		t.Fatalf("upsert media %q: %v", title, err)
	}
	ids := make([]int64, 0, len(genres))
	for _, g := range genres {
		ids = append(ids, g.ID)
	}
	if err := env.repository.Media.SetGenres(env.ctx, media.Key(), ids); err != nil {
		t.Fatalf("set genres for %q: %v", title, err)
	}
	media.Genres = genres
	return media
}

func mustUser(t testing.TB, env *testEnv, name string) domain.User {
	t.Helper()
	user, err := env.repository.Users.Create(env.ctx, domain.User{
		ID:           uuid.New(),
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("create user %q: %v", name, err)
	}
	return user
}

func TestMediaRepository_GetAndOptions(t *testing.T) {
	env := newTestEnv(t)
	action := mustGenre(t, env, 28, "Action")
	drama := mustGenre(t, env, 18, "Drama")

	movie := mustMedia(t, env, domain.KindMovie, 100, "Heat", 50, false, action, drama)

	got, err := env.repository.Media.Get(env.ctx, movie.Key())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Heat" || got.Options.Duration != 120 {
		t.Fatalf("unexpected media: %+v", got)
	}
	if len(got.Genres) != 2 || got.Genres[0].ID != 18 || got.Genres[1].ID != 28 {
		t.Fatalf("genres not loaded: %+v", got.Genres)
	}
	if got.Rating != nil {
		t.Fatalf("fresh media should have no rating, got %v", *got.Rating)
	}

	if _, err := env.repository.Media.Get(env.ctx, domain.MediaKey{Kind: domain.KindShow, ID: 100}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("show 100 should not exist, got %v", err)
	}
}

func TestMediaRepository_ListFilters(t *testing.T) {
	env := newTestEnv(t)
	action := mustGenre(t, env, 28, "Action")
	comedy := mustGenre(t, env, 35, "Comedy")

	mustMedia(t, env, domain.KindMovie, 1, "Alpha Action", 10, true, action)
	mustMedia(t, env, domain.KindMovie, 2, "Beta Comedy", 30, false, comedy)
	mustMedia(t, env, domain.KindMovie, 3, "Gamma Action", 20, false, action, comedy)

	genreID := action.ID
	items, err := env.repository.Media.List(env.ctx, domain.KindMovie, MediaListFilters{GenreID: &genreID, Sort: "popularity", Desc: true})
	if err != nil {
		t.Fatalf("List by genre: %v", err)
	}
	if len(items) != 2 || items[0].ID != 3 || items[1].ID != 1 {
		t.Fatalf("genre filter/order wrong: %+v", items)
	}

	highlighted := true
	items, err = env.repository.Media.List(env.ctx, domain.KindMovie, MediaListFilters{Highlighted: &highlighted})
	if err != nil {
		t.Fatalf("List highlighted: %v", err)
	}
	if len(items) != 1 || items[0].ID != 1 {
		t.Fatalf("highlighted filter wrong: %+v", items)
	}

	q := "comedy"
	items, err = env.repository.Media.List(env.ctx, domain.KindMovie, MediaListFilters{Query: &q})
	if err != nil {
		t.Fatalf("List query: %v", err)
	}
	if len(items) != 1 || items[0].ID != 2 {
		t.Fatalf("title query wrong: %+v", items)
	}

	items, err = env.repository.Media.List(env.ctx, domain.KindMovie, MediaListFilters{Sort: "title", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List take/skip: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Beta Comedy" {
		t.Fatalf("take/skip wrong: %+v", items)
	}

	if _, err := env.repository.Media.List(env.ctx, domain.KindMovie, MediaListFilters{Sort: "budget"}); err == nil {
		t.Fatalf("expected error for unknown sort field")
	}
}

func TestMediaRepository_GetManyPreservesOrder(t *testing.T) {
	env := newTestEnv(t)
	g := mustGenre(t, env, 28, "Action")
	mustMedia(t, env, domain.KindMovie, 1, "One", 1, false, g)
	mustMedia(t, env, domain.KindShow, 2, "Two", 1, false, g)
	mustMedia(t, env, domain.KindMovie, 3, "Three", 1, false)

	keys := []domain.MediaKey{
		{Kind: domain.KindMovie, ID: 3},
		{Kind: domain.KindShow, ID: 2},
		{Kind: domain.KindMovie, ID: 999},
		{Kind: domain.KindMovie, ID: 1},
	}
	items, err := env.repository.Media.GetMany(env.ctx, keys)
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("GetMany len = %d, want 3", len(items))
	}
	if items[0].Key() != keys[0] || items[1].Key() != keys[1] || items[2].Key() != keys[3] {
		t.Fatalf("GetMany order wrong: %+v", items)
	}
	if len(items[1].Genres) != 1 || len(items[0].Genres) != 0 {
		t.Fatalf("genres not attached: %+v", items)
	}
}

func TestMediaRepository_SimilarCandidates(t *testing.T) {
	env := newTestEnv(t)
	action := mustGenre(t, env, 28, "Action")
	drama := mustGenre(t, env, 18, "Drama")
	comedy := mustGenre(t, env, 35, "Comedy")

	ref := mustMedia(t, env, domain.KindMovie, 10, "Reference", 5, false, action, drama)
	mustMedia(t, env, domain.KindMovie, 11, "Action Only", 40, false, action)
	mustMedia(t, env, domain.KindMovie, 12, "Action Drama", 30, false, action, drama)
	mustMedia(t, env, domain.KindMovie, 13, "Comedy", 90, false, comedy)
	mustMedia(t, env, domain.KindMovie, 14, "Rated Drama", 20, false, drama)
	mustMedia(t, env, domain.KindShow, 15, "Show Action", 99, false, action)

	items, err := env.repository.Media.SimilarCandidates(env.ctx, ref, []int64{14}, 10)
	if err != nil {
		t.Fatalf("SimilarCandidates: %v", err)
	}
	if len(items) != 2 || items[0].ID != 11 || items[1].ID != 12 {
		t.Fatalf("candidates wrong: %+v", items)
	}
	if len(items[1].Genres) != 2 {
		t.Fatalf("candidate genres should be eager: %+v", items[1].Genres)
	}

	none, err := env.repository.Media.SimilarCandidates(env.ctx, domain.Media{Kind: domain.KindMovie, ID: 10}, nil, 10)
	if err != nil || len(none) != 0 {
		t.Fatalf("no genres should yield no candidates, got %v, %v", none, err)
	}
}

func TestMediaRepository_Highlighted(t *testing.T) {
	env := newTestEnv(t)
	user := mustUser(t, env, "alice")

	m1 := mustMedia(t, env, domain.KindMovie, 1, "Low", 10, true)
	m2 := mustMedia(t, env, domain.KindMovie, 2, "Unrated", 99, true)
	s1 := mustMedia(t, env, domain.KindShow, 3, "High Show", 5, true)
	mustMedia(t, env, domain.KindMovie, 4, "Not Highlighted", 100, false)

	for key, score := range map[domain.MediaKey]float64{m1.Key(): 3, s1.Key(): 9} {
		if _, _, err := env.repository.Ratings.Upsert(env.ctx, RatingUpsertParams{UserID: user.ID, Media: key, Score: score}); err != nil {
			t.Fatalf("upsert rating: %v", err)
		}
		if _, err := env.repository.Media.SetMeanRating(env.ctx, key); err != nil {
			t.Fatalf("set mean: %v", err)
		}
	}

	items, err := env.repository.Media.Highlighted(env.ctx, 10, 0)
	if err != nil {
		t.Fatalf("Highlighted: %v", err)
	}
	want := []domain.MediaKey{s1.Key(), m1.Key(), m2.Key()}
	if len(items) != len(want) {
		t.Fatalf("Highlighted len = %d, want %d", len(items), len(want))
	}
	for i, k := range want {
		if items[i].Key() != k {
			t.Fatalf("Highlighted[%d] = %v, want %v", i, items[i].Key(), k)
		}
	}

	page, err := env.repository.Media.Highlighted(env.ctx, 1, 1)
	if err != nil || len(page) != 1 || page[0].Key() != m1.Key() {
		t.Fatalf("Highlighted offset wrong: %+v, %v", page, err)
	}
}

func TestRatingsRepository_UpsertAndAggregate(t *testing.T) {
	env := newTestEnv(t)
	movie := mustMedia(t, env, domain.KindMovie, 1, "Rating Movie", 1, false)
	user1 := mustUser(t, env, "user1")
	user2 := mustUser(t, env, "user2")

	comment := "great"
	params := RatingUpsertParams{UserID: user1.ID, Media: movie.Key(), Score: 8.5, Comment: &comment}
	rating, inserted, err := env.repository.Ratings.Upsert(env.ctx, params)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !inserted {
		t.Fatalf("expected first upsert to insert")
	}
	if rating.Score != 8.5 || rating.Comment == nil || *rating.Comment != "great" || rating.Media != movie.Key() {
		t.Fatalf("unexpected rating: %+v", rating)
	}

	params.Score = 7
	params.Comment = nil
	updated, inserted, err := env.repository.Ratings.Upsert(env.ctx, params)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if inserted {
		t.Fatalf("expected update, not insert")
	}
	if updated.ID != rating.ID || updated.Comment != nil {
		t.Fatalf("update should overwrite in place: %+v", updated)
	}

	if _, _, err := env.repository.Ratings.Upsert(env.ctx, RatingUpsertParams{UserID: user2.ID, Media: movie.Key(), Score: 4}); err != nil {
		t.Fatalf("third upsert: %v", err)
	}

	agg, err := env.repository.Ratings.Aggregate(env.ctx, movie.Key())
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.Count != 2 || agg.Average == nil || math.Abs(*agg.Average-5.5) > 1e-9 {
		t.Fatalf("aggregate = %+v, want avg 5.5 count 2", agg)
	}

	mean, err := env.repository.Media.SetMeanRating(env.ctx, movie.Key())
	if err != nil || mean == nil || math.Abs(*mean-5.5) > 1e-9 {
		t.Fatalf("SetMeanRating = %v, %v", mean, err)
	}

	if _, err := env.repository.Ratings.Get(env.ctx, user1.ID, domain.MediaKey{Kind: domain.KindShow, ID: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for show rating, got %v", err)
	}
}

func TestRatingsRepository_UpsertUnknownMedia(t *testing.T) {
	env := newTestEnv(t)
	user := mustUser(t, env, "ghost")
	_, _, err := env.repository.Ratings.Upsert(env.ctx, RatingUpsertParams{UserID: user.ID, Media: domain.MediaKey{Kind: domain.KindMovie, ID: 404}, Score: 5})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRatingsRepository_SameIDDifferentKind(t *testing.T) {
	env := newTestEnv(t)
	movie := mustMedia(t, env, domain.KindMovie, 7, "Movie Seven", 1, false)
	show := mustMedia(t, env, domain.KindShow, 7, "Show Seven", 1, false)
	user := mustUser(t, env, "kinds")

	for _, key := range []domain.MediaKey{movie.Key(), show.Key()} {
		if _, inserted, err := env.repository.Ratings.Upsert(env.ctx, RatingUpsertParams{UserID: user.ID, Media: key, Score: 6}); err != nil || !inserted {
			t.Fatalf("upsert %v: inserted=%v err=%v", key, inserted, err)
		}
	}
	ratings, err := env.repository.Ratings.ListByUser(env.ctx, user.ID)
	if err != nil || len(ratings) != 2 {
		t.Fatalf("ListByUser = %d ratings, %v", len(ratings), err)
	}
}

func TestRatingsRepository_DeleteOwnOnly(t *testing.T) {
	env := newTestEnv(t)
	movie := mustMedia(t, env, domain.KindMovie, 1, "Delete Me", 1, false)
	owner := mustUser(t, env, "owner")
	other := mustUser(t, env, "other")

	rating, _, err := env.repository.Ratings.Upsert(env.ctx, RatingUpsertParams{UserID: owner.ID, Media: movie.Key(), Score: 5})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := env.repository.Ratings.Delete(env.ctx, rating.ID, other.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other user should not delete, got %v", err)
	}
	deleted, err := env.repository.Ratings.Delete(env.ctx, rating.ID, owner.ID)
	if err != nil || deleted.ID != rating.ID {
		t.Fatalf("owner delete = %+v, %v", deleted, err)
	}
	mean, err := env.repository.Media.SetMeanRating(env.ctx, movie.Key())
	if err != nil || mean != nil {
		t.Fatalf("mean after delete = %v, %v; want nil", mean, err)
	}
}

func TestRatingsRepository_ConcurrentUpserts(t *testing.T) {
	env := newTestEnv(t)
	movie := mustMedia(t, env, domain.KindMovie, 1, "Concurrent Movie", 1, false)

	const workers = 10
	users := make([]domain.User, workers)
	for i := range users {
		users[i] = mustUser(t, env, fmt.Sprintf("user-%d", i))
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u domain.User) {
			defer wg.Done()
			if _, inserted, err := env.repository.Ratings.Upsert(env.ctx, RatingUpsertParams{UserID: u.ID, Media: movie.Key(), Score: 4}); err != nil {
				t.Errorf("upsert failed for %s: %v", u.Username, err)
			} else if !inserted {
				t.Errorf("expected insert for %s", u.Username)
			}
		}(u)
	}
	wg.Wait()

	agg, err := env.repository.Ratings.Aggregate(env.ctx, movie.Key())
	if err != nil {
		t.Fatalf("aggregate after concurrent upserts: %v", err)
	}
	if agg.Count != workers {
		t.Fatalf("agg.Count = %d, want %d", agg.Count, workers)
	}
}

func TestUsersRepository_Conflict(t *testing.T) {
	env := newTestEnv(t)
	user := mustUser(t, env, "dup")
	_, err := env.repository.Users.Create(env.ctx, domain.User{ID: uuid.New(), Username: "dup", Email: "other@example.com", PasswordHash: "x"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, err := env.repository.Users.GetByUsername(env.ctx, "dup")
	if err != nil || got.ID != user.ID {
		t.Fatalf("GetByUsername = %+v, %v", got, err)
	}
	if _, err := env.repository.Users.GetByID(env.ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCelebritiesRepository_Filmography(t *testing.T) {
	env := newTestEnv(t)
	movie := mustMedia(t, env, domain.KindMovie, 1, "Film", 1, false)
	show := mustMedia(t, env, domain.KindShow, 2, "Series", 1, false)

	if err := env.repository.Celebrities.Upsert(env.ctx, domain.Celebrity{ID: 500, Name: "Ada", Popularity: 9, Options: domain.CelebrityOptions{Birthplace: "London"}}); err != nil {
		t.Fatalf("upsert celebrity: %v", err)
	}
	if err := env.repository.Celebrities.AddCast(env.ctx, domain.CastedRole{CelebrityID: 500, Media: movie.Key(), Role: "Lead"}); err != nil {
		t.Fatalf("add cast: %v", err)
	}
	if err := env.repository.Celebrities.AddCast(env.ctx, domain.CastedRole{CelebrityID: 500, Media: movie.Key(), Role: "Lead"}); err != nil {
		t.Fatalf("duplicate cast should be ignored: %v", err)
	}
	if err := env.repository.Celebrities.AddCrew(env.ctx, domain.CrewMember{CelebrityID: 500, Media: show.Key(), Job: "Director"}); err != nil {
		t.Fatalf("add crew: %v", err)
	}
	if err := env.repository.Celebrities.AddCrew(env.ctx, domain.CrewMember{CelebrityID: 500, Media: domain.MediaKey{Kind: domain.KindShow, ID: 404}, Job: "Writer"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("crew on missing show should be ErrNotFound, got %v", err)
	}

	credits, err := env.repository.Celebrities.Filmography(env.ctx, 500)
	if err != nil {
		t.Fatalf("Filmography: %v", err)
	}
	if len(credits) != 2 {
		t.Fatalf("Filmography len = %d, want 2", len(credits))
	}
	if credits[0].Media.Key() != movie.Key() || credits[0].Kind != domain.CreditCast || credits[0].Label != "Lead" {
		t.Fatalf("first credit wrong: %+v", credits[0])
	}
	if credits[1].Media.Key() != show.Key() || credits[1].Kind != domain.CreditCrew {
		t.Fatalf("second credit wrong: %+v", credits[1])
	}

	c, err := env.repository.Celebrities.Get(env.ctx, 500)
	if err != nil || c.Options.Birthplace != "London" {
		t.Fatalf("Get celebrity = %+v, %v", c, err)
	}
}

func BenchmarkRatingsRepositoryUpsert(b *testing.B) {
	env := newTestEnv(b)
	movie := mustMedia(b, env, domain.KindMovie, 1, "Bench Movie", 1, false)
	users := make([]domain.User, b.N)
	for i := range users {
		users[i] = mustUser(b, env, fmt.Sprintf("bench-%d", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, err := env.repository.Ratings.Upsert(env.ctx, RatingUpsertParams{UserID: users[i].ID, Media: movie.Key(), Score: 4})
		if err != nil {
			b.Fatalf("upsert: %v", err)
		}
	}
}
