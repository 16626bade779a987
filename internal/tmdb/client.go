// Package tmdb is a read-only client for The Movie Database v3 API, used to
// seed genres, media and celebrities.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/Clark-Hu/reelrate/internal/metrics"
)

const maxBodyBytes = 8 << 20

// ErrNotFound is returned when upstream has no record for the requested id.
var ErrNotFound = errors.New("tmdb: not found")

// Client is the subset of the TMDB API the seeder uses.
type Client interface {
	MovieGenres(ctx context.Context) ([]Genre, error)
	TVGenres(ctx context.Context) ([]Genre, error)
	PopularMovies(ctx context.Context, page int) (ResultPage, error)
	PopularShows(ctx context.Context, page int) (ResultPage, error)
	MovieDetail(ctx context.Context, id int64) (Movie, error)
	ShowDetail(ctx context.Context, id int64) (Show, error)
	MovieCredits(ctx context.Context, id int64) (Credits, error)
	ShowCredits(ctx context.Context, id int64) (Credits, error)
	Person(ctx context.Context, id int64) (Person, error)
	ImageURL(path string) string
}

// StatusError is returned for unexpected upstream status codes.
type StatusError struct {
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb: %s returned %d", e.Path, e.Status)
}

// HTTPClient implements Client over HTTP. Responses are cached in memory
// according to upstream cache headers, and calls pass through a circuit
// breaker that fails fast after repeated upstream errors.
type HTTPClient struct {
	baseURL   *url.URL
	imageBase string
	apiKey    string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[[]byte]
	logger    zerolog.Logger
}

// NewHTTPClient constructs a TMDB client rooted at baseURL.
func NewHTTPClient(baseURL, apiKey, imageBaseURL string, timeout time.Duration, logger zerolog.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse tmdb url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse tmdb url: %q is not absolute", baseURL)
	}

	cache := httpcache.NewMemoryCacheTransport()
	cache.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	c := &HTTPClient{
		baseURL:   parsed,
		imageBase: strings.TrimRight(imageBaseURL, "/"),
		apiKey:    apiKey,
		client:    &http.Client{Timeout: timeout, Transport: cache},
		logger:    logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:     "tmdb",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return c, nil
}

// MovieGenres lists the movie genre taxonomy.
func (c *HTTPClient) MovieGenres(ctx context.Context) ([]Genre, error) {
	var list genreList
	if err := c.get(ctx, "/genre/movie/list", nil, &list); err != nil {
		return nil, err
	}
	return list.Genres, nil
}

// TVGenres lists the TV genre taxonomy.
func (c *HTTPClient) TVGenres(ctx context.Context) ([]Genre, error) {
	var list genreList
	if err := c.get(ctx, "/genre/tv/list", nil, &list); err != nil {
		return nil, err
	}
	return list.Genres, nil
}

// PopularMovies returns one 1-based page of popular movies.
func (c *HTTPClient) PopularMovies(ctx context.Context, page int) (ResultPage, error) {
	return c.popular(ctx, "/movie/popular", page)
}

// PopularShows returns one 1-based page of popular shows.
func (c *HTTPClient) PopularShows(ctx context.Context, page int) (ResultPage, error) {
	return c.popular(ctx, "/tv/popular", page)
}

func (c *HTTPClient) popular(ctx context.Context, path string, page int) (ResultPage, error) {
	if page < 1 {
		page = 1
	}
	var out ResultPage
	err := c.get(ctx, path, url.Values{"page": {strconv.Itoa(page)}}, &out)
	return out, err
}

// MovieDetail fetches a movie with its release certifications.
func (c *HTTPClient) MovieDetail(ctx context.Context, id int64) (Movie, error) {
	var out Movie
	err := c.get(ctx, "/movie/"+strconv.FormatInt(id, 10), url.Values{"append_to_response": {"release_dates"}}, &out)
	return out, err
}

// ShowDetail fetches a show with its content ratings.
func (c *HTTPClient) ShowDetail(ctx context.Context, id int64) (Show, error) {
	var out Show
	err := c.get(ctx, "/tv/"+strconv.FormatInt(id, 10), url.Values{"append_to_response": {"content_ratings"}}, &out)
	return out, err
}

// MovieCredits fetches the cast and crew of a movie.
func (c *HTTPClient) MovieCredits(ctx context.Context, id int64) (Credits, error) {
	var out Credits
	err := c.get(ctx, "/movie/"+strconv.FormatInt(id, 10)+"/credits", nil, &out)
	return out, err
}

// ShowCredits fetches the cast and crew of a show.
func (c *HTTPClient) ShowCredits(ctx context.Context, id int64) (Credits, error) {
	var out Credits
	err := c.get(ctx, "/tv/"+strconv.FormatInt(id, 10)+"/credits", nil, &out)
	return out, err
}

// Person fetches a celebrity profile.
func (c *HTTPClient) Person(ctx context.Context, id int64) (Person, error) {
	var out Person
	err := c.get(ctx, "/person/"+strconv.FormatInt(id, 10), nil, &out)
	return out, err
}

// ImageURL turns an image path into an absolute URL. Empty paths stay empty.
func (c *HTTPClient) ImageURL(path string) string {
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.imageBase + path
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx, path, params)
	})
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.UpstreamRequests.WithLabelValues("rejected").Inc()
		return fmt.Errorf("tmdb: %s: %w", path, err)
	default:
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode tmdb %s: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) fetch(ctx context.Context, path string, params url.Values) ([]byte, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("api_key", c.apiKey)
	q.Set("language", "en-US")
	endpoint := *c.baseURL
	endpoint.Path = c.baseURL.Path + path
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		outcome := "ok"
		if resp.Header.Get(httpcache.XFromCache) != "" {
			outcome = "cached"
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			metrics.UpstreamRequests.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("read tmdb %s: %w", path, err)
		}
		metrics.UpstreamRequests.WithLabelValues(outcome).Inc()
		return raw, nil
	case http.StatusNotFound:
		metrics.UpstreamRequests.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	default:
		metrics.UpstreamRequests.WithLabelValues("error").Inc()
		c.logger.Warn().Str("path", path).Int("status", resp.StatusCode).Msg("unexpected tmdb status")
		return nil, &StatusError{Path: path, Status: resp.StatusCode}
	}
}
