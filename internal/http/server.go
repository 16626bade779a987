package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/reelrate/internal/auth"
	"github.com/Clark-Hu/reelrate/internal/config"
	"github.com/Clark-Hu/reelrate/internal/metrics"
	"github.com/Clark-Hu/reelrate/internal/rating"
	"github.com/Clark-Hu/reelrate/internal/recommend"
	"github.com/Clark-Hu/reelrate/internal/repository"
	"github.com/Clark-Hu/reelrate/internal/store"
)

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg         config.Config
	store       *store.Store
	repo        *repository.Repository
	ratings     *rating.Aggregator
	recommender *recommend.Assembler
	accounts    *auth.Service
	tokens      *auth.Tokens
	logger      zerolog.Logger
	router      chi.Router
	httpSrv     *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, st *store.Store, logger zerolog.Logger) (*Server, error) {
	tokens, err := auth.NewTokens(cfg.JWTSecret, time.Duration(cfg.JWTTTLMinutes)*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("configure tokens: %w", err)
	}
	repo := repository.New(st)

	s := &Server{
		cfg:     cfg,
		store:   st,
		repo:    repo,
		ratings: rating.NewAggregator(st, logger),
		recommender: recommend.NewAssembler(repo.Media, recommend.Config{
			FallbackPageSize:  cfg.FeedPageSize,
			FallbackOffset:    cfg.FeedOffset,
			MaxReferences:     cfg.RecommendMaxReferences,
			CandidatePoolSize: cfg.RecommendPoolSize,
			Limit:             cfg.RecommendLimit,
		}, logger),
		accounts: auth.NewService(repo.Users, tokens, logger),
		tokens:   tokens,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware)
	s.router = r
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/auth", func(r chi.Router) {
		if s.cfg.AuthRateLimit > 0 {
			r.Use(httprate.Limit(s.cfg.AuthRateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					s.respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
				}),
			))
		}
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(s.tokens, s.writeAuthError))

		r.Get("/genres", s.handleListGenres)
		for _, kind := range []string{"movies", "shows"} {
			r.Route("/"+kind, func(r chi.Router) {
				r.Get("/", s.handleListMedia(kind))
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetMedia(kind))
					r.Get("/similar", s.handleSimilarMedia(kind))
				})
			})
		}
		r.Route("/celebrities", func(r chi.Router) {
			r.Get("/", s.handleListCelebrities)
			r.Get("/{id}", s.handleGetCelebrity)
		})
		r.Get("/recommendations", s.handleRecommendations)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(s.writeAuthError))
			r.Post("/ratings", s.handleUpsertRating)
			r.Put("/ratings", s.handleUpsertRating)
			r.Delete("/ratings/{id}", s.handleDeleteRating)
			r.Get("/me/ratings", s.handleMyRatings)
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("health check failed")
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Database unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger writes one structured line per request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			event := logger.Info()
			if status >= http.StatusInternalServerError {
				event = logger.Error()
			}
			event.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
