// Command tmdb-mock serves a canned subset of the TMDB v3 API for local
// seeding runs and contract tests. Paths missing from the fixture answer 404.
package main

import (
	_ "embed"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/reelrate/internal/logging"
)

//go:embed fixture.json
var defaultFixture []byte

func main() {
	var (
		port     = flag.String("port", "9099", "port to listen on")
		data     = flag.String("data", "", "path to a fixture file; the embedded fixture is used when empty")
		prefix   = flag.String("prefix", "/3", "path prefix mirrored from the real API")
		logLevel = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logger := logging.New(logging.Config{Level: *logLevel, Format: "console"}, "tmdb-mock")

	raw := defaultFixture
	if *data != "" {
		file, err := os.ReadFile(*data)
		if err != nil {
			logger.Fatal().Err(err).Msg("read mock data")
		}
		raw = file
	}

	fixture, err := loadFixture(raw)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse mock data")
	}

	addr := ":" + *port
	logger.Info().Str("addr", addr).Int("entries", len(fixture)).Msg("mock tmdb listening")
	if err := http.ListenAndServe(addr, newRouter(fixture, *prefix, logger)); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func loadFixture(raw []byte) (map[string]json.RawMessage, error) {
	var fixture map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fixture); err != nil {
		return nil, err
	}
	return fixture, nil
}

func newRouter(fixture map[string]json.RawMessage, prefix string, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(strings.TrimRight(prefix, "/")+"/*", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("api_key") == "" {
			writeStatus(w, http.StatusUnauthorized, "Invalid API key: You must be granted a valid key.")
			return
		}
		path := "/" + chi.URLParam(req, "*")
		entry, ok := fixture[path]
		if !ok {
			logger.Debug().Str("path", path).Msg("no fixture")
			writeStatus(w, http.StatusNotFound, "The resource you requested could not be found.")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=60")
		_, _ = w.Write(entry)
	})
	return r
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success":        false,
		"status_message": message,
	})
}
