package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port             string
	DBURL            string
	JWTSecret        string
	JWTTTLMinutes    int
	ReadTimeoutSecs  int
	WriteTimeoutSecs int
	IdleTimeoutSecs  int

	DBMaxConns        int
	DBMinConns        int
	DBMaxIdleSecs     int
	DBMaxLifeSecs     int
	DBConnTimeoutSecs int
	DBStatementCache  int

	TMDBAPIKey       string
	TMDBBaseURL      string
	TMDBImageBaseURL string
	TMDBTimeoutSecs  int

	LogLevel  string
	LogFormat string

	CORSAllowedOrigins []string
	AuthRateLimit      int

	FeedPageSize           int
	FeedOffset             int
	RecommendLimit         int
	RecommendMaxReferences int
	RecommendPoolSize      int
}

// Load reads configuration from environment variables, applying defaults and validation.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Port:             getEnv("PORT", "8080"),
		DBURL:            os.Getenv("DB_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTTTLMinutes:    getEnvInt("JWT_TTL_MINUTES", 24*60),
		ReadTimeoutSecs:  getEnvInt("SERVER_READ_TIMEOUT", 15),
		WriteTimeoutSecs: getEnvInt("SERVER_WRITE_TIMEOUT", 15),
		IdleTimeoutSecs:  getEnvInt("SERVER_IDLE_TIMEOUT", 60),

		DBMaxConns:        getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:        getEnvInt("DB_MIN_CONNS", 2),
		DBMaxIdleSecs:     getEnvInt("DB_MAX_CONN_IDLE_SECS", 300),
		DBMaxLifeSecs:     getEnvInt("DB_MAX_CONN_LIFETIME_SECS", 3600),
		DBConnTimeoutSecs: getEnvInt("DB_CONN_TIMEOUT_SECS", 10),
		DBStatementCache:  getEnvInt("DB_STATEMENT_CACHE_CAPACITY", 256),

		TMDBAPIKey:       os.Getenv("TMDB_API_KEY"),
		TMDBBaseURL:      getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBImageBaseURL: getEnv("TMDB_IMAGE_BASE_URL", "https://image.tmdb.org/t/p/original"),
		TMDBTimeoutSecs:  getEnvInt("TMDB_TIMEOUT_SECS", 10),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		AuthRateLimit:      getEnvInt("AUTH_RATE_LIMIT", 20),

		FeedPageSize:           getEnvInt("FEED_PAGE_SIZE", 20),
		FeedOffset:             getEnvInt("FEED_OFFSET", 0),
		RecommendLimit:         getEnvInt("RECOMMEND_LIMIT", 20),
		RecommendMaxReferences: getEnvInt("RECOMMEND_MAX_REFERENCES", 10),
		RecommendPoolSize:      getEnvInt("RECOMMEND_POOL_SIZE", 50),
	}

	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.JWTTTLMinutes <= 0 {
		return Config{}, fmt.Errorf("JWT_TTL_MINUTES must be positive")
	}
	if cfg.TMDBTimeoutSecs <= 0 {
		return Config{}, fmt.Errorf("TMDB_TIMEOUT_SECS must be positive")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.FeedPageSize <= 0 {
		return Config{}, fmt.Errorf("FEED_PAGE_SIZE must be positive")
	}
	if cfg.FeedOffset < 0 {
		return Config{}, fmt.Errorf("FEED_OFFSET must be non-negative")
	}
	if cfg.RecommendLimit <= 0 {
		return Config{}, fmt.Errorf("RECOMMEND_LIMIT must be positive")
	}
	if cfg.RecommendMaxReferences < 0 {
		return Config{}, fmt.Errorf("RECOMMEND_MAX_REFERENCES must be non-negative")
	}
	if cfg.RecommendPoolSize <= 0 {
		return Config{}, fmt.Errorf("RECOMMEND_POOL_SIZE must be positive")
	}
	if cfg.AuthRateLimit < 0 {
		return Config{}, fmt.Errorf("AUTH_RATE_LIMIT must be non-negative")
	}

	return cfg, nil
}

// RequireTMDB checks the settings only the seeding command needs.
func (c Config) RequireTMDB() error {
	if c.TMDBAPIKey == "" {
		return fmt.Errorf("TMDB_API_KEY is required")
	}
	if c.TMDBBaseURL == "" {
		return fmt.Errorf("TMDB_BASE_URL is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
