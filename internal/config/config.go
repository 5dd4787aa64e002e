// Package config holds command line and environment configuration for the
// showguessr binaries.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config configures the game server.
type Config struct {
	Bind       string
	Port       int
	CORSOrigin string
	PublicURL  string
	LogLevel   string
	LogJSON    bool

	Intermission       time.Duration
	FetchTimeout       time.Duration
	RoundStartAttempts int

	TMDBAPIKey  string
	TMDBBaseURL string
	AniListURL  string

	// RedisAddr enables history publishing when set.
	RedisAddr    string
	RedisDB      int
	HistoryQueue string
}

// RegisterFlags declares the server flags on fs, writing into c.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: SHOWGUESSR_BIND)")
	fs.IntVarP(&c.Port, "port", "p", 8080, "port to listen on (env: SHOWGUESSR_PORT)")
	fs.StringVar(&c.CORSOrigin, "cors-origin", "*", "value of Access-Control-Allow-Origin (env: SHOWGUESSR_CORS_ORIGIN)")
	fs.StringVar(&c.PublicURL, "public-url", "", "base URL of the web client used in join QR codes (env: SHOWGUESSR_PUBLIC_URL)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "log level (env: SHOWGUESSR_LOG_LEVEL)")
	fs.BoolVar(&c.LogJSON, "log-json", false, "log as JSON (env: SHOWGUESSR_LOG_JSON)")
	fs.DurationVar(&c.Intermission, "intermission", 5*time.Second, "pause between rounds (env: SHOWGUESSR_INTERMISSION)")
	fs.DurationVar(&c.FetchTimeout, "fetch-timeout", 10*time.Second, "content provider request timeout (env: SHOWGUESSR_FETCH_TIMEOUT)")
	fs.IntVar(&c.RoundStartAttempts, "round-start-attempts", 3, "content fetch attempts before a game is aborted (env: SHOWGUESSR_ROUND_START_ATTEMPTS)")
	fs.StringVar(&c.TMDBAPIKey, "tmdb-api-key", "", "TMDB v3 API key; built-in shows are used without one (env: SHOWGUESSR_TMDB_API_KEY)")
	fs.StringVar(&c.TMDBBaseURL, "tmdb-base-url", "https://api.themoviedb.org/3", "TMDB API base URL (env: SHOWGUESSR_TMDB_BASE_URL)")
	fs.StringVar(&c.AniListURL, "anilist-url", "https://graphql.anilist.co", "AniList GraphQL endpoint (env: SHOWGUESSR_ANILIST_URL)")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "Redis address for game history; disabled when empty (env: SHOWGUESSR_REDIS_ADDR)")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "Redis database index (env: SHOWGUESSR_REDIS_DB)")
	fs.StringVar(&c.HistoryQueue, "history-queue", "showguessr_history", "Redis list for game history (env: SHOWGUESSR_HISTORY_QUEUE)")
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.Intermission <= 0 {
		return errors.New("--intermission must be positive")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("--fetch-timeout must be positive")
	}
	if c.RoundStartAttempts < 1 {
		return fmt.Errorf("--round-start-attempts must be at least 1: %d", c.RoundStartAttempts)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	if c.PublicURL != "" {
		if u, err := url.Parse(c.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("--public-url must be an absolute URL: %q", c.PublicURL)
		}
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// BindEnv lets PREFIX_FLAG_NAME environment variables fill in any flag not set
// on the command line.
func BindEnv(fs *pflag.FlagSet, prefix string) {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

// NewLogger builds the process logger.
func NewLogger(level string, json bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	if json {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
