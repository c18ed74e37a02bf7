package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting of the process.
type Config struct {
	APIBaseURL     string
	CatalogProxy   string
	RequestTimeout time.Duration
	HTTPAddr       string
	TelegramToken  string
	SQLitePath     string
	SearchDebounce time.Duration
	Debug          bool
}

// Load reads .env (when present) and then the process environment.
func Load() (*Config, error) {
	// A missing .env is fine; the variables may come from the environment.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	timeout, err := duration(getenv("REQUEST_TIMEOUT"), 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
	}
	debounce, err := duration(getenv("SEARCH_DEBOUNCE"), 300*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("SEARCH_DEBOUNCE: %w", err)
	}

	debug := false
	if v := strings.TrimSpace(getenv("DEBUG")); v != "" {
		debug, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("DEBUG: %w", err)
		}
	}

	return &Config{
		APIBaseURL:     strings.TrimRight(withDefault(getenv("API_BASE_URL"), "http://localhost:3000"), "/"),
		CatalogProxy:   strings.TrimSpace(getenv("CATALOG_PROXY")),
		RequestTimeout: timeout,
		HTTPAddr:       withDefault(getenv("HTTP_ADDR"), ":8080"),
		TelegramToken:  strings.TrimSpace(getenv("TELEGRAM_TOKEN")),
		SQLitePath:     resolvePath(withDefault(getenv("SQLITE_PATH"), "data/app.db")),
		SearchDebounce: debounce,
		Debug:          debug,
	}, nil
}

func withDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func duration(value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", value)
	}
	return d, nil
}

func resolvePath(p string) string {
	if p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Clean(filepath.Join(cwd, p))
	}
	return p
}
