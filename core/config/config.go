package config

import (
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	dotenvOnce sync.Once

	cacheMu sync.RWMutex
	cache   = map[reflect.Type]any{}
)

// loadDotenv loads a .env file from the working directory once per process.
// A missing file is not an error; this package is usable in environments
// that set variables directly (containers, CI).
func loadDotenv() {
	dotenvOnce.Do(func() {
		if _, err := os.Stat(".env"); err == nil {
			_ = godotenv.Load()
		}
	})
}

// Load parses environment variables into cfg using the `env` struct tag
// convention and caches the result by the pointed-to type. Subsequent calls
// for the same type return the cached value without touching the environment
// again, so Load is safe to call repeatedly from different call sites.
func Load[T any](cfg *T) error {
	loadDotenv()

	t := reflect.TypeOf(*cfg)

	cacheMu.RLock()
	if cached, ok := cache[t]; ok {
		cacheMu.RUnlock()
		*cfg = cached.(T)
		return nil
	}
	cacheMu.RUnlock()

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", t, err)
	}

	cacheMu.Lock()
	cache[t] = *cfg
	cacheMu.Unlock()

	return nil
}

// MustLoad is Load but panics on failure, intended for startup-time
// configuration where there is no reasonable way to continue without it.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}

// Reset clears the cached value for T, forcing the next Load to re-read the
// environment. Intended for tests that mutate environment variables between
// cases.
func Reset[T any]() {
	var zero T
	t := reflect.TypeOf(zero)

	cacheMu.Lock()
	delete(cache, t)
	cacheMu.Unlock()
}
