package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// typeCache stores one parsed configuration value per concrete type so
// repeated Load calls across the process observe a single snapshot.
type typeCache struct {
	mu     sync.RWMutex
	values map[string]any
	onces  map[string]*sync.Once
}

var (
	cache = &typeCache{
		values: make(map[string]any),
		onces:  make(map[string]*sync.Once),
	}

	loadDotEnv sync.Once
)

// Load populates cfg from environment variables using `env` struct tags.
// Each configuration type is parsed once per process; later calls for the
// same type return the cached value even if the environment changed.
//
// The first call in a process attempts to read a .env file from the working
// directory; a missing file is not an error.
//
// Example:
//
//	type StoreConfig struct {
//		ConnURL string `env:"PG_CONN_URL,required"`
//		MaxConns int32 `env:"PG_MAX_CONNS" envDefault:"10"`
//	}
//
//	var cfg StoreConfig
//	if err := config.Load(&cfg); err != nil {
//		// handle error
//	}
func Load[T any](cfg *T) error {
	if cfg == nil {
		return ErrNilPointer
	}

	loadDotEnv.Do(func() {
		// The .env file is a development convenience and may not exist.
		_ = godotenv.Load()
	})

	typeName := typeNameOf[T]()

	cache.mu.RLock()
	if cached, ok := cache.values[typeName]; ok {
		*cfg = cached.(T)
		cache.mu.RUnlock()
		return nil
	}
	cache.mu.RUnlock()

	cache.mu.Lock()
	once, ok := cache.onces[typeName]
	if !ok {
		once = new(sync.Once)
		cache.onces[typeName] = once
	}
	cache.mu.Unlock()

	var err error
	once.Do(func() {
		if parseErr := env.Parse(cfg); parseErr != nil {
			err = errors.Join(ErrParsingConfig, parseErr)
			return
		}
		cache.mu.Lock()
		cache.values[typeName] = *cfg
		cache.mu.Unlock()
	})
	if err != nil {
		return err
	}

	cache.mu.RLock()
	defer cache.mu.RUnlock()
	cached, ok := cache.values[typeName]
	if !ok {
		// The once already ran and failed in another call.
		return ErrConfigNotLoaded
	}
	*cfg = cached.(T)
	return nil
}

// MustLoad works like Load but panics on failure. Use it for configuration
// the process cannot start without.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load required configuration: %v", err))
	}
}

// typeNameOf returns a string identifier for the generic type T.
func typeNameOf[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return fmt.Sprintf("%T", *new(T))
	}
	return t.String()
}
