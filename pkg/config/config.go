// Package config loads typed configuration from environment variables.
//
// Structs declare their variables with caarlos0/env tags. A .env file in the
// working directory is loaded once, before the first Load, without overriding
// variables already set in the process environment.
//
//	var cfg billing.StripeConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrParsingConfig   = errors.New("failed to parse environment variables into config")
	ErrLoadingEnvFile  = errors.New("failed to load env file")
	ErrNilPointer      = errors.New("nil pointer provided to config loader")
	ErrConfigNotLoaded = errors.New("configuration has not been loaded")
)

var (
	// cache holds one parsed value per config type.
	cache      sync.Map
	dotenvOnce sync.Once
)

// Load parses the environment into v. The first successful parse of a type is
// cached and returned to every later caller, so repeated loads are cheap and
// consistent. Failures are not cached.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenvOnce.Do(func() {
		// A missing .env file is the normal case outside development.
		_ = godotenv.Load()
	})

	key := reflect.TypeFor[T]()
	if cached, ok := cache.Load(key); ok {
		*v = cached.(T)
		return nil
	}

	if err := Parse(v); err != nil {
		return err
	}

	actual, _ := cache.LoadOrStore(key, *v)
	*v = actual.(T)
	return nil
}

// MustLoad is like Load but panics on error. Use it for configuration the
// process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// Parse parses the environment into v without touching the cache.
func Parse[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// LoadEnv loads the given env files into the process environment. Variables
// that are already set win; among files, the first one to define a variable wins.
func LoadEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

// Cached returns the cached value for T, or ErrConfigNotLoaded.
func Cached[T any]() (T, error) {
	if cached, ok := cache.Load(reflect.TypeFor[T]()); ok {
		return cached.(T), nil
	}
	var zero T
	return zero, ErrConfigNotLoaded
}

// ResetCache drops every cached config. Intended for tests.
func ResetCache() {
	cache.Clear()
}
