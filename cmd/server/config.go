package main

import (
	"time"

	"github.com/dmitrymomot/subsync/pkg/clientip"
	"github.com/dmitrymomot/subsync/pkg/ratelimiter"
)

type appConfig struct {
	Env         string        `env:"APP_ENV" envDefault:"development"`
	Name        string        `env:"APP_NAME" envDefault:"subsync"`
	Provider    string        `env:"BILLING_PROVIDER" envDefault:"stripe"`
	CatalogPath string        `env:"BILLING_CATALOG_PATH" envDefault:"plans.yaml"`
	DedupeTTL   time.Duration `env:"BILLING_DEDUPE_TTL" envDefault:"72h"`

	ClientIP          clientip.Config
	CheckoutRateLimit ratelimiter.Config `envPrefix:"CHECKOUT_RATE_LIMIT_"`
}
