package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/subsync/pkg/billing"
	"github.com/dmitrymomot/subsync/pkg/config"
)

// newProvider loads the configuration of the selected provider only, so the
// other provider's secrets are not required.
func newProvider(name string, log *slog.Logger) (billing.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "stripe":
		var cfg billing.StripeConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		return billing.NewStripeProvider(cfg, billing.WithStripeLogger(log))
	case "paddle":
		var cfg billing.PaddleConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		return billing.NewPaddleProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", billing.ErrUnknownProvider, name)
	}
}
