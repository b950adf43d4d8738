package billing

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Unlimited indicates no quota ceiling (-1 chosen for SQL compatibility).
const Unlimited int64 = -1

// Plan is a catalog entry. PriceID must match the payment provider's price identifier.
type Plan struct {
	PriceID string `yaml:"price_id"`
	Name    string `yaml:"name"`
	Quota   int64  `yaml:"quota"` // -1 represents unlimited
}

// IsUnlimited reports whether the plan has no quota ceiling.
func (p Plan) IsUnlimited() bool {
	return p.Quota == Unlimited
}

// Catalog is the static price ID to plan mapping. It is read-only after construction
// and safe for concurrent use.
type Catalog struct {
	plans map[string]Plan
}

// NewCatalog builds a catalog from the given plans.
// Returns ErrInvalidCatalog for empty identifiers, bad quotas or duplicate price IDs.
func NewCatalog(plans ...Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, errors.Join(ErrInvalidCatalog, errors.New("at least one plan is required"))
	}

	c := &Catalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		p.PriceID = strings.TrimSpace(p.PriceID)
		p.Name = strings.TrimSpace(p.Name)

		if p.PriceID == "" {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("plan %q has no price ID", p.Name))
		}
		if p.Name == "" {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("plan with price %s has no name", p.PriceID))
		}
		if p.Quota < Unlimited {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("plan %s has negative quota: %d", p.PriceID, p.Quota))
		}
		if _, exists := c.plans[p.PriceID]; exists {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("duplicate price ID %s", p.PriceID))
		}
		c.plans[p.PriceID] = p
	}

	return c, nil
}

// MustCatalog is like NewCatalog but panics on invalid input.
func MustCatalog(plans ...Plan) *Catalog {
	c, err := NewCatalog(plans...)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the plan for a provider price ID.
func (c *Catalog) Lookup(priceID string) (Plan, bool) {
	p, ok := c.plans[priceID]
	return p, ok
}

// Plans returns a copy of the catalog keyed by price ID.
func (c *Catalog) Plans() map[string]Plan {
	return maps.Clone(c.plans)
}

// Len returns the number of plans in the catalog.
func (c *Catalog) Len() int {
	return len(c.plans)
}

type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

// LoadCatalogFile reads a YAML plan catalog:
//
//	plans:
//	  - price_id: price_starter_monthly
//	    name: starter
//	    quota: 100
func LoadCatalogFile(_ context.Context, path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes a YAML plan catalog document.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}
	return NewCatalog(f.Plans...)
}
