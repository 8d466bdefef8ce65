package subscription

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Plan maps one provider price to a tier and its billing terms.
type Plan struct {
	PriceID   string `yaml:"price_id"`
	Tier      Tier   `yaml:"tier"`
	Name      string `yaml:"name"`
	TrialDays int    `yaml:"trial_days"`
	Amount    int64  `yaml:"amount"` // smallest currency unit
	Currency  string `yaml:"currency"`
}

// Catalog is the read-only price-to-plan lookup used when normalizing
// provider events. Build it once at startup; lookups are not guarded.
type Catalog struct {
	byPriceID map[string]Plan
}

// NewCatalog builds a catalog from the given plans. Panics if no plans are
// provided, the catalog is useless empty.
func NewCatalog(plans ...Plan) *Catalog {
	if len(plans) == 0 {
		panic("subscription: at least one plan is required")
	}
	byPriceID := make(map[string]Plan, len(plans))
	for _, p := range plans {
		byPriceID[p.PriceID] = p
	}
	return &Catalog{byPriceID: byPriceID}
}

// LoadCatalog reads a YAML plan list. Every entry must carry a price id and
// a known tier.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Join(ErrInvalidPlanCatalog, err)
	}
	if len(doc.Plans) == 0 {
		return nil, fmt.Errorf("%w: no plans defined", ErrInvalidPlanCatalog)
	}

	for i, p := range doc.Plans {
		if p.PriceID == "" {
			return nil, fmt.Errorf("%w: plan %d has no price_id", ErrInvalidPlanCatalog, i)
		}
		if !p.Tier.Valid() {
			return nil, fmt.Errorf("%w: plan %q has unknown tier %q", ErrInvalidPlanCatalog, p.PriceID, p.Tier)
		}
	}
	return NewCatalog(doc.Plans...), nil
}

// LoadCatalogFile loads a YAML catalog from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidPlanCatalog, err)
	}
	defer func() { _ = f.Close() }()
	return LoadCatalog(f)
}

// PlanFor returns the plan for a provider price id.
func (c *Catalog) PlanFor(priceID string) (Plan, bool) {
	p, ok := c.byPriceID[priceID]
	return p, ok
}

// TierFor returns the tier for a provider price id, or the empty tier when
// the price is unknown.
func (c *Catalog) TierFor(priceID string) Tier {
	return c.byPriceID[priceID].Tier
}

// Plans returns all plans in the catalog.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.byPriceID))
	for _, p := range c.byPriceID {
		out = append(out, p)
	}
	return out
}
