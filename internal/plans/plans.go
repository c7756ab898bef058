package plans

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	TierStarter    = "starter"
	TierGrowth     = "growth"
	TierPro        = "pro"
	TierEnterprise = "enterprise"

	// TierDefault applies to tenants without a known subscription tier.
	TierDefault = "default"
)

// Plan describes the quota and credit allotment of one subscription tier.
type Plan struct {
	Tier           string
	PerMinute      int64
	PerHour        int64
	MonthlyCredits int64
	OveragePrice   decimal.Decimal
}

// Catalog resolves tiers to plans. It is immutable after construction.
type Catalog struct {
	plans    map[string]Plan
	currency string
}

var builtin = []Plan{
	{Tier: TierStarter, PerMinute: 10, PerHour: 200, MonthlyCredits: 100},
	{Tier: TierGrowth, PerMinute: 30, PerHour: 1000, MonthlyCredits: 500},
	{Tier: TierPro, PerMinute: 60, PerHour: 3000, MonthlyCredits: 1500},
	{Tier: TierEnterprise, PerMinute: 120, PerHour: 10000, MonthlyCredits: 5000},
}

var defaultPlan = Plan{Tier: TierDefault, PerMinute: 5, PerHour: 50}

// Options carries raw config overrides.
type Options struct {
	// RateLimits is a comma separated list of `tier:perMinute/perHour`.
	RateLimits string
	// OveragePrices is a comma separated list of `tier:price`.
	OveragePrices string
	Currency      string
}

// NewCatalog returns the built-in tier table with the provided overrides applied.
func NewCatalog(opts Options) (*Catalog, error) {
	plans := make(map[string]Plan, len(builtin)+1)
	for _, p := range builtin {
		plans[p.Tier] = p
	}
	plans[TierDefault] = defaultPlan

	if err := applyRateLimits(plans, opts.RateLimits); err != nil {
		return nil, err
	}
	if err := applyOveragePrices(plans, opts.OveragePrices); err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(opts.Currency))
	if currency == "" {
		currency = "USD"
	}
	return &Catalog{plans: plans, currency: currency}, nil
}

// Default returns the catalog with no overrides.
func Default() *Catalog {
	c, _ := NewCatalog(Options{})
	return c
}

// Lookup returns the plan for a known paid tier.
func (c *Catalog) Lookup(tier string) (Plan, bool) {
	key := normalize(tier)
	if key == "" || key == TierDefault {
		return Plan{}, false
	}
	p, ok := c.plans[key]
	return p, ok
}

// ForTier returns the plan for tier, falling back to the default plan.
func (c *Catalog) ForTier(tier string) Plan {
	if p, ok := c.Lookup(tier); ok {
		return p
	}
	return c.plans[TierDefault]
}

// Currency is the ISO code overage prices are expressed in.
func (c *Catalog) Currency() string {
	return c.currency
}

func applyRateLimits(plans map[string]Plan, raw string) error {
	for tier, value := range pairs(raw) {
		limits := strings.SplitN(value, "/", 2)
		if len(limits) != 2 {
			return fmt.Errorf("rate limit for tier %q must be perMinute/perHour", tier)
		}
		perMinute, err := strconv.ParseInt(strings.TrimSpace(limits[0]), 10, 64)
		if err != nil || perMinute <= 0 {
			return fmt.Errorf("invalid per-minute limit for tier %q", tier)
		}
		perHour, err := strconv.ParseInt(strings.TrimSpace(limits[1]), 10, 64)
		if err != nil || perHour <= 0 {
			return fmt.Errorf("invalid per-hour limit for tier %q", tier)
		}
		p := plans[tier]
		p.Tier = tier
		p.PerMinute = perMinute
		p.PerHour = perHour
		plans[tier] = p
	}
	return nil
}

func applyOveragePrices(plans map[string]Plan, raw string) error {
	for tier, value := range pairs(raw) {
		price, err := decimal.NewFromString(value)
		if err != nil || !price.IsPositive() {
			return fmt.Errorf("invalid overage price for tier %q", tier)
		}
		p, ok := plans[tier]
		if !ok || tier == TierDefault {
			return fmt.Errorf("overage price for unknown tier %q", tier)
		}
		p.OveragePrice = price
		plans[tier] = p
	}
	return nil
}

func pairs(raw string) map[string]string {
	out := map[string]string{}
	for _, item := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		key = normalize(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func normalize(tier string) string {
	return strings.ToLower(strings.TrimSpace(tier))
}
