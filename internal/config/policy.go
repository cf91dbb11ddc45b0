package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/desthealth/claims/pkg/money"
)

// Policy holds business assumptions that are deliberately kept out of code:
// they change per deployment and none of them is a regulatory figure.
type Policy struct {
	// DefaultAllowedRatio is applied to the cash price when a verified plan
	// carries no estimated allowed amount.
	DefaultAllowedRatio decimal.Decimal
	// BenefitsValidityDays is how long a verified benefits snapshot stays usable.
	BenefitsValidityDays int
	// DeadlineWarningDays is the window in which a deadline counts as approaching.
	DeadlineWarningDays int
	// Tiers maps a subscription tier name to its monthly price.
	Tiers map[string]money.Cents
}

type policyFile struct {
	DefaultAllowedRatio  string           `yaml:"default_allowed_ratio"`
	BenefitsValidityDays *int             `yaml:"benefits_validity_days"`
	DeadlineWarningDays  *int             `yaml:"deadline_warning_days"`
	Tiers                map[string]int64 `yaml:"tiers"`
}

// DefaultPolicy returns the built-in policy used when no POLICY_FILE is set.
func DefaultPolicy() Policy {
	return Policy{
		DefaultAllowedRatio:  decimal.RequireFromString("0.70"),
		BenefitsValidityDays: 90,
		DeadlineWarningDays:  7,
		Tiers: map[string]money.Cents{
			"basic":   2900,
			"premium": 9900,
		},
	}
}

// LoadPolicy reads a YAML policy file. Keys that are absent keep their default.
// An empty path returns DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy file %s: %w", path, err)
	}

	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return p, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	if f.DefaultAllowedRatio != "" {
		r, err := decimal.NewFromString(f.DefaultAllowedRatio)
		if err != nil {
			return p, fmt.Errorf("default_allowed_ratio: %w", err)
		}
		p.DefaultAllowedRatio = r
	}
	if f.BenefitsValidityDays != nil {
		p.BenefitsValidityDays = *f.BenefitsValidityDays
	}
	if f.DeadlineWarningDays != nil {
		p.DeadlineWarningDays = *f.DeadlineWarningDays
	}
	if len(f.Tiers) > 0 {
		p.Tiers = make(map[string]money.Cents, len(f.Tiers))
		for name, price := range f.Tiers {
			p.Tiers[name] = money.Cents(price)
		}
	}

	return p, p.Validate()
}

// Validate rejects policies that would make the estimator or deadline math
// meaningless.
func (p Policy) Validate() error {
	if p.DefaultAllowedRatio.LessThanOrEqual(decimal.Zero) || p.DefaultAllowedRatio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("default_allowed_ratio must be in (0, 1], got %s", p.DefaultAllowedRatio)
	}
	if p.BenefitsValidityDays <= 0 {
		return fmt.Errorf("benefits_validity_days must be positive, got %d", p.BenefitsValidityDays)
	}
	if p.DeadlineWarningDays < 0 {
		return fmt.Errorf("deadline_warning_days must not be negative, got %d", p.DeadlineWarningDays)
	}
	for name, price := range p.Tiers {
		if price <= 0 {
			return fmt.Errorf("tier %q must have a positive price", name)
		}
	}
	return nil
}
