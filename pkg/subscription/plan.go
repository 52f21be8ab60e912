package subscription

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Plan describes a subscription tier. Plans are immutable after catalog
// construction; the catalog hands out copies.
type Plan struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Price      Money           `yaml:"price"`
	Interval   BillingInterval `yaml:"interval"`
	PriceRef   string          `yaml:"price_ref"`   // provider's price ID; empty means the price is provisioned dynamically at checkout
	Features   []Feature       `yaml:"features"`    // declared feature set
	UpgradesTo []string        `yaml:"upgrades_to"` // plan IDs this tier can upgrade to
}

// IsFree reports whether this is the zero-price default tier.
func (p Plan) IsFree() bool {
	return p.Price.Amount == 0
}

// Catalog is the static registry of subscription tiers, loaded once at
// process start.
type Catalog struct {
	plans []Plan
	index map[string]int
}

// NewCatalog loads plans from src and validates them. Exactly one plan must
// be free, and it must be declared first so listing order puts the default
// tier up front.
func NewCatalog(ctx context.Context, src PlansSource) (*Catalog, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(plans))
	for i, p := range plans {
		index[p.ID] = i
	}

	return &Catalog{plans: slices.Clone(plans), index: index}, nil
}

// List returns all plans in stable declaration order, free tier first.
func (c *Catalog) List() []Plan {
	out := make([]Plan, len(c.plans))
	for i, p := range c.plans {
		out[i] = clonePlan(p)
	}
	return out
}

// Get returns the plan with the given ID or ErrPlanNotFound.
func (c *Catalog) Get(id string) (Plan, error) {
	i, ok := c.index[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return clonePlan(c.plans[i]), nil
}

// Free returns the default zero-price tier.
func (c *Catalog) Free() Plan {
	return clonePlan(c.plans[0])
}

// Top returns the highest tier, which grants every feature.
func (c *Catalog) Top() Plan {
	return clonePlan(c.plans[len(c.plans)-1])
}

func clonePlan(p Plan) Plan {
	p.Features = slices.Clone(p.Features)
	p.UpgradesTo = slices.Clone(p.UpgradesTo)
	return p
}

func validatePlans(plans []Plan) error {
	if len(plans) == 0 {
		return errors.Join(ErrInvalidPlanConfiguration, errors.New("at least one plan is required"))
	}

	seen := make(map[string]struct{}, len(plans))
	freeCount := 0
	for i, p := range plans {
		if p.ID == "" {
			return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan at position %d has no ID", i))
		}
		if _, dup := seen[p.ID]; dup {
			return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("duplicate plan ID %q", p.ID))
		}
		seen[p.ID] = struct{}{}

		if p.Price.Amount < 0 {
			return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan %q has negative price %d", p.ID, p.Price.Amount))
		}
		if p.IsFree() {
			freeCount++
			if i != 0 {
				return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("free plan %q must be declared first", p.ID))
			}
		}
	}

	if freeCount != 1 {
		return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("exactly one free plan is required, got %d", freeCount))
	}
	return nil
}
