package subscription

import (
	"context"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// PlansSource defines how plans are loaded into the catalog.
// Declaration order is significant: the free tier comes first.
type PlansSource interface {
	Load(ctx context.Context) ([]Plan, error)
}

type inMemSource struct {
	plans []Plan
}

// NewInMemSource returns an in-memory PlansSource with a copy of the given
// plans. Panics if no plans are provided to fail fast on misconfiguration.
func NewInMemSource(plans ...Plan) PlansSource {
	if len(plans) == 0 {
		panic("subscription: at least one plan is required")
	}
	cloned := make([]Plan, len(plans))
	for i, p := range plans {
		cloned[i] = clonePlan(p)
	}
	return &inMemSource{plans: cloned}
}

func (s *inMemSource) Load(ctx context.Context) ([]Plan, error) {
	out := make([]Plan, len(s.plans))
	for i, p := range s.plans {
		out[i] = clonePlan(p)
	}
	return out, nil
}

type yamlSource struct {
	path string
}

// NewYAMLSource returns a PlansSource that reads a plan list from a YAML
// file of the form:
//
//	plans:
//	  - id: free
//	    name: Free
//	    price: {amount: 0, currency: usd}
//	    interval: none
//	    features: [basic_search]
//	  - id: pro
//	    name: Pro Plan
//	    price: {amount: 1000, currency: usd}
//	    interval: monthly
//	    price_ref: price_123
func NewYAMLSource(path string) PlansSource {
	return &yamlSource{path: path}
}

func (s *yamlSource) Load(ctx context.Context) ([]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read plans file %s: %w", s.path, err)
	}

	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse plans file %s: %w", s.path, err)
	}
	return doc.Plans, nil
}

// DefaultPlans returns the built-in two-tier catalog used when no plans
// file is configured.
func DefaultPlans() []Plan {
	return []Plan{
		{
			ID:       "free",
			Name:     "Free",
			Price:    Money{Amount: 0, Currency: "usd"},
			Interval: BillingIntervalNone,
			Features: []Feature{
				FeatureBasicSearch,
			},
			UpgradesTo: []string{"pro"},
		},
		{
			ID:       "pro",
			Name:     "Pro Plan",
			Price:    Money{Amount: 1000, Currency: "usd"},
			Interval: BillingIntervalMonthly,
			Features: slices.Clone(proFeatures),
		},
	}
}

var proFeatures = []Feature{
	FeatureBasicSearch,
	FeatureAdvancedSearch,
	FeatureFileUpload,
	FeatureStockData,
	FeatureWeatherData,
	FeaturePrioritySupport,
	FeatureExportHistory,
}
