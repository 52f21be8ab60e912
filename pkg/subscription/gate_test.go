package subscription_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/pkg/subscription"
)

func testCatalog(t *testing.T) *subscription.Catalog {
	t.Helper()

	catalog, err := subscription.NewCatalog(context.Background(), subscription.NewInMemSource(subscription.DefaultPlans()...))
	require.NoError(t, err)
	return catalog
}

func TestGateCanAccess(t *testing.T) {
	t.Parallel()

	gate := subscription.NewGate(testCatalog(t))

	activePro := subscription.Record{IsActive: true, PlanID: "pro", SubscriptionID: "sub_1"}
	inactivePro := subscription.Record{IsActive: false, PlanID: "pro", SubscriptionID: "sub_1"}
	free := subscription.FreeRecord("free")

	tests := []struct {
		name    string
		rec     subscription.Record
		feature subscription.Feature
		want    bool
	}{
		{"active pro gets premium feature", activePro, subscription.FeatureFileUpload, true},
		{"active pro gets free feature", activePro, subscription.FeatureBasicSearch, true},
		{"active pro gets unknown feature", activePro, subscription.Feature("beta_thing"), true},
		{"free gets free feature", free, subscription.FeatureBasicSearch, true},
		{"free denied premium feature", free, subscription.FeatureFileUpload, false},
		{"free denied unknown feature", free, subscription.Feature("beta_thing"), false},
		{"inactive record never grants premium", inactivePro, subscription.FeatureAdvancedSearch, false},
		{"inactive record keeps free features", inactivePro, subscription.FeatureBasicSearch, true},
		{"active record with stale plan ID degrades to free", subscription.Record{IsActive: true, PlanID: "legacy-gold"}, subscription.FeatureStockData, false},
		{"active record with stale plan ID keeps free features", subscription.Record{IsActive: true, PlanID: "legacy-gold"}, subscription.FeatureBasicSearch, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, gate.CanAccess(tt.rec, tt.feature))
		})
	}
}

func TestGateExplicitPremiumSet(t *testing.T) {
	t.Parallel()

	// Only file_upload is marked premium, so a free user keeps every
	// other feature the free tier declares.
	gate := subscription.NewGate(testCatalog(t), subscription.FeatureFileUpload)
	free := subscription.FreeRecord("free")

	assert.False(t, gate.CanAccess(free, subscription.FeatureFileUpload))
	assert.True(t, gate.CanAccess(free, subscription.FeatureBasicSearch))
}

func TestGateNilCatalogPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { subscription.NewGate(nil) })
}
