package subscription

import "slices"

// Gate makes feature access decisions from a subscription record. It is a
// pure function of its inputs: no network or storage access.
type Gate struct {
	catalog     *Catalog
	premiumOnly map[Feature]struct{}
}

// NewGate creates a feature gate over the catalog. When no premium-only
// features are given, the set defaults to the top tier's features minus
// the free tier's, which is the correct set for a two-tier catalog.
func NewGate(catalog *Catalog, premiumOnly ...Feature) *Gate {
	if catalog == nil {
		panic("subscription: catalog is required")
	}

	if len(premiumOnly) == 0 {
		free := catalog.Free()
		for _, f := range catalog.Top().Features {
			if !slices.Contains(free.Features, f) {
				premiumOnly = append(premiumOnly, f)
			}
		}
	}

	set := make(map[Feature]struct{}, len(premiumOnly))
	for _, f := range premiumOnly {
		set[f] = struct{}{}
	}

	return &Gate{catalog: catalog, premiumOnly: set}
}

// CanAccess reports whether a user with the given subscription record may
// use the feature.
//
// Inactive records are treated as the free tier no matter what plan ID
// they carry. Active records grant the plan's declared feature set; the
// top tier grants everything, including feature names the catalog has
// never heard of. On the free tier, unknown features are denied.
func (g *Gate) CanAccess(rec Record, feature Feature) bool {
	if !rec.IsActive {
		return g.freeAllows(feature)
	}

	plan, err := g.catalog.Get(rec.PlanID)
	if err != nil {
		// Unknown plan IDs degrade to the free tier, never crash.
		return g.freeAllows(feature)
	}

	if plan.ID == g.catalog.Top().ID {
		return true
	}
	return slices.Contains(plan.Features, feature)
}

func (g *Gate) freeAllows(feature Feature) bool {
	if _, premium := g.premiumOnly[feature]; premium {
		return false
	}
	return slices.Contains(g.catalog.Free().Features, feature)
}
