package services

import (
	"github.com/meridian-goods/shipping-api/internal/domain"
)

// Delivery windows per tier, in business days. The free window matches the
// heavy window: free shipping rides the slowest paid service.
var tierEstimates = map[domain.PricingTier]domain.DeliveryEstimate{
	domain.TierStandard: {MinDays: 2, MaxDays: 5},
	domain.TierExpress:  {MinDays: 1, MaxDays: 2},
	domain.TierHeavy:    {MinDays: 3, MaxDays: 7},
	domain.TierFree:     {MinDays: 3, MaxDays: 7},
}

// DeliveryEstimateFor returns the delivery window for a tier.
func DeliveryEstimateFor(tier domain.PricingTier) domain.DeliveryEstimate {
	if estimate, ok := tierEstimates[tier]; ok {
		return estimate
	}
	return tierEstimates[domain.TierStandard]
}

// NaturalTier selects the paid tier implied by parcel weight. The zone's
// threshold table is an ordered list of (ceiling, tier) pairs; the first
// ceiling the weight is strictly below wins, so a boundary weight escalates
// to the next tier. Weights at or beyond every ceiling land on the heavy
// tier.
func NaturalTier(cfg domain.ZoneConfig, weightKg float64) domain.PricingTier {
	if weightKg < 0 {
		weightKg = 0
	}
	for _, threshold := range cfg.Thresholds {
		if weightKg < threshold.CeilingKg {
			return threshold.Tier
		}
	}
	return domain.TierHeavy
}

// TierPricing is the per-zone pricing outcome for one parcel and order total.
type TierPricing struct {
	Natural     domain.PricingTier
	Costs       map[domain.PricingTier]int64
	FreeOffered bool
}

// CostFor returns the cost for a tier; the free tier is always zero when
// offered.
func (p TierPricing) CostFor(tier domain.PricingTier) (int64, bool) {
	if tier == domain.TierFree {
		if p.FreeOffered {
			return 0, true
		}
		return 0, false
	}
	cost, ok := p.Costs[tier]
	return cost, ok
}

// ComputeTierPricing prices every offered tier for the zone. The natural tier
// is always priced; free is offered in parallel, never instead, when the
// order total meets the zone's threshold.
func ComputeTierPricing(cfg domain.ZoneConfig, weightKg float64, orderTotal int64) TierPricing {
	pricing := TierPricing{
		Natural: NaturalTier(cfg, weightKg),
		Costs:   make(map[domain.PricingTier]int64, len(cfg.Rates.Costs)),
	}
	for tier, cost := range cfg.Rates.Costs {
		if tier == domain.TierFree {
			continue
		}
		pricing.Costs[tier] = cost
	}
	if cfg.Rates.FreeThreshold > 0 && orderTotal >= cfg.Rates.FreeThreshold {
		pricing.FreeOffered = true
	}
	return pricing
}
