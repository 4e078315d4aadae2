package services

import (
	"math"
	"sort"
	"strings"

	"github.com/meridian-goods/shipping-api/internal/domain"
)

// EligiblePartners filters the registry down to partners that can carry the
// parcel to the destination. Both tests are exclusionary: a partner that
// misses either is dropped, never down-ranked.
func EligiblePartners(partners []domain.CarrierPartner, country string, weightKg float64) []domain.CarrierPartner {
	code := strings.ToUpper(strings.TrimSpace(country))
	eligible := make([]domain.CarrierPartner, 0, len(partners))
	for _, partner := range partners {
		if !partner.Covers(code) {
			continue
		}
		if weightKg > partner.MaxWeightKg {
			continue
		}
		eligible = append(eligible, partner)
	}
	return eligible
}

// RankPartners orders eligible partners by the requested priority:
//
//	price:       ascending by the partner's cost for the natural tier
//	speed:       ascending by the partner's express-tier cost
//	reliability: descending by affiliate commission rate
//
// Ties break on partner id so ordering is reproducible across runs. The
// input slice is not modified.
func RankPartners(partners []domain.CarrierPartner, zone domain.ShippingZone, cfg domain.ZoneConfig, weightKg float64, priority domain.RankPriority) []domain.CarrierPartner {
	ranked := append([]domain.CarrierPartner(nil), partners...)
	naturalTier := NaturalTier(cfg, weightKg)

	less := func(a, b domain.CarrierPartner) bool {
		switch priority {
		case domain.RankBySpeed:
			costA := partnerTierCost(a, zone, cfg, domain.TierExpress)
			costB := partnerTierCost(b, zone, cfg, domain.TierExpress)
			if costA != costB {
				return costA < costB
			}
		case domain.RankByReliability:
			if a.CommissionRate != b.CommissionRate {
				return a.CommissionRate > b.CommissionRate
			}
		default:
			costA := partnerTierCost(a, zone, cfg, naturalTier)
			costB := partnerTierCost(b, zone, cfg, naturalTier)
			if costA != costB {
				return costA < costB
			}
		}
		return a.ID < b.ID
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j])
	})
	return ranked
}

// partnerTierCost resolves the price a partner charges for a tier in a zone,
// preferring the partner's own table and falling back to the zone default.
// Partners with no price at all rank last.
func partnerTierCost(partner domain.CarrierPartner, zone domain.ShippingZone, cfg domain.ZoneConfig, tier domain.PricingTier) int64 {
	if rates, ok := partner.RatesFor(zone); ok {
		if cost, ok := rates.CostFor(tier); ok {
			return cost
		}
	}
	if cost, ok := cfg.Rates.CostFor(tier); ok {
		return cost
	}
	return math.MaxInt64
}
