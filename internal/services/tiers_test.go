package services

import (
	"testing"

	"github.com/meridian-goods/shipping-api/internal/domain"
)

func domesticConfig() domain.ZoneConfig {
	return domain.ZoneConfig{
		Zone: domain.ZoneDomestic,
		Thresholds: []domain.TierThreshold{
			{CeilingKg: 2, Tier: domain.TierStandard},
			{CeilingKg: 5, Tier: domain.TierExpress},
		},
		Rates: domain.TierRateTable{
			Costs: map[domain.PricingTier]int64{
				domain.TierStandard: 500,
				domain.TierExpress:  900,
				domain.TierHeavy:    1500,
			},
			FreeThreshold: 5000,
		},
	}
}

func TestNaturalTierBoundaries(t *testing.T) {
	cfg := domesticConfig()

	cases := []struct {
		weight float64
		want   domain.PricingTier
	}{
		{weight: 0, want: domain.TierStandard},
		{weight: 0.5, want: domain.TierStandard},
		{weight: 1.99, want: domain.TierStandard},
		{weight: 2, want: domain.TierExpress},
		{weight: 4.99, want: domain.TierExpress},
		{weight: 5, want: domain.TierHeavy},
		{weight: 50, want: domain.TierHeavy},
		{weight: -1, want: domain.TierStandard},
	}
	for _, tc := range cases {
		if got := NaturalTier(cfg, tc.weight); got != tc.want {
			t.Errorf("NaturalTier(%v) = %s, want %s", tc.weight, got, tc.want)
		}
	}
}

func TestComputeTierPricingOffersFreeInParallel(t *testing.T) {
	cfg := domesticConfig()

	pricing := ComputeTierPricing(cfg, 0.5, 5000)
	if pricing.Natural != domain.TierStandard {
		t.Fatalf("natural = %s", pricing.Natural)
	}
	if !pricing.FreeOffered {
		t.Fatal("expected free shipping at threshold")
	}
	if cost, ok := pricing.CostFor(domain.TierStandard); !ok || cost != 500 {
		t.Fatalf("standard cost = %d (ok=%v)", cost, ok)
	}
	if cost, ok := pricing.CostFor(domain.TierFree); !ok || cost != 0 {
		t.Fatalf("free cost = %d (ok=%v), want offered at 0", cost, ok)
	}
}

func TestComputeTierPricingBelowThreshold(t *testing.T) {
	pricing := ComputeTierPricing(domesticConfig(), 0.5, 4999)
	if pricing.FreeOffered {
		t.Fatal("free shipping must not be offered below threshold")
	}
	if _, ok := pricing.CostFor(domain.TierFree); ok {
		t.Fatal("free tier must not be priced when unavailable")
	}
}

func TestComputeTierPricingNoThresholdConfigured(t *testing.T) {
	cfg := domesticConfig()
	cfg.Rates.FreeThreshold = 0

	pricing := ComputeTierPricing(cfg, 0.5, 1_000_000)
	if pricing.FreeOffered {
		t.Fatal("zero threshold disables free shipping")
	}
}

func TestTierCostMonotonicWithWeight(t *testing.T) {
	cfg := domesticConfig()

	weights := []float64{0.1, 1, 1.99, 2, 3, 4.99, 5, 8, 20}
	var prev int64 = -1
	for _, weight := range weights {
		pricing := ComputeTierPricing(cfg, weight, 0)
		cost, ok := pricing.CostFor(pricing.Natural)
		if !ok {
			t.Fatalf("no cost for natural tier at %v kg", weight)
		}
		if cost < prev {
			t.Fatalf("cost decreased across tier boundary at %v kg: %d < %d", weight, cost, prev)
		}
		prev = cost
	}
}

func TestDeliveryEstimates(t *testing.T) {
	cases := []struct {
		tier domain.PricingTier
		min  int
		max  int
	}{
		{domain.TierStandard, 2, 5},
		{domain.TierExpress, 1, 2},
		{domain.TierHeavy, 3, 7},
		{domain.TierFree, 3, 7},
	}
	for _, tc := range cases {
		got := DeliveryEstimateFor(tc.tier)
		if got.MinDays != tc.min || got.MaxDays != tc.max {
			t.Errorf("estimate for %s = %d-%d, want %d-%d", tc.tier, got.MinDays, got.MaxDays, tc.min, tc.max)
		}
	}
}
