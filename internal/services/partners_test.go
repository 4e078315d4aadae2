package services

import (
	"testing"

	"github.com/meridian-goods/shipping-api/internal/domain"
)

func testPartners() []domain.CarrierPartner {
	return []domain.CarrierPartner{
		{
			ID:          "brt",
			Name:        "BRT",
			Coverage:    []string{"IT", "DE", "FR"},
			MaxWeightKg: 30,
			Rates: map[domain.ShippingZone]domain.TierRateTable{
				domain.ZoneDomestic: {
					Costs: map[domain.PricingTier]int64{
						domain.TierStandard: 450,
						domain.TierExpress:  850,
						domain.TierHeavy:    1400,
					},
				},
			},
			CommissionRate:   4.5,
			AffiliateEnabled: true,
		},
		{
			ID:          "dhl",
			Name:        "DHL Express",
			Coverage:    []string{"IT", "DE", "FR", "US"},
			MaxWeightKg: 20,
			Rates: map[domain.ShippingZone]domain.TierRateTable{
				domain.ZoneDomestic: {
					Costs: map[domain.PricingTier]int64{
						domain.TierStandard: 550,
						domain.TierExpress:  800,
						domain.TierHeavy:    1600,
					},
				},
			},
			CommissionRate:   6,
			AffiliateEnabled: true,
		},
		{
			ID:          "ups",
			Name:        "UPS",
			Coverage:    []string{"US"},
			MaxWeightKg: 25,
			Rates: map[domain.ShippingZone]domain.TierRateTable{
				domain.ZoneInternational: {
					Costs: map[domain.PricingTier]int64{
						domain.TierStandard: 2100,
						domain.TierExpress:  3900,
						domain.TierHeavy:    5800,
					},
				},
			},
		},
	}
}

func TestEligiblePartnersFiltersCoverageAndWeight(t *testing.T) {
	partners := testPartners()

	eligible := EligiblePartners(partners, "it", 3)
	if len(eligible) != 2 {
		t.Fatalf("expected brt and dhl for IT, got %d", len(eligible))
	}

	// dhl caps at 20 kg; the filter is exclusionary, not a down-rank.
	eligible = EligiblePartners(partners, "IT", 22)
	if len(eligible) != 1 || eligible[0].ID != "brt" {
		t.Fatalf("expected only brt above 20 kg, got %+v", eligible)
	}

	eligible = EligiblePartners(partners, "AU", 1)
	if len(eligible) != 0 {
		t.Fatalf("expected no coverage for AU, got %d", len(eligible))
	}
}

func TestRankPartnersByPrice(t *testing.T) {
	cfg := domesticConfig()
	partners := EligiblePartners(testPartners(), "IT", 0.5)

	ranked := RankPartners(partners, domain.ZoneDomestic, cfg, 0.5, domain.RankByPrice)
	if ranked[0].ID != "brt" || ranked[1].ID != "dhl" {
		t.Fatalf("price ranking = %s, %s; want brt, dhl", ranked[0].ID, ranked[1].ID)
	}

	// Above the express boundary dhl's heavy rate is worse, brt still first.
	ranked = RankPartners(partners, domain.ZoneDomestic, cfg, 6, domain.RankByPrice)
	if ranked[0].ID != "brt" {
		t.Fatalf("heavy price ranking starts with %s, want brt", ranked[0].ID)
	}
}

func TestRankPartnersBySpeed(t *testing.T) {
	cfg := domesticConfig()
	partners := EligiblePartners(testPartners(), "IT", 0.5)

	ranked := RankPartners(partners, domain.ZoneDomestic, cfg, 0.5, domain.RankBySpeed)
	if ranked[0].ID != "dhl" {
		t.Fatalf("speed ranking starts with %s, want dhl (cheapest express)", ranked[0].ID)
	}
}

func TestRankPartnersByReliability(t *testing.T) {
	cfg := domesticConfig()
	partners := EligiblePartners(testPartners(), "IT", 0.5)

	ranked := RankPartners(partners, domain.ZoneDomestic, cfg, 0.5, domain.RankByReliability)
	if ranked[0].ID != "dhl" {
		t.Fatalf("reliability ranking starts with %s, want dhl (highest commission)", ranked[0].ID)
	}
}

func TestRankPartnersTieBreaksOnID(t *testing.T) {
	cfg := domesticConfig()
	partners := []domain.CarrierPartner{
		{ID: "zeta", Name: "Zeta", Coverage: []string{"IT"}, MaxWeightKg: 10, CommissionRate: 5},
		{ID: "alpha", Name: "Alpha", Coverage: []string{"IT"}, MaxWeightKg: 10, CommissionRate: 5},
	}

	for _, priority := range []domain.RankPriority{domain.RankByPrice, domain.RankBySpeed, domain.RankByReliability} {
		ranked := RankPartners(partners, domain.ZoneDomestic, cfg, 1, priority)
		if ranked[0].ID != "alpha" {
			t.Errorf("priority %s: tie not broken lexically, got %s first", priority, ranked[0].ID)
		}
	}
}

func TestRankPartnersDoesNotMutateInput(t *testing.T) {
	cfg := domesticConfig()
	partners := []domain.CarrierPartner{
		{ID: "zeta", Coverage: []string{"IT"}, MaxWeightKg: 10},
		{ID: "alpha", Coverage: []string{"IT"}, MaxWeightKg: 10},
	}

	RankPartners(partners, domain.ZoneDomestic, cfg, 1, domain.RankByPrice)
	if partners[0].ID != "zeta" {
		t.Fatal("input slice was reordered")
	}
}

func TestAffiliateCommission(t *testing.T) {
	enabled := domain.CarrierPartner{ID: "brt", CommissionRate: 4.5, AffiliateEnabled: true}
	disabled := domain.CarrierPartner{ID: "ups", CommissionRate: 4.5}

	if got := AffiliateCommission(enabled, 10000); got != 450 {
		t.Fatalf("commission = %d, want 450", got)
	}
	if got := AffiliateCommission(enabled, 3333); got != 150 {
		t.Fatalf("commission = %d, want 150 (149.985 rounded)", got)
	}
	if got := AffiliateCommission(disabled, 10000); got != 0 {
		t.Fatalf("disabled program must earn 0, got %d", got)
	}
	if got := AffiliateCommission(enabled, 0); got != 0 {
		t.Fatalf("zero total must earn 0, got %d", got)
	}
}
