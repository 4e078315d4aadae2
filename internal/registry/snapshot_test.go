package registry

import (
	"errors"
	"testing"

	"github.com/meridian-goods/shipping-api/internal/domain"
)

func validSnapshot() *Snapshot {
	return &Snapshot{
		Version:  "2026-08-01",
		Currency: "EUR",
		Zones: map[string]domain.ShippingZone{
			"IT": domain.ZoneDomestic,
			"DE": domain.ZoneRegional,
			"FR": domain.ZoneRegional,
			"US": domain.ZoneInternational,
		},
		ZoneConfigs: map[domain.ShippingZone]domain.ZoneConfig{
			domain.ZoneDomestic: {
				Zone: domain.ZoneDomestic,
				Thresholds: []domain.TierThreshold{
					{CeilingKg: 2, Tier: domain.TierStandard},
					{CeilingKg: 20, Tier: domain.TierHeavy},
				},
				Rates: domain.TierRateTable{
					Costs: map[domain.PricingTier]int64{
						domain.TierStandard: 500,
						domain.TierExpress:  900,
						domain.TierHeavy:    1500,
					},
					FreeThreshold: 4000,
				},
			},
			domain.ZoneInternational: {
				Zone: domain.ZoneInternational,
				Thresholds: []domain.TierThreshold{
					{CeilingKg: 2, Tier: domain.TierStandard},
					{CeilingKg: 20, Tier: domain.TierHeavy},
				},
				Rates: domain.TierRateTable{
					Costs: map[domain.PricingTier]int64{
						domain.TierStandard: 2200,
						domain.TierExpress:  4100,
						domain.TierHeavy:    6000,
					},
				},
			},
		},
		Partners: []domain.CarrierPartner{
			{
				ID:          "brt",
				Name:        "BRT",
				Coverage:    []string{"IT", "DE", "FR"},
				MaxWeightKg: 30,
				Rates: map[domain.ShippingZone]domain.TierRateTable{
					domain.ZoneDomestic: {
						Costs: map[domain.PricingTier]int64{domain.TierStandard: 450},
					},
				},
				CommissionRate:   4.5,
				AffiliateEnabled: true,
			},
		},
	}
}

func TestZoneForClassification(t *testing.T) {
	snapshot := validSnapshot()
	snapshot.normalise()

	cases := []struct {
		name    string
		country string
		want    domain.ShippingZone
	}{
		{name: "domestic", country: "IT", want: domain.ZoneDomestic},
		{name: "regional", country: "DE", want: domain.ZoneRegional},
		{name: "lowercase input", country: "it", want: domain.ZoneDomestic},
		{name: "padded input", country: " fr ", want: domain.ZoneRegional},
		{name: "mapped international", country: "US", want: domain.ZoneInternational},
		{name: "unmapped falls back", country: "AU", want: domain.ZoneInternational},
		{name: "empty falls back", country: "", want: domain.ZoneInternational},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := snapshot.ZoneFor(tc.country); got != tc.want {
				t.Fatalf("ZoneFor(%q) = %s, want %s", tc.country, got, tc.want)
			}
		})
	}
}

func TestConfigForFallsBackToInternational(t *testing.T) {
	snapshot := validSnapshot()

	cfg := snapshot.ConfigFor(domain.ZoneRegional)
	if cfg.Zone != domain.ZoneInternational {
		t.Fatalf("expected international fallback, got %s", cfg.Zone)
	}
	if got, ok := cfg.Rates.CostFor(domain.TierStandard); !ok || got != 2200 {
		t.Fatalf("expected international standard rate 2200, got %d (ok=%v)", got, ok)
	}
}

func TestValidateAcceptsWellFormedSnapshot(t *testing.T) {
	snapshot := validSnapshot()
	snapshot.normalise()
	if err := snapshot.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Snapshot)
		want   error
	}{
		{
			name:   "empty snapshot",
			mutate: func(s *Snapshot) { s.Zones = nil; s.Partners = nil },
			want:   ErrEmptySnapshot,
		},
		{
			name:   "missing currency",
			mutate: func(s *Snapshot) { s.Currency = " " },
			want:   ErrInvalidSnapshot,
		},
		{
			name:   "unknown zone in country table",
			mutate: func(s *Snapshot) { s.Zones["IT"] = "orbital" },
			want:   ErrInvalidSnapshot,
		},
		{
			name:   "missing international config",
			mutate: func(s *Snapshot) { delete(s.ZoneConfigs, domain.ZoneInternational) },
			want:   ErrInvalidSnapshot,
		},
		{
			name: "missing international standard rate",
			mutate: func(s *Snapshot) {
				cfg := s.ZoneConfigs[domain.ZoneInternational]
				delete(cfg.Rates.Costs, domain.TierStandard)
			},
			want: ErrInvalidSnapshot,
		},
		{
			name: "free tier in thresholds",
			mutate: func(s *Snapshot) {
				cfg := s.ZoneConfigs[domain.ZoneDomestic]
				cfg.Thresholds[0].Tier = domain.TierFree
				s.ZoneConfigs[domain.ZoneDomestic] = cfg
			},
			want: ErrInvalidSnapshot,
		},
		{
			name: "non-ascending thresholds",
			mutate: func(s *Snapshot) {
				cfg := s.ZoneConfigs[domain.ZoneDomestic]
				cfg.Thresholds[1].CeilingKg = cfg.Thresholds[0].CeilingKg
				s.ZoneConfigs[domain.ZoneDomestic] = cfg
			},
			want: ErrInvalidSnapshot,
		},
		{
			name:   "partner without coverage",
			mutate: func(s *Snapshot) { s.Partners[0].Coverage = nil },
			want:   ErrInvalidSnapshot,
		},
		{
			name:   "partner with non-positive max weight",
			mutate: func(s *Snapshot) { s.Partners[0].MaxWeightKg = 0 },
			want:   ErrInvalidSnapshot,
		},
		{
			name:   "commission rate out of range",
			mutate: func(s *Snapshot) { s.Partners[0].CommissionRate = 120 },
			want:   ErrInvalidSnapshot,
		},
		{
			name: "negative partner rate",
			mutate: func(s *Snapshot) {
				s.Partners[0].Rates[domain.ZoneDomestic] = domain.TierRateTable{
					Costs: map[domain.PricingTier]int64{domain.TierStandard: -1},
				}
			},
			want: ErrInvalidSnapshot,
		},
		{
			name: "express undercuts standard in zone table",
			mutate: func(s *Snapshot) {
				cfg := s.ZoneConfigs[domain.ZoneDomestic]
				cfg.Rates.Costs[domain.TierExpress] = 400
				s.ZoneConfigs[domain.ZoneDomestic] = cfg
			},
			want: ErrInvalidSnapshot,
		},
		{
			name: "heavy undercuts standard in partner table",
			mutate: func(s *Snapshot) {
				s.Partners[0].Rates[domain.ZoneDomestic] = domain.TierRateTable{
					Costs: map[domain.PricingTier]int64{
						domain.TierStandard: 450,
						domain.TierHeavy:    300,
					},
				}
			},
			want: ErrInvalidSnapshot,
		},
		{
			name: "duplicate partner ids",
			mutate: func(s *Snapshot) {
				s.Partners = append(s.Partners, s.Partners[0])
			},
			want: ErrInvalidSnapshot,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snapshot := validSnapshot()
			tc.mutate(snapshot)
			snapshot.normalise()
			err := snapshot.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNormaliseSortsPartnersAndUppercasesCodes(t *testing.T) {
	snapshot := validSnapshot()
	snapshot.Zones["jp"] = domain.ZoneInternational
	snapshot.Partners = append(snapshot.Partners, domain.CarrierPartner{
		ID:          "aramex",
		Name:        "Aramex",
		Coverage:    []string{"au", " nz "},
		MaxWeightKg: 25,
	})
	snapshot.normalise()

	if snapshot.Partners[0].ID != "aramex" || snapshot.Partners[1].ID != "brt" {
		t.Fatalf("partners not sorted by id: %s, %s", snapshot.Partners[0].ID, snapshot.Partners[1].ID)
	}
	if _, ok := snapshot.Zones["JP"]; !ok {
		t.Fatalf("expected country key to be upper-cased")
	}
	if got := snapshot.Partners[0].Coverage[1]; got != "NZ" {
		t.Fatalf("coverage not normalised: %q", got)
	}
}
