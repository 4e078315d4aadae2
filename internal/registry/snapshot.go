package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/meridian-goods/shipping-api/internal/domain"
)

var (
	// ErrEmptySnapshot indicates a source produced no usable configuration.
	ErrEmptySnapshot = errors.New("registry: snapshot is empty")
	// ErrInvalidSnapshot indicates a source produced configuration that failed validation.
	ErrInvalidSnapshot = errors.New("registry: snapshot is invalid")
)

// Snapshot is one immutable, validated view of the carrier partner registry
// and the zone/threshold tables. Snapshots are shared across concurrent
// requests and must never be mutated after publication; reloads swap the
// whole snapshot atomically.
type Snapshot struct {
	Version     string
	Currency    string
	Zones       map[string]domain.ShippingZone
	ZoneConfigs map[domain.ShippingZone]domain.ZoneConfig
	Partners    []domain.CarrierPartner
	LoadedAt    time.Time
}

// ZoneFor classifies a destination country code into a shipping zone.
// Unmapped or malformed codes resolve to the International zone so the
// pipeline always produces a quote instead of failing on an unknown
// destination.
func (s *Snapshot) ZoneFor(country string) domain.ShippingZone {
	if s == nil {
		return domain.ZoneInternational
	}
	code := strings.ToUpper(strings.TrimSpace(country))
	if zone, ok := s.Zones[code]; ok && zone.IsValid() {
		return zone
	}
	return domain.ZoneInternational
}

// ConfigFor returns the zone-level pricing configuration, defaulting to the
// International configuration when the zone has none of its own.
func (s *Snapshot) ConfigFor(zone domain.ShippingZone) domain.ZoneConfig {
	if s != nil {
		if cfg, ok := s.ZoneConfigs[zone]; ok {
			return cfg
		}
		if cfg, ok := s.ZoneConfigs[domain.ZoneInternational]; ok {
			return cfg
		}
	}
	return domain.ZoneConfig{Zone: domain.ZoneInternational}
}

// PartnerByID looks up a registry entry by its identifier.
func (s *Snapshot) PartnerByID(id string) (domain.CarrierPartner, bool) {
	if s == nil {
		return domain.CarrierPartner{}, false
	}
	for _, partner := range s.Partners {
		if partner.ID == id {
			return partner, true
		}
	}
	return domain.CarrierPartner{}, false
}

// Validate checks structural invariants before a snapshot may be published:
// every zone mapping points at a known zone, the International zone carries a
// complete default rate table (it backs the assembler's fallback quote), and
// partner entries are well formed with non-negative prices.
func (s *Snapshot) Validate() error {
	if s == nil || (len(s.Zones) == 0 && len(s.Partners) == 0) {
		return ErrEmptySnapshot
	}
	if strings.TrimSpace(s.Currency) == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidSnapshot)
	}

	for country, zone := range s.Zones {
		if strings.TrimSpace(country) == "" {
			return fmt.Errorf("%w: empty country code in zone table", ErrInvalidSnapshot)
		}
		if !zone.IsValid() {
			return fmt.Errorf("%w: country %s maps to unknown zone %q", ErrInvalidSnapshot, country, zone)
		}
	}

	intl, ok := s.ZoneConfigs[domain.ZoneInternational]
	if !ok {
		return fmt.Errorf("%w: international zone configuration is required", ErrInvalidSnapshot)
	}
	if _, ok := intl.Rates.CostFor(domain.TierStandard); !ok {
		return fmt.Errorf("%w: international standard rate is required for the fallback quote", ErrInvalidSnapshot)
	}

	for zone, cfg := range s.ZoneConfigs {
		if !zone.IsValid() {
			return fmt.Errorf("%w: unknown zone %q in zone configs", ErrInvalidSnapshot, zone)
		}
		if err := validateZoneConfig(cfg); err != nil {
			return fmt.Errorf("%w: zone %s: %v", ErrInvalidSnapshot, zone, err)
		}
	}

	seen := make(map[string]struct{}, len(s.Partners))
	for _, partner := range s.Partners {
		if err := validatePartner(partner); err != nil {
			return fmt.Errorf("%w: partner %q: %v", ErrInvalidSnapshot, partner.ID, err)
		}
		if _, dup := seen[partner.ID]; dup {
			return fmt.Errorf("%w: duplicate partner id %q", ErrInvalidSnapshot, partner.ID)
		}
		seen[partner.ID] = struct{}{}
	}

	return nil
}

func validateZoneConfig(cfg domain.ZoneConfig) error {
	if len(cfg.Thresholds) == 0 {
		return errors.New("missing tier thresholds")
	}
	prev := 0.0
	for i, threshold := range cfg.Thresholds {
		if !threshold.Tier.IsValid() || threshold.Tier == domain.TierFree {
			return fmt.Errorf("threshold %d selects invalid tier %q", i, threshold.Tier)
		}
		if i > 0 && threshold.CeilingKg <= prev {
			return fmt.Errorf("threshold ceilings must be strictly ascending at index %d", i)
		}
		prev = threshold.CeilingKg
	}
	return validateRates(cfg.Rates)
}

func validatePartner(partner domain.CarrierPartner) error {
	if strings.TrimSpace(partner.ID) == "" {
		return errors.New("missing id")
	}
	if strings.TrimSpace(partner.Name) == "" {
		return errors.New("missing display name")
	}
	if partner.MaxWeightKg <= 0 {
		return errors.New("max weight must be positive")
	}
	if partner.CommissionRate < 0 || partner.CommissionRate > 100 {
		return errors.New("commission rate must be within [0,100]")
	}
	if len(partner.Coverage) == 0 {
		return errors.New("coverage is empty")
	}
	for _, country := range partner.Coverage {
		if country != strings.ToUpper(strings.TrimSpace(country)) || country == "" {
			return fmt.Errorf("coverage entry %q is not a normalised country code", country)
		}
	}
	for zone, rates := range partner.Rates {
		if !zone.IsValid() {
			return fmt.Errorf("rate table for unknown zone %q", zone)
		}
		if err := validateRates(rates); err != nil {
			return fmt.Errorf("zone %s rates: %v", zone, err)
		}
	}
	return nil
}

func validateRates(rates domain.TierRateTable) error {
	for tier, cost := range rates.Costs {
		if !tier.IsValid() {
			return fmt.Errorf("cost for unknown tier %q", tier)
		}
		if cost < 0 {
			return fmt.Errorf("negative cost for tier %s", tier)
		}
	}
	// Heavier parcels must never price below lighter ones, so configured
	// costs have to be non-decreasing in tier order.
	var (
		prevCost int64
		prevTier domain.PricingTier
		havePrev bool
	)
	for _, tier := range []domain.PricingTier{domain.TierStandard, domain.TierExpress, domain.TierHeavy} {
		cost, ok := rates.Costs[tier]
		if !ok {
			continue
		}
		if havePrev && cost < prevCost {
			return fmt.Errorf("tier %s cost %d undercuts tier %s cost %d", tier, cost, prevTier, prevCost)
		}
		prevCost, prevTier, havePrev = cost, tier, true
	}
	if rates.FreeThreshold < 0 {
		return errors.New("negative free-shipping threshold")
	}
	return nil
}

// normalise sorts partners by id (stable ordering feeds deterministic
// tie-breaking downstream) and upper-cases country keys.
func (s *Snapshot) normalise() {
	if s == nil {
		return
	}
	zones := make(map[string]domain.ShippingZone, len(s.Zones))
	for country, zone := range s.Zones {
		zones[strings.ToUpper(strings.TrimSpace(country))] = zone
	}
	s.Zones = zones
	for i := range s.Partners {
		for j, country := range s.Partners[i].Coverage {
			s.Partners[i].Coverage[j] = strings.ToUpper(strings.TrimSpace(country))
		}
	}
	sort.Slice(s.Partners, func(i, j int) bool {
		return s.Partners[i].ID < s.Partners[j].ID
	})
}
