package domain

import (
	"strings"
	"time"
)

// ShippingZone is the coarse geographic grouping used to select pricing
// thresholds and delivery expectations.
type ShippingZone string

const (
	// ZoneDomestic covers the storefront's home market.
	ZoneDomestic ShippingZone = "domestic"
	// ZoneRegional covers the surrounding trade region (EU for this storefront).
	ZoneRegional ShippingZone = "regional"
	// ZoneInternational covers every other destination and doubles as the
	// conservative fallback for unrecognised country codes.
	ZoneInternational ShippingZone = "international"
)

// IsValid reports whether the zone is one of the known values.
func (z ShippingZone) IsValid() bool {
	switch z {
	case ZoneDomestic, ZoneRegional, ZoneInternational:
		return true
	default:
		return false
	}
}

// PricingTier enumerates the shipping service levels offered at checkout.
type PricingTier string

const (
	TierStandard PricingTier = "standard"
	TierExpress  PricingTier = "express"
	TierHeavy    PricingTier = "heavy"
	TierFree     PricingTier = "free"
)

// IsValid reports whether the tier is one of the known values.
func (t PricingTier) IsValid() bool {
	switch t {
	case TierStandard, TierExpress, TierHeavy, TierFree:
		return true
	default:
		return false
	}
}

// RankPriority selects the ordering applied to eligible carrier partners.
type RankPriority string

const (
	// RankByPrice orders partners by their natural-tier cost, cheapest first.
	RankByPrice RankPriority = "price"
	// RankBySpeed orders partners by express-tier cost, used as a proxy for
	// the strength of their speed commitment.
	RankBySpeed RankPriority = "speed"
	// RankByReliability promotes partners with higher affiliate commission
	// rates (a business-policy proxy, not a delivery-performance metric).
	RankByReliability RankPriority = "reliability"
)

// NormalizeRankPriority maps arbitrary input onto a supported priority,
// degrading to price ordering rather than erroring.
func NormalizeRankPriority(raw string) RankPriority {
	switch RankPriority(strings.ToLower(strings.TrimSpace(raw))) {
	case RankBySpeed:
		return RankBySpeed
	case RankByReliability:
		return RankByReliability
	default:
		return RankByPrice
	}
}

// Dimensions describes a rectangular extent in centimetres.
type Dimensions struct {
	LengthCm float64
	WidthCm  float64
	HeightCm float64
}

// Volume returns the box volume in cubic centimetres.
func (d Dimensions) Volume() float64 {
	return d.LengthCm * d.WidthCm * d.HeightCm
}

// CartLine is a read-only view of one cart entry as supplied by the cart
// collaborator. The engine never mutates cart state.
type CartLine struct {
	ProductID   string
	Quantity    int
	WeightGrams int
	Dimensions  Dimensions
}

// Parcel is the aggregated physical footprint of an entire cart. It is
// recomputed fresh for every request and never cached.
type Parcel struct {
	WeightKg   float64
	Bounding   Dimensions
	VolumeCm3  float64
	LineCount  int
	TotalItems int
}

// DeliveryEstimate is an inclusive business-day window quoted to the shopper.
type DeliveryEstimate struct {
	MinDays int
	MaxDays int
}

// TierThreshold pairs a weight ceiling with the tier it selects. Thresholds
// are evaluated in ascending ceiling order; the first ceiling the parcel
// weight fits under wins.
type TierThreshold struct {
	CeilingKg float64
	Tier      PricingTier
}

// TierRateTable holds the flat per-tier costs (minor currency units) plus the
// free-shipping threshold for one zone, either at zone level or inside a
// partner's own price table.
type TierRateTable struct {
	Costs         map[PricingTier]int64
	FreeThreshold int64
}

// CostFor returns the flat cost for the tier and whether the tier is priced
// at all in this table.
func (t TierRateTable) CostFor(tier PricingTier) (int64, bool) {
	if t.Costs == nil {
		return 0, false
	}
	cost, ok := t.Costs[tier]
	return cost, ok
}

// ZoneConfig is the zone-level pricing configuration: ordered weight
// thresholds and the default rate table used when no partner table applies.
type ZoneConfig struct {
	Zone       ShippingZone
	Thresholds []TierThreshold
	Rates      TierRateTable
}

// CarrierPartner is one immutable registry entry describing an external
// shipping provider. Instances are shared across requests and must never be
// mutated after the registry snapshot is published.
type CarrierPartner struct {
	ID                  string
	Name                string
	Coverage            []string
	MaxWeightKg         float64
	Rates               map[ShippingZone]TierRateTable
	CommissionRate      float64
	AffiliateEnabled    bool
	TrackingURLTemplate string
}

// Covers reports whether the partner ships to the given upper-case ISO
// country code.
func (p CarrierPartner) Covers(country string) bool {
	for _, c := range p.Coverage {
		if c == country {
			return true
		}
	}
	return false
}

// RatesFor returns the partner's rate table for the zone and whether the
// partner prices that zone at all.
func (p CarrierPartner) RatesFor(zone ShippingZone) (TierRateTable, bool) {
	if p.Rates == nil {
		return TierRateTable{}, false
	}
	table, ok := p.Rates[zone]
	return table, ok
}

// ShippingQuote is one concrete, priced shipping option ready for the
// checkout provider. Amounts are minor currency units.
type ShippingQuote struct {
	ID          string
	CarrierID   string
	CarrierName string
	Tier        PricingTier
	Amount      int64
	Currency    string
	Estimate    DeliveryEstimate
	Metadata    QuoteMetadata
	CreatedAt   time.Time
}

// QuoteMetadata is round-tripped through the checkout provider back onto the
// order record so reconciliation can recompute affiliate commission without
// re-pricing.
type QuoteMetadata struct {
	CarrierID           string
	AffiliateTrackingID string
	Tier                PricingTier
}
