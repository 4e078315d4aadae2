package services

import (
	"math"
	"time"

	"github.com/meridian-goods/shipping-api/internal/domain"
)

const (
	// MaxQuoteOptions is the checkout provider's hard cap on shipping-rate
	// choices per session. Never exceeded, enforced by truncation.
	MaxQuoteOptions = 5
	// topPartnerCount bounds how many ranked partners contribute quotes,
	// leaving headroom under MaxQuoteOptions for free/paid pairs.
	topPartnerCount = 3

	fallbackCarrierID   = "default"
	fallbackCarrierName = "International Shipping"
)

type quoteFactory struct {
	currency          string
	newID             func() string
	newTrackingID     func() string
	now               func() time.Time
	affiliateTracking bool
}

func (f quoteFactory) build(partner domain.CarrierPartner, tier domain.PricingTier, amount int64) domain.ShippingQuote {
	trackingID := ""
	if f.affiliateTracking && partner.AffiliateEnabled {
		trackingID = f.newTrackingID()
	}
	return domain.ShippingQuote{
		ID:          f.newID(),
		CarrierID:   partner.ID,
		CarrierName: partner.Name,
		Tier:        tier,
		Amount:      amount,
		Currency:    f.currency,
		Estimate:    DeliveryEstimateFor(tier),
		CreatedAt:   f.now(),
		Metadata: domain.QuoteMetadata{
			CarrierID:           partner.ID,
			AffiliateTrackingID: trackingID,
			Tier:                tier,
		},
	}
}

// assembleQuotes merges tier pricing with the ranked partner list into the
// final option list. Free quotes for the top partners come first, then one
// paid quote per partner at its natural tier, truncated to the provider cap.
func assembleQuotes(factory quoteFactory, ranked []domain.CarrierPartner, zone domain.ShippingZone, cfg domain.ZoneConfig, pricing TierPricing, orderTotal int64) []domain.ShippingQuote {
	selected := ranked
	if len(selected) > topPartnerCount {
		selected = selected[:topPartnerCount]
	}

	quotes := make([]domain.ShippingQuote, 0, 2*len(selected))

	for _, partner := range selected {
		if !freeShippingApplies(partner, zone, pricing, orderTotal) {
			continue
		}
		quotes = append(quotes, factory.build(partner, domain.TierFree, 0))
	}

	for _, partner := range selected {
		cost := partnerTierCost(partner, zone, cfg, pricing.Natural)
		if cost == math.MaxInt64 {
			continue
		}
		quotes = append(quotes, factory.build(partner, pricing.Natural, cost))
	}

	if len(quotes) > MaxQuoteOptions {
		quotes = quotes[:MaxQuoteOptions]
	}
	return quotes
}

// freeShippingApplies reports whether a partner should carry a free quote:
// either its own per-zone threshold or the zone-wide threshold is met.
func freeShippingApplies(partner domain.CarrierPartner, zone domain.ShippingZone, pricing TierPricing, orderTotal int64) bool {
	if rates, ok := partner.RatesFor(zone); ok && rates.FreeThreshold > 0 && orderTotal >= rates.FreeThreshold {
		return true
	}
	return pricing.FreeOffered
}

// fallbackQuote is the single conservative option emitted when no partner is
// eligible, so a coverage gap never blocks checkout. Priced at the
// international standard rate.
func fallbackQuote(factory quoteFactory, intlCfg domain.ZoneConfig) domain.ShippingQuote {
	cost, ok := intlCfg.Rates.CostFor(domain.TierStandard)
	if !ok {
		cost = 0
	}
	return factory.build(domain.CarrierPartner{
		ID:   fallbackCarrierID,
		Name: fallbackCarrierName,
	}, domain.TierStandard, cost)
}
