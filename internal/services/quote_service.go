package services

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/meridian-goods/shipping-api/internal/domain"
	"github.com/meridian-goods/shipping-api/internal/registry"
)

var (
	// ErrQuoteInvalidInput signals request data the engine cannot normalise.
	ErrQuoteInvalidInput = errors.New("shipping quotes: invalid input")
	// ErrRegistryUnavailable is returned before the first registry load.
	ErrRegistryUnavailable = errors.New("shipping quotes: carrier registry unavailable")
)

// RegistryProvider yields the current carrier registry snapshot.
type RegistryProvider interface {
	Snapshot() (*registry.Snapshot, error)
}

// QuoteMetrics receives engine-level counters. All methods must be safe on a
// nil receiver.
type QuoteMetrics interface {
	RecordQuotes(ctx context.Context, tier string, count int)
	RecordFallback(ctx context.Context)
}

// QuoteService runs the full quoting pipeline: parcel aggregation, zone
// classification, tier pricing, partner selection, and option assembly.
type QuoteService struct {
	registry          RegistryProvider
	metrics           QuoteMetrics
	packingFactor     float64
	defaultPriority   domain.RankPriority
	affiliateTracking bool
	newID             func() string
	now               func() time.Time
	logger            func(context.Context, string, map[string]any)
}

type QuoteServiceDeps struct {
	Registry          RegistryProvider
	Metrics           QuoteMetrics
	PackingFactor     float64
	DefaultPriority   domain.RankPriority
	AffiliateTracking bool
	NewID             func() string
	Now               func() time.Time
	Logger            func(context.Context, string, map[string]any)
}

func NewQuoteService(deps QuoteServiceDeps) (*QuoteService, error) {
	if deps.Registry == nil {
		return nil, errors.New("quote service: registry is required")
	}
	if deps.PackingFactor < 1 {
		deps.PackingFactor = DefaultPackingFactor
	}
	deps.DefaultPriority = domain.NormalizeRankPriority(string(deps.DefaultPriority))
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &QuoteService{
		registry:          deps.Registry,
		metrics:           deps.Metrics,
		packingFactor:     deps.PackingFactor,
		defaultPriority:   deps.DefaultPriority,
		affiliateTracking: deps.AffiliateTracking,
		newID:             newID,
		now:               func() time.Time { return now().UTC() },
		logger:            logger,
	}, nil
}

// QuoteRequest carries the cart snapshot the engine prices.
type QuoteRequest struct {
	Lines      []domain.CartLine
	Country    string
	OrderTotal int64
	Priority   string
}

// QuoteResult is the assembled option list plus the intermediate facts the
// caller may surface (parcel estimate, resolved zone, commission preview).
type QuoteResult struct {
	Quotes      []domain.ShippingQuote
	Parcel      domain.Parcel
	Zone        domain.ShippingZone
	Currency    string
	Fallback    bool
	Commissions map[string]int64
}

// Quote runs the pipeline for one request. It never returns an empty option
// list: coverage gaps degrade to the international fallback quote.
func (s *QuoteService) Quote(ctx context.Context, req QuoteRequest) (QuoteResult, error) {
	if req.OrderTotal < 0 {
		return QuoteResult{}, ErrQuoteInvalidInput
	}

	snapshot, err := s.registry.Snapshot()
	if err != nil {
		return QuoteResult{}, ErrRegistryUnavailable
	}

	parcel := AggregateParcel(req.Lines, s.packingFactor)
	zone := snapshot.ZoneFor(req.Country)
	cfg := snapshot.ConfigFor(zone)
	pricing := ComputeTierPricing(cfg, parcel.WeightKg, req.OrderTotal)

	priority := s.defaultPriority
	if req.Priority != "" {
		priority = domain.NormalizeRankPriority(req.Priority)
	}

	eligible := EligiblePartners(snapshot.Partners, req.Country, parcel.WeightKg)
	ranked := RankPartners(eligible, zone, cfg, parcel.WeightKg, priority)

	factory := quoteFactory{
		currency:          snapshot.Currency,
		newID:             s.newID,
		newTrackingID:     s.newID,
		now:               s.now,
		affiliateTracking: s.affiliateTracking,
	}

	result := QuoteResult{
		Parcel:   parcel,
		Zone:     zone,
		Currency: snapshot.Currency,
	}

	quotes := assembleQuotes(factory, ranked, zone, cfg, pricing, req.OrderTotal)
	if len(quotes) == 0 {
		intlCfg := snapshot.ConfigFor(domain.ZoneInternational)
		quotes = []domain.ShippingQuote{fallbackQuote(factory, intlCfg)}
		result.Fallback = true
		s.logger(ctx, "shipping.quotes.fallback", map[string]any{
			"country":   req.Country,
			"zone":      string(zone),
			"weight_kg": parcel.WeightKg,
			"partners":  len(snapshot.Partners),
		})
		if s.metrics != nil {
			s.metrics.RecordFallback(ctx)
		}
	}

	result.Quotes = quotes
	result.Commissions = commissionPreview(snapshot, quotes, req.OrderTotal)

	if s.metrics != nil {
		byTier := make(map[domain.PricingTier]int, 4)
		for _, quote := range quotes {
			byTier[quote.Tier]++
		}
		for tier, count := range byTier {
			s.metrics.RecordQuotes(ctx, string(tier), count)
		}
	}

	s.logger(ctx, "shipping.quotes.assembled", map[string]any{
		"country":   req.Country,
		"zone":      string(zone),
		"weight_kg": parcel.WeightKg,
		"natural":   string(pricing.Natural),
		"free":      pricing.FreeOffered,
		"quotes":    len(quotes),
		"fallback":  result.Fallback,
	})

	return result, nil
}

// commissionPreview precomputes the affiliate share each quoted partner would
// earn if its option is picked, keyed by carrier id.
func commissionPreview(snapshot *registry.Snapshot, quotes []domain.ShippingQuote, orderTotal int64) map[string]int64 {
	preview := make(map[string]int64)
	for _, quote := range quotes {
		if _, done := preview[quote.CarrierID]; done {
			continue
		}
		partner, ok := snapshot.PartnerByID(quote.CarrierID)
		if !ok {
			preview[quote.CarrierID] = 0
			continue
		}
		preview[quote.CarrierID] = AffiliateCommission(partner, orderTotal)
	}
	return preview
}
