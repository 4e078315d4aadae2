package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/meridian-goods/shipping-api/internal/domain"
	pfirestore "github.com/meridian-goods/shipping-api/internal/platform/firestore"
)

// ClientProvider yields the shared Firestore client.
type ClientProvider interface {
	Client(ctx context.Context) (*firestore.Client, error)
}

// FirestoreSource loads the registry from Firestore. Zones live one document
// per zone (document ID is the zone name), partners one document per carrier,
// and a meta document carries the version and currency.
type FirestoreSource struct {
	clients            ClientProvider
	partnersCollection string
	zonesCollection    string
	metaDocument       string
}

// FirestoreSourceConfig parameterises collection and document paths.
type FirestoreSourceConfig struct {
	PartnersCollection string
	ZonesCollection    string
	MetaDocument       string
}

// NewFirestoreSource constructs a FirestoreSource.
func NewFirestoreSource(clients ClientProvider, cfg FirestoreSourceConfig) (*FirestoreSource, error) {
	if clients == nil {
		return nil, errors.New("registry: firestore client provider is required")
	}
	if strings.TrimSpace(cfg.PartnersCollection) == "" || strings.TrimSpace(cfg.ZonesCollection) == "" {
		return nil, errors.New("registry: partners and zones collections are required")
	}
	return &FirestoreSource{
		clients:            clients,
		partnersCollection: cfg.PartnersCollection,
		zonesCollection:    cfg.ZonesCollection,
		metaDocument:       strings.TrimSpace(cfg.MetaDocument),
	}, nil
}

type registryMetaDoc struct {
	Version  string `firestore:"version"`
	Currency string `firestore:"currency"`
}

type zoneDoc struct {
	Countries     []string         `firestore:"countries"`
	Thresholds    []thresholdDoc   `firestore:"thresholds"`
	Costs         map[string]int64 `firestore:"costs"`
	FreeThreshold int64            `firestore:"freeThreshold"`
}

type thresholdDoc struct {
	CeilingKg float64 `firestore:"ceilingKg"`
	Tier      string  `firestore:"tier"`
}

type partnerDoc struct {
	Name                string                  `firestore:"name"`
	Coverage            []string                `firestore:"coverage"`
	MaxWeightKg         float64                 `firestore:"maxWeightKg"`
	Rates               map[string]rateTableDoc `firestore:"rates"`
	CommissionRate      float64                 `firestore:"commissionRate"`
	AffiliateEnabled    bool                    `firestore:"affiliateEnabled"`
	TrackingURLTemplate string                  `firestore:"trackingUrlTemplate"`
}

type rateTableDoc struct {
	Costs         map[string]int64 `firestore:"costs"`
	FreeThreshold int64            `firestore:"freeThreshold"`
}

// Load implements Source.
func (s *FirestoreSource) Load(ctx context.Context) (*Snapshot, error) {
	client, err := s.clients.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: firestore client: %w", err)
	}

	snapshot := &Snapshot{
		Zones:       make(map[string]domain.ShippingZone),
		ZoneConfigs: make(map[domain.ShippingZone]domain.ZoneConfig),
	}

	if s.metaDocument != "" {
		meta, err := client.Doc(s.metaDocument).Get(ctx)
		if err != nil {
			return nil, pfirestore.WrapError("registry: read meta document", err)
		}
		var doc registryMetaDoc
		if err := meta.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("registry: decode meta document: %w", err)
		}
		snapshot.Version = doc.Version
		snapshot.Currency = doc.Currency
	}

	zones := client.Collection(s.zonesCollection).Documents(ctx)
	defer zones.Stop()
	for {
		doc, err := zones.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("registry: iterate zones", err)
		}
		var data zoneDoc
		if err := doc.DataTo(&data); err != nil {
			return nil, fmt.Errorf("registry: decode zone %s: %w", doc.Ref.ID, err)
		}
		zone := domain.ShippingZone(strings.ToLower(doc.Ref.ID))
		for _, country := range data.Countries {
			snapshot.Zones[country] = zone
		}
		cfg := domain.ZoneConfig{
			Zone:       zone,
			Thresholds: make([]domain.TierThreshold, 0, len(data.Thresholds)),
			Rates: domain.TierRateTable{
				Costs:         make(map[domain.PricingTier]int64, len(data.Costs)),
				FreeThreshold: data.FreeThreshold,
			},
		}
		for _, threshold := range data.Thresholds {
			cfg.Thresholds = append(cfg.Thresholds, domain.TierThreshold{
				CeilingKg: threshold.CeilingKg,
				Tier:      domain.PricingTier(threshold.Tier),
			})
		}
		for tier, cost := range data.Costs {
			cfg.Rates.Costs[domain.PricingTier(tier)] = cost
		}
		snapshot.ZoneConfigs[zone] = cfg
	}

	partners := client.Collection(s.partnersCollection).Documents(ctx)
	defer partners.Stop()
	for {
		doc, err := partners.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("registry: iterate partners", err)
		}
		var data partnerDoc
		if err := doc.DataTo(&data); err != nil {
			return nil, fmt.Errorf("registry: decode partner %s: %w", doc.Ref.ID, err)
		}
		partner := domain.CarrierPartner{
			ID:                  doc.Ref.ID,
			Name:                data.Name,
			Coverage:            append([]string(nil), data.Coverage...),
			MaxWeightKg:         data.MaxWeightKg,
			Rates:               make(map[domain.ShippingZone]domain.TierRateTable, len(data.Rates)),
			CommissionRate:      data.CommissionRate,
			AffiliateEnabled:    data.AffiliateEnabled,
			TrackingURLTemplate: data.TrackingURLTemplate,
		}
		for zone, rates := range data.Rates {
			table := domain.TierRateTable{
				Costs:         make(map[domain.PricingTier]int64, len(rates.Costs)),
				FreeThreshold: rates.FreeThreshold,
			}
			for tier, cost := range rates.Costs {
				table.Costs[domain.PricingTier(tier)] = cost
			}
			partner.Rates[domain.ShippingZone(zone)] = table
		}
		snapshot.Partners = append(snapshot.Partners, partner)
	}

	return snapshot, nil
}
