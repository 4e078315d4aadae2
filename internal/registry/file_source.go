package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/meridian-goods/shipping-api/internal/domain"
)

// FileSource loads the registry from a JSON document on disk. It is the
// default source for local development and for deployments that bake the
// carrier tables into the image.
type FileSource struct {
	path string
}

// NewFileSource constructs a FileSource for the given path.
func NewFileSource(path string) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("registry: file source path is required")
	}
	return &FileSource{path: path}, nil
}

// Load implements Source.
func (f *FileSource) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", f.path, err)
	}
	var doc registryDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("registry: decode %s: %w", f.path, err)
	}
	return doc.toSnapshot(), nil
}

type registryDocument struct {
	Version     string                        `json:"version"`
	Currency    string                        `json:"currency"`
	Zones       map[string]string             `json:"zones"`
	ZoneConfigs map[string]zoneConfigDocument `json:"zoneConfigs"`
	Partners    []partnerDocument             `json:"partners"`
}

type zoneConfigDocument struct {
	Thresholds []thresholdDocument `json:"thresholds"`
	Rates      rateTableDocument   `json:"rates"`
}

type thresholdDocument struct {
	CeilingKg float64 `json:"ceilingKg"`
	Tier      string  `json:"tier"`
}

type rateTableDocument struct {
	Costs         map[string]int64 `json:"costs"`
	FreeThreshold int64            `json:"freeThreshold"`
}

type partnerDocument struct {
	ID                  string                       `json:"id"`
	Name                string                       `json:"name"`
	Coverage            []string                     `json:"coverage"`
	MaxWeightKg         float64                      `json:"maxWeightKg"`
	Rates               map[string]rateTableDocument `json:"rates"`
	CommissionRate      float64                      `json:"commissionRate"`
	AffiliateEnabled    bool                         `json:"affiliateEnabled"`
	TrackingURLTemplate string                       `json:"trackingUrlTemplate"`
}

func (d registryDocument) toSnapshot() *Snapshot {
	snapshot := &Snapshot{
		Version:     d.Version,
		Currency:    d.Currency,
		Zones:       make(map[string]domain.ShippingZone, len(d.Zones)),
		ZoneConfigs: make(map[domain.ShippingZone]domain.ZoneConfig, len(d.ZoneConfigs)),
		Partners:    make([]domain.CarrierPartner, 0, len(d.Partners)),
	}
	for country, zone := range d.Zones {
		snapshot.Zones[country] = domain.ShippingZone(zone)
	}
	for zone, cfg := range d.ZoneConfigs {
		key := domain.ShippingZone(zone)
		snapshot.ZoneConfigs[key] = cfg.toZoneConfig(key)
	}
	for _, partner := range d.Partners {
		snapshot.Partners = append(snapshot.Partners, partner.toPartner())
	}
	return snapshot
}

func (d zoneConfigDocument) toZoneConfig(zone domain.ShippingZone) domain.ZoneConfig {
	cfg := domain.ZoneConfig{
		Zone:       zone,
		Thresholds: make([]domain.TierThreshold, 0, len(d.Thresholds)),
		Rates:      d.Rates.toRateTable(),
	}
	for _, threshold := range d.Thresholds {
		cfg.Thresholds = append(cfg.Thresholds, domain.TierThreshold{
			CeilingKg: threshold.CeilingKg,
			Tier:      domain.PricingTier(threshold.Tier),
		})
	}
	return cfg
}

func (d rateTableDocument) toRateTable() domain.TierRateTable {
	table := domain.TierRateTable{
		Costs:         make(map[domain.PricingTier]int64, len(d.Costs)),
		FreeThreshold: d.FreeThreshold,
	}
	for tier, cost := range d.Costs {
		table.Costs[domain.PricingTier(tier)] = cost
	}
	return table
}

func (d partnerDocument) toPartner() domain.CarrierPartner {
	partner := domain.CarrierPartner{
		ID:                  d.ID,
		Name:                d.Name,
		Coverage:            append([]string(nil), d.Coverage...),
		MaxWeightKg:         d.MaxWeightKg,
		Rates:               make(map[domain.ShippingZone]domain.TierRateTable, len(d.Rates)),
		CommissionRate:      d.CommissionRate,
		AffiliateEnabled:    d.AffiliateEnabled,
		TrackingURLTemplate: d.TrackingURLTemplate,
	}
	for zone, rates := range d.Rates {
		partner.Rates[domain.ShippingZone(zone)] = rates.toRateTable()
	}
	return partner
}
