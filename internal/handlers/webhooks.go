package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-goods/shipping-api/internal/domain"
	"github.com/meridian-goods/shipping-api/internal/platform/httpx"
	"github.com/meridian-goods/shipping-api/internal/services"
)

// RegistryReloader triggers a refresh of the carrier registry.
type RegistryReloader interface {
	Reload(ctx context.Context) error
}

// WebhookHandlers serves the checkout provider's server-to-server callbacks.
// Authentication is applied as group middleware by the router.
type WebhookHandlers struct {
	quotes   QuoteProvider
	registry RegistryReloader
	logger   func(ctx context.Context, event string, fields map[string]any)
}

const maxWebhookBodySize = 32 * 1024

// NewWebhookHandlers constructs the webhook endpoints.
func NewWebhookHandlers(quotes QuoteProvider, registry RegistryReloader, logger func(ctx context.Context, event string, fields map[string]any)) *WebhookHandlers {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &WebhookHandlers{
		quotes:   quotes,
		registry: registry,
		logger:   logger,
	}
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/shipping-rates", h.postShippingRates)
	r.Post("/registry-changed", h.postRegistryChanged)
}

// rateCallbackRequest is the payload the checkout provider posts when it
// needs shipping rates for an in-flight checkout. Field names follow the
// provider's carrier-service contract (snake_case, weights in grams).
type rateCallbackRequest struct {
	Rate struct {
		Destination struct {
			Country string `json:"country"`
		} `json:"destination"`
		Items []struct {
			Name     string `json:"name"`
			SKU      string `json:"sku"`
			Quantity int    `json:"quantity"`
			Grams    int    `json:"grams"`
			Price    int64  `json:"price"`
		} `json:"items"`
		Currency string `json:"currency"`
		Locale   string `json:"locale"`
	} `json:"rate"`
}

type rateCallbackEntry struct {
	ServiceName     string            `json:"service_name"`
	ServiceCode     string            `json:"service_code"`
	TotalPrice      int64             `json:"total_price"`
	Currency        string            `json:"currency"`
	MinDeliveryDays int               `json:"min_delivery_days"`
	MaxDeliveryDays int               `json:"max_delivery_days"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type rateCallbackResponse struct {
	Rates []rateCallbackEntry `json:"rates"`
}

// postShippingRates answers the provider's rate callback with at most five
// entries. The provider payload carries no dimensions, so parcels are priced
// on weight alone.
func (h *WebhookHandlers) postShippingRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quote_service_unavailable", "quote service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req rateCallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Rate.Destination.Country) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "rate.destination.country is required", http.StatusBadRequest))
		return
	}
	if len(req.Rate.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "rate.items must not be empty", http.StatusBadRequest))
		return
	}

	lines := make([]domain.CartLine, 0, len(req.Rate.Items))
	var orderTotal int64
	for _, item := range req.Rate.Items {
		lines = append(lines, domain.CartLine{
			ProductID:   item.SKU,
			Quantity:    item.Quantity,
			WeightGrams: item.Grams,
		})
		if item.Quantity > 0 {
			orderTotal += item.Price * int64(item.Quantity)
		}
	}

	result, err := h.quotes.Quote(ctx, services.QuoteRequest{
		Lines:      lines,
		Country:    req.Rate.Destination.Country,
		OrderTotal: orderTotal,
	})
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	h.logger(ctx, "shipping.webhook.rates_served", map[string]any{
		"country":  req.Rate.Destination.Country,
		"zone":     string(result.Zone),
		"quotes":   len(result.Quotes),
		"fallback": result.Fallback,
	})

	rates := make([]rateCallbackEntry, 0, len(result.Quotes))
	for _, quote := range result.Quotes {
		entry := rateCallbackEntry{
			ServiceName:     rateServiceName(quote),
			ServiceCode:     fmt.Sprintf("%s_%s", quote.CarrierID, quote.Tier),
			TotalPrice:      quote.Amount,
			Currency:        quote.Currency,
			MinDeliveryDays: quote.Estimate.MinDays,
			MaxDeliveryDays: quote.Estimate.MaxDays,
			Metadata: map[string]string{
				"carrierId": quote.CarrierID,
				"tier":      string(quote.Tier),
			},
		}
		if quote.Metadata.AffiliateTrackingID != "" {
			entry.Metadata["affiliateTrackingId"] = quote.Metadata.AffiliateTrackingID
		}
		rates = append(rates, entry)
	}

	writeJSONResponse(w, http.StatusOK, rateCallbackResponse{Rates: rates})
}

func rateServiceName(quote domain.ShippingQuote) string {
	if quote.Tier == domain.TierFree {
		return fmt.Sprintf("%s (Free Shipping)", quote.CarrierName)
	}
	tier := string(quote.Tier)
	if tier != "" {
		tier = strings.ToUpper(tier[:1]) + tier[1:]
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s", quote.CarrierName, tier))
}

type registryChangedEvent struct {
	CarrierID string `json:"carrierId"`
	Event     string `json:"event"`
}

// postRegistryChanged handles a carrier telling us its rate card changed. The
// registry is re-read from the backing source so the next quote request sees
// the new prices.
func (h *WebhookHandlers) postRegistryChanged(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.registry == nil {
		httpx.WriteError(ctx, w, httpx.NewError("registry_unavailable", "registry reload is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var event registryChangedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(event.CarrierID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "carrierId is required", http.StatusBadRequest))
		return
	}

	h.logger(ctx, "shipping.webhook.registry_changed", map[string]any{
		"carrier_id": event.CarrierID,
		"event":      event.Event,
	})

	if err := h.registry.Reload(ctx); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("reload_failed", "failed to reload carrier registry", http.StatusBadGateway))
		return
	}

	writeJSONResponse(w, http.StatusAccepted, map[string]any{
		"status":    "accepted",
		"carrierId": event.CarrierID,
	})
}
