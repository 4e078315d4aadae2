package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-goods/shipping-api/internal/domain"
	"github.com/meridian-goods/shipping-api/internal/platform/httpx"
	"github.com/meridian-goods/shipping-api/internal/services"
)

// QuoteProvider is the slice of the quote service the shipping handlers use.
type QuoteProvider interface {
	Quote(ctx context.Context, req services.QuoteRequest) (services.QuoteResult, error)
}

// ShippingHandlers exposes the quote endpoint.
type ShippingHandlers struct {
	quotes  QuoteProvider
	limiter rateLimiter
}

const maxQuoteBodySize = 64 * 1024

// ShippingOption customises the shipping handlers.
type ShippingOption func(*ShippingHandlers)

// WithQuoteRateLimit throttles the quote endpoint per caller IP.
func WithQuoteRateLimit(limit int, window time.Duration) ShippingOption {
	return func(h *ShippingHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewShippingHandlers constructs handlers backed by the quote service.
func NewShippingHandlers(quotes QuoteProvider, opts ...ShippingOption) *ShippingHandlers {
	h := &ShippingHandlers{quotes: quotes}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes wires the /shipping endpoints onto the provided router.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(quoteRateLimit(h.limiter)).Post("/quotes", h.postQuotes)
}

type quoteItemRequest struct {
	ProductID   string           `json:"productId"`
	Quantity    int              `json:"quantity"`
	WeightGrams int              `json:"weightGrams"`
	Dimensions  quoteDimsRequest `json:"dimensionsCm"`
}

type quoteDimsRequest struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type quoteRequest struct {
	Items      []quoteItemRequest `json:"items"`
	Country    string             `json:"country"`
	OrderTotal int64              `json:"orderTotal"`
	Priority   string             `json:"priority"`
	Locale     string             `json:"locale"`
}

type quoteEstimatePayload struct {
	MinDays int `json:"minDays"`
	MaxDays int `json:"maxDays"`
}

type quotePayload struct {
	ID                  string               `json:"id"`
	CarrierID           string               `json:"carrierId"`
	CarrierName         string               `json:"carrierName"`
	Tier                string               `json:"tier"`
	Amount              int64                `json:"amount"`
	Currency            string               `json:"currency"`
	DisplayAmount       string               `json:"displayAmount,omitempty"`
	Estimate            quoteEstimatePayload `json:"estimate"`
	AffiliateTrackingID string               `json:"affiliateTrackingId,omitempty"`
	CreatedAt           string               `json:"createdAt"`
}

type parcelPayload struct {
	WeightKg   float64 `json:"weightKg"`
	LengthCm   float64 `json:"lengthCm"`
	WidthCm    float64 `json:"widthCm"`
	HeightCm   float64 `json:"heightCm"`
	VolumeCm3  float64 `json:"volumeCm3"`
	TotalItems int     `json:"totalItems"`
}

type quotesResponse struct {
	Quotes      []quotePayload   `json:"quotes"`
	Parcel      parcelPayload    `json:"parcel"`
	Zone        string           `json:"zone"`
	Currency    string           `json:"currency"`
	Fallback    bool             `json:"fallback"`
	Commissions map[string]int64 `json:"commissions,omitempty"`
}

func (h *ShippingHandlers) postQuotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quote_service_unavailable", "quote service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxQuoteBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req quoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if len(req.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "at least one cart item is required", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Country) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "country is required", http.StatusBadRequest))
		return
	}

	lines := make([]domain.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, domain.CartLine{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			WeightGrams: item.WeightGrams,
			Dimensions: domain.Dimensions{
				LengthCm: item.Dimensions.Length,
				WidthCm:  item.Dimensions.Width,
				HeightCm: item.Dimensions.Height,
			},
		})
	}

	result, err := h.quotes.Quote(ctx, services.QuoteRequest{
		Lines:      lines,
		Country:    req.Country,
		OrderTotal: req.OrderTotal,
		Priority:   req.Priority,
	})
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildQuotesResponse(result, req.Locale))
}

func buildQuotesResponse(result services.QuoteResult, locale string) quotesResponse {
	quotes := make([]quotePayload, 0, len(result.Quotes))
	for _, quote := range result.Quotes {
		quotes = append(quotes, quotePayload{
			ID:            quote.ID,
			CarrierID:     quote.CarrierID,
			CarrierName:   quote.CarrierName,
			Tier:          string(quote.Tier),
			Amount:        quote.Amount,
			Currency:      quote.Currency,
			DisplayAmount: formatAmount(quote.Amount, quote.Currency, locale),
			Estimate: quoteEstimatePayload{
				MinDays: quote.Estimate.MinDays,
				MaxDays: quote.Estimate.MaxDays,
			},
			AffiliateTrackingID: quote.Metadata.AffiliateTrackingID,
			CreatedAt:           formatTime(quote.CreatedAt),
		})
	}

	return quotesResponse{
		Quotes: quotes,
		Parcel: parcelPayload{
			WeightKg:   result.Parcel.WeightKg,
			LengthCm:   result.Parcel.Bounding.LengthCm,
			WidthCm:    result.Parcel.Bounding.WidthCm,
			HeightCm:   result.Parcel.Bounding.HeightCm,
			VolumeCm3:  result.Parcel.VolumeCm3,
			TotalItems: result.Parcel.TotalItems,
		},
		Zone:        string(result.Zone),
		Currency:    result.Currency,
		Fallback:    result.Fallback,
		Commissions: result.Commissions,
	}
}

func writeQuoteError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrQuoteInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "quote request is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrRegistryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("registry_unavailable", "carrier registry is not loaded", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("quote_failed", "failed to assemble shipping quotes", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds the allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "failed to read request body", http.StatusBadRequest))
	}
}
