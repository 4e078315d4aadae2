package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-goods/shipping-api/internal/checkout"
	"github.com/meridian-goods/shipping-api/internal/domain"
	"github.com/meridian-goods/shipping-api/internal/platform/httpx"
	"github.com/meridian-goods/shipping-api/internal/services"
)

// CheckoutHandlers exposes the checkout session endpoint. It prices the cart
// through the quote service and hands the resulting shipping options to the
// PSP provider.
type CheckoutHandlers struct {
	quotes   QuoteProvider
	sessions checkout.Provider
}

const maxCheckoutBodySize = 64 * 1024

// NewCheckoutHandlers constructs handlers backed by the quote service and PSP provider.
func NewCheckoutHandlers(quotes QuoteProvider, sessions checkout.Provider) *CheckoutHandlers {
	return &CheckoutHandlers{
		quotes:   quotes,
		sessions: sessions,
	}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/session", h.postSession)
}

type checkoutItemRequest struct {
	ProductID   string           `json:"productId"`
	Name        string           `json:"name"`
	Quantity    int              `json:"quantity"`
	UnitAmount  int64            `json:"unitAmount"`
	WeightGrams int              `json:"weightGrams"`
	Dimensions  quoteDimsRequest `json:"dimensionsCm"`
}

type checkoutSessionRequest struct {
	Items          []checkoutItemRequest `json:"items"`
	Country        string                `json:"country"`
	Priority       string                `json:"priority"`
	CustomerID     string                `json:"customerId"`
	SuccessURL     string                `json:"successUrl"`
	CancelURL      string                `json:"cancelUrl"`
	Locale         string                `json:"locale"`
	IdempotencyKey string                `json:"idempotencyKey"`
}

type checkoutSessionResponse struct {
	SessionID   string         `json:"sessionId"`
	Provider    string         `json:"provider"`
	RedirectURL string         `json:"redirectUrl,omitempty"`
	ExpiresAt   string         `json:"expiresAt"`
	Quotes      []quotePayload `json:"quotes"`
	Fallback    bool           `json:"fallback"`
}

func (h *CheckoutHandlers) postSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil || h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req checkoutSessionRequest
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
	if strings.TrimSpace(req.SuccessURL) == "" || strings.TrimSpace(req.CancelURL) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "successUrl and cancelUrl are required", http.StatusBadRequest))
		return
	}

	lines := make([]domain.CartLine, 0, len(req.Items))
	orderTotal := int64(0)
	for _, item := range req.Items {
		if item.Quantity > 0 {
			orderTotal += item.UnitAmount * int64(item.Quantity)
		}
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
		OrderTotal: orderTotal,
		Priority:   req.Priority,
	})
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	items := make([]checkout.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, checkout.LineItem{
			Name:     item.Name,
			SKU:      item.ProductID,
			Quantity: int64(item.Quantity),
			Amount:   item.UnitAmount,
			Currency: result.Currency,
		})
	}

	session, err := h.sessions.CreateSession(ctx, checkout.SessionRequest{
		Currency:       result.Currency,
		CustomerID:     req.CustomerID,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		Locale:         req.Locale,
		IdempotencyKey: req.IdempotencyKey,
		Metadata: map[string]string{
			"country": strings.ToUpper(strings.TrimSpace(req.Country)),
			"zone":    string(result.Zone),
		},
		Items:  items,
		Quotes: result.Quotes,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	payload := checkoutSessionResponse{
		SessionID:   session.ID,
		Provider:    session.Provider,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   formatTime(session.ExpiresAt),
		Quotes:      buildQuotesResponse(result, req.Locale).Quotes,
		Fallback:    result.Fallback,
	}
	writeJSONResponse(w, http.StatusCreated, payload)
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, checkout.ErrTooManyShippingOptions) {
		httpx.WriteError(ctx, w, httpx.NewError("too_many_options", "assembled more shipping options than the provider accepts", http.StatusUnprocessableEntity))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("checkout_failed", "failed to create checkout session", http.StatusBadGateway))
}
