package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-goods/shipping-api/internal/checkout"
)

type stubSessionProvider struct {
	req     checkout.SessionRequest
	session checkout.Session
	err     error
}

func (s *stubSessionProvider) CreateSession(_ context.Context, req checkout.SessionRequest) (checkout.Session, error) {
	s.req = req
	if s.err != nil {
		return checkout.Session{}, s.err
	}
	return s.session, nil
}

func checkoutRequestBody() string {
	return `{
		"items": [
			{"productId": "board-1", "name": "Walnut board", "quantity": 2, "unitAmount": 4500, "weightGrams": 800, "dimensionsCm": {"length": 40, "width": 25, "height": 4}}
		],
		"country": "IT",
		"successUrl": "https://shop.example.com/success",
		"cancelUrl": "https://shop.example.com/cancel",
		"locale": "it"
	}`
}

func newCheckoutRouter(h *CheckoutHandlers) chi.Router {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestPostSessionCreatesCheckout(t *testing.T) {
	quotes := &stubQuoteProvider{result: sampleQuoteResult()}
	sessions := &stubSessionProvider{
		session: checkout.Session{
			ID:          "cs_test_123",
			Provider:    "stripe",
			RedirectURL: "https://checkout.example.com/cs_test_123",
			ExpiresAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	router := newCheckoutRouter(NewCheckoutHandlers(quotes, sessions))

	req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(checkoutRequestBody()))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var body checkoutSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body.SessionID != "cs_test_123" || body.Provider != "stripe" {
		t.Fatalf("unexpected session payload: %+v", body)
	}
	if len(body.Quotes) != 1 {
		t.Fatalf("quotes = %d, want 1", len(body.Quotes))
	}

	// Order total is derived from the cart lines (2 x 4500).
	if quotes.req.OrderTotal != 9000 {
		t.Fatalf("order total = %d, want 9000", quotes.req.OrderTotal)
	}
	if sessions.req.Currency != "EUR" {
		t.Fatalf("session currency = %q", sessions.req.Currency)
	}
	if len(sessions.req.Quotes) != 1 {
		t.Fatalf("session quotes = %d", len(sessions.req.Quotes))
	}
	if sessions.req.Metadata["country"] != "IT" || sessions.req.Metadata["zone"] != "domestic" {
		t.Fatalf("session metadata = %v", sessions.req.Metadata)
	}
	if len(sessions.req.Items) != 1 || sessions.req.Items[0].SKU != "board-1" {
		t.Fatalf("session items = %+v", sessions.req.Items)
	}
}

func TestPostSessionValidatesPayload(t *testing.T) {
	router := newCheckoutRouter(NewCheckoutHandlers(&stubQuoteProvider{result: sampleQuoteResult()}, &stubSessionProvider{}))

	cases := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "no items", body: `{"items": [], "country": "IT", "successUrl": "https://a", "cancelUrl": "https://b"}`},
		{name: "missing country", body: `{"items": [{"quantity": 1}], "successUrl": "https://a", "cancelUrl": "https://b"}`},
		{name: "missing urls", body: `{"items": [{"quantity": 1}], "country": "IT"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestPostSessionMapsProviderErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "too many options", err: checkout.ErrTooManyShippingOptions, want: http.StatusUnprocessableEntity},
		{name: "psp failure", err: errors.New("stripe unavailable"), want: http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newCheckoutRouter(NewCheckoutHandlers(
				&stubQuoteProvider{result: sampleQuoteResult()},
				&stubSessionProvider{err: tc.err},
			))
			req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(checkoutRequestBody()))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}
