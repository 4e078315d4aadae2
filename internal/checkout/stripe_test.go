package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"

	"github.com/meridian-goods/shipping-api/internal/domain"
)

type fakeSessions struct {
	params  *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	err     error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	if f.session != nil {
		return f.session, nil
	}
	return &stripe.CheckoutSession{
		ID:        "cs_test_123",
		URL:       "https://checkout.example.com/cs_test_123",
		ExpiresAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Unix(),
	}, nil
}

func testQuotes(n int) []domain.ShippingQuote {
	quotes := make([]domain.ShippingQuote, 0, n)
	for i := 0; i < n; i++ {
		quotes = append(quotes, domain.ShippingQuote{
			ID:          "quote-" + string(rune('a'+i)),
			CarrierID:   "brt",
			CarrierName: "BRT",
			Tier:        domain.TierStandard,
			Amount:      500,
			Currency:    "EUR",
			Estimate:    domain.DeliveryEstimate{MinDays: 2, MaxDays: 5},
			Metadata: domain.QuoteMetadata{
				CarrierID: "brt",
				Tier:      domain.TierStandard,
			},
		})
	}
	return quotes
}

func newTestProvider(t *testing.T, sessions *fakeSessions) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		Sessions: sessions,
		Clock: func() time.Time {
			return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	return provider
}

func TestCreateSessionBuildsShippingOptions(t *testing.T) {
	sessions := &fakeSessions{}
	provider := newTestProvider(t, sessions)

	quotes := testQuotes(2)
	quotes[1].Tier = domain.TierFree
	quotes[1].Amount = 0
	quotes[1].Metadata.Tier = domain.TierFree
	quotes[1].Metadata.AffiliateTrackingID = "trk-1"
	quotes[1].Estimate = domain.DeliveryEstimate{MinDays: 3, MaxDays: 7}

	session, err := provider.CreateSession(context.Background(), SessionRequest{
		Currency:   "EUR",
		SuccessURL: "https://shop.example.com/success",
		CancelURL:  "https://shop.example.com/cancel",
		Items: []LineItem{
			{Name: "Walnut board", Quantity: 2, Amount: 4500},
		},
		Quotes: quotes,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.ID != "cs_test_123" {
		t.Fatalf("session ID = %q", session.ID)
	}
	if session.RedirectURL == "" {
		t.Fatal("expected redirect URL")
	}

	params := sessions.params
	if params == nil {
		t.Fatal("expected session params to be captured")
	}
	if got := len(params.ShippingOptions); got != 2 {
		t.Fatalf("shipping options = %d, want 2", got)
	}

	paid := params.ShippingOptions[0].ShippingRateData
	if got := stripe.Int64Value(paid.FixedAmount.Amount); got != 500 {
		t.Fatalf("paid option amount = %d, want 500", got)
	}
	if got := stripe.StringValue(paid.FixedAmount.Currency); got != "eur" {
		t.Fatalf("paid option currency = %q, want eur", got)
	}
	if paid.DeliveryEstimate == nil {
		t.Fatal("expected delivery estimate on paid option")
	}
	if got := stripe.Int64Value(paid.DeliveryEstimate.Minimum.Value); got != 2 {
		t.Fatalf("paid minimum days = %d, want 2", got)
	}
	if got := paid.Metadata["carrierId"]; got != "brt" {
		t.Fatalf("paid carrierId metadata = %q", got)
	}

	free := params.ShippingOptions[1].ShippingRateData
	if got := stripe.Int64Value(free.FixedAmount.Amount); got != 0 {
		t.Fatalf("free option amount = %d, want 0", got)
	}
	if got := stripe.StringValue(free.DisplayName); got != "BRT (Free Shipping)" {
		t.Fatalf("free display name = %q", got)
	}
	if got := free.Metadata["affiliateTrackingId"]; got != "trk-1" {
		t.Fatalf("free tracking metadata = %q", got)
	}
}

func TestCreateSessionRejectsTooManyQuotes(t *testing.T) {
	provider := newTestProvider(t, &fakeSessions{})

	_, err := provider.CreateSession(context.Background(), SessionRequest{
		Currency:   "EUR",
		SuccessURL: "https://shop.example.com/success",
		CancelURL:  "https://shop.example.com/cancel",
		Quotes:     testQuotes(6),
	})
	if !errors.Is(err, ErrTooManyShippingOptions) {
		t.Fatalf("err = %v, want ErrTooManyShippingOptions", err)
	}
}

func TestCreateSessionRequiresQuotes(t *testing.T) {
	provider := newTestProvider(t, &fakeSessions{})

	_, err := provider.CreateSession(context.Background(), SessionRequest{
		Currency:   "EUR",
		SuccessURL: "https://shop.example.com/success",
		CancelURL:  "https://shop.example.com/cancel",
	})
	if err == nil {
		t.Fatal("expected error for empty quote list")
	}
}

func TestCreateSessionPropagatesStripeError(t *testing.T) {
	sessions := &fakeSessions{err: errors.New("rate limited")}
	provider := newTestProvider(t, sessions)

	_, err := provider.CreateSession(context.Background(), SessionRequest{
		Currency:   "EUR",
		SuccessURL: "https://shop.example.com/success",
		CancelURL:  "https://shop.example.com/cancel",
		Quotes:     testQuotes(1),
	})
	if err == nil {
		t.Fatal("expected error from session create")
	}
}

func TestNewStripeProviderRequiresAPIKeyOrClient(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatal("expected error without api key or client")
	}
}
