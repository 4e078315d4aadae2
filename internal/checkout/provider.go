package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/meridian-goods/shipping-api/internal/domain"
)

// ErrTooManyShippingOptions is returned when a session request carries more
// shipping quotes than the PSP accepts.
var ErrTooManyShippingOptions = errors.New("checkout: too many shipping options")

// LineItem describes a single cart line to include in a checkout session.
type LineItem struct {
	Name        string
	Description string
	SKU         string
	Quantity    int64
	Amount      int64
	Currency    string
}

// SessionRequest captures the payload required to create a checkout session
// carrying the priced shipping options.
type SessionRequest struct {
	Currency       string
	CustomerID     string
	SuccessURL     string
	CancelURL      string
	Locale         string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []LineItem
	Quotes         []domain.ShippingQuote
}

// Session represents the PSP session returned to the client.
type Session struct {
	ID           string
	Provider     string
	ClientSecret string
	RedirectURL  string
	ExpiresAt    time.Time
}

// Provider creates PSP checkout sessions.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}
