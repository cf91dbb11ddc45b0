// Package processor wraps the Stripe API client for the calls billing makes:
// subscription fetch, customer creation and hosted checkout.
package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

var ErrNotFound = errors.New("processor: resource not found")

// Checkout modes.
const (
	ModeSubscription = string(stripe.CheckoutSessionModeSubscription)
	ModePayment      = string(stripe.CheckoutSessionModePayment)
)

type Config struct {
	SecretKey string
	// APIBase overrides the API host, e.g. for stripe-mock.
	APIBase    string
	MaxRetries int64
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

type Client struct {
	api *client.API
}

func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	bc := &stripe.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
		LeveledLogger:     leveledLogger{cfg.Logger.With().Str("component", "stripe").Logger()},
	}
	if cfg.APIBase != "" {
		bc.URL = stripe.String(cfg.APIBase)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, bc)
	return &Client{api: client.New(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})}
}

// apiError maps a missing resource to ErrNotFound and leaves other failures
// as *stripe.Error.
func apiError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && (se.HTTPStatusCode == http.StatusNotFound || se.Code == stripe.ErrorCodeResourceMissing) {
		return fmt.Errorf("%w: %s: %s", ErrNotFound, op, se.Msg)
	}
	return fmt.Errorf("stripe %s: %w", op, err)
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	p := &stripe.SubscriptionParams{}
	p.Context = ctx
	s, err := c.api.Subscriptions.Get(id, p)
	if err != nil {
		return nil, apiError("get subscription", err)
	}
	return s, nil
}

// CreateCustomer registers a processor customer tagged with the application user id.
func (c *Client) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	p := &stripe.CustomerParams{}
	p.Context = ctx
	if email != "" {
		p.Email = stripe.String(email)
	}
	p.AddMetadata("user_id", userID)
	cu, err := c.api.Customers.New(p)
	if err != nil {
		return "", apiError("create customer", err)
	}
	return cu.ID, nil
}

// CheckoutParams describes one hosted checkout session with a single line item.
type CheckoutParams struct {
	Mode        string
	CustomerID  string
	UserID      string
	ProductName string
	AmountCents int64
	Currency    string
	// Interval is the recurring interval for subscription mode ("month").
	Interval   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

func (p CheckoutParams) params(ctx context.Context) *stripe.CheckoutSessionParams {
	if p.Currency == "" {
		p.Currency = string(stripe.CurrencyUSD)
	}
	price := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:    stripe.String(p.Currency),
		UnitAmount:  stripe.Int64(p.AmountCents),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(p.ProductName)},
	}
	sp := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(p.Mode),
		Customer:          stripe.String(p.CustomerID),
		ClientReferenceID: stripe.String(p.UserID),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{{PriceData: price, Quantity: stripe.Int64(1)}},
	}
	sp.Context = ctx
	sp.AddMetadata("user_id", p.UserID)
	for k, v := range p.Metadata {
		sp.AddMetadata(k, v)
	}
	if p.Mode == ModeSubscription {
		interval := p.Interval
		if interval == "" {
			interval = string(stripe.PriceRecurringIntervalMonth)
		}
		price.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{Interval: stripe.String(interval)}
		if len(p.Metadata) > 0 {
			sp.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: p.Metadata}
		}
	}
	return sp
}

func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*stripe.CheckoutSession, error) {
	s, err := c.api.CheckoutSessions.New(p.params(ctx))
	if err != nil {
		return nil, apiError("create checkout session", err)
	}
	return s, nil
}
