// Package payments creates Stripe Checkout sessions and decodes the Stripe
// objects carried by webhook events.
package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Checkout metadata keys. Webhook handling trusts nothing else.
const (
	MetaProjectID   = "project_id"
	MetaUserID      = "user_id"
	MetaPaymentType = "payment_type"
	MetaTier        = "tier"

	PaymentTypeRevision     = "revision"
	PaymentTypeSubscription = "subscription"
)

type RevisionCheckout struct {
	ProjectID     string
	ProjectTitle  string
	UserID        string
	CustomerEmail string
	AmountCents   int64
	Currency      string
	SuccessURL    string
	CancelURL     string
}

type SubscriptionCheckout struct {
	UserID        string
	CustomerEmail string
	Tier          string
	PriceID       string
	SuccessURL    string
	CancelURL     string
}

type Checkout struct {
	SessionID   string
	URL         string
	AmountCents int64
	Currency    string
}

// Gateway is the payment provider surface used by the services.
type Gateway interface {
	CreateRevisionCheckout(ctx context.Context, in RevisionCheckout) (*Checkout, error)
	CreateSubscriptionCheckout(ctx context.Context, in SubscriptionCheckout) (*Checkout, error)
}

type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string, backends *stripe.Backends) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeGateway{api: api}
}

func (g *StripeGateway) CreateRevisionCheckout(ctx context.Context, in RevisionCheckout) (*Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(in.SuccessURL),
		CancelURL:         stripe.String(in.CancelURL),
		ClientReferenceID: stripe.String(in.ProjectID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(in.Currency),
				UnitAmount: stripe.Int64(in.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("Revision: %s", in.ProjectTitle)),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata(MetaProjectID, in.ProjectID)
	params.AddMetadata(MetaUserID, in.UserID)
	params.AddMetadata(MetaPaymentType, PaymentTypeRevision)

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create revision checkout: %w", err)
	}
	return &Checkout{SessionID: s.ID, URL: s.URL, AmountCents: in.AmountCents, Currency: in.Currency}, nil
}

func (g *StripeGateway) CreateSubscriptionCheckout(ctx context.Context, in SubscriptionCheckout) (*Checkout, error) {
	if in.PriceID == "" {
		return nil, fmt.Errorf("no price configured for tier %q", in.Tier)
	}
	meta := map[string]string{
		MetaUserID:      in.UserID,
		MetaTier:        in.Tier,
		MetaPaymentType: PaymentTypeSubscription,
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(in.SuccessURL),
		CancelURL:         stripe.String(in.CancelURL),
		ClientReferenceID: stripe.String(in.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(in.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: meta,
		},
	}
	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	params.Context = ctx
	for k, v := range meta {
		params.AddMetadata(k, v)
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription checkout: %w", err)
	}
	return &Checkout{SessionID: s.ID, URL: s.URL}, nil
}
