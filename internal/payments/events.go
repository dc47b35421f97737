package payments

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
)

// Stripe event types the ingestion layer acts on.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventCheckoutExpired      = "checkout.session.expired"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

func decodeObject(ev *stripe.Event, out any) error {
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return fmt.Errorf("event %s has no data object", ev.ID)
	}
	if err := json.Unmarshal(ev.Data.Raw, out); err != nil {
		return fmt.Errorf("failed to decode %s object: %w", ev.Type, err)
	}
	return nil
}

func CheckoutSession(ev *stripe.Event) (*stripe.CheckoutSession, error) {
	var s stripe.CheckoutSession
	if err := decodeObject(ev, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func Subscription(ev *stripe.Event) (*stripe.Subscription, error) {
	var s stripe.Subscription
	if err := decodeObject(ev, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func Invoice(ev *stripe.Event) (*stripe.Invoice, error) {
	var inv stripe.Invoice
	if err := decodeObject(ev, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}
