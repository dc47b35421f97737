package webhooks

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"
)

const StripeSignatureHeader = "Stripe-Signature"

type StripeSource struct {
	secret    string
	tolerance time.Duration
}

func NewStripeSource(secret string) *StripeSource {
	return &StripeSource{secret: secret, tolerance: webhook.DefaultTolerance}
}

func (s *StripeSource) Provider() string { return ProviderStripe }

func (s *StripeSource) Verify(header http.Header, body []byte) (*Event, error) {
	if s.secret == "" {
		return nil, ErrNotConfigured
	}
	sig := header.Get(StripeSignatureHeader)
	if sig == "" {
		return nil, ErrMissingSignature
	}

	ev, err := webhook.ConstructEventWithOptions(body, sig, s.secret, webhook.ConstructEventOptions{
		Tolerance:                s.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) {
			return nil, ErrMissingSignature
		}
		if errors.Is(err, webhook.ErrInvalidHeader) || errors.Is(err, webhook.ErrNoValidSignature) || errors.Is(err, webhook.ErrTooOld) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, ErrMalformedPayload
	}

	return &Event{
		Provider: ProviderStripe,
		ID:       ev.ID,
		Type:     string(ev.Type),
		Payload:  body,
	}, nil
}
