// Package webhooks authenticates inbound provider callbacks. Each Source
// turns a raw body plus headers into an Event or rejects it.
package webhooks

import (
	"errors"
	"net/http"
)

const (
	ProviderStripe  = "stripe"
	ProviderFrameio = "frameio"
	ProviderTrello  = "trello"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrNotConfigured    = errors.New("webhook secret not configured")
)

// Event is an authenticated delivery. ID is stable across provider retries
// and is used as the idempotency key.
type Event struct {
	Provider string
	ID       string
	Type     string
	Payload  []byte
}

type Source interface {
	Provider() string
	Verify(header http.Header, body []byte) (*Event, error)
}
