package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const TrelloSignatureHeader = "X-Trello-Webhook"

// TrelloPayload is the subset of a Trello action delivery we read.
type TrelloPayload struct {
	Action struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			IDMember string `json:"idMember"`
			Card     struct {
				ID string `json:"id"`
			} `json:"card"`
		} `json:"data"`
		Member struct {
			ID       string `json:"id"`
			FullName string `json:"fullName"`
			Username string `json:"username"`
		} `json:"member"`
	} `json:"action"`
}

// TrelloSource verifies deliveries signed with the application secret over
// the body followed by the registered callback URL.
type TrelloSource struct {
	secret      string
	callbackURL string
}

func NewTrelloSource(secret, callbackURL string) *TrelloSource {
	return &TrelloSource{secret: secret, callbackURL: callbackURL}
}

func (s *TrelloSource) Provider() string { return ProviderTrello }

func SignTrello(secret string, body []byte, callbackURL string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte(callbackURL))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (s *TrelloSource) Verify(header http.Header, body []byte) (*Event, error) {
	if s.secret == "" {
		return nil, ErrNotConfigured
	}
	sig := header.Get(TrelloSignatureHeader)
	if sig == "" {
		return nil, ErrMissingSignature
	}
	expected := SignTrello(s.secret, body, s.callbackURL)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return nil, ErrInvalidSignature
	}

	var payload TrelloPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Action.ID == "" {
		return nil, ErrMalformedPayload
	}

	return &Event{
		Provider: ProviderTrello,
		ID:       payload.Action.ID,
		Type:     payload.Action.Type,
		Payload:  body,
	}, nil
}
