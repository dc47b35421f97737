package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	FrameioTimestampHeader = "X-Frameio-Request-Timestamp"
	FrameioSignatureHeader = "X-Frameio-Signature"

	frameioTolerance = 5 * time.Minute
)

// FrameioPayload is the body of a Frame.io v4 webhook delivery.
type FrameioPayload struct {
	Type     string `json:"type"`
	Resource struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"resource"`
	Account struct {
		ID string `json:"id"`
	} `json:"account"`
	Project struct {
		ID string `json:"id"`
	} `json:"project"`
}

type FrameioSource struct {
	secret string
	now    func() time.Time
}

func NewFrameioSource(secret string) *FrameioSource {
	return &FrameioSource{secret: secret, now: time.Now}
}

func (s *FrameioSource) Provider() string { return ProviderFrameio }

// SignFrameio computes the v0 signature for a timestamp and body.
func SignFrameio(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func (s *FrameioSource) Verify(header http.Header, body []byte) (*Event, error) {
	if s.secret == "" {
		return nil, ErrNotConfigured
	}
	ts := header.Get(FrameioTimestampHeader)
	sig := header.Get(FrameioSignatureHeader)
	if ts == "" || sig == "" {
		return nil, ErrMissingSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	age := s.now().Sub(time.Unix(unix, 0))
	if age > frameioTolerance || age < -frameioTolerance {
		return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := SignFrameio(s.secret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(sig))) {
		return nil, ErrInvalidSignature
	}

	var payload FrameioPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Type == "" {
		return nil, ErrMalformedPayload
	}

	// Deliveries carry no id; a retry repeats the same type, resource and timestamp.
	return &Event{
		Provider: ProviderFrameio,
		ID:       payload.Type + ":" + payload.Resource.ID + ":" + ts,
		Type:     payload.Type,
		Payload:  body,
	}, nil
}
