package webhooks_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"client-delivery-backend/internal/webhooks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

func stripeHeader(secret string, body []byte, ts time.Time) http.Header {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10) + "."))
	mac.Write(body)
	h := http.Header{}
	h.Set(webhooks.StripeSignatureHeader, fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil))))
	return h
}

func TestStripeSource(t *testing.T) {
	body := []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":"checkout.session.completed","api_version":%q,"data":{"object":{"id":"cs_1"}}}`,
		stripe.APIVersion))
	src := webhooks.NewStripeSource("whsec_test")

	ev, err := src.Verify(stripeHeader("whsec_test", body, time.Now()), body)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, "checkout.session.completed", ev.Type)
	assert.Equal(t, webhooks.ProviderStripe, ev.Provider)

	_, err = src.Verify(stripeHeader("whsec_other", body, time.Now()), body)
	assert.ErrorIs(t, err, webhooks.ErrInvalidSignature)

	_, err = src.Verify(http.Header{}, body)
	assert.ErrorIs(t, err, webhooks.ErrMissingSignature)

	_, err = src.Verify(stripeHeader("whsec_test", body, time.Now().Add(-time.Hour)), body)
	assert.ErrorIs(t, err, webhooks.ErrInvalidSignature)
}

func TestFrameioSource(t *testing.T) {
	body := []byte(`{"type":"file.upload.completed","resource":{"id":"file-1","type":"file"},"account":{"id":"acc"}}`)
	src := webhooks.NewFrameioSource("fio-secret")
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	h := http.Header{}
	h.Set(webhooks.FrameioTimestampHeader, ts)
	h.Set(webhooks.FrameioSignatureHeader, webhooks.SignFrameio("fio-secret", ts, body))

	ev, err := src.Verify(h, body)
	require.NoError(t, err)
	assert.Equal(t, "file.upload.completed", ev.Type)
	assert.Equal(t, "file.upload.completed:file-1:"+ts, ev.ID)

	tampered := append([]byte{}, body...)
	tampered[10] = 'X'
	_, err = src.Verify(h, tampered)
	assert.ErrorIs(t, err, webhooks.ErrInvalidSignature)

	old := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	h.Set(webhooks.FrameioTimestampHeader, old)
	h.Set(webhooks.FrameioSignatureHeader, webhooks.SignFrameio("fio-secret", old, body))
	_, err = src.Verify(h, body)
	assert.ErrorIs(t, err, webhooks.ErrInvalidSignature)

	_, err = src.Verify(http.Header{}, body)
	assert.ErrorIs(t, err, webhooks.ErrMissingSignature)
}

func TestTrelloSource(t *testing.T) {
	body := []byte(`{"action":{"id":"act-1","type":"addMemberToCard","data":{"idMember":"m1","card":{"id":"c1"}},"member":{"id":"m1","fullName":"Ed Itor"}}}`)
	const callback = "https://api.example.com/webhooks/trello"
	src := webhooks.NewTrelloSource("trello-secret", callback)

	h := http.Header{}
	h.Set(webhooks.TrelloSignatureHeader, webhooks.SignTrello("trello-secret", body, callback))
	ev, err := src.Verify(h, body)
	require.NoError(t, err)
	assert.Equal(t, "act-1", ev.ID)
	assert.Equal(t, "addMemberToCard", ev.Type)

	// Signature bound to a different callback URL is rejected.
	h.Set(webhooks.TrelloSignatureHeader, webhooks.SignTrello("trello-secret", body, "https://elsewhere"))
	_, err = src.Verify(h, body)
	assert.ErrorIs(t, err, webhooks.ErrInvalidSignature)
}

func TestUnconfiguredSourcesReject(t *testing.T) {
	for _, src := range []webhooks.Source{
		webhooks.NewStripeSource(""),
		webhooks.NewFrameioSource(""),
		webhooks.NewTrelloSource("", ""),
	} {
		_, err := src.Verify(http.Header{}, []byte(`{}`))
		assert.ErrorIs(t, err, webhooks.ErrNotConfigured, src.Provider())
	}
}
