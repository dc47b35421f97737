package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"client-delivery-backend/internal/app"
	"client-delivery-backend/internal/config"
	"client-delivery-backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing-must-be-long-enough"

var (
	clientID = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	adminID  = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
)

func testConfig() *config.Config {
	return &config.Config{
		Port:         "0",
		Environment:  "test",
		FrontendURL:  "http://localhost:3000",
		StoreBackend: "memory",
		CacheBackend: "memory",
		Supabase:     config.Supabase{JWTSecret: testSecret},
		Frameio: config.Frameio{
			APIBaseURL: "http://127.0.0.1:1",
			TokenURL:   "http://127.0.0.1:1/token",
			AuthURL:    "http://127.0.0.1:1/authorize",
		},
		Stripe:       config.Stripe{RevisionPriceCents: 500, RevisionCurrency: "usd"},
		Supervisor:   config.Supervisor{Interval: time.Hour, InitialDelay: time.Hour},
		AdminUserIDs: []string{adminID.String()},
		AccessWindow: 744 * time.Hour,
		HTTPTimeout:  time.Second,
	}
}

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	a, err := app.New(context.Background(), testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	require.NoError(t, a.Migrate(context.Background()))
	return a
}

func bearer(t *testing.T, userID uuid.UUID, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"role":  "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + s
}

func do(router http.Handler, method, path, auth string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req, _ := http.NewRequest(method, path, reader)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicRoutes(t *testing.T) {
	router := newTestApp(t).Router()

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/ready", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodHead, "/webhooks/trello", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/api/v1/projects", "", nil).Code)
}

func TestRouter_WebhookWithoutSecret(t *testing.T) {
	router := newTestApp(t).Router()

	w := do(router, http.MethodPost, "/webhooks/stripe", "", map[string]string{"id": "evt_1"})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_ProjectLifecycleStart(t *testing.T) {
	a := newTestApp(t)
	router := a.Router()
	auth := bearer(t, clientID, "client@example.com")

	w := do(router, http.MethodPost, "/api/v1/projects", auth, map[string]string{"title": "Launch"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	require.NoError(t, a.Store.UpsertSubscription(context.Background(), &models.Subscription{
		UserID:             clientID,
		Tier:               models.TierBasic,
		Status:             models.SubscriptionActive,
		CurrentPeriodStart: time.Now().Add(-time.Hour),
	}))

	w = do(router, http.MethodPost, "/api/v1/projects", auth, map[string]string{"title": "Launch"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.ProjectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "draft", created.Status)

	w = do(router, http.MethodGet, "/api/v1/projects/"+created.ID, auth, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	other := bearer(t, uuid.New(), "someone@example.com")
	w = do(router, http.MethodGet, "/api/v1/projects/"+created.ID, other, nil)
	assert.NotEqual(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/api/v1/projects/"+created.ID+"/history", auth, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history models.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Empty(t, history.Transitions)
}

func TestRouter_AdminRoutes(t *testing.T) {
	router := newTestApp(t).Router()

	w := do(router, http.MethodGet, "/api/v1/admin/frameio/status", bearer(t, clientID, "client@example.com"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodGet, "/api/v1/admin/frameio/status", bearer(t, adminID, "ops@example.com"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.TokenStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "disconnected", resp.Status)
}
