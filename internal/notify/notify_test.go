package notify_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"client-delivery-backend/internal/lifecycle"
	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/notify"
	"client-delivery-backend/internal/supervisor"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/resend/resend-go/v2"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var projectID = uuid.MustParse("7f1d2c3a-0000-4000-8000-000000000001")

type captureQueue struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (q *captureQueue) Enqueue(_ context.Context, msg notify.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

type staticDirectory map[uuid.UUID]string

func (d staticDirectory) Email(_ context.Context, id uuid.UUID) (string, error) {
	if e, ok := d[id]; ok {
		return e, nil
	}
	return "", errors.New("user not found")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDispatcher(t *testing.T, q notify.Queue, dir notify.EmailLookup) *notify.Dispatcher {
	t.Helper()
	r, err := notify.NewRenderer()
	require.NoError(t, err)
	return notify.NewDispatcher(q, r, dir, "studio-admin@example.com", "https://app.example.com/", discardLogger())
}

func project() models.Project {
	return models.Project{
		ID:         projectID,
		OwnerID:    uuid.New(),
		OwnerEmail: "client@example.com",
		Title:      "Spring Launch",
		ReviewLink: models.ReviewLink{
			URL: sql.NullString{String: "https://f.io/AbC123", Valid: true},
		},
	}
}

func golden(t *testing.T, name string, msg notify.Message) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte("Subject: "+msg.Subject+"\n\n"+msg.Text))
}

func TestTransitionEmails(t *testing.T) {
	tests := []struct {
		name   string
		to     lifecycle.Status
		detail string
		rcpt   string
	}{
		{name: "video_ready", to: lifecycle.StatusVideoIsReady, rcpt: "client@example.com"},
		{name: "project_complete", to: lifecycle.StatusComplete, rcpt: "client@example.com"},
		{
			name:   "revision_instructions",
			to:     lifecycle.StatusRevisionInProgress,
			detail: "Trim the intro to 5 seconds.\nUse the alternate logo in the end card.",
			rcpt:   "studio-admin@example.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &captureQueue{}
			d := newDispatcher(t, q, nil)

			d.OnTransition(context.Background(), project(), models.StatusTransition{
				ProjectID: projectID,
				To:        tt.to,
				Detail:    tt.detail,
			})

			require.Len(t, q.msgs, 1)
			assert.Equal(t, []string{tt.rcpt}, q.msgs[0].To)
			golden(t, tt.name, q.msgs[0])
		})
	}
}

func TestTransitionWithoutEmail(t *testing.T) {
	q := &captureQueue{}
	d := newDispatcher(t, q, nil)

	for _, st := range []lifecycle.Status{
		lifecycle.StatusAwaitingInstructions,
		lifecycle.StatusEditInProgress,
		lifecycle.StatusAwaitingRevisionInstructions,
	} {
		d.OnTransition(context.Background(), project(), models.StatusTransition{To: st})
	}
	assert.Empty(t, q.msgs)
}

func TestOwnerEmailFallsBackToDirectory(t *testing.T) {
	q := &captureQueue{}
	p := project()
	p.OwnerEmail = ""
	d := newDispatcher(t, q, staticDirectory{p.OwnerID: "looked-up@example.com"})

	d.OnTransition(context.Background(), p, models.StatusTransition{To: lifecycle.StatusComplete})

	require.Len(t, q.msgs, 1)
	assert.Equal(t, []string{"looked-up@example.com"}, q.msgs[0].To)
}

func TestQueueFailureDoesNotPanic(t *testing.T) {
	q := &captureQueue{err: errors.New("redis down")}
	d := newDispatcher(t, q, nil)

	assert.NotPanics(t, func() {
		d.OnTransition(context.Background(), project(), models.StatusTransition{To: lifecycle.StatusVideoIsReady})
	})
}

func TestTokenAlertEmails(t *testing.T) {
	tests := []struct {
		name  string
		alert supervisor.Alert
	}{
		{
			name: "token_alert_disconnected",
			alert: supervisor.Alert{
				Kind:    supervisor.AlertDisconnected,
				Key:     "disconnected",
				Service: "frameio",
				AuthURL: "https://ims.example.com/authorize?state=abc",
			},
		},
		{
			name: "token_alert_expiring",
			alert: supervisor.Alert{
				Kind:      supervisor.AlertExpiringSoon,
				Key:       "expiring:1-day",
				Service:   "frameio",
				Tier:      supervisor.TierDay,
				Reason:    "refresh token rejected: invalid_grant",
				ExpiresAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
				Remaining: 20 * time.Hour,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &captureQueue{}
			d := newDispatcher(t, q, nil)

			require.NoError(t, d.AlertAdmin(context.Background(), tt.alert))
			require.Len(t, q.msgs, 1)
			assert.Equal(t, []string{"studio-admin@example.com"}, q.msgs[0].To)
			golden(t, tt.name, q.msgs[0])
		})
	}
}

func TestAlertAdminReturnsQueueError(t *testing.T) {
	d := newDispatcher(t, &captureQueue{err: errors.New("redis down")}, nil)
	err := d.AlertAdmin(context.Background(), supervisor.Alert{Kind: supervisor.AlertDisconnected})
	assert.Error(t, err)
}

type recordingSender struct {
	sent []notify.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg notify.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func TestProcessorSendsQueuedEmail(t *testing.T) {
	sender := &recordingSender{}
	mux := notify.NewProcessor(sender, discardLogger()).Handler()

	payload, err := json.Marshal(notify.Message{
		Template: notify.TemplateProjectComplete,
		To:       []string{"client@example.com"},
		Subject:  "done",
		Text:     "body",
	})
	require.NoError(t, err)

	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(notify.TaskSendEmail, payload)))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "done", sender.sent[0].Subject)
}

func TestProcessorSkipsRetryOnBadPayload(t *testing.T) {
	mux := notify.NewProcessor(&recordingSender{}, discardLogger()).Handler()
	err := mux.ProcessTask(context.Background(), asynq.NewTask(notify.TaskSendEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessorPropagatesSendFailure(t *testing.T) {
	mux := notify.NewProcessor(&recordingSender{err: errors.New("rate limited")}, discardLogger()).Handler()
	payload, _ := json.Marshal(notify.Message{To: []string{"a@example.com"}})
	err := mux.ProcessTask(context.Background(), asynq.NewTask(notify.TaskSendEmail, payload))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestDirectQueueSendsImmediately(t *testing.T) {
	sender := &recordingSender{}
	q := notify.NewDirectQueue(sender)
	require.NoError(t, q.Enqueue(context.Background(), notify.Message{To: []string{"a@example.com"}}))
	assert.Len(t, sender.sent, 1)
}

func TestResendSender(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"email_123"}`))
	}))
	defer srv.Close()

	client := resend.NewClient("re_test")
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	s := notify.NewResendSenderWithClient(client, "Studio <studio@example.com>")
	require.NoError(t, s.Send(context.Background(), notify.Message{
		Template: notify.TemplateVideoReady,
		To:       []string{"client@example.com"},
		Subject:  "ready",
		Text:     "hello",
	}))
	assert.Equal(t, "Studio <studio@example.com>", got["from"])
	assert.Equal(t, "ready", got["subject"])
	assert.Equal(t, "hello", got["text"])
}

func TestResendSenderRequiresRecipients(t *testing.T) {
	s := notify.NewResendSender("re_test", "studio@example.com")
	assert.Error(t, s.Send(context.Background(), notify.Message{}))
}
