package memstore_test

import (
	"context"
	"testing"
	"time"

	"client-delivery-backend/internal/lifecycle"
	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/repository"
	"client-delivery-backend/internal/repository/memstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProject(t *testing.T, s *memstore.Store, status lifecycle.Status) *models.Project {
	t.Helper()
	p := &models.Project{OwnerID: uuid.New(), Title: "Wedding", Status: status}
	require.NoError(t, s.CreateProject(context.Background(), p))
	return p
}

func TestTransitionStatusCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := newProject(t, s, lifecycle.StatusAwaitingInstructions)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	updated, err := s.TransitionStatus(ctx, &models.StatusTransition{
		ProjectID: p.ID,
		From:      lifecycle.StatusAwaitingInstructions,
		To:        lifecycle.StatusEditInProgress,
		Event:     lifecycle.EventIntakeSubmitted,
		CreatedAt: at,
	}, true)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusEditInProgress, updated.Status)
	assert.True(t, updated.LastSubmissionAt.Valid)
	assert.Equal(t, at, updated.LastSubmissionAt.Time)

	// Same prior status again misses.
	_, err = s.TransitionStatus(ctx, &models.StatusTransition{
		ProjectID: p.ID,
		From:      lifecycle.StatusAwaitingInstructions,
		To:        lifecycle.StatusEditInProgress,
		Event:     lifecycle.EventIntakeSubmitted,
	}, true)
	assert.ErrorIs(t, err, repository.ErrStaleStatus)

	history, err := s.ListTransitions(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestUpsertFileIsIdempotentPerAsset(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := newProject(t, s, lifecycle.StatusEditInProgress)

	created, err := s.UpsertFile(ctx, &models.ProjectFile{ProjectID: p.ID, AssetID: "a1", Kind: models.FileKindDelivery})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.UpsertFile(ctx, &models.ProjectFile{ProjectID: p.ID, AssetID: "a1", Kind: models.FileKindDelivery})
	require.NoError(t, err)
	assert.False(t, created)

	files, err := s.ListFiles(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestReserveCardRejectsSecondReservation(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	projectID := uuid.New()

	card, err := s.ReserveCard(ctx, projectID, models.CardTypeInitial, 0)
	require.NoError(t, err)
	assert.True(t, card.Reserved())

	_, err = s.ReserveCard(ctx, projectID, models.CardTypeInitial, 0)
	assert.ErrorIs(t, err, repository.ErrConflict)

	require.NoError(t, s.ReleaseCard(ctx, card.ID))
	_, err = s.ReserveCard(ctx, projectID, models.CardTypeInitial, 0)
	assert.NoError(t, err)
}

func TestConsumeOAuthStateSingleUse(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	now := time.Now()
	require.NoError(t, s.CreateOAuthState(ctx, &models.OAuthState{
		State:     "abc",
		Service:   models.ServiceFrameio,
		ExpiresAt: now.Add(10 * time.Minute),
	}))

	assert.NoError(t, s.ConsumeOAuthState(ctx, "abc", models.ServiceFrameio, now))
	assert.ErrorIs(t, s.ConsumeOAuthState(ctx, "abc", models.ServiceFrameio, now), repository.ErrNotFound)

	require.NoError(t, s.CreateOAuthState(ctx, &models.OAuthState{
		State:     "late",
		Service:   models.ServiceFrameio,
		ExpiresAt: now.Add(-time.Second),
	}))
	assert.ErrorIs(t, s.ConsumeOAuthState(ctx, "late", models.ServiceFrameio, now), repository.ErrNotFound)
}

func TestCompletePaymentReportsFirstCompletionOnly(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CreatePayment(ctx, &models.RevisionPayment{
		ProjectID:         uuid.New(),
		CheckoutSessionID: "cs_1",
		AmountCents:       500,
		Currency:          "usd",
		Status:            models.PaymentPending,
	}))

	first, err := s.CompletePayment(ctx, "cs_1", time.Now())
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.CompletePayment(ctx, "cs_1", time.Now())
	require.NoError(t, err)
	assert.False(t, again)
}
