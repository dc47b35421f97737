package services_test

import (
	"context"
	"sync"
	"testing"

	"client-delivery-backend/internal/lifecycle"
	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineApplyRecordsAndNotifies(t *testing.T) {
	h := newHarness(t)
	p := h.newProject(t, "Launch")

	updated, err := h.machine.Apply(context.Background(), p, lifecycle.EventSubmissionRecorded, "upload:a1", "")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusAwaitingInstructions, updated.Status)
	assert.False(t, updated.LastSubmissionAt.Valid)

	ts, err := h.store.ListTransitions(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, lifecycle.StatusDraft, ts[0].From)
	assert.Equal(t, lifecycle.StatusAwaitingInstructions, ts[0].To)
	assert.Equal(t, "upload:a1", ts[0].SourceRef)
	assert.Equal(t, t0, ts[0].CreatedAt)
	assert.Equal(t, 1, h.observer.count(lifecycle.StatusAwaitingInstructions))
}

func TestMachineIntakeMarksSubmission(t *testing.T) {
	h := newHarness(t)
	p := h.editing(t, "Launch")
	assert.True(t, p.LastSubmissionAt.Valid)
	assert.Equal(t, t0, p.LastSubmissionAt.Time)
}

func TestMachineRejectsStaleStatus(t *testing.T) {
	h := newHarness(t)
	p := h.newProject(t, "Launch")
	stale := *p

	_, err := h.machine.Apply(context.Background(), p, lifecycle.EventSubmissionRecorded, "a", "")
	require.NoError(t, err)

	_, err = h.machine.Apply(context.Background(), &stale, lifecycle.EventSubmissionRecorded, "b", "")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)
	assert.Equal(t, 1, h.transitionsTo(t, p.ID, lifecycle.StatusAwaitingInstructions))
	assert.Equal(t, 1, h.observer.count(lifecycle.StatusAwaitingInstructions))
}

func TestMachineCompleteOnlyFromDelivered(t *testing.T) {
	h := newHarness(t)
	p := h.newProject(t, "Launch")

	_, err := h.machine.Apply(context.Background(), p, lifecycle.EventAccepted, "user", "")
	assert.ErrorIs(t, err, services.ErrInvalidTransition)
	assert.Equal(t, lifecycle.StatusDraft, h.get(t, p.ID).Status)
}

func TestMachineUnknownProject(t *testing.T) {
	h := newHarness(t)
	p := &models.Project{ID: uuid.New(), Status: lifecycle.StatusDraft}

	_, err := h.machine.Apply(context.Background(), p, lifecycle.EventSubmissionRecorded, "a", "")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestMachineConcurrentApplyTransitionsOnce(t *testing.T) {
	h := newHarness(t)
	p := h.newProject(t, "Launch")

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := *p
			if _, err := h.machine.Apply(context.Background(), &cp, lifecycle.EventSubmissionRecorded, "race", ""); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, h.transitionsTo(t, p.ID, lifecycle.StatusAwaitingInstructions))
}
