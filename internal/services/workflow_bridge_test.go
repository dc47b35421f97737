package services_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"client-delivery-backend/internal/lifecycle"
	"client-delivery-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastTransition(t *testing.T, h *harness, p *models.Project, to lifecycle.Status) models.StatusTransition {
	t.Helper()
	ts, err := h.store.ListTransitions(context.Background(), p.ID)
	require.NoError(t, err)
	for i := len(ts) - 1; i >= 0; i-- {
		if ts[i].To == to {
			return ts[i]
		}
	}
	t.Fatalf("no transition to %s", to)
	return models.StatusTransition{}
}

// startRevision pays for and starts a revision round on a delivered project.
func startRevision(t *testing.T, h *harness, p *models.Project, instructions string) *models.Project {
	t.Helper()
	ctx := context.Background()
	p, err := h.machine.Apply(ctx, h.get(t, p.ID), lifecycle.EventRevisionPaid, "checkout:test", "")
	require.NoError(t, err)
	p, err = h.projects.SubmitRevisionInstructions(ctx, h.owner, p.ID, instructions)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusRevisionInProgress, p.Status)
	return p
}

func TestInitialCardCreatedOnce(t *testing.T) {
	h := newHarness(t)
	p := h.editing(t, "Launch")

	require.Equal(t, 1, h.kanban.createdCount())
	nc := h.kanban.created[0]
	assert.Equal(t, "Launch", nc.Name)
	assert.Equal(t, board.IntakeListID, nc.ListID)
	assert.Equal(t, t0.Add(models.TierStandard.Plan().Turnaround), nc.Due)
	assert.Equal(t, []string{"label-Standard"}, nc.LabelIDs)
	assert.Contains(t, nc.Description, "cinematic")

	stored := h.get(t, p.ID)
	assert.Equal(t, "card-1", stored.WorkflowCardID.String)
	assert.Equal(t, "https://app.example.com/projects/"+p.ID.String(), h.kanban.links("card-1")["Client project"])

	// A repeated delivery of the same transition changes nothing.
	h.bridge.OnTransition(context.Background(), *stored, lastTransition(t, h, p, lifecycle.StatusEditInProgress))
	assert.Equal(t, 1, h.kanban.createdCount())
	cards, err := h.store.ListCards(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, models.CardTypeInitial, cards[0].CardType)
}

func TestInitialCardFailureReleasesReservation(t *testing.T) {
	h := newHarness(t)
	h.kanban.createErr = errors.New("trello down")
	p := h.editing(t, "Launch")

	assert.Equal(t, lifecycle.StatusEditInProgress, p.Status)
	cards, err := h.store.ListCards(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, cards)

	h.kanban.createErr = nil
	h.bridge.OnTransition(context.Background(), *p, lastTransition(t, h, p, lifecycle.StatusEditInProgress))
	assert.Equal(t, 1, h.kanban.createdCount())
}

func TestCardFollowsDeliveryAndAcceptance(t *testing.T) {
	h := newHarness(t)
	p, _ := h.delivered(t, "Launch")
	assert.Equal(t, board.ReviewListID, h.kanban.card("card-1").ListID)

	latest, err := h.store.LatestCard(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, board.ReviewListID, latest.ListID.String)

	h.clock.Advance(time.Hour)
	_, err = h.projects.Accept(context.Background(), h.owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, board.DoneListID, h.kanban.card("card-1").ListID)

	latest, err = h.store.LatestCard(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, latest.CompletedAt.Valid)
}

func TestRevisionCardsAreLinked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, _ := h.delivered(t, "Launch")
	require.NoError(t, h.store.SetCardHandler(ctx, "card-1", sql.NullString{String: "member-7", Valid: true}))

	p = startRevision(t, h, p, "Shorter intro")
	require.Equal(t, 2, h.kanban.createdCount())
	nc := h.kanban.created[1]
	assert.Equal(t, "Launch - Revision 1", nc.Name)
	assert.Equal(t, board.RevisionListID, nc.ListID)
	assert.Equal(t, []string{"member-7"}, nc.MemberIDs)
	assert.Contains(t, nc.Description, "Shorter intro")

	rev1 := h.kanban.links("card-2")
	assert.Equal(t, "https://trello.com/c/card-1", rev1["Original edit"])
	assert.Equal(t, p.ReviewLink.URL.String, rev1["Review link"])
	assert.Equal(t, "https://trello.com/c/card-2", h.kanban.links("card-1")["Revision 1"])

	// Replaying the transition maps to the same revision card.
	h.bridge.OnTransition(ctx, *p, lastTransition(t, h, p, lifecycle.StatusRevisionInProgress))
	assert.Equal(t, 2, h.kanban.createdCount())
	assert.Len(t, h.kanban.links("card-1"), 2)

	// The next delivery moves the revision card, then a second round links to it.
	res, err := h.reconciler.Reconcile(ctx, p.ID)
	require.NoError(t, err)
	h.media.addVideo(res.Project.MediaFolderID.String, "cut-v2.mp4", h.clock.Advance(time.Hour))
	res, err = h.reconciler.Reconcile(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, res.Transitioned)
	assert.Equal(t, board.ReviewListID, h.kanban.card("card-2").ListID)

	startRevision(t, h, res.Project, "Warmer grade")
	require.Equal(t, 3, h.kanban.createdCount())
	assert.Equal(t, "Launch - Revision 2", h.kanban.created[2].Name)
	assert.Equal(t, []string{"member-7"}, h.kanban.created[2].MemberIDs)
	assert.Equal(t, "https://trello.com/c/card-2", h.kanban.links("card-3")["Revision 1"])
	assert.Equal(t, "https://trello.com/c/card-3", h.kanban.links("card-2")["Revision 2"])
}

func TestRevisionCardLinksRepairedOnReplay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, _ := h.delivered(t, "Launch")

	h.kanban.attachErr = errors.New("trello timeout")
	p = startRevision(t, h, p, "Shorter intro")
	require.Equal(t, 2, h.kanban.createdCount())
	assert.Empty(t, h.kanban.links("card-2"))
	assert.NotContains(t, h.kanban.links("card-1"), "Revision 1")

	h.kanban.attachErr = nil
	h.bridge.OnTransition(ctx, *p, lastTransition(t, h, p, lifecycle.StatusRevisionInProgress))

	assert.Equal(t, 2, h.kanban.createdCount())
	assert.Equal(t, "https://trello.com/c/card-1", h.kanban.links("card-2")["Original edit"])
	assert.Equal(t, p.ReviewLink.URL.String, h.kanban.links("card-2")["Review link"])
	assert.Equal(t, "https://trello.com/c/card-2", h.kanban.links("card-1")["Revision 1"])

	// A further replay finds every link in place.
	h.bridge.OnTransition(ctx, *p, lastTransition(t, h, p, lifecycle.StatusRevisionInProgress))
	assert.Len(t, h.kanban.links("card-2"), 2)
	assert.Len(t, h.kanban.links("card-1"), 2)
}
