package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"client-delivery-backend/internal/lifecycle"
	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/repository"
	"client-delivery-backend/internal/trello"

	"github.com/google/uuid"
)

// BoardConfig names the kanban board and the lists cards move through.
type BoardConfig struct {
	BoardID        string
	IntakeListID   string
	RevisionListID string
	ReviewListID   string
	DoneListID     string
	FrontendURL    string
}

// WorkflowBridge mirrors status transitions onto the editors' kanban board.
// It observes the state machine and never fails a transition: every error is
// logged and left for the next transition or an operator.
type WorkflowBridge struct {
	store  repository.Store
	kanban Kanban
	board  BoardConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewWorkflowBridge(store repository.Store, kanban Kanban, board BoardConfig, logger *slog.Logger) *WorkflowBridge {
	board.FrontendURL = strings.TrimRight(board.FrontendURL, "/")
	return &WorkflowBridge{
		store:  store,
		kanban: kanban,
		board:  board,
		logger: logger.With("component", "workflow_bridge"),
		now:    time.Now,
	}
}

// SetClock overrides the time source.
func (b *WorkflowBridge) SetClock(now func() time.Time) {
	b.now = now
}

func (b *WorkflowBridge) OnTransition(ctx context.Context, p models.Project, tr models.StatusTransition) {
	var err error
	switch tr.To {
	case lifecycle.StatusEditInProgress:
		err = b.ensureInitialCard(ctx, &p, tr)
	case lifecycle.StatusVideoIsReady, lifecycle.StatusDelivered:
		target := b.board.ReviewListID
		if target == "" {
			target = b.board.DoneListID
		}
		_, err = b.moveLatest(ctx, &p, target)
	case lifecycle.StatusRevisionInProgress:
		err = b.createRevisionCard(ctx, &p, tr)
	case lifecycle.StatusComplete:
		err = b.completeLatest(ctx, &p)
	default:
		return
	}
	if err != nil {
		b.logger.Error("kanban sync failed",
			"project_id", p.ID.String(), "to", string(tr.To), "error", err)
	}
}

// ensureInitialCard creates the project's one initial card. The row is
// reserved before the card exists so concurrent or repeated deliveries of
// the same transition cannot create a second card.
func (b *WorkflowBridge) ensureInitialCard(ctx context.Context, p *models.Project, tr models.StatusTransition) error {
	row, err := b.store.ReserveCard(ctx, p.ID, models.CardTypeInitial, 0)
	if errors.Is(err, repository.ErrConflict) {
		b.logger.Info("initial card already exists", "project_id", p.ID.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to reserve initial card: %w", err)
	}

	card, err := b.createCard(ctx, p, tr, b.board.IntakeListID, p.Title, b.initialDescription(ctx, p), nil)
	if err != nil {
		b.release(ctx, row)
		return err
	}
	return b.attach(ctx, p, row, card)
}

func (b *WorkflowBridge) createRevisionCard(ctx context.Context, p *models.Project, tr models.StatusTransition) error {
	next, err := b.revisionNumber(ctx, p, tr)
	if err != nil {
		return err
	}
	cards, err := b.store.ListCards(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("failed to list cards: %w", err)
	}
	var prev, handled *models.WorkflowCard
	for i := range cards {
		c := &cards[i]
		if c.Reserved() || (c.CardType == models.CardTypeRevision && c.RevisionNumber >= next) {
			continue
		}
		if prev == nil || c.RevisionNumber > prev.RevisionNumber {
			prev = c
		}
		if c.AssignedHandler.Valid && (handled == nil || c.RevisionNumber > handled.RevisionNumber) {
			handled = c
		}
	}

	row, err := b.store.ReserveCard(ctx, p.ID, models.CardTypeRevision, next)
	if errors.Is(err, repository.ErrConflict) {
		existing, err := b.revisionCard(ctx, p.ID, next)
		if err != nil {
			return err
		}
		if existing == nil || existing.Reserved() {
			b.logger.Info("revision card is being created elsewhere", "project_id", p.ID.String(), "revision", next)
			return nil
		}
		return b.linkRevisionCard(ctx, p, existing.CardID, existing.ShortURL.String, next, prev)
	}
	if err != nil {
		return fmt.Errorf("failed to reserve revision card: %w", err)
	}

	var members []string
	if handled != nil {
		members = []string{handled.AssignedHandler.String}
	}
	list := b.board.RevisionListID
	if list == "" {
		list = b.board.IntakeListID
	}
	name := fmt.Sprintf("%s - Revision %d", p.Title, next)
	desc := fmt.Sprintf("Revision %d requested by %s\n\nInstructions:\n%s\n\nProject: %s",
		next, p.OwnerEmail, orPending(tr.Detail), b.projectURL(p))

	card, err := b.createCard(ctx, p, tr, list, name, desc, members)
	if err != nil {
		b.release(ctx, row)
		return err
	}
	if err := b.attach(ctx, p, row, card); err != nil {
		return err
	}
	return b.linkRevisionCard(ctx, p, card.ID, card.ShortURL, next, prev)
}

// linkRevisionCard attaches the review link and cross-links the revision
// card with the card before it. Every step skips links already present, so
// a repeated transition repairs a partial earlier pass.
func (b *WorkflowBridge) linkRevisionCard(ctx context.Context, p *models.Project, cardID, shortURL string, next int, prev *models.WorkflowCard) error {
	if p.ReviewLink.URL.Valid {
		if _, err := b.kanban.AttachOnce(ctx, cardID, "Review link", p.ReviewLink.URL.String); err != nil {
			b.logger.Warn("failed to attach review link", "card_id", cardID, "error", err)
		}
	}
	if prev == nil || !prev.ShortURL.Valid {
		return nil
	}
	if _, err := b.kanban.AttachOnce(ctx, cardID, previousCardName(prev), prev.ShortURL.String); err != nil {
		return fmt.Errorf("failed to link previous card: %w", err)
	}
	if _, err := b.kanban.AttachOnce(ctx, prev.CardID, fmt.Sprintf("Revision %d", next), shortURL); err != nil {
		return fmt.Errorf("failed to link revision card: %w", err)
	}
	return nil
}

func (b *WorkflowBridge) revisionCard(ctx context.Context, projectID uuid.UUID, n int) (*models.WorkflowCard, error) {
	cards, err := b.store.ListCards(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	for i := range cards {
		if cards[i].CardType == models.CardTypeRevision && cards[i].RevisionNumber == n {
			return &cards[i], nil
		}
	}
	return nil, nil
}

// AddRevisionInstructions posts the owner's notes on the current revision
// card. Rounds started from the review link get their notes this way.
func (b *WorkflowBridge) AddRevisionInstructions(ctx context.Context, p *models.Project, instructions string) error {
	card, err := b.store.LatestCard(ctx, p.ID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && card.CardType != models.CardTypeRevision) {
		return fmt.Errorf("no revision card for project %s", p.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to get latest card: %w", err)
	}
	text := fmt.Sprintf("Revision %d instructions from %s:\n%s", card.RevisionNumber, p.OwnerEmail, instructions)
	if err := b.kanban.AddComment(ctx, card.CardID, text); err != nil {
		return fmt.Errorf("failed to add instructions to card: %w", err)
	}
	b.logger.Info("revision instructions added", "project_id", p.ID.String(), "revision", card.RevisionNumber)
	return nil
}

func orPending(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(to follow)"
	}
	return s
}

// revisionNumber numbers tr by counting the revision rounds recorded up to
// and including it, so a repeated delivery of tr maps to the same card.
func (b *WorkflowBridge) revisionNumber(ctx context.Context, p *models.Project, tr models.StatusTransition) (int, error) {
	ts, err := b.store.ListTransitions(ctx, p.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list transitions: %w", err)
	}
	n := 0
	for _, t := range ts {
		if t.To != lifecycle.StatusRevisionInProgress {
			continue
		}
		n++
		if t.ID == tr.ID {
			return n, nil
		}
	}
	return n + 1, nil
}

func previousCardName(c *models.WorkflowCard) string {
	if c.CardType == models.CardTypeInitial {
		return "Original edit"
	}
	return fmt.Sprintf("Revision %d", c.RevisionNumber)
}

func (b *WorkflowBridge) createCard(ctx context.Context, p *models.Project, tr models.StatusTransition, listID, name, desc string, members []string) (*trello.Card, error) {
	plan := b.plan(ctx, p)
	nc := trello.NewCard{
		ListID:      listID,
		Name:        name,
		Description: desc,
		Due:         tr.CreatedAt.Add(plan.Turnaround),
		MemberIDs:   members,
	}
	if b.board.BoardID != "" {
		label, err := b.kanban.EnsureLabel(ctx, b.board.BoardID, plan.DisplayName, plan.LabelColor)
		if err != nil {
			b.logger.Warn("failed to ensure tier label", "tier", string(plan.Tier), "error", err)
		} else {
			nc.LabelIDs = []string{label.ID}
		}
	}
	card, err := b.kanban.CreateCard(ctx, nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}
	return card, nil
}

func (b *WorkflowBridge) attach(ctx context.Context, p *models.Project, row *models.WorkflowCard, card *trello.Card) error {
	listID := card.ListID
	if err := b.store.AttachCard(ctx, row.ID, card.ID, card.ShortURL, listID); err != nil {
		return fmt.Errorf("failed to store card %s: %w", card.ID, err)
	}
	if err := b.store.SetWorkflowCardID(ctx, p.ID, card.ID); err != nil {
		return fmt.Errorf("failed to store project card: %w", err)
	}
	if _, err := b.kanban.AttachOnce(ctx, card.ID, "Client project", b.projectURL(p)); err != nil {
		b.logger.Warn("failed to attach project link", "card_id", card.ID, "error", err)
	}
	b.logger.Info("card created", "project_id", p.ID.String(), "card_id", card.ID,
		"type", string(row.CardType), "revision", row.RevisionNumber)
	return nil
}

func (b *WorkflowBridge) release(ctx context.Context, row *models.WorkflowCard) {
	if err := b.store.ReleaseCard(ctx, row.ID); err != nil {
		b.logger.Error("failed to release card reservation", "row_id", row.ID.String(), "error", err)
	}
}

func (b *WorkflowBridge) moveLatest(ctx context.Context, p *models.Project, listID string) (*models.WorkflowCard, error) {
	latest, err := b.store.LatestCard(ctx, p.ID)
	if errors.Is(err, repository.ErrNotFound) {
		b.logger.Warn("no card to move", "project_id", p.ID.String())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest card: %w", err)
	}
	if listID == "" || latest.ListID.String == listID {
		return latest, nil
	}
	if err := b.kanban.MoveCard(ctx, latest.CardID, listID); err != nil {
		return nil, fmt.Errorf("failed to move card: %w", err)
	}
	if err := b.store.SetCardList(ctx, latest.ID, listID); err != nil {
		return nil, fmt.Errorf("failed to store card list: %w", err)
	}
	latest.ListID = sql.NullString{String: listID, Valid: true}
	return latest, nil
}

func (b *WorkflowBridge) completeLatest(ctx context.Context, p *models.Project) error {
	latest, err := b.moveLatest(ctx, p, b.board.DoneListID)
	if err != nil || latest == nil {
		return err
	}
	if latest.CompletedAt.Valid {
		return nil
	}
	if err := b.store.CompleteCard(ctx, latest.ID, b.now()); err != nil {
		return fmt.Errorf("failed to complete card: %w", err)
	}
	return nil
}

func (b *WorkflowBridge) initialDescription(ctx context.Context, p *models.Project) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Client: %s\nProject: %s\n", p.OwnerEmail, b.projectURL(p))
	form, err := b.store.GetForm(ctx, p.ID)
	if err != nil {
		return sb.String()
	}
	fmt.Fprintf(&sb, "\nIntake form (%s):\n%s\n", form.SubmissionID, string(form.Payload))
	return sb.String()
}

func (b *WorkflowBridge) plan(ctx context.Context, p *models.Project) models.TierPlan {
	sub, err := b.store.GetSubscription(ctx, p.OwnerID)
	if err != nil {
		return models.TierBasic.Plan()
	}
	return sub.Tier.Plan()
}

func (b *WorkflowBridge) projectURL(p *models.Project) string {
	return fmt.Sprintf("%s/projects/%s", b.board.FrontendURL, p.ID)
}
