package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"client-delivery-backend/internal/lifecycle"
	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/repository"

	"github.com/google/uuid"
)

const observerTimeout = 30 * time.Second

// Machine applies lifecycle events to stored projects. Each transition is a
// compare-and-set on the status the caller observed, recorded in the audit
// trail in the same write, then fanned out to observers.
type Machine struct {
	repo      repository.ProjectRepository
	observers []TransitionObserver
	logger    *slog.Logger
	now       func() time.Time
}

func NewMachine(repo repository.ProjectRepository, logger *slog.Logger) *Machine {
	return &Machine{repo: repo, logger: logger, now: time.Now}
}

// Observe registers o. Not safe to call once requests are being served.
func (m *Machine) Observe(o TransitionObserver) {
	m.observers = append(m.observers, o)
}

// SetClock overrides the time source used for transition timestamps.
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// Apply moves p by ev. It fails with ErrInvalidTransition when ev is not
// allowed from p.Status or when the stored status no longer equals p.Status.
func (m *Machine) Apply(ctx context.Context, p *models.Project, ev lifecycle.Event, sourceRef, detail string) (*models.Project, error) {
	to, err := lifecycle.Next(p.Status, ev)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}

	tr := &models.StatusTransition{
		ID:        uuid.New(),
		ProjectID: p.ID,
		From:      p.Status,
		To:        to,
		Event:     ev,
		SourceRef: sourceRef,
		Detail:    detail,
		CreatedAt: m.now(),
	}
	updated, err := m.repo.TransitionStatus(ctx, tr, lifecycle.MarksSubmission(ev))
	switch {
	case errors.Is(err, repository.ErrStaleStatus):
		return nil, fmt.Errorf("%w: project %s is no longer %s", ErrInvalidTransition, p.ID, p.Status)
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to transition project: %w", err)
	}

	m.logger.Info("project status changed",
		"project_id", p.ID.String(),
		"from", string(tr.From),
		"to", string(tr.To),
		"event", string(ev),
		"source", sourceRef,
	)
	m.notify(ctx, *updated, *tr)
	return updated, nil
}

func (m *Machine) notify(ctx context.Context, p models.Project, tr models.StatusTransition) {
	if len(m.observers) == 0 {
		return
	}
	octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), observerTimeout)
	defer cancel()
	for _, o := range m.observers {
		o.OnTransition(octx, p, tr)
	}
}
