package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"client-delivery-backend/internal/lifecycle"
	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/supervisor"

	"github.com/google/uuid"
)

const enqueueTimeout = 10 * time.Second

// EmailLookup resolves an account email when the project row has none.
type EmailLookup interface {
	Email(ctx context.Context, userID uuid.UUID) (string, error)
}

// Dispatcher turns status transitions and supervisor alerts into queued
// emails. Transition notifications are best effort and only logged on failure.
type Dispatcher struct {
	queue       Queue
	renderer    *Renderer
	directory   EmailLookup
	adminEmail  string
	frontendURL string
	logger      *slog.Logger
}

func NewDispatcher(queue Queue, renderer *Renderer, directory EmailLookup, adminEmail, frontendURL string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:       queue,
		renderer:    renderer,
		directory:   directory,
		adminEmail:  adminEmail,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger.With("component", "notify"),
	}
}

// OnTransition queues the email that belongs to the new status, if any.
func (d *Dispatcher) OnTransition(ctx context.Context, p models.Project, tr models.StatusTransition) {
	log := d.logger.With("project_id", p.ID.String(), "to", string(tr.To))

	var (
		name Template
		to   []string
	)
	data := ProjectMail{
		Title:      p.Title,
		OwnerEmail: p.OwnerEmail,
		ProjectURL: d.projectURL(p.ID),
	}

	switch tr.To {
	case lifecycle.StatusVideoIsReady, lifecycle.StatusDelivered:
		name = TemplateVideoReady
		data.ReviewURL = p.ReviewLink.URL.String
		if data.ReviewURL == "" {
			data.ReviewURL = data.ProjectURL
		}
	case lifecycle.StatusComplete:
		name = TemplateProjectComplete
	case lifecycle.StatusRevisionInProgress:
		name = TemplateRevisionInstructions
		data.Instructions = tr.Detail
		if d.adminEmail == "" {
			log.Warn("revision instructions not mailed, no admin email configured")
			return
		}
		to = []string{d.adminEmail}
	default:
		return
	}

	if to == nil {
		email, err := d.ownerEmail(ctx, p)
		if err != nil {
			log.Warn("failed to resolve owner email", "error", err)
			return
		}
		to = []string{email}
	}

	msg, err := d.renderer.Render(name, to, data)
	if err != nil {
		log.Error("failed to render email", "template", string(name), "error", err)
		return
	}
	if err := d.enqueue(ctx, msg); err != nil {
		log.Error("failed to queue email", "template", string(name), "error", err)
		return
	}
	log.Info("email queued", "template", string(name))
}

// AlertAdmin satisfies supervisor.Alerter. Errors are returned so the
// supervisor retries on its next pass.
func (d *Dispatcher) AlertAdmin(ctx context.Context, alert supervisor.Alert) error {
	if d.adminEmail == "" {
		return fmt.Errorf("failed to alert admin: no admin email configured")
	}
	msg, err := d.renderer.Render(TemplateTokenAlert, []string{d.adminEmail}, AlertMailFrom(alert))
	if err != nil {
		return err
	}
	return d.enqueue(ctx, msg)
}

func (d *Dispatcher) enqueue(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()
	return d.queue.Enqueue(ctx, msg)
}

func (d *Dispatcher) ownerEmail(ctx context.Context, p models.Project) (string, error) {
	if p.OwnerEmail != "" {
		return p.OwnerEmail, nil
	}
	if d.directory == nil {
		return "", fmt.Errorf("project %s has no owner email", p.ID)
	}
	return d.directory.Email(ctx, p.OwnerID)
}

func (d *Dispatcher) projectURL(id uuid.UUID) string {
	return fmt.Sprintf("%s/projects/%s", d.frontendURL, id)
}

// AlertMailFrom flattens a supervisor alert for the template.
func AlertMailFrom(a supervisor.Alert) AlertMail {
	m := AlertMail{
		Service:   a.Service,
		Key:       a.Key,
		ExpiresAt: "n/a",
		Remaining: "n/a",
		Reason:    orNA(a.Reason),
		AuthURL:   orNA(a.AuthURL),
	}
	if !a.ExpiresAt.IsZero() {
		m.ExpiresAt = a.ExpiresAt.UTC().Format("2006-01-02 15:04 MST")
	}

	switch a.Kind {
	case supervisor.AlertDisconnected:
		m.Headline = "connection needs to be re-authorized"
	case supervisor.AlertExpiringSoon:
		m.Headline = fmt.Sprintf("access token expires within %s and could not be refreshed", tierText(a.Tier))
		m.Remaining = remainingText(a.Remaining)
	default:
		m.Headline = "access token expired and could not be refreshed"
	}
	return m
}

func tierText(tier string) string {
	if tier == supervisor.TierDay {
		return "1 day"
	}
	return "7 days"
}

func remainingText(d time.Duration) string {
	switch {
	case d <= 0:
		return "expired"
	case d >= 48*time.Hour:
		return fmt.Sprintf("%d days", int(d/(24*time.Hour)))
	default:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
