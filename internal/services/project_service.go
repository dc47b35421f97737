package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"client-delivery-backend/internal/lifecycle"
	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/payments"
	"client-delivery-backend/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ProjectOptions carries the pricing and policy settings of ProjectService.
type ProjectOptions struct {
	AccessWindow       time.Duration
	RevisionPriceCents int64
	RevisionCurrency   string
	FrontendURL        string
	SubscriptionPrices map[models.Tier]string
	ShareComments      bool
}

// ProjectView is a project plus the values derived on read.
type ProjectView struct {
	models.Project
	LastActivity time.Time
}

// RevisionConfirmation is the verified content of a paid revision checkout.
type RevisionConfirmation struct {
	SessionID   string
	ProjectID   uuid.UUID
	UserID      uuid.UUID
	AmountCents int64
	Currency    string
}

// ProjectService implements every owner-facing project operation on top of
// the status machine.
type ProjectService struct {
	store      repository.Store
	machine    *Machine
	reconciler *ReconcileService
	gateway    payments.Gateway
	notes      RevisionNotes
	validate   *validator.Validate
	opts       ProjectOptions
	logger     *slog.Logger
	now        func() time.Time
}

func NewProjectService(
	store repository.Store,
	machine *Machine,
	reconciler *ReconcileService,
	gateway payments.Gateway,
	opts ProjectOptions,
	logger *slog.Logger,
) *ProjectService {
	if opts.AccessWindow <= 0 {
		opts.AccessWindow = lifecycle.DefaultAccessWindow
	}
	if opts.RevisionPriceCents <= 0 {
		opts.RevisionPriceCents = 500
	}
	if opts.RevisionCurrency == "" {
		opts.RevisionCurrency = "usd"
	}
	opts.RevisionCurrency = strings.ToLower(opts.RevisionCurrency)
	opts.FrontendURL = strings.TrimRight(opts.FrontendURL, "/")
	return &ProjectService{
		store:      store,
		machine:    machine,
		reconciler: reconciler,
		gateway:    gateway,
		validate:   validator.New(),
		opts:       opts,
		logger:     logger.With("component", "projects"),
		now:        time.Now,
	}
}

// SetClock overrides the time source.
func (s *ProjectService) SetClock(now func() time.Time) {
	s.now = now
}

// SetRevisionNotes sets where instructions go when the revision round was
// already started from the review link.
func (s *ProjectService) SetRevisionNotes(notes RevisionNotes) {
	s.notes = notes
}

// Create opens a draft project for actor, within the allowance of their
// subscription for the current billing period.
func (s *ProjectService) Create(ctx context.Context, actor Actor, req models.CreateProjectRequest) (*models.Project, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	if !actor.Admin {
		sub, err := s.store.GetSubscription(ctx, actor.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubscriptionRequired
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get subscription: %w", err)
		}
		if !sub.Active() {
			return nil, ErrSubscriptionRequired
		}
		used, err := s.store.CountProjectsSince(ctx, actor.ID, sub.CurrentPeriodStart)
		if err != nil {
			return nil, fmt.Errorf("failed to count projects: %w", err)
		}
		if used >= sub.Tier.Plan().Allowance {
			return nil, ErrAllowanceExceeded
		}
	}

	now := s.now()
	p := &models.Project{
		ID:         uuid.New(),
		OwnerID:    actor.ID,
		OwnerEmail: actor.Email,
		Title:      title,
		Status:     lifecycle.StatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	s.logger.Info("project created", "project_id", p.ID.String(), "owner_id", actor.ID.String())
	return p, nil
}

// load fetches a project the actor may read.
func (s *ProjectService) load(ctx context.Context, actor Actor, id uuid.UUID) (*models.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if p.OwnerID != actor.ID && !actor.Admin {
		return nil, ErrForbidden
	}
	return p, nil
}

// loadMutable fetches a project the actor may change: readable and still
// inside its access window, whatever its status.
func (s *ProjectService) loadMutable(ctx context.Context, actor Actor, id uuid.UUID) (*models.Project, error) {
	p, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && !lifecycle.WithinAccessWindow(p.CreatedAt, s.now(), s.opts.AccessWindow) {
		return nil, ErrAccessExpired
	}
	return p, nil
}

func (s *ProjectService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*ProjectView, error) {
	p, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, p)
}

func (s *ProjectService) List(ctx context.Context, actor Actor) ([]ProjectView, error) {
	projects, err := s.store.ListProjectsByOwner(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	views := make([]ProjectView, 0, len(projects))
	for i := range projects {
		v, err := s.view(ctx, &projects[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

func (s *ProjectService) view(ctx context.Context, p *models.Project) (*ProjectView, error) {
	files, err := s.store.ListFiles(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	in := lifecycle.ActivityInputs{CreatedAt: p.CreatedAt}
	for _, f := range files {
		if f.Kind == models.FileKindDelivery {
			in.DetectedAssets = append(in.DetectedAssets, f.UploadedAt)
		} else {
			in.Uploads = append(in.Uploads, f.UploadedAt)
		}
	}
	form, err := s.store.GetForm(ctx, p.ID)
	switch {
	case err == nil:
		in.FormSubmissions = append(in.FormSubmissions, form.SubmittedAt, form.UpdatedAt)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to get intake form: %w", err)
	}
	return &ProjectView{Project: *p, LastActivity: lifecycle.LastActivity(in)}, nil
}

// Status is the poll endpoint: it reconciles with the media platform first
// and reports whether that succeeded. The stored status is returned either way.
func (s *ProjectService) Status(ctx context.Context, actor Actor, id uuid.UUID) (*ProjectView, bool, error) {
	if _, err := s.load(ctx, actor, id); err != nil {
		return nil, false, err
	}
	synced := true
	if _, err := s.reconciler.Reconcile(ctx, id); err != nil {
		synced = false
		s.logger.Warn("reconcile on poll failed", "project_id", id.String(), "error", err)
	}
	v, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, false, err
	}
	return v, synced, nil
}

func (s *ProjectService) History(ctx context.Context, actor Actor, id uuid.UUID) ([]models.StatusTransition, error) {
	if _, err := s.load(ctx, actor, id); err != nil {
		return nil, err
	}
	ts, err := s.store.ListTransitions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	return ts, nil
}

func (s *ProjectService) Files(ctx context.Context, actor Actor, id uuid.UUID) ([]models.ProjectFile, error) {
	if _, err := s.load(ctx, actor, id); err != nil {
		return nil, err
	}
	files, err := s.store.ListFiles(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// UploadTarget bootstraps the media folders and returns the folder the
// client should upload raw footage into.
func (s *ProjectService) UploadTarget(ctx context.Context, actor Actor, id uuid.UUID) (string, error) {
	p, err := s.loadMutable(ctx, actor, id)
	if err != nil {
		return "", err
	}
	return s.reconciler.UploadFolder(ctx, p)
}

// RecordUpload stores a finished client upload. The first upload of a draft
// moves it to awaiting_instructions.
func (s *ProjectService) RecordUpload(ctx context.Context, actor Actor, id uuid.UUID, req models.RecordUploadRequest) (*models.ProjectFile, *models.Project, error) {
	p, err := s.loadMutable(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(req.AssetID) == "" || strings.TrimSpace(req.Filename) == "" {
		return nil, nil, fmt.Errorf("%w: asset_id and filename are required", ErrInvalidInput)
	}

	f := &models.ProjectFile{
		ProjectID:  p.ID,
		AssetID:    req.AssetID,
		Filename:   req.Filename,
		MediaType:  req.MediaType,
		Kind:       models.FileKindUpload,
		UploadedAt: s.now(),
	}
	if req.FileSize > 0 {
		f.FileSize = sql.NullInt64{Int64: req.FileSize, Valid: true}
	}
	if _, err := s.store.UpsertFile(ctx, f); err != nil {
		return nil, nil, fmt.Errorf("failed to record upload: %w", err)
	}

	if p.Status == lifecycle.StatusDraft {
		updated, err := s.machine.Apply(ctx, p, lifecycle.EventSubmissionRecorded, "upload:"+req.AssetID, "")
		switch {
		case err == nil:
			p = updated
		case errors.Is(err, ErrInvalidTransition):
			if p, err = s.load(ctx, actor, id); err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, err
		}
	}
	return f, p, nil
}

// SubmitIntakeForm stores the project's intake form, replacing any earlier
// submission. The first submission starts the edit.
func (s *ProjectService) SubmitIntakeForm(ctx context.Context, actor Actor, id uuid.UUID, req models.IntakeFormRequest) (*models.Project, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	p, err := s.loadMutable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidInput)
	}
	now := s.now()
	if err := s.store.UpsertForm(ctx, &models.FormSubmission{
		ProjectID:    p.ID,
		SubmissionID: req.SubmissionID,
		Payload:      payload,
		SubmittedAt:  now,
		UpdatedAt:    now,
	}); err != nil {
		return nil, fmt.Errorf("failed to store intake form: %w", err)
	}

	ref := "form:" + req.SubmissionID
	if p.Status == lifecycle.StatusDraft {
		if p, err = s.advance(ctx, actor, p, lifecycle.EventSubmissionRecorded, ref, ""); err != nil {
			return nil, err
		}
	}
	if p.Status == lifecycle.StatusAwaitingInstructions {
		if p, err = s.advance(ctx, actor, p, lifecycle.EventIntakeSubmitted, ref, ""); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// advance applies ev, treating a lost race as success and returning the
// stored project.
func (s *ProjectService) advance(ctx context.Context, actor Actor, p *models.Project, ev lifecycle.Event, ref, detail string) (*models.Project, error) {
	updated, err := s.machine.Apply(ctx, p, ev, ref, detail)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ErrInvalidTransition) {
		return nil, err
	}
	return s.load(ctx, actor, p.ID)
}

// Accept closes a delivered project.
func (s *ProjectService) Accept(ctx context.Context, actor Actor, id uuid.UUID) (*models.Project, error) {
	p, err := s.loadMutable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.machine.Apply(ctx, p, lifecycle.EventAccepted, "user:"+actor.ID.String(), "")
}

// StartRevisionCheckout opens a payment session for one paid revision. The
// status only changes once the payment webhook confirms it.
func (s *ProjectService) StartRevisionCheckout(ctx context.Context, actor Actor, id uuid.UUID) (*payments.Checkout, error) {
	p, err := s.loadMutable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !lifecycle.Allowed(p.Status, lifecycle.EventRevisionPaid) {
		return nil, fmt.Errorf("%w: revisions cannot be bought in %s", ErrInvalidTransition, p.Status)
	}

	projectURL := fmt.Sprintf("%s/projects/%s", s.opts.FrontendURL, p.ID)
	checkout, err := s.gateway.CreateRevisionCheckout(ctx, payments.RevisionCheckout{
		ProjectID:     p.ID.String(),
		ProjectTitle:  p.Title,
		UserID:        actor.ID.String(),
		CustomerEmail: actor.Email,
		AmountCents:   s.opts.RevisionPriceCents,
		Currency:      s.opts.RevisionCurrency,
		SuccessURL:    projectURL + "?revision=success&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     projectURL + "?revision=cancelled",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create revision checkout: %w", err)
	}

	if err := s.store.CreatePayment(ctx, &models.RevisionPayment{
		ID:                uuid.New(),
		ProjectID:         p.ID,
		UserID:            actor.ID,
		CheckoutSessionID: checkout.SessionID,
		AmountCents:       s.opts.RevisionPriceCents,
		Currency:          s.opts.RevisionCurrency,
		Status:            models.PaymentPending,
		CreatedAt:         s.now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to record revision payment: %w", err)
	}
	return checkout, nil
}

// ConfirmRevisionPayment applies a verified payment webhook. It rejects
// metadata that disagrees with the stored payment and is a no-op for a
// payment that was already completed.
func (s *ProjectService) ConfirmRevisionPayment(ctx context.Context, c RevisionConfirmation) (*models.Project, error) {
	payment, err := s.store.GetPaymentBySession(ctx, c.SessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown checkout session %s", ErrPaymentMismatch, c.SessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	p, err := s.store.GetProject(ctx, payment.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	switch {
	case c.ProjectID != payment.ProjectID:
		return nil, fmt.Errorf("%w: project", ErrPaymentMismatch)
	case c.UserID != payment.UserID || c.UserID != p.OwnerID:
		return nil, fmt.Errorf("%w: user", ErrPaymentMismatch)
	case c.AmountCents != payment.AmountCents:
		return nil, fmt.Errorf("%w: amount %d, expected %d", ErrPaymentMismatch, c.AmountCents, payment.AmountCents)
	case !strings.EqualFold(c.Currency, payment.Currency):
		return nil, fmt.Errorf("%w: currency %s, expected %s", ErrPaymentMismatch, c.Currency, payment.Currency)
	}

	// The payment is completed before the status moves. A delivery that
	// failed in between is finished by the retry, and the audit entry keyed
	// by the session marks it applied.
	ref := "checkout:" + c.SessionID
	applied, err := s.transitionFrom(ctx, p.ID, ref)
	if err != nil {
		return nil, err
	}
	if !applied && !lifecycle.Allowed(p.Status, lifecycle.EventRevisionPaid) {
		return nil, fmt.Errorf("%w: revision paid in %s", ErrInvalidTransition, p.Status)
	}
	if payment.Status != models.PaymentCompleted {
		if _, err := s.store.CompletePayment(ctx, c.SessionID, s.now()); err != nil {
			return nil, fmt.Errorf("failed to complete payment: %w", err)
		}
	}
	if applied {
		s.logger.Info("revision payment already applied", "session_id", c.SessionID)
		return p, nil
	}

	updated, err := s.machine.Apply(ctx, p, lifecycle.EventRevisionPaid, ref, "")
	if errors.Is(err, ErrInvalidTransition) {
		// A concurrent delivery of the same payment may have won the CAS.
		if won, _ := s.transitionFrom(ctx, p.ID, ref); won {
			return s.store.GetProject(ctx, p.ID)
		}
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("revision payment confirmed", "project_id", p.ID.String(), "session_id", c.SessionID)
	return updated, nil
}

// transitionFrom reports whether an audit entry with sourceRef exists.
func (s *ProjectService) transitionFrom(ctx context.Context, id uuid.UUID, sourceRef string) (bool, error) {
	ts, err := s.store.ListTransitions(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to list transitions: %w", err)
	}
	for _, t := range ts {
		if t.SourceRef == sourceRef {
			return true, nil
		}
	}
	return false, nil
}

// RevisionPaymentStatus reports a checkout session's payment without
// changing anything; only the webhook completes payments.
func (s *ProjectService) RevisionPaymentStatus(ctx context.Context, actor Actor, id uuid.UUID, sessionID string) (*models.RevisionPayment, error) {
	if _, err := s.load(ctx, actor, id); err != nil {
		return nil, err
	}
	payment, err := s.store.GetPaymentBySession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment.ProjectID != id {
		return nil, ErrNotFound
	}
	return payment, nil
}

// SubmitRevisionInstructions starts the paid revision round with the
// owner's instructions. When the round was already started from the review
// link, the instructions are added to it.
func (s *ProjectService) SubmitRevisionInstructions(ctx context.Context, actor Actor, id uuid.UUID, instructions string) (*models.Project, error) {
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		return nil, fmt.Errorf("%w: instructions are required", ErrInvalidInput)
	}
	p, err := s.loadMutable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if p.Status.Delivered() || p.Status == lifecycle.StatusComplete {
		return nil, ErrPaymentRequired
	}

	if p.Status == lifecycle.StatusAwaitingRevisionInstructions {
		updated, err := s.machine.Apply(ctx, p, lifecycle.EventRevisionStarted, "user:"+actor.ID.String(), instructions)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		// The review link started the round first.
		if p, err = s.load(ctx, actor, id); err != nil {
			return nil, err
		}
	}
	if p.Status != lifecycle.StatusRevisionInProgress {
		return nil, fmt.Errorf("%w: no revision round to instruct in %s", ErrInvalidTransition, p.Status)
	}
	if s.notes == nil {
		return nil, fmt.Errorf("%w: revision already started", ErrInvalidTransition)
	}
	if err := s.notes.AddRevisionInstructions(ctx, p, instructions); err != nil {
		return nil, fmt.Errorf("failed to record revision instructions: %w", err)
	}
	return p, nil
}

// GenerateReviewLink returns a working share for the latest delivered video.
// Commenting is switched on while the owner is writing revision notes, and
// opening the link starts the paid revision round.
func (s *ProjectService) GenerateReviewLink(ctx context.Context, actor Actor, id uuid.UUID) (*models.ReviewLink, error) {
	p, err := s.loadMutable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListFiles(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	var latest *models.ProjectFile
	for i := range files {
		f := &files[i]
		if f.Kind != models.FileKindDelivery || !f.IsVideo() {
			continue
		}
		if latest == nil || f.UploadedAt.After(latest.UploadedAt) {
			latest = f
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no delivered video yet", ErrNotFound)
	}

	awaiting := p.Status == lifecycle.StatusAwaitingRevisionInstructions
	comments := s.opts.ShareComments || awaiting
	link, err := s.reconciler.EnsureShareLink(ctx, p, latest.AssetID, comments)
	if err != nil {
		return nil, err
	}
	if awaiting {
		if _, err := s.advance(ctx, actor, p, lifecycle.EventRevisionStarted, "review-link:user:"+actor.ID.String(), ""); err != nil {
			return nil, err
		}
	}
	return &link, nil
}

func (s *ProjectService) file(ctx context.Context, actor Actor, projectID, fileID uuid.UUID) (*models.ProjectFile, error) {
	if _, err := s.load(ctx, actor, projectID); err != nil {
		return nil, err
	}
	f, err := s.store.GetFile(ctx, projectID, fileID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

func (s *ProjectService) DownloadURL(ctx context.Context, actor Actor, projectID, fileID uuid.UUID) (string, error) {
	f, err := s.file(ctx, actor, projectID, fileID)
	if err != nil {
		return "", err
	}
	return s.reconciler.DownloadURL(ctx, f)
}

func (s *ProjectService) Thumbnail(ctx context.Context, actor Actor, projectID, fileID uuid.UUID) ([]byte, string, error) {
	f, err := s.file(ctx, actor, projectID, fileID)
	if err != nil {
		return nil, "", err
	}
	return s.reconciler.Thumbnail(ctx, f)
}

// SubscriptionCheckout opens a subscription checkout for tier.
func (s *ProjectService) SubscriptionCheckout(ctx context.Context, actor Actor, tier models.Tier) (*payments.Checkout, error) {
	price := s.opts.SubscriptionPrices[tier]
	if price == "" {
		return nil, fmt.Errorf("%w: no price configured for tier %s", ErrInvalidInput, tier)
	}
	checkout, err := s.gateway.CreateSubscriptionCheckout(ctx, payments.SubscriptionCheckout{
		UserID:        actor.ID.String(),
		CustomerEmail: actor.Email,
		Tier:          string(tier),
		PriceID:       price,
		SuccessURL:    s.opts.FrontendURL + "/billing?status=success",
		CancelURL:     s.opts.FrontendURL + "/billing?status=cancelled",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription checkout: %w", err)
	}
	return checkout, nil
}
