package repository

import (
	"context"
	"database/sql"
	"time"

	"client-delivery-backend/internal/models"

	"github.com/google/uuid"
)

// ProjectRepository manages project persistence
type ProjectRepository interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListProjectsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Project, error)
	// FindProjectByFolder resolves the project whose media folder is folderID.
	FindProjectByFolder(ctx context.Context, folderID string) (*models.Project, error)
	CountProjectsSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error)
	SetFolders(ctx context.Context, id uuid.UUID, userFolderID, projectFolderID string) error
	SetReviewLink(ctx context.Context, id uuid.UUID, link models.ReviewLink) error
	SetWorkflowCardID(ctx context.Context, id uuid.UUID, cardID string) error

	// TransitionStatus moves the project from t.From to t.To only if its
	// current status is still t.From, and records t in the same transaction.
	// When markSubmission is set, last_submission_at becomes t.CreatedAt.
	// Returns ErrStaleStatus when the compare-and-set misses.
	TransitionStatus(ctx context.Context, t *models.StatusTransition, markSubmission bool) (*models.Project, error)
	ListTransitions(ctx context.Context, projectID uuid.UUID) ([]models.StatusTransition, error)
}

// FileRepository manages uploaded and delivered media records
type FileRepository interface {
	// UpsertFile inserts f unless (project, asset) already exists. It reports
	// whether a new row was created.
	UpsertFile(ctx context.Context, f *models.ProjectFile) (bool, error)
	ListFiles(ctx context.Context, projectID uuid.UUID) ([]models.ProjectFile, error)
	GetFile(ctx context.Context, projectID, fileID uuid.UUID) (*models.ProjectFile, error)
	SetFileShareURL(ctx context.Context, fileID uuid.UUID, url string) error
}

// FormRepository manages the single intake form per project
type FormRepository interface {
	UpsertForm(ctx context.Context, f *models.FormSubmission) error
	GetForm(ctx context.Context, projectID uuid.UUID) (*models.FormSubmission, error)
}

// PaymentRepository manages revision payments
type PaymentRepository interface {
	CreatePayment(ctx context.Context, p *models.RevisionPayment) error
	GetPaymentBySession(ctx context.Context, sessionID string) (*models.RevisionPayment, error)
	// CompletePayment flips a pending payment to completed. It reports false
	// when the payment was already completed.
	CompletePayment(ctx context.Context, sessionID string, at time.Time) (bool, error)
	FailPayment(ctx context.Context, sessionID string) error
}

// CardRepository manages the project to kanban card mapping
type CardRepository interface {
	// ReserveCard inserts an empty card row. Returns ErrConflict when a row
	// for (project, type, revision) already exists.
	ReserveCard(ctx context.Context, projectID uuid.UUID, cardType models.CardType, revision int) (*models.WorkflowCard, error)
	AttachCard(ctx context.Context, id uuid.UUID, cardID, shortURL, listID string) error
	ReleaseCard(ctx context.Context, id uuid.UUID) error
	ListCards(ctx context.Context, projectID uuid.UUID) ([]models.WorkflowCard, error)
	// LatestCard returns the attached card with the highest revision number.
	LatestCard(ctx context.Context, projectID uuid.UUID) (*models.WorkflowCard, error)
	GetCardByExternalID(ctx context.Context, cardID string) (*models.WorkflowCard, error)
	SetCardHandler(ctx context.Context, cardID string, handler sql.NullString) error
	SetCardList(ctx context.Context, id uuid.UUID, listID string) error
	CompleteCard(ctx context.Context, id uuid.UUID, at time.Time) error
}

// TokenRepository manages shared service credentials and OAuth state
type TokenRepository interface {
	GetToken(ctx context.Context, service string) (*models.ServiceToken, error)
	// SaveToken writes the whole credential tuple in one statement.
	SaveToken(ctx context.Context, t *models.ServiceToken) error
	CreateOAuthState(ctx context.Context, s *models.OAuthState) error
	// ConsumeOAuthState marks state used. Missing, expired or already
	// consumed states all return ErrNotFound.
	ConsumeOAuthState(ctx context.Context, state, service string, now time.Time) error
}

// SubscriptionRepository manages billing subscriptions
type SubscriptionRepository interface {
	GetSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, s *models.Subscription) error
}

// EventRepository records processed webhook deliveries
type EventRepository interface {
	EventProcessed(ctx context.Context, provider, eventID string) (bool, error)
	// RecordEvent stores the delivery. Returns ErrConflict if it was already stored.
	RecordEvent(ctx context.Context, provider, eventID, eventType string) error
}

// Store bundles every repository behind one backend.
type Store interface {
	ProjectRepository
	FileRepository
	FormRepository
	PaymentRepository
	CardRepository
	TokenRepository
	SubscriptionRepository
	EventRepository
}
