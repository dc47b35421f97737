package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"client-delivery-backend/internal/lifecycle"

	"github.com/google/uuid"
)

type Project struct {
	ID                uuid.UUID
	OwnerID           uuid.UUID
	OwnerEmail        string
	Title             string
	Status            lifecycle.Status
	MediaFolderID     sql.NullString
	MediaUserFolderID sql.NullString
	ReviewLink        ReviewLink
	WorkflowCardID    sql.NullString
	LastSubmissionAt  sql.NullTime
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ReviewLink is the cached public share for the current deliverable.
type ReviewLink struct {
	URL             sql.NullString
	ShareID         sql.NullString
	AssetID         sql.NullString
	ExpiresAt       sql.NullTime
	CommentsEnabled bool
}

// Usable reports whether the cached link points at assetID and has not expired.
func (r ReviewLink) Usable(assetID string, now time.Time) bool {
	if !r.URL.Valid || r.URL.String == "" || !r.ShareID.Valid {
		return false
	}
	if !r.AssetID.Valid || r.AssetID.String != assetID {
		return false
	}
	return r.ExpiresAt.Valid && now.Before(r.ExpiresAt.Time)
}

// SubmissionCutoff is the timestamp a delivered asset must postdate.
func (p *Project) SubmissionCutoff() time.Time {
	if p.LastSubmissionAt.Valid {
		return p.LastSubmissionAt.Time
	}
	return p.CreatedAt
}

type FileKind string

const (
	FileKindUpload   FileKind = "upload"
	FileKindDelivery FileKind = "delivery"
)

type ProjectFile struct {
	ID         uuid.UUID
	ProjectID  uuid.UUID
	AssetID    string
	Filename   string
	MediaType  string
	Kind       FileKind
	FileSize   sql.NullInt64
	UploadedAt time.Time
	ShareURL   sql.NullString
	CreatedAt  time.Time
}

func (f *ProjectFile) IsVideo() bool {
	return IsVideoMediaType(f.MediaType)
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type RevisionPayment struct {
	ID                uuid.UUID
	ProjectID         uuid.UUID
	UserID            uuid.UUID
	CheckoutSessionID string
	AmountCents       int64
	Currency          string
	Status            PaymentStatus
	CreatedAt         time.Time
	CompletedAt       sql.NullTime
}

type CardType string

const (
	CardTypeInitial  CardType = "initial"
	CardTypeRevision CardType = "revision"
)

// WorkflowCard maps a project editing round to a kanban card. The initial
// card always has revision number 0.
type WorkflowCard struct {
	ID              uuid.UUID
	ProjectID       uuid.UUID
	CardID          string
	CardType        CardType
	RevisionNumber  int
	ShortURL        sql.NullString
	ListID          sql.NullString
	AssignedHandler sql.NullString
	CompletedAt     sql.NullTime
	CreatedAt       time.Time
}

// Reserved reports whether the row exists but the external card was not created yet.
func (w *WorkflowCard) Reserved() bool {
	return w.CardID == ""
}

type StatusTransition struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	From      lifecycle.Status
	To        lifecycle.Status
	Event     lifecycle.Event
	SourceRef string
	Detail    string
	CreatedAt time.Time
}

type FormSubmission struct {
	ProjectID    uuid.UUID
	SubmissionID string
	Payload      json.RawMessage
	SubmittedAt  time.Time
	UpdatedAt    time.Time
}

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

type Subscription struct {
	UserID               uuid.UUID
	StripeCustomerID     sql.NullString
	StripeSubscriptionID sql.NullString
	Tier                 Tier
	Status               SubscriptionStatus
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     sql.NullTime
	UpdatedAt            time.Time
}

func (s *Subscription) Active() bool {
	return s.Status == SubscriptionActive || s.Status == SubscriptionTrialing
}
