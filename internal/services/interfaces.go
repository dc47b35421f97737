package services

import (
	"context"
	"time"

	"client-delivery-backend/internal/frameio"
	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/trello"

	"github.com/google/uuid"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID    uuid.UUID
	Email string
	Admin bool
}

// TransitionObserver is told about every applied status transition after it
// has been committed. Observers must not fail the transition.
type TransitionObserver interface {
	OnTransition(ctx context.Context, p models.Project, t models.StatusTransition)
}

// MediaPlatform is the media storage surface reconciliation depends on.
type MediaPlatform interface {
	CreateFolder(ctx context.Context, parentID, name string) (*frameio.Folder, error)
	ListChildren(ctx context.Context, folderID string) ([]frameio.Asset, error)
	ListVideoAssets(ctx context.Context, folderID string) ([]frameio.Asset, error)
	GetFile(ctx context.Context, fileID string) (*frameio.Asset, error)
	DownloadURL(ctx context.Context, fileID string) (string, error)
	Thumbnail(ctx context.Context, fileID string) ([]byte, string, error)
	CreateShare(ctx context.Context, name, assetID string, expiresAt time.Time, commenting bool) (*frameio.Share, error)
	UpdateShareCommenting(ctx context.Context, shareID string, commenting bool) error
	ProbeShare(ctx context.Context, shareID string, now time.Time) (*frameio.Share, error)
}

// RevisionNotes takes instructions for a revision round that is already
// running.
type RevisionNotes interface {
	AddRevisionInstructions(ctx context.Context, p *models.Project, instructions string) error
}

// Kanban is the editor workflow board surface.
type Kanban interface {
	CreateCard(ctx context.Context, nc trello.NewCard) (*trello.Card, error)
	MoveCard(ctx context.Context, cardID, listID string) error
	AttachOnce(ctx context.Context, cardID, name, link string) (bool, error)
	AddComment(ctx context.Context, cardID, text string) error
	EnsureLabel(ctx context.Context, boardID, name, color string) (*trello.Label, error)
}
