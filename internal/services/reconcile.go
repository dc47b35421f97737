package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"client-delivery-backend/internal/cache"
	"client-delivery-backend/internal/frameio"
	"client-delivery-backend/internal/lifecycle"
	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	externalCallTimeout = time.Minute

	// UploadFolderName is the project subfolder clients upload raw footage to,
	// kept apart from the deliverables in the project folder itself.
	UploadFolderName = "Client uploads"
)

// ReconcileResult reports what one reconciliation pass observed and changed.
type ReconcileResult struct {
	Project      *models.Project
	NewFiles     int
	Delivery     *models.ProjectFile
	Transitioned bool
}

// ReconcileService keeps local project state consistent with the media
// platform. Reconcile is safe to call repeatedly from polls, webhooks and
// the CLI; a pass with no new asset changes nothing.
type ReconcileService struct {
	store         repository.Store
	media         MediaPlatform
	machine       *Machine
	cache         cache.Cache
	rootFolderID  string
	shareComments bool
	logger        *slog.Logger
	now           func() time.Time

	userFolders    singleflight.Group
	projectFolders singleflight.Group
	uploadFolders  singleflight.Group
	shares         singleflight.Group
}

func NewReconcileService(
	store repository.Store,
	media MediaPlatform,
	machine *Machine,
	c cache.Cache,
	rootFolderID string,
	shareComments bool,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		store:         store,
		media:         media,
		machine:       machine,
		cache:         c,
		rootFolderID:  rootFolderID,
		shareComments: shareComments,
		logger:        logger.With("component", "reconcile"),
		now:           time.Now,
	}
}

// SetClock overrides the time source.
func (s *ReconcileService) SetClock(now func() time.Time) {
	s.now = now
}

// EnsureFolders creates the owner's folder and the project's subfolder on
// first use and stores both ids. Concurrent callers share one creation.
func (s *ReconcileService) EnsureFolders(ctx context.Context, p *models.Project) (*models.Project, error) {
	if p.MediaFolderID.Valid && p.MediaUserFolderID.Valid {
		return p, nil
	}

	v, err, _ := s.projectFolders.Do(p.ID.String(), func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), externalCallTimeout)
		defer cancel()

		current, err := s.store.GetProject(fctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload project: %w", err)
		}
		if current.MediaFolderID.Valid && current.MediaUserFolderID.Valid {
			return current, nil
		}

		userFolderID, err := s.ensureUserFolder(fctx, current)
		if err != nil {
			return nil, err
		}
		folder, err := s.media.CreateFolder(fctx, userFolderID, projectFolderName(current))
		if err != nil {
			return nil, fmt.Errorf("failed to create project folder: %w", err)
		}
		if err := s.store.SetFolders(fctx, current.ID, userFolderID, folder.ID); err != nil {
			return nil, fmt.Errorf("failed to store project folders: %w", err)
		}

		current.MediaUserFolderID = sql.NullString{String: userFolderID, Valid: true}
		current.MediaFolderID = sql.NullString{String: folder.ID, Valid: true}
		s.logger.Info("media folders created", "project_id", current.ID.String(), "folder_id", folder.ID)
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	cp := *v.(*models.Project)
	return &cp, nil
}

// ensureUserFolder reuses the folder already created for any of the owner's
// projects, creating it once otherwise.
func (s *ReconcileService) ensureUserFolder(ctx context.Context, p *models.Project) (string, error) {
	if p.MediaUserFolderID.Valid {
		return p.MediaUserFolderID.String, nil
	}
	v, err, _ := s.userFolders.Do(p.OwnerID.String(), func() (interface{}, error) {
		siblings, err := s.store.ListProjectsByOwner(ctx, p.OwnerID)
		if err != nil {
			return "", fmt.Errorf("failed to list owner projects: %w", err)
		}
		for _, sib := range siblings {
			if sib.MediaUserFolderID.Valid {
				return sib.MediaUserFolderID.String, nil
			}
		}
		folder, err := s.media.CreateFolder(ctx, s.rootFolderID, userFolderName(p))
		if err != nil {
			return "", fmt.Errorf("failed to create user folder: %w", err)
		}
		return folder.ID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// UploadFolder returns the id of the project's upload subfolder, creating
// the project folders and the subfolder as needed.
func (s *ReconcileService) UploadFolder(ctx context.Context, p *models.Project) (string, error) {
	p, err := s.EnsureFolders(ctx, p)
	if err != nil {
		return "", err
	}
	v, err, _ := s.uploadFolders.Do(p.ID.String(), func() (interface{}, error) {
		children, err := s.media.ListChildren(ctx, p.MediaFolderID.String)
		if err != nil {
			return "", fmt.Errorf("failed to list project folder: %w", err)
		}
		for _, c := range children {
			if c.Type == "folder" && c.Name == UploadFolderName {
				return c.ID, nil
			}
		}
		folder, err := s.media.CreateFolder(ctx, p.MediaFolderID.String, UploadFolderName)
		if err != nil {
			return "", fmt.Errorf("failed to create upload folder: %w", err)
		}
		return folder.ID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func userFolderName(p *models.Project) string {
	if p.OwnerEmail != "" {
		return fmt.Sprintf("%s (%s)", p.OwnerEmail, p.OwnerID.String()[:8])
	}
	return p.OwnerID.String()
}

func projectFolderName(p *models.Project) string {
	return fmt.Sprintf("%s (%s)", p.Title, p.ID.String()[:8])
}

// Reconcile records every video in the project folder and, when the project
// is being edited and a video arrived after the latest submission, publishes
// it and moves the project to video_is_ready.
func (s *ReconcileService) Reconcile(ctx context.Context, projectID uuid.UUID) (*ReconcileResult, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	p, err = s.EnsureFolders(ctx, p)
	if err != nil {
		return nil, err
	}

	assets, err := s.media.ListVideoAssets(ctx, p.MediaFolderID.String)
	if err != nil {
		return nil, fmt.Errorf("failed to list media assets: %w", err)
	}

	res := &ReconcileResult{Project: p}
	candidates := make([]lifecycle.Delivery, 0, len(assets))
	byAsset := make(map[string]*models.ProjectFile, len(assets))
	for _, a := range assets {
		f := &models.ProjectFile{
			ProjectID:  p.ID,
			AssetID:    a.ID,
			Filename:   a.Name,
			MediaType:  a.MediaType,
			Kind:       models.FileKindDelivery,
			UploadedAt: a.CreatedAt,
		}
		if a.FileSize > 0 {
			f.FileSize = sql.NullInt64{Int64: a.FileSize, Valid: true}
		}
		created, err := s.store.UpsertFile(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("failed to record asset %s: %w", a.ID, err)
		}
		if created {
			res.NewFiles++
		}
		byAsset[a.ID] = f
		// An asset the client recorded as their own upload is never a deliverable.
		if f.Kind == models.FileKindDelivery {
			candidates = append(candidates, lifecycle.Delivery{AssetID: a.ID, CreatedAt: a.CreatedAt})
		}
	}

	d, ok := lifecycle.SelectDelivery(candidates, p.SubmissionCutoff())
	if !ok {
		return res, nil
	}
	res.Delivery = byAsset[d.AssetID]
	if !p.Status.InProgress() {
		return res, nil
	}

	link, err := s.EnsureShareLink(ctx, p, d.AssetID, s.shareComments)
	if err != nil {
		return nil, err
	}
	p.ReviewLink = link
	if err := s.store.SetFileShareURL(ctx, res.Delivery.ID, link.URL.String); err != nil {
		s.logger.Warn("failed to store file share url", "file_id", res.Delivery.ID.String(), "error", err)
	}

	updated, err := s.machine.Apply(ctx, p, lifecycle.EventVideoDelivered, "asset:"+d.AssetID, "")
	if errors.Is(err, ErrInvalidTransition) {
		// Another pass delivered it first.
		if fresh, gerr := s.store.GetProject(ctx, p.ID); gerr == nil {
			res.Project = fresh
		}
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	res.Project = updated
	res.Transitioned = true
	return res, nil
}

// EnsureShareLink returns a working public link for assetID, reusing the
// stored one while it points at the same asset, is unexpired and still
// resolves. Otherwise a new share is minted and replaces the stored link.
func (s *ReconcileService) EnsureShareLink(ctx context.Context, p *models.Project, assetID string, comments bool) (models.ReviewLink, error) {
	now := s.now()
	current := p.ReviewLink

	if current.Usable(assetID, now) {
		share, err := s.media.ProbeShare(ctx, current.ShareID.String, now)
		switch {
		case err == nil:
			if share.CommentingEnabled != comments || current.CommentsEnabled != comments {
				s.patchCommenting(ctx, p, &current, comments)
			}
			return current, nil
		case !errors.Is(err, frameio.ErrShareUnavailable):
			return models.ReviewLink{}, fmt.Errorf("failed to probe share: %w", err)
		}
		s.logger.Info("stored share no longer resolves", "project_id", p.ID.String(), "share_id", current.ShareID.String)
	}

	stale := current.ShareID.String
	v, err, _ := s.shares.Do(p.ID.String(), func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), externalCallTimeout)
		defer cancel()

		if fresh, err := s.store.GetProject(sctx, p.ID); err == nil {
			if fresh.ReviewLink.Usable(assetID, now) && fresh.ReviewLink.ShareID.String != stale {
				return fresh.ReviewLink, nil
			}
		}

		share, err := s.media.CreateShare(sctx, p.Title, assetID, now.Add(frameio.ShareLifetime), comments)
		if err != nil {
			return nil, fmt.Errorf("failed to create share: %w", err)
		}
		link := models.ReviewLink{
			URL:             sql.NullString{String: share.ShortURL, Valid: true},
			ShareID:         sql.NullString{String: share.ID, Valid: true},
			AssetID:         sql.NullString{String: assetID, Valid: true},
			ExpiresAt:       sql.NullTime{Time: share.ExpiresAt, Valid: true},
			CommentsEnabled: comments,
		}
		if err := s.store.SetReviewLink(sctx, p.ID, link); err != nil {
			return nil, fmt.Errorf("failed to store review link: %w", err)
		}
		s.logger.Info("share link minted", "project_id", p.ID.String(), "asset_id", assetID, "share_id", share.ID)
		return link, nil
	})
	if err != nil {
		return models.ReviewLink{}, err
	}
	return v.(models.ReviewLink), nil
}

func (s *ReconcileService) patchCommenting(ctx context.Context, p *models.Project, link *models.ReviewLink, comments bool) {
	if err := s.media.UpdateShareCommenting(ctx, link.ShareID.String, comments); err != nil {
		s.logger.Warn("failed to update share commenting", "share_id", link.ShareID.String, "error", err)
		return
	}
	link.CommentsEnabled = comments
	if err := s.store.SetReviewLink(ctx, p.ID, *link); err != nil {
		s.logger.Warn("failed to store review link", "project_id", p.ID.String(), "error", err)
	}
}

// DownloadURL returns a time-limited download URL for f.
func (s *ReconcileService) DownloadURL(ctx context.Context, f *models.ProjectFile) (string, error) {
	key := fmt.Sprintf(cache.DownloadURLKey, f.AssetID)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		return string(cached), nil
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("cache read failed", "key", key, "error", err)
	}

	url, err := s.media.DownloadURL(ctx, f.AssetID)
	if err != nil {
		return "", fmt.Errorf("failed to get download url: %w", err)
	}
	if err := s.cache.Set(ctx, key, []byte(url), cache.DownloadURLDuration); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return url, nil
}

// Thumbnail returns the thumbnail image for f and its content type.
func (s *ReconcileService) Thumbnail(ctx context.Context, f *models.ProjectFile) ([]byte, string, error) {
	key := fmt.Sprintf(cache.ThumbnailKey, f.AssetID)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		if i := bytes.IndexByte(cached, 0); i > 0 {
			return cached[i+1:], string(cached[:i]), nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("cache read failed", "key", key, "error", err)
	}

	data, contentType, err := s.media.Thumbnail(ctx, f.AssetID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get thumbnail: %w", err)
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	entry := make([]byte, 0, len(contentType)+1+len(data))
	entry = append(entry, contentType...)
	entry = append(entry, 0)
	entry = append(entry, data...)
	if err := s.cache.Set(ctx, key, entry, cache.ThumbnailDuration); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return data, contentType, nil
}
