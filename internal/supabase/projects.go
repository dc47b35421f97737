package supabase

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/repository"

	"github.com/google/uuid"
)

const projectColumns = `id, owner_id, owner_email, title, status, media_folder_id, media_user_folder_id,
	review_link, review_share_id, review_asset_id, review_link_expires_at, review_comments_enabled,
	workflow_card_id, last_submission_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	var p models.Project
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.OwnerEmail, &p.Title, &p.Status, &p.MediaFolderID, &p.MediaUserFolderID,
		&p.ReviewLink.URL, &p.ReviewLink.ShareID, &p.ReviewLink.AssetID, &p.ReviewLink.ExpiresAt,
		&p.ReviewLink.CommentsEnabled, &p.WorkflowCardID, &p.LastSubmissionAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *DatabaseClient) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO projects (id, owner_id, owner_email, title, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, p.ID, p.OwnerID, p.OwnerEmail, p.Title, p.Status).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapError(err, "create project")
}

func (d *DatabaseClient) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	p, err := scanProject(d.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "get project")
	}
	return p, nil
}

func (d *DatabaseClient) ListProjectsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Project, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (d *DatabaseClient) FindProjectByFolder(ctx context.Context, folderID string) (*models.Project, error) {
	p, err := scanProject(d.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE media_folder_id = $1`, folderID))
	if err != nil {
		return nil, mapError(err, "find project by folder")
	}
	return p, nil
}

func (d *DatabaseClient) CountProjectsSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projects WHERE owner_id = $1 AND created_at >= $2`,
		ownerID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}
	return n, nil
}

func (d *DatabaseClient) SetFolders(ctx context.Context, id uuid.UUID, userFolderID, projectFolderID string) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE projects
		SET media_user_folder_id = $1, media_folder_id = $2, updated_at = NOW()
		WHERE id = $3
	`, nullString(userFolderID), nullString(projectFolderID), id)
	if err != nil {
		return mapError(err, "set project folders")
	}
	return requireRow(res, "set project folders")
}

func (d *DatabaseClient) SetReviewLink(ctx context.Context, id uuid.UUID, link models.ReviewLink) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE projects
		SET review_link = $1, review_share_id = $2, review_asset_id = $3,
		    review_link_expires_at = $4, review_comments_enabled = $5, updated_at = NOW()
		WHERE id = $6
	`, link.URL, link.ShareID, link.AssetID, link.ExpiresAt, link.CommentsEnabled, id)
	if err != nil {
		return mapError(err, "set review link")
	}
	return requireRow(res, "set review link")
}

func (d *DatabaseClient) SetWorkflowCardID(ctx context.Context, id uuid.UUID, cardID string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE projects SET workflow_card_id = $1, updated_at = NOW() WHERE id = $2`,
		nullString(cardID), id)
	if err != nil {
		return mapError(err, "set workflow card")
	}
	return requireRow(res, "set workflow card")
}

func (d *DatabaseClient) TransitionStatus(ctx context.Context, t *models.StatusTransition, markSubmission bool) (*models.Project, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	var updated *models.Project
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		p, err := scanProject(tx.QueryRowContext(ctx, `
			UPDATE projects
			SET status = $1,
			    updated_at = $2,
			    last_submission_at = CASE WHEN $3 THEN $2 ELSE last_submission_at END
			WHERE id = $4 AND status = $5
			RETURNING `+projectColumns,
			t.To, t.CreatedAt, markSubmission, t.ProjectID, t.From))
		if err == sql.ErrNoRows {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, t.ProjectID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check project: %w", err)
			}
			if !exists {
				return repository.ErrNotFound
			}
			return repository.ErrStaleStatus
		}
		if err != nil {
			return fmt.Errorf("failed to update project status: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO status_transitions (id, project_id, from_status, to_status, event, source_ref, detail, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, t.ID, t.ProjectID, t.From, t.To, string(t.Event), t.SourceRef, t.Detail, t.CreatedAt); err != nil {
			return fmt.Errorf("failed to record status transition: %w", err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (d *DatabaseClient) ListTransitions(ctx context.Context, projectID uuid.UUID) ([]models.StatusTransition, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, project_id, from_status, to_status, event, source_ref, detail, created_at
		FROM status_transitions
		WHERE project_id = $1
		ORDER BY created_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	var out []models.StatusTransition
	for rows.Next() {
		var t models.StatusTransition
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.From, &t.To, &t.Event, &t.SourceRef, &t.Detail, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
