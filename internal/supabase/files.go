package supabase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"client-delivery-backend/internal/models"

	"github.com/google/uuid"
)

const fileColumns = `id, project_id, asset_id, filename, media_type, kind, file_size, uploaded_at, share_url, created_at`

func scanFile(row rowScanner) (*models.ProjectFile, error) {
	var f models.ProjectFile
	err := row.Scan(&f.ID, &f.ProjectID, &f.AssetID, &f.Filename, &f.MediaType, &f.Kind,
		&f.FileSize, &f.UploadedAt, &f.ShareURL, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (d *DatabaseClient) UpsertFile(ctx context.Context, f *models.ProjectFile) (bool, error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	inserted, err := scanFile(d.db.QueryRowContext(ctx, `
		INSERT INTO project_files (id, project_id, asset_id, filename, media_type, kind, file_size, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))
		ON CONFLICT (project_id, asset_id) DO NOTHING
		RETURNING `+fileColumns,
		f.ID, f.ProjectID, f.AssetID, f.Filename, f.MediaType, string(f.Kind), f.FileSize, nullTime(f.UploadedAt)))
	if err == nil {
		*f = *inserted
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, mapError(err, "insert project file")
	}

	existing, err := scanFile(d.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM project_files WHERE project_id = $1 AND asset_id = $2`,
		f.ProjectID, f.AssetID))
	if err != nil {
		return false, mapError(err, "get project file")
	}
	*f = *existing
	return false, nil
}

func (d *DatabaseClient) ListFiles(ctx context.Context, projectID uuid.UUID) ([]models.ProjectFile, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+fileColumns+`
		FROM project_files
		WHERE project_id = $1
		ORDER BY uploaded_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project files: %w", err)
	}
	defer rows.Close()

	var files []models.ProjectFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

func (d *DatabaseClient) GetFile(ctx context.Context, projectID, fileID uuid.UUID) (*models.ProjectFile, error) {
	f, err := scanFile(d.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM project_files WHERE id = $1 AND project_id = $2`,
		fileID, projectID))
	if err != nil {
		return nil, mapError(err, "get project file")
	}
	return f, nil
}

func (d *DatabaseClient) SetFileShareURL(ctx context.Context, fileID uuid.UUID, url string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE project_files SET share_url = $1 WHERE id = $2`, nullString(url), fileID)
	if err != nil {
		return mapError(err, "set file share url")
	}
	return requireRow(res, "set file share url")
}

func (d *DatabaseClient) UpsertForm(ctx context.Context, f *models.FormSubmission) error {
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO form_submissions (project_id, submission_id, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id) DO UPDATE
		SET submission_id = EXCLUDED.submission_id, payload = EXCLUDED.payload, updated_at = NOW()
		RETURNING submitted_at, updated_at
	`, f.ProjectID, f.SubmissionID, []byte(f.Payload)).Scan(&f.SubmittedAt, &f.UpdatedAt)
	return mapError(err, "upsert form submission")
}

func (d *DatabaseClient) GetForm(ctx context.Context, projectID uuid.UUID) (*models.FormSubmission, error) {
	var f models.FormSubmission
	var payload []byte
	err := d.db.QueryRowContext(ctx, `
		SELECT project_id, submission_id, payload, submitted_at, updated_at
		FROM form_submissions
		WHERE project_id = $1
	`, projectID).Scan(&f.ProjectID, &f.SubmissionID, &payload, &f.SubmittedAt, &f.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "get form submission")
	}
	f.Payload = payload
	return &f, nil
}
