package supabase

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"client-delivery-backend/internal/models"

	"github.com/google/uuid"
)

const cardColumns = `id, project_id, card_id, card_type, revision_number, short_url, list_id, assigned_handler, completed_at, created_at`

func scanCard(row rowScanner) (*models.WorkflowCard, error) {
	var c models.WorkflowCard
	err := row.Scan(&c.ID, &c.ProjectID, &c.CardID, &c.CardType, &c.RevisionNumber,
		&c.ShortURL, &c.ListID, &c.AssignedHandler, &c.CompletedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (d *DatabaseClient) ReserveCard(ctx context.Context, projectID uuid.UUID, cardType models.CardType, revision int) (*models.WorkflowCard, error) {
	c, err := scanCard(d.db.QueryRowContext(ctx, `
		INSERT INTO workflow_cards (id, project_id, card_type, revision_number)
		VALUES ($1, $2, $3, $4)
		RETURNING `+cardColumns,
		uuid.New(), projectID, string(cardType), revision))
	if err != nil {
		return nil, mapError(err, "reserve workflow card")
	}
	return c, nil
}

func (d *DatabaseClient) AttachCard(ctx context.Context, id uuid.UUID, cardID, shortURL, listID string) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE workflow_cards SET card_id = $1, short_url = $2, list_id = $3 WHERE id = $4
	`, cardID, nullString(shortURL), nullString(listID), id)
	if err != nil {
		return mapError(err, "attach workflow card")
	}
	return requireRow(res, "attach workflow card")
}

func (d *DatabaseClient) ReleaseCard(ctx context.Context, id uuid.UUID) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM workflow_cards WHERE id = $1 AND card_id = ''`, id)
	return mapError(err, "release workflow card")
}

func (d *DatabaseClient) ListCards(ctx context.Context, projectID uuid.UUID) ([]models.WorkflowCard, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM workflow_cards
		WHERE project_id = $1
		ORDER BY revision_number ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow cards: %w", err)
	}
	defer rows.Close()

	var cards []models.WorkflowCard
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow card: %w", err)
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

func (d *DatabaseClient) LatestCard(ctx context.Context, projectID uuid.UUID) (*models.WorkflowCard, error) {
	c, err := scanCard(d.db.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM workflow_cards
		WHERE project_id = $1 AND card_id <> ''
		ORDER BY revision_number DESC
		LIMIT 1
	`, projectID))
	if err != nil {
		return nil, mapError(err, "get latest workflow card")
	}
	return c, nil
}

func (d *DatabaseClient) GetCardByExternalID(ctx context.Context, cardID string) (*models.WorkflowCard, error) {
	c, err := scanCard(d.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM workflow_cards WHERE card_id = $1`, cardID))
	if err != nil {
		return nil, mapError(err, "get workflow card")
	}
	return c, nil
}

func (d *DatabaseClient) SetCardHandler(ctx context.Context, cardID string, handler sql.NullString) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE workflow_cards SET assigned_handler = $1 WHERE card_id = $2`, handler, cardID)
	if err != nil {
		return mapError(err, "set card handler")
	}
	return requireRow(res, "set card handler")
}

func (d *DatabaseClient) SetCardList(ctx context.Context, id uuid.UUID, listID string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE workflow_cards SET list_id = $1 WHERE id = $2`, nullString(listID), id)
	if err != nil {
		return mapError(err, "set card list")
	}
	return requireRow(res, "set card list")
}

func (d *DatabaseClient) CompleteCard(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE workflow_cards SET completed_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return mapError(err, "complete card")
	}
	return requireRow(res, "complete card")
}
