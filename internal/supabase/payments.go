package supabase

import (
	"context"
	"time"

	"client-delivery-backend/internal/models"

	"github.com/google/uuid"
)

func (d *DatabaseClient) CreatePayment(ctx context.Context, p *models.RevisionPayment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO revision_payments (id, project_id, user_id, checkout_session_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, p.ID, p.ProjectID, p.UserID, p.CheckoutSessionID, p.AmountCents, p.Currency, string(p.Status)).Scan(&p.CreatedAt)
	return mapError(err, "create revision payment")
}

func (d *DatabaseClient) GetPaymentBySession(ctx context.Context, sessionID string) (*models.RevisionPayment, error) {
	var p models.RevisionPayment
	err := d.db.QueryRowContext(ctx, `
		SELECT id, project_id, user_id, checkout_session_id, amount_cents, currency, status, created_at, completed_at
		FROM revision_payments
		WHERE checkout_session_id = $1
	`, sessionID).Scan(&p.ID, &p.ProjectID, &p.UserID, &p.CheckoutSessionID, &p.AmountCents,
		&p.Currency, &p.Status, &p.CreatedAt, &p.CompletedAt)
	if err != nil {
		return nil, mapError(err, "get revision payment")
	}
	return &p, nil
}

func (d *DatabaseClient) CompletePayment(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE revision_payments
		SET status = 'completed', completed_at = $1
		WHERE checkout_session_id = $2 AND status <> 'completed'
	`, at, sessionID)
	if err != nil {
		return false, mapError(err, "complete revision payment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapError(err, "complete revision payment")
	}
	if n == 1 {
		return true, nil
	}
	// Distinguish an unknown session from one that was already completed.
	if _, err := d.GetPaymentBySession(ctx, sessionID); err != nil {
		return false, err
	}
	return false, nil
}

func (d *DatabaseClient) FailPayment(ctx context.Context, sessionID string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE revision_payments
		SET status = 'failed'
		WHERE checkout_session_id = $1 AND status = 'pending'
	`, sessionID)
	return mapError(err, "fail revision payment")
}
