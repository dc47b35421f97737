package supabase

import (
	"context"
	"fmt"

	"client-delivery-backend/internal/models"

	"github.com/google/uuid"
)

const subscriptionColumns = `user_id, stripe_customer_id, stripe_subscription_id, tier, status,
	current_period_start, current_period_end, updated_at`

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var s models.Subscription
	err := row.Scan(&s.UserID, &s.StripeCustomerID, &s.StripeSubscriptionID, &s.Tier, &s.Status,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *DatabaseClient) GetSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	s, err := scanSubscription(d.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID))
	if err != nil {
		return nil, mapError(err, "get subscription")
	}
	return s, nil
}

func (d *DatabaseClient) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	s, err := scanSubscription(d.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_subscription_id = $1`, stripeSubscriptionID))
	if err != nil {
		return nil, mapError(err, "get subscription")
	}
	return s, nil
}

func (d *DatabaseClient) UpsertSubscription(ctx context.Context, s *models.Subscription) error {
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO subscriptions (user_id, stripe_customer_id, stripe_subscription_id, tier, status,
		                           current_period_start, current_period_end, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET stripe_customer_id = EXCLUDED.stripe_customer_id,
		    stripe_subscription_id = EXCLUDED.stripe_subscription_id,
		    tier = EXCLUDED.tier,
		    status = EXCLUDED.status,
		    current_period_start = EXCLUDED.current_period_start,
		    current_period_end = EXCLUDED.current_period_end,
		    updated_at = NOW()
		RETURNING updated_at
	`, s.UserID, s.StripeCustomerID, s.StripeSubscriptionID, string(s.Tier), string(s.Status),
		s.CurrentPeriodStart, s.CurrentPeriodEnd).Scan(&s.UpdatedAt)
	return mapError(err, "upsert subscription")
}

func (d *DatabaseClient) EventProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM webhook_events WHERE provider = $1 AND event_id = $2)`,
		provider, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check webhook event: %w", err)
	}
	return exists, nil
}

func (d *DatabaseClient) RecordEvent(ctx context.Context, provider, eventID, eventType string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO webhook_events (provider, event_id, event_type) VALUES ($1, $2, $3)
	`, provider, eventID, eventType)
	return mapError(err, "record webhook event")
}
