package supabase

import (
	"context"
	"time"

	"client-delivery-backend/internal/models"
)

func (d *DatabaseClient) GetToken(ctx context.Context, service string) (*models.ServiceToken, error) {
	var t models.ServiceToken
	err := d.db.QueryRowContext(ctx, `
		SELECT service, access_token, refresh_token, expires_at, scope, updated_at
		FROM service_tokens
		WHERE service = $1
	`, service).Scan(&t.Service, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.Scope, &t.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "get service token")
	}
	return &t, nil
}

// SaveToken replaces the whole credential tuple in a single upsert so a
// reader never sees a new access token paired with a stale refresh token.
func (d *DatabaseClient) SaveToken(ctx context.Context, t *models.ServiceToken) error {
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO service_tokens (service, access_token, refresh_token, expires_at, scope, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (service) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    expires_at = EXCLUDED.expires_at,
		    scope = EXCLUDED.scope,
		    updated_at = NOW()
		RETURNING updated_at
	`, t.Service, t.AccessToken, t.RefreshToken, t.ExpiresAt, t.Scope).Scan(&t.UpdatedAt)
	return mapError(err, "save service token")
}

func (d *DatabaseClient) CreateOAuthState(ctx context.Context, s *models.OAuthState) error {
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO oauth_states (state, service, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, s.State, s.Service, s.ExpiresAt).Scan(&s.CreatedAt)
	return mapError(err, "create oauth state")
}

func (d *DatabaseClient) ConsumeOAuthState(ctx context.Context, state, service string, now time.Time) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE oauth_states
		SET consumed = TRUE
		WHERE state = $1 AND service = $2 AND consumed = FALSE AND expires_at > $3
	`, state, service, now)
	if err != nil {
		return mapError(err, "consume oauth state")
	}
	return requireRow(res, "consume oauth state")
}
