// Package credentials owns the single shared OAuth credential for the media
// platform. Every consumer goes through Provider so refreshes are serialized
// and a rotated refresh token is never lost.
package credentials

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/repository"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrDisconnected means no credential is stored; an admin must authorize.
	ErrDisconnected = errors.New("service is not connected")
	// ErrRefreshRejected means the provider refused the refresh token.
	ErrRefreshRejected = errors.New("refresh token rejected")
	ErrInvalidState    = errors.New("invalid or expired oauth state")
)

const (
	// ExpiringSoonWindow is how far ahead of expiry a token counts as expiring.
	ExpiringSoonWindow = 7 * 24 * time.Hour

	// refreshSkew refreshes access tokens slightly before they lapse.
	refreshSkew = 5 * time.Minute

	stateTTL       = 15 * time.Minute
	refreshTimeout = 30 * time.Second
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateExpired      State = "expired"
	StateExpiringSoon State = "expiring_soon"
	StateHealthy      State = "healthy"
)

type Status struct {
	Service   string
	State     State
	ExpiresAt time.Time
	Remaining time.Duration
}

type Provider struct {
	service string
	repo    repository.TokenRepository
	oauth   *oauth2.Config
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	current *models.ServiceToken

	refreshGroup singleflight.Group
}

func NewProvider(service string, repo repository.TokenRepository, oauth *oauth2.Config, logger *slog.Logger) *Provider {
	return &Provider{
		service: service,
		repo:    repo,
		oauth:   oauth,
		logger:  logger.With("service", service),
		now:     time.Now,
	}
}

// SetClock overrides the time source.
func (p *Provider) SetClock(now func() time.Time) {
	p.now = now
}

func (p *Provider) Service() string { return p.service }

// load returns the in-memory credential, reading through to storage once.
// It serves the hot path in GetValid only.
func (p *Provider) load(ctx context.Context) (*models.ServiceToken, error) {
	p.mu.RLock()
	cur := p.current
	p.mu.RUnlock()
	if cur != nil {
		cp := *cur
		return &cp, nil
	}
	return p.reload(ctx)
}

// reload reads the stored credential and replaces the in-memory copy.
// Other processes rotate the same row, so anything that decides on or
// spends the refresh token starts here.
func (p *Provider) reload(ctx context.Context) (*models.ServiceToken, error) {
	tok, err := p.repo.GetToken(ctx, p.service)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrDisconnected
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s token: %w", p.service, err)
	}
	p.swap(tok)
	cp := *tok
	return &cp, nil
}

func (p *Provider) swap(tok *models.ServiceToken) {
	cp := *tok
	p.mu.Lock()
	p.current = &cp
	p.mu.Unlock()
}

// Status classifies the stored credential without touching the network.
func (p *Provider) Status(ctx context.Context) (Status, error) {
	tok, err := p.reload(ctx)
	if errors.Is(err, ErrDisconnected) {
		return Status{Service: p.service, State: StateDisconnected}, nil
	}
	if err != nil {
		return Status{}, err
	}
	remaining := tok.ExpiresAt.Sub(p.now())
	st := Status{Service: p.service, ExpiresAt: tok.ExpiresAt, Remaining: remaining}
	switch {
	case remaining <= 0:
		st.State = StateExpired
	case remaining <= ExpiringSoonWindow:
		st.State = StateExpiringSoon
	default:
		st.State = StateHealthy
	}
	return st, nil
}

// GetValid returns a credential whose access token is usable now,
// refreshing it first when it is expired or about to be.
func (p *Provider) GetValid(ctx context.Context) (*models.ServiceToken, error) {
	tok, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	if tok.ExpiresAt.Sub(p.now()) > refreshSkew {
		return tok, nil
	}
	return p.Refresh(ctx)
}

// AccessToken satisfies frameio.TokenSource.
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	tok, err := p.GetValid(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Refresh exchanges the refresh token for a new credential. Concurrent
// callers share one upstream exchange.
func (p *Provider) Refresh(ctx context.Context) (*models.ServiceToken, error) {
	v, err, _ := p.refreshGroup.Do("refresh", func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return p.refresh(rctx)
	})
	if err != nil {
		return nil, err
	}
	tok := *v.(*models.ServiceToken)
	return &tok, nil
}

func (p *Provider) refresh(ctx context.Context) (*models.ServiceToken, error) {
	cur, err := p.reload(ctx)
	if err != nil {
		return nil, err
	}
	if cur.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token stored", ErrRefreshRejected)
	}

	// An empty access token forces the token source to hit the token endpoint.
	src := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cur.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && rejected(retrieveErr) {
			if won, ok := p.rotatedElsewhere(ctx, cur); ok {
				return won, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrRefreshRejected, retrieveErr.ErrorCode)
		}
		return nil, fmt.Errorf("failed to refresh %s token: %w", p.service, err)
	}

	next := p.fromOAuth(fresh, cur)
	if err := p.repo.SaveToken(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	p.swap(next)
	p.logger.Info("token refreshed", "expires_at", next.ExpiresAt)
	return next, nil
}

// rotatedElsewhere reports whether another process rotated the refresh
// token between our read and our exchange. Its credential is adopted.
func (p *Provider) rotatedElsewhere(ctx context.Context, used *models.ServiceToken) (*models.ServiceToken, bool) {
	stored, err := p.reload(ctx)
	if err != nil || stored.RefreshToken == used.RefreshToken {
		return nil, false
	}
	if !stored.ExpiresAt.After(p.now()) {
		return nil, false
	}
	p.logger.Info("adopted token rotated by another process", "expires_at", stored.ExpiresAt)
	return stored, true
}

func rejected(e *oauth2.RetrieveError) bool {
	if e.ErrorCode == "invalid_grant" {
		return true
	}
	return e.Response != nil && e.Response.StatusCode == 400
}

func (p *Provider) fromOAuth(t *oauth2.Token, prev *models.ServiceToken) *models.ServiceToken {
	next := &models.ServiceToken{
		Service:      p.service,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.Expiry,
	}
	// Providers that do not rotate omit the refresh token.
	if next.RefreshToken == "" && prev != nil {
		next.RefreshToken = prev.RefreshToken
	}
	if next.ExpiresAt.IsZero() {
		next.ExpiresAt = p.now().Add(24 * time.Hour)
	}
	if scope, ok := t.Extra("scope").(string); ok {
		next.Scope = scope
	} else if prev != nil {
		next.Scope = prev.Scope
	}
	return next
}

// AuthURL stores a fresh single-use state and returns the consent URL.
func (p *Provider) AuthURL(ctx context.Context) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	state := hex.EncodeToString(buf)

	if err := p.repo.CreateOAuthState(ctx, &models.OAuthState{
		State:     state,
		Service:   p.service,
		ExpiresAt: p.now().Add(stateTTL),
	}); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// CompleteAuthorization consumes state and exchanges code for a credential.
func (p *Provider) CompleteAuthorization(ctx context.Context, state, code string) (*models.ServiceToken, error) {
	if err := p.repo.ConsumeOAuthState(ctx, state, p.service, p.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}

	t, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	tok := p.fromOAuth(t, nil)
	if err := p.repo.SaveToken(ctx, tok); err != nil {
		return nil, fmt.Errorf("failed to persist token: %w", err)
	}
	p.swap(tok)
	p.logger.Info("service connected", "expires_at", tok.ExpiresAt)
	return tok, nil
}
