package frameio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ShareLifetime is how long a minted review link stays valid.
const ShareLifetime = 30 * 24 * time.Hour

// ErrShareUnavailable means a cached share can no longer be served to a viewer.
var ErrShareUnavailable = errors.New("share is no longer available")

type Share struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	ShortURL          string    `json:"short_url"`
	Enabled           bool      `json:"enabled"`
	CommentingEnabled bool      `json:"commenting_enabled"`
	ExpiresAt         time.Time `json:"expiration"`
}

type createShareRequest struct {
	Name              string    `json:"name"`
	Type              string    `json:"type"`
	Access            string    `json:"access"`
	AssetIDs          []string  `json:"asset_ids"`
	CommentingEnabled bool      `json:"commenting_enabled"`
	Expiration        time.Time `json:"expiration"`
}

type updateShareRequest struct {
	CommentingEnabled bool `json:"commenting_enabled"`
}

// CreateShare mints a public review link for a single asset.
func (c *Client) CreateShare(ctx context.Context, name, assetID string, expiresAt time.Time, commenting bool) (*Share, error) {
	var out dataEnvelope[Share]
	err := c.do(ctx, "create share", http.MethodPost,
		c.accountPath("/projects/%s/shares", c.projectID),
		dataEnvelope[createShareRequest]{Data: createShareRequest{
			Name:              name,
			Type:              "asset",
			Access:            "public",
			AssetIDs:          []string{assetID},
			CommentingEnabled: commenting,
			Expiration:        expiresAt.UTC(),
		}}, &out)
	if err != nil {
		return nil, err
	}
	if out.Data.ShortURL == "" {
		return nil, fmt.Errorf("share url is empty in response")
	}
	if out.Data.ExpiresAt.IsZero() {
		out.Data.ExpiresAt = expiresAt
	}
	return &out.Data, nil
}

func (c *Client) GetShare(ctx context.Context, shareID string) (*Share, error) {
	var out dataEnvelope[Share]
	err := c.RetryWithBackoff(ctx, func() error {
		return c.do(ctx, "get share", http.MethodGet, c.accountPath("/shares/%s", shareID), nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) UpdateShareCommenting(ctx context.Context, shareID string, commenting bool) error {
	return c.do(ctx, "update share", http.MethodPatch, c.accountPath("/shares/%s", shareID),
		dataEnvelope[updateShareRequest]{Data: updateShareRequest{CommentingEnabled: commenting}}, nil)
}

// ProbeShare checks that a previously minted share still resolves. A deleted,
// disabled or expired share yields ErrShareUnavailable; other failures are
// returned as is so callers can tell an outage from a dead link.
func (c *Client) ProbeShare(ctx context.Context, shareID string, now time.Time) (*Share, error) {
	share, err := c.GetShare(ctx, shareID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrShareUnavailable
		}
		return nil, err
	}
	if !share.Enabled {
		return nil, ErrShareUnavailable
	}
	if !share.ExpiresAt.IsZero() && !now.Before(share.ExpiresAt) {
		return nil, ErrShareUnavailable
	}
	return share, nil
}
