package supabase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	"github.com/supabase-community/supabase-go"
)

// UserDirectory looks up account details in Supabase Auth. Webhook driven
// flows have no request JWT, so owner emails are resolved here.
type UserDirectory struct {
	auth gotrue.Client
}

func NewUserDirectory(supabaseURL, serviceRoleKey string) (*UserDirectory, error) {
	client, err := supabase.NewClient(supabaseURL, serviceRoleKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &UserDirectory{auth: client.Auth.WithToken(serviceRoleKey)}, nil
}

// Email returns the primary email of userID.
func (u *UserDirectory) Email(ctx context.Context, userID uuid.UUID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := u.auth.AdminGetUser(types.AdminGetUserRequest{UserID: userID})
	if err != nil {
		return "", fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	if resp.Email == "" {
		return "", fmt.Errorf("user %s has no email", userID)
	}
	return resp.Email, nil
}
