package models

import (
	"strings"
	"time"
)

// ServiceFrameio is the service name of the shared media platform credential.
const ServiceFrameio = "frameio"

// ServiceToken is the single shared OAuth credential for an external service.
type ServiceToken struct {
	Service      string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
	UpdatedAt    time.Time
}

// OAuthState is a single-use anti-CSRF value for the authorization code flow.
type OAuthState struct {
	State     string
	Service   string
	ExpiresAt time.Time
	Consumed  bool
	CreatedAt time.Time
}

func IsVideoMediaType(mediaType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	return mt == "video" || strings.HasPrefix(mt, "video/")
}
