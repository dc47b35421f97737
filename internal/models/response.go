package models

import "time"

type ProjectResponse struct {
	ID               string     `json:"project_id"`
	Title            string     `json:"title"`
	Status           string     `json:"status"`
	StatusLabel      string     `json:"status_label"`
	ReviewLink       string     `json:"review_link,omitempty"`
	ReviewLinkExpiry *time.Time `json:"review_link_expires_at,omitempty"`
	MediaFolderID    string     `json:"media_folder_id,omitempty"`
	LastActivityAt   time.Time  `json:"last_activity_at"`
	AccessExpiresAt  time.Time  `json:"access_expires_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type ProjectListResponse struct {
	Projects []ProjectResponse `json:"projects"`
}

type StatusResponse struct {
	ProjectID      string    `json:"project_id"`
	Status         string    `json:"status"`
	StatusLabel    string    `json:"status_label"`
	ReviewLink     string    `json:"review_link,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Synced         bool      `json:"synced"`
}

type TransitionResponse struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Event     string    `json:"event"`
	CreatedAt time.Time `json:"created_at"`
}

type HistoryResponse struct {
	ProjectID   string               `json:"project_id"`
	Transitions []TransitionResponse `json:"transitions"`
}

type FileResponse struct {
	ID         string    `json:"id"`
	AssetID    string    `json:"asset_id"`
	Filename   string    `json:"filename"`
	MediaType  string    `json:"media_type"`
	Kind       string    `json:"kind"`
	FileSize   int64     `json:"file_size"`
	ShareURL   string    `json:"share_url,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type FilesResponse struct {
	Files []FileResponse `json:"files"`
}

type UploadTargetResponse struct {
	ProjectID string `json:"project_id"`
	FolderID  string `json:"folder_id"`
}

type DownloadResponse struct {
	URL string `json:"url"`
}

type LinkResponse struct {
	ProjectID string    `json:"project_id"`
	Status    string    `json:"status"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

type CheckoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

type PaymentStatusResponse struct {
	ProjectID     string `json:"project_id"`
	SessionID     string `json:"session_id"`
	PaymentStatus string `json:"payment_status"`
	ProjectStatus string `json:"project_status"`
}

type TokenStatusResponse struct {
	Service   string     `json:"service"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Remaining string     `json:"remaining,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
