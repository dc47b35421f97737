package models

type CreateProjectRequest struct {
	Title string `json:"title" binding:"required,max=200"`
}

// RecordUploadRequest is sent by the client once a resumable upload to the
// media platform has finished.
type RecordUploadRequest struct {
	AssetID   string `json:"asset_id" binding:"required"`
	Filename  string `json:"filename" binding:"required"`
	MediaType string `json:"media_type"`
	FileSize  int64  `json:"file_size" binding:"gte=0"`
}

// IntakeFormRequest is the message posted by the embedded intake form.
type IntakeFormRequest struct {
	SubmissionID string                 `json:"submission_id" validate:"required"`
	Payload      map[string]interface{} `json:"payload" validate:"required"`
}

type RevisionInstructionsRequest struct {
	Instructions string `json:"instructions" binding:"required,max=10000"`
}

type SubscriptionCheckoutRequest struct {
	Tier string `json:"tier" binding:"required,oneof=basic standard premium"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
