package provider

import "time"

// Overall session statuses reported by the provider.
const (
	StatusNotStarted = "Not Started"
	StatusInProgress = "In Progress"
	StatusInReview   = "In Review"
	StatusApproved   = "Approved"
	StatusDeclined   = "Declined"
	StatusAbandoned  = "Abandoned"
	StatusExpired    = "Expired"
)

// ExpectedDetails are cross-checked by the provider against the scanned document.
type ExpectedDetails struct {
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
	DocumentNumber string `json:"document_number,omitempty"`
}

// CreateSessionRequest is the body of POST /session/.
type CreateSessionRequest struct {
	WorkflowID      string           `json:"workflow_id"`
	VendorData      string           `json:"vendor_data,omitempty"`
	CallbackURL     string           `json:"callback_url,omitempty"`
	ExpectedDetails *ExpectedDetails `json:"expected_details,omitempty"`
}

// SessionCreated is the provider's answer to POST /session/.
type SessionCreated struct {
	SessionID    string   `json:"session_id"`
	SessionURL   string   `json:"session_url"`
	SessionToken string   `json:"session_token"`
	Status       string   `json:"status"`
	Features     []string `json:"features"`
	VendorData   string   `json:"vendor_data"`
}

// Check is one sub-verification. Fields beyond Status vary by feature.
type Check struct {
	Status string   `json:"status"`
	Score  *float64 `json:"score,omitempty"`
}

// AMLCheck is the watchlist screening result.
type AMLCheck struct {
	Status    string   `json:"status"`
	TotalHits int      `json:"total_hits"`
	Score     *float64 `json:"score,omitempty"`
}

// Review is a manual review note attached by the provider's staff.
type Review struct {
	User      string    `json:"user"`
	NewStatus string    `json:"new_status"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Decision is returned by GET /session/{id}/decision/ and pushed by webhooks.
type Decision struct {
	SessionID      string    `json:"session_id"`
	Status         string    `json:"status"`
	Features       []string  `json:"features"`
	VendorData     string    `json:"vendor_data"`
	IDVerification *Check    `json:"id_verification"`
	FaceMatch      *Check    `json:"face_match"`
	Liveness       *Check    `json:"liveness"`
	AML            *AMLCheck `json:"aml"`
	Reviews        []Review  `json:"reviews"`
}
