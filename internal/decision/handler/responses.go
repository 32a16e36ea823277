package handler

import (
	"time"

	credhandler "medcred/internal/credential/handler"
	"medcred/internal/decision"
	verifhandler "medcred/internal/verification/handler"
)

// EvaluateResponse is the HTTP response for POST /decision/evaluate.
type EvaluateResponse struct {
	Status      string                        `json:"status"`
	Reason      string                        `json:"reason"`
	Conditions  []string                      `json:"conditions"`
	Credential  *credhandler.VerifyResponse   `json:"credential"`
	Session     *verifhandler.SessionResponse `json:"session,omitempty"`
	EvaluatedAt time.Time                     `json:"evaluated_at"`
}

// FromResult converts a domain EvaluateResult to an HTTP response.
func FromResult(result *decision.EvaluateResult) *EvaluateResponse {
	resp := &EvaluateResponse{
		Status:      string(result.Status),
		Reason:      string(result.Reason),
		Conditions:  result.Conditions,
		Credential:  credhandler.FromResult(result.Credential),
		EvaluatedAt: result.EvaluatedAt,
	}
	if result.Session != nil {
		s := verifhandler.FromSession(*result.Session)
		resp.Session = &s
	}
	return resp
}
