package model

import "time"

// FinalizeRequest is the body of POST /finalize: the drafted system itself.
type FinalizeRequest struct {
	DraftSystem
}

// ClaimRequest is the body of POST /claim. DraftID identifies the pre-auth
// draft being claimed and is required.
type ClaimRequest struct {
	DraftID string `json:"draftId"`
	DraftSystem
}

// SetupResponse is the flat success body both setup endpoints return.
// The client-side optimistic cache keys on this exact shape.
type SetupResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the flat error body for 4xx/5xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AuthTokenRequest is the body of POST /auth/token.
type AuthTokenRequest struct {
	Email  string `json:"email"`
	APIKey string `json:"apiKey"`
}

// AuthTokenResponse carries an issued JWT.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Uptime   int64  `json:"uptime_seconds"`
}
