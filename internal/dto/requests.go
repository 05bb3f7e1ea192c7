// Package dto defines the request and response shapes of the HTTP API.
package dto

// SubmitCodeRequest is the out-of-band code submission payload.
type SubmitCodeRequest struct {
	RequestID string `json:"requestId" binding:"required"`
	UserID    string `json:"userId" binding:"required"`
	Code      string `json:"code" binding:"required,numeric,min=6,max=8"`
}

// RegisterUserRequest is the admin registration payload. The seed is
// encrypted before persistence and never returned afterward.
type RegisterUserRequest struct {
	UserID  string `json:"userId" binding:"required"`
	Seed    string `json:"seed" binding:"required"`
	TrapID  string `json:"trapId" binding:"required"`
	ChainID int64  `json:"chainId" binding:"required"`
}

// OKResponse is the minimal success envelope of the ingestion endpoints.
type OKResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse is the error envelope of the ingestion endpoints.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
