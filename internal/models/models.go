package models

// Processed request status values recorded in the processed_requests ledger.
const (
	ProcessedStatusSuccess = "success"
	ProcessedStatusFailed  = "failed"
)

// User holds a registered user's encrypted OTP seed and trap binding.
// Written only by the admin registration API; the processor only reads it.
type User struct {
	UserID    string `gorm:"primaryKey;column:user_id;size:128" json:"userId"`
	SecretEnc string `gorm:"column:secret_enc;type:text;not null" json:"-"`
	TrapID    string `gorm:"column:trap_id;size:66;not null" json:"trapId"`
	ChainID   int64  `gorm:"column:chain_id;not null" json:"chainId"`
	CreatedAt int64  `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// Submission is a code submitted out-of-band for a pending verification
// request. At most one live submission per request id; resubmission before
// consumption overwrites. The processor deletes it once the request reaches
// a terminal outcome.
type Submission struct {
	RequestID string `gorm:"primaryKey;column:request_id;size:66" json:"requestId"`
	UserID    string `gorm:"column:user_id;size:128;not null" json:"userId"`
	Code      string `gorm:"column:code;size:16;not null" json:"code"`
	CreatedAt int64  `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName specifies the table name for Submission
func (Submission) TableName() string {
	return "submissions"
}

// ProcessedRequest is the terminal outcome of a verification request. Its
// existence is the idempotency guard: the processor checks it before any side
// effect and writes it at most once per request id.
type ProcessedRequest struct {
	RequestID string `gorm:"primaryKey;column:request_id;size:66" json:"requestId"`
	Status    string `gorm:"column:status;size:16;not null" json:"status"`
	// OracleTxHash stays NULL when the request failed before any chain write
	// (expiry, unknown user, decrypt failure, requeue budget exhausted).
	OracleTxHash *string `gorm:"column:oracle_tx_hash;size:66" json:"oracleTxHash"`
	FulfilledAt  int64   `gorm:"column:fulfilled_at;not null" json:"fulfilledAt"`
}

// TableName specifies the table name for ProcessedRequest
func (ProcessedRequest) TableName() string {
	return "processed_requests"
}
