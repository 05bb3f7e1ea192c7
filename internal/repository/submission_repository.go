package repository

import (
	"context"
	"errors"

	"oracle-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubmissionRepository defines the interface for Submission data access.
// The submission API writes, the request processor reads and deletes.
type SubmissionRepository interface {
	// Put stores a submission; a resubmission for the same request id before
	// consumption overwrites the previous one.
	Put(ctx context.Context, submission *models.Submission) error
	// GetByRequestID returns (nil, nil) when no submission has arrived yet.
	GetByRequestID(ctx context.Context, requestID string) (*models.Submission, error)
	Delete(ctx context.Context, requestID string) error
	// ListPending returns outstanding submissions for operator reconciliation.
	ListPending(ctx context.Context, limit int) ([]*models.Submission, error)
}

// submissionRepository implements SubmissionRepository
type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository creates a new SubmissionRepository instance
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

// Put stores or overwrites a submission
func (r *submissionRepository) Put(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_id"}},
		UpdateAll: true,
	}).Create(submission).Error
}

// GetByRequestID retrieves a submission by request id
func (r *submissionRepository) GetByRequestID(ctx context.Context, requestID string) (*models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&submission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

// Delete removes a submission after consumption
func (r *submissionRepository) Delete(ctx context.Context, requestID string) error {
	return r.db.WithContext(ctx).Where("request_id = ?", requestID).Delete(&models.Submission{}).Error
}

// ListPending lists outstanding submissions, oldest first
func (r *submissionRepository) ListPending(ctx context.Context, limit int) ([]*models.Submission, error) {
	var submissions []*models.Submission
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Limit(limit).
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}
	return submissions, nil
}
