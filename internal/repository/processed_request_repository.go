package repository

import (
	"context"
	"errors"

	"oracle-backend/internal/models"

	"gorm.io/gorm"
)

// ProcessedRequestRepository defines the interface for the processed-request
// ledger. The request processor is the sole writer; records are write-once
// per request id in steady state.
type ProcessedRequestRepository interface {
	Create(ctx context.Context, record *models.ProcessedRequest) error
	// GetByRequestID returns (nil, nil) when the request was never processed.
	GetByRequestID(ctx context.Context, requestID string) (*models.ProcessedRequest, error)
	List(ctx context.Context, page, pageSize int) ([]*models.ProcessedRequest, int64, error)
}

// processedRequestRepository implements ProcessedRequestRepository
type processedRequestRepository struct {
	db *gorm.DB
}

// NewProcessedRequestRepository creates a new ProcessedRequestRepository instance
func NewProcessedRequestRepository(db *gorm.DB) ProcessedRequestRepository {
	return &processedRequestRepository{db: db}
}

// Create writes a terminal outcome record
func (r *processedRequestRepository) Create(ctx context.Context, record *models.ProcessedRequest) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// GetByRequestID retrieves an outcome record by request id
func (r *processedRequestRepository) GetByRequestID(ctx context.Context, requestID string) (*models.ProcessedRequest, error) {
	var record models.ProcessedRequest
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns outcome records with pagination, newest first
func (r *processedRequestRepository) List(ctx context.Context, page, pageSize int) ([]*models.ProcessedRequest, int64, error) {
	var records []*models.ProcessedRequest
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.ProcessedRequest{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := r.db.WithContext(ctx).
		Order("fulfilled_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
