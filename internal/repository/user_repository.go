package repository

import (
	"context"
	"errors"

	"oracle-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines the interface for User data access. The admin
// registration API is the sole writer; the request processor only reads.
type UserRepository interface {
	// Upsert creates the user or overwrites an existing registration.
	Upsert(ctx context.Context, user *models.User) error
	// GetByUserID returns (nil, nil) when the user is not registered.
	GetByUserID(ctx context.Context, userID string) (*models.User, error)
}

// userRepository implements UserRepository
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Upsert creates or overwrites a user registration
func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(user).Error
}

// GetByUserID retrieves a user by id
func (r *userRepository) GetByUserID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
