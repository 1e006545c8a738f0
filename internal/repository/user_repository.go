package repository

import (
	"github.com/yukikurage/chore-reward-api/internal/models"
	"gorm.io/gorm"
)

// GormUserRepository is a GORM implementation of UserRepository
type GormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{db: db}
}

// Create creates a new user
func (r *GormUserRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// FindByID finds a user by ID
func (r *GormUserRepository) FindByID(id uint64) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByLineUserID finds a user by the identity provider's user ID
func (r *GormUserRepository) FindByLineUserID(lineUserID string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("line_user_id = ?", lineUserID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile refreshes the display name
func (r *GormUserRepository) UpdateProfile(id uint64, displayName string) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("display_name", displayName).Error
}

// UpdateWallet sets the reward destination address
func (r *GormUserRepository) UpdateWallet(id uint64, address string) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("wallet_address", address).Error
}

// SetActive activates or deactivates a user
func (r *GormUserRepository) SetActive(id uint64, active bool) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("is_active", active).Error
}
