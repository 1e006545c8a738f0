package services

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/yukikurage/chore-reward-api/internal/constants"
	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/repository"
	"gorm.io/gorm"
)

// UserService handles user profile logic.
type UserService struct {
	userRepo   repository.UserRepository
	familyRepo repository.FamilyRepository
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repository.UserRepository, familyRepo repository.FamilyRepository) *UserService {
	return &UserService{
		userRepo:   userRepo,
		familyRepo: familyRepo,
	}
}

// Profile is a user with their live membership, if any.
type Profile struct {
	User       *models.User
	Membership *models.FamilyMembership
}

// GetUser retrieves a user by ID.
func (s *UserService) GetUser(id uint64) (*models.User, error) {
	user, err := s.userRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

// GetProfile returns the user and their PENDING or ACTIVE membership.
func (s *UserService) GetProfile(id uint64) (*Profile, error) {
	user, err := s.GetUser(id)
	if err != nil {
		return nil, err
	}

	member, err := s.familyRepo.FindLiveMembership(id)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}

	return &Profile{User: user, Membership: member}, nil
}

// SetWallet sets the address rewards are paid to. FAILED settlements pick
// up the new address when retried.
func (s *UserService) SetWallet(id uint64, address string) (*models.User, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, invalidInput("wallet address is required")
	}
	if len(address) > constants.MaxWalletAddressLength {
		return nil, invalidInput("wallet address is too long")
	}
	if strings.IndexFunc(address, unicode.IsSpace) >= 0 {
		return nil, invalidInput("wallet address cannot contain spaces")
	}

	user, err := s.GetUser(id)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.UpdateWallet(id, address); err != nil {
		return nil, fmt.Errorf("failed to update wallet: %w", err)
	}

	user.WalletAddress = address
	return user, nil
}
