package services

import (
	"context"
	"fmt"
	"time"

	"github.com/linked-app/linked/backend/internal/apperr"
	"github.com/linked-app/linked/backend/internal/conversation"
	"github.com/linked-app/linked/backend/internal/models"
	"go.uber.org/zap"
)

// UserStore is the slice of the Supabase client the user registry needs.
type UserStore interface {
	GetUser(ctx context.Context, wallet string) (*models.User, error)
	CreateUser(ctx context.Context, user models.User) (*models.User, error)
	UpdateUser(ctx context.Context, wallet string, updates map[string]interface{}) (*models.User, error)
}

// UserService handles the off-chain profile records keyed by wallet address.
type UserService struct {
	db      UserStore
	timeout time.Duration
	log     *zap.Logger
}

// NewUserService creates a new UserService instance.
func NewUserService(db UserStore, timeout time.Duration, log *zap.Logger) *UserService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &UserService{db: db, timeout: timeout, log: log}
}

// CheckUserExists returns the record of wallet, or nil when it has none.
func (s *UserService) CheckUserExists(ctx context.Context, wallet string) (*models.User, error) {
	wallet, err := conversation.Normalize(wallet)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.db.GetUser(ctx, wallet)
	if err != nil {
		return nil, apperr.Persistence("check user", err)
	}
	return user, nil
}

// CreateUser registers the profile record of a freshly minted profile.
func (s *UserService) CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	wallet, err := conversation.Normalize(req.WalletAddress)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.db.CreateUser(ctx, models.User{
		WalletAddress: wallet,
		ProfileName:   req.ProfileName,
		ProfileID:     req.ProfileID,
	})
	if err != nil {
		return nil, apperr.Persistence("create user", err)
	}

	s.log.Info("[User] Created user", zap.String("wallet", wallet), zap.String("profile_id", req.ProfileID))
	return user, nil
}

// UpdateUserProfile changes the given fields of wallet's record.
// It fails with ErrNotFound when the wallet has no record.
func (s *UserService) UpdateUserProfile(ctx context.Context, wallet string, req models.UpdateUserRequest) (*models.User, error) {
	wallet, err := conversation.Normalize(wallet)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.ProfileName != nil {
		updates["profile_name"] = *req.ProfileName
	}
	if req.ProfileID != nil {
		updates["profile_id"] = *req.ProfileID
	}
	if len(updates) == 0 {
		return nil, apperr.Validation("update user", fmt.Errorf("no fields to update"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.db.UpdateUser(ctx, wallet, updates)
	if err != nil {
		return nil, apperr.Persistence("update user", err)
	}
	if user == nil {
		return nil, apperr.ErrNotFound
	}
	return user, nil
}
