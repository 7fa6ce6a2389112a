package service

import (
	"context"
	"errors"

	"CloudKeep/internal/dto"
	"CloudKeep/model"
	"CloudKeep/utils"
)

// UserService handles registration and login for the thin HTTP layer. New
// users get the configured quota limit.
type UserService struct {
	store      RecordStore
	quotaLimit int64
}

// NewUserService wires the user service.
func NewUserService(store RecordStore, quotaLimit int64) *UserService {
	return &UserService{store: store, quotaLimit: quotaLimit}
}

// Register hashes the password and creates a user with the default quota.
func (s *UserService) Register(ctx context.Context, req dto.RegisterRequest) (*model.User, error) {
	user := &model.User{
		UserName:   req.UserName,
		Password:   utils.GetPwd(req.Password),
		Email:      req.Email,
		QuotaLimit: s.quotaLimit,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks credentials and returns the user.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.store.FindUserByName(ctx, username)
	if err != nil {
		return nil, errors.New("invalid username or password")
	}
	if !utils.CheckPwd(password, user.Password) {
		return nil, errors.New("invalid username or password")
	}
	return user, nil
}
