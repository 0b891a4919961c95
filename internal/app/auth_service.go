package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"rolechat/internal/model"
	"rolechat/internal/repository"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrAuthFailure    = errors.New("invalid email or password")
)

const maxEmailLength = 100

type AuthService struct {
	userRepo   *repository.UserRepository
	bcryptCost int
}

func NewAuthService(userRepo *repository.UserRepository, bcryptCost int) *AuthService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		userRepo:   userRepo,
		bcryptCost: bcryptCost,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*model.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" || len(email) > maxEmailLength {
		return nil, ErrInvalidInput
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, ErrInvalidInput
	}
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return user, nil
}

// Verify returns ErrAuthFailure for both unknown emails and wrong passwords.
func (s *AuthService) Verify(ctx context.Context, email, password string) (*model.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrAuthFailure
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrAuthFailure
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrAuthFailure
	}
	return user, nil
}

func (s *AuthService) GetUser(ctx context.Context, id uint) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	return s.userRepo.GetByID(ctx, id)
}
