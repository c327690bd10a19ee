package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
)

// RegisterRequest is the input for creating an account.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Username string `json:"username" binding:"max=64"`
}

// LoginRequest is the input for signing in.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is returned after a successful register or login.
type TokenResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

const minPasswordLength = 8

// Service handles account operations.
type Service struct {
	users UserStore
	jwt   *JWTService
}

// NewService creates an account service.
func NewService(users UserStore, jwt *JWTService) *Service {
	return &Service{users: users, jwt: jwt}
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	email := normalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, fmt.Errorf("invalid email: %q", req.Email)
	}
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}
	user, err := s.users.CreateUser(ctx, User{
		Email:         email,
		PasswordHash:  hash,
		Username:      username,
		Notifications: true,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Registered user", "owner_id", user.ID)
	return s.issue(user)
}

// Login verifies credentials and issues a token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	user, err := s.users.UserByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

// Profile returns the account for ownerID.
func (s *Service) Profile(ctx context.Context, ownerID string) (User, error) {
	return s.users.UserByID(ctx, ownerID)
}

// UpdateProfile replaces the editable profile fields.
func (s *Service) UpdateProfile(ctx context.Context, ownerID string, p Profile) (User, error) {
	p.Username = strings.TrimSpace(p.Username)
	if p.Username == "" {
		return User{}, errors.New("username must not be empty")
	}
	return s.users.UpdateProfile(ctx, ownerID, p)
}

// ValidateToken returns the claims of a session token.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	return s.jwt.Validate(token)
}

func (s *Service) issue(user User) (*TokenResponse, error) {
	token, err := s.jwt.Generate(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &TokenResponse{Token: token, User: user}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
