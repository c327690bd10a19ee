package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
)

// User is an account with its profile.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Username      string    `json:"username"`
	Notifications bool      `json:"notifications"`
	ImageURI      string    `json:"image_uri"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Profile holds the user-editable fields.
type Profile struct {
	Username      string `json:"username"`
	Notifications bool   `json:"notifications"`
	ImageURI      string `json:"image_uri"`
}

// Profile returns the editable part of u.
func (u User) Profile() Profile {
	return Profile{Username: u.Username, Notifications: u.Notifications, ImageURI: u.ImageURI}
}

// UserStore persists accounts.
type UserStore interface {
	// CreateUser stores u and returns it with its id and timestamps set.
	CreateUser(ctx context.Context, u User) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	UpdateProfile(ctx context.Context, id string, p Profile) (User, error)
}
