package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/micmagic/internal/memo"
)

// TokenEnv overrides the stored session token.
const TokenEnv = "MICMAGIC_TOKEN"

// TokenFile stores the signed-in session token on disk.
type TokenFile struct {
	Path string
}

// Load returns the stored token, or "" when nobody is signed in.
func (f TokenFile) Load() (string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes the token readable only by the current user.
func (f TokenFile) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(f.Path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// Remove deletes the stored token. Removing a missing token is not an error.
func (f TokenFile) Remove() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// LoadOrCreateSecret returns the signing key stored at path, generating one
// on first use.
func LoadOrCreateSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return nil, fmt.Errorf("secret file is empty: %s", path)
		}
		return []byte(secret), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read secret file: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create secret directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("failed to write secret file: %w", err)
	}
	return []byte(secret), nil
}

// TokenIdentity resolves the signed-in owner from the session token.
type TokenIdentity struct {
	jwt    *JWTService
	file   TokenFile
	getenv func(string) string
}

var _ memo.Identity = (*TokenIdentity)(nil)

// NewTokenIdentity creates an identity backed by file. The MICMAGIC_TOKEN
// environment variable takes precedence over the file.
func NewTokenIdentity(jwt *JWTService, file TokenFile) *TokenIdentity {
	return &TokenIdentity{jwt: jwt, file: file, getenv: os.Getenv}
}

// Token returns the raw session token, or "" when nobody is signed in.
func (i *TokenIdentity) Token() (string, error) {
	if token := strings.TrimSpace(i.getenv(TokenEnv)); token != "" {
		return token, nil
	}
	return i.file.Load()
}

// Claims validates the session token.
func (i *TokenIdentity) Claims() (*Claims, error) {
	token, err := i.Token()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, memo.ErrUnauthenticated
	}
	claims, err := i.jwt.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memo.ErrUnauthenticated, err)
	}
	return claims, nil
}

// CurrentOwnerID implements memo.Identity.
func (i *TokenIdentity) CurrentOwnerID(ctx context.Context) (string, error) {
	claims, err := i.Claims()
	if err != nil {
		return "", err
	}
	return claims.OwnerID, nil
}

// StaticIdentity is a fixed owner, used for requests authenticated upstream.
type StaticIdentity string

// CurrentOwnerID implements memo.Identity.
func (s StaticIdentity) CurrentOwnerID(ctx context.Context) (string, error) {
	if s == "" {
		return "", memo.ErrUnauthenticated
	}
	return string(s), nil
}
