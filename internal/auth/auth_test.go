package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/audiolibrelab/micmagic/internal/memo"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]User
}

func newMemUsers() *memUsers { return &memUsers{users: map[string]User{}} }

func (m *memUsers) CreateUser(ctx context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return User{}, ErrEmailTaken
		}
	}
	u.ID = "user-" + strconv.Itoa(len(m.users)+1)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = u
	return u, nil
}

func (m *memUsers) UserByEmail(ctx context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *memUsers) UserByID(ctx context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) UpdateProfile(ctx context.Context, id string, p Profile) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	u.Username, u.Notifications, u.ImageURI = p.Username, p.Notifications, p.ImageURI
	m.users[id] = u
	return u, nil
}

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService([]byte("secret"), time.Hour)
	token, err := svc.Generate("owner-1", "a@example.com")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Expected valid token, got: %v", err)
	}
	if claims.OwnerID != "owner-1" || claims.Email != "a@example.com" {
		t.Errorf("Unexpected claims: %+v", claims)
	}

	other := NewJWTService([]byte("other"), time.Hour)
	if _, err := other.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for wrong secret, got: %v", err)
	}
}

func TestJWTExpired(t *testing.T) {
	svc := NewJWTService([]byte("secret"), time.Minute)
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }
	token, err := svc.Generate("owner-1", "a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	svc.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := svc.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected expired token to be rejected, got: %v", err)
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword("hunter22", hash) {
		t.Error("Expected password to match")
	}
	if CheckPassword("hunter23", hash) {
		t.Error("Expected wrong password to fail")
	}
}

func TestTokenFile(t *testing.T) {
	f := TokenFile{Path: filepath.Join(t.TempDir(), "nested", "token")}

	token, err := f.Load()
	if err != nil || token != "" {
		t.Fatalf("Expected empty token for missing file, got %q (%v)", token, err)
	}
	if err := f.Save("abc"); err != nil {
		t.Fatal(err)
	}
	if token, _ := f.Load(); token != "abc" {
		t.Errorf("Expected abc, got %q", token)
	}
	info, err := os.Stat(f.Path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}
	if err := f.Remove(); err != nil {
		t.Fatal(err)
	}
	if err := f.Remove(); err != nil {
		t.Errorf("Removing a missing token should succeed, got: %v", err)
	}
}

func TestLoadOrCreateSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	first, err := LoadOrCreateSecret(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(first))
	}
	second, err := LoadOrCreateSecret(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("Expected secret to be stable across loads")
	}
}

func TestTokenIdentity(t *testing.T) {
	jwt := NewJWTService([]byte("secret"), time.Hour)
	file := TokenFile{Path: filepath.Join(t.TempDir(), "token")}
	id := NewTokenIdentity(jwt, file)
	id.getenv = func(string) string { return "" }
	ctx := context.Background()

	if _, err := id.CurrentOwnerID(ctx); !errors.Is(err, memo.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated without token, got: %v", err)
	}

	if err := file.Save("garbage"); err != nil {
		t.Fatal(err)
	}
	if _, err := id.CurrentOwnerID(ctx); !errors.Is(err, memo.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated for invalid token, got: %v", err)
	}

	token, _ := jwt.Generate("owner-7", "x@example.com")
	if err := file.Save(token); err != nil {
		t.Fatal(err)
	}
	owner, err := id.CurrentOwnerID(ctx)
	if err != nil || owner != "owner-7" {
		t.Errorf("Expected owner-7, got %q (%v)", owner, err)
	}

	envToken, _ := jwt.Generate("owner-env", "y@example.com")
	id.getenv = func(key string) string {
		if key == TokenEnv {
			return envToken
		}
		return ""
	}
	if owner, _ := id.CurrentOwnerID(ctx); owner != "owner-env" {
		t.Errorf("Expected env token to win, got %q", owner)
	}
}

func TestStaticIdentity(t *testing.T) {
	if _, err := StaticIdentity("").CurrentOwnerID(context.Background()); !errors.Is(err, memo.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated, got: %v", err)
	}
	if owner, _ := StaticIdentity("u1").CurrentOwnerID(context.Background()); owner != "u1" {
		t.Errorf("Expected u1, got %q", owner)
	}
}

func TestServiceRegisterLogin(t *testing.T) {
	svc := NewService(newMemUsers(), NewJWTService([]byte("secret"), time.Hour))
	ctx := context.Background()

	resp, err := svc.Register(ctx, RegisterRequest{Email: " Ada@Example.com ", Password: "longenough"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resp.User.Email != "ada@example.com" {
		t.Errorf("Expected normalized email, got %s", resp.User.Email)
	}
	if resp.User.Username != "ada" {
		t.Errorf("Expected username derived from email, got %s", resp.User.Username)
	}
	if !resp.User.Notifications {
		t.Error("Expected notifications on by default")
	}
	claims, err := svc.ValidateToken(resp.Token)
	if err != nil || claims.OwnerID != resp.User.ID {
		t.Errorf("Expected token for %s, got %+v (%v)", resp.User.ID, claims, err)
	}

	if _, err := svc.Register(ctx, RegisterRequest{Email: "ada@example.com", Password: "longenough"}); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("Expected ErrEmailTaken, got: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{Email: "b@example.com", Password: "short"}); err == nil {
		t.Error("Expected error for short password")
	}
	if _, err := svc.Register(ctx, RegisterRequest{Email: "not-an-email", Password: "longenough"}); err == nil {
		t.Error("Expected error for invalid email")
	}

	if _, err := svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "longenough"}); err != nil {
		t.Errorf("Expected login to succeed, got: %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got: %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "x"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown user, got: %v", err)
	}
}

func TestServiceUpdateProfile(t *testing.T) {
	svc := NewService(newMemUsers(), NewJWTService([]byte("secret"), time.Hour))
	ctx := context.Background()
	resp, err := svc.Register(ctx, RegisterRequest{Email: "ada@example.com", Password: "longenough", Username: "ada"})
	if err != nil {
		t.Fatal(err)
	}

	u, err := svc.UpdateProfile(ctx, resp.User.ID, Profile{Username: "  Ada L ", ImageURI: "https://img/1"})
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "Ada L" || u.Notifications || u.ImageURI != "https://img/1" {
		t.Errorf("Unexpected profile: %+v", u.Profile())
	}
	if _, err := svc.UpdateProfile(ctx, resp.User.ID, Profile{Username: "  "}); err == nil || !strings.Contains(err.Error(), "username") {
		t.Errorf("Expected username error, got: %v", err)
	}
	if _, err := svc.Profile(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got: %v", err)
	}
}
