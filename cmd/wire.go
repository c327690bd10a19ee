package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/audiolibrelab/micmagic/internal/audio"
	"github.com/audiolibrelab/micmagic/internal/auth"
	"github.com/audiolibrelab/micmagic/internal/memo"
	"github.com/audiolibrelab/micmagic/internal/notify"
	"github.com/audiolibrelab/micmagic/internal/play"
	"github.com/audiolibrelab/micmagic/internal/service"
	"github.com/audiolibrelab/micmagic/internal/share"
	"github.com/audiolibrelab/micmagic/internal/storage"
)

const secretFileName = "jwt.key"

// app holds everything a command needs, built from cfg.
type app struct {
	store    storage.Store
	jwt      *auth.JWTService
	identity *auth.TokenIdentity
	accounts *auth.Service
	tokens   auth.TokenFile

	manager  *service.Manager
	notifier *notify.Redis

	publishers  conc.WaitGroup
	unsubscribe func()
}

// openAccounts opens the store and the auth services only.
func openAccounts(ctx context.Context) (*app, error) {
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	jwtService, err := newJWTService()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	tokens := auth.TokenFile{Path: cfg.Auth.TokenFile}
	return &app{
		store:    store,
		jwt:      jwtService,
		identity: auth.NewTokenIdentity(jwtService, tokens),
		accounts: auth.NewService(store, jwtService),
		tokens:   tokens,
	}, nil
}

// openApp builds the full recording session and loads the catalog of the
// signed-in user.
func openApp(ctx context.Context) (*app, error) {
	a, err := openAccounts(ctx)
	if err != nil {
		return nil, err
	}

	var logWriter io.Writer
	if verboseLevel >= 2 {
		logWriter = os.Stderr
	}
	session := audio.NewSession()

	opts := []service.Option{
		service.WithLogger(slog.Default()),
		service.WithStamp(memo.Stamp{DateLayout: cfg.Display.DateLayout, TimeLayout: cfg.Display.TimeLayout}),
	}
	if cfg.Share.Enabled {
		sharer, err := share.NewS3(ctx, cfg.Share, slog.Default())
		if err != nil {
			_ = a.store.Close()
			return nil, fmt.Errorf("failed to configure sharing: %w", err)
		}
		opts = append(opts, service.WithSharer(sharer))
	}

	a.manager = service.New(a.identity,
		audio.NewRecorder(cfg, session, logWriter),
		play.New(cfg, session),
		a.store,
		opts...)

	if cfg.Redis.Addr != "" {
		a.notifier, err = notify.NewRedis(ctx, cfg.Redis, slog.Default())
		if err != nil {
			slog.Warn("Redis notifications disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			a.unsubscribe = a.manager.Subscribe(a.forward)
		}
	}

	if err := a.manager.Load(ctx); err != nil {
		_ = a.Close(context.Background())
		if errors.Is(err, memo.ErrUnauthenticated) {
			return nil, fmt.Errorf("not signed in, run 'micmagic login' first: %w", err)
		}
		return nil, fmt.Errorf("failed to load recordings: %w", err)
	}
	return a, nil
}

// forward publishes a session event on the owner's Redis channel so other
// devices of the same user can follow along.
func (a *app) forward(ev service.Event) {
	a.publishers.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		owner, err := a.identity.CurrentOwnerID(ctx)
		if err != nil {
			return
		}
		if err := a.notifier.Publish(ctx, owner, string(ev.Type), ev); err != nil {
			slog.Debug("Failed to publish session event", "event", ev.Type, "error", err)
		}
	})
}

// Close releases the session, waits for pending notifications and closes
// the store.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.manager != nil {
		errs = append(errs, a.manager.Close(ctx))
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.publishers.Wait()
	if a.notifier != nil {
		errs = append(errs, a.notifier.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// newJWTService uses the configured secret, or a key generated once and kept
// next to the token file.
func newJWTService() (*auth.JWTService, error) {
	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		var err error
		secret, err = auth.LoadOrCreateSecret(filepath.Join(filepath.Dir(cfg.Auth.TokenFile), secretFileName))
		if err != nil {
			return nil, fmt.Errorf("failed to load signing key: %w", err)
		}
	}
	return auth.NewJWTService(secret, cfg.Auth.TokenTTL), nil
}
