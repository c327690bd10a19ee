package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/audiolibrelab/micmagic/internal/auth"
	"github.com/audiolibrelab/micmagic/internal/memo"
)

// SQLite stores recordings and users in a local SQLite file.
type SQLite struct {
	db    *sql.DB
	sql   queries
	now   func() time.Time
	newID func() string
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies
// migrations. ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single writer; also keeps a :memory: database on one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(ctx, goose.DialectSQLite3, db, "sqlite"); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{
		db:    db,
		sql:   newQueries(squirrel.Question, unixNano),
		now:   time.Now,
		newID: uuid.NewString,
	}, nil
}

func unixNano(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UnixNano()
	}
	return v
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Recording operations

func (s *SQLite) Create(ctx context.Context, ownerID string, f memo.Fields) (string, error) {
	id := s.newID()
	query, args, err := s.sql.insertRecording(id, ownerID, f, s.now()).ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", mapError(err, "recording", id, memo.ErrNotFound)
	}
	return id, nil
}

func (s *SQLite) Update(ctx context.Context, id string, f memo.Fields) error {
	query, args, err := s.sql.updateRecording(id, f).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	return s.execOne(ctx, query, args, "recording", id, memo.ErrNotFound)
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	query, args, err := s.sql.deleteRecording(id).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	return s.execOne(ctx, query, args, "recording", id, memo.ErrNotFound)
}

func (s *SQLite) ListByOwner(ctx context.Context, ownerID string) ([]memo.Record, error) {
	query, args, err := s.sql.listRecordings(ownerID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var records []memo.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// User operations

func (s *SQLite) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	u.ID = s.newID()
	u.CreatedAt = s.now().UTC()
	u.UpdatedAt = u.CreatedAt
	query, args, err := s.sql.insertUser(u).ToSql()
	if err != nil {
		return auth.User{}, fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return auth.User{}, userError(mapError(err, "user", u.Email, auth.ErrUserNotFound))
	}
	return u, nil
}

func (s *SQLite) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.getUser(ctx, squirrel.Eq{"email": email}, email)
}

func (s *SQLite) UserByID(ctx context.Context, id string) (auth.User, error) {
	return s.getUser(ctx, squirrel.Eq{"id": id}, id)
}

func (s *SQLite) UpdateProfile(ctx context.Context, id string, p auth.Profile) (auth.User, error) {
	query, args, err := s.sql.updateProfile(id, p, s.now()).ToSql()
	if err != nil {
		return auth.User{}, fmt.Errorf("build update: %w", err)
	}
	if err := s.execOne(ctx, query, args, "user", id, auth.ErrUserNotFound); err != nil {
		return auth.User{}, err
	}
	return s.UserByID(ctx, id)
}

func (s *SQLite) getUser(ctx context.Context, where squirrel.Eq, key string) (auth.User, error) {
	query, args, err := s.sql.selectUser(where).ToSql()
	if err != nil {
		return auth.User{}, fmt.Errorf("build select: %w", err)
	}
	var (
		u                auth.User
		created, updated int64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Username, &u.Notifications, &u.ImageURI, &created, &updated,
	)
	if err != nil {
		return auth.User{}, mapError(err, "user", key, auth.ErrUserNotFound)
	}
	u.CreatedAt = time.Unix(0, created).UTC()
	u.UpdatedAt = time.Unix(0, updated).UTC()
	return u, nil
}

func (s *SQLite) execOne(ctx context.Context, query string, args []any, entity, id string, notFound error) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err, entity, id, notFound)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, notFound)
	}
	return nil
}
