package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/audiolibrelab/micmagic/internal/auth"
	"github.com/audiolibrelab/micmagic/internal/memo"
)

// Querier is the common interface implemented by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores recordings and users in PostgreSQL.
type Postgres struct {
	q     Querier
	pool  *pgxpool.Pool
	sql   queries
	now   func() time.Time
	newID func() string
}

var _ Store = (*Postgres)(nil)

// NewPostgres creates a store over q. Migrations are not applied.
func NewPostgres(q Querier) *Postgres {
	return &Postgres{
		q:     q,
		sql:   newQueries(squirrel.Dollar, nil),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// OpenPostgres connects to dsn, pings it and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := migrate(ctx, goose.DialectPostgres, db, "postgres"); err != nil {
		pool.Close()
		return nil, err
	}

	p := NewPostgres(pool)
	p.pool = pool
	return p, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// Recording operations

func (p *Postgres) Create(ctx context.Context, ownerID string, f memo.Fields) (string, error) {
	id := p.newID()
	query, args, err := p.sql.insertRecording(id, ownerID, f, p.now().UTC()).ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert: %w", err)
	}
	if _, err := p.q.Exec(ctx, query, args...); err != nil {
		return "", mapError(err, "recording", id, memo.ErrNotFound)
	}
	return id, nil
}

func (p *Postgres) Update(ctx context.Context, id string, f memo.Fields) error {
	query, args, err := p.sql.updateRecording(id, f).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	return p.execOne(ctx, query, args, "recording", id, memo.ErrNotFound)
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	query, args, err := p.sql.deleteRecording(id).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	return p.execOne(ctx, query, args, "recording", id, memo.ErrNotFound)
}

func (p *Postgres) ListByOwner(ctx context.Context, ownerID string) ([]memo.Record, error) {
	query, args, err := p.sql.listRecordings(ownerID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "owner", ownerID, memo.ErrNotFound)
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
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "owner", ownerID, memo.ErrNotFound)
	}
	return records, nil
}

// User operations

func (p *Postgres) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	u.ID = p.newID()
	u.CreatedAt = p.now().UTC()
	u.UpdatedAt = u.CreatedAt
	query, args, err := p.sql.insertUser(u).ToSql()
	if err != nil {
		return auth.User{}, fmt.Errorf("build insert: %w", err)
	}
	if _, err := p.q.Exec(ctx, query, args...); err != nil {
		return auth.User{}, userError(mapError(err, "user", u.Email, auth.ErrUserNotFound))
	}
	return u, nil
}

func (p *Postgres) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	return p.getUser(ctx, squirrel.Eq{"email": email}, email)
}

func (p *Postgres) UserByID(ctx context.Context, id string) (auth.User, error) {
	return p.getUser(ctx, squirrel.Eq{"id": id}, id)
}

func (p *Postgres) UpdateProfile(ctx context.Context, id string, prof auth.Profile) (auth.User, error) {
	query, args, err := p.sql.updateProfile(id, prof, p.now().UTC()).ToSql()
	if err != nil {
		return auth.User{}, fmt.Errorf("build update: %w", err)
	}
	if err := p.execOne(ctx, query, args, "user", id, auth.ErrUserNotFound); err != nil {
		return auth.User{}, err
	}
	return p.UserByID(ctx, id)
}

func (p *Postgres) getUser(ctx context.Context, where squirrel.Eq, key string) (auth.User, error) {
	query, args, err := p.sql.selectUser(where).ToSql()
	if err != nil {
		return auth.User{}, fmt.Errorf("build select: %w", err)
	}
	var u auth.User
	err = p.q.QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Username, &u.Notifications, &u.ImageURI, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return auth.User{}, mapError(err, "user", key, auth.ErrUserNotFound)
	}
	return u, nil
}

func (p *Postgres) execOne(ctx context.Context, query string, args []any, entity, id string, notFound error) error {
	tag, err := p.q.Exec(ctx, query, args...)
	if err != nil {
		return mapError(err, entity, id, notFound)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, notFound)
	}
	return nil
}

func userError(err error) error {
	if errors.Is(err, errUniqueViolation) {
		return auth.ErrEmailTaken
	}
	return err
}
