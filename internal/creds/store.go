package creds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Maximum field lengths declared by the credential schema. ValidateStoreData
// in the SureDone client enforces the same limits before a record is saved.
const (
	MaxUsernameLen = 255
	MaxTokenLen    = 512
)

// ErrNotFound is returned when no credential exists for a username.
var ErrNotFound = errors.New("credential not found")

// Credential is one tenant's SureDone account credentials. Token is the
// short-lived bearer credential and is replaced in place on refresh; Password
// is the long-lived secret used only to obtain a new token.
type Credential struct {
	Username  string
	Token     string
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists per-tenant SureDone credentials. After a token refresh the
// stored record is the single source of truth; Save must complete before any
// retry uses the new token. Writes are last-writer-wins: concurrent refreshes
// each obtain an independently valid token, so the race is self-correcting.
type Store interface {
	FindByUsername(ctx context.Context, username string) (*Credential, error)
	Save(ctx context.Context, cred *Credential) error
	Delete(ctx context.Context, username string) error
	List(ctx context.Context) ([]Credential, error)
}

// PGStore is the Postgres-backed credential store.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPGStore creates a credential store over an existing pgx pool.
func NewPGStore(pool *pgxpool.Pool, logger *zap.Logger) *PGStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGStore{pool: pool, logger: logger}
}

func (s *PGStore) FindByUsername(ctx context.Context, username string) (*Credential, error) {
	var c Credential
	err := s.pool.QueryRow(ctx, `
		SELECT api_username, api_token, password, created_at, updated_at
		FROM suredone.credentials
		WHERE api_username = $1
	`, username).Scan(&c.Username, &c.Token, &c.Password, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find credential %q: %w", username, err)
	}
	return &c, nil
}

func (s *PGStore) Save(ctx context.Context, cred *Credential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO suredone.credentials (api_username, api_token, password, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (api_username)
		DO UPDATE SET api_token = EXCLUDED.api_token,
		              password  = EXCLUDED.password,
		              updated_at = NOW()
	`, cred.Username, cred.Token, cred.Password)
	if err != nil {
		s.logger.Error("creds.save_failed",
			zap.String("username", cred.Username),
			zap.Error(err))
		return fmt.Errorf("save credential %q: %w", cred.Username, err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, username string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM suredone.credentials WHERE api_username = $1
	`, username)
	if err != nil {
		return fmt.Errorf("delete credential %q: %w", username, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) List(ctx context.Context) ([]Credential, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT api_username, api_token, password, created_at, updated_at
		FROM suredone.credentials
		ORDER BY api_username
	`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.Username, &c.Token, &c.Password, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}
