package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// TokenStore defines the interface for bearer token persistence.
// Token returns an empty string and a nil error when no session is stored.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// MemoryTokenStore keeps the token for the lifetime of the process
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryTokenStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// PostgresTokenStore implements TokenStore for PostgreSQL
type PostgresTokenStore struct {
	db      *sqlx.DB
	session string
}

// NewPostgresTokenStore creates a token store for the named session
func NewPostgresTokenStore(db *sqlx.DB, session string) *PostgresTokenStore {
	if session == "" {
		session = "default"
	}
	return &PostgresTokenStore{db: db, session: session}
}

// EnsureSchema creates the session table if it does not exist
func (r *PostgresTokenStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS session_tokens (
			name         TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL
		)
	`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create session_tokens: %w", err)
	}
	return nil
}

// Token retrieves the stored bearer token
func (r *PostgresTokenStore) Token(ctx context.Context) (string, error) {
	query := `
		SELECT access_token
		FROM session_tokens
		WHERE name = $1
	`

	var token string
	err := r.db.GetContext(ctx, &token, query, r.session)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return token, nil
}

// Save stores the bearer token, replacing any previous one
func (r *PostgresTokenStore) Save(ctx context.Context, token string) error {
	query := `
		INSERT INTO session_tokens (name, access_token, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET access_token = EXCLUDED.access_token, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, r.session, token, time.Now())
	return err
}

// Clear removes the stored bearer token
func (r *PostgresTokenStore) Clear(ctx context.Context) error {
	query := `
		DELETE FROM session_tokens
		WHERE name = $1
	`

	_, err := r.db.ExecContext(ctx, query, r.session)
	return err
}
