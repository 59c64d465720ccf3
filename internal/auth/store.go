package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const secretPrefix = "cdx_"

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
	ErrInvalidToken  = errors.New("invalid token format")
	ErrInvalidScope  = errors.New("invalid token scope")
)

// Store handles token persistence. Only a SHA-256 digest of each secret is
// kept; the secret is returned once, at creation.
type Store struct {
	db *sql.DB
}

// NewStore creates the token store in dataDir/auth.db
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "auth.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tokens (
		id TEXT PRIMARY KEY,
		secret_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		scope TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_used_at INTEGER,
		expires_at INTEGER
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// CreateToken creates a token and returns it with its secret
func (s *Store) CreateToken(ctx context.Context, name, scope string, expiresAt *time.Time) (*Token, string, error) {
	if !ValidScope(scope) {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}
	secret := secretPrefix + hex.EncodeToString(raw)

	token := &Token{
		ID:        "tok_" + uuid.New().String()[:8],
		Name:      name,
		Scope:     scope,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}

	var expires sql.NullInt64
	if expiresAt != nil {
		expires = sql.NullInt64{Int64: expiresAt.UnixMilli(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (id, secret_hash, name, scope, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		token.ID, hashSecret(secret), token.Name, token.Scope, token.CreatedAt.UnixMilli(), expires,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to insert token: %w", err)
	}
	return token, secret, nil
}

// Validate resolves a bearer secret to its token and records the use
func (s *Store) Validate(ctx context.Context, secret string) (*Token, error) {
	if !strings.HasPrefix(secret, secretPrefix) || len(secret) == len(secretPrefix) {
		return nil, ErrInvalidToken
	}

	token, err := s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT id, name, scope, created_at, last_used_at, expires_at FROM tokens WHERE secret_hash = ?`,
		hashSecret(secret),
	))
	if err != nil {
		return nil, err
	}
	if token.ExpiresAt != nil && time.Now().After(*token.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	_, _ = s.db.ExecContext(ctx, `UPDATE tokens SET last_used_at = ? WHERE id = ?`, time.Now().UnixMilli(), token.ID)
	return token, nil
}

// Get returns a token by its public id
func (s *Store) Get(ctx context.Context, id string) (*Token, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT id, name, scope, created_at, last_used_at, expires_at FROM tokens WHERE id = ?`, id,
	))
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanOne(row scanner) (*Token, error) {
	token, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query token: %w", err)
	}
	return token, nil
}

func scanToken(row scanner) (*Token, error) {
	var token Token
	var created int64
	var lastUsed, expires sql.NullInt64
	if err := row.Scan(&token.ID, &token.Name, &token.Scope, &created, &lastUsed, &expires); err != nil {
		return nil, err
	}
	token.CreatedAt = time.UnixMilli(created)
	if lastUsed.Valid {
		t := time.UnixMilli(lastUsed.Int64)
		token.LastUsedAt = &t
	}
	if expires.Valid {
		t := time.UnixMilli(expires.Int64)
		token.ExpiresAt = &t
	}
	return &token, nil
}

// List returns every token, newest first
func (s *Store) List(ctx context.Context) ([]*Token, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, scope, created_at, last_used_at, expires_at FROM tokens ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []*Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// Revoke deletes a token by its public id
func (s *Store) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTokenNotFound
	}
	return nil
}
