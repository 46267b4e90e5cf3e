// Package apikey manages the platform's API keys. Raw keys are generated
// from crypto/rand and only their SHA-256 digest is stored, so a leaked
// database dump exposes no usable credentials. Lookups compare digests.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smartgrocer/basket-analytics-platform/pkg/postgres"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
	ErrKeyExists  = errors.New("api key name already in use")
)

// KeyInfo is the stored metadata for one key. The raw key itself is never
// persisted and cannot be recovered after creation.
type KeyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	RateLimit int        `json:"rate_limit"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Validator validates and manages API keys against the api_keys table.
type Validator struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewValidator(db *postgres.Client) *Validator {
	return &Validator{
		db:     db,
		logger: slog.Default().With("component", "apikey-validator"),
	}
}

// Validate resolves a presented raw key to its stored metadata. It returns
// ErrInvalidKey for unknown or revoked keys and ErrExpiredKey for keys past
// their expiry.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	var (
		info      KeyInfo
		expiresAt sql.NullTime
	)
	err := v.db.DB.QueryRowContext(ctx,
		`SELECT id, name, rate_limit, is_active, created_at, expires_at
		 FROM api_keys
		 WHERE key_hash = $1 AND is_active = true`,
		HashKey(rawKey),
	).Scan(&info.ID, &info.Name, &info.RateLimit, &info.IsActive, &info.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}

	if expiresAt.Valid {
		if expiresAt.Time.Before(time.Now()) {
			return nil, ErrExpiredKey
		}
		info.ExpiresAt = &expiresAt.Time
	}
	return &info, nil
}

// CreateKey mints a new key under the given name and returns the raw key.
// This is the only time the raw key is available; callers must hand it to
// the user immediately.
func (v *Validator) CreateKey(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, error) {
	rawKey := generateRawKey()

	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}

	var id string
	err := v.db.DB.QueryRowContext(ctx,
		`INSERT INTO api_keys (key_hash, name, rate_limit, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING id`,
		HashKey(rawKey), name, rateLimit, expiry,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKeyExists
	}
	if err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}

	v.logger.Info("api key created", "id", id, "name", name, "rate_limit", rateLimit)
	return rawKey, nil
}

// RevokeKey deactivates the key with the given name. Raw keys are not
// retained by operators, so revocation goes by name rather than by key.
func (v *Validator) RevokeKey(ctx context.Context, name string) error {
	result, err := v.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE name = $1 AND is_active = true`,
		name,
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInvalidKey
	}

	v.logger.Info("api key revoked", "name", name)
	return nil
}

// ListKeys returns metadata for every active key, newest first.
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := v.db.DB.QueryContext(ctx,
		`SELECT id, name, rate_limit, is_active, created_at, expires_at
		 FROM api_keys
		 WHERE is_active = true
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		var (
			k         KeyInfo
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&k.ID, &k.Name, &k.RateLimit, &k.IsActive, &k.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// HashKey returns the hex SHA-256 digest of a raw key, the form keys are
// stored in.
func HashKey(raw string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(raw)))
}

func generateRawKey() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
