package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
)

const (
	settingJWTSecret  = "jwt_secret"
	settingPassphrase = "passphrase_hash"
)

// JWTSecret returns the signing secret, generating and storing one on first use.
// INSERT OR IGNORE followed by a read keeps concurrent first calls consistent.
func (s *Store) JWTSecret(ctx context.Context) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		settingJWTSecret, hex.EncodeToString(buf),
	)
	if err != nil {
		return "", fmt.Errorf("storing jwt secret: %w", err)
	}

	secret, err := s.setting(ctx, settingJWTSecret)
	if err != nil {
		return "", fmt.Errorf("querying jwt secret: %w", err)
	}
	return secret, nil
}

// PassphraseHash returns the stored bcrypt hash, or "" when the API is open.
func (s *Store) PassphraseHash(ctx context.Context) (string, error) {
	hash, err := s.setting(ctx, settingPassphrase)
	if err != nil {
		return "", fmt.Errorf("querying passphrase: %w", err)
	}
	return hash, nil
}

// SetPassphraseHash stores hash. An empty hash removes the passphrase.
func (s *Store) SetPassphraseHash(ctx context.Context, hash string) error {
	var err error
	if hash == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, settingPassphrase)
	} else {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			settingPassphrase, hash,
		)
	}
	if err != nil {
		return fmt.Errorf("storing passphrase: %w", err)
	}
	return nil
}

func (s *Store) setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}
