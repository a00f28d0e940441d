package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteKeyStore implements KeyStore using SQLite.
//
// Each device row holds exactly one key hash, so swapping the hash in place
// is enough to guarantee one active key per device.
type SQLiteKeyStore struct {
	db *sql.DB
}

// NewSQLiteKeyStore creates a new SQLite-backed device key store.
func NewSQLiteKeyStore(db *sql.DB) *SQLiteKeyStore {
	return &SQLiteKeyStore{db: db}
}

// Create registers a device with its first key hash. The device ID is
// generated if empty.
func (s *SQLiteKeyStore) Create(ctx context.Context, key *DeviceKey) error {
	if key.DeviceID == "" {
		key.DeviceID = "dev-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	key.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_keys (device_id, name, key_hash, last_rotated, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key.DeviceID, key.Name, key.KeyHash, key.LastRotated.Format(DateLayout), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("creating device key: %w", err)
	}
	return nil
}

// FindActiveKey returns the device whose current key hashes to keyHash.
func (s *SQLiteKeyStore) FindActiveKey(ctx context.Context, keyHash string) (*DeviceKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT device_id, name, key_hash, last_rotated, created_at
		 FROM device_keys WHERE key_hash = ?`, keyHash)

	key, err := scanDeviceKey(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return key, nil
}

// ReplaceKey swaps oldHash for newHash in one conditional UPDATE. If oldHash
// is no longer active it returns ErrKeyNotFound and changes nothing.
func (s *SQLiteKeyStore) ReplaceKey(ctx context.Context, oldHash, newHash string, rotated time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE device_keys SET key_hash = ?, last_rotated = ? WHERE key_hash = ?`,
		newHash, rotated.Format(DateLayout), oldHash,
	)
	if err != nil {
		return fmt.Errorf("replacing device key: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("replacing device key: %w", err)
	}
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// List returns all registered devices ordered by name.
func (s *SQLiteKeyStore) List(ctx context.Context) ([]DeviceKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, name, key_hash, last_rotated, created_at
		 FROM device_keys ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing device keys: %w", err)
	}
	defer rows.Close()

	keys := []DeviceKey{}
	for rows.Next() {
		key, err := scanDeviceKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device keys: %w", err)
	}
	return keys, nil
}

func scanDeviceKey(s scanner) (*DeviceKey, error) {
	var k DeviceKey
	var lastRotated, createdAt string

	if err := s.Scan(&k.DeviceID, &k.Name, &k.KeyHash, &lastRotated, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning device key: %w", err)
	}

	var err error
	k.LastRotated, err = time.Parse(DateLayout, lastRotated)
	if err != nil {
		return nil, fmt.Errorf("parsing last_rotated %q: %w", lastRotated, err)
	}
	k.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &k, nil
}
