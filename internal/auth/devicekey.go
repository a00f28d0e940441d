package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/logging"
)

// RotationInterval is the number of calendar days after which a device key
// is replaced on the next ingest.
const RotationInterval = 7

// deviceKeyBytes is the amount of entropy in a generated device key (256-bit).
const deviceKeyBytes = 32

// KeyStore persists device keys by hash.
//
// ReplaceKey must be a compare-and-swap: it activates newHash only if
// oldHash is still the active key, and it must return ErrKeyNotFound
// without changing anything otherwise.
type KeyStore interface {
	Create(ctx context.Context, key *DeviceKey) error
	FindActiveKey(ctx context.Context, keyHash string) (*DeviceKey, error)
	ReplaceKey(ctx context.Context, oldHash, newHash string, rotated time.Time) error
	List(ctx context.Context) ([]DeviceKey, error)
}

// RotationNotifier is told about successful key rotations. It never sees
// the key itself.
type RotationNotifier interface {
	KeyRotated(ctx context.Context, deviceID string, rotated time.Time)
}

// DeviceKeyAuthority validates device keys on ingest and rotates them when
// they are older than RotationInterval days.
type DeviceKeyAuthority struct {
	store    KeyStore
	notifier RotationNotifier
	logger   *logging.Logger
}

// NewDeviceKeyAuthority creates a DeviceKeyAuthority. notifier may be nil.
func NewDeviceKeyAuthority(store KeyStore, notifier RotationNotifier, logger *logging.Logger) *DeviceKeyAuthority {
	if logger == nil {
		logger = logging.Default()
	}
	return &DeviceKeyAuthority{store: store, notifier: notifier, logger: logger}
}

// GenerateDeviceKey returns a fresh 256-bit key, hex-encoded.
func GenerateDeviceKey() (string, error) {
	b := make([]byte, deviceKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating device key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashDeviceKey returns the SHA-256 hex digest under which a key is stored.
func HashDeviceKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// ParseReportDate parses a device-reported calendar date (YYYY-MM-DD).
func ParseReportDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidReportDate, s)
	}
	return d, nil
}

// Provision registers a new device and returns its first key. The raw key
// is returned once and cannot be recovered afterwards.
func (a *DeviceKeyAuthority) Provision(ctx context.Context, name string, issued time.Time) (*DeviceKey, string, error) {
	raw, err := GenerateDeviceKey()
	if err != nil {
		return nil, "", err
	}

	key := &DeviceKey{
		Name:        name,
		KeyHash:     HashDeviceKey(raw),
		LastRotated: calendarDate(issued),
	}
	if err := a.store.Create(ctx, key); err != nil {
		return nil, "", err
	}

	a.logger.Info("device key provisioned", "device_id", key.DeviceID, "name", name)
	return key, raw, nil
}

// Authorize looks up the presented key. It returns ErrForbidden when no
// active key matches. Store failures are returned as-is so callers can tell
// a rejected credential from an unavailable backend. Authorize never
// modifies the store.
func (a *DeviceKeyAuthority) Authorize(ctx context.Context, presentedKey string) (*DeviceKey, error) {
	if presentedKey == "" {
		return nil, ErrForbidden
	}

	key, err := a.store.FindActiveKey(ctx, HashDeviceKey(presentedKey))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("authorizing device key: %w", err)
	}
	return key, nil
}

// RotationDue reports whether reportDate is at least RotationInterval
// calendar days after lastRotated.
func RotationDue(reportDate, lastRotated time.Time) bool {
	due := calendarDate(lastRotated).AddDate(0, 0, RotationInterval)
	return !calendarDate(reportDate).Before(due)
}

// MaybeRotate replaces presentedKey with a freshly generated key when the
// device-reported date is at least RotationInterval days past
// device.LastRotated. It returns the new raw key, or "" when no rotation was
// due. device is the record returned by Authorize for presentedKey.
//
// The replacement is a single compare-and-swap on the store. If another
// request rotated the same key first, MaybeRotate returns ErrRotationConflict
// and the losing caller receives no key.
func (a *DeviceKeyAuthority) MaybeRotate(ctx context.Context, device *DeviceKey, presentedKey string, reportDate time.Time) (string, error) {
	if !RotationDue(reportDate, device.LastRotated) {
		return "", nil
	}

	newKey, err := GenerateDeviceKey()
	if err != nil {
		return "", err
	}

	rotated := calendarDate(reportDate)
	err = a.store.ReplaceKey(ctx, HashDeviceKey(presentedKey), HashDeviceKey(newKey), rotated)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			a.logger.Warn("device key rotation lost to concurrent request", "device_id", device.DeviceID)
			return "", ErrRotationConflict
		}
		return "", fmt.Errorf("rotating device key: %w", err)
	}

	a.logger.Info("device key rotated", "device_id", device.DeviceID, "last_rotated", rotated.Format(DateLayout))
	if a.notifier != nil {
		a.notifier.KeyRotated(ctx, device.DeviceID, rotated)
	}
	return newKey, nil
}

// calendarDate truncates t to midnight UTC of its calendar day.
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
