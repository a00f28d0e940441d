package auth

import (
	"errors"
	"fmt"
	"time"
)

// User represents a registered human account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	CreatedAt    time.Time `json:"created_at"`
}

// DeviceKey represents the active credential of a field device hub.
// The raw key value is never stored; only its SHA-256 hash is.
type DeviceKey struct {
	DeviceID    string    `json:"device_id"`
	Name        string    `json:"name"`
	KeyHash     string    `json:"-"` // never serialised
	LastRotated time.Time `json:"last_rotated"`
	CreatedAt   time.Time `json:"created_at"`
}

// DateLayout is the calendar-date format used for device-reported dates
// and the stored last-rotated date.
const DateLayout = "2006-01-02"

// ValidationError describes a signup field that failed validation.
// Reason is safe to show to the caller.
type ValidationError struct {
	Field  string
	Reason string
	err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap allows errors.Is against ErrInvalidName, ErrInvalidEmail and ErrInvalidPassword.
func (e *ValidationError) Unwrap() error {
	return e.err
}

// Sentinel errors for auth operations.
var (
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrTokenMissing       = errors.New("token is missing")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("forbidden")
	ErrKeyNotFound        = errors.New("device key not found")
	ErrDeviceExists       = errors.New("device already exists")
	ErrRotationConflict   = errors.New("device key already rotated")
	ErrInvalidReportDate  = errors.New("invalid report date")
)
