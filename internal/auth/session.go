package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTTL is the lifetime of every session token. It is not configurable
// per call.
const SessionTTL = 7 * 24 * time.Hour

// minSecretLength mirrors the config validation rule for the signing secret.
const minSecretLength = 32

// SessionConfig holds the process-wide signing material for session tokens.
type SessionConfig struct {
	Secret string
}

// SessionService issues and verifies HS256 session tokens. It is safe for
// concurrent use; the secret is copied at construction and never changes.
type SessionService struct {
	secret []byte
	now    func() time.Time
}

// SessionOption customises a SessionService.
type SessionOption func(*SessionService)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionService) {
		s.now = now
	}
}

// NewSessionService creates a session token service. The secret must be at
// least 32 bytes.
func NewSessionService(cfg SessionConfig, opts ...SessionOption) (*SessionService, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d characters", minSecretLength)
	}

	s := &SessionService{
		secret: []byte(cfg.Secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates a signed token for subjectID that expires exactly SessionTTL
// from now.
func (s *SessionService) Issue(subjectID string) (string, time.Time, error) {
	if subjectID == "" {
		return "", time.Time{}, errors.New("issuing session token: empty subject")
	}

	expiresAt := s.now().Add(SessionTTL).Truncate(time.Second)
	claims := jwt.RegisteredClaims{
		Subject:   subjectID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the token's algorithm, signature and expiry and returns the
// subject it asserts. Every failure wraps ErrTokenInvalid; the payload is
// never trusted before the signature has been verified.
func (s *SessionService) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrTokenMissing
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return "", ErrTokenInvalid
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return claims.Subject, nil
}
