package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// SessionHeader carries the session token on protected requests.
const SessionHeader = "x-access-token"

// UserLookup resolves the subject of a verified token.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// Gateway authenticates requests that carry a session token.
type Gateway struct {
	sessions *SessionService
	users    UserLookup
}

// NewGateway creates a Gateway.
func NewGateway(sessions *SessionService, users UserLookup) *Gateway {
	return &Gateway{sessions: sessions, users: users}
}

// Authenticate returns the user a request's session token belongs to.
//
// It returns ErrTokenMissing when the header is absent and a bare
// ErrTokenInvalid for every verification failure, including a subject that
// no longer exists. Store failures are returned wrapped and unmasked.
func (g *Gateway) Authenticate(ctx context.Context, header http.Header) (*User, error) {
	token := header.Get(SessionHeader)
	if token == "" {
		return nil, ErrTokenMissing
	}

	subject, err := g.sessions.Verify(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	user, err := g.users.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("resolving session subject: %w", err)
	}
	return user, nil
}
