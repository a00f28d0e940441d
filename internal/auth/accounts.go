package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Accounts implements signup and login on top of a UserStore.
type Accounts struct {
	users    UserStore
	sessions *SessionService
}

// NewAccounts creates an Accounts service.
func NewAccounts(users UserStore, sessions *SessionService) *Accounts {
	return &Accounts{users: users, sessions: sessions}
}

// Signup validates the fields, hashes the password and stores a new user.
//
// A registered email returns ErrEmailExists without touching the store.
// Two concurrent signups for the same email are resolved by the store's
// unique index, and the loser also sees ErrEmailExists.
func (a *Accounts) Signup(ctx context.Context, name, email, password string) (*User, error) {
	if err := ValidateSignup(name, email, password); err != nil {
		return nil, err
	}

	_, err := a.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, ErrEmailExists
	case !errors.Is(err, ErrUserNotFound):
		return nil, fmt.Errorf("checking existing user: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &User{Name: name, Email: email, PasswordHash: hash}
	if err := a.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks email and password and issues a session token.
//
// Missing fields and a wrong password return ErrInvalidCredentials. An
// unknown email returns ErrUserNotFound so the caller can answer with a
// distinct status.
func (a *Accounts) Login(ctx context.Context, email, password string) (*User, string, time.Time, error) {
	if email == "" || password == "" {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", time.Time{}, ErrUserNotFound
		}
		return nil, "", time.Time{}, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, "", time.Time{}, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	token, expiresAt, err := a.sessions.Issue(user.ID)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, expiresAt, nil
}
