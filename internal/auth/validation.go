package auth

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// emailPattern must match the whole address, not a substring of it.
var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,7}$`)

// minPasswordLength is the shortest password accepted at signup.
const minPasswordLength = 8

// passwordSpecials lists the characters a password must draw at least one from.
const passwordSpecials = "_-@$!"

// ValidateSignup checks the fields of a signup request before anything is
// persisted. It returns a *ValidationError for the first field that fails.
//
// The name is only checked for length, so a whitespace-only name passes.
// Password failures are deliberately reported without saying which rule
// was broken.
func ValidateSignup(name, email, password string) error {
	if len(name) == 0 {
		return &ValidationError{Field: "name", Reason: "Name cannot be empty", err: ErrInvalidName}
	}
	if !IsValidEmail(email) {
		return &ValidationError{Field: "email", Reason: "Invalid email", err: ErrInvalidEmail}
	}
	if !IsStrongPassword(password) {
		return &ValidationError{Field: "password", Reason: "Invalid password", err: ErrInvalidPassword}
	}
	return nil
}

// IsValidEmail reports whether email has the shape local@domain.tld.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IsStrongPassword reports whether password meets the signup strength rules:
// at least 8 characters with a lowercase letter, an uppercase letter, a
// digit and one of _ - @ $ !, and no whitespace anywhere.
func IsStrongPassword(password string) bool {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return false
	}

	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case isPasswordSpace(r):
			return false
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}

	return lower && upper && digit && special
}

// isPasswordSpace matches unicode.IsSpace plus the ASCII information
// separators U+001C..U+001F, which hub and app clients also treat as
// whitespace.
func isPasswordSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}
