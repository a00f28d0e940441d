// Package auth authenticates the two client classes of Hydroconnect Core.
//
// Human users sign up with name, email and password (ValidateSignup,
// Argon2id hashing) and log in for an HS256 session token that lasts seven
// days (SessionService). Protected requests carry the token in the
// x-access-token header and pass through the Gateway, which collapses every
// verification failure into ErrTokenInvalid.
//
// Field devices present a long-lived device key when posting usage data.
// DeviceKeyAuthority checks the key against a KeyStore (SQLite or Redis) and
// replaces it once the device-reported date is seven or more calendar days
// past the last rotation. The replacement is a compare-and-swap in the store,
// so a concurrent request using the old key sees either the old key valid or
// the new one, never both or neither.
//
// Only SHA-256 hashes of device keys are persisted.
package auth
