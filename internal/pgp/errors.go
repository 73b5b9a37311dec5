package pgp

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEncryptionKey indicates a certificate has no live, policy-passing
	// storage-encryption subkey.
	ErrNoEncryptionKey = errors.New("certificate has no usable storage-encryption key")

	// ErrNoValidRecipients indicates every supplied recipient certificate was
	// rejected (expired, revoked, unparsable or wrong usage), so there is
	// nobody to encrypt to.
	ErrNoValidRecipients = errors.New("no valid recipient keys")

	// ErrNeverExpiringKey indicates an encryption key with no bounded
	// lifetime. Registered keys must expire.
	ErrNeverExpiringKey = errors.New("encryption key never expires")

	// ErrNoMatchingKey is the expected outcome when none of the resolver's
	// private keys corresponds to a recipient slot of a ciphertext. It is
	// distinct from a corrupt-ciphertext parse error.
	ErrNoMatchingKey = errors.New("no private key matches any recipient of this message")

	// ErrLockedPrivateKey indicates a passphrase-protected private key was
	// supplied; the resolver is non-interactive and cannot use it.
	ErrLockedPrivateKey = errors.New("private key is passphrase-protected")
)

// ParseError wraps a failure to decode armored or binary PGP input. Such
// input is caller-controlled and potentially adversarial, so the wrapped
// detail is safe to surface as a client error.
type ParseError struct {
	What string // what was being parsed, e.g. "public certificate"
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.What, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

func newParseError(what string, err error) error { return &ParseError{What: what, Err: err} }
