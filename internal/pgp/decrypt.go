package pgp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/openpgp"
	pgperrors "golang.org/x/crypto/openpgp/errors"
)

// KeyResolver opens multi-recipient ciphertexts with a fixed set of private
// keys. Construction is fail-closed: every supplied key must parse and
// resolve to a usable storage-encryption key, otherwise the resolver is
// refused outright. It runs client-side only; the server never holds one.
type KeyResolver struct {
	policy   *Policy
	entities openpgp.EntityList
	keyIDs   map[uint64]struct{}
}

// NewKeyResolver builds a resolver from ASCII-armored private keys.
func NewKeyResolver(privateKeys []string, p *Policy) (*KeyResolver, error) {
	if len(privateKeys) == 0 {
		return nil, errors.New("at least one private key is required")
	}
	r := &KeyResolver{policy: p, keyIDs: map[uint64]struct{}{}}
	for _, pem := range privateKeys {
		cert, err := ParseSecretCert(pem)
		if err != nil {
			return nil, err
		}
		key, err := resolveEncryptionKey(cert.entity, p)
		if err != nil {
			return nil, fmt.Errorf("key %X: %w", cert.Fingerprint(), err)
		}
		if key.PrivateKey == nil || key.PrivateKey.Encrypted || cert.entity.PrivateKey.Encrypted {
			return nil, fmt.Errorf("key %X: %w", cert.Fingerprint(), ErrLockedPrivateKey)
		}
		r.entities = append(r.entities, cert.entity)
		for _, id := range cert.KeyIDs(p) {
			r.keyIDs[id] = struct{}{}
		}
	}
	return r, nil
}

// Fingerprints lists the primary fingerprints of the resolver's
// certificates.
func (r *KeyResolver) Fingerprints() [][20]byte {
	fps := make([][20]byte, 0, len(r.entities))
	for _, e := range r.entities {
		fps = append(fps, e.PrimaryKey.Fingerprint)
	}
	return fps
}

// Decrypt opens the binary ciphertext and deserializes the submission.
// A ciphertext none of the resolver's keys can open yields ErrNoMatchingKey;
// malformed input yields a ParseError. The payload's integrity tag is
// checked before any plaintext is returned.
func (r *KeyResolver) Decrypt(ciphertext []byte) (*Submission, error) {
	msg, err := FromBytes(ciphertext)
	if err != nil {
		return nil, err
	}
	if !r.aliasesAny(msg.RecipientKeyHandles()) {
		return nil, ErrNoMatchingKey
	}
	md, err := openpgp.ReadMessage(bytes.NewReader(ciphertext), r, nil, r.policy.config())
	if err != nil {
		if errors.Is(err, pgperrors.ErrKeyIncorrect) {
			return nil, ErrNoMatchingKey
		}
		return nil, newParseError("encrypted message", err)
	}
	body, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, newParseError("encrypted payload", err)
	}
	// Submissions carry no verifiable signature; integrity is the payload's
	// own protection tag plus the structural round-trip below.
	return decodeSubmission(body)
}

// aliasesAny reports whether any recipient handle could belong to one of the
// resolver's keys. A zero handle is the wildcard "hidden recipient" and has
// to be attempted.
func (r *KeyResolver) aliasesAny(handles []uint64) bool {
	for _, h := range handles {
		if h == 0 {
			return true
		}
		if _, ok := r.keyIDs[h]; ok {
			return true
		}
	}
	return false
}

// KeyIDAliases reports whether a recipient key handle refers to the key with
// the given fingerprint. Handles are the truncated form: the low eight bytes
// of a v4 fingerprint.
func KeyIDAliases(handle uint64, fingerprint [20]byte) bool {
	return handle == binary.BigEndian.Uint64(fingerprint[12:])
}

// The openpgp.KeyRing methods below let openpgp.ReadMessage drive session
// key unwrapping directly against the resolver's certificates.

func (r *KeyResolver) KeysById(id uint64) []openpgp.Key {
	return r.entities.KeysById(id)
}

func (r *KeyResolver) KeysByIdUsage(id uint64, requiredUsage byte) []openpgp.Key {
	return r.entities.KeysByIdUsage(id, requiredUsage)
}

func (r *KeyResolver) DecryptionKeys() []openpgp.Key {
	return r.entities.DecryptionKeys()
}
