package pgp

import (
	"fmt"
	"time"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/packet"
)

// EncryptionKey is a resolved reference into a certificate's subkey set: the
// one key the policy selected for storage encryption. PrivateKey is nil when
// the certificate carried only public parts.
type EncryptionKey struct {
	PublicKey  *packet.PublicKey
	PrivateKey *packet.PrivateKey
	Sig        *packet.Signature
}

// KeyID returns the 64-bit identifier of the resolved key, as it appears in
// ciphertext recipient slots.
func (k *EncryptionKey) KeyID() uint64 { return k.PublicKey.KeyId }

// Fingerprint returns the resolved key's own fingerprint (not the
// certificate's primary fingerprint).
func (k *EncryptionKey) Fingerprint() [20]byte { return k.PublicKey.Fingerprint }

// Expiry returns the time at which the resolved key stops being usable.
// Keys with no bounded lifetime yield ErrNeverExpiringKey.
func (k *EncryptionKey) Expiry() (time.Time, error) {
	if k.Sig.KeyLifetimeSecs == nil || *k.Sig.KeyLifetimeSecs == 0 {
		return time.Time{}, ErrNeverExpiringKey
	}
	return k.PublicKey.CreationTime.Add(time.Duration(*k.Sig.KeyLifetimeSecs) * time.Second), nil
}

// resolveEncryptionKey validates the certificate under the policy and picks
// the first live, non-revoked subkey flagged for storage encryption. It is
// the single source of truth for "which key do we encrypt to".
func resolveEncryptionKey(e *openpgp.Entity, p *Policy) (*EncryptionKey, error) {
	keys, err := encryptionKeys(e, p)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, ErrNoEncryptionKey
	}
	return keys[0], nil
}

// encryptionKeys returns every subkey qualifying for storage encryption as
// of the policy's clock. A certificate may legitimately yield more than one:
// each becomes its own recipient slot, which keeps rotated-but-still-valid
// subkeys able to open the ciphertext.
func encryptionKeys(e *openpgp.Entity, p *Policy) ([]*EncryptionKey, error) {
	if err := validateCert(e, p); err != nil {
		return nil, err
	}
	now := p.now()
	var keys []*EncryptionKey
	for i := range e.Subkeys {
		sub := &e.Subkeys[i]
		if !subkeyBound(sub) {
			continue
		}
		if !sub.Sig.FlagsValid || !sub.Sig.FlagEncryptStorage {
			continue
		}
		if keyExpired(sub.PublicKey, sub.Sig, now) {
			continue
		}
		if !p.allowsKey(sub.PublicKey) {
			continue
		}
		keys = append(keys, &EncryptionKey{
			PublicKey:  sub.PublicKey,
			PrivateKey: sub.PrivateKey,
			Sig:        sub.Sig,
		})
	}
	return keys, nil
}

// validateCert produces the "valid as of now" view: the certificate must be
// unrevoked, carry a live self-signed identity and an acceptable primary key
// algorithm.
func validateCert(e *openpgp.Entity, p *Policy) error {
	if len(e.Revocations) > 0 {
		return fmt.Errorf("certificate %X is revoked", e.PrimaryKey.Fingerprint)
	}
	now := p.now()
	for _, ident := range e.Identities {
		if ident.SelfSignature == nil {
			continue
		}
		if keyExpired(e.PrimaryKey, ident.SelfSignature, now) {
			continue
		}
		return nil
	}
	return fmt.Errorf("certificate %X has no live self-signed identity", e.PrimaryKey.Fingerprint)
}

// subkeyBound reports whether the subkey's most recent self signature is a
// binding (revoked subkeys carry a revocation signature instead).
func subkeyBound(sub *openpgp.Subkey) bool {
	return sub.Sig != nil && sub.Sig.SigType == packet.SigTypeSubkeyBinding
}

// keyExpired applies the OpenPGP key-expiration rule: the lifetime counts
// from the key's creation time.
func keyExpired(key *packet.PublicKey, sig *packet.Signature, now time.Time) bool {
	if sig.KeyLifetimeSecs == nil || *sig.KeyLifetimeSecs == 0 {
		return false
	}
	return now.After(key.CreationTime.Add(time.Duration(*sig.KeyLifetimeSecs) * time.Second))
}
