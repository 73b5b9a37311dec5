package pgp

import (
	"fmt"
	"time"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/packet"
)

// GenerateCert creates a fresh RSA certificate with one storage-encryption
// subkey. validity bounds the lifetime of the primary key and the subkey;
// zero means no expiry, which RecipientCertPolicy-driven registration will
// reject, so callers should pass a bounded duration outside of tests.
//
// Key generation happens client-side (CLI); the server never sees the
// private half unless the owner explicitly uploads an encrypted backup.
func GenerateCert(name, email string, validity time.Duration) (*SecretCert, error) {
	config := &packet.Config{RSABits: 2048, DefaultCipher: packet.CipherAES256}
	e, err := openpgp.NewEntity(name, "", email, config)
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}
	if validity > 0 {
		secs := uint32(validity / time.Second)
		for _, ident := range e.Identities {
			ident.SelfSignature.KeyLifetimeSecs = &secs
			if err := ident.SelfSignature.SignUserId(ident.UserId.Id, e.PrimaryKey, e.PrivateKey, config); err != nil {
				return nil, fmt.Errorf("bind identity: %w", err)
			}
		}
		for i := range e.Subkeys {
			sub := &e.Subkeys[i]
			sub.Sig.KeyLifetimeSecs = &secs
			if err := sub.Sig.SignKey(sub.PublicKey, e.PrivateKey, config); err != nil {
				return nil, fmt.Errorf("bind subkey: %w", err)
			}
		}
	}
	return &SecretCert{cert: cert{entity: e}}, nil
}
