package pgp

import (
	"time"

	"golang.org/x/crypto/openpgp/packet"
)

// Policy is the ruleset deciding which keys qualify as recipients and which
// algorithms are acceptable. It is constructed once and passed explicitly to
// every operation that evaluates certificates, so call sites stay auditable.
type Policy struct {
	// MinRSABits rejects RSA keys below this modulus size.
	MinRSABits uint16
	// Cipher is the symmetric algorithm for payload encryption.
	Cipher packet.CipherFunction
	// Now supplies the evaluation time for expiry checks.
	Now func() time.Time
}

// RecipientCertPolicy returns the fixed policy used for all storage
// encryption in this system.
func RecipientCertPolicy() *Policy {
	return &Policy{
		MinRSABits: 2048,
		Cipher:     packet.CipherAES256,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func (p *Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// allowsKey reports whether a public key's algorithm and strength are
// acceptable for encrypting to.
func (p *Policy) allowsKey(pk *packet.PublicKey) bool {
	if !pk.PubKeyAlgo.CanEncrypt() {
		return false
	}
	switch pk.PubKeyAlgo {
	case packet.PubKeyAlgoRSA, packet.PubKeyAlgoRSAEncryptOnly, packet.PubKeyAlgoElGamal:
		bits, err := pk.BitLength()
		if err != nil {
			return false
		}
		return bits >= p.MinRSABits
	case packet.PubKeyAlgoECDH:
		return true
	default:
		return false
	}
}

func (p *Policy) config() *packet.Config {
	return &packet.Config{DefaultCipher: p.Cipher}
}
