package pgp

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
)

// PublicCert is the public parts of an OpenPGP certificate: a primary key,
// its subkeys and their binding signatures. It carries no private material
// and therefore exposes no signing or decryption capability.
type PublicCert struct {
	cert
}

// SecretCert is a certificate including private key material. It can stand
// in for its public half via Public().
type SecretCert struct {
	cert
	// raw is the transferable-secret-key encoding exactly as supplied at
	// parse time. Kept so Bytes/Armor round-trip losslessly even when the
	// private keys are passphrase-protected (re-serializing would re-sign).
	raw []byte
}

type cert struct {
	entity *openpgp.Entity
}

const messageType = "PGP MESSAGE"

// ParsePublicCert parses an ASCII-armored public certificate. Input crosses
// a network boundary, so leading/trailing noise is tolerated.
func ParsePublicCert(armored string) (*PublicCert, error) {
	e, _, err := readCert(strings.NewReader(strings.TrimSpace(armored)), true)
	if err != nil {
		return nil, newParseError("public certificate", err)
	}
	return &PublicCert{cert{entity: e}}, nil
}

// ParsePublicCertBytes parses the compact binary encoding used for storage.
func ParsePublicCertBytes(b []byte) (*PublicCert, error) {
	e, err := readCertBinary(b)
	if err != nil {
		return nil, newParseError("public certificate", err)
	}
	return &PublicCert{cert{entity: e}}, nil
}

// ParseSecretCert parses an ASCII-armored certificate that must include
// private key material.
func ParseSecretCert(armored string) (*SecretCert, error) {
	e, raw, err := readCert(strings.NewReader(strings.TrimSpace(armored)), true)
	if err != nil {
		return nil, newParseError("secret certificate", err)
	}
	if e.PrivateKey == nil {
		return nil, newParseError("secret certificate", errors.New("no private key material"))
	}
	return &SecretCert{cert: cert{entity: e}, raw: raw}, nil
}

// ParseSecretCertBytes parses the binary transferable-secret-key encoding.
func ParseSecretCertBytes(b []byte) (*SecretCert, error) {
	e, err := readCertBinary(b)
	if err != nil {
		return nil, newParseError("secret certificate", err)
	}
	if e.PrivateKey == nil {
		return nil, newParseError("secret certificate", errors.New("no private key material"))
	}
	raw := make([]byte, len(b))
	copy(raw, b)
	return &SecretCert{cert: cert{entity: e}, raw: raw}, nil
}

func readCert(r io.Reader, armored bool) (*openpgp.Entity, []byte, error) {
	var el openpgp.EntityList
	var raw []byte
	var err error
	if armored {
		block, derr := armor.Decode(r)
		if derr != nil {
			return nil, nil, derr
		}
		raw, err = io.ReadAll(block.Body)
		if err != nil {
			return nil, nil, err
		}
		el, err = openpgp.ReadKeyRing(bytes.NewReader(raw))
	} else {
		el, err = openpgp.ReadKeyRing(r)
	}
	if err != nil {
		return nil, nil, err
	}
	if len(el) != 1 {
		return nil, nil, errors.New("expected exactly one certificate")
	}
	if len(el[0].Identities) == 0 {
		return nil, nil, errors.New("certificate has no user ID")
	}
	return el[0], raw, nil
}

func readCertBinary(b []byte) (*openpgp.Entity, error) {
	e, _, err := readCert(bytes.NewReader(b), false)
	return e, err
}

// Fingerprint returns the 20-byte fingerprint of the primary key. It is the
// stable identity of the certificate.
func (c *cert) Fingerprint() [20]byte {
	return c.entity.PrimaryKey.Fingerprint
}

// PrimaryKeyID returns the 64-bit key ID of the primary key.
func (c *cert) PrimaryKeyID() uint64 {
	return c.entity.PrimaryKey.KeyId
}

// EncryptionKey resolves the certificate's storage-encryption key under the
// policy.
func (c *cert) EncryptionKey(p *Policy) (*EncryptionKey, error) {
	return resolveEncryptionKey(c.entity, p)
}

// EncryptionKeyExpiry surfaces the expiry of the resolved encryption key.
// Keys without a bounded lifetime yield ErrNeverExpiringKey: every
// registered key in this system must expire.
func (c *cert) EncryptionKeyExpiry(p *Policy) (time.Time, error) {
	key, err := resolveEncryptionKey(c.entity, p)
	if err != nil {
		return time.Time{}, err
	}
	return key.Expiry()
}

// KeyIDs lists the key IDs of the primary key and every policy-acceptable,
// non-revoked encryption subkey. Expired subkeys are included: the list is
// used to recognize recipient slots of ciphertexts that may predate the
// expiry, not to authorize new encryption.
func (c *cert) KeyIDs(p *Policy) []uint64 {
	ids := []uint64{c.entity.PrimaryKey.KeyId}
	for i := range c.entity.Subkeys {
		sub := &c.entity.Subkeys[i]
		if !subkeyBound(sub) || !p.allowsKey(sub.PublicKey) {
			continue
		}
		ids = append(ids, sub.PublicKey.KeyId)
	}
	return ids
}

// Armor serializes the public parts as an ASCII-armored block. Only the key
// material, user IDs and signatures are carried; user-attribute packets
// (photos and the like) are not re-emitted.
func (c *PublicCert) Armor() (string, error) {
	b, err := c.Bytes()
	if err != nil {
		return "", err
	}
	return armorBytes(b, openpgp.PublicKeyType)
}

// Bytes returns the compact binary encoding of the public parts.
func (c *PublicCert) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.entity.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Public returns the public view of the certificate. The private material is
// not reachable through the returned value.
func (c *SecretCert) Public() *PublicCert {
	return &PublicCert{cert{entity: c.entity}}
}

// Armor serializes the full certificate, private key material included, as a
// transferable secret key block.
func (c *SecretCert) Armor() (string, error) {
	b, err := c.Bytes()
	if err != nil {
		return "", err
	}
	return armorBytes(b, openpgp.PrivateKeyType)
}

// Bytes returns the binary transferable-secret-key encoding.
func (c *SecretCert) Bytes() ([]byte, error) {
	if c.raw != nil {
		out := make([]byte, len(c.raw))
		copy(out, c.raw)
		return out, nil
	}
	var buf bytes.Buffer
	if err := c.entity.SerializePrivate(&buf, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func armorBytes(b []byte, blockType string) (string, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, blockType, nil)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(b); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	buf.WriteString("\n")
	return buf.String(), nil
}
