package pgp

import (
	"bytes"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/openpgp/packet"
)

// EncryptSubmission serializes the submission and encrypts it to every
// qualifying storage-encryption key of the supplied recipient certificates,
// returning the unarmored binary message.
//
// Certificates that fail to parse or fail policy validation are skipped, not
// fatal: at encryption time the recipient list routinely mixes current and
// rotated-out keys. If nothing survives the filtering there is nobody able
// to read the result and the call fails with ErrNoValidRecipients.
//
// The output is non-deterministic: a fresh session key is drawn per call, so
// two encryptions of the same plaintext are not comparable.
func EncryptSubmission(sub *Submission, recipientCerts []string, p *Policy) ([]byte, error) {
	plaintext, err := encodeSubmission(sub)
	if err != nil {
		return nil, err
	}
	var recipients []*EncryptionKey
	for _, text := range recipientCerts {
		cert, err := ParsePublicCert(text)
		if err != nil {
			continue
		}
		keys, err := encryptionKeys(cert.entity, p)
		if err != nil {
			continue
		}
		recipients = append(recipients, keys...)
	}
	if len(recipients) == 0 {
		return nil, ErrNoValidRecipients
	}
	return encryptToKeys(plaintext, recipients, p)
}

// EncryptSubmissionArmored is EncryptSubmission plus ASCII armor for text
// transport.
func EncryptSubmissionArmored(sub *Submission, recipientCerts []string, p *Policy) (string, error) {
	b, err := EncryptSubmission(sub, recipientCerts, p)
	if err != nil {
		return "", err
	}
	return armorBytes(b, messageType)
}

// encryptToKeys builds the multi-recipient message: one encrypted-session-key
// packet per recipient key, then a single symmetrically encrypted payload
// holding the plaintext as a literal data packet.
func encryptToKeys(plaintext []byte, recipients []*EncryptionKey, p *Policy) ([]byte, error) {
	config := p.config()
	cipher := config.Cipher()
	sessionKey := make([]byte, cipher.KeySize())
	if _, err := rand.Read(sessionKey); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}

	var buf bytes.Buffer
	for _, key := range recipients {
		if err := packet.SerializeEncryptedKey(&buf, key.PublicKey, cipher, sessionKey, config); err != nil {
			return nil, fmt.Errorf("wrap session key for %s: %w", key.PublicKey.KeyIdString(), err)
		}
	}
	encrypted, err := packet.SerializeSymmetricallyEncrypted(&buf, cipher, sessionKey, config)
	if err != nil {
		return nil, fmt.Errorf("start payload encryption: %w", err)
	}
	literal, err := packet.SerializeLiteral(encrypted, true, "", 0)
	if err != nil {
		return nil, fmt.Errorf("frame payload: %w", err)
	}
	if _, err := literal.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}
	if err := literal.Close(); err != nil {
		return nil, fmt.Errorf("finish payload: %w", err)
	}
	if err := encrypted.Close(); err != nil {
		return nil, fmt.Errorf("finish payload encryption: %w", err)
	}
	return buf.Bytes(), nil
}
