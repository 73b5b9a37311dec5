package pgp

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/openpgp/armor"
	"golang.org/x/crypto/openpgp/packet"
)

// WireMessage is an encrypted submission in transit or at rest. It wraps the
// raw binary message and converts between that and the armored text form;
// it never decrypts.
type WireMessage struct {
	raw []byte
}

// FromText parses an ASCII-armored message. The text typically arrives via a
// JSON field, so surrounding whitespace and CRLF line endings are tolerated.
func FromText(text string) (*WireMessage, error) {
	normalized := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	block, err := armor.Decode(strings.NewReader(normalized))
	if err != nil {
		return nil, newParseError("armored message", err)
	}
	raw, err := io.ReadAll(block.Body)
	if err != nil {
		return nil, newParseError("armored message", err)
	}
	return FromBytes(raw)
}

// FromBytes wraps the raw binary form persisted in storage, validating that
// it is a well-formed encrypted message.
func FromBytes(b []byte) (*WireMessage, error) {
	if _, err := recipientKeyHandles(b); err != nil {
		return nil, err
	}
	raw := make([]byte, len(b))
	copy(raw, b)
	return &WireMessage{raw: raw}, nil
}

// Bytes returns the compact binary form for database storage.
func (m *WireMessage) Bytes() []byte {
	out := make([]byte, len(m.raw))
	copy(out, m.raw)
	return out
}

// Armor re-encodes the message as ASCII-armored text for display or export.
func (m *WireMessage) Armor() (string, error) {
	return armorBytes(m.raw, messageType)
}

// RecipientKeyHandles walks the message's leading packets and collects the
// key ID from every encrypted-session-key slot, without touching the
// payload. This is how the server answers "which keys can open this" while
// holding no decryption capability.
func (m *WireMessage) RecipientKeyHandles() []uint64 {
	handles, err := recipientKeyHandles(m.raw)
	if err != nil {
		// FromBytes already validated the packet sequence.
		return nil
	}
	return handles
}

func recipientKeyHandles(raw []byte) ([]uint64, error) {
	reader := packet.NewReader(bytes.NewReader(raw))
	var handles []uint64
	for {
		p, err := reader.Next()
		if err == io.EOF {
			return nil, newParseError("encrypted message", errors.New("no encrypted payload"))
		}
		if err != nil {
			return nil, newParseError("encrypted message", err)
		}
		switch pkt := p.(type) {
		case *packet.EncryptedKey:
			handles = append(handles, pkt.KeyId)
		case *packet.SymmetricallyEncrypted:
			if len(handles) == 0 {
				return nil, newParseError("encrypted message", errors.New("no recipient slots"))
			}
			return handles, nil
		default:
			return nil, newParseError("encrypted message", errors.New("unexpected packet in message header"))
		}
	}
}
