package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/formvault/formvault/internal/pgp"
)

type KeyStore interface {
	InsertKeyRecord(k *KeyRecord) error
	GetKeyRecord(id string) (*KeyRecord, error)
	FindKeyByFingerprint(fp string) (*KeyRecord, error)
	UpdateKeyBackup(id string, backup []byte) error
	DeleteKeyRecord(id string) error
	DeleteKeysForUserInOrg(userID, orgID string) error
	ListKeysWithOwner(orgID string) ([]*KeyWithOwner, error)
	AddAudit(entry AuditEntry)
}

// KeyService manages the lifecycle of registered recipient keys: public key
// registration, optional encrypted private-key backup, and deletion. All
// certificate parsing and policy evaluation is delegated to the pgp package.
type KeyService struct {
	store  KeyStore
	policy *pgp.Policy
	now    func() time.Time
	idGen  func() string
}

func NewKeyService(store KeyStore, policy *pgp.Policy) *KeyService {
	return &KeyService{
		store:  store,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
		idGen:  func() string { return "k" + shortID(11) },
	}
}

// Register stores a new public key for the given owner. The certificate
// must carry a policy-valid storage-encryption key with a bounded lifetime,
// and its fingerprint must not already be registered by anyone.
//
// The fingerprint lookup here only exists to give a friendly conflict
// message: the store's uniqueness constraint is the real enforcement, so
// losing the check-then-insert race is harmless.
func (s *KeyService) Register(userID, orgID, publicKeyText string) (*KeyRecord, error) {
	if userID == "" || orgID == "" {
		return nil, NewForbiddenError("unauthorized")
	}
	cert, err := pgp.ParsePublicCert(publicKeyText)
	if err != nil {
		return nil, NewInvalidError(err.Error())
	}
	expiry, err := cert.EncryptionKeyExpiry(s.policy)
	if err != nil {
		switch {
		case errors.Is(err, pgp.ErrNeverExpiringKey):
			return nil, NewInvalidError("key must have a bounded lifetime")
		case errors.Is(err, pgp.ErrNoEncryptionKey):
			return nil, NewInvalidError("certificate has no usable storage-encryption key")
		default:
			return nil, NewInvalidError(err.Error())
		}
	}
	fp := fmt.Sprintf("%X", cert.Fingerprint())
	if existing, err := s.store.FindKeyByFingerprint(fp); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, NewConflictError("a key with this fingerprint is already registered")
	}
	pub, err := cert.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serialize public key: %w", err)
	}
	rec := &KeyRecord{
		ID:          s.idGen(),
		UserID:      userID,
		OrgID:       orgID,
		PublicKey:   pub,
		Fingerprint: fp,
		ExpiresAt:   expiry,
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertKeyRecord(rec); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: userID, Action: "key_register", Target: orgID, Note: fp})
	return rec, nil
}

// RegisterBackup attaches (or, given an empty text, clears) the private-key
// backup slot of a key record. The blob must parse as a well-formed secret
// certificate; whether it actually corresponds to the registered public key
// is not verified.
func (s *KeyService) RegisterBackup(userID, orgID, keyID, secretKeyText string) error {
	rec, err := s.store.GetKeyRecord(keyID)
	if err != nil {
		return err
	}
	if rec == nil || rec.OrgID != orgID {
		return NewNotFoundError("key not found")
	}
	if rec.UserID != userID {
		return NewForbiddenError("only the key owner can manage its backup")
	}
	if strings.TrimSpace(secretKeyText) == "" {
		if err := s.store.UpdateKeyBackup(keyID, nil); err != nil {
			return err
		}
		s.store.AddAudit(AuditEntry{Time: s.now(), Actor: userID, Action: "key_backup_clear", Target: keyID})
		return nil
	}
	cert, err := pgp.ParseSecretCert(secretKeyText)
	if err != nil {
		return NewInvalidError(err.Error())
	}
	blob, err := cert.Bytes()
	if err != nil {
		return fmt.Errorf("serialize backup: %w", err)
	}
	if err := s.store.UpdateKeyBackup(keyID, blob); err != nil {
		return err
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: userID, Action: "key_backup_set", Target: keyID})
	return nil
}

// Backup returns the stored private-key backup as armored text, or
// not-found if the slot is empty. The caller decrypts it with their own
// credential; the server only ferries bytes.
func (s *KeyService) Backup(userID, orgID, keyID string) (string, error) {
	rec, err := s.store.GetKeyRecord(keyID)
	if err != nil {
		return "", err
	}
	if rec == nil || rec.OrgID != orgID {
		return "", NewNotFoundError("key not found")
	}
	if rec.UserID != userID {
		return "", NewForbiddenError("only the key owner can read its backup")
	}
	if len(rec.PrivateKeyBackup) == 0 {
		return "", NewNotFoundError("no backup stored for this key")
	}
	cert, err := pgp.ParseSecretCertBytes(rec.PrivateKeyBackup)
	if err != nil {
		return "", fmt.Errorf("stored backup for %s is unreadable: %w", keyID, err)
	}
	return cert.Armor()
}

func (s *KeyService) Delete(userID, orgID, keyID string) error {
	rec, err := s.store.GetKeyRecord(keyID)
	if err != nil {
		return err
	}
	if rec == nil || rec.OrgID != orgID {
		return NewNotFoundError("key not found")
	}
	if rec.UserID != userID {
		return NewForbiddenError("only the key owner can delete it")
	}
	if err := s.store.DeleteKeyRecord(keyID); err != nil {
		return err
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: userID, Action: "key_delete", Target: keyID, Note: rec.Fingerprint})
	return nil
}

// DeleteAllForUserInOrg removes every key a user registered in an org. Used
// as the cascade when a user leaves the org.
func (s *KeyService) DeleteAllForUserInOrg(userID, orgID string) error {
	if err := s.store.DeleteKeysForUserInOrg(userID, orgID); err != nil {
		return err
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: userID, Action: "key_delete_all", Target: orgID})
	return nil
}

// ListWithIdentity returns the org's key records joined with their owners'
// display identity. The public key bytes ride along so callers can
// fingerprint or re-encrypt without a second fetch.
func (s *KeyService) ListWithIdentity(orgID string) ([]*KeyWithOwner, error) {
	if orgID == "" {
		return nil, NewForbiddenError("unauthorized")
	}
	return s.store.ListKeysWithOwner(orgID)
}
