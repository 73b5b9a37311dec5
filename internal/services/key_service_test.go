package services

import (
	"testing"
	"time"

	"github.com/formvault/formvault/internal/pgp"
)

type stubKeyStore struct {
	records map[string]*KeyRecord
	owners  map[string]string // userID -> email
	audit   []AuditEntry
}

func newStubKeyStore() *stubKeyStore {
	return &stubKeyStore{records: map[string]*KeyRecord{}, owners: map[string]string{}}
}

func (s *stubKeyStore) InsertKeyRecord(k *KeyRecord) error {
	for _, r := range s.records {
		if r.Fingerprint == k.Fingerprint {
			return NewConflictError("fingerprint exists")
		}
	}
	s.records[k.ID] = k
	return nil
}

func (s *stubKeyStore) GetKeyRecord(id string) (*KeyRecord, error) {
	return s.records[id], nil
}

func (s *stubKeyStore) FindKeyByFingerprint(fp string) (*KeyRecord, error) {
	for _, r := range s.records {
		if r.Fingerprint == fp {
			return r, nil
		}
	}
	return nil, nil
}

func (s *stubKeyStore) UpdateKeyBackup(id string, backup []byte) error {
	if r, ok := s.records[id]; ok {
		r.PrivateKeyBackup = backup
	}
	return nil
}

func (s *stubKeyStore) DeleteKeyRecord(id string) error {
	delete(s.records, id)
	return nil
}

func (s *stubKeyStore) DeleteKeysForUserInOrg(userID, orgID string) error {
	for id, r := range s.records {
		if r.UserID == userID && r.OrgID == orgID {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *stubKeyStore) ListKeysWithOwner(orgID string) ([]*KeyWithOwner, error) {
	var out []*KeyWithOwner
	for _, r := range s.records {
		if r.OrgID == orgID {
			out = append(out, &KeyWithOwner{Key: r, OwnerEmail: s.owners[r.UserID]})
		}
	}
	return out, nil
}

func (s *stubKeyStore) AddAudit(e AuditEntry) { s.audit = append(s.audit, e) }

func TestKeyServiceRegister(t *testing.T) {
	testCerts(t)
	store := newStubKeyStore()
	svc := NewKeyService(store, pgp.RecipientCertPolicy())

	rec, err := svc.Register("u1", "o1", publicArmorOf(t, tkAlice))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if rec.Fingerprint == "" || len(rec.PublicKey) == 0 {
		t.Fatalf("incomplete record: %+v", rec)
	}
	if !rec.ExpiresAt.After(time.Now()) {
		t.Fatalf("expiry %v not in the future", rec.ExpiresAt)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected one stored record")
	}
}

func TestKeyServiceRegisterDuplicateFingerprint(t *testing.T) {
	testCerts(t)
	store := newStubKeyStore()
	svc := NewKeyService(store, pgp.RecipientCertPolicy())

	if _, err := svc.Register("u1", "o1", publicArmorOf(t, tkAlice)); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// Same certificate, different owner: still a conflict.
	_, err := svc.Register("u2", "o2", publicArmorOf(t, tkAlice))
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestKeyServiceRegisterRejectsUnboundedKey(t *testing.T) {
	testCerts(t)
	svc := NewKeyService(newStubKeyStore(), pgp.RecipientCertPolicy())
	_, err := svc.Register("u1", "o1", publicArmorOf(t, tkEternal))
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorInvalid {
		t.Fatalf("expected invalid for never-expiring key, got %v", err)
	}
}

func TestKeyServiceRegisterRejectsGarbage(t *testing.T) {
	svc := NewKeyService(newStubKeyStore(), pgp.RecipientCertPolicy())
	_, err := svc.Register("u1", "o1", "not a key")
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorInvalid {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestKeyServiceBackupLifecycle(t *testing.T) {
	testCerts(t)
	store := newStubKeyStore()
	svc := NewKeyService(store, pgp.RecipientCertPolicy())

	rec, err := svc.Register("u1", "o1", publicArmorOf(t, tkAlice))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Backup("u1", "o1", rec.ID); err == nil {
		t.Fatalf("expected not-found before backup is stored")
	}
	if err := svc.RegisterBackup("u1", "o1", rec.ID, secretArmorOf(t, tkAlice)); err != nil {
		t.Fatalf("register backup: %v", err)
	}
	armored, err := svc.Backup("u1", "o1", rec.ID)
	if err != nil {
		t.Fatalf("fetch backup: %v", err)
	}
	restored, err := pgp.ParseSecretCert(armored)
	if err != nil {
		t.Fatalf("stored backup does not parse: %v", err)
	}
	if restored.Fingerprint() != tkAlice.Fingerprint() {
		t.Fatalf("backup fingerprint mismatch")
	}
	if err := svc.RegisterBackup("u1", "o1", rec.ID, ""); err != nil {
		t.Fatalf("clear backup: %v", err)
	}
	if _, err := svc.Backup("u1", "o1", rec.ID); err == nil {
		t.Fatalf("expected not-found after clearing backup")
	}
}

func TestKeyServiceBackupDoesNotCheckCorrespondence(t *testing.T) {
	testCerts(t)
	store := newStubKeyStore()
	svc := NewKeyService(store, pgp.RecipientCertPolicy())

	rec, err := svc.Register("u1", "o1", publicArmorOf(t, tkAlice))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	// A well-formed secret key for a different certificate is accepted: the
	// backup slot only validates structure, not correspondence.
	if err := svc.RegisterBackup("u1", "o1", rec.ID, secretArmorOf(t, tkBob)); err != nil {
		t.Fatalf("mismatched backup rejected: %v", err)
	}
}

func TestKeyServiceBackupOwnership(t *testing.T) {
	testCerts(t)
	store := newStubKeyStore()
	svc := NewKeyService(store, pgp.RecipientCertPolicy())

	rec, err := svc.Register("u1", "o1", publicArmorOf(t, tkAlice))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	err = svc.RegisterBackup("u2", "o1", rec.ID, secretArmorOf(t, tkAlice))
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorForbidden {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}
	err = svc.RegisterBackup("u1", "other-org", rec.ID, secretArmorOf(t, tkAlice))
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorNotFound {
		t.Fatalf("expected not-found across orgs, got %v", err)
	}
}

func TestKeyServiceDeleteCascade(t *testing.T) {
	testCerts(t)
	store := newStubKeyStore()
	svc := NewKeyService(store, pgp.RecipientCertPolicy())

	a, err := svc.Register("u1", "o1", publicArmorOf(t, tkAlice))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register("u1", "o1", publicArmorOf(t, tkBob)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Delete("u1", "o1", a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected one record after delete")
	}
	if err := svc.DeleteAllForUserInOrg("u1", "o1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if len(store.records) != 0 {
		t.Fatalf("expected no records after cascade")
	}
}
