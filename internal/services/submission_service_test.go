package services

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/formvault/formvault/internal/pgp"
)

type stubSubmissionStore struct {
	form        *Form
	submissions map[string]*SubmissionRecord
	keys        []*KeyWithOwner
	audit       []AuditEntry
}

func newStubSubmissionStore(form *Form) *stubSubmissionStore {
	return &stubSubmissionStore{form: form, submissions: map[string]*SubmissionRecord{}}
}

func (s *stubSubmissionStore) GetForm(id string) (*Form, error) {
	if s.form != nil && s.form.ID == id {
		return s.form, nil
	}
	return nil, nil
}

func (s *stubSubmissionStore) InsertSubmission(r *SubmissionRecord) error {
	s.submissions[r.ID] = r
	return nil
}

func (s *stubSubmissionStore) GetSubmission(id string) (*SubmissionRecord, error) {
	return s.submissions[id], nil
}

func (s *stubSubmissionStore) ListSubmissions(formID string) ([]*SubmissionRecord, error) {
	var out []*SubmissionRecord
	for _, r := range s.submissions {
		if r.FormID == formID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubSubmissionStore) ListKeysWithOwner(orgID string) ([]*KeyWithOwner, error) {
	return s.keys, nil
}

func (s *stubSubmissionStore) AddAudit(e AuditEntry) { s.audit = append(s.audit, e) }

func registeredKey(t *testing.T, cert *pgp.SecretCert, email string) *KeyWithOwner {
	t.Helper()
	pub, err := cert.Public().Bytes()
	if err != nil {
		t.Fatalf("serialize cert: %v", err)
	}
	fp := cert.Fingerprint()
	return &KeyWithOwner{
		Key:        &KeyRecord{ID: "k-" + email, PublicKey: pub, Fingerprint: hexFP(fp)},
		OwnerEmail: email,
	}
}

func hexFP(fp [20]byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, 40)
	for _, b := range fp {
		out = append(out, digits[b>>4], digits[b&0xf])
	}
	return string(out)
}

func armoredCiphertext(t *testing.T, recipients ...*pgp.SecretCert) string {
	t.Helper()
	certs := make([]string, 0, len(recipients))
	for _, r := range recipients {
		certs = append(certs, publicArmorOf(t, r))
	}
	armored, err := pgp.EncryptSubmissionArmored(&pgp.Submission{
		FormID:          "F1",
		GroupsCompleted: []string{"G1"},
		Answers: []pgp.Answer{
			{QuestionID: "Q1", Data: pgp.AnswerData{Type: pgp.AnswerChoice, Options: []string{"red"}}},
		},
	}, certs, pgp.RecipientCertPolicy())
	if err != nil {
		t.Fatalf("encrypt fixture: %v", err)
	}
	return armored
}

func TestSubmissionIntakeStoresBinary(t *testing.T) {
	testCerts(t)
	store := newStubSubmissionStore(&Form{ID: "F1", OrgID: "o1", E2EEEnabled: true})
	svc := NewSubmissionService(store, pgp.RecipientCertPolicy(), nil)

	armored := armoredCiphertext(t, tkAlice)
	res, err := svc.Intake("F1", armored)
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	if res.SubmissionID == "" || res.SelfToken == "" {
		t.Fatalf("incomplete receipt: %+v", res)
	}
	rec := store.submissions[res.SubmissionID]
	if rec == nil {
		t.Fatalf("submission not stored")
	}
	msg, err := pgp.FromText(armored)
	if err != nil {
		t.Fatalf("reparse armored: %v", err)
	}
	if !bytes.Equal(rec.EncryptedData, msg.Bytes()) {
		t.Fatalf("stored bytes differ from wire bytes")
	}
}

func TestSubmissionIntakeValidation(t *testing.T) {
	testCerts(t)
	armored := armoredCiphertext(t, tkAlice)

	svc := NewSubmissionService(newStubSubmissionStore(nil), pgp.RecipientCertPolicy(), nil)
	if _, err := svc.Intake("F1", armored); err == nil {
		t.Fatalf("expected error for unknown form")
	}

	plainForm := &Form{ID: "F1", OrgID: "o1", E2EEEnabled: false}
	svc = NewSubmissionService(newStubSubmissionStore(plainForm), pgp.RecipientCertPolicy(), nil)
	if _, err := svc.Intake("F1", armored); err == nil {
		t.Fatalf("expected error for non-E2EE form")
	}

	e2eeForm := &Form{ID: "F1", OrgID: "o1", E2EEEnabled: true}
	svc = NewSubmissionService(newStubSubmissionStore(e2eeForm), pgp.RecipientCertPolicy(), nil)
	_, err := svc.Intake("F1", "not armored at all")
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorInvalid {
		t.Fatalf("expected invalid for malformed armor, got %v", err)
	}
}

func TestSubmissionCryptoDetails(t *testing.T) {
	testCerts(t)
	store := newStubSubmissionStore(&Form{ID: "F1", OrgID: "o1", E2EEEnabled: true})
	store.keys = []*KeyWithOwner{
		registeredKey(t, tkAlice, "alice@example.org"),
		registeredKey(t, tkBob, "bob@example.org"),
	}
	svc := NewSubmissionService(store, pgp.RecipientCertPolicy(), nil)

	res, err := svc.Intake("F1", armoredCiphertext(t, tkAlice, tkBob))
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	details, err := svc.CryptoDetails("o1", res.SubmissionID)
	if err != nil {
		t.Fatalf("crypto details: %v", err)
	}
	if len(details.Recipients) != 2 {
		t.Fatalf("expected both registered keys as recipients, got %+v", details.Recipients)
	}
	if len(details.UnknownHandles) != 0 {
		t.Fatalf("unexpected unknown handles: %v", details.UnknownHandles)
	}
	for _, r := range details.Recipients {
		if len(r.KeyHandles) == 0 {
			t.Fatalf("recipient %s has no key handles", r.Fingerprint)
		}
	}
}

func TestSubmissionCryptoDetailsUnknownRecipient(t *testing.T) {
	testCerts(t)
	store := newStubSubmissionStore(&Form{ID: "F1", OrgID: "o1", E2EEEnabled: true})
	store.keys = []*KeyWithOwner{registeredKey(t, tkAlice, "alice@example.org")}
	svc := NewSubmissionService(store, pgp.RecipientCertPolicy(), nil)

	// Encrypted to Bob as well, but only Alice is registered.
	res, err := svc.Intake("F1", armoredCiphertext(t, tkAlice, tkBob))
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	details, err := svc.CryptoDetails("o1", res.SubmissionID)
	if err != nil {
		t.Fatalf("crypto details: %v", err)
	}
	if len(details.Recipients) != 1 {
		t.Fatalf("expected one recognized recipient, got %+v", details.Recipients)
	}
	if len(details.UnknownHandles) == 0 {
		t.Fatalf("expected unknown handles for the unregistered recipient")
	}
}

func TestSubmissionCryptoDetailsScoping(t *testing.T) {
	testCerts(t)
	store := newStubSubmissionStore(&Form{ID: "F1", OrgID: "o1", E2EEEnabled: true})
	svc := NewSubmissionService(store, pgp.RecipientCertPolicy(), nil)
	res, err := svc.Intake("F1", armoredCiphertext(t, tkAlice))
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	_, err = svc.CryptoDetails("other-org", res.SubmissionID)
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorForbidden {
		t.Fatalf("expected forbidden for foreign org, got %v", err)
	}
}

func TestSubmissionExport(t *testing.T) {
	testCerts(t)
	store := newStubSubmissionStore(&Form{ID: "F1", OrgID: "o1", E2EEEnabled: true})
	svc := NewSubmissionService(store, pgp.RecipientCertPolicy(), func(data []byte) (string, error) {
		return base64.StdEncoding.EncodeToString(data), nil
	})
	if _, err := svc.Intake("F1", armoredCiphertext(t, tkAlice)); err != nil {
		t.Fatalf("intake: %v", err)
	}
	bundle, err := svc.Export("o1", "F1", "admin")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if bundle.Signature == "" {
		t.Fatalf("expected manifest signature")
	}
	if len(bundle.Submissions) != 1 {
		t.Fatalf("expected one exported submission")
	}
	// The armored export must round-trip to the stored bytes.
	msg, err := pgp.FromText(bundle.Submissions[0].Armored)
	if err != nil {
		t.Fatalf("reparse export: %v", err)
	}
	var stored *SubmissionRecord
	for _, r := range store.submissions {
		stored = r
	}
	if !bytes.Equal(msg.Bytes(), stored.EncryptedData) {
		t.Fatalf("export altered ciphertext")
	}
}
