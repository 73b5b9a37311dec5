package services

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/formvault/formvault/internal/pgp"
)

type SubmissionStore interface {
	GetForm(id string) (*Form, error)
	InsertSubmission(r *SubmissionRecord) error
	GetSubmission(id string) (*SubmissionRecord, error)
	ListSubmissions(formID string) ([]*SubmissionRecord, error)
	ListKeysWithOwner(orgID string) ([]*KeyWithOwner, error)
	AddAudit(entry AuditEntry)
}

// ExportSigner signs an export manifest, e.g. with a server-held signing
// key. Optional.
type ExportSigner func(data []byte) (string, error)

// SubmissionService accepts encrypted submissions and serves them back for
// client-side decryption. It converts between the armored transport form and
// the binary storage form; it has no ability to decrypt anything.
type SubmissionService struct {
	store  SubmissionStore
	policy *pgp.Policy
	sign   ExportSigner
	now    func() time.Time
	idGen  func() string
	tokGen func() (string, error)
}

type IntakeResult struct {
	SubmissionID string `json:"submission_id"`
	SelfToken    string `json:"self_token"`
}

// RecipientInfo describes one registered key that can open a submission.
type RecipientInfo struct {
	Fingerprint string   `json:"fingerprint"`
	OwnerEmail  string   `json:"owner_email,omitempty"`
	KeyHandles  []string `json:"key_handles"`
}

// CryptoDetails answers "which keys can read this submission" from
// ciphertext metadata alone.
type CryptoDetails struct {
	SubmissionID   string          `json:"submission_id"`
	Recipients     []RecipientInfo `json:"recipients"`
	UnknownHandles []string        `json:"unknown_handles,omitempty"`
}

type ExportedSubmission struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Armored   string    `json:"armored"`
}

type ExportBundle struct {
	Manifest    map[string]any       `json:"manifest"`
	Signature   string               `json:"signature,omitempty"`
	Submissions []ExportedSubmission `json:"submissions"`
}

func NewSubmissionService(store SubmissionStore, policy *pgp.Policy, signer ExportSigner) *SubmissionService {
	return &SubmissionService{
		store:  store,
		policy: policy,
		sign:   signer,
		now:    func() time.Time { return time.Now().UTC() },
		idGen:  func() string { return "s" + shortID(11) },
		tokGen: generateSelfToken,
	}
}

// Intake accepts an armored ciphertext for a form and stores its binary
// form. The payload is opaque: the only inspection is the structural parse
// that conversion requires.
func (s *SubmissionService) Intake(formID, armored string) (*IntakeResult, error) {
	if formID == "" || strings.TrimSpace(armored) == "" {
		return nil, NewInvalidError("form id and encrypted payload required")
	}
	form, err := s.store.GetForm(formID)
	if err != nil {
		return nil, err
	}
	if form == nil {
		return nil, NewNotFoundError("form not found")
	}
	if !form.E2EEEnabled {
		return nil, NewInvalidError("form does not accept encrypted submissions")
	}
	msg, err := pgp.FromText(armored)
	if err != nil {
		return nil, NewInvalidError(err.Error())
	}
	tok, err := s.tokGen()
	if err != nil {
		return nil, err
	}
	rec := &SubmissionRecord{
		ID:            s.idGen(),
		FormID:        formID,
		EncryptedData: msg.Bytes(),
		CreatedAt:     s.now(),
		SelfToken:     tok,
	}
	if err := s.store.InsertSubmission(rec); err != nil {
		return nil, err
	}
	return &IntakeResult{SubmissionID: rec.ID, SelfToken: tok}, nil
}

// CryptoDetails lists, per registered key of the form's org, the recipient
// slots of the stored ciphertext that key can open. Handles the org has no
// key for are reported separately, so rotated-away recipients stay visible.
func (s *SubmissionService) CryptoDetails(orgID, submissionID string) (*CryptoDetails, error) {
	rec, form, err := s.submissionForOrg(orgID, submissionID)
	if err != nil {
		return nil, err
	}
	msg, err := pgp.FromBytes(rec.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("stored submission %s is unreadable: %w", rec.ID, err)
	}
	handles := msg.RecipientKeyHandles()

	keys, err := s.store.ListKeysWithOwner(form.OrgID)
	if err != nil {
		return nil, err
	}
	details := &CryptoDetails{SubmissionID: rec.ID}
	claimed := map[uint64]bool{}
	for _, kw := range keys {
		cert, err := pgp.ParsePublicCertBytes(kw.Key.PublicKey)
		if err != nil {
			continue
		}
		ids := map[uint64]struct{}{}
		for _, id := range cert.KeyIDs(s.policy) {
			ids[id] = struct{}{}
		}
		var matched []string
		for _, h := range handles {
			if _, ok := ids[h]; ok {
				matched = append(matched, formatKeyHandle(h))
				claimed[h] = true
			}
		}
		if len(matched) > 0 {
			details.Recipients = append(details.Recipients, RecipientInfo{
				Fingerprint: kw.Key.Fingerprint,
				OwnerEmail:  kw.OwnerEmail,
				KeyHandles:  matched,
			})
		}
	}
	for _, h := range handles {
		if !claimed[h] {
			details.UnknownHandles = append(details.UnknownHandles, formatKeyHandle(h))
		}
	}
	return details, nil
}

// Export re-armors every stored submission of a form for download, wrapped
// in a signed manifest. Decryption happens wherever the download lands.
func (s *SubmissionService) Export(orgID, formID, actor string) (*ExportBundle, error) {
	form, err := s.store.GetForm(formID)
	if err != nil {
		return nil, err
	}
	if form == nil || form.OrgID != orgID {
		return nil, NewForbiddenError("forbidden")
	}
	recs, err := s.store.ListSubmissions(formID)
	if err != nil {
		return nil, err
	}
	out := make([]ExportedSubmission, 0, len(recs))
	for _, rec := range recs {
		msg, err := pgp.FromBytes(rec.EncryptedData)
		if err != nil {
			return nil, fmt.Errorf("stored submission %s is unreadable: %w", rec.ID, err)
		}
		armored, err := msg.Armor()
		if err != nil {
			return nil, err
		}
		out = append(out, ExportedSubmission{ID: rec.ID, CreatedAt: rec.CreatedAt, Armored: armored})
	}
	manifest := map[string]any{
		"version":    1,
		"type":       "e2ee-submissions",
		"form_id":    formID,
		"count":      len(out),
		"created_at": s.now().Format(time.RFC3339),
	}
	mb, err := json.Marshal(manifest)
	if err != nil {
		return nil, err
	}
	sig := ""
	if s.sign != nil {
		if sig, err = s.sign(mb); err != nil {
			return nil, err
		}
	}
	h := sha256.Sum256(mb)
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: actor, Action: "export_submissions", Target: formID, Note: base64.StdEncoding.EncodeToString(h[:])})
	return &ExportBundle{Manifest: manifest, Signature: sig, Submissions: out}, nil
}

// RecipientCerts returns the armored public certificates a form filler
// should encrypt to: every key registered in the form's org. Expired keys
// are included here; the client-side encryption path filters them under the
// policy, and shipping them costs nothing.
func (s *SubmissionService) RecipientCerts(formID string) ([]string, error) {
	form, err := s.store.GetForm(formID)
	if err != nil {
		return nil, err
	}
	if form == nil {
		return nil, NewNotFoundError("form not found")
	}
	if !form.E2EEEnabled {
		return nil, NewInvalidError("form does not accept encrypted submissions")
	}
	keys, err := s.store.ListKeysWithOwner(form.OrgID)
	if err != nil {
		return nil, err
	}
	certs := make([]string, 0, len(keys))
	for _, kw := range keys {
		cert, err := pgp.ParsePublicCertBytes(kw.Key.PublicKey)
		if err != nil {
			continue
		}
		armored, err := cert.Armor()
		if err != nil {
			continue
		}
		certs = append(certs, armored)
	}
	return certs, nil
}

func (s *SubmissionService) submissionForOrg(orgID, submissionID string) (*SubmissionRecord, *Form, error) {
	rec, err := s.store.GetSubmission(submissionID)
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, NewNotFoundError("submission not found")
	}
	form, err := s.store.GetForm(rec.FormID)
	if err != nil {
		return nil, nil, err
	}
	if form == nil || form.OrgID != orgID {
		return nil, nil, NewForbiddenError("forbidden")
	}
	return rec, form, nil
}

func formatKeyHandle(h uint64) string {
	return fmt.Sprintf("%016X", h)
}
