package services

import "time"

// Org is a workspace owning forms and recipient keys.
type Org struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	PassHash  []byte    `json:"-"`
	OrgID     string    `json:"org_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Form is the scoping record for submissions. Question authoring lives
// elsewhere; intake only needs to know the form exists and takes encrypted
// submissions.
type Form struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id,omitempty"`
	Name        string    `json:"name"`
	E2EEEnabled bool      `json:"e2ee_enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// KeyRecord is a registered recipient public key. PublicKey holds the
// binary certificate encoding; Fingerprint is the uppercase hex primary-key
// fingerprint and is unique across the whole system. PrivateKeyBackup, when
// present, is an owner-supplied secret-certificate blob the server stores
// but can never open.
type KeyRecord struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	OrgID            string    `json:"org_id"`
	PublicKey        []byte    `json:"-"`
	Fingerprint      string    `json:"fingerprint"`
	PrivateKeyBackup []byte    `json:"-"`
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// KeyWithOwner pairs a key record with its owner's display identity for
// listing.
type KeyWithOwner struct {
	Key        *KeyRecord `json:"key"`
	OwnerName  string     `json:"owner_name,omitempty"`
	OwnerEmail string     `json:"owner_email"`
}

// SubmissionRecord is a stored encrypted submission. EncryptedData is the
// raw binary message; the server never holds a key that opens it.
type SubmissionRecord struct {
	ID            string    `json:"id"`
	FormID        string    `json:"form_id"`
	EncryptedData []byte    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	SelfToken     string    `json:"-"`
}

type AuditEntry struct {
	Time   time.Time
	Actor  string
	Action string
	Target string
	Note   string
}
