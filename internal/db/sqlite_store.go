package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/formvault/formvault/internal/api"
	"github.com/formvault/formvault/internal/services"
)

// SQLiteStore persists everything the services need in a single SQLite
// database. All binary key and submission material is stored as BLOBs
// exactly as received; the store never parses it.
type SQLiteStore struct {
	db *sql.DB
}

var _ api.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func NewStore(db *sql.DB) (api.Store, error) {
	return NewSQLiteStore(db)
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// --- Orgs & users ---

func (s *SQLiteStore) AddOrg(o *services.Org) error {
	if o == nil {
		return errors.New("nil org")
	}
	_, err := s.db.Exec(`INSERT INTO orgs (id, name) VALUES (?, ?)`, o.ID, o.Name)
	return err
}

func (s *SQLiteStore) AddUser(u *services.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	_, err := s.db.Exec(`INSERT INTO users (id, email, name, pass_hash, org_id, created_at)
      VALUES (?, ?, ?, ?, ?, ?)`, u.ID, u.Email, toNullString(u.Name), u.PassHash, u.OrgID, u.CreatedAt.UTC())
	if err != nil && isUniqueViolation(err) {
		return services.NewConflictError("an account with this email already exists")
	}
	return err
}

func (s *SQLiteStore) GetUser(id string) (*services.User, error) {
	row := s.db.QueryRow(`SELECT id, email, name, pass_hash, org_id, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *SQLiteStore) FindUserByEmail(email string) (*services.User, error) {
	row := s.db.QueryRow(`SELECT id, email, name, pass_hash, org_id, created_at FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*services.User, error) {
	var u services.User
	var name sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &name, &u.PassHash, &u.OrgID, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Name = name.String
	return &u, nil
}

// --- Forms ---

func (s *SQLiteStore) InsertForm(f *services.Form) error {
	if f == nil {
		return errors.New("nil form")
	}
	_, err := s.db.Exec(`INSERT INTO forms (id, org_id, name, e2ee_enabled, created_at)
      VALUES (?, ?, ?, ?, ?)`, f.ID, f.OrgID, f.Name, boolToInt(f.E2EEEnabled), f.CreatedAt.UTC())
	return err
}

func (s *SQLiteStore) GetForm(id string) (*services.Form, error) {
	row := s.db.QueryRow(`SELECT id, org_id, name, e2ee_enabled, created_at FROM forms WHERE id = ?`, id)
	var f services.Form
	var e2ee int64
	if err := row.Scan(&f.ID, &f.OrgID, &f.Name, &e2ee, &f.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	f.E2EEEnabled = e2ee != 0
	return &f, nil
}

func (s *SQLiteStore) ListFormsByOrg(orgID string) ([]*services.Form, error) {
	rows, err := s.db.Query(`SELECT id, org_id, name, e2ee_enabled, created_at
      FROM forms WHERE org_id = ? ORDER BY created_at ASC, id ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "ListFormsByOrg")
	var out []*services.Form
	for rows.Next() {
		var f services.Form
		var e2ee int64
		if err := rows.Scan(&f.ID, &f.OrgID, &f.Name, &e2ee, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.E2EEEnabled = e2ee != 0
		out = append(out, &f)
	}
	return out, rows.Err()
}

// --- Key records ---

func (s *SQLiteStore) InsertKeyRecord(k *services.KeyRecord) error {
	if k == nil {
		return errors.New("nil key record")
	}
	_, err := s.db.Exec(`INSERT INTO key_records (id, user_id, org_id, public_key, cert_fingerprint, private_key_backup, expires_at, created_at)
      VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.UserID, k.OrgID, k.PublicKey, k.Fingerprint, nullBytes(k.PrivateKeyBackup), k.ExpiresAt.UTC(), k.CreatedAt.UTC())
	if err != nil && isUniqueViolation(err) {
		return services.NewConflictError("a key with this fingerprint is already registered")
	}
	return err
}

func (s *SQLiteStore) GetKeyRecord(id string) (*services.KeyRecord, error) {
	row := s.db.QueryRow(`SELECT id, user_id, org_id, public_key, cert_fingerprint, private_key_backup, expires_at, created_at
      FROM key_records WHERE id = ?`, id)
	var k services.KeyRecord
	if err := row.Scan(&k.ID, &k.UserID, &k.OrgID, &k.PublicKey, &k.Fingerprint, &k.PrivateKeyBackup, &k.ExpiresAt, &k.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &k, nil
}

func (s *SQLiteStore) FindKeyByFingerprint(fp string) (*services.KeyRecord, error) {
	row := s.db.QueryRow(`SELECT id FROM key_records WHERE cert_fingerprint = ?`, fp)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s.GetKeyRecord(id)
}

func (s *SQLiteStore) UpdateKeyBackup(id string, backup []byte) error {
	res, err := s.db.Exec(`UPDATE key_records SET private_key_backup = ? WHERE id = ?`, nullBytes(backup), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return services.NewNotFoundError("key not found")
	}
	return err
}

func (s *SQLiteStore) DeleteKeyRecord(id string) error {
	_, err := s.db.Exec(`DELETE FROM key_records WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) DeleteKeysForUserInOrg(userID, orgID string) error {
	_, err := s.db.Exec(`DELETE FROM key_records WHERE user_id = ? AND org_id = ?`, userID, orgID)
	return err
}

func (s *SQLiteStore) ListKeysWithOwner(orgID string) ([]*services.KeyWithOwner, error) {
	rows, err := s.db.Query(`SELECT k.id, k.user_id, k.org_id, k.public_key, k.cert_fingerprint, k.private_key_backup, k.expires_at, k.created_at,
        COALESCE(u.name, ''), u.email
      FROM key_records k JOIN users u ON u.id = k.user_id
      WHERE k.org_id = ? ORDER BY k.created_at ASC, k.id ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "ListKeysWithOwner")
	var out []*services.KeyWithOwner
	for rows.Next() {
		var k services.KeyRecord
		var name, email string
		if err := rows.Scan(&k.ID, &k.UserID, &k.OrgID, &k.PublicKey, &k.Fingerprint, &k.PrivateKeyBackup, &k.ExpiresAt, &k.CreatedAt, &name, &email); err != nil {
			return nil, err
		}
		out = append(out, &services.KeyWithOwner{Key: &k, OwnerName: name, OwnerEmail: email})
	}
	return out, rows.Err()
}

// --- Submissions ---

func (s *SQLiteStore) InsertSubmission(r *services.SubmissionRecord) error {
	if r == nil {
		return errors.New("nil submission")
	}
	_, err := s.db.Exec(`INSERT INTO submissions (id, form_id, encrypted_data, self_token, created_at)
      VALUES (?, ?, ?, ?, ?)`, r.ID, r.FormID, r.EncryptedData, toNullString(r.SelfToken), r.CreatedAt.UTC())
	return err
}

func (s *SQLiteStore) GetSubmission(id string) (*services.SubmissionRecord, error) {
	row := s.db.QueryRow(`SELECT id, form_id, encrypted_data, self_token, created_at FROM submissions WHERE id = ?`, id)
	var r services.SubmissionRecord
	var token sql.NullString
	if err := row.Scan(&r.ID, &r.FormID, &r.EncryptedData, &token, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	r.SelfToken = token.String
	return &r, nil
}

func (s *SQLiteStore) ListSubmissions(formID string) ([]*services.SubmissionRecord, error) {
	rows, err := s.db.Query(`SELECT id, form_id, encrypted_data, self_token, created_at
      FROM submissions WHERE form_id = ? ORDER BY created_at ASC, id ASC`, formID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "ListSubmissions")
	var out []*services.SubmissionRecord
	for rows.Next() {
		var r services.SubmissionRecord
		var token sql.NullString
		if err := rows.Scan(&r.ID, &r.FormID, &r.EncryptedData, &token, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.SelfToken = token.String
		out = append(out, &r)
	}
	return out, rows.Err()
}

// --- Audit log ---

func (s *SQLiteStore) AddAudit(e services.AuditEntry) {
	_, err := s.db.Exec(`INSERT INTO audit_log (ts, actor, action, target, note)
      VALUES (?, ?, ?, ?, ?)`, e.Time.UTC(), e.Actor, e.Action, toNullString(e.Target), toNullString(e.Note))
	if err != nil {
		log.Printf("sqlite store: AddAudit: %v", err)
	}
}

func (s *SQLiteStore) ListAudit(limit int) ([]services.AuditEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.Query(`SELECT ts, actor, action, target, note FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "ListAudit")
	var out []services.AuditEntry
	for rows.Next() {
		var e services.AuditEntry
		var target, note sql.NullString
		if err := rows.Scan(&e.Time, &e.Actor, &e.Action, &target, &note); err != nil {
			return nil, err
		}
		e.Target = target.String
		e.Note = note.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

// nullBytes maps an empty backup to NULL so "no backup" is distinguishable
// in the schema.
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		log.Printf("sqlite store: %s: rows.Close: %v", what, err)
	}
}
