package api

import (
	"sync"

	"github.com/formvault/formvault/internal/services"
)

// Store is everything the services need from persistence. Implemented by
// the in-memory store below and by the SQLite store in internal/db.
type Store interface {
	services.AuthStore
	services.FormStore
	services.KeyStore
	services.SubmissionStore
}

type memoryStore struct {
	mu          sync.RWMutex
	orgs        map[string]*services.Org
	users       map[string]*services.User
	forms       map[string]*services.Form
	keys        map[string]*services.KeyRecord
	submissions map[string]*services.SubmissionRecord
	audit       []services.AuditEntry
}

var _ Store = (*memoryStore)(nil)

func NewMemoryStore() Store { return newMemoryStore() }

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orgs:        map[string]*services.Org{},
		users:       map[string]*services.User{},
		forms:       map[string]*services.Form{},
		keys:        map[string]*services.KeyRecord{},
		submissions: map[string]*services.SubmissionRecord{},
	}
}

func (s *memoryStore) AddOrg(o *services.Org) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[o.ID] = o
	return nil
}

func (s *memoryStore) AddUser(u *services.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *memoryStore) GetUser(id string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[id], nil
}

func (s *memoryStore) FindUserByEmail(email string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) InsertForm(f *services.Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forms[f.ID] = f
	return nil
}

func (s *memoryStore) GetForm(id string) (*services.Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forms[id], nil
}

func (s *memoryStore) ListFormsByOrg(orgID string) ([]*services.Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*services.Form
	for _, f := range s.forms {
		if f.OrgID == orgID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *memoryStore) InsertKeyRecord(k *services.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.keys {
		if r.Fingerprint == k.Fingerprint {
			return services.NewConflictError("a key with this fingerprint is already registered")
		}
	}
	s.keys[k.ID] = k
	return nil
}

func (s *memoryStore) GetKeyRecord(id string) (*services.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[id], nil
}

func (s *memoryStore) FindKeyByFingerprint(fp string) (*services.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.keys {
		if r.Fingerprint == fp {
			return r, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) UpdateKeyBackup(id string, backup []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.keys[id]
	if !ok {
		return services.NewNotFoundError("key not found")
	}
	r.PrivateKeyBackup = backup
	return nil
}

func (s *memoryStore) DeleteKeyRecord(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, id)
	return nil
}

func (s *memoryStore) DeleteKeysForUserInOrg(userID, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.keys {
		if r.UserID == userID && r.OrgID == orgID {
			delete(s.keys, id)
		}
	}
	return nil
}

func (s *memoryStore) ListKeysWithOwner(orgID string) ([]*services.KeyWithOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*services.KeyWithOwner
	for _, r := range s.keys {
		if r.OrgID != orgID {
			continue
		}
		kw := &services.KeyWithOwner{Key: r}
		if u := s.users[r.UserID]; u != nil {
			kw.OwnerName = u.Name
			kw.OwnerEmail = u.Email
		}
		out = append(out, kw)
	}
	return out, nil
}

func (s *memoryStore) InsertSubmission(r *services.SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[r.ID] = r
	return nil
}

func (s *memoryStore) GetSubmission(id string) (*services.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.submissions[id], nil
}

func (s *memoryStore) ListSubmissions(formID string) ([]*services.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*services.SubmissionRecord
	for _, r := range s.submissions {
		if r.FormID == formID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryStore) AddAudit(e services.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
}
