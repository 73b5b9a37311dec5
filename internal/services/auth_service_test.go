package services

import (
	"testing"
	"time"
)

type stubAuthStore struct {
	users map[string]*User
	orgs  map[string]*Org
}

func newStubAuthStore() *stubAuthStore {
	return &stubAuthStore{users: map[string]*User{}, orgs: map[string]*Org{}}
}

func (s *stubAuthStore) FindUserByEmail(email string) (*User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (s *stubAuthStore) GetUser(id string) (*User, error) { return s.users[id], nil }

func (s *stubAuthStore) AddUser(u *User) error {
	s.users[u.ID] = u
	return nil
}

func (s *stubAuthStore) AddOrg(o *Org) error {
	s.orgs[o.ID] = o
	return nil
}

func testSigner(uid, oid, email string, ttl time.Duration) (string, error) {
	return uid + ":" + oid, nil
}

func TestAuthRegisterAndLogin(t *testing.T) {
	store := newStubAuthStore()
	svc := NewAuthService(store, testSigner)

	res, err := svc.Register("a@example.org", "pass123", "Alice", "Acme Research")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.Token == "" || res.OrgID == "" || res.UserID == "" {
		t.Fatalf("incomplete result: %+v", res)
	}
	if _, err := svc.Register("a@example.org", "pass123", "Alice", "Acme"); err == nil {
		t.Fatalf("expected conflict for duplicate email")
	}

	login, err := svc.Login("a@example.org", "pass123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.OrgID != res.OrgID || login.UserID != res.UserID {
		t.Fatalf("login identity mismatch: %+v vs %+v", login, res)
	}
	if _, err := svc.Login("a@example.org", "wrong"); err == nil {
		t.Fatalf("expected unauthorized for wrong password")
	}
}

func TestAuthValidation(t *testing.T) {
	svc := NewAuthService(newStubAuthStore(), testSigner)
	if _, err := svc.Register("", "x", "", ""); err == nil {
		t.Fatalf("expected invalid for missing email")
	}
	if _, err := svc.Login("nobody@example.org", "x"); err == nil {
		t.Fatalf("expected unauthorized for unknown user")
	}
}
