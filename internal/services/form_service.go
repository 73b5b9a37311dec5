package services

import "time"

type FormStore interface {
	InsertForm(f *Form) error
	GetForm(id string) (*Form, error)
	ListFormsByOrg(orgID string) ([]*Form, error)
}

// FormService covers the minimal form records intake needs to scope
// submissions to. Question content is authored client-side and never stored
// here.
type FormService struct {
	store FormStore
	now   func() time.Time
}

func NewFormService(store FormStore) *FormService {
	return &FormService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (s *FormService) Create(orgID, name string, e2ee bool) (*Form, error) {
	if orgID == "" {
		return nil, NewForbiddenError("unauthorized")
	}
	if name == "" {
		return nil, NewInvalidError("name required")
	}
	f := &Form{
		ID:          "f" + shortID(11),
		OrgID:       orgID,
		Name:        name,
		E2EEEnabled: e2ee,
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertForm(f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *FormService) Get(id string) (*Form, error) {
	f, err := s.store.GetForm(id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, NewNotFoundError("form not found")
	}
	return f, nil
}

func (s *FormService) ListByOrg(orgID string) ([]*Form, error) {
	if orgID == "" {
		return nil, NewForbiddenError("unauthorized")
	}
	return s.store.ListFormsByOrg(orgID)
}
