package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"confreg.org/internal/auth"
)

// InMemory implements Store with in-process concurrency safety. It backs
// tests and local runs without a database.
type InMemory struct {
	mu     sync.RWMutex
	now    func() time.Time
	seq    map[string]int64
	admins map[int64]Admin
	users  map[int64]User
	atts   map[int64]Attendee
	orgs   map[int64]Organization
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		now:    func() time.Time { return time.Now().UTC() },
		seq:    make(map[string]int64),
		admins: make(map[int64]Admin),
		users:  make(map[int64]User),
		atts:   make(map[int64]Attendee),
		orgs:   make(map[int64]Organization),
	}
}

func (m *InMemory) Admins() AdminStore               { return memAdmins{m} }
func (m *InMemory) Users() UserStore                 { return memUsers{m} }
func (m *InMemory) Attendees() AttendeeStore         { return memAttendees{m} }
func (m *InMemory) Organizations() OrganizationStore { return memOrganizations{m} }
func (m *InMemory) Ping(context.Context) error       { return nil }

func (m *InMemory) next(table string) int64 {
	m.seq[table]++
	return m.seq[table]
}

func sameFold(a, b string) bool { return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) }

func descending[T any](items map[int64]T) []int64 {
	ids := make([]int64, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids
}

type memAdmins struct{ m *InMemory }

func (s memAdmins) Create(_ context.Context, a *Admin) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.admins {
		if sameFold(existing.Email, a.Email) {
			return Conflict("email", "email already registered")
		}
		if existing.Username == a.Username {
			return Conflict("username", "username already taken")
		}
	}
	now := s.m.now()
	a.ID = s.m.next("admins")
	a.CreatedAt, a.UpdatedAt = now, now
	s.m.admins[a.ID] = *a
	return nil
}

func (s memAdmins) Get(_ context.Context, id int64) (*Admin, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	a, ok := s.m.admins[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &a, nil
}

func (s memAdmins) FindByLogin(_ context.Context, login string) (*Admin, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, a := range s.m.admins {
		if a.Username == login || sameFold(a.Email, login) {
			return &a, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s memAdmins) UpdatePassword(_ context.Context, id int64, hash string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.admins[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.PasswordHash = hash
	a.UpdatedAt = s.m.now()
	s.m.admins[id] = a
	return nil
}

type memUsers struct{ m *InMemory }

func (s memUsers) Create(_ context.Context, u *User) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.users {
		if sameFold(existing.ContactPersonEmail, u.ContactPersonEmail) {
			return Conflict("contact_person_email", "email already registered")
		}
		if existing.OrganizationShortCode == u.OrganizationShortCode && existing.Username == u.Username {
			return Conflict("username", "username already taken for this organization")
		}
	}
	now := s.m.now()
	u.ID = s.m.next("users")
	u.CreatedAt, u.UpdatedAt = now, now
	s.m.users[u.ID] = *u
	return nil
}

func (s memUsers) Get(_ context.Context, id int64) (*User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	u, ok := s.m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

func (s memUsers) FindByLogin(_ context.Context, shortCode, username string) (*User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, u := range s.m.users {
		if u.OrganizationShortCode == shortCode && u.Username == username {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s memUsers) List(context.Context) ([]*User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]*User, 0, len(s.m.users))
	for _, id := range descending(s.m.users) {
		u := s.m.users[id]
		out = append(out, &u)
	}
	return out, nil
}

func (s memUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = s.m.now()
	s.m.users[id] = u
	return nil
}

func (s memUsers) Delete(_ context.Context, id int64) (*User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	delete(s.m.users, id)
	return &u, nil
}

type memAttendees struct{ m *InMemory }

func (s memAttendees) Create(_ context.Context, a *Attendee) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.atts {
		if sameFold(existing.Email, a.Email) {
			return Conflict("email", "attendee with this email already exists")
		}
	}
	now := s.m.now()
	a.ID = s.m.next("attendees")
	a.CreatedAt, a.UpdatedAt = now, now
	if a.RegisteredAt.IsZero() {
		a.RegisteredAt = now
	}
	s.m.atts[a.ID] = *a
	return nil
}

func (s memAttendees) Get(_ context.Context, id int64) (*Attendee, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	a, ok := s.m.atts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &a, nil
}

func (s memAttendees) List(_ context.Context, f AttendeeFilter) ([]*Attendee, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]*Attendee, 0, len(s.m.atts))
	for _, id := range descending(s.m.atts) {
		a := s.m.atts[id]
		if f.CreatedBy != nil && a.CreatedBy != *f.CreatedBy {
			continue
		}
		out = append(out, &a)
	}
	return out, nil
}

func (s memAttendees) Delete(_ context.Context, id int64) (*Attendee, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	a, ok := s.m.atts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	delete(s.m.atts, id)
	return &a, nil
}

type memOrganizations struct{ m *InMemory }

func (s memOrganizations) checkUnique(o Organization) error {
	if o.Abbreviation == nil {
		return nil
	}
	for id, existing := range s.m.orgs {
		if id != o.ID && existing.Abbreviation != nil && sameFold(*existing.Abbreviation, *o.Abbreviation) {
			return Conflict("abbreviation", "organization abbreviation already exists")
		}
	}
	return nil
}

func (s memOrganizations) checkParent(parent *int64) error {
	if parent == nil {
		return nil
	}
	if _, ok := s.m.orgs[*parent]; !ok {
		return Invalid("parent_id", "parent organization does not exist")
	}
	return nil
}

func (s memOrganizations) Create(_ context.Context, o *Organization) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.checkUnique(*o); err != nil {
		return err
	}
	if err := s.checkParent(o.ParentID); err != nil {
		return err
	}
	now := s.m.now()
	o.ID = s.m.next("organizations")
	o.CreatedAt, o.UpdatedAt = now, now
	s.m.orgs[o.ID] = *o
	return nil
}

func (s memOrganizations) Get(_ context.Context, id int64) (*Organization, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	o, ok := s.m.orgs[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &o, nil
}

func (s memOrganizations) List(context.Context) ([]*Organization, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]*Organization, 0, len(s.m.orgs))
	for _, id := range descending(s.m.orgs) {
		o := s.m.orgs[id]
		out = append(out, &o)
	}
	return out, nil
}

func (s memOrganizations) Update(_ context.Context, id int64, upd OrganizationUpdate) (*Organization, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	o, ok := s.m.orgs[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if upd.Name != nil {
		o.Name = *upd.Name
	}
	if upd.Abbreviation != nil {
		o.Abbreviation = optional(upd.Abbreviation)
	}
	if upd.Type != nil {
		o.Type = *upd.Type
	}
	switch {
	case upd.ClearParent:
		o.ParentID = nil
	case upd.ParentID != nil:
		if err := s.checkParent(upd.ParentID); err != nil {
			return nil, err
		}
		p := *upd.ParentID
		o.ParentID = &p
	}
	if err := s.checkUnique(o); err != nil {
		return nil, err
	}
	o.UpdatedAt = s.m.now()
	s.m.orgs[id] = o
	return &o, nil
}

func (s memOrganizations) Delete(_ context.Context, id int64) (*Organization, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	o, ok := s.m.orgs[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	delete(s.m.orgs, id)
	for cid, child := range s.m.orgs {
		if child.ParentID != nil && *child.ParentID == id {
			child.ParentID = nil
			s.m.orgs[cid] = child
		}
	}
	return &o, nil
}
