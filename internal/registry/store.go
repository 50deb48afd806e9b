package registry

import (
	"context"

	"confreg.org/internal/auth"
)

// Store is the credential and registration store. Implementations return
// auth.ErrNotFound for missing rows and a *ConflictError (wrapping
// auth.ErrConflict) when a unique constraint rejects a write.
type Store interface {
	Admins() AdminStore
	Users() UserStore
	Attendees() AttendeeStore
	Organizations() OrganizationStore
	Ping(ctx context.Context) error
}

type AdminStore interface {
	Create(ctx context.Context, a *Admin) error
	Get(ctx context.Context, id int64) (*Admin, error)
	// FindByLogin matches either username or email.
	FindByLogin(ctx context.Context, login string) (*Admin, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

type UserStore interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id int64) (*User, error)
	FindByLogin(ctx context.Context, shortCode, username string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	Delete(ctx context.Context, id int64) (*User, error)
}

// AttendeeFilter narrows List; a nil CreatedBy lists every attendee.
type AttendeeFilter struct {
	CreatedBy *CreatorRef
}

type AttendeeStore interface {
	Create(ctx context.Context, a *Attendee) error
	Get(ctx context.Context, id int64) (*Attendee, error)
	List(ctx context.Context, f AttendeeFilter) ([]*Attendee, error)
	Delete(ctx context.Context, id int64) (*Attendee, error)
}

type OrganizationStore interface {
	Create(ctx context.Context, o *Organization) error
	Get(ctx context.Context, id int64) (*Organization, error)
	List(ctx context.Context) ([]*Organization, error)
	Update(ctx context.Context, id int64, upd OrganizationUpdate) (*Organization, error)
	Delete(ctx context.Context, id int64) (*Organization, error)
}

// principalRoles adapts a Store to auth.RoleSource.
type principalRoles struct{ store Store }

func (r principalRoles) CurrentRole(ctx context.Context, kind auth.Kind, id int64) (auth.Role, error) {
	switch kind {
	case auth.KindAdmin:
		a, err := r.store.Admins().Get(ctx, id)
		if err != nil {
			return "", err
		}
		return a.Role, nil
	case auth.KindUser:
		u, err := r.store.Users().Get(ctx, id)
		if err != nil {
			return "", err
		}
		return u.Role, nil
	}
	return "", auth.ErrNotFound
}
