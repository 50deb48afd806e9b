package registry

import (
	"context"
	"errors"

	"confreg.org/internal/auth"
)

// ResolveCreator looks up the account behind ref. A dangling reference
// yields (nil, nil); only store failures are errors.
func ResolveCreator(ctx context.Context, store Store, ref CreatorRef) (*Creator, error) {
	switch ref.Kind {
	case CreatorAdmin:
		a, err := store.Admins().Get(ctx, ref.ID)
		if errors.Is(err, auth.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &Creator{Type: CreatorAdmin, ID: a.ID, Name: a.Fullname, Email: a.Email, Username: a.Username}, nil
	case CreatorUser:
		u, err := store.Users().Get(ctx, ref.ID)
		if errors.Is(err, auth.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &Creator{
			Type:                  CreatorUser,
			ID:                    u.ID,
			Name:                  u.ContactPerson,
			Email:                 u.ContactPersonEmail,
			Username:              u.Username,
			Organization:          u.Organization,
			OrganizationShortCode: u.OrganizationShortCode,
		}, nil
	}
	return nil, nil
}

// creatorCache memoises lookups while building a list response.
type creatorCache struct {
	store Store
	seen  map[CreatorRef]*Creator
}

func newCreatorCache(store Store) *creatorCache {
	return &creatorCache{store: store, seen: make(map[CreatorRef]*Creator)}
}

func (c *creatorCache) view(ctx context.Context, a *Attendee) (AttendeeView, error) {
	if cr, ok := c.seen[a.CreatedBy]; ok {
		return AttendeeView{Attendee: a, CreatedBy: cr}, nil
	}
	cr, err := ResolveCreator(ctx, c.store, a.CreatedBy)
	if err != nil {
		return AttendeeView{}, err
	}
	c.seen[a.CreatedBy] = cr
	return AttendeeView{Attendee: a, CreatedBy: cr}, nil
}
