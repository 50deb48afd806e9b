package registry

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"

	"confreg.org/internal/auth"
)

const minUserPasswordLength = 6

type CreateUserRequest struct {
	Organization          string  `json:"organization"`
	OrganizationShortCode string  `json:"organization_short_code"`
	ContactPerson         string  `json:"contact_person"`
	ContactPersonEmail    string  `json:"contact_person_email"`
	Username              string  `json:"username"`
	Password              string  `json:"password"`
	ProfileImage          *string `json:"profile_image"`
	Role                  string  `json:"role"`
}

// CreateUser registers an organization account and sends its welcome email.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	var v validator
	v.required("organization", req.Organization, "Organization is required")
	v.required("organization_short_code", req.OrganizationShortCode, "Organization short code is required")
	v.required("contact_person", req.ContactPerson, "Contact person is required")
	v.email("contact_person_email", req.ContactPersonEmail)
	v.required("username", req.Username, "Username is required")
	if len([]rune(req.Password)) < minUserPasswordLength {
		v.add("password", "Password must be at least 6 characters long")
	}
	role := auth.RoleMinistry
	if strings.TrimSpace(req.Role) != "" {
		r, ok := auth.ParseRole(req.Role)
		if !ok || r == auth.RoleSuperAdmin {
			v.add("role", "Role is not valid for an organization account")
		}
		role = r
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}
	u := &User{
		Organization:          strings.TrimSpace(req.Organization),
		OrganizationShortCode: strings.TrimSpace(req.OrganizationShortCode),
		ContactPerson:         strings.TrimSpace(req.ContactPerson),
		ContactPersonEmail:    strings.ToLower(strings.TrimSpace(req.ContactPersonEmail)),
		Username:              strings.TrimSpace(req.Username),
		ProfileImage:          optional(req.ProfileImage),
		Role:                  role,
		PasswordHash:          hash,
	}
	if err := s.store.Users().Create(ctx, u); err != nil {
		return nil, storeErr(err, "create user")
	}
	s.notifier.UserCreated(u, req.Password)
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	users, err := s.store.Users().List(ctx)
	if err != nil {
		return nil, storeErr(err, "list users")
	}
	return users, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	u, err := s.store.Users().Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "get user")
	}
	return u, nil
}

func (s *Service) DeleteUser(ctx context.Context, id int64) (*User, error) {
	u, err := s.store.Users().Delete(ctx, id)
	if err != nil {
		return nil, storeErr(err, "delete user")
	}
	return u, nil
}

type CreateAdminRequest struct {
	Fullname string
	Email    string
	Username string
	Password string
}

// CreateAdmin provisions a super administrator. It is reached only from the
// operator CLI, never over HTTP.
func (s *Service) CreateAdmin(ctx context.Context, req CreateAdminRequest) (*Admin, error) {
	var v validator
	v.required("fullname", req.Fullname, "Full name is required")
	v.email("email", req.Email)
	v.required("username", req.Username, "Username is required")
	for _, msg := range s.policy.Violations(req.Password) {
		v.add("password", msg)
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}
	a := &Admin{
		Fullname:     strings.TrimSpace(req.Fullname),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Username:     strings.TrimSpace(req.Username),
		Role:         auth.RoleSuperAdmin,
		PasswordHash: hash,
	}
	if err := s.store.Admins().Create(ctx, a); err != nil {
		return nil, storeErr(err, "create admin")
	}
	return a, nil
}

// storeErr passes domain errors through and tags everything else.
func storeErr(err error, op string) error {
	var (
		verr *ValidationError
		cerr *ConflictError
	)
	switch {
	case errors.Is(err, auth.ErrNotFound), errors.As(err, &verr), errors.As(err, &cerr):
		return err
	}
	return oops.Code("STORE_FAILED").With("operation", op).Wrap(err)
}
