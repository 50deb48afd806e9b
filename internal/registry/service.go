package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"
	"go.uber.org/zap"

	"confreg.org/internal/auth"
)

// TokenMinter signs bearer tokens for authenticated accounts.
type TokenMinter interface {
	Issue(id auth.Identity) (string, time.Time, error)
}

// Notifier delivers welcome messages. Calls must not block the caller and
// delivery failures are never reported back.
type Notifier interface {
	UserCreated(u *User, password string)
	AttendeeRegistered(a *Attendee, password string)
}

type nopNotifier struct{}

func (nopNotifier) UserCreated(*User, string)            {}
func (nopNotifier) AttendeeRegistered(*Attendee, string) {}

// Service implements the registration workflows on top of a Store.
type Service struct {
	store    Store
	hasher   auth.PasswordHasher
	tokens   TokenMinter
	notifier Notifier
	policy   auth.PasswordPolicy
	log      *zap.Logger
	tempPass func() (string, error)

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*Service)

func WithHasher(h auth.PasswordHasher) Option {
	return func(s *Service) {
		if h != nil {
			s.hasher = h
		}
	}
}

func WithTokenMinter(t TokenMinter) Option {
	return func(s *Service) { s.tokens = t }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithPasswordPolicy(p auth.PasswordPolicy) Option {
	return func(s *Service) { s.policy = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTempPasswordGenerator replaces the attendee temporary password source.
func WithTempPasswordGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		if gen != nil {
			s.tempPass = gen
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		hasher:   auth.NewArgon2idHasher(),
		notifier: nopNotifier{},
		policy:   auth.DefaultPasswordPolicy,
		log:      zap.NewNop(),
		tempPass: TempPassword,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentRole implements auth.RoleSource.
func (s *Service) CurrentRole(ctx context.Context, kind auth.Kind, id int64) (auth.Role, error) {
	return principalRoles{store: s.store}.CurrentRole(ctx, kind, id)
}

func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// TempPassword returns ten lowercase hex characters from five random bytes.
func TempPassword() (string, error) {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("TEMP_PASSWORD_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

type LoginRequest struct {
	OrganizationShortCode string `json:"organization_short_code"`
	Username              string `json:"username"`
	Password              string `json:"password"`
}

type AdminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserSession struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

type AdminSession struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Admin     *Admin    `json:"admin"`
}

// LoginUser authenticates an organization account. A missing account and a
// wrong password both yield auth.ErrInvalidCredentials.
func (s *Service) LoginUser(ctx context.Context, req LoginRequest) (*UserSession, error) {
	var v validator
	v.required("organization_short_code", req.OrganizationShortCode, "Organization short code is required")
	v.required("username", req.Username, "Username is required")
	v.required("password", req.Password, "Password is required")
	if err := v.err(); err != nil {
		return nil, err
	}

	u, err := s.store.Users().FindByLogin(ctx, strings.TrimSpace(req.OrganizationShortCode), strings.TrimSpace(req.Username))
	if errors.Is(err, auth.ErrNotFound) {
		s.burnVerify(req.Password)
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, oops.Code("STORE_FAILED").With("operation", "find user for login").Wrap(err)
	}
	if err := s.checkPassword(u.PasswordHash, req.Password, auth.KindUser, u.ID); err != nil {
		if errors.Is(err, auth.ErrIncorrectPassword) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}

	token, exp, err := s.issue(userIdentity(u))
	if err != nil {
		return nil, err
	}
	return &UserSession{Token: token, ExpiresAt: exp, User: u}, nil
}

// LoginAdmin authenticates an administrator by username or email.
func (s *Service) LoginAdmin(ctx context.Context, req AdminLoginRequest) (*AdminSession, error) {
	var v validator
	v.required("username", req.Username, "Username is required")
	v.required("password", req.Password, "Password is required")
	if err := v.err(); err != nil {
		return nil, err
	}

	a, err := s.store.Admins().FindByLogin(ctx, strings.TrimSpace(req.Username))
	if errors.Is(err, auth.ErrNotFound) {
		s.burnVerify(req.Password)
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, oops.Code("STORE_FAILED").With("operation", "find admin for login").Wrap(err)
	}
	if err := s.checkPassword(a.PasswordHash, req.Password, auth.KindAdmin, a.ID); err != nil {
		if errors.Is(err, auth.ErrIncorrectPassword) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}

	token, exp, err := s.issue(adminIdentity(a))
	if err != nil {
		return nil, err
	}
	return &AdminSession{Token: token, ExpiresAt: exp, Admin: a}, nil
}

func (s *Service) issue(id auth.Identity) (string, time.Time, error) {
	if s.tokens == nil {
		return "", time.Time{}, oops.Code("AUTH_SECRET_MISSING").Wrap(auth.ErrMissingSecret)
	}
	return s.tokens.Issue(id)
}

// checkPassword returns auth.ErrIncorrectPassword on mismatch and
// auth.ErrCorruptCredential when the stored hash is unusable.
func (s *Service) checkPassword(hash, password string, kind auth.Kind, id int64) error {
	ok, err := s.hasher.Verify(hash, password)
	if errors.Is(err, auth.ErrCorruptCredential) {
		s.log.Error("stored password hash is not argon2",
			zap.String("kind", string(kind)),
			zap.Int64("account_id", id),
		)
		return err
	}
	if err != nil {
		return oops.Code("PASSWORD_VERIFY_FAILED").Wrap(err)
	}
	if !ok {
		return auth.ErrIncorrectPassword
	}
	return nil
}

// burnVerify spends roughly one verification so unknown accounts take as
// long to reject as wrong passwords.
func (s *Service) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("confreg-timing-equaliser")
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(s.dummyHash, password)
	}
}

func userIdentity(u *User) auth.Identity {
	id := auth.Identity{
		ID:                    u.ID,
		Kind:                  auth.KindUser,
		Role:                  u.Role,
		Username:              u.Username,
		Name:                  u.ContactPerson,
		Email:                 u.ContactPersonEmail,
		Organization:          u.Organization,
		OrganizationShortCode: u.OrganizationShortCode,
	}
	if u.ProfileImage != nil {
		id.ProfileImage = *u.ProfileImage
	}
	return id
}

func adminIdentity(a *Admin) auth.Identity {
	id := auth.Identity{
		ID:       a.ID,
		Kind:     auth.KindAdmin,
		Role:     a.Role,
		Username: a.Username,
		Name:     a.Fullname,
		Email:    a.Email,
	}
	if a.ProfileImage != nil {
		id.ProfileImage = *a.ProfileImage
	}
	return id
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ChangePassword replaces the principal's password. Tokens issued before the
// change remain valid until they expire.
func (s *Service) ChangePassword(ctx context.Context, p auth.Principal, req ChangePasswordRequest) error {
	if p.ID <= 0 {
		return auth.ErrUnauthenticated
	}
	if req.NewPassword != req.ConfirmPassword {
		return auth.ErrPasswordMismatch
	}
	var v validator
	v.required("currentPassword", req.CurrentPassword, "Current password is required")
	for _, msg := range s.policy.Violations(req.NewPassword) {
		v.add("newPassword", msg)
	}
	v.required("confirmPassword", req.ConfirmPassword, "Confirm password is required")
	if err := v.err(); err != nil {
		return err
	}

	var (
		hash   string
		update func(context.Context, int64, string) error
	)
	switch p.Kind {
	case auth.KindAdmin:
		a, err := s.store.Admins().Get(ctx, p.ID)
		if err != nil {
			return s.accountLookupErr(err)
		}
		hash, update = a.PasswordHash, s.store.Admins().UpdatePassword
	case auth.KindUser:
		u, err := s.store.Users().Get(ctx, p.ID)
		if err != nil {
			return s.accountLookupErr(err)
		}
		hash, update = u.PasswordHash, s.store.Users().UpdatePassword
	default:
		return auth.ErrUnauthorized
	}

	if err := s.checkPassword(hash, req.CurrentPassword, p.Kind, p.ID); err != nil {
		return err
	}
	newHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}
	if err := update(ctx, p.ID, newHash); err != nil {
		return s.accountLookupErr(err)
	}
	return nil
}

func (s *Service) accountLookupErr(err error) error {
	if errors.Is(err, auth.ErrNotFound) {
		return auth.ErrNotFound
	}
	return oops.Code("STORE_FAILED").With("operation", "load account").Wrap(err)
}

// UserProfile returns the organization account behind p.
func (s *Service) UserProfile(ctx context.Context, p auth.Principal) (*User, error) {
	if p.ID <= 0 || p.Kind != auth.KindUser {
		return nil, auth.ErrUnauthenticated
	}
	u, err := s.store.Users().Get(ctx, p.ID)
	if err != nil {
		return nil, s.accountLookupErr(err)
	}
	return u, nil
}

// AdminProfile returns the administrator behind p.
func (s *Service) AdminProfile(ctx context.Context, p auth.Principal) (*Admin, error) {
	if p.ID <= 0 || p.Kind != auth.KindAdmin {
		return nil, auth.ErrUnauthenticated
	}
	a, err := s.store.Admins().Get(ctx, p.ID)
	if err != nil {
		return nil, s.accountLookupErr(err)
	}
	return a, nil
}
