package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

const (
	DefaultIssuer   = "confreg"
	DefaultTokenTTL = 24 * time.Hour
)

// Claims represents JWT claims issued at login.
type Claims struct {
	Kind                  Kind   `json:"kind"`
	Role                  Role   `json:"role"`
	Username              string `json:"username"`
	Name                  string `json:"name,omitempty"`
	Email                 string `json:"email,omitempty"`
	Organization          string `json:"organization,omitempty"`
	OrganizationShortCode string `json:"organization_short_code,omitempty"`
	ProfileImage          string `json:"profile_image,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the account snapshot embedded into a token.
type Identity struct {
	ID                    int64
	Kind                  Kind
	Role                  Role
	Username              string
	Name                  string
	Email                 string
	Organization          string
	OrganizationShortCode string
	ProfileImage          string
}

// Principal extracts the identity the gate works with.
func (c *Claims) Principal() (Principal, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Principal{}, ErrInvalidToken
	}
	if !c.Kind.Valid() {
		return Principal{}, ErrInvalidToken
	}
	return Principal{
		ID:                    id,
		Kind:                  c.Kind,
		Role:                  c.Role,
		Username:              c.Username,
		OrganizationShortCode: c.OrganizationShortCode,
	}, nil
}

// TokenIssuer signs and verifies HS256 bearer tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

type TokenOption func(*TokenIssuer)

func WithIssuer(name string) TokenOption {
	return func(t *TokenIssuer) {
		if name = strings.TrimSpace(name); name != "" {
			t.issuer = name
		}
	}
}

func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(t *TokenIssuer) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithClock overrides the time source used for iat/exp.
func WithClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTokenIssuer fails with ErrMissingSecret when secret is blank.
func NewTokenIssuer(secret string, opts ...TokenOption) (*TokenIssuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, oops.Code("AUTH_SECRET_MISSING").Wrap(ErrMissingSecret)
	}
	t := &TokenIssuer{
		secret: []byte(secret),
		issuer: DefaultIssuer,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Issue signs a token for id and returns it with its expiry.
func (t *TokenIssuer) Issue(id Identity) (string, time.Time, error) {
	if id.ID <= 0 || !id.Kind.Valid() {
		return "", time.Time{}, oops.Code("AUTH_TOKEN_IDENTITY").Wrapf(ErrInvalidInput, "identity requires id and kind")
	}
	now := t.now().UTC()
	expires := now.Add(t.ttl)
	claims := Claims{
		Kind:                  id.Kind,
		Role:                  id.Role,
		Username:              id.Username,
		Name:                  id.Name,
		Email:                 id.Email,
		Organization:          id.Organization,
		OrganizationShortCode: id.OrganizationShortCode,
		ProfileImage:          id.ProfileImage,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   strconv.FormatInt(id.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks signature, issuer and expiry. Any failure is ErrInvalidToken.
func (t *TokenIssuer) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_INVALID").Wrap(fmt.Errorf("%w: %v", ErrInvalidToken, err))
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TTL reports how long issued tokens live.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }
