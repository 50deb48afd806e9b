package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confreg.org/internal/auth"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newIssuer(t *testing.T, c *clock) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer("test-secret", auth.WithClock(c.Now))
	require.NoError(t, err)
	return issuer
}

func TestTokenRoundTrip(t *testing.T) {
	c := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	issuer := newIssuer(t, c)

	token, expires, err := issuer.Issue(auth.Identity{
		ID:                    42,
		Kind:                  auth.KindUser,
		Role:                  auth.RoleAgency,
		Username:              "jdoe",
		Organization:          "Federal Ministry of Works",
		OrganizationShortCode: "FMW",
	})
	require.NoError(t, err)
	assert.Equal(t, c.now.Add(24*time.Hour), expires)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, auth.DefaultIssuer, claims.Issuer)
	assert.Equal(t, auth.RoleAgency, claims.Role)
	assert.NotEmpty(t, claims.ID)

	p, err := claims.Principal()
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{ID: 42, Kind: auth.KindUser, Role: auth.RoleAgency, Username: "jdoe", OrganizationShortCode: "FMW"}, p)
}

func TestTokenExpiryBoundary(t *testing.T) {
	c := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	issuer := newIssuer(t, c)
	token, _, err := issuer.Issue(auth.Identity{ID: 1, Kind: auth.KindAdmin, Role: auth.RoleSuperAdmin})
	require.NoError(t, err)

	start := c.now
	c.now = start.Add(23*time.Hour + 59*time.Minute)
	_, err = issuer.Verify(token)
	require.NoError(t, err)

	c.now = start.Add(24*time.Hour + time.Minute)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenRejections(t *testing.T) {
	c := &clock{now: time.Now()}
	issuer := newIssuer(t, c)
	token, _, err := issuer.Issue(auth.Identity{ID: 7, Kind: auth.KindUser, Role: auth.RoleMinistry})
	require.NoError(t, err)

	t.Run("other secret", func(t *testing.T) {
		other, err := auth.NewTokenIssuer("another-secret", auth.WithClock(c.Now))
		require.NoError(t, err)
		_, err = other.Verify(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("other issuer", func(t *testing.T) {
		other, err := auth.NewTokenIssuer("test-secret", auth.WithClock(c.Now), auth.WithIssuer("elsewhere"))
		require.NoError(t, err)
		_, err = other.Verify(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("swapped payload", func(t *testing.T) {
		other, _, err := issuer.Issue(auth.Identity{ID: 8, Kind: auth.KindAdmin, Role: auth.RoleSuperAdmin})
		require.NoError(t, err)
		a, b := strings.Split(token, "."), strings.Split(other, ".")
		forged := strings.Join([]string{a[0], b[1], a[2]}, ".")
		_, err = issuer.Verify(forged)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Issuer:    auth.DefaultIssuer,
			Subject:   "7",
			ExpiresAt: jwt.NewNumericDate(c.now.Add(time.Hour)),
		})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = issuer.Verify(raw)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := issuer.Verify("  ")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
}

func TestTokenIssuerConfig(t *testing.T) {
	_, err := auth.NewTokenIssuer("   ")
	assert.ErrorIs(t, err, auth.ErrMissingSecret)

	issuer, err := auth.NewTokenIssuer("s", auth.WithTokenTTL(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, issuer.TTL())

	_, _, err = issuer.Issue(auth.Identity{Kind: auth.KindUser})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestClaimsPrincipalRejectsBadSubject(t *testing.T) {
	claims := &auth.Claims{Kind: auth.KindUser, RegisteredClaims: jwt.RegisteredClaims{Subject: "abc"}}
	_, err := claims.Principal()
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	claims = &auth.Claims{Kind: "robot", RegisteredClaims: jwt.RegisteredClaims{Subject: "3"}}
	_, err = claims.Principal()
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
