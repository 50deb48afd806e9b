package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confreg.org/internal/auth"
	"confreg.org/internal/obs"
	"confreg.org/internal/registry"
)

const testSecret = "http-test-secret"

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *registry.InMemory
	svc     *registry.Service
	tokens  *auth.TokenIssuer
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	store := registry.NewInMemory()
	tokens, err := auth.NewTokenIssuer(testSecret)
	require.NoError(t, err)
	svc := registry.NewService(store,
		registry.WithHasher(auth.NewArgon2idHasherWithParams(1024, 1, 1)),
		registry.WithTokenMinter(tokens),
	)

	api := New(svc, tokens, obs.NewMetrics(), nil, Options{Version: "test", LoginRate: 100, LoginBurst: 100})
	h, err := api.Handler()
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, client: srv.Client(), store: store, svc: svc, tokens: tokens, t: t}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(c.t, err)
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	return resp
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(r.Body).Decode(&v))
	return v
}

type envelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func (c *apiClient) seedAdmin() string {
	c.t.Helper()
	_, err := c.svc.CreateAdmin(context.Background(), registry.CreateAdminRequest{
		Fullname: "Ada Admin", Email: "ada@example.gov", Username: "ada", Password: "Sup3r#Secret",
	})
	require.NoError(c.t, err)
	resp := c.do(http.MethodPost, "/v1/admin/auth/login", map[string]string{"username": "ada", "password": "Sup3r#Secret"}, "")
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	return decode[map[string]any](c.t, resp)["token"].(string)
}

func (c *apiClient) seedUser(adminToken, username, role string) (int64, string) {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/v1/admin/create-user", map[string]any{
		"organization": "Federal Ministry of Works", "organization_short_code": "FMW",
		"contact_person": "Jane Doe", "contact_person_email": username + "@fmw.gov",
		"username": username, "password": "123456", "role": role,
	}, adminToken)
	require.Equal(c.t, http.StatusCreated, resp.StatusCode)
	u := decode[envelope[registry.User]](c.t, resp).Data

	resp = c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"organization_short_code": "FMW", "username": username, "password": "123456",
	}, "")
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	return u.ID, decode[map[string]any](c.t, resp)["token"].(string)
}

func attendeeBody(email string) map[string]any {
	return map[string]any{
		"fullname": "Ngozi Eze", "email": email, "phone_number": "08031234567",
		"position": "Director", "grade": "GL-17", "organization": "Works",
		"department": "Planning", "department_agency": "PRS", "status": "Pending",
	}
}

func TestUserLoginProfileAndLogout(t *testing.T) {
	api := newTestAPI(t)
	admin := api.seedAdmin()
	_, token := api.seedUser(admin, "jane", "ministry")

	claims, err := api.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, auth.KindUser, claims.Kind)
	assert.Equal(t, auth.RoleMinistry, claims.Role)
	assert.Equal(t, "FMW", claims.OrganizationShortCode)

	resp := api.do(http.MethodGet, "/v1/auth/profile", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := decode[map[string]map[string]any](t, resp)["user"]
	assert.Equal(t, "jane", profile["username"])
	assert.NotContains(t, profile, "password")

	resp = api.do(http.MethodPost, "/v1/auth/logout", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cleared bool
	for _, c := range resp.Cookies() {
		if c.Name == tokenCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	resp.Body.Close()
	assert.True(t, cleared, "logout clears the jwt cookie")
}

func TestLoginFailuresAreUniform(t *testing.T) {
	api := newTestAPI(t)
	admin := api.seedAdmin()
	api.seedUser(admin, "jane", "ministry")

	wrongPassword := api.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"organization_short_code": "FMW", "username": "jane", "password": "nope",
	}, "")
	unknownUser := api.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"organization_short_code": "FMW", "username": "ghost", "password": "nope",
	}, "")
	require.Equal(t, http.StatusUnauthorized, wrongPassword.StatusCode)
	require.Equal(t, http.StatusUnauthorized, unknownUser.StatusCode)
	a := decode[errorBody](t, wrongPassword)
	b := decode[errorBody](t, unknownUser)
	a.RequestID, b.RequestID = "", ""
	assert.Equal(t, a, b)

	resp := api.do(http.MethodPost, "/v1/auth/login", map[string]string{"username": "jane"}, "")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "fail", body.Status)
	assert.Len(t, body.Errors, 2)
}

func TestLoginWithCorruptStoredHash(t *testing.T) {
	api := newTestAPI(t)
	admin := api.seedAdmin()
	id, _ := api.seedUser(admin, "jane", "ministry")
	require.NoError(t, api.store.Users().UpdatePassword(context.Background(), id, "plaintext"))

	resp := api.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"organization_short_code": "FMW", "username": "jane", "password": "123456",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, codeCorruptCredential, decode[errorBody](t, resp).Code)
}

func TestChangePassword(t *testing.T) {
	api := newTestAPI(t)
	admin := api.seedAdmin()
	_, token := api.seedUser(admin, "jane", "ministry")

	resp := api.do(http.MethodPost, "/v1/auth/change-password", map[string]string{
		"currentPassword": "123456", "newPassword": "N3w#Password", "confirmPassword": "Different#1",
	}, token)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, codePasswordMismatch, decode[errorBody](t, resp).Code)

	resp = api.do(http.MethodPost, "/v1/auth/change-password", map[string]string{
		"currentPassword": "123456", "newPassword": "weak", "confirmPassword": "weak",
	}, token)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodPost, "/v1/auth/change-password", map[string]string{
		"currentPassword": "wrong", "newPassword": "N3w#Password", "confirmPassword": "N3w#Password",
	}, token)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, codeIncorrectPassword, decode[errorBody](t, resp).Code)

	resp = api.do(http.MethodPost, "/v1/auth/change-password", map[string]string{
		"currentPassword": "123456", "newPassword": "N3w#Password", "confirmPassword": "N3w#Password",
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"organization_short_code": "FMW", "username": "jane", "password": "123456",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/v1/auth/profile", nil, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "tokens issued before the change stay valid")
	resp.Body.Close()
}

func TestAdminRoutesRejectEveryOtherPrincipal(t *testing.T) {
	api := newTestAPI(t)
	admin := api.seedAdmin()
	_, ministry := api.seedUser(admin, "jane", "ministry")
	_, other := api.seedUser(admin, "otto", "other")

	forged, _, err := api.tokens.Issue(auth.Identity{ID: 999, Kind: auth.KindAdmin, Role: auth.RoleSuperAdmin, Username: "ghost"})
	require.NoError(t, err)
	wrongKey, err := auth.NewTokenIssuer("another-secret")
	require.NoError(t, err)
	foreign, _, err := wrongKey.Issue(auth.Identity{ID: 1, Kind: auth.KindAdmin, Role: auth.RoleSuperAdmin})
	require.NoError(t, err)

	var bodies []errorBody
	for name, token := range map[string]string{
		"no token": "", "ministry": ministry, "other": other, "deleted admin": forged, "foreign key": foreign,
	} {
		resp := api.do(http.MethodGet, "/v1/admin/users", nil, token)
		require.Equal(t, http.StatusForbidden, resp.StatusCode, name)
		b := decode[errorBody](t, resp)
		b.RequestID = ""
		bodies = append(bodies, b)
	}
	for _, b := range bodies[1:] {
		assert.Equal(t, bodies[0], b)
	}

	resp := api.do(http.MethodPost, "/v1/organization/create-attendee", attendeeBody("x@example.gov"), other)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestUserCRUDAndConflicts(t *testing.T) {
	api := newTestAPI(t)
	admin := api.seedAdmin()
	id, _ := api.seedUser(admin, "jane", "ministry")

	resp := api.do(http.MethodPost, "/v1/admin/create-user", map[string]any{
		"organization": "Works", "organization_short_code": "FMW", "contact_person": "J",
		"contact_person_email": "jane@fmw.gov", "username": "jane2", "password": "123456",
	}, admin)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, codeConflict, decode[errorBody](t, resp).Code)

	resp = api.do(http.MethodGet, "/v1/admin/users", nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[envelope[[]registry.User]](t, resp).Data, 1)

	resp = api.do(http.MethodGet, "/v1/admin/single-user", nil, admin)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "user_id", decode[errorBody](t, resp).Errors[0].Field)

	resp = api.do(http.MethodGet, "/v1/admin/single-user?user_id=abc", nil, admin)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/v1/admin/single-user?user_id=4242", nil, admin)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodDelete, fmt.Sprintf("/v1/admin/delete-user?user_id=%d", id), nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, decode[envelope[registry.User]](t, resp).Data.ID)

	resp = api.do(http.MethodDelete, fmt.Sprintf("/v1/admin/delete-user?user_id=%d", id), nil, admin)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAttendeeCreatorResolutionAndScope(t *testing.T) {
	api := newTestAPI(t)
	admin := api.seedAdmin()
	janeID, jane := api.seedUser(admin, "jane", "ministry")
	_, kemi := api.seedUser(admin, "kemi", "agency")

	resp := api.do(http.MethodPost, "/v1/organization/create-attendee", attendeeBody("ngozi@example.gov"), jane)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[envelope[map[string]any]](t, resp).Data
	assert.NotContains(t, created, "password")
	creator := created["created_by"].(map[string]any)
	assert.Equal(t, "USER", creator["type"])
	assert.Equal(t, "jane", creator["username"])
	attendeeID := int64(created["id"].(float64))

	resp = api.do(http.MethodPost, "/v1/admin/create-attendee", attendeeBody("ngozi@example.gov"), admin)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, "duplicate email is a conflict")
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/v1/organization/attendees", nil, kemi)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[envelope[[]map[string]any]](t, resp).Data)

	resp = api.do(http.MethodGet, fmt.Sprintf("/v1/organization/single-attendee?attendee_id=%d", attendeeID), nil, kemi)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodDelete, fmt.Sprintf("/v1/admin/delete-user?user_id=%d", janeID), nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodGet, fmt.Sprintf("/v1/admin/single-attendee?attendee_id=%d", attendeeID), nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[envelope[map[string]any]](t, resp).Data
	assert.Contains(t, got, "created_by")
	assert.Nil(t, got["created_by"], "creator of a deleted account resolves to null")

	resp = api.do(http.MethodGet, "/v1/organization/attendees", nil, jane)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "deleted account loses access")
	resp.Body.Close()
}

func TestOrganizationCRUD(t *testing.T) {
	api := newTestAPI(t)
	admin := api.seedAdmin()

	resp := api.do(http.MethodPost, "/v1/admin/create-organization", map[string]any{"name": "Works", "type": "ministry"}, admin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	parent := decode[envelope[registry.Organization]](t, resp).Data
	assert.Equal(t, registry.OrgMinistry, parent.Type)

	resp = api.do(http.MethodPost, "/v1/admin/create-organization", map[string]any{"name": "Roads", "type": "AGENCY", "parent_id": parent.ID}, admin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	child := decode[envelope[registry.Organization]](t, resp).Data

	resp = api.do(http.MethodPut, fmt.Sprintf("/v1/admin/update-organization?organization_id=%d", child.ID),
		map[string]any{"parent_id": child.ID}, admin)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodPut, fmt.Sprintf("/v1/admin/update-organization?organization_id=%d", child.ID),
		map[string]any{"name": "Federal Roads", "clear_parent": true}, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[envelope[registry.Organization]](t, resp).Data
	assert.Equal(t, "Federal Roads", updated.Name)
	assert.Nil(t, updated.ParentID)

	resp = api.do(http.MethodPost, "/v1/admin/create-organization", map[string]any{"name": "X", "type": "BANK"}, admin)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodGet, "/v1/admin/organizations", nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[envelope[[]registry.Organization]](t, resp).Data, 2)

	resp = api.do(http.MethodDelete, fmt.Sprintf("/v1/admin/delete-organization?organization_id=%d", parent.ID), nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodGet, fmt.Sprintf("/v1/admin/single-organization?organization_id=%d", parent.ID), nil, admin)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestRejectsMalformedBodies(t *testing.T) {
	api := newTestAPI(t)

	post := func(body string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodPost, api.baseURL+"/v1/auth/login", bytes.NewBufferString(body))
		require.NoError(t, err)
		resp, err := api.client.Do(req)
		require.NoError(t, err)
		return resp
	}
	fields := func(b errorBody) []string {
		var out []string
		for _, f := range b.Errors {
			out = append(out, f.Field)
		}
		return out
	}

	t.Run("trailing data", func(t *testing.T) {
		resp := post(`{"username":"a"} trailing`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, codeBadRequest, decode[errorBody](t, resp).Code)
	})

	t.Run("broken json hides decoder text", func(t *testing.T) {
		resp := post(`{"username":`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[errorBody](t, resp)
		assert.Equal(t, "request body is not valid JSON", body.Message)
	})

	t.Run("empty body lists required fields", func(t *testing.T) {
		resp := post("")
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		body := decode[errorBody](t, resp)
		assert.Equal(t, codeValidation, body.Code)
		assert.ElementsMatch(t, []string{"organization_short_code", "username", "password"}, fields(body))
	})

	t.Run("wrong type names the field", func(t *testing.T) {
		resp := post(`{"organization_short_code":"FMW","username":42,"password":"x"}`)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		body := decode[errorBody](t, resp)
		assert.Equal(t, codeValidation, body.Code)
		require.Len(t, body.Errors, 1)
		assert.Equal(t, "username", body.Errors[0].Field)
		assert.Equal(t, "username must be a string", body.Errors[0].Message)
		assert.NotContains(t, body.Message, "Go struct")
	})

	t.Run("unknown fields are ignored", func(t *testing.T) {
		resp := post(`{"organization_short_code":"FMW","username":"nobody","password":"x","remember":true}`)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, codeInvalidCredentials, decode[errorBody](t, resp).Code)
	})
}

func TestHealthAndReadiness(t *testing.T) {
	api := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz", "/v1/info", "/metrics"} {
		resp := api.do(http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, resp.Header.Get(requestIDHeader), path)
		resp.Body.Close()
	}
}

type downStore struct{ *registry.InMemory }

func (downStore) Ping(context.Context) error { return fmt.Errorf("connection refused") }

func TestReadinessReportsStoreFailure(t *testing.T) {
	tokens, err := auth.NewTokenIssuer(testSecret)
	require.NoError(t, err)
	svc := registry.NewService(downStore{registry.NewInMemory()})
	h, err := New(svc, tokens, nil, nil, Options{}).Handler()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExpiredTokenRejected(t *testing.T) {
	api := newTestAPI(t)
	api.seedAdmin()

	past, err := auth.NewTokenIssuer(testSecret, auth.WithClock(func() time.Time { return time.Now().Add(-25 * time.Hour) }))
	require.NoError(t, err)
	stale, _, err := past.Issue(auth.Identity{ID: 1, Kind: auth.KindAdmin, Role: auth.RoleSuperAdmin})
	require.NoError(t, err)

	resp := api.do(http.MethodGet, "/v1/admin/users", nil, stale)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}
