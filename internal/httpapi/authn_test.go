package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"confreg.org/internal/auth"
	"confreg.org/internal/registry"
)

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]struct {
		want    string
		wantErr bool
	}{
		"Bearer abc":   {want: "abc"},
		"bearer  abc ": {want: "abc"},
		"Basic abc":    {wantErr: true},
		"Bearer ":      {wantErr: true},
		"":             {wantErr: true},
		"Bear":         {wantErr: true},
	}
	for header, tc := range cases {
		got, err := extractBearerToken(header)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", header)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %q, %v", header, got, err)
		}
	}
}

func TestAuthenticateAcceptsCookieFallback(t *testing.T) {
	tokens, err := auth.NewTokenIssuer(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	api := New(registry.NewService(registry.NewInMemory()), tokens, nil, nil, Options{})
	token, _, err := tokens.Issue(auth.Identity{ID: 7, Kind: auth.KindUser, Role: auth.RoleMinistry, Username: "jane"})
	if err != nil {
		t.Fatal(err)
	}

	var got auth.Principal
	handler := api.authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = principal(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/profile", nil)
	req.AddCookie(&http.Cookie{Name: tokenCookie, Value: token})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got.ID != 7 || got.Kind != auth.KindUser || got.Username != "jane" {
		t.Fatalf("unexpected principal: %+v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/auth/profile", nil)
	req.Header.Set(authHeader, "Bearer not-a-jwt")
	req.AddCookie(&http.Cookie{Name: tokenCookie, Value: token})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("header takes precedence over cookie; expected 403, got %d", rr.Code)
	}
}
