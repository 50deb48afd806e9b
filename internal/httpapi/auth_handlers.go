package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"confreg.org/internal/auth"
	"confreg.org/internal/obs"
	"confreg.org/internal/registry"
)

type userLoginResponse struct {
	Message string `json:"message"`
	*registry.UserSession
}

type adminLoginResponse struct {
	Message string `json:"message"`
	*registry.AdminSession
}

func (a *API) recordLogin(r *http.Request, kind auth.Kind, login string, err error) {
	outcome := obs.LoginSuccess
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidInput):
		outcome = obs.LoginFailure
	default:
		outcome = obs.LoginError
	}
	a.metrics.LoginAttempt(string(kind), outcome)
	a.audit.Event(r.Context(), "auth.login",
		zap.String("kind", string(kind)),
		zap.String("login", login),
		zap.String("outcome", outcome),
		zap.String("remote_ip", clientIP(r)),
	)
}

func (a *API) loginUser(w http.ResponseWriter, r *http.Request) {
	var req registry.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := a.svc.LoginUser(r.Context(), req)
	a.recordLogin(r, auth.KindUser, req.OrganizationShortCode+"/"+req.Username, err)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userLoginResponse{Message: "Login successful", UserSession: session})
}

func (a *API) loginAdmin(w http.ResponseWriter, r *http.Request) {
	var req registry.AdminLoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := a.svc.LoginAdmin(r.Context(), req)
	a.recordLogin(r, auth.KindAdmin, req.Username, err)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminLoginResponse{Message: "Login successful", AdminSession: session})
}

// logout only clears the cookie channel; tokens stay valid until they expire.
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	a.audit.Event(r.Context(), "auth.logout")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	var req registry.ChangePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.svc.ChangePassword(r.Context(), principal(r), req); err != nil {
		a.handleError(w, r, err)
		return
	}
	a.audit.Event(r.Context(), "auth.password_changed")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func (a *API) userProfile(w http.ResponseWriter, r *http.Request) {
	u, err := a.svc.UserProfile(r.Context(), principal(r))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (a *API) adminProfile(w http.ResponseWriter, r *http.Request) {
	ad, err := a.svc.AdminProfile(r.Context(), principal(r))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"admin": ad})
}
