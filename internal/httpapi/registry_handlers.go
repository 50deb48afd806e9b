package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"confreg.org/internal/auth"
	"confreg.org/internal/registry"
)

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req registry.CreateUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	u, err := a.svc.CreateUser(r.Context(), req)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.audit.Event(r.Context(), "user.created", zap.Int64("target_id", u.ID), zap.String("username", u.Username))
	writeData(w, http.StatusCreated, "User created successfully", u)
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.svc.ListUsers(r.Context())
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Users retrieved successfully", users)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "user_id")
	if !ok {
		return
	}
	u, err := a.svc.GetUser(r.Context(), id)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "User retrieved successfully", u)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "user_id")
	if !ok {
		return
	}
	u, err := a.svc.DeleteUser(r.Context(), id)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.audit.Event(r.Context(), "user.deleted", zap.Int64("target_id", u.ID))
	writeData(w, http.StatusOK, "User deleted successfully", u)
}

// attendeeScope limits organization accounts to the attendees they created.
// Administrators see every attendee.
func attendeeScope(r *http.Request) *registry.CreatorRef {
	p := principal(r)
	if p.Kind == auth.KindAdmin {
		return nil
	}
	ref := registry.CreatorRefFor(p)
	return &ref
}

func (a *API) createAttendee(w http.ResponseWriter, r *http.Request) {
	var req registry.CreateAttendeeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := a.svc.CreateAttendee(r.Context(), principal(r), req)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.audit.Event(r.Context(), "attendee.created", zap.Int64("target_id", view.ID))
	writeData(w, http.StatusCreated, "Attendee created successfully", view)
}

func (a *API) listAttendees(w http.ResponseWriter, r *http.Request) {
	views, err := a.svc.ListAttendees(r.Context(), attendeeScope(r))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Attendees retrieved successfully", views)
}

func (a *API) getAttendee(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "attendee_id")
	if !ok {
		return
	}
	view, err := a.svc.GetAttendee(r.Context(), id, attendeeScope(r))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Attendee retrieved successfully", view)
}

func (a *API) deleteAttendee(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "attendee_id")
	if !ok {
		return
	}
	att, err := a.svc.DeleteAttendee(r.Context(), id, attendeeScope(r))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.audit.Event(r.Context(), "attendee.deleted", zap.Int64("target_id", att.ID))
	writeData(w, http.StatusOK, "Attendee deleted successfully", att)
}

func (a *API) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req registry.CreateOrganizationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	o, err := a.svc.CreateOrganization(r.Context(), req)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.audit.Event(r.Context(), "organization.created", zap.Int64("target_id", o.ID))
	writeData(w, http.StatusCreated, "Organization created successfully", o)
}

func (a *API) listOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := a.svc.ListOrganizations(r.Context())
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Organizations retrieved successfully", orgs)
}

func (a *API) getOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "organization_id")
	if !ok {
		return
	}
	o, err := a.svc.GetOrganization(r.Context(), id)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Organization retrieved successfully", o)
}

func (a *API) updateOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "organization_id")
	if !ok {
		return
	}
	var req registry.UpdateOrganizationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	o, err := a.svc.UpdateOrganization(r.Context(), id, req)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.audit.Event(r.Context(), "organization.updated", zap.Int64("target_id", o.ID))
	writeData(w, http.StatusOK, "Organization updated successfully", o)
}

func (a *API) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "organization_id")
	if !ok {
		return
	}
	o, err := a.svc.DeleteOrganization(r.Context(), id)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.audit.Event(r.Context(), "organization.deleted", zap.Int64("target_id", o.ID))
	writeData(w, http.StatusOK, "Organization deleted successfully", o)
}
