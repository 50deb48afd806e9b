package registry

import (
	"context"
	"strings"

	"github.com/samber/oops"

	"confreg.org/internal/auth"
)

type CreateAttendeeRequest struct {
	Fullname         string  `json:"fullname"`
	Email            string  `json:"email"`
	PhoneNumber      string  `json:"phone_number"`
	NIN              *string `json:"nin"`
	Position         string  `json:"position"`
	Grade            string  `json:"grade"`
	Organization     string  `json:"organization"`
	Department       string  `json:"department"`
	DepartmentAgency string  `json:"department_agency"`
	StaffID          *string `json:"staff_id"`
	OfficeLocation   *string `json:"office_location"`
	Remark           *string `json:"remark"`
	Status           string  `json:"status"`
}

func (r CreateAttendeeRequest) validate() error {
	var v validator
	v.required("fullname", r.Fullname, "Full Name is required")
	v.required("phone_number", r.PhoneNumber, "Phone Number is required")
	v.email("email", r.Email)
	v.required("position", r.Position, "Position is required")
	v.required("organization", r.Organization, "Organization is required")
	v.required("department", r.Department, "Department is required")
	v.required("department_agency", r.DepartmentAgency, "Department/Agency is required")
	if v.required("status", r.Status, "Status is required") && !Status(strings.TrimSpace(r.Status)).Valid() {
		v.add("status", "Status must be one of: Pending, Approved, Rejected")
	}
	v.required("grade", r.Grade, "Grade is required")
	return v.err()
}

// CreateAttendee registers an attendee on behalf of actor. The attendee
// receives a generated temporary password by email and SMS.
func (s *Service) CreateAttendee(ctx context.Context, actor auth.Principal, req CreateAttendeeRequest) (*AttendeeView, error) {
	if actor.ID <= 0 {
		return nil, auth.ErrUnauthenticated
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	password, err := s.tempPass()
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}
	a := &Attendee{
		Fullname:         strings.TrimSpace(req.Fullname),
		Email:            strings.ToLower(strings.TrimSpace(req.Email)),
		PhoneNumber:      strings.TrimSpace(req.PhoneNumber),
		NIN:              optional(req.NIN),
		Position:         strings.TrimSpace(req.Position),
		Grade:            strings.TrimSpace(req.Grade),
		Organization:     strings.TrimSpace(req.Organization),
		Department:       strings.TrimSpace(req.Department),
		DepartmentAgency: strings.TrimSpace(req.DepartmentAgency),
		StaffID:          optional(req.StaffID),
		OfficeLocation:   optional(req.OfficeLocation),
		Remark:           optional(req.Remark),
		Status:           Status(strings.TrimSpace(req.Status)),
		Role:             auth.RoleAttendee,
		PasswordHash:     hash,
		CreatedBy:        CreatorRefFor(actor),
	}
	if err := s.store.Attendees().Create(ctx, a); err != nil {
		return nil, storeErr(err, "create attendee")
	}
	s.notifier.AttendeeRegistered(a, password)

	view, err := newCreatorCache(s.store).view(ctx, a)
	if err != nil {
		return nil, storeErr(err, "resolve creator")
	}
	return &view, nil
}

// ListAttendees returns attendees newest first. A non-nil scope restricts the
// result to attendees that scope created.
func (s *Service) ListAttendees(ctx context.Context, scope *CreatorRef) ([]AttendeeView, error) {
	atts, err := s.store.Attendees().List(ctx, AttendeeFilter{CreatedBy: scope})
	if err != nil {
		return nil, storeErr(err, "list attendees")
	}
	cache := newCreatorCache(s.store)
	out := make([]AttendeeView, 0, len(atts))
	for _, a := range atts {
		view, err := cache.view(ctx, a)
		if err != nil {
			return nil, storeErr(err, "resolve creator")
		}
		out = append(out, view)
	}
	return out, nil
}

// GetAttendee hides attendees outside scope as not found.
func (s *Service) GetAttendee(ctx context.Context, id int64, scope *CreatorRef) (*AttendeeView, error) {
	a, err := s.scopedAttendee(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	view, err := newCreatorCache(s.store).view(ctx, a)
	if err != nil {
		return nil, storeErr(err, "resolve creator")
	}
	return &view, nil
}

func (s *Service) DeleteAttendee(ctx context.Context, id int64, scope *CreatorRef) (*Attendee, error) {
	if scope != nil {
		if _, err := s.scopedAttendee(ctx, id, scope); err != nil {
			return nil, err
		}
	}
	a, err := s.store.Attendees().Delete(ctx, id)
	if err != nil {
		return nil, storeErr(err, "delete attendee")
	}
	return a, nil
}

func (s *Service) scopedAttendee(ctx context.Context, id int64, scope *CreatorRef) (*Attendee, error) {
	a, err := s.store.Attendees().Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "get attendee")
	}
	if scope != nil && a.CreatedBy != *scope {
		return nil, auth.ErrNotFound
	}
	return a, nil
}
