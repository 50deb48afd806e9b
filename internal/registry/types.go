// Package registry holds the conference registration domain: administrator
// and organization accounts, organizations, and registered attendees.
package registry

import (
	"time"

	"confreg.org/internal/auth"
)

type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

type OrganizationType string

const (
	OrgMinistry   OrganizationType = "MINISTRY"
	OrgAgency     OrganizationType = "AGENCY"
	OrgParastatal OrganizationType = "PARASTATAL"
	OrgOther      OrganizationType = "OTHER"
)

func (t OrganizationType) Valid() bool {
	switch t {
	case OrgMinistry, OrgAgency, OrgParastatal, OrgOther:
		return true
	}
	return false
}

type Admin struct {
	ID           int64     `json:"id"`
	Fullname     string    `json:"fullname"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	Role         auth.Role `json:"role"`
	ProfileImage *string   `json:"profile_image"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// User is an organization account able to register attendees.
type User struct {
	ID                    int64     `json:"id"`
	Organization          string    `json:"organization"`
	OrganizationShortCode string    `json:"organization_short_code"`
	ContactPerson         string    `json:"contact_person"`
	ContactPersonEmail    string    `json:"contact_person_email"`
	Username              string    `json:"username"`
	ProfileImage          *string   `json:"profile_image"`
	Role                  auth.Role `json:"role"`
	PasswordHash          string    `json:"-"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type Organization struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	Abbreviation *string          `json:"abbreviation"`
	Type         OrganizationType `json:"type"`
	ParentID     *int64           `json:"parent_id"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// OrganizationUpdate carries the fields to change; nil leaves a field as is.
type OrganizationUpdate struct {
	Name         *string
	Abbreviation *string
	Type         *OrganizationType
	ParentID     *int64
	ClearParent  bool
}

type Attendee struct {
	ID               int64      `json:"id"`
	Fullname         string     `json:"fullname"`
	Email            string     `json:"email"`
	PhoneNumber      string     `json:"phone_number"`
	NIN              *string    `json:"nin"`
	NINVerified      bool       `json:"nin_verified"`
	Position         string     `json:"position"`
	Grade            string     `json:"grade"`
	Organization     string     `json:"organization"`
	Department       string     `json:"department"`
	DepartmentAgency string     `json:"department_agency"`
	StaffID          *string    `json:"staff_id"`
	OfficeLocation   *string    `json:"office_location"`
	Remark           *string    `json:"remark"`
	Status           Status     `json:"status"`
	Role             auth.Role  `json:"role"`
	PasswordHash     string     `json:"-"`
	CreatedBy        CreatorRef `json:"created_by_ref"`
	RegisteredAt     time.Time  `json:"registered_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CreatorKind tags which account table a CreatorRef points into.
type CreatorKind string

const (
	CreatorAdmin CreatorKind = "ADMIN"
	CreatorUser  CreatorKind = "USER"
)

// CreatorRef is a tagged reference to the admin or user that registered an
// attendee. It is not a foreign key; the referenced account may be gone.
type CreatorRef struct {
	Kind CreatorKind `json:"type"`
	ID   int64       `json:"id"`
}

// CreatorRefFor maps an authenticated principal onto a creator reference.
func CreatorRefFor(p auth.Principal) CreatorRef {
	if p.Kind == auth.KindAdmin {
		return CreatorRef{Kind: CreatorAdmin, ID: p.ID}
	}
	return CreatorRef{Kind: CreatorUser, ID: p.ID}
}

// Creator is the public projection of whoever registered an attendee.
type Creator struct {
	Type                  CreatorKind `json:"type"`
	ID                    int64       `json:"id"`
	Name                  string      `json:"name"`
	Email                 string      `json:"email"`
	Username              string      `json:"username"`
	Organization          string      `json:"organization,omitempty"`
	OrganizationShortCode string      `json:"organization_short_code,omitempty"`
}

// AttendeeView is an attendee as returned to clients, with its creator
// resolved. CreatedBy is nil when the referenced account no longer exists.
type AttendeeView struct {
	*Attendee
	CreatedBy *Creator `json:"created_by"`
}
