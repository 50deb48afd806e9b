package auth

import "strings"

// Kind tells which account table a principal lives in.
type Kind string

const (
	KindAdmin Kind = "admin"
	KindUser  Kind = "user"
)

func (k Kind) Valid() bool { return k == KindAdmin || k == KindUser }

// Role is the account role stored on admins and org users.
type Role string

const (
	RoleSuperAdmin    Role = "super_admin"
	RoleAttendee      Role = "attendee"
	RoleMinistry      Role = "ministry"
	RoleAgency        Role = "agency"
	RoleParastatal    Role = "parastatal"
	RoleExhibitor     Role = "exhibitor"
	RolePublicSpeaker Role = "public_speaker"
	RoleOther         Role = "other"
)

var knownRoles = map[Role]struct{}{
	RoleSuperAdmin:    {},
	RoleAttendee:      {},
	RoleMinistry:      {},
	RoleAgency:        {},
	RoleParastatal:    {},
	RoleExhibitor:     {},
	RolePublicSpeaker: {},
	RoleOther:         {},
}

// OrganizationRoles may manage the attendees they registered.
var OrganizationRoles = []Role{RoleMinistry, RoleAgency, RoleParastatal}

// ParseRole normalises s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	_, ok := knownRoles[r]
	return r, ok
}

// AnyOf reports whether r is one of allowed.
func (r Role) AnyOf(allowed ...Role) bool {
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}

// Principal is the identity carried by a verified token.
type Principal struct {
	ID                    int64
	Kind                  Kind
	Role                  Role
	Username              string
	OrganizationShortCode string
}
