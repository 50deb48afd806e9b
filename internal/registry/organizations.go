package registry

import (
	"context"
	"strings"
)

type CreateOrganizationRequest struct {
	Name         string  `json:"name"`
	Abbreviation *string `json:"abbreviation"`
	Type         string  `json:"type"`
	ParentID     *int64  `json:"parent_id"`
}

type UpdateOrganizationRequest struct {
	Name         *string `json:"name"`
	Abbreviation *string `json:"abbreviation"`
	Type         *string `json:"type"`
	ParentID     *int64  `json:"parent_id"`
	ClearParent  bool    `json:"clear_parent"`
}

func parseOrgType(v *validator, raw string) OrganizationType {
	t := OrganizationType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		v.add("type", "Type must be one of: MINISTRY, AGENCY, PARASTATAL, OTHER")
	}
	return t
}

func (s *Service) CreateOrganization(ctx context.Context, req CreateOrganizationRequest) (*Organization, error) {
	var v validator
	v.required("name", req.Name, "Name is required")
	t := parseOrgType(&v, req.Type)
	if req.ParentID != nil && *req.ParentID <= 0 {
		v.add("parent_id", "Parent ID must be a positive integer")
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	o := &Organization{
		Name:         strings.TrimSpace(req.Name),
		Abbreviation: optional(req.Abbreviation),
		Type:         t,
		ParentID:     req.ParentID,
	}
	if err := s.store.Organizations().Create(ctx, o); err != nil {
		return nil, storeErr(err, "create organization")
	}
	return o, nil
}

func (s *Service) ListOrganizations(ctx context.Context) ([]*Organization, error) {
	orgs, err := s.store.Organizations().List(ctx)
	if err != nil {
		return nil, storeErr(err, "list organizations")
	}
	return orgs, nil
}

func (s *Service) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	o, err := s.store.Organizations().Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "get organization")
	}
	return o, nil
}

// UpdateOrganization rejects direct self-parenting only; longer cycles are
// not detected.
func (s *Service) UpdateOrganization(ctx context.Context, id int64, req UpdateOrganizationRequest) (*Organization, error) {
	var (
		v   validator
		upd OrganizationUpdate
	)
	if req.Name != nil {
		if v.required("name", *req.Name, "Name cannot be empty") {
			name := strings.TrimSpace(*req.Name)
			upd.Name = &name
		}
	}
	if req.Type != nil {
		t := parseOrgType(&v, *req.Type)
		upd.Type = &t
	}
	upd.Abbreviation = req.Abbreviation
	switch {
	case req.ClearParent:
		upd.ClearParent = true
	case req.ParentID != nil && *req.ParentID == id:
		v.add("parent_id", "Organization cannot be its own parent")
	case req.ParentID != nil && *req.ParentID <= 0:
		v.add("parent_id", "Parent ID must be a positive integer")
	default:
		upd.ParentID = req.ParentID
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	o, err := s.store.Organizations().Update(ctx, id, upd)
	if err != nil {
		return nil, storeErr(err, "update organization")
	}
	return o, nil
}

func (s *Service) DeleteOrganization(ctx context.Context, id int64) (*Organization, error) {
	o, err := s.store.Organizations().Delete(ctx, id)
	if err != nil {
		return nil, storeErr(err, "delete organization")
	}
	return o, nil
}
