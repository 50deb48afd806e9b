package pg

import (
	"context"
	"database/sql"

	"confreg.org/internal/registry"
)

const attendeeColumns = `id, fullname, email, phone_number, nin, nin_verified, position, grade, organization,
	department, department_agency, staff_id, office_location, remark, status, role, password,
	created_by_type, created_by_id, registered_at, created_at, updated_at`

type attendeeStore struct{ db *sql.DB }

func scanAttendee(row scanner) (*registry.Attendee, error) {
	var (
		a                          registry.Attendee
		nin, staff, office, remark sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Fullname, &a.Email, &a.PhoneNumber, &nin, &a.NINVerified, &a.Position, &a.Grade,
		&a.Organization, &a.Department, &a.DepartmentAgency, &staff, &office, &remark, &a.Status, &a.Role,
		&a.PasswordHash, &a.CreatedBy.Kind, &a.CreatedBy.ID, &a.RegisteredAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	a.NIN = stringPtr(nin)
	a.StaffID = stringPtr(staff)
	a.OfficeLocation = stringPtr(office)
	a.Remark = stringPtr(remark)
	return &a, nil
}

func (s attendeeStore) Create(ctx context.Context, a *registry.Attendee) error {
	row := s.db.QueryRowContext(ctx, `
		insert into attendees (fullname, email, phone_number, nin, nin_verified, position, grade, organization,
			department, department_agency, staff_id, office_location, remark, status, role, password,
			created_by_type, created_by_id)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		returning id, registered_at, created_at, updated_at
	`, a.Fullname, a.Email, a.PhoneNumber, nullString(a.NIN), a.NINVerified, a.Position, a.Grade, a.Organization,
		a.Department, a.DepartmentAgency, nullString(a.StaffID), nullString(a.OfficeLocation), nullString(a.Remark),
		string(a.Status), string(a.Role), a.PasswordHash, string(a.CreatedBy.Kind), a.CreatedBy.ID)
	if err := row.Scan(&a.ID, &a.RegisteredAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return translate(err)
	}
	return nil
}

func (s attendeeStore) Get(ctx context.Context, id int64) (*registry.Attendee, error) {
	return scanAttendee(s.db.QueryRowContext(ctx, `select `+attendeeColumns+` from attendees where id = $1`, id))
}

func (s attendeeStore) List(ctx context.Context, f registry.AttendeeFilter) ([]*registry.Attendee, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if f.CreatedBy != nil {
		rows, err = s.db.QueryContext(ctx, `
			select `+attendeeColumns+` from attendees
			where created_by_type = $1 and created_by_id = $2
			order by created_at desc, id desc
		`, string(f.CreatedBy.Kind), f.CreatedBy.ID)
	} else {
		rows, err = s.db.QueryContext(ctx, `select `+attendeeColumns+` from attendees order by created_at desc, id desc`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*registry.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s attendeeStore) Delete(ctx context.Context, id int64) (*registry.Attendee, error) {
	return scanAttendee(s.db.QueryRowContext(ctx, `delete from attendees where id = $1 returning `+attendeeColumns, id))
}

const organizationColumns = `id, name, abbreviation, type, parent_id, created_at, updated_at`

type organizationStore struct{ db *sql.DB }

func scanOrganization(row scanner) (*registry.Organization, error) {
	var (
		o      registry.Organization
		abbr   sql.NullString
		parent sql.NullInt64
	)
	if err := row.Scan(&o.ID, &o.Name, &abbr, &o.Type, &parent, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	o.Abbreviation = stringPtr(abbr)
	if parent.Valid {
		p := parent.Int64
		o.ParentID = &p
	}
	return &o, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func (s organizationStore) Create(ctx context.Context, o *registry.Organization) error {
	row := s.db.QueryRowContext(ctx, `
		insert into organizations (name, abbreviation, type, parent_id)
		values ($1, $2, $3, $4)
		returning id, created_at, updated_at
	`, o.Name, nullString(o.Abbreviation), string(o.Type), nullInt64(o.ParentID))
	if err := row.Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return translate(err)
	}
	return nil
}

func (s organizationStore) Get(ctx context.Context, id int64) (*registry.Organization, error) {
	return scanOrganization(s.db.QueryRowContext(ctx, `select `+organizationColumns+` from organizations where id = $1`, id))
}

func (s organizationStore) List(ctx context.Context) ([]*registry.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `select `+organizationColumns+` from organizations order by created_at desc, id desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*registry.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Update applies upd in one statement; nil fields keep their stored value.
func (s organizationStore) Update(ctx context.Context, id int64, upd registry.OrganizationUpdate) (*registry.Organization, error) {
	var abbr sql.NullString
	if upd.Abbreviation != nil {
		abbr = sql.NullString{String: *upd.Abbreviation, Valid: true}
	}
	var typ sql.NullString
	if upd.Type != nil {
		typ = sql.NullString{String: string(*upd.Type), Valid: true}
	}
	return scanOrganization(s.db.QueryRowContext(ctx, `
		update organizations set
			name = coalesce($2, name),
			abbreviation = case when $3::text is null then abbreviation else nullif(trim($3::text), '') end,
			type = coalesce($4, type),
			parent_id = case when $5 then null else coalesce($6, parent_id) end,
			updated_at = now()
		where id = $1
		returning `+organizationColumns,
		id, nullString(upd.Name), abbr, typ, upd.ClearParent, nullInt64(upd.ParentID)))
}

func (s organizationStore) Delete(ctx context.Context, id int64) (*registry.Organization, error) {
	return scanOrganization(s.db.QueryRowContext(ctx, `delete from organizations where id = $1 returning `+organizationColumns, id))
}
