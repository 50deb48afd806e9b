package pg

import (
	"context"
	"database/sql"

	"confreg.org/internal/auth"
	"confreg.org/internal/registry"
)

const adminColumns = `id, fullname, email, username, role, profile_image, password, created_at, updated_at`

type adminStore struct{ db *sql.DB }

func scanAdmin(row scanner) (*registry.Admin, error) {
	var (
		a   registry.Admin
		img sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Fullname, &a.Email, &a.Username, &a.Role, &img, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	a.ProfileImage = stringPtr(img)
	return &a, nil
}

func (s adminStore) Create(ctx context.Context, a *registry.Admin) error {
	row := s.db.QueryRowContext(ctx, `
		insert into admins (fullname, email, username, role, profile_image, password)
		values ($1, $2, $3, $4, $5, $6)
		returning id, created_at, updated_at
	`, a.Fullname, a.Email, a.Username, string(a.Role), nullString(a.ProfileImage), a.PasswordHash)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return translate(err)
	}
	return nil
}

func (s adminStore) Get(ctx context.Context, id int64) (*registry.Admin, error) {
	return scanAdmin(s.db.QueryRowContext(ctx, `select `+adminColumns+` from admins where id = $1`, id))
}

func (s adminStore) FindByLogin(ctx context.Context, login string) (*registry.Admin, error) {
	return scanAdmin(s.db.QueryRowContext(ctx, `
		select `+adminColumns+` from admins
		where username = $1 or lower(email) = lower($1)
		order by id
		limit 1
	`, login))
}

func (s adminStore) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return updatePassword(ctx, s.db, `update admins set password = $2, updated_at = now() where id = $1`, id, hash)
}

const userColumns = `id, organization, organization_short_code, contact_person, contact_person_email, username, profile_image, role, password, created_at, updated_at`

type userStore struct{ db *sql.DB }

func scanUser(row scanner) (*registry.User, error) {
	var (
		u   registry.User
		img sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Organization, &u.OrganizationShortCode, &u.ContactPerson, &u.ContactPersonEmail,
		&u.Username, &img, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	u.ProfileImage = stringPtr(img)
	return &u, nil
}

func (s userStore) Create(ctx context.Context, u *registry.User) error {
	row := s.db.QueryRowContext(ctx, `
		insert into users (organization, organization_short_code, contact_person, contact_person_email, username, profile_image, role, password)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning id, created_at, updated_at
	`, u.Organization, u.OrganizationShortCode, u.ContactPerson, u.ContactPersonEmail, u.Username,
		nullString(u.ProfileImage), string(u.Role), u.PasswordHash)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return translate(err)
	}
	return nil
}

func (s userStore) Get(ctx context.Context, id int64) (*registry.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
}

func (s userStore) FindByLogin(ctx context.Context, shortCode, username string) (*registry.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+` from users
		where organization_short_code = $1 and username = $2
	`, shortCode, username))
}

func (s userStore) List(ctx context.Context) ([]*registry.User, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by created_at desc, id desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*registry.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s userStore) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return updatePassword(ctx, s.db, `update users set password = $2, updated_at = now() where id = $1`, id, hash)
}

func (s userStore) Delete(ctx context.Context, id int64) (*registry.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `delete from users where id = $1 returning `+userColumns, id))
}

func updatePassword(ctx context.Context, db *sql.DB, query string, id int64, hash string) error {
	res, err := db.ExecContext(ctx, query, id, hash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
