package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"orgcore.org/internal/projection"
	"orgcore.org/internal/scope"
)

// ProjectionStore backs every projection table with the same pool. All writes
// are upserts keyed by the aggregate's natural id, so re-applying an event
// leaves the row unchanged.
type ProjectionStore struct {
	db *sql.DB
}

var _ projection.Store = (*ProjectionStore)(nil)

func (s *ProjectionStore) Organizations() projection.OrganizationStore { return orgStore{s.db} }
func (s *ProjectionStore) Units() projection.UnitStore                 { return unitStore{s.db} }
func (s *ProjectionStore) Users() projection.UserStore                 { return userStore{s.db} }
func (s *ProjectionStore) Roles() projection.RoleStore                 { return roleStore{s.db} }
func (s *ProjectionStore) Permissions() projection.PermissionStore     { return permStore{s.db} }
func (s *ProjectionStore) RolePermissions() projection.RolePermissionStore {
	return rolePermStore{s.db}
}
func (s *ProjectionStore) Grants() projection.GrantStore                 { return grantStore{s.db} }
func (s *ProjectionStore) Schedules() projection.ScheduleStore           { return scheduleStore{s.db} }
func (s *ProjectionStore) Contacts() projection.ContactStore             { return contactStore{s.db} }
func (s *ProjectionStore) Impersonations() projection.ImpersonationStore { return impStore{s.db} }
func (s *ProjectionStore) Links() projection.LinkStore                   { return linkStore{s.db} }

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return projection.ErrNotFound
	}
	return err
}

// subtreeActive flips Active on every row of table whose path equals p or
// sits below it. One statement, so a cascade never half-applies.
func subtreeActive(ctx context.Context, db *sql.DB, table string, p scope.Path, active bool, eventID string) (int, error) {
	res, err := db.ExecContext(ctx, `
		update `+table+` set active = $2, last_event_id = $3, updated_at = now()
		where deleted_at is null and (path = $1 or path like $1 || '.%')
	`, string(p), active, eventID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type orgStore struct{ db *sql.DB }

func (s orgStore) Upsert(ctx context.Context, org *projection.Organization) error {
	_, err := s.db.ExecContext(ctx, `
		insert into organizations(id, name, kind, domain, path, active, last_event_id, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, now(), now())
		on conflict (id) do update set
			name = excluded.name,
			kind = excluded.kind,
			domain = excluded.domain,
			path = excluded.path,
			active = excluded.active,
			last_event_id = excluded.last_event_id,
			updated_at = now()
	`, org.ID, org.Name, org.Kind, nullIfEmpty(org.Domain), string(org.Path), org.Active, org.LastEventID)
	return err
}

const orgColumns = `id, name, kind, coalesce(domain, ''), path, active, last_event_id, created_at, updated_at, deleted_at`

func scanOrg(row interface{ Scan(...any) error }) (*projection.Organization, error) {
	var (
		org     projection.Organization
		path    string
		deleted sql.NullTime
	)
	err := row.Scan(&org.ID, &org.Name, &org.Kind, &org.Domain, &path, &org.Active,
		&org.LastEventID, &org.CreatedAt, &org.UpdatedAt, &deleted)
	if err != nil {
		return nil, err
	}
	org.Path = scope.Path(path)
	org.DeletedAt = timePtr(deleted)
	return &org, nil
}

func (s orgStore) Find(ctx context.Context, id string) (*projection.Organization, error) {
	org, err := scanOrg(s.db.QueryRowContext(ctx, `select `+orgColumns+` from organizations where id = $1`, id))
	return org, notFound(err)
}

func (s orgStore) FindByPath(ctx context.Context, p scope.Path) (*projection.Organization, error) {
	org, err := scanOrg(s.db.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where path = $1 and deleted_at is null`, string(p)))
	return org, notFound(err)
}

func (s orgStore) List(ctx context.Context) ([]*projection.Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+orgColumns+` from organizations where deleted_at is null order by path asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*projection.Organization
	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

func (s orgStore) SoftDelete(ctx context.Context, id, eventID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update organizations set deleted_at = $3, active = false, last_event_id = $2, updated_at = now()
		where id = $1
	`, id, eventID, at.UTC())
	if err != nil {
		return err
	}
	return affected(res)
}

func (s orgStore) SetActiveSubtree(ctx context.Context, p scope.Path, active bool, eventID string) (int, error) {
	return subtreeActive(ctx, s.db, "organizations", p, active, eventID)
}

type unitStore struct{ db *sql.DB }

func (s unitStore) Upsert(ctx context.Context, unit *projection.OrgUnit) error {
	_, err := s.db.ExecContext(ctx, `
		insert into organization_units(id, organization_id, name, path, active, last_event_id, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, now(), now())
		on conflict (id) do update set
			organization_id = excluded.organization_id,
			name = excluded.name,
			path = excluded.path,
			active = excluded.active,
			last_event_id = excluded.last_event_id,
			updated_at = now()
	`, unit.ID, unit.OrganizationID, unit.Name, string(unit.Path), unit.Active, unit.LastEventID)
	return err
}

const unitColumns = `id, organization_id, name, path, active, last_event_id, created_at, updated_at, deleted_at`

func scanUnit(row interface{ Scan(...any) error }) (*projection.OrgUnit, error) {
	var (
		u       projection.OrgUnit
		path    string
		deleted sql.NullTime
	)
	err := row.Scan(&u.ID, &u.OrganizationID, &u.Name, &path, &u.Active,
		&u.LastEventID, &u.CreatedAt, &u.UpdatedAt, &deleted)
	if err != nil {
		return nil, err
	}
	u.Path = scope.Path(path)
	u.DeletedAt = timePtr(deleted)
	return &u, nil
}

func (s unitStore) Find(ctx context.Context, id string) (*projection.OrgUnit, error) {
	u, err := scanUnit(s.db.QueryRowContext(ctx, `select `+unitColumns+` from organization_units where id = $1`, id))
	return u, notFound(err)
}

func (s unitStore) FindByPath(ctx context.Context, p scope.Path) (*projection.OrgUnit, error) {
	u, err := scanUnit(s.db.QueryRowContext(ctx,
		`select `+unitColumns+` from organization_units where path = $1 and deleted_at is null`, string(p)))
	return u, notFound(err)
}

func (s unitStore) ListByOrg(ctx context.Context, orgID string) ([]*projection.OrgUnit, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+unitColumns+` from organization_units
		where organization_id = $1 and deleted_at is null order by path asc
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*projection.OrgUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s unitStore) SoftDelete(ctx context.Context, id, eventID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update organization_units set deleted_at = $3, active = false, last_event_id = $2, updated_at = now()
		where id = $1
	`, id, eventID, at.UTC())
	if err != nil {
		return err
	}
	return affected(res)
}

func (s unitStore) SetActiveSubtree(ctx context.Context, p scope.Path, active bool, eventID string) (int, error) {
	return subtreeActive(ctx, s.db, "organization_units", p, active, eventID)
}

type userStore struct{ db *sql.DB }

func (s userStore) Upsert(ctx context.Context, u *projection.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, display_name, active, last_event_id, created_at, updated_at)
		values ($1, $2, $3, $4, $5, now(), now())
		on conflict (id) do update set
			email = excluded.email,
			display_name = excluded.display_name,
			active = excluded.active,
			last_event_id = excluded.last_event_id,
			updated_at = now()
	`, u.ID, u.Email, u.DisplayName, u.Active, u.LastEventID)
	return err
}

func (s userStore) Find(ctx context.Context, id string) (*projection.User, error) {
	var (
		u       projection.User
		deleted sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, email, display_name, active, last_event_id, created_at, updated_at, deleted_at
		from users where id = $1
	`, id).Scan(&u.ID, &u.Email, &u.DisplayName, &u.Active, &u.LastEventID, &u.CreatedAt, &u.UpdatedAt, &deleted)
	if err != nil {
		return nil, notFound(err)
	}
	u.DeletedAt = timePtr(deleted)
	return &u, nil
}

func (s userStore) SoftDelete(ctx context.Context, id, eventID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users set deleted_at = $3, active = false, last_event_id = $2, updated_at = now()
		where id = $1
	`, id, eventID, at.UTC())
	if err != nil {
		return err
	}
	return affected(res)
}

type roleStore struct{ db *sql.DB }

func (s roleStore) Upsert(ctx context.Context, r *projection.Role) error {
	_, err := s.db.ExecContext(ctx, `
		insert into roles(id, organization_id, name, description, scope_bound, last_event_id, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, now(), now())
		on conflict (id) do update set
			organization_id = excluded.organization_id,
			name = excluded.name,
			description = excluded.description,
			scope_bound = excluded.scope_bound,
			last_event_id = excluded.last_event_id,
			updated_at = now()
	`, r.ID, r.OrganizationID, r.Name, r.Description, nullIfEmpty(string(r.ScopeBound)), r.LastEventID)
	return err
}

const roleColumns = `id, organization_id, name, description, coalesce(scope_bound, ''), last_event_id, created_at, updated_at, deleted_at`

func scanRole(row interface{ Scan(...any) error }) (*projection.Role, error) {
	var (
		r       projection.Role
		bound   string
		deleted sql.NullTime
	)
	err := row.Scan(&r.ID, &r.OrganizationID, &r.Name, &r.Description, &bound,
		&r.LastEventID, &r.CreatedAt, &r.UpdatedAt, &deleted)
	if err != nil {
		return nil, err
	}
	r.ScopeBound = scope.Path(bound)
	r.DeletedAt = timePtr(deleted)
	return &r, nil
}

func (s roleStore) Find(ctx context.Context, id string) (*projection.Role, error) {
	r, err := scanRole(s.db.QueryRowContext(ctx, `select `+roleColumns+` from roles where id = $1`, id))
	return r, notFound(err)
}

func (s roleStore) ListByOrg(ctx context.Context, orgID string) ([]*projection.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+roleColumns+` from roles
		where organization_id = $1 and deleted_at is null order by name asc
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*projection.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s roleStore) SoftDelete(ctx context.Context, id, eventID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update roles set deleted_at = $3, last_event_id = $2, updated_at = now()
		where id = $1
	`, id, eventID, at.UTC())
	if err != nil {
		return err
	}
	return affected(res)
}

type permStore struct{ db *sql.DB }

func (s permStore) Upsert(ctx context.Context, p *projection.Permission) error {
	_, err := s.db.ExecContext(ctx, `
		insert into permissions(key, area, action, description, retired, last_event_id, created_at)
		values ($1, $2, $3, $4, $5, $6, now())
		on conflict (key) do update set
			area = excluded.area,
			action = excluded.action,
			description = excluded.description,
			retired = excluded.retired,
			last_event_id = excluded.last_event_id
	`, p.Key, p.Area, p.Action, p.Description, p.Retired, p.LastEventID)
	return err
}

func (s permStore) Find(ctx context.Context, key string) (*projection.Permission, error) {
	var p projection.Permission
	err := s.db.QueryRowContext(ctx, `
		select key, area, action, description, retired, last_event_id, created_at
		from permissions where key = $1
	`, key).Scan(&p.Key, &p.Area, &p.Action, &p.Description, &p.Retired, &p.LastEventID, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s permStore) List(ctx context.Context) ([]*projection.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select key, area, action, description, retired, last_event_id, created_at
		from permissions order by key asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*projection.Permission
	for rows.Next() {
		var p projection.Permission
		if err := rows.Scan(&p.Key, &p.Area, &p.Action, &p.Description, &p.Retired, &p.LastEventID, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

type rolePermStore struct{ db *sql.DB }

func (s rolePermStore) Add(ctx context.Context, rp *projection.RolePermission) error {
	_, err := s.db.ExecContext(ctx, `
		insert into role_permissions(role_id, permission_key, last_event_id, created_at)
		values ($1, $2, $3, now())
		on conflict (role_id, permission_key) do update set last_event_id = excluded.last_event_id
	`, rp.RoleID, rp.PermissionKey, rp.LastEventID)
	return err
}

func (s rolePermStore) Remove(ctx context.Context, roleID, permissionKey string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from role_permissions where role_id = $1 and permission_key = $2`, roleID, permissionKey)
	return err
}

func (s rolePermStore) ListByRole(ctx context.Context, roleID string) ([]*projection.RolePermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role_id, permission_key, last_event_id, created_at
		from role_permissions where role_id = $1 order by permission_key asc
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*projection.RolePermission
	for rows.Next() {
		var rp projection.RolePermission
		if err := rows.Scan(&rp.RoleID, &rp.PermissionKey, &rp.LastEventID, &rp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &rp)
	}
	return out, rows.Err()
}

type grantStore struct{ db *sql.DB }

func (s grantStore) Upsert(ctx context.Context, g *projection.Grant) error {
	_, err := s.db.ExecContext(ctx, `
		insert into grants(id, user_id, role_id, organization_id, scope, valid_from, valid_until, last_event_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, now())
		on conflict (id) do update set
			user_id = excluded.user_id,
			role_id = excluded.role_id,
			organization_id = excluded.organization_id,
			scope = excluded.scope,
			valid_from = excluded.valid_from,
			valid_until = excluded.valid_until,
			last_event_id = excluded.last_event_id
	`, g.ID, g.UserID, g.RoleID, g.OrganizationID, nullIfEmpty(string(g.Scope)),
		nullTime(g.ValidFrom), nullTime(g.ValidUntil), g.LastEventID)
	return err
}

const grantColumns = `id, user_id, role_id, organization_id, coalesce(scope, ''), valid_from, valid_until, last_event_id, created_at`

func scanGrant(row interface{ Scan(...any) error }) (*projection.Grant, error) {
	var (
		g          projection.Grant
		sc         string
		from, till sql.NullTime
	)
	err := row.Scan(&g.ID, &g.UserID, &g.RoleID, &g.OrganizationID, &sc, &from, &till, &g.LastEventID, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	g.Scope = scope.Path(sc)
	g.ValidFrom = timePtr(from)
	g.ValidUntil = timePtr(till)
	return &g, nil
}

func (s grantStore) Find(ctx context.Context, id string) (*projection.Grant, error) {
	g, err := scanGrant(s.db.QueryRowContext(ctx, `select `+grantColumns+` from grants where id = $1`, id))
	return g, notFound(err)
}

func (s grantStore) ListByUser(ctx context.Context, userID string) ([]*projection.Grant, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+grantColumns+` from grants where user_id = $1 order by created_at asc`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*projection.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s grantStore) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from grants where id = $1`, id)
	return err
}

type scheduleStore struct{ db *sql.DB }

func (s scheduleStore) Upsert(ctx context.Context, sc *projection.Schedule) error {
	_, err := s.db.ExecContext(ctx, `
		insert into schedules(user_id, organization_id, starts_at, ends_at, last_event_id, updated_at)
		values ($1, $2, $3, $4, $5, now())
		on conflict (user_id, organization_id) do update set
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			last_event_id = excluded.last_event_id,
			updated_at = now()
	`, sc.UserID, sc.OrganizationID, nullTime(sc.StartsAt), nullTime(sc.EndsAt), sc.LastEventID)
	return err
}

func (s scheduleStore) Find(ctx context.Context, userID, orgID string) (*projection.Schedule, error) {
	var (
		sc         projection.Schedule
		from, till sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select user_id, organization_id, starts_at, ends_at, last_event_id, updated_at
		from schedules where user_id = $1 and organization_id = $2
	`, userID, orgID).Scan(&sc.UserID, &sc.OrganizationID, &from, &till, &sc.LastEventID, &sc.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	sc.StartsAt = timePtr(from)
	sc.EndsAt = timePtr(till)
	return &sc, nil
}

func (s scheduleStore) Remove(ctx context.Context, userID, orgID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from schedules where user_id = $1 and organization_id = $2`, userID, orgID)
	return err
}

type impStore struct{ db *sql.DB }

func (s impStore) Upsert(ctx context.Context, imp *projection.Impersonation) error {
	_, err := s.db.ExecContext(ctx, `
		insert into impersonations(id, actor_id, target_user_id, organization_id, started_at, last_event_id)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (id) do update set
			actor_id = excluded.actor_id,
			target_user_id = excluded.target_user_id,
			organization_id = excluded.organization_id,
			started_at = excluded.started_at,
			last_event_id = excluded.last_event_id
	`, imp.ID, imp.ActorID, imp.TargetUserID, imp.OrganizationID, imp.StartedAt.UTC(), imp.LastEventID)
	return err
}

func (s impStore) Find(ctx context.Context, id string) (*projection.Impersonation, error) {
	var imp projection.Impersonation
	err := s.db.QueryRowContext(ctx, `
		select id, actor_id, target_user_id, organization_id, started_at, last_event_id
		from impersonations where id = $1
	`, id).Scan(&imp.ID, &imp.ActorID, &imp.TargetUserID, &imp.OrganizationID, &imp.StartedAt, &imp.LastEventID)
	if err != nil {
		return nil, notFound(err)
	}
	return &imp, nil
}

func (s impStore) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from impersonations where id = $1`, id)
	return err
}

func (s impStore) ListActive(ctx context.Context) ([]*projection.Impersonation, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, actor_id, target_user_id, organization_id, started_at, last_event_id
		from impersonations order by started_at asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*projection.Impersonation
	for rows.Next() {
		var imp projection.Impersonation
		if err := rows.Scan(&imp.ID, &imp.ActorID, &imp.TargetUserID, &imp.OrganizationID, &imp.StartedAt, &imp.LastEventID); err != nil {
			return nil, err
		}
		out = append(out, &imp)
	}
	return out, rows.Err()
}

type linkStore struct{ db *sql.DB }

func (s linkStore) Add(ctx context.Context, l *projection.Link) error {
	_, err := s.db.ExecContext(ctx, `
		insert into links(kind, left_id, right_id, last_event_id, created_at)
		values ($1, $2, $3, $4, now())
		on conflict (kind, left_id, right_id) do update set last_event_id = excluded.last_event_id
	`, l.Kind, l.LeftID, l.RightID, l.LastEventID)
	return err
}

func (s linkStore) Remove(ctx context.Context, kind, leftID, rightID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from links where kind = $1 and left_id = $2 and right_id = $3`, kind, leftID, rightID)
	return err
}

func (s linkStore) List(ctx context.Context, kind string) ([]*projection.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		select kind, left_id, right_id, last_event_id, created_at
		from links where kind = $1 order by created_at asc
	`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*projection.Link
	for rows.Next() {
		var l projection.Link
		if err := rows.Scan(&l.Kind, &l.LeftID, &l.RightID, &l.LastEventID, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return projection.ErrNotFound
	}
	return nil
}
