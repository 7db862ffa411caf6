package projection

import (
	"context"
	"errors"
	"time"

	"orgcore.org/internal/scope"
)

var (
	ErrNotFound = errors.New("projection: not found")
)

// Store groups the per-aggregate projection stores, in the same shape the
// query layer consumes them. All writes are idempotent upserts keyed by the
// aggregate's natural id, so re-applying an event is a no-op.
type Store interface {
	Organizations() OrganizationStore
	Units() UnitStore
	Users() UserStore
	Roles() RoleStore
	Permissions() PermissionStore
	RolePermissions() RolePermissionStore
	Grants() GrantStore
	Schedules() ScheduleStore
	Contacts() ContactStore
	Impersonations() ImpersonationStore
	Links() LinkStore
}

// OrganizationStore manages organization rows (soft-delete discipline).
type OrganizationStore interface {
	Upsert(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
	FindByPath(ctx context.Context, p scope.Path) (*Organization, error)
	List(ctx context.Context) ([]*Organization, error)
	SoftDelete(ctx context.Context, id, eventID string, at time.Time) error
	// SetActiveSubtree flips Active on every organization whose path is
	// contained by p, as one set operation. Returns rows affected.
	SetActiveSubtree(ctx context.Context, p scope.Path, active bool, eventID string) (int, error)
}

// UnitStore manages organization-unit rows (soft-delete discipline).
type UnitStore interface {
	Upsert(ctx context.Context, unit *OrgUnit) error
	Find(ctx context.Context, id string) (*OrgUnit, error)
	FindByPath(ctx context.Context, p scope.Path) (*OrgUnit, error)
	ListByOrg(ctx context.Context, orgID string) ([]*OrgUnit, error)
	SoftDelete(ctx context.Context, id, eventID string, at time.Time) error
	SetActiveSubtree(ctx context.Context, p scope.Path, active bool, eventID string) (int, error)
}

// UserStore manages user rows (soft-delete discipline).
type UserStore interface {
	Upsert(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	SoftDelete(ctx context.Context, id, eventID string, at time.Time) error
}

// RoleStore manages role rows (soft-delete discipline).
type RoleStore interface {
	Upsert(ctx context.Context, r *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	ListByOrg(ctx context.Context, orgID string) ([]*Role, error)
	SoftDelete(ctx context.Context, id, eventID string, at time.Time) error
}

// PermissionStore manages the capability catalog.
type PermissionStore interface {
	Upsert(ctx context.Context, p *Permission) error
	Find(ctx context.Context, key string) (*Permission, error)
	List(ctx context.Context) ([]*Permission, error)
}

// RolePermissionStore manages role-permission links (hard-delete discipline).
type RolePermissionStore interface {
	Add(ctx context.Context, rp *RolePermission) error
	Remove(ctx context.Context, roleID, permissionKey string) error
	ListByRole(ctx context.Context, roleID string) ([]*RolePermission, error)
}

// GrantStore manages role assignments (hard-delete discipline).
type GrantStore interface {
	Upsert(ctx context.Context, g *Grant) error
	Find(ctx context.Context, id string) (*Grant, error)
	ListByUser(ctx context.Context, userID string) ([]*Grant, error)
	Remove(ctx context.Context, id string) error
}

// ScheduleStore manages per-user access windows, keyed (user, org).
type ScheduleStore interface {
	Upsert(ctx context.Context, s *Schedule) error
	Find(ctx context.Context, userID, orgID string) (*Schedule, error)
	Remove(ctx context.Context, userID, orgID string) error
}

// ContactStore manages addresses, phones, emails and notification
// preferences. Phones and emails are hard-deleted on removal.
type ContactStore interface {
	UpsertAddress(ctx context.Context, a *Address) error
	FindAddress(ctx context.Context, userID string) (*Address, error)
	UpsertPhone(ctx context.Context, p *Phone) error
	RemovePhone(ctx context.Context, userID, number string) error
	ListPhones(ctx context.Context, userID string) ([]*Phone, error)
	UpsertEmail(ctx context.Context, e *Email) error
	RemoveEmail(ctx context.Context, userID, address string) error
	ListEmails(ctx context.Context, userID string) ([]*Email, error)
	UpsertPref(ctx context.Context, p *NotificationPref) error
	ListPrefs(ctx context.Context, userID string) ([]*NotificationPref, error)
	// DisablePrefs disables every preference of the user on the channel that
	// routes to target, as one set operation. Returns rows affected.
	DisablePrefs(ctx context.Context, userID, channel, target, eventID string) (int, error)
}

// ImpersonationStore manages active impersonation rows (removed on end).
type ImpersonationStore interface {
	Upsert(ctx context.Context, imp *Impersonation) error
	Find(ctx context.Context, id string) (*Impersonation, error)
	Remove(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]*Impersonation, error)
}

// LinkStore manages junction rows (hard-delete discipline).
type LinkStore interface {
	Add(ctx context.Context, l *Link) error
	Remove(ctx context.Context, kind, leftID, rightID string) error
	List(ctx context.Context, kind string) ([]*Link, error)
}
