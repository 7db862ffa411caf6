package projection

import (
	"time"

	"orgcore.org/internal/scope"
)

// Projection rows are derived exclusively from events. Every row records the
// id of the last event applied to it. Deletion discipline differs per table:
// organizations, units, users and roles are soft-deleted (row kept, DeletedAt
// set); role permissions, grants, phones, emails, impersonations and links are
// hard-deleted on revocation. Callers must not assume one discipline applies
// everywhere.

// Organization is a tenant root or intermediate node of the hierarchy tree.
type Organization struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Kind        string     `json:"kind"` // feature gating: "customer", "partner", "internal"
	Domain      string     `json:"domain,omitempty"`
	Path        scope.Path `json:"path"`
	Active      bool       `json:"active"`
	LastEventID string     `json:"last_event_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// OrgUnit is a sub-unit below an organization in the same path tree.
type OrgUnit struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Name           string     `json:"name"`
	Path           scope.Path `json:"path"`
	Active         bool       `json:"active"`
	LastEventID    string     `json:"last_event_id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// User is a person or service account.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Active      bool       `json:"active"`
	LastEventID string     `json:"last_event_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Role groups permissions; ScopeBound limits how deep it can ever be
// exercised. A zero bound means the role itself is unrestricted.
type Role struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	ScopeBound     scope.Path `json:"scope_bound,omitempty"`
	LastEventID    string     `json:"last_event_id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Permission is a leaf capability keyed by "area.action".
type Permission struct {
	Key         string    `json:"key"`
	Area        string    `json:"area"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	Retired     bool      `json:"retired"`
	LastEventID string    `json:"last_event_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// RolePermission links a role to a permission. Hard-deleted on revocation.
type RolePermission struct {
	RoleID        string    `json:"role_id"`
	PermissionKey string    `json:"permission_key"`
	LastEventID   string    `json:"last_event_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Grant assigns a role to a user within an organization, optionally narrowed
// to a scope path and bounded by a validity window. Hard-deleted on revoke.
type Grant struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	RoleID         string     `json:"role_id"`
	OrganizationID string     `json:"organization_id"`
	Scope          scope.Path `json:"scope,omitempty"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
	LastEventID    string     `json:"last_event_id"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ActiveAt reports whether the grant's validity window contains at. Both
// bounds are inclusive: a grant valid until T still applies at exactly T.
func (g Grant) ActiveAt(at time.Time) bool {
	if g.ValidFrom != nil && at.Before(*g.ValidFrom) {
		return false
	}
	if g.ValidUntil != nil && at.After(*g.ValidUntil) {
		return false
	}
	return true
}

// Schedule is a user's access window for one organization. Keyed by
// (UserID, OrganizationID); cleared schedules are removed.
type Schedule struct {
	UserID         string     `json:"user_id"`
	OrganizationID string     `json:"organization_id"`
	StartsAt       *time.Time `json:"starts_at,omitempty"`
	EndsAt         *time.Time `json:"ends_at,omitempty"`
	LastEventID    string     `json:"last_event_id"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Allows reports whether the window permits access at the given instant.
// Both bounds are inclusive, matching the grant validity window.
func (s Schedule) Allows(at time.Time) bool {
	if s.StartsAt != nil && at.Before(*s.StartsAt) {
		return false
	}
	if s.EndsAt != nil && at.After(*s.EndsAt) {
		return false
	}
	return true
}

// Address is a user's postal address, one per user.
type Address struct {
	UserID      string    `json:"user_id"`
	Street      string    `json:"street"`
	City        string    `json:"city"`
	PostalCode  string    `json:"postal_code"`
	Country     string    `json:"country"`
	LastEventID string    `json:"last_event_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Phone is one of a user's phone numbers. Hard-deleted on removal.
type Phone struct {
	UserID      string    `json:"user_id"`
	Number      string    `json:"number"`
	Verified    bool      `json:"verified"`
	LastEventID string    `json:"last_event_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Email is one of a user's addresses beyond the login email. Hard-deleted on
// removal.
type Email struct {
	UserID      string    `json:"user_id"`
	Address     string    `json:"address"`
	Verified    bool      `json:"verified"`
	LastEventID string    `json:"last_event_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Notification channels.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// NotificationPref routes notifications for a user over one channel to one
// target (a phone number or email address).
type NotificationPref struct {
	UserID      string    `json:"user_id"`
	Channel     string    `json:"channel"`
	Target      string    `json:"target"`
	Enabled     bool      `json:"enabled"`
	LastEventID string    `json:"last_event_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Impersonation records an administrator acting as another user. Row removed
// when the impersonation ends.
type Impersonation struct {
	ID             string    `json:"id"`
	ActorID        string    `json:"actor_id"`
	TargetUserID   string    `json:"target_user_id"`
	OrganizationID string    `json:"organization_id"`
	StartedAt      time.Time `json:"started_at"`
	LastEventID    string    `json:"last_event_id"`
}

// Link is a junction row between two aggregates, recorded by relationship
// events. Hard-deleted on unlink.
type Link struct {
	Kind        string    `json:"kind"`
	LeftID      string    `json:"left_id"`
	RightID     string    `json:"right_id"`
	LastEventID string    `json:"last_event_id"`
	CreatedAt   time.Time `json:"created_at"`
}
