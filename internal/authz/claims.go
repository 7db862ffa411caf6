package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orgcore.org/internal/projection"
)

// Block reasons reported in a degraded claims payload.
const (
	BlockOutsideWindow = "outside_access_window"
	BlockUserInactive  = "user_inactive"
	BlockOrgInactive   = "organization_inactive"
)

// Claims is the per-session authorization payload. It is computed once at
// session establishment; later permission changes only land on the next
// recomputation. When Blocked is set the permission list is empty and callers
// must not trust anything beyond the identifiers. SessionID ties the token to
// its cache entry so dropping the entry ends the session before JWT expiry.
type Claims struct {
	UserID           string                `json:"user_id"`
	OrganizationID   string                `json:"organization_id"`
	OrganizationKind string                `json:"organization_kind,omitempty"`
	SessionID        string                `json:"session_id,omitempty"`
	Permissions      []EffectivePermission `json:"permissions,omitempty"`
	Blocked          bool                  `json:"blocked,omitempty"`
	BlockReason      string                `json:"block_reason,omitempty"`
	IssuedAt         time.Time             `json:"issued_at"`
}

// HasPermission reports whether the claims carry the permission at all.
// Blocked claims never grant anything.
func (c Claims) HasPermission(key string) bool {
	if c.Blocked {
		return false
	}
	for _, ep := range c.Permissions {
		if ep.Key == key {
			return true
		}
	}
	return false
}

// BuildClaims assembles the session context for a user inside an
// organization. A user whose access window for the organization excludes at
// gets a minimal, explicitly blocked payload instead of an error, so session
// establishment itself never fails on scheduling.
func (en *Engine) BuildClaims(ctx context.Context, userID, orgID string, at time.Time) (Claims, error) {
	if userID == "" || orgID == "" {
		return Claims{}, fmt.Errorf("%w: user id and organization id are required", ErrInvalidInput)
	}
	user, err := en.store.Users().Find(ctx, userID)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return Claims{}, fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return Claims{}, err
	}
	org, err := en.store.Organizations().Find(ctx, orgID)
	if err != nil {
		if errors.Is(err, projection.ErrNotFound) {
			return Claims{}, fmt.Errorf("%w: organization %s", ErrNotFound, orgID)
		}
		return Claims{}, err
	}

	blocked := func(reason string) Claims {
		return Claims{
			UserID:         userID,
			OrganizationID: orgID,
			Blocked:        true,
			BlockReason:    reason,
			IssuedAt:       at.UTC(),
		}
	}

	if !user.Active || user.DeletedAt != nil {
		return blocked(BlockUserInactive), nil
	}
	if !org.Active || org.DeletedAt != nil {
		return blocked(BlockOrgInactive), nil
	}
	if sched, err := en.store.Schedules().Find(ctx, userID, orgID); err == nil {
		if !sched.Allows(at) {
			return blocked(BlockOutsideWindow), nil
		}
	} else if !errors.Is(err, projection.ErrNotFound) {
		return Claims{}, err
	}

	perms, err := en.EffectiveSet(ctx, userID, at)
	if err != nil {
		return Claims{}, err
	}
	return Claims{
		UserID:           userID,
		OrganizationID:   orgID,
		OrganizationKind: org.Kind,
		Permissions:      perms,
		IssuedAt:         at.UTC(),
	}, nil
}
