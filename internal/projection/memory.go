package projection

import (
	"context"
	"sort"
	"sync"
	"time"

	"orgcore.org/internal/scope"
)

// InMemory holds every projection table behind one lock. Handlers run
// synchronously inside dispatch, so contention is bounded by emitters.
type InMemory struct {
	mu sync.RWMutex

	orgs      map[string]*Organization
	units     map[string]*OrgUnit
	users     map[string]*User
	roles     map[string]*Role
	perms     map[string]*Permission
	rolePerms map[string]*RolePermission // roleID + "\x00" + key
	grants    map[string]*Grant
	schedules map[string]*Schedule // userID + "\x00" + orgID
	addresses map[string]*Address  // userID
	phones    map[string]*Phone    // userID + "\x00" + number
	emails    map[string]*Email    // userID + "\x00" + address
	prefs     map[string]*NotificationPref
	imps      map[string]*Impersonation
	links     map[string]*Link // kind + "\x00" + left + "\x00" + right
}

// NewInMemory creates empty projection tables.
func NewInMemory() *InMemory {
	return &InMemory{
		orgs:      make(map[string]*Organization),
		units:     make(map[string]*OrgUnit),
		users:     make(map[string]*User),
		roles:     make(map[string]*Role),
		perms:     make(map[string]*Permission),
		rolePerms: make(map[string]*RolePermission),
		grants:    make(map[string]*Grant),
		schedules: make(map[string]*Schedule),
		addresses: make(map[string]*Address),
		phones:    make(map[string]*Phone),
		emails:    make(map[string]*Email),
		prefs:     make(map[string]*NotificationPref),
		imps:      make(map[string]*Impersonation),
		links:     make(map[string]*Link),
	}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) Organizations() OrganizationStore     { return (*memOrgs)(s) }
func (s *InMemory) Units() UnitStore                     { return (*memUnits)(s) }
func (s *InMemory) Users() UserStore                     { return (*memUsers)(s) }
func (s *InMemory) Roles() RoleStore                     { return (*memRoles)(s) }
func (s *InMemory) Permissions() PermissionStore         { return (*memPerms)(s) }
func (s *InMemory) RolePermissions() RolePermissionStore { return (*memRolePerms)(s) }
func (s *InMemory) Grants() GrantStore                   { return (*memGrants)(s) }
func (s *InMemory) Schedules() ScheduleStore             { return (*memSchedules)(s) }
func (s *InMemory) Contacts() ContactStore               { return (*memContacts)(s) }
func (s *InMemory) Impersonations() ImpersonationStore   { return (*memImps)(s) }
func (s *InMemory) Links() LinkStore                     { return (*memLinks)(s) }

func key2(a, b string) string    { return a + "\x00" + b }
func key3(a, b, c string) string { return a + "\x00" + b + "\x00" + c }

type memOrgs InMemory

func (m *memOrgs) Upsert(ctx context.Context, org *Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *org
	m.orgs[org.ID] = &cp
	return nil
}

func (m *memOrgs) Find(ctx context.Context, id string) (*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	org, ok := m.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (m *memOrgs) FindByPath(ctx context.Context, p scope.Path) (*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, org := range m.orgs {
		if org.Path == p && org.DeletedAt == nil {
			cp := *org
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memOrgs) List(ctx context.Context) ([]*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Organization, 0, len(m.orgs))
	for _, org := range m.orgs {
		cp := *org
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memOrgs) SoftDelete(ctx context.Context, id, eventID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	org.DeletedAt = &at
	org.LastEventID = eventID
	return nil
}

func (m *memOrgs) SetActiveSubtree(ctx context.Context, p scope.Path, active bool, eventID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, org := range m.orgs {
		if org.DeletedAt == nil && p.Contains(org.Path) {
			org.Active = active
			org.LastEventID = eventID
			org.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

type memUnits InMemory

func (m *memUnits) Upsert(ctx context.Context, unit *OrgUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *unit
	m.units[unit.ID] = &cp
	return nil
}

func (m *memUnits) Find(ctx context.Context, id string) (*OrgUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	unit, ok := m.units[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *unit
	return &cp, nil
}

func (m *memUnits) FindByPath(ctx context.Context, p scope.Path) (*OrgUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, unit := range m.units {
		if unit.Path == p && unit.DeletedAt == nil {
			cp := *unit
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUnits) ListByOrg(ctx context.Context, orgID string) ([]*OrgUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*OrgUnit
	for _, unit := range m.units {
		if unit.OrganizationID == orgID {
			cp := *unit
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memUnits) SoftDelete(ctx context.Context, id, eventID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, ok := m.units[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	unit.DeletedAt = &at
	unit.LastEventID = eventID
	return nil
}

func (m *memUnits) SetActiveSubtree(ctx context.Context, p scope.Path, active bool, eventID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, unit := range m.units {
		if unit.DeletedAt == nil && p.Contains(unit.Path) {
			unit.Active = active
			unit.LastEventID = eventID
			unit.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

type memUsers InMemory

func (m *memUsers) Upsert(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) Find(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) SoftDelete(ctx context.Context, id, eventID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	u.DeletedAt = &at
	u.Active = false
	u.LastEventID = eventID
	return nil
}

type memRoles InMemory

func (m *memRoles) Upsert(ctx context.Context, r *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.roles[r.ID] = &cp
	return nil
}

func (m *memRoles) Find(ctx context.Context, id string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRoles) ListByOrg(ctx context.Context, orgID string) ([]*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Role
	for _, r := range m.roles {
		if r.OrganizationID == orgID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRoles) SoftDelete(ctx context.Context, id, eventID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	r.DeletedAt = &at
	r.LastEventID = eventID
	return nil
}

type memPerms InMemory

func (m *memPerms) Upsert(ctx context.Context, p *Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.perms[p.Key] = &cp
	return nil
}

func (m *memPerms) Find(ctx context.Context, key string) (*Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.perms[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPerms) List(ctx context.Context) ([]*Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Permission, 0, len(m.perms))
	for _, p := range m.perms {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

type memRolePerms InMemory

func (m *memRolePerms) Add(ctx context.Context, rp *RolePermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key2(rp.RoleID, rp.PermissionKey)
	if _, exists := m.rolePerms[k]; exists {
		return nil
	}
	cp := *rp
	m.rolePerms[k] = &cp
	return nil
}

func (m *memRolePerms) Remove(ctx context.Context, roleID, permissionKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rolePerms, key2(roleID, permissionKey))
	return nil
}

func (m *memRolePerms) ListByRole(ctx context.Context, roleID string) ([]*RolePermission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*RolePermission
	for _, rp := range m.rolePerms {
		if rp.RoleID == roleID {
			cp := *rp
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermissionKey < out[j].PermissionKey })
	return out, nil
}

type memGrants InMemory

func (m *memGrants) Upsert(ctx context.Context, g *Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.grants[g.ID] = &cp
	return nil
}

func (m *memGrants) Find(ctx context.Context, id string) (*Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *memGrants) ListByUser(ctx context.Context, userID string) ([]*Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Grant
	for _, g := range m.grants {
		if g.UserID == userID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memGrants) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants, id)
	return nil
}

type memSchedules InMemory

func (m *memSchedules) Upsert(ctx context.Context, sch *Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sch
	m.schedules[key2(sch.UserID, sch.OrganizationID)] = &cp
	return nil
}

func (m *memSchedules) Find(ctx context.Context, userID, orgID string) (*Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sch, ok := m.schedules[key2(userID, orgID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sch
	return &cp, nil
}

func (m *memSchedules) Remove(ctx context.Context, userID, orgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, key2(userID, orgID))
	return nil
}

type memContacts InMemory

func (m *memContacts) UpsertAddress(ctx context.Context, a *Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.addresses[a.UserID] = &cp
	return nil
}

func (m *memContacts) FindAddress(ctx context.Context, userID string) (*Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.addresses[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memContacts) UpsertPhone(ctx context.Context, p *Phone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.phones[key2(p.UserID, p.Number)] = &cp
	return nil
}

func (m *memContacts) RemovePhone(ctx context.Context, userID, number string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.phones, key2(userID, number))
	return nil
}

func (m *memContacts) ListPhones(ctx context.Context, userID string) ([]*Phone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Phone
	for _, p := range m.phones {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memContacts) UpsertEmail(ctx context.Context, e *Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.emails[key2(e.UserID, e.Address)] = &cp
	return nil
}

func (m *memContacts) RemoveEmail(ctx context.Context, userID, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.emails, key2(userID, address))
	return nil
}

func (m *memContacts) ListEmails(ctx context.Context, userID string) ([]*Email, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Email
	for _, e := range m.emails {
		if e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (m *memContacts) UpsertPref(ctx context.Context, p *NotificationPref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.prefs[key3(p.UserID, p.Channel, p.Target)] = &cp
	return nil
}

func (m *memContacts) ListPrefs(ctx context.Context, userID string) ([]*NotificationPref, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*NotificationPref
	for _, p := range m.prefs {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].Target < out[j].Target
	})
	return out, nil
}

func (m *memContacts) DisablePrefs(ctx context.Context, userID, channel, target, eventID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.prefs {
		if p.UserID == userID && p.Channel == channel && p.Target == target && p.Enabled {
			p.Enabled = false
			p.LastEventID = eventID
			p.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

type memImps InMemory

func (m *memImps) Upsert(ctx context.Context, imp *Impersonation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *imp
	m.imps[imp.ID] = &cp
	return nil
}

func (m *memImps) Find(ctx context.Context, id string) (*Impersonation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	imp, ok := m.imps[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *imp
	return &cp, nil
}

func (m *memImps) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.imps, id)
	return nil
}

func (m *memImps) ListActive(ctx context.Context) ([]*Impersonation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Impersonation, 0, len(m.imps))
	for _, imp := range m.imps {
		cp := *imp
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memLinks InMemory

func (m *memLinks) Add(ctx context.Context, l *Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key3(l.Kind, l.LeftID, l.RightID)
	if _, exists := m.links[k]; exists {
		return nil
	}
	cp := *l
	m.links[k] = &cp
	return nil
}

func (m *memLinks) Remove(ctx context.Context, kind, leftID, rightID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.links, key3(kind, leftID, rightID))
	return nil
}

func (m *memLinks) List(ctx context.Context, kind string) ([]*Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Link
	for _, l := range m.links {
		if l.Kind == kind {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LeftID != out[j].LeftID {
			return out[i].LeftID < out[j].LeftID
		}
		return out[i].RightID < out[j].RightID
	})
	return out, nil
}
