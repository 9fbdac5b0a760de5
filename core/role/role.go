package role

import "strings"

// ID is the backend's stable role identifier. The backend transmits roles as
// numeric strings; the table below is the only place where they are given
// meaning. Matching is always by exact identifier, there is no hierarchy
// between roles.
type ID string

const (
	PlatformAdmin ID = "1"
	CompanyAdmin  ID = "2"
	Planner       ID = "3"
	Driver        ID = "4"
)

// Capabilities gate UI actions. They are advisory only; the backend performs
// its own authorization on every call.
const (
	CapCompaniesManage = "companies_manage"
	CapUsersManage     = "users_manage"
	CapVehiclesManage  = "vehicles_manage"
	CapMissionsManage  = "missions_manage"
	CapPlanningView    = "planning_view"
	CapInvoicesView    = "invoices_view"
	CapQuotesManage    = "quotes_manage"
	CapPartnersManage  = "partners_manage"
)

// Role describes what a role identifier grants: a display label, the landing
// dashboard after login, named capabilities, and the path prefixes the role
// may navigate to. The zero Role grants nothing.
type Role struct {
	ID        ID
	Label     string
	Dashboard string

	capabilities map[string]struct{}
	pathPrefixes []string
}

// Can reports whether the role grants the named capability.
func (r Role) Can(capability string) bool {
	_, ok := r.capabilities[capability]
	return ok
}

// AllowsPath reports whether the role may navigate to the given path.
// Matching is by path-segment prefix, so "/fleet" allows "/fleet/vehicles"
// but not "/fleeting".
func (r Role) AllowsPath(path string) bool {
	for _, prefix := range r.pathPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// IsZero reports whether the role is the zero value (unknown identifier).
func (r Role) IsZero() bool {
	return r.ID == ""
}

func newRole(id ID, label, dashboard string, prefixes []string, capabilities ...string) Role {
	caps := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		caps[c] = struct{}{}
	}
	return Role{
		ID:           id,
		Label:        label,
		Dashboard:    dashboard,
		capabilities: caps,
		pathPrefixes: prefixes,
	}
}

var table = map[ID]Role{
	PlatformAdmin: newRole(PlatformAdmin, "Platform Administrator", "/admin/dashboard",
		[]string{"/admin", "/companies", "/users", "/fleet", "/missions", "/planning", "/invoicing", "/quotes", "/partners", "/dashboard"},
		CapCompaniesManage, CapUsersManage, CapVehiclesManage, CapMissionsManage,
		CapPlanningView, CapInvoicesView, CapQuotesManage, CapPartnersManage,
	),
	CompanyAdmin: newRole(CompanyAdmin, "Company Administrator", "/dashboard",
		[]string{"/users", "/fleet", "/missions", "/planning", "/invoicing", "/quotes", "/partners", "/dashboard"},
		CapUsersManage, CapVehiclesManage, CapMissionsManage,
		CapPlanningView, CapInvoicesView, CapQuotesManage, CapPartnersManage,
	),
	Planner: newRole(Planner, "Planner", "/planning",
		[]string{"/fleet", "/missions", "/planning", "/dashboard"},
		CapMissionsManage, CapPlanningView,
	),
	Driver: newRole(Driver, "Driver", "/missions/my",
		[]string{"/missions/my", "/dashboard"},
	),
}

// ByID looks up a role by its identifier. The second return value is false
// for unknown identifiers; the returned zero Role grants no access.
func ByID(id ID) (Role, bool) {
	r, ok := table[id]
	return r, ok
}

// All returns the known roles in identifier order.
func All() []Role {
	return []Role{table[PlatformAdmin], table[CompanyAdmin], table[Planner], table[Driver]}
}
