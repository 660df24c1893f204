// Package rbac defines the role hierarchy and the resource/action
// permission matrix used for every authorization decision in the API.
// Everything in this package is static data plus pure functions: there is
// no I/O, no locking is needed for concurrent readers, and no function
// here ever returns an error — an unknown role, resource or action simply
// evaluates to "denied".
package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Role is one of six ordered trust levels a user can hold on a property.
type Role string

const (
	RoleClient   Role = "client"
	RoleViewer   Role = "viewer"
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
	RoleOwner    Role = "owner"
)

// roleLevels orders roles by trust. Higher level = more permissions.
var roleLevels = map[Role]int{
	RoleClient:   1,
	RoleViewer:   2,
	RoleEmployee: 3,
	RoleManager:  4,
	RoleAdmin:    5,
	RoleOwner:    6,
}

// Roles lists every role in ascending level order.
func Roles() []Role {
	all := make([]Role, 0, len(roleLevels))
	for r := range roleLevels {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return roleLevels[all[i]] < roleLevels[all[j]] })
	return all
}

// Level returns the numeric level of a role, or 0 for an unknown role so
// that comparisons against any defined requirement fail.
func Level(r Role) int { return roleLevels[r] }

// ParseRole normalizes a raw string into a Role. ok is false when the
// value does not name a known role.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := roleLevels[r]
	return r, ok
}

// Resource is a kind of entity permissions are checked against.
type Resource string

const (
	ResourceProperty     Resource = "property"
	ResourceBatch        Resource = "batch"
	ResourceHarvest      Resource = "harvest"
	ResourceInventory    Resource = "inventory"
	ResourceEquipment    Resource = "equipment"
	ResourceSensor       Resource = "sensor"
	ResourceUser         Resource = "user"
	ResourceReport       Resource = "report"
	ResourceSetting      Resource = "setting"
	ResourceAgentMemory  Resource = "agent_memory"
	ResourceWorkflow     Resource = "workflow"
	ResourceNotification Resource = "notification"
)

// Action is an operation performed on a resource kind.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionManage  Action = "manage"
	ActionInvite  Action = "invite"
	ActionExport  Action = "export"
	ActionArchive Action = "archive"
)

// AllResources enumerates every resource kind in the matrix.
var AllResources = []Resource{
	ResourceProperty, ResourceBatch, ResourceHarvest, ResourceInventory,
	ResourceEquipment, ResourceSensor, ResourceUser, ResourceReport,
	ResourceSetting, ResourceAgentMemory, ResourceWorkflow, ResourceNotification,
}

// AllActions enumerates every action in the matrix.
var AllActions = []Action{
	ActionCreate, ActionRead, ActionUpdate, ActionDelete,
	ActionManage, ActionInvite, ActionExport, ActionArchive,
}

// permissionMatrix maps (resource, action) to the minimum role level
// required. A missing entry means the action is denied to everyone; the
// lookup path treats that as "false", never as a panic.
var permissionMatrix = map[Resource]map[Action]int{
	ResourceProperty: {
		ActionCreate:  roleLevels[RoleOwner], // only owners create properties
		ActionRead:    roleLevels[RoleClient],
		ActionUpdate:  roleLevels[RoleAdmin],
		ActionDelete:  roleLevels[RoleOwner],
		ActionManage:  roleLevels[RoleAdmin],
		ActionInvite:  roleLevels[RoleManager],
		ActionExport:  roleLevels[RoleViewer],
		ActionArchive: roleLevels[RoleOwner],
	},
	ResourceBatch: {
		ActionCreate:  roleLevels[RoleEmployee],
		ActionRead:    roleLevels[RoleClient],
		ActionUpdate:  roleLevels[RoleEmployee],
		ActionDelete:  roleLevels[RoleManager],
		ActionManage:  roleLevels[RoleManager],
		ActionInvite:  roleLevels[RoleManager],
		ActionExport:  roleLevels[RoleViewer],
		ActionArchive: roleLevels[RoleManager],
	},
	ResourceHarvest: {
		ActionCreate:  roleLevels[RoleEmployee],
		ActionRead:    roleLevels[RoleClient],
		ActionUpdate:  roleLevels[RoleEmployee],
		ActionDelete:  roleLevels[RoleManager],
		ActionManage:  roleLevels[RoleManager],
		ActionInvite:  roleLevels[RoleManager],
		ActionExport:  roleLevels[RoleViewer],
		ActionArchive: roleLevels[RoleManager],
	},
	ResourceInventory: {
		ActionCreate:  roleLevels[RoleEmployee],
		ActionRead:    roleLevels[RoleViewer],
		ActionUpdate:  roleLevels[RoleEmployee],
		ActionDelete:  roleLevels[RoleManager],
		ActionManage:  roleLevels[RoleManager],
		ActionInvite:  roleLevels[RoleManager],
		ActionExport:  roleLevels[RoleViewer],
		ActionArchive: roleLevels[RoleManager],
	},
	ResourceEquipment: {
		ActionCreate:  roleLevels[RoleManager],
		ActionRead:    roleLevels[RoleViewer],
		ActionUpdate:  roleLevels[RoleEmployee],
		ActionDelete:  roleLevels[RoleAdmin],
		ActionManage:  roleLevels[RoleManager],
		ActionInvite:  roleLevels[RoleManager],
		ActionExport:  roleLevels[RoleViewer],
		ActionArchive: roleLevels[RoleAdmin],
	},
	ResourceSensor: {
		ActionCreate:  roleLevels[RoleManager],
		ActionRead:    roleLevels[RoleViewer],
		ActionUpdate:  roleLevels[RoleEmployee],
		ActionDelete:  roleLevels[RoleAdmin],
		ActionManage:  roleLevels[RoleManager],
		ActionInvite:  roleLevels[RoleManager],
		ActionExport:  roleLevels[RoleViewer],
		ActionArchive: roleLevels[RoleAdmin],
	},
	ResourceUser: {
		ActionCreate:  roleLevels[RoleManager], // inviting counts as creating
		ActionRead:    roleLevels[RoleViewer],
		ActionUpdate:  roleLevels[RoleAdmin],
		ActionDelete:  roleLevels[RoleOwner],
		ActionManage:  roleLevels[RoleAdmin],
		ActionInvite:  roleLevels[RoleManager],
		ActionExport:  roleLevels[RoleAdmin],
		ActionArchive: roleLevels[RoleAdmin],
	},
	ResourceReport: {
		ActionCreate:  roleLevels[RoleEmployee],
		ActionRead:    roleLevels[RoleViewer],
		ActionUpdate:  roleLevels[RoleEmployee],
		ActionDelete:  roleLevels[RoleManager],
		ActionManage:  roleLevels[RoleManager],
		ActionInvite:  roleLevels[RoleManager],
		ActionExport:  roleLevels[RoleViewer],
		ActionArchive: roleLevels[RoleManager],
	},
	ResourceSetting: {
		ActionCreate:  roleLevels[RoleAdmin],
		ActionRead:    roleLevels[RoleManager],
		ActionUpdate:  roleLevels[RoleAdmin],
		ActionDelete:  roleLevels[RoleOwner],
		ActionManage:  roleLevels[RoleAdmin],
		ActionInvite:  roleLevels[RoleAdmin],
		ActionExport:  roleLevels[RoleAdmin],
		ActionArchive: roleLevels[RoleOwner],
	},
	ResourceAgentMemory: {
		ActionCreate:  roleLevels[RoleEmployee],
		ActionRead:    roleLevels[RoleViewer],
		ActionUpdate:  roleLevels[RoleEmployee],
		ActionDelete:  roleLevels[RoleManager],
		ActionManage:  roleLevels[RoleManager],
		ActionInvite:  roleLevels[RoleManager],
		ActionExport:  roleLevels[RoleViewer],
		ActionArchive: roleLevels[RoleManager],
	},
	ResourceWorkflow: {
		ActionCreate:  roleLevels[RoleManager],
		ActionRead:    roleLevels[RoleEmployee],
		ActionUpdate:  roleLevels[RoleManager],
		ActionDelete:  roleLevels[RoleAdmin],
		ActionManage:  roleLevels[RoleAdmin],
		ActionInvite:  roleLevels[RoleManager],
		ActionExport:  roleLevels[RoleManager],
		ActionArchive: roleLevels[RoleAdmin],
	},
	ResourceNotification: {
		ActionCreate:  roleLevels[RoleEmployee],
		ActionRead:    roleLevels[RoleClient],
		ActionUpdate:  roleLevels[RoleEmployee],
		ActionDelete:  roleLevels[RoleManager],
		ActionManage:  roleLevels[RoleManager],
		ActionInvite:  roleLevels[RoleManager],
		ActionExport:  roleLevels[RoleViewer],
		ActionArchive: roleLevels[RoleManager],
	},
}

// Permissions is the coarse per-property capability set. The booleans are
// stored denormalized on each access grant; IsSuperAdmin is derived, never
// stored.
type Permissions struct {
	CanView      bool `json:"can_view"`
	CanEdit      bool `json:"can_edit"`
	CanManage    bool `json:"can_manage"`
	IsSuperAdmin bool `json:"is_super_admin"`
}

// HasPermission reports whether a role may perform action on resource.
// Undefined matrix entries and unknown roles evaluate to false.
func HasPermission(role Role, resource Resource, action Action) bool {
	actions, ok := permissionMatrix[resource]
	if !ok {
		return false
	}
	required, ok := actions[action]
	if !ok {
		return false
	}
	return roleLevels[role] >= required
}

// CanManageRole reports whether managerRole may act on users holding
// targetRole. The comparison is strict: a role never manages a peer or a
// superior, itself included.
func CanManageRole(managerRole, targetRole Role) bool {
	return roleLevels[managerRole] > roleLevels[targetRole]
}

// CanChangeRole reports whether changerRole may move a user from
// currentRole to newRole. Both ends of the transition must be manageable.
func CanChangeRole(changerRole, currentRole, newRole Role) bool {
	return CanManageRole(changerRole, currentRole) && CanManageRole(changerRole, newRole)
}

// CanInviteWithRole reports whether inviterRole may invite a new user at
// inviteeRole: the invitee must be manageable and the inviter must hold
// the user:invite permission.
func CanInviteWithRole(inviterRole, inviteeRole Role) bool {
	if !CanManageRole(inviterRole, inviteeRole) {
		return false
	}
	return HasPermission(inviterRole, ResourceUser, ActionInvite)
}

// AllowedRolesToAssign returns every role strictly below the given role,
// in ascending level order.
func AllowedRolesToAssign(role Role) []Role {
	level := roleLevels[role]
	allowed := make([]Role, 0, len(roleLevels))
	for _, r := range Roles() {
		if roleLevels[r] < level {
			allowed = append(allowed, r)
		}
	}
	return allowed
}

// DefaultPermissionsForRole computes the denormalized grant booleans a role
// implies at grant time. Grants store these explicitly and callers may
// override them; see PropertyAccessStore reconciliation.
func DefaultPermissionsForRole(role Role) Permissions {
	level := roleLevels[role]
	return Permissions{
		CanView:      level >= roleLevels[RoleClient],
		CanEdit:      level >= roleLevels[RoleEmployee],
		CanManage:    level >= roleLevels[RoleManager],
		IsSuperAdmin: role == RoleOwner,
	}
}

// PropertyGrant is the subset of an access grant this package needs to
// fold permissions across properties. It avoids a dependency on the model
// package.
type PropertyGrant struct {
	PropertyID string
	Role       Role
	CanView    bool
	CanEdit    bool
	CanManage  bool
}

// AnyPropertyPermissions folds grants into the most permissive view across
// all of a user's properties: a boolean OR of the stored flags, with
// IsSuperAdmin set iff any grant carries the owner role. This is the
// coarse "can the user do this anywhere" signal for UI gating; per-request
// authorization always uses the active property's grant alone.
func AnyPropertyPermissions(grants []PropertyGrant) Permissions {
	var p Permissions
	for _, g := range grants {
		if g.CanView {
			p.CanView = true
		}
		if g.CanEdit {
			p.CanEdit = true
		}
		if g.CanManage {
			p.CanManage = true
		}
		if g.Role == RoleOwner {
			p.IsSuperAdmin = true
		}
	}
	return p
}

// ResourcePermissions expands one matrix row into per-action booleans for
// the given role.
func ResourcePermissions(role Role, resource Resource) map[Action]bool {
	level := roleLevels[role]
	out := make(map[Action]bool, len(AllActions))
	for action, required := range permissionMatrix[resource] {
		out[action] = level >= required
	}
	return out
}

// HasManagementPermissions reports whether the role is manager or above.
func HasManagementPermissions(role Role) bool {
	return roleLevels[role] >= roleLevels[RoleManager]
}

// HasAdminPermissions reports whether the role is admin or above.
func HasAdminPermissions(role Role) bool {
	return roleLevels[role] >= roleLevels[RoleAdmin]
}

// IsPropertyOwner reports whether the role is the owner role.
func IsPropertyOwner(role Role) bool { return role == RoleOwner }

// RoleInfo describes a role for display purposes.
type RoleInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Level       int         `json:"level"`
	Permissions Permissions `json:"permissions"`
}

var roleDescriptions = map[Role]string{
	RoleClient:   "External client with read-only access to specific data",
	RoleViewer:   "Read-only access to property operations and reports",
	RoleEmployee: "Can view and edit operational data, create batches and harvests",
	RoleManager:  "Can manage operations, invite users, and oversee workflows",
	RoleAdmin:    "Full administrative access except property ownership",
	RoleOwner:    "Complete control over property and all users",
}

// Info returns display information for a role.
func Info(role Role) RoleInfo {
	name := string(role)
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return RoleInfo{
		Name:        name,
		Description: roleDescriptions[role],
		Level:       roleLevels[role],
		Permissions: DefaultPermissionsForRole(role),
	}
}

// ValidateConfiguration checks at startup that the matrix is total: every
// declared (resource, action) pair must carry a required level. The maps
// above are hand-maintained, so a missing entry is a programming error the
// process should refuse to start with.
func ValidateConfiguration() error {
	for _, resource := range AllResources {
		actions, ok := permissionMatrix[resource]
		if !ok {
			return fmt.Errorf("rbac: no permissions defined for resource %q", resource)
		}
		for _, action := range AllActions {
			if _, ok := actions[action]; !ok {
				return fmt.Errorf("rbac: missing permission definition for %s.%s", resource, action)
			}
		}
	}
	for _, role := range Roles() {
		if _, ok := roleDescriptions[role]; !ok {
			return fmt.Errorf("rbac: missing description for role %q", role)
		}
	}
	return nil
}
