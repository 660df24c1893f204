package model

import (
	"time"

	"github.com/verding/verding/internal/rbac"
)

// Property is a tenant unit: a physical or logical farm site users are
// granted role-based access to. It is the multi-tenancy boundary for
// every data query in the system.
type Property struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PropertyAccess links one user to one property. The three booleans are a
// denormalized copy of what the role implies at grant time; they are
// stored explicitly so individual grants can be tightened or widened, and
// reconciled against the role-derived defaults on demand.
type PropertyAccess struct {
	PropertyID          string    `json:"property_id"`
	PropertyName        string    `json:"property_name"`
	PropertyDescription string    `json:"property_description,omitempty"`
	UserID              string    `json:"-"`
	Role                rbac.Role `json:"role"`
	CanView             bool      `json:"can_view"`
	CanEdit             bool      `json:"can_edit"`
	CanManage           bool      `json:"can_manage"`
	GrantedBy           string    `json:"-"`
	GrantedAt           time.Time `json:"granted_at"`
}

// Grant converts the access row into the rbac fold input.
func (a PropertyAccess) Grant() rbac.PropertyGrant {
	return rbac.PropertyGrant{
		PropertyID: a.PropertyID,
		Role:       a.Role,
		CanView:    a.CanView,
		CanEdit:    a.CanEdit,
		CanManage:  a.CanManage,
	}
}

// Permissions returns the per-property capability set this grant implies
// for authorization decisions scoped to its property.
func (a PropertyAccess) Permissions() rbac.Permissions {
	return rbac.Permissions{
		CanView:      a.CanView,
		CanEdit:      a.CanEdit,
		CanManage:    a.CanManage,
		IsSuperAdmin: a.Role == rbac.RoleOwner,
	}
}

// AuthenticatedUser is the per-request aggregate built by the identity
// service: the identity record joined with its profile, every property
// grant, and the permissions of the currently active property only. It is
// never persisted; each authenticated request reconstructs it.
type AuthenticatedUser struct {
	ID               string           `json:"id"`
	Email            string           `json:"email"`
	Profile          UserProfile      `json:"profile"`
	Properties       []PropertyAccess `json:"properties"`
	ActivePropertyID string           `json:"active_property_id,omitempty"`
	Permissions      rbac.Permissions `json:"permissions"`
}

// AccessTo returns the grant for the given property, if any.
func (u *AuthenticatedUser) AccessTo(propertyID string) (PropertyAccess, bool) {
	for _, p := range u.Properties {
		if p.PropertyID == propertyID {
			return p, true
		}
	}
	return PropertyAccess{}, false
}

// RoleInActiveProperty returns the user's role for the active property,
// or "" when no active property is set or no grant matches it.
func (u *AuthenticatedUser) RoleInActiveProperty() rbac.Role {
	if u.ActivePropertyID == "" {
		return ""
	}
	if access, ok := u.AccessTo(u.ActivePropertyID); ok {
		return access.Role
	}
	return ""
}

// AccessiblePropertyIDs lists the ids of every property the user holds a
// grant for.
func (u *AuthenticatedUser) AccessiblePropertyIDs() []string {
	ids := make([]string, 0, len(u.Properties))
	for _, p := range u.Properties {
		ids = append(ids, p.PropertyID)
	}
	return ids
}

// IsSuperAdmin reports whether any grant carries the owner role. Super
// admins bypass property isolation but never authentication.
func (u *AuthenticatedUser) IsSuperAdmin() bool {
	return rbac.AnyPropertyPermissions(u.grants()).IsSuperAdmin
}

// AnyPropertyPermissions folds the user's grants into the most permissive
// cross-property view, for coarse UI gating only.
func (u *AuthenticatedUser) AnyPropertyPermissions() rbac.Permissions {
	return rbac.AnyPropertyPermissions(u.grants())
}

func (u *AuthenticatedUser) grants() []rbac.PropertyGrant {
	grants := make([]rbac.PropertyGrant, 0, len(u.Properties))
	for _, p := range u.Properties {
		grants = append(grants, p.Grant())
	}
	return grants
}
