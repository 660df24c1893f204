package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/verding/verding/internal/model"
	"github.com/verding/verding/internal/rbac"
)

// AccessRepo persists property access grants, the join rows that carry a
// user's role and capability booleans for one property.
type AccessRepo struct{ DB *sql.DB }

func NewAccessRepo(db *sql.DB) *AccessRepo { return &AccessRepo{DB: db} }

const accessColumns = `a.property_id, p.name, COALESCE(p.description,''), a.user_id, a.role,
	a.can_view, a.can_edit, a.can_manage, COALESCE(a.granted_by,''), a.granted_at`

// ListForUser returns every grant the user holds, joined with the
// property name and description, ordered by grant time.
func (r *AccessRepo) ListForUser(ctx context.Context, userID string) ([]model.PropertyAccess, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+accessColumns+`
		 FROM user_property_access a
		 JOIN properties p ON p.id = a.property_id
		 WHERE a.user_id = $1
		 ORDER BY a.granted_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccessRows(rows)
}

// ListMembers returns every grant on a property, newest first.
func (r *AccessRepo) ListMembers(ctx context.Context, propertyID string) ([]model.PropertyAccess, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+accessColumns+`
		 FROM user_property_access a
		 JOIN properties p ON p.id = a.property_id
		 WHERE a.property_id = $1
		 ORDER BY a.granted_at DESC`, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccessRows(rows)
}

// Get fetches a single grant. sql.ErrNoRows means the user has no access
// to the property.
func (r *AccessRepo) Get(ctx context.Context, userID, propertyID string) (model.PropertyAccess, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+accessColumns+`
		 FROM user_property_access a
		 JOIN properties p ON p.id = a.property_id
		 WHERE a.user_id = $1 AND a.property_id = $2
		 LIMIT 1`, userID, propertyID)
	var a model.PropertyAccess
	err := row.Scan(&a.PropertyID, &a.PropertyName, &a.PropertyDescription, &a.UserID,
		&a.Role, &a.CanView, &a.CanEdit, &a.CanManage, &a.GrantedBy, &a.GrantedAt)
	return a, err
}

// Grant inserts an access row with the role's default capability booleans.
// A duplicate grant maps to ErrConflict.
func (r *AccessRepo) Grant(ctx context.Context, userID, propertyID string, role rbac.Role, grantedBy string) error {
	perms := rbac.DefaultPermissionsForRole(role)
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO user_property_access (user_id, property_id, role, can_view, can_edit, can_manage, granted_by)
		 VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''))`,
		userID, propertyID, role, perms.CanView, perms.CanEdit, perms.CanManage, grantedBy)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

// UpdateRole changes a member's role and resets the capability booleans to
// the new role's defaults. Zero rows affected means no such grant exists.
func (r *AccessRepo) UpdateRole(ctx context.Context, userID, propertyID string, role rbac.Role) error {
	perms := rbac.DefaultPermissionsForRole(role)
	res, err := r.DB.ExecContext(ctx,
		`UPDATE user_property_access
		 SET role=$3, can_view=$4, can_edit=$5, can_manage=$6
		 WHERE user_id=$1 AND property_id=$2`,
		userID, propertyID, role, perms.CanView, perms.CanEdit, perms.CanManage)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Revoke removes a grant entirely.
func (r *AccessRepo) Revoke(ctx context.Context, userID, propertyID string) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM user_property_access WHERE user_id=$1 AND property_id=$2",
		userID, propertyID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Reconcile rewrites every grant's capability booleans to the defaults its
// stored role implies, returning the number of rows that actually changed.
// Drift appears when the role-to-capability mapping evolves after grants
// were written.
func (r *AccessRepo) Reconcile(ctx context.Context, propertyID string) (int64, error) {
	var total int64
	for _, role := range rbac.Roles() {
		perms := rbac.DefaultPermissionsForRole(role)
		res, err := r.DB.ExecContext(ctx,
			`UPDATE user_property_access
			 SET can_view=$3, can_edit=$4, can_manage=$5
			 WHERE property_id=$1 AND role=$2
			   AND (can_view<>$3 OR can_edit<>$4 OR can_manage<>$5)`,
			propertyID, role, perms.CanView, perms.CanEdit, perms.CanManage)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// OwnerID returns the user id of the property's creator, for resource
// ownership checks. sql.ErrNoRows means the property does not exist.
func (r *AccessRepo) OwnerID(ctx context.Context, propertyID string) (string, error) {
	var owner string
	err := r.DB.QueryRowContext(ctx,
		"SELECT created_by FROM properties WHERE id=$1 LIMIT 1", propertyID).Scan(&owner)
	return owner, err
}

func scanAccessRows(rows *sql.Rows) ([]model.PropertyAccess, error) {
	var out []model.PropertyAccess
	for rows.Next() {
		var a model.PropertyAccess
		if err := rows.Scan(&a.PropertyID, &a.PropertyName, &a.PropertyDescription, &a.UserID,
			&a.Role, &a.CanView, &a.CanEdit, &a.CanManage, &a.GrantedBy, &a.GrantedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
