package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/verding/verding/internal/model"
)

// InvitationRepo persists invitations. All status transitions are
// conditional updates: the WHERE clause names the state the row must
// still be in, and zero affected rows surfaces as ErrInvalidStatus. That
// is what keeps a token single-use when two requests race on it.
type InvitationRepo struct{ DB *sql.DB }

func NewInvitationRepo(db *sql.DB) *InvitationRepo { return &InvitationRepo{DB: db} }

const invitationColumns = `i.id, i.email, i.property_id, p.name, i.invited_by,
	COALESCE(u.full_name,''), i.role, i.status, i.token, i.expires_at, i.created_at,
	i.accepted_at, COALESCE(i.message,'')`

const invitationJoins = ` FROM invitations i
	 JOIN properties p ON p.id = i.property_id
	 LEFT JOIN user_profiles u ON u.id = i.invited_by`

// Create inserts a pending invitation. A still-pending invitation for the
// same email and property maps to ErrConflict.
func (r *InvitationRepo) Create(ctx context.Context, data model.CreateInvitationData, invitedBy, token string, expiresAt time.Time) (model.Invitation, error) {
	inv := model.Invitation{
		ID:         uuid.NewString(),
		Email:      strings.ToLower(strings.TrimSpace(data.Email)),
		PropertyID: data.PropertyID,
		InvitedBy:  invitedBy,
		Role:       data.Role,
		Status:     model.InvitationPending,
		Token:      token,
		ExpiresAt:  expiresAt,
		Message:    data.Message,
	}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO invitations (id, email, property_id, invited_by, role, status, token, expires_at, message)
		 VALUES ($1,$2,$3,$4,$5,'pending',$6,$7,NULLIF($8,''))
		 RETURNING created_at`,
		inv.ID, inv.Email, inv.PropertyID, inv.InvitedBy, inv.Role, inv.Token, inv.ExpiresAt, inv.Message).
		Scan(&inv.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return model.Invitation{}, ErrConflict
		}
		return model.Invitation{}, err
	}
	return inv, nil
}

// HasPending reports whether a pending invitation already exists for the
// email and property pair.
func (r *InvitationRepo) HasPending(ctx context.Context, email, propertyID string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM invitations WHERE email=$1 AND property_id=$2 AND status='pending')`,
		email, propertyID).Scan(&exists)
	return exists, err
}

// GetByToken fetches an invitation by its token, including the token in
// the result.
func (r *InvitationRepo) GetByToken(ctx context.Context, token string) (model.Invitation, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+invitationColumns+invitationJoins+" WHERE i.token=$1 LIMIT 1", token)
	return scanInvitation(row)
}

// GetByID fetches an invitation by id.
func (r *InvitationRepo) GetByID(ctx context.Context, id string) (model.Invitation, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+invitationColumns+invitationJoins+" WHERE i.id=$1 LIMIT 1", id)
	return scanInvitation(row)
}

// ListByProperty returns a property's invitations, newest first, with
// tokens stripped.
func (r *InvitationRepo) ListByProperty(ctx context.Context, propertyID string) ([]model.Invitation, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+invitationColumns+invitationJoins+" WHERE i.property_id=$1 ORDER BY i.created_at DESC",
		propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInvitations(rows)
}

// ListByInviter returns the invitations a user has sent, newest first,
// with tokens stripped.
func (r *InvitationRepo) ListByInviter(ctx context.Context, userID string) ([]model.Invitation, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+invitationColumns+invitationJoins+" WHERE i.invited_by=$1 ORDER BY i.created_at DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInvitations(rows)
}

// MarkAccepted transitions a pending invitation to accepted. The update is
// conditional on the row still being pending, so exactly one of several
// concurrent acceptances can succeed; the losers get ErrInvalidStatus.
func (r *InvitationRepo) MarkAccepted(ctx context.Context, id string) error {
	return r.transition(ctx,
		`UPDATE invitations SET status='accepted', accepted_at=NOW() WHERE id=$1 AND status='pending'`, id)
}

// MarkExpired transitions a pending invitation to expired. Used by lazy
// expiry during validation and by the cleanup sweep.
func (r *InvitationRepo) MarkExpired(ctx context.Context, id string) error {
	return r.transition(ctx,
		`UPDATE invitations SET status='expired' WHERE id=$1 AND status='pending'`, id)
}

// Cancel transitions a pending invitation to cancelled.
func (r *InvitationRepo) Cancel(ctx context.Context, id string) error {
	return r.transition(ctx,
		`UPDATE invitations SET status='cancelled' WHERE id=$1 AND status='pending'`, id)
}

// Reissue gives a pending or expired invitation a fresh token and expiry
// and puts it back in pending. Accepted and cancelled invitations are
// terminal and cannot be reissued.
func (r *InvitationRepo) Reissue(ctx context.Context, id, token string, expiresAt time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE invitations SET status='pending', token=$2, expires_at=$3, accepted_at=NULL
		 WHERE id=$1 AND status IN ('pending','expired')`,
		id, token, expiresAt)
	if err != nil {
		return err
	}
	return checkTransition(res)
}

// ExpireOverdue sweeps every pending invitation whose expiry has passed,
// returning how many rows it flipped. Lazy expiry handles tokens that get
// presented; this catches the ones that never do.
func (r *InvitationRepo) ExpireOverdue(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE invitations SET status='expired' WHERE status='pending' AND expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *InvitationRepo) transition(ctx context.Context, query, id string) error {
	res, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkTransition(res)
}

func checkTransition(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidStatus
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner) (model.Invitation, error) {
	var inv model.Invitation
	var accepted sql.NullTime
	err := row.Scan(&inv.ID, &inv.Email, &inv.PropertyID, &inv.PropertyName, &inv.InvitedBy,
		&inv.InvitedByName, &inv.Role, &inv.Status, &inv.Token, &inv.ExpiresAt, &inv.CreatedAt,
		&accepted, &inv.Message)
	if err != nil {
		return model.Invitation{}, err
	}
	if accepted.Valid {
		t := accepted.Time
		inv.AcceptedAt = &t
	}
	return inv, nil
}

func scanInvitations(rows *sql.Rows) ([]model.Invitation, error) {
	var out []model.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		inv.Token = ""
		out = append(out, inv)
	}
	return out, rows.Err()
}
