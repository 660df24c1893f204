package repository

import (
	"context"
	"database/sql"

	"github.com/verding/verding/internal/model"
)

// ProfileRepo persists user profiles. A profile row can legitimately be
// missing (identities provisioned before their first login); Get returns
// sql.ErrNoRows in that case and callers synthesize a fallback.
type ProfileRepo struct{ DB *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{DB: db} }

const profileColumns = "id,email,full_name,COALESCE(avatar_url,''),COALESCE(phone,''),COALESCE(timezone,''),COALESCE(language,''),created_at,updated_at"

// Get fetches a profile by user id.
func (r *ProfileRepo) Get(ctx context.Context, userID string) (model.UserProfile, error) {
	var p model.UserProfile
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM user_profiles WHERE id=$1 LIMIT 1",
		userID).Scan(&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &p.Phone, &p.Timezone, &p.Language, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Create inserts a profile row for a user.
func (r *ProfileRepo) Create(ctx context.Context, p model.UserProfile) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO user_profiles (id, email, full_name, phone, timezone, language)
		 VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,''),NULLIF($6,''))`,
		p.ID, p.Email, p.FullName, p.Phone, p.Timezone, p.Language)
	return err
}

// Update applies profile changes for a user.
func (r *ProfileRepo) Update(ctx context.Context, p model.UserProfile) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE user_profiles
		 SET full_name=$2, avatar_url=NULLIF($3,''), phone=NULLIF($4,''),
		     timezone=NULLIF($5,''), language=NULLIF($6,''), updated_at=NOW()
		 WHERE id=$1`,
		p.ID, p.FullName, p.AvatarURL, p.Phone, p.Timezone, p.Language)
	return err
}

// FullName returns the display name for a user, or "" when no profile
// exists. Invitation listings use it to label the inviter.
func (r *ProfileRepo) FullName(ctx context.Context, userID string) (string, error) {
	var name string
	err := r.DB.QueryRowContext(ctx,
		"SELECT full_name FROM user_profiles WHERE id=$1 LIMIT 1", userID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return name, err
}
