package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/verding/verding/internal/model"
)

// PropertyRepo persists properties, the tenant units of the system.
type PropertyRepo struct{ DB *sql.DB }

func NewPropertyRepo(db *sql.DB) *PropertyRepo { return &PropertyRepo{DB: db} }

// Create inserts a property and returns it with generated fields filled.
func (r *PropertyRepo) Create(ctx context.Context, name, description, createdBy string) (model.Property, error) {
	p := model.Property{ID: uuid.NewString(), Name: name, Description: description, CreatedBy: createdBy}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO properties (id, name, description, created_by)
		 VALUES ($1,$2,NULLIF($3,''),$4)
		 RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Description, p.CreatedBy).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Property{}, err
	}
	return p, nil
}

// GetByID fetches a property by id.
func (r *PropertyRepo) GetByID(ctx context.Context, id string) (model.Property, error) {
	var p model.Property
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,COALESCE(description,''),created_by,created_at,updated_at FROM properties WHERE id=$1 LIMIT 1",
		id).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Delete removes a property; grants and invitations cascade via foreign
// keys. Zero rows affected means the property was already gone.
func (r *PropertyRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM properties WHERE id=$1", id)
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
