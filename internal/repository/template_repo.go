package repository

import (
	"context"

	"github.com/mindbridge-health/MindBridgeBack/internal/models"
)

type TemplateRepository struct {
	db DBTX
}

func NewTemplateRepository(db DBTX) *TemplateRepository {
	return &TemplateRepository{db: db}
}

type CreateTemplateInput struct {
	OwnerID  int64
	Name     string
	Content  string
	Category *string
	IsPublic bool
}

func (r *TemplateRepository) Create(ctx context.Context, input CreateTemplateInput) (*models.Template, error) {
	query := `
		INSERT INTO message_templates (owner_id, name, content, category, is_public)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, owner_id, name, content, category, is_public, created_at
	`

	var template models.Template
	err := r.db.QueryRow(
		ctx,
		query,
		input.OwnerID,
		input.Name,
		input.Content,
		input.Category,
		input.IsPublic,
	).Scan(
		&template.ID,
		&template.OwnerID,
		&template.Name,
		&template.Content,
		&template.Category,
		&template.IsPublic,
		&template.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &template, nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*models.Template, error) {
	query := `
		SELECT id, owner_id, name, content, category, is_public, created_at
		FROM message_templates
		WHERE id = $1
	`

	var template models.Template
	err := r.db.QueryRow(ctx, query, id).Scan(
		&template.ID,
		&template.OwnerID,
		&template.Name,
		&template.Content,
		&template.Category,
		&template.IsPublic,
		&template.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &template, nil
}

func (r *TemplateRepository) ExistsByOwnerAndName(
	ctx context.Context,
	ownerID int64,
	name string,
) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM message_templates
			WHERE owner_id = $1 AND name = $2
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, ownerID, name).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ListVisible returns the requester's own templates plus public ones.
func (r *TemplateRepository) ListVisible(ctx context.Context, requesterID int64) ([]models.Template, error) {
	query := `
		SELECT id, owner_id, name, content, category, is_public, created_at
		FROM message_templates
		WHERE owner_id = $1 OR is_public
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query, requesterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := make([]models.Template, 0)
	for rows.Next() {
		var template models.Template
		if err := rows.Scan(
			&template.ID,
			&template.OwnerID,
			&template.Name,
			&template.Content,
			&template.Category,
			&template.IsPublic,
			&template.CreatedAt,
		); err != nil {
			return nil, err
		}
		templates = append(templates, template)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return templates, nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM message_templates WHERE id = $1`, id)
	return err
}
