package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ppopeskul/wa-ingest/internal/models"
)

type contactRepository struct {
	db *sqlx.DB
}

func NewContactRepository(db *sqlx.DB) ContactRepository {
	return &contactRepository{
		db: db,
	}
}

// Upsert creates or refreshes the contact for (company, phone) in one statement.
// A manually edited name is never replaced; an empty name never replaces one.
// New contacts without a name are named after their phone number.
func (r *contactRepository) Upsert(ctx context.Context, params ContactUpsert) (string, error) {
	query := `
		INSERT INTO contacts (company_id, phone_number, name, avatar_url, last_interaction_at, created_at, updated_at)
		VALUES ($1, $2, COALESCE(NULLIF($3, ''), $2), NULLIF($4, ''), $5, NOW(), NOW())
		ON CONFLICT (company_id, phone_number) DO UPDATE
		SET name = CASE
		        WHEN contacts.name_edited OR $3 = '' THEN contacts.name
		        ELSE EXCLUDED.name
		    END,
		    avatar_url = COALESCE(NULLIF($4, ''), contacts.avatar_url),
		    last_interaction_at = $5,
		    updated_at = NOW()
		RETURNING id
	`

	var id string
	err := r.db.GetContext(ctx, &id, query,
		params.CompanyID, params.PhoneNumber, params.Name, params.AvatarURL, params.InteractionAt)
	if err != nil {
		return "", fmt.Errorf("failed to upsert contact: %w", err)
	}

	return id, nil
}

func (r *contactRepository) GetByID(ctx context.Context, id string) (*models.Contact, error) {
	query := `
		SELECT id, company_id, phone_number, name, name_edited, avatar_url, last_interaction_at, created_at, updated_at
		FROM contacts
		WHERE id = $1
	`

	var contact models.Contact
	if err := r.db.GetContext(ctx, &contact, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}

	return &contact, nil
}
