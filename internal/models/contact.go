package models

import (
	"database/sql"
	"time"
)

// Contact is identified by (company, phone number).
type Contact struct {
	ID                string         `db:"id" json:"id"`
	CompanyID         string         `db:"company_id" json:"company_id"`
	PhoneNumber       string         `db:"phone_number" json:"phone_number"`
	Name              string         `db:"name" json:"name"`
	NameEdited        bool           `db:"name_edited" json:"name_edited"`
	AvatarURL         sql.NullString `db:"avatar_url" json:"avatar_url,omitempty"`
	LastInteractionAt sql.NullTime   `db:"last_interaction_at" json:"last_interaction_at,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}
