package models

import (
	"database/sql"
	"time"
)

// Connection is a provider instance (one WhatsApp number) owned by a tenant.
type Connection struct {
	ID                  string         `db:"id" json:"id"`
	CompanyID           string         `db:"company_id" json:"company_id"`
	InstanceName        string         `db:"instance_name" json:"instance_name"`
	ProviderToken       string         `db:"provider_token" json:"-"`
	DefaultDepartmentID sql.NullString `db:"default_department_id" json:"default_department_id,omitempty"`
	Status              string         `db:"status" json:"status"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}
