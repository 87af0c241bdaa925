package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ppopeskul/wa-ingest/internal/models"
)

const connectionColumns = `id, company_id, instance_name, provider_token, default_department_id, status, created_at, updated_at`

type connectionRepository struct {
	db *sqlx.DB
}

func NewConnectionRepository(db *sqlx.DB) ConnectionRepository {
	return &connectionRepository{
		db: db,
	}
}

// GetByInstanceName returns ErrNotFound when no connection uses the instance name.
func (r *connectionRepository) GetByInstanceName(ctx context.Context, instanceName string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE instance_name = $1`

	var conn models.Connection
	if err := r.db.GetContext(ctx, &conn, query, instanceName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connection by instance name: %w", err)
	}

	return &conn, nil
}

func (r *connectionRepository) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`

	var conn models.Connection
	if err := r.db.GetContext(ctx, &conn, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	return &conn, nil
}
