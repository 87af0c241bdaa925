package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ppopeskul/wa-ingest/internal/models"
)

const conversationColumns = `id, company_id, contact_id, connection_id, status, assigned_user_id, department_id,
	unread_count, last_message_at, closed_at, metadata, created_at, updated_at`

type conversationRepository struct {
	db *sqlx.DB
}

func NewConversationRepository(db *sqlx.DB) ConversationRepository {
	return &conversationRepository{
		db: db,
	}
}

// FindLatestActive returns the newest non-closed conversation, or nil when there is none.
func (r *conversationRepository) FindLatestActive(ctx context.Context, contactID, connectionID string) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE contact_id = $1 AND connection_id = $2 AND status <> $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	return r.findOne(ctx, query, contactID, connectionID, models.ConversationClosed)
}

// FindLatestClosed returns the newest closed conversation, or nil when there is none.
func (r *conversationRepository) FindLatestClosed(ctx context.Context, contactID, connectionID string) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE contact_id = $1 AND connection_id = $2 AND status = $3
		ORDER BY COALESCE(closed_at, updated_at) DESC
		LIMIT 1
	`

	return r.findOne(ctx, query, contactID, connectionID, models.ConversationClosed)
}

func (r *conversationRepository) findOne(ctx context.Context, query string, args ...any) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.GetContext(ctx, &conv, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}

	return &conv, nil
}

func (r *conversationRepository) Touch(ctx context.Context, id string, at time.Time, incrementUnread bool) error {
	query := `
		UPDATE conversations
		SET last_message_at = GREATEST(COALESCE(last_message_at, $2), $2),
		    unread_count = unread_count + CASE WHEN $3 THEN 1 ELSE 0 END,
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, at, incrementUnread); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	return nil
}

// Reopen is guarded by status = 'closed' so two concurrent reopeners cannot both win.
func (r *conversationRepository) Reopen(ctx context.Context, id string, at time.Time, unreadCount int) (bool, error) {
	patch, err := jsonPatch(map[string]any{
		"autoReopened": true,
		"reopenedAt":   at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return false, err
	}

	query := `
		UPDATE conversations
		SET status = $2,
		    closed_at = NULL,
		    assigned_user_id = NULL,
		    unread_count = $3,
		    last_message_at = $4,
		    metadata = metadata || $5::jsonb,
		    updated_at = NOW()
		WHERE id = $1 AND status = $6
	`

	res, err := r.db.ExecContext(ctx, query, id, models.ConversationOpen, unreadCount, at, patch, models.ConversationClosed)
	if err != nil {
		// Another open conversation appeared for the pair in the meantime.
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to reopen conversation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}

// Create relies on the partial unique index over non-closed conversations.
func (r *conversationRepository) Create(ctx context.Context, params ConversationCreate) (string, bool, error) {
	query := `
		INSERT INTO conversations (company_id, contact_id, connection_id, status, department_id,
		                           unread_count, last_message_at, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, '{}'::jsonb, NOW(), NOW())
		ON CONFLICT (contact_id, connection_id) WHERE status <> 'closed' DO NOTHING
		RETURNING id
	`

	var id string
	err := r.db.GetContext(ctx, &id, query,
		params.CompanyID, params.ContactID, params.ConnectionID, models.ConversationOpen,
		params.DepartmentID, params.UnreadCount, params.At)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to create conversation: %w", err)
	}

	return id, true, nil
}

func (r *conversationRepository) AddEvent(ctx context.Context, conversationID string, eventType models.ConversationEventType, metadata map[string]any) error {
	patch, err := jsonPatch(metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO conversation_events (conversation_id, event_type, metadata, created_at)
		VALUES ($1, $2, $3::jsonb, NOW())
	`

	if _, err := r.db.ExecContext(ctx, query, conversationID, eventType, patch); err != nil {
		return fmt.Errorf("failed to add conversation event: %w", err)
	}

	return nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	var conv models.Conversation
	if err := r.db.GetContext(ctx, &conv, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &conv, nil
}

func (r *conversationRepository) ListEvents(ctx context.Context, conversationID string) ([]*models.ConversationEvent, error) {
	query := `
		SELECT id, conversation_id, event_type, metadata, created_at
		FROM conversation_events
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`

	var events []*models.ConversationEvent
	if err := r.db.SelectContext(ctx, &events, query, conversationID); err != nil {
		return nil, fmt.Errorf("failed to list conversation events: %w", err)
	}

	return events, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
