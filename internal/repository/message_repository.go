package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ppopeskul/wa-ingest/internal/models"
)

const messageColumns = `id, company_id, conversation_id, direction, sender_type, message_type, content,
	media_url, media_mime_type, status, provider_message_id, quoted_message_id, metadata, error_message,
	is_deleted, deleted_by, deleted_at, created_at, updated_at`

type messageRepository struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

// ExistsByProviderID reports whether a non-deleted message with the provider id exists for the tenant.
func (r *messageRepository) ExistsByProviderID(ctx context.Context, companyID, providerMessageID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE company_id = $1 AND provider_message_id = $2 AND is_deleted = FALSE
		)
	`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, companyID, providerMessageID); err != nil {
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}

	return exists, nil
}

// FindIDByProviderID returns "" when no message in the conversation has the provider id.
func (r *messageRepository) FindIDByProviderID(ctx context.Context, conversationID, providerMessageID string) (string, error) {
	query := `
		SELECT id FROM messages
		WHERE conversation_id = $1 AND provider_message_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	return r.findID(ctx, query, conversationID, providerMessageID)
}

// FindIDByProviderIDSuffix matches stored ids that end with ":" + suffix, the form
// providers use when they prefix ids with a routing owner.
func (r *messageRepository) FindIDByProviderIDSuffix(ctx context.Context, conversationID, suffix string) (string, error) {
	query := `
		SELECT id FROM messages
		WHERE conversation_id = $1 AND provider_message_id LIKE $2 ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT 1
	`

	return r.findID(ctx, query, conversationID, "%:"+escapeLike(suffix))
}

func (r *messageRepository) findID(ctx context.Context, query string, args ...any) (string, error) {
	var id string
	if err := r.db.GetContext(ctx, &id, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to find message id: %w", err)
	}

	return id, nil
}

func (r *messageRepository) GetByProviderID(ctx context.Context, companyID, providerMessageID string) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE company_id = $1 AND provider_message_id = $2 AND is_deleted = FALSE
	`

	return r.getOne(ctx, query, companyID, providerMessageID)
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	return r.getOne(ctx, query, id)
}

func (r *messageRepository) getOne(ctx context.Context, query string, args ...any) (*models.Message, error) {
	var msg models.Message
	if err := r.db.GetContext(ctx, &msg, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return &msg, nil
}

// Insert writes a new message. A concurrent insert of the same provider id makes
// this a no-op that reports false.
func (r *messageRepository) Insert(ctx context.Context, msg *models.Message) (string, bool, error) {
	metadata := string(msg.Metadata)
	if metadata == "" {
		metadata = "{}"
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO messages (company_id, conversation_id, direction, sender_type, message_type, content,
		                      media_url, media_mime_type, status, provider_message_id, quoted_message_id,
		                      metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13, NOW())
		ON CONFLICT (company_id, provider_message_id) WHERE is_deleted = FALSE DO NOTHING
		RETURNING id
	`

	var id string
	err := r.db.GetContext(ctx, &id, query,
		msg.CompanyID, msg.ConversationID, msg.Direction, msg.SenderType, msg.MessageType, msg.Content,
		msg.MediaURL, msg.MediaMimeType, msg.Status, msg.ProviderMessageID, msg.QuotedMessageID,
		metadata, createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to insert message: %w", err)
	}

	return id, true, nil
}

// MarkMediaDelivered only moves a pending row, so redelivered tasks cannot regress it.
func (r *messageRepository) MarkMediaDelivered(ctx context.Context, id string, update MediaDelivered) (bool, error) {
	patch, err := jsonPatch(update.Metadata)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE messages
		SET media_url = $2,
		    media_mime_type = $3,
		    status = $4,
		    error_message = NULL,
		    metadata = metadata || $5::jsonb,
		    updated_at = NOW()
		WHERE id = $1 AND status = $6
	`

	return r.execAffected(ctx, "failed to mark media delivered", query,
		id, update.MediaURL, update.MimeType, models.MessageStatusDelivered, patch, models.MessageStatusPending)
}

func (r *messageRepository) MarkMediaFailed(ctx context.Context, id, errorMessage string, metadata map[string]any) (bool, error) {
	patch, err := jsonPatch(metadata)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE messages
		SET status = $2,
		    error_message = $3,
		    metadata = metadata || $4::jsonb,
		    updated_at = NOW()
		WHERE id = $1 AND status = $5
	`

	return r.execAffected(ctx, "failed to mark media failed", query,
		id, models.MessageStatusFailed, errorMessage, patch, models.MessageStatusPending)
}

// ResetMediaForRetry moves a failed media row back to pending.
func (r *messageRepository) ResetMediaForRetry(ctx context.Context, id string) (bool, error) {
	patch, err := jsonPatch(map[string]any{models.MetaPendingDownload: true})
	if err != nil {
		return false, err
	}

	query := `
		UPDATE messages
		SET status = $2,
		    error_message = NULL,
		    metadata = (metadata - 'downloadError') || $3::jsonb,
		    updated_at = NOW()
		WHERE id = $1 AND status = $4 AND media_url IS NULL AND message_type <> 'text'
	`

	return r.execAffected(ctx, "failed to reset media for retry", query,
		id, models.MessageStatusPending, patch, models.MessageStatusFailed)
}

func (r *messageRepository) SoftDeleteByProviderIDs(ctx context.Context, companyID string, providerMessageIDs []string, deletedBy models.DeletedBy, at time.Time) (int64, error) {
	if len(providerMessageIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE messages
		SET is_deleted = TRUE,
		    deleted_by = $3,
		    deleted_at = $4,
		    updated_at = NOW()
		WHERE company_id = $1 AND provider_message_id = ANY($2) AND is_deleted = FALSE
	`

	res, err := r.db.ExecContext(ctx, query, companyID, pq.Array(providerMessageIDs), deletedBy, at)
	if err != nil {
		return 0, fmt.Errorf("failed to soft delete messages: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// ListStalePending returns media rows still pending that were created before olderThan.
func (r *messageRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE status = $1 AND message_type <> 'text' AND is_deleted = FALSE AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	var messages []*models.Message
	if err := r.db.SelectContext(ctx, &messages, query, models.MessageStatusPending, olderThan, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale pending messages: %w", err)
	}

	return messages, nil
}

func (r *messageRepository) execAffected(ctx context.Context, errPrefix, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errPrefix, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
