package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ppopeskul/wa-ingest/internal/models"
)

type reactionRepository struct {
	db *sqlx.DB
}

func NewReactionRepository(db *sqlx.DB) ReactionRepository {
	return &reactionRepository{
		db: db,
	}
}

// Upsert sets the reactor's emoji on a message, replacing any previous one.
func (r *reactionRepository) Upsert(ctx context.Context, messageID string, reactorType models.ReactorType, reactorID, emoji string) error {
	query := `
		INSERT INTO message_reactions (message_id, reactor_type, reactor_id, emoji, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (message_id, reactor_type, reactor_id) DO UPDATE
		SET emoji = EXCLUDED.emoji,
		    updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, messageID, reactorType, reactorID, emoji); err != nil {
		return fmt.Errorf("failed to upsert reaction: %w", err)
	}

	return nil
}

// Delete removes the reactor's reaction. Removing an absent reaction is not an error.
func (r *reactionRepository) Delete(ctx context.Context, messageID string, reactorType models.ReactorType, reactorID string) error {
	query := `DELETE FROM message_reactions WHERE message_id = $1 AND reactor_type = $2 AND reactor_id = $3`

	if _, err := r.db.ExecContext(ctx, query, messageID, reactorType, reactorID); err != nil {
		return fmt.Errorf("failed to delete reaction: %w", err)
	}

	return nil
}

func (r *reactionRepository) ListByMessage(ctx context.Context, messageID string) ([]*models.Reaction, error) {
	query := `
		SELECT id, message_id, reactor_type, reactor_id, emoji, created_at, updated_at
		FROM message_reactions
		WHERE message_id = $1
		ORDER BY created_at ASC
	`

	var reactions []*models.Reaction
	if err := r.db.SelectContext(ctx, &reactions, query, messageID); err != nil {
		return nil, fmt.Errorf("failed to list reactions: %w", err)
	}

	return reactions, nil
}
