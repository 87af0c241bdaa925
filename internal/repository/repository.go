package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// repositoryImpl is the concrete implementation of Repository interface.
type repositoryImpl struct {
	db           *sqlx.DB
	connection   ConnectionRepository
	contact      ContactRepository
	conversation ConversationRepository
	message      MessageRepository
	reaction     ReactionRepository
}

// NewRepository creates a new repository instance.
func NewRepository(db *sqlx.DB) Repository {
	return &repositoryImpl{
		db:           db,
		connection:   NewConnectionRepository(db),
		contact:      NewContactRepository(db),
		conversation: NewConversationRepository(db),
		message:      NewMessageRepository(db),
		reaction:     NewReactionRepository(db),
	}
}

func (r *repositoryImpl) Connection() ConnectionRepository {
	return r.connection
}

func (r *repositoryImpl) Contact() ContactRepository {
	return r.contact
}

func (r *repositoryImpl) Conversation() ConversationRepository {
	return r.conversation
}

// Message returns the message repository.
func (r *repositoryImpl) Message() MessageRepository {
	return r.message
}

func (r *repositoryImpl) Reaction() ReactionRepository {
	return r.reaction
}

// Ping checks if the database connection is healthy.
func (r *repositoryImpl) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return r.db.PingContext(ctx)
}

// jsonPatch encodes a metadata patch for a `metadata || $n::jsonb` merge.
func jsonPatch(patch map[string]any) (string, error) {
	if len(patch) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(patch)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}
