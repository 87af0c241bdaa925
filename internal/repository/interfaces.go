package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ppopeskul/wa-ingest/internal/models"
)

var ErrNotFound = errors.New("record not found")

// Repository interface defines all repository operations.
type Repository interface {
	// Ping checks database connectivity
	Ping(ctx context.Context) error

	Connection() ConnectionRepository
	Contact() ContactRepository
	Conversation() ConversationRepository
	Message() MessageRepository
	Reaction() ReactionRepository
}

// ConnectionRepository resolves provider instances to tenants.
type ConnectionRepository interface {
	GetByInstanceName(ctx context.Context, instanceName string) (*models.Connection, error)
	GetByID(ctx context.Context, id string) (*models.Connection, error)
}

// ContactUpsert holds the fields written by ContactRepository.Upsert.
type ContactUpsert struct {
	CompanyID     string
	PhoneNumber   string
	Name          string
	AvatarURL     string
	InteractionAt time.Time
}

type ContactRepository interface {
	Upsert(ctx context.Context, params ContactUpsert) (string, error)
	GetByID(ctx context.Context, id string) (*models.Contact, error)
}

// ConversationCreate holds the fields of a new conversation.
type ConversationCreate struct {
	CompanyID    string
	ContactID    string
	ConnectionID string
	DepartmentID string
	UnreadCount  int
	At           time.Time
}

type ConversationRepository interface {
	FindLatestActive(ctx context.Context, contactID, connectionID string) (*models.Conversation, error)
	FindLatestClosed(ctx context.Context, contactID, connectionID string) (*models.Conversation, error)
	// Touch bumps last_message_at and optionally the unread counter.
	Touch(ctx context.Context, id string, at time.Time, incrementUnread bool) error
	// Reopen moves a closed conversation back to open. It reports false when the
	// row was no longer closed.
	Reopen(ctx context.Context, id string, at time.Time, unreadCount int) (bool, error)
	// Create reports false when another non-closed conversation already exists.
	Create(ctx context.Context, params ConversationCreate) (string, bool, error)
	AddEvent(ctx context.Context, conversationID string, eventType models.ConversationEventType, metadata map[string]any) error
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	ListEvents(ctx context.Context, conversationID string) ([]*models.ConversationEvent, error)
}

// MediaDelivered holds the fields written when media materialization succeeds.
type MediaDelivered struct {
	MediaURL string
	MimeType string
	Metadata map[string]any
}

type MessageRepository interface {
	ExistsByProviderID(ctx context.Context, companyID, providerMessageID string) (bool, error)
	FindIDByProviderID(ctx context.Context, conversationID, providerMessageID string) (string, error)
	FindIDByProviderIDSuffix(ctx context.Context, conversationID, suffix string) (string, error)
	GetByProviderID(ctx context.Context, companyID, providerMessageID string) (*models.Message, error)
	GetByID(ctx context.Context, id string) (*models.Message, error)
	// Insert reports false when a non-deleted row with the same provider id exists.
	Insert(ctx context.Context, msg *models.Message) (string, bool, error)
	MarkMediaDelivered(ctx context.Context, id string, update MediaDelivered) (bool, error)
	MarkMediaFailed(ctx context.Context, id, errorMessage string, metadata map[string]any) (bool, error)
	ResetMediaForRetry(ctx context.Context, id string) (bool, error)
	SoftDeleteByProviderIDs(ctx context.Context, companyID string, providerMessageIDs []string, deletedBy models.DeletedBy, at time.Time) (int64, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Message, error)
}

type ReactionRepository interface {
	Upsert(ctx context.Context, messageID string, reactorType models.ReactorType, reactorID, emoji string) error
	Delete(ctx context.Context, messageID string, reactorType models.ReactorType, reactorID string) error
	ListByMessage(ctx context.Context, messageID string) ([]*models.Reaction, error)
}

// DedupCache is a best-effort fast path in front of the message table.
type DedupCache interface {
	Seen(ctx context.Context, companyID, providerMessageID string) (bool, error)
	Mark(ctx context.Context, companyID, providerMessageID string) error
}
