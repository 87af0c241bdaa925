package models

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx/types"
)

type ConversationStatus string

const (
	ConversationOpen       ConversationStatus = "open"
	ConversationInProgress ConversationStatus = "in_progress"
	ConversationPending    ConversationStatus = "pending"
	ConversationResolved   ConversationStatus = "resolved"
	ConversationClosed     ConversationStatus = "closed"
	ConversationBlocked    ConversationStatus = "blocked"
)

// Conversation is a thread between one contact and one connection.
type Conversation struct {
	ID             string             `db:"id" json:"id"`
	CompanyID      string             `db:"company_id" json:"company_id"`
	ContactID      string             `db:"contact_id" json:"contact_id"`
	ConnectionID   string             `db:"connection_id" json:"connection_id"`
	Status         ConversationStatus `db:"status" json:"status"`
	AssignedUserID sql.NullString     `db:"assigned_user_id" json:"assigned_user_id,omitempty"`
	DepartmentID   sql.NullString     `db:"department_id" json:"department_id,omitempty"`
	UnreadCount    int                `db:"unread_count" json:"unread_count"`
	LastMessageAt  sql.NullTime       `db:"last_message_at" json:"last_message_at,omitempty"`
	ClosedAt       sql.NullTime       `db:"closed_at" json:"closed_at,omitempty"`
	Metadata       types.JSONText     `db:"metadata" json:"metadata"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
}

type ConversationEventType string

const (
	ConversationEventCreated  ConversationEventType = "created"
	ConversationEventReopened ConversationEventType = "reopened"
)

// ConversationEvent is an entry in a conversation's history.
type ConversationEvent struct {
	ID             string                `db:"id" json:"id"`
	ConversationID string                `db:"conversation_id" json:"conversation_id"`
	EventType      ConversationEventType `db:"event_type" json:"event_type"`
	Metadata       types.JSONText        `db:"metadata" json:"metadata"`
	CreatedAt      time.Time             `db:"created_at" json:"created_at"`
}
