// Package models defines data structures used throughout the application.
package models

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx/types"
)

type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

type SenderType string

const (
	SenderContact SenderType = "contact"
	SenderUser    SenderType = "user"
	SenderBot     SenderType = "bot"
)

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeDocument MessageType = "document"
	MessageTypeSticker  MessageType = "sticker"
)

// IsMedia reports whether the message carries a binary attachment.
func (t MessageType) IsMedia() bool {
	switch t {
	case MessageTypeImage, MessageTypeVideo, MessageTypeAudio, MessageTypeDocument, MessageTypeSticker:
		return true
	default:
		return false
	}
}

type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
)

type DeletedBy string

const (
	DeletedByContact DeletedBy = "contact"
	DeletedByUser    DeletedBy = "user"
)

// Message represents a message in the database.
type Message struct {
	ID                string           `db:"id" json:"id"`
	CompanyID         string           `db:"company_id" json:"company_id"`
	ConversationID    string           `db:"conversation_id" json:"conversation_id"`
	Direction         MessageDirection `db:"direction" json:"direction"`
	SenderType        SenderType       `db:"sender_type" json:"sender_type"`
	MessageType       MessageType      `db:"message_type" json:"message_type"`
	Content           sql.NullString   `db:"content" json:"content,omitempty"`
	MediaURL          sql.NullString   `db:"media_url" json:"media_url,omitempty"`
	MediaMimeType     sql.NullString   `db:"media_mime_type" json:"media_mime_type,omitempty"`
	Status            MessageStatus    `db:"status" json:"status"`
	ProviderMessageID string           `db:"provider_message_id" json:"provider_message_id"`
	QuotedMessageID   sql.NullString   `db:"quoted_message_id" json:"quoted_message_id,omitempty"`
	Metadata          types.JSONText   `db:"metadata" json:"metadata"`
	ErrorMessage      sql.NullString   `db:"error_message" json:"error_message,omitempty"`
	IsDeleted         bool             `db:"is_deleted" json:"is_deleted"`
	DeletedBy         sql.NullString   `db:"deleted_by" json:"deleted_by,omitempty"`
	DeletedAt         sql.NullTime     `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// MetadataMap decodes the metadata bag. A malformed bag yields an empty map.
func (m *Message) MetadataMap() map[string]any {
	out := map[string]any{}
	if len(m.Metadata) == 0 {
		return out
	}
	_ = m.Metadata.Unmarshal(&out)
	return out
}

// Metadata keys written on message rows.
const (
	MetaPendingDownload     = "pendingDownload"
	MetaFileName            = "fileName"
	MetaFileSize            = "fileSize"
	MetaProcessedAt         = "processedAt"
	MetaStorageMimeType     = "storageMimeType"
	MetaDownloadError       = "downloadError"
	MetaProviderMimeType    = "providerMimeType"
	MetaProviderMessageType = "providerMessageType"
	MetaSenderName          = "senderName"
	MetaIsPtt               = "isPtt"
	MetaAIGenerated         = "aiGenerated"
	MetaAgentID             = "agentId"
	MetaAgentName           = "agentName"
	MetaVoice               = "voice"
	MetaTTSFallback         = "ttsFallback"
)
