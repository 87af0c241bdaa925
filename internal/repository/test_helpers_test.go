package repository_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/ppopeskul/wa-ingest/internal/models"
)

type fixture struct {
	CompanyID    string
	ConnectionID string
	ContactID    string
}

// seedFixture inserts a connection and a contact for a fresh company.
func seedFixture(t *testing.T, db *sqlx.DB) fixture {
	t.Helper()

	f := fixture{CompanyID: uuid.NewString()}

	err := db.QueryRow(`
		INSERT INTO connections (company_id, instance_name, provider_token, default_department_id)
		VALUES ($1, $2, 'tok', $3)
		RETURNING id`,
		f.CompanyID, "instance-"+f.CompanyID[:8], uuid.NewString()).Scan(&f.ConnectionID)
	require.NoError(t, err)

	err = db.QueryRow(`
		INSERT INTO contacts (company_id, phone_number, name)
		VALUES ($1, '5511999990000', 'Maria')
		RETURNING id`, f.CompanyID).Scan(&f.ContactID)
	require.NoError(t, err)

	return f
}

func insertConversation(t *testing.T, db *sqlx.DB, f fixture, status models.ConversationStatus, createdAt time.Time) string {
	t.Helper()

	var closedAt *time.Time
	if status == models.ConversationClosed {
		closedAt = &createdAt
	}

	var id string
	err := db.QueryRow(`
		INSERT INTO conversations (company_id, contact_id, connection_id, status, assigned_user_id,
		                           unread_count, closed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 3, $6, $7, $7)
		RETURNING id`,
		f.CompanyID, f.ContactID, f.ConnectionID, status, uuid.NewString(), closedAt, createdAt).Scan(&id)
	require.NoError(t, err)

	return id
}

func insertTestMessage(db *sqlx.DB, companyID, conversationID, providerID string, messageType models.MessageType, status models.MessageStatus, createdAt time.Time) (string, error) {
	var id string
	err := db.QueryRow(`
		INSERT INTO messages (company_id, conversation_id, direction, sender_type, message_type,
		                      status, provider_message_id, metadata, created_at, updated_at)
		VALUES ($1, $2, 'inbound', 'contact', $3, $4, $5, '{"pendingDownload": true}', $6, $6)
		RETURNING id`,
		companyID, conversationID, messageType, status, providerID, createdAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert test message: %w", err)
	}

	return id, nil
}

func newMessage(f fixture, conversationID, providerID string, messageType models.MessageType, status models.MessageStatus) *models.Message {
	return &models.Message{
		CompanyID:         f.CompanyID,
		ConversationID:    conversationID,
		Direction:         models.DirectionInbound,
		SenderType:        models.SenderContact,
		MessageType:       messageType,
		Status:            status,
		ProviderMessageID: providerID,
		CreatedAt:         time.Now(),
	}
}
