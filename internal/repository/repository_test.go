package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppopeskul/wa-ingest/internal/models"
	"github.com/ppopeskul/wa-ingest/internal/repository"
)

func TestRepositoryImpl(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := repository.NewRepository(db)

	t.Run("sub repositories are wired", func(t *testing.T) {
		assert.NotNil(t, repo.Connection())
		assert.NotNil(t, repo.Contact())
		assert.NotNil(t, repo.Conversation())
		assert.NotNil(t, repo.Message())
		assert.NotNil(t, repo.Reaction())
		assert.Equal(t, repo.Message(), repo.Message())
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})
}

func TestRepositoryImpl_Ping_Closed(t *testing.T) {
	db, cleanup := setupTestDB(t)
	cleanup()

	repo := repository.NewRepository(db)
	assert.Error(t, repo.Ping(context.Background()))
}

func TestConnectionRepository(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := repository.NewConnectionRepository(db)
	f := seedFixture(t, db)

	conn, err := repo.GetByInstanceName(ctx, "instance-"+f.CompanyID[:8])
	require.NoError(t, err)
	assert.Equal(t, f.ConnectionID, conn.ID)
	assert.Equal(t, f.CompanyID, conn.CompanyID)
	assert.Equal(t, "tok", conn.ProviderToken)
	assert.True(t, conn.DefaultDepartmentID.Valid)

	byID, err := repo.GetByID(ctx, f.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, conn.InstanceName, byID.InstanceName)

	_, err = repo.GetByInstanceName(ctx, "unknown")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestContactRepository_Upsert(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := repository.NewContactRepository(db)
	companyID := uuid.NewString()
	t0 := time.Now().Add(-time.Hour).UTC().Truncate(time.Millisecond)

	tests := []struct {
		name     string
		setup    func(t *testing.T)
		params   repository.ContactUpsert
		validate func(t *testing.T, contact *models.Contact)
	}{
		{
			name: "new contact without name uses phone number",
			params: repository.ContactUpsert{
				CompanyID: companyID, PhoneNumber: "5511000000001", InteractionAt: t0,
			},
			validate: func(t *testing.T, contact *models.Contact) {
				assert.Equal(t, "5511000000001", contact.Name)
				assert.False(t, contact.AvatarURL.Valid)
				assert.True(t, contact.LastInteractionAt.Time.Equal(t0))
			},
		},
		{
			name: "existing contact gets new name and avatar",
			setup: func(t *testing.T) {
				_, err := repo.Upsert(ctx, repository.ContactUpsert{
					CompanyID: companyID, PhoneNumber: "5511000000002", Name: "Old", AvatarURL: "a1", InteractionAt: t0,
				})
				require.NoError(t, err)
			},
			params: repository.ContactUpsert{
				CompanyID: companyID, PhoneNumber: "5511000000002", Name: "New", AvatarURL: "a2", InteractionAt: t0.Add(time.Minute),
			},
			validate: func(t *testing.T, contact *models.Contact) {
				assert.Equal(t, "New", contact.Name)
				assert.Equal(t, "a2", contact.AvatarURL.String)
				assert.True(t, contact.LastInteractionAt.Time.Equal(t0.Add(time.Minute)))
			},
		},
		{
			name: "edited name is preserved",
			setup: func(t *testing.T) {
				_, err := repo.Upsert(ctx, repository.ContactUpsert{
					CompanyID: companyID, PhoneNumber: "5511000000003", Name: "Provider", InteractionAt: t0,
				})
				require.NoError(t, err)
				_, err = db.Exec(`UPDATE contacts SET name = 'Manual', name_edited = TRUE WHERE company_id = $1 AND phone_number = '5511000000003'`, companyID)
				require.NoError(t, err)
			},
			params: repository.ContactUpsert{
				CompanyID: companyID, PhoneNumber: "5511000000003", Name: "Provider 2", InteractionAt: t0,
			},
			validate: func(t *testing.T, contact *models.Contact) {
				assert.Equal(t, "Manual", contact.Name)
				assert.True(t, contact.NameEdited)
			},
		},
		{
			name: "empty name and avatar keep stored values",
			setup: func(t *testing.T) {
				_, err := repo.Upsert(ctx, repository.ContactUpsert{
					CompanyID: companyID, PhoneNumber: "5511000000004", Name: "Kept", AvatarURL: "kept.png", InteractionAt: t0,
				})
				require.NoError(t, err)
			},
			params: repository.ContactUpsert{
				CompanyID: companyID, PhoneNumber: "5511000000004", InteractionAt: t0,
			},
			validate: func(t *testing.T, contact *models.Contact) {
				assert.Equal(t, "Kept", contact.Name)
				assert.Equal(t, "kept.png", contact.AvatarURL.String)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup(t)
			}

			id, err := repo.Upsert(ctx, tt.params)
			require.NoError(t, err)

			contact, err := repo.GetByID(ctx, id)
			require.NoError(t, err)
			tt.validate(t, contact)
		})
	}
}

func TestContactRepository_Upsert_Idempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := repository.NewContactRepository(db)
	params := repository.ContactUpsert{
		CompanyID: uuid.NewString(), PhoneNumber: "5511999990000", Name: "Maria", InteractionAt: time.Now(),
	}

	id1, err := repo.Upsert(ctx, params)
	require.NoError(t, err)
	id2, err := repo.Upsert(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM contacts WHERE company_id = $1`, params.CompanyID))
	assert.Equal(t, 1, count)
}

func TestReactionRepository(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := repository.NewReactionRepository(db)
	f := seedFixture(t, db)
	convID := insertConversation(t, db, f, models.ConversationOpen, time.Now())
	msgID, err := insertTestMessage(db, f.CompanyID, convID, "P1", models.MessageTypeText, models.MessageStatusDelivered, time.Now())
	require.NoError(t, err)

	require.NoError(t, repo.Upsert(ctx, msgID, models.ReactorContact, f.ContactID, "👍"))
	require.NoError(t, repo.Upsert(ctx, msgID, models.ReactorContact, f.ContactID, "❤️"))
	require.NoError(t, repo.Upsert(ctx, msgID, models.ReactorUser, f.ConnectionID, "😂"))

	reactions, err := repo.ListByMessage(ctx, msgID)
	require.NoError(t, err)
	require.Len(t, reactions, 2)
	assert.Equal(t, "❤️", reactions[0].Emoji)
	assert.Equal(t, models.ReactorContact, reactions[0].ReactorType)

	require.NoError(t, repo.Delete(ctx, msgID, models.ReactorContact, f.ContactID))
	require.NoError(t, repo.Delete(ctx, msgID, models.ReactorContact, f.ContactID))

	reactions, err = repo.ListByMessage(ctx, msgID)
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	assert.Equal(t, models.ReactorUser, reactions[0].ReactorType)
}
