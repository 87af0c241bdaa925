package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/classifier"
	"github.com/ppopeskul/wa-ingest/internal/models"
	"github.com/ppopeskul/wa-ingest/internal/queue"
	"github.com/ppopeskul/wa-ingest/internal/repository"
	"github.com/ppopeskul/wa-ingest/internal/repository/mocks"
	"github.com/ppopeskul/wa-ingest/internal/service"
	servicemocks "github.com/ppopeskul/wa-ingest/internal/service/mocks"
)

const inboundTextPayload = `{
	"EventType": "messages",
	"instanceName": "acme-main",
	"message": {
		"messageid": "3EB0TEXT",
		"chatid": "5511999990000@s.whatsapp.net",
		"senderName": "Maria",
		"fromMe": false,
		"messageType": "Conversation",
		"text": "hello",
		"messageTimestamp": 1740830400
	},
	"chat": {"wa_name": "Maria Silva"}
}`

const selfImagePayload = `{
	"EventType": "messages",
	"instanceName": "acme-main",
	"message": {
		"messageid": "3EB0IMG",
		"chatid": "5511999990000@s.whatsapp.net",
		"fromMe": true,
		"messageType": "ImageMessage",
		"content": {"caption": "look", "mimetype": "image/jpeg"},
		"messageTimestamp": 1740830400
	},
	"chat": {"wa_name": "Maria Silva"}
}`

const selfTextChatPayload = `{
	"type": "messages",
	"instanceName": "acme-main",
	"message": {
		"type": "text",
		"fromMe": true,
		"sender": "5511000@s.whatsapp.net",
		"messageid": "out1",
		"text": "on my way"
	},
	"chat": {"wa_chatid": "5511999@s.whatsapp.net", "wa_name": "Jane"}
}`

const groupTextPayload = `{
	"EventType": "messages",
	"instanceName": "acme-main",
	"message": {
		"messageid": "3EB0GRP",
		"chatid": "120363000000000000@g.us",
		"sender": "5511999990000@s.whatsapp.net",
		"messageType": "Conversation",
		"text": "hi all"
	}
}`

func reactionPayload(emoji string, fromMe bool) string {
	from := "false"
	if fromMe {
		from = "true"
	}
	return `{
		"EventType": "messages",
		"instanceName": "acme-main",
		"message": {
			"messageid": "3EB0REACT",
			"chatid": "5511999990000@s.whatsapp.net",
			"fromMe": ` + from + `,
			"messageType": "ReactionMessage",
			"text": "` + emoji + `",
			"reaction": "3EB0TEXT"
		}
	}`
}

const deletionPayload = `{
	"EventType": "messages_update",
	"instanceName": "acme-main",
	"event": {"Type": "Deleted", "MessageIDs": ["3EB0TEXT", "3EB0IMG"], "IsFromMe": false}
}`

type ingestFixture struct {
	repo       *repoMocks
	cache      *mocks.MockDedupCache
	dispatcher *servicemocks.MockTaskDispatcher
	svc        service.IngestService
}

func newIngestFixture(t *testing.T) *ingestFixture {
	ctrl := gomock.NewController(t)
	f := &ingestFixture{
		repo:       newRepoMocks(ctrl),
		cache:      mocks.NewMockDedupCache(ctrl),
		dispatcher: servicemocks.NewMockTaskDispatcher(ctrl),
	}
	f.svc = service.NewIngestService(testConfig(), f.repo.repo, f.cache, f.dispatcher, zap.NewNop())
	return f
}

func TestIngestService_Ingest_Rejects(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		setupMocks  func(f *ingestFixture)
		expectedErr error
	}{
		{
			name:        "malformed json",
			body:        `{"EventType":`,
			setupMocks:  func(f *ingestFixture) {},
			expectedErr: service.ErrMalformedPayload,
		},
		{
			name:        "missing instance name",
			body:        `{"EventType": "messages", "message": {"messageid": "x", "chatid": "1@s.whatsapp.net", "messageType": "Conversation"}}`,
			setupMocks:  func(f *ingestFixture) {},
			expectedErr: service.ErrMissingField,
		},
		{
			name:        "message without sender",
			body:        `{"EventType": "messages", "instanceName": "acme-main", "message": {"messageid": "x", "messageType": "Conversation", "text": "hi"}}`,
			setupMocks:  func(f *ingestFixture) {},
			expectedErr: service.ErrMissingField,
		},
		{
			name: "unknown connection",
			body: inboundTextPayload,
			setupMocks: func(f *ingestFixture) {
				f.repo.connection.EXPECT().GetByInstanceName(gomock.Any(), testInstance).Return(nil, repository.ErrNotFound)
			},
			expectedErr: service.ErrConnectionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIngestFixture(t)
			tt.setupMocks(f)

			result, err := f.svc.Ingest(context.Background(), []byte(tt.body))

			assert.ErrorIs(t, err, tt.expectedErr)
			assert.Nil(t, result)
		})
	}
}

func TestIngestService_Ingest_IgnoredGroupMessage(t *testing.T) {
	f := newIngestFixture(t)

	result, err := f.svc.Ingest(context.Background(), []byte(groupTextPayload))

	require.NoError(t, err)
	assert.Equal(t, service.OutcomeIgnored, result.Outcome)
	assert.Equal(t, classifier.KindIgnored, result.Kind)
	assert.NotEmpty(t, result.Reason)
}

func TestIngestService_Ingest_NewInboundText(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	f.repo.connection.EXPECT().GetByInstanceName(ctx, testInstance).Return(testConnection(), nil)
	f.cache.EXPECT().Seen(ctx, testCompanyID, "3EB0TEXT").Return(false, nil)
	f.repo.message.EXPECT().ExistsByProviderID(ctx, testCompanyID, "3EB0TEXT").Return(false, nil).Times(2)
	f.repo.contact.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, p repository.ContactUpsert) (string, error) {
			assert.Equal(t, "5511999990000", p.PhoneNumber)
			assert.Equal(t, "Maria", p.Name)
			return "contact-1", nil
		})
	f.repo.conversation.EXPECT().FindLatestActive(ctx, "contact-1", testConnectionID).Return(nil, nil)
	f.repo.conversation.EXPECT().FindLatestClosed(ctx, "contact-1", testConnectionID).Return(nil, nil)
	f.repo.conversation.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, p repository.ConversationCreate) (string, bool, error) {
			assert.Equal(t, 1, p.UnreadCount)
			return "conv-1", true, nil
		})
	f.repo.conversation.EXPECT().AddEvent(ctx, "conv-1", models.ConversationEventCreated, gomock.Any()).Return(nil)
	f.repo.message.EXPECT().Insert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, msg *models.Message) (string, bool, error) {
			assert.Equal(t, models.DirectionInbound, msg.Direction)
			assert.Equal(t, models.SenderContact, msg.SenderType)
			assert.Equal(t, models.MessageTypeText, msg.MessageType)
			assert.Equal(t, models.MessageStatusDelivered, msg.Status)
			assert.Equal(t, "hello", msg.Content.String)
			return "msg-1", true, nil
		})
	f.cache.EXPECT().Mark(ctx, testCompanyID, "3EB0TEXT").Return(nil)
	f.dispatcher.EXPECT().Enqueue(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, task queue.Task) queue.DispatchMode {
			require.Equal(t, queue.TaskKindAgent, task.Kind)
			assert.Equal(t, "msg-1", task.Agent.MessageID)
			assert.Equal(t, "conv-1", task.Agent.ConversationID)
			assert.Equal(t, "hello", task.Agent.Content)
			return queue.DispatchQueued
		})

	result, err := f.svc.Ingest(ctx, []byte(inboundTextPayload))

	require.NoError(t, err)
	assert.Equal(t, service.OutcomeProcessed, result.Outcome)
	assert.Equal(t, classifier.KindText, result.Kind)
	assert.Equal(t, "msg-1", result.MessageID)
	assert.Equal(t, "conv-1", result.ConversationID)
	assert.Equal(t, []queue.DispatchMode{queue.DispatchQueued}, result.Dispatch)
}

func TestIngestService_Ingest_SelfSentImage(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	f.repo.connection.EXPECT().GetByInstanceName(ctx, testInstance).Return(testConnection(), nil)
	f.cache.EXPECT().Seen(ctx, testCompanyID, "3EB0IMG").Return(false, errors.New("redis down"))
	f.repo.message.EXPECT().ExistsByProviderID(ctx, testCompanyID, "3EB0IMG").Return(false, nil).Times(2)
	f.repo.contact.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, p repository.ContactUpsert) (string, error) {
			// Our own sender name must not rename the contact.
			assert.Equal(t, "Maria Silva", p.Name)
			return "contact-1", nil
		})
	f.repo.conversation.EXPECT().FindLatestActive(ctx, "contact-1", testConnectionID).
		Return(&models.Conversation{ID: "conv-1"}, nil)
	f.repo.conversation.EXPECT().Touch(ctx, "conv-1", gomock.Any(), false).Return(nil)
	f.repo.message.EXPECT().Insert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, msg *models.Message) (string, bool, error) {
			assert.Equal(t, models.DirectionOutbound, msg.Direction)
			assert.Equal(t, models.SenderUser, msg.SenderType)
			assert.Equal(t, models.MessageTypeImage, msg.MessageType)
			assert.Equal(t, models.MessageStatusPending, msg.Status)
			assert.Equal(t, true, msg.MetadataMap()[models.MetaPendingDownload])
			return "msg-2", true, nil
		})
	f.cache.EXPECT().Mark(ctx, testCompanyID, "3EB0IMG").Return(nil)
	f.dispatcher.EXPECT().Enqueue(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, task queue.Task) queue.DispatchMode {
			require.Equal(t, queue.TaskKindMedia, task.Kind)
			assert.Equal(t, "msg-2", task.Media.MessageID)
			assert.Equal(t, "image/jpeg", task.Media.ProviderMimeType)
			assert.Equal(t, "look", task.Media.Caption)
			assert.False(t, task.Media.TriggerAgent)
			return queue.DispatchBackground
		})

	result, err := f.svc.Ingest(ctx, []byte(selfImagePayload))

	require.NoError(t, err)
	assert.Equal(t, service.OutcomeProcessed, result.Outcome)
	assert.Equal(t, classifier.KindImage, result.Kind)
	assert.Equal(t, []queue.DispatchMode{queue.DispatchBackground}, result.Dispatch)
}

func TestIngestService_Ingest_SelfSentTextFilesUnderCounterpart(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	f.repo.connection.EXPECT().GetByInstanceName(ctx, testInstance).Return(testConnection(), nil)
	f.cache.EXPECT().Seen(ctx, testCompanyID, "out1").Return(false, nil)
	f.repo.message.EXPECT().ExistsByProviderID(ctx, testCompanyID, "out1").Return(false, nil).Times(2)
	f.repo.contact.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, p repository.ContactUpsert) (string, error) {
			assert.Equal(t, "5511999", p.PhoneNumber)
			assert.Equal(t, "Jane", p.Name)
			return "contact-jane", nil
		})
	f.repo.conversation.EXPECT().FindLatestActive(ctx, "contact-jane", testConnectionID).
		Return(&models.Conversation{ID: "conv-jane"}, nil)
	f.repo.conversation.EXPECT().Touch(ctx, "conv-jane", gomock.Any(), false).Return(nil)
	f.repo.message.EXPECT().Insert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, msg *models.Message) (string, bool, error) {
			assert.Equal(t, "conv-jane", msg.ConversationID)
			assert.Equal(t, models.DirectionOutbound, msg.Direction)
			assert.Equal(t, models.SenderUser, msg.SenderType)
			assert.Equal(t, "on my way", msg.Content.String)
			return "msg-out1", true, nil
		})
	f.cache.EXPECT().Mark(ctx, testCompanyID, "out1").Return(nil)

	result, err := f.svc.Ingest(ctx, []byte(selfTextChatPayload))

	require.NoError(t, err)
	assert.Equal(t, service.OutcomeProcessed, result.Outcome)
	assert.Equal(t, "conv-jane", result.ConversationID)
	assert.Empty(t, result.Dispatch)
}

func TestIngestService_Ingest_Duplicate(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(f *ingestFixture)
	}{
		{
			name: "seen in cache",
			setupMocks: func(f *ingestFixture) {
				f.cache.EXPECT().Seen(gomock.Any(), testCompanyID, "3EB0TEXT").Return(true, nil)
			},
		},
		{
			name: "found in database",
			setupMocks: func(f *ingestFixture) {
				f.cache.EXPECT().Seen(gomock.Any(), testCompanyID, "3EB0TEXT").Return(false, nil)
				f.repo.message.EXPECT().ExistsByProviderID(gomock.Any(), testCompanyID, "3EB0TEXT").Return(true, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIngestFixture(t)
			f.repo.connection.EXPECT().GetByInstanceName(gomock.Any(), testInstance).Return(testConnection(), nil)
			tt.setupMocks(f)

			result, err := f.svc.Ingest(context.Background(), []byte(inboundTextPayload))

			require.NoError(t, err)
			assert.Equal(t, service.OutcomeDuplicate, result.Outcome)
			assert.Empty(t, result.MessageID)
			assert.Empty(t, result.Dispatch)
		})
	}
}

func TestIngestService_Ingest_Reaction(t *testing.T) {
	target := &models.Message{ID: "msg-1", ConversationID: "conv-1"}

	tests := []struct {
		name            string
		body            string
		setupMocks      func(f *ingestFixture)
		expectedOutcome service.IngestOutcome
	}{
		{
			name: "contact adds reaction",
			body: reactionPayload("👍", false),
			setupMocks: func(f *ingestFixture) {
				f.repo.message.EXPECT().GetByProviderID(gomock.Any(), testCompanyID, "3EB0TEXT").Return(target, nil)
				f.repo.contact.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return("contact-1", nil)
				f.repo.reaction.EXPECT().Upsert(gomock.Any(), "msg-1", models.ReactorContact, "contact-1", "👍").Return(nil)
			},
			expectedOutcome: service.OutcomeProcessed,
		},
		{
			name: "operator removes reaction",
			body: reactionPayload("", true),
			setupMocks: func(f *ingestFixture) {
				f.repo.message.EXPECT().GetByProviderID(gomock.Any(), testCompanyID, "3EB0TEXT").Return(target, nil)
				f.repo.reaction.EXPECT().Delete(gomock.Any(), "msg-1", models.ReactorUser, testConnectionID).Return(nil)
			},
			expectedOutcome: service.OutcomeProcessed,
		},
		{
			name: "unknown target",
			body: reactionPayload("👍", false),
			setupMocks: func(f *ingestFixture) {
				f.repo.message.EXPECT().GetByProviderID(gomock.Any(), testCompanyID, "3EB0TEXT").Return(nil, repository.ErrNotFound)
			},
			expectedOutcome: service.OutcomeIgnored,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIngestFixture(t)
			f.repo.connection.EXPECT().GetByInstanceName(gomock.Any(), testInstance).Return(testConnection(), nil)
			tt.setupMocks(f)

			result, err := f.svc.Ingest(context.Background(), []byte(tt.body))

			require.NoError(t, err)
			assert.Equal(t, classifier.KindReaction, result.Kind)
			assert.Equal(t, tt.expectedOutcome, result.Outcome)
		})
	}
}

func TestIngestService_Ingest_Deletion(t *testing.T) {
	f := newIngestFixture(t)

	f.repo.connection.EXPECT().GetByInstanceName(gomock.Any(), testInstance).Return(testConnection(), nil)
	f.repo.message.EXPECT().
		SoftDeleteByProviderIDs(gomock.Any(), testCompanyID, []string{"3EB0TEXT", "3EB0IMG"}, models.DeletedByContact, gomock.Any()).
		Return(int64(2), nil)

	result, err := f.svc.Ingest(context.Background(), []byte(deletionPayload))

	require.NoError(t, err)
	assert.Equal(t, service.OutcomeProcessed, result.Outcome)
	assert.Equal(t, classifier.KindDeletion, result.Kind)
}

func TestIngestService_Ingest_RepositoryError(t *testing.T) {
	f := newIngestFixture(t)
	dbErr := errors.New("connection reset")

	f.repo.connection.EXPECT().GetByInstanceName(gomock.Any(), testInstance).Return(testConnection(), nil)
	f.cache.EXPECT().Seen(gomock.Any(), testCompanyID, "3EB0TEXT").Return(false, nil)
	f.repo.message.EXPECT().ExistsByProviderID(gomock.Any(), testCompanyID, "3EB0TEXT").Return(false, dbErr)

	result, err := f.svc.Ingest(context.Background(), []byte(inboundTextPayload))

	assert.ErrorIs(t, err, dbErr)
	assert.Nil(t, result)
}
