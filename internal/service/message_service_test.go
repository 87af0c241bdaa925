package service_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/models"
	"github.com/ppopeskul/wa-ingest/internal/queue"
	"github.com/ppopeskul/wa-ingest/internal/repository"
	"github.com/ppopeskul/wa-ingest/internal/service"
	servicemocks "github.com/ppopeskul/wa-ingest/internal/service/mocks"
)

func failedDocument() *models.Message {
	return &models.Message{
		ID:                "msg-1",
		CompanyID:         testCompanyID,
		ConversationID:    "conv-1",
		MessageType:       models.MessageTypeDocument,
		Status:            models.MessageStatusFailed,
		ProviderMessageID: "3EB0DOC",
		Content:           sql.NullString{String: "contract", Valid: true},
		Metadata:          types.JSONText(`{"fileName":"c.pdf","providerMimeType":"application/pdf","pendingDownload":false}`),
	}
}

func TestMessageService_GetMessage(t *testing.T) {
	tests := []struct {
		name        string
		repoErr     error
		expectedErr error
	}{
		{name: "found"},
		{name: "not found", repoErr: repository.ErrNotFound, expectedErr: service.ErrMessageNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := newRepoMocks(ctrl)
			dispatcher := servicemocks.NewMockTaskDispatcher(ctrl)

			var stored *models.Message
			if tt.repoErr == nil {
				stored = failedDocument()
			}
			m.message.EXPECT().GetByID(gomock.Any(), "msg-1").Return(stored, tt.repoErr)

			svc := service.NewMessageService(m.repo, dispatcher, zap.NewNop())
			msg, err := svc.GetMessage(context.Background(), "msg-1")

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, msg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "msg-1", msg.ID)
		})
	}
}

func TestMessageService_RetryMedia(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newRepoMocks(ctrl)
	dispatcher := servicemocks.NewMockTaskDispatcher(ctrl)

	reset := failedDocument()
	reset.Status = models.MessageStatusPending

	gomock.InOrder(
		m.message.EXPECT().GetByID(gomock.Any(), "msg-1").Return(failedDocument(), nil),
		m.message.EXPECT().GetByID(gomock.Any(), "msg-1").Return(reset, nil),
	)
	m.conversation.EXPECT().GetByID(gomock.Any(), "conv-1").
		Return(&models.Conversation{ID: "conv-1", ContactID: "contact-1", ConnectionID: testConnectionID}, nil)
	m.contact.EXPECT().GetByID(gomock.Any(), "contact-1").
		Return(&models.Contact{ID: "contact-1", PhoneNumber: "5511999990000"}, nil)
	m.message.EXPECT().ResetMediaForRetry(gomock.Any(), "msg-1").Return(true, nil)
	dispatcher.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, task queue.Task) queue.DispatchMode {
			require.Equal(t, queue.TaskKindMedia, task.Kind)
			assert.Equal(t, testConnectionID, task.Media.ConnectionID)
			assert.Equal(t, "5511999990000", task.Media.ContactPhone)
			assert.Equal(t, "3EB0DOC", task.Media.ProviderMessageID)
			assert.Equal(t, "application/pdf", task.Media.ProviderMimeType)
			assert.Equal(t, "c.pdf", task.Media.FileName)
			assert.False(t, task.Media.TriggerAgent)
			return queue.DispatchQueued
		})

	svc := service.NewMessageService(m.repo, dispatcher, zap.NewNop())
	msg, mode, err := svc.RetryMedia(context.Background(), "msg-1")

	require.NoError(t, err)
	assert.Equal(t, queue.DispatchQueued, mode)
	assert.Equal(t, models.MessageStatusPending, msg.Status)
}

func TestMessageService_RetryMedia_NotRetryable(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(m *repoMocks)
	}{
		{
			name: "text message",
			setupMocks: func(m *repoMocks) {
				msg := failedDocument()
				msg.MessageType = models.MessageTypeText
				m.message.EXPECT().GetByID(gomock.Any(), "msg-1").Return(msg, nil)
			},
		},
		{
			name: "media still pending",
			setupMocks: func(m *repoMocks) {
				msg := failedDocument()
				msg.Status = models.MessageStatusPending
				m.message.EXPECT().GetByID(gomock.Any(), "msg-1").Return(msg, nil)
			},
		},
		{
			name: "status changed concurrently",
			setupMocks: func(m *repoMocks) {
				m.message.EXPECT().GetByID(gomock.Any(), "msg-1").Return(failedDocument(), nil)
				m.conversation.EXPECT().GetByID(gomock.Any(), "conv-1").
					Return(&models.Conversation{ID: "conv-1", ContactID: "contact-1"}, nil)
				m.contact.EXPECT().GetByID(gomock.Any(), "contact-1").Return(&models.Contact{ID: "contact-1"}, nil)
				m.message.EXPECT().ResetMediaForRetry(gomock.Any(), "msg-1").Return(false, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := newRepoMocks(ctrl)
			tt.setupMocks(m)

			svc := service.NewMessageService(m.repo, servicemocks.NewMockTaskDispatcher(ctrl), zap.NewNop())
			msg, _, err := svc.RetryMedia(context.Background(), "msg-1")

			assert.ErrorIs(t, err, service.ErrMediaNotRetryable)
			assert.Nil(t, msg)
		})
	}
}

func TestMessageService_RetryMedia_RepositoryError(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newRepoMocks(ctrl)
	dbErr := errors.New("connection reset")

	m.message.EXPECT().GetByID(gomock.Any(), "msg-1").Return(failedDocument(), nil)
	m.conversation.EXPECT().GetByID(gomock.Any(), "conv-1").Return(nil, dbErr)

	svc := service.NewMessageService(m.repo, servicemocks.NewMockTaskDispatcher(ctrl), zap.NewNop())
	_, _, err := svc.RetryMedia(context.Background(), "msg-1")

	assert.ErrorIs(t, err, dbErr)
}
