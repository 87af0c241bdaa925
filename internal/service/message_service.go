package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/models"
	"github.com/ppopeskul/wa-ingest/internal/queue"
	"github.com/ppopeskul/wa-ingest/internal/repository"
)

type messageService struct {
	repo       repository.Repository
	dispatcher TaskDispatcher
	logger     *zap.Logger
}

func NewMessageService(
	repo repository.Repository,
	dispatcher TaskDispatcher,
	logger *zap.Logger,
) MessageService {
	return &messageService{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (s *messageService) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := s.repo.Message().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

// RetryMedia moves a failed media message back to pending and schedules it again.
// A manual retry never triggers the agent.
func (s *messageService) RetryMedia(ctx context.Context, id string) (*models.Message, queue.DispatchMode, error) {
	msg, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, "", err
	}

	if !msg.MessageType.IsMedia() || msg.Status != models.MessageStatusFailed {
		return nil, "", fmt.Errorf("%w: type %s, status %s", ErrMediaNotRetryable, msg.MessageType, msg.Status)
	}

	conversation, err := s.repo.Conversation().GetByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get conversation: %w", err)
	}

	contact, err := s.repo.Contact().GetByID(ctx, conversation.ContactID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get contact: %w", err)
	}

	reset, err := s.repo.Message().ResetMediaForRetry(ctx, msg.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to reset media: %w", err)
	}
	if !reset {
		return nil, "", fmt.Errorf("%w: status changed concurrently", ErrMediaNotRetryable)
	}

	metadata := msg.MetadataMap()
	providerMime, _ := metadata[models.MetaProviderMimeType].(string)
	fileName, _ := metadata[models.MetaFileName].(string)

	mode := s.dispatcher.Enqueue(ctx, queue.NewMediaTask(queue.MediaTask{
		MessageID:         msg.ID,
		CompanyID:         msg.CompanyID,
		ConnectionID:      conversation.ConnectionID,
		ConversationID:    conversation.ID,
		ContactID:         contact.ID,
		ContactPhone:      contact.PhoneNumber,
		ProviderMessageID: msg.ProviderMessageID,
		MessageType:       string(msg.MessageType),
		ProviderMimeType:  providerMime,
		FileName:          fileName,
		Caption:           msg.Content.String,
	}))

	s.logger.Info("Media retry scheduled",
		zap.String("messageID", msg.ID),
		zap.String("dispatch", string(mode)))

	updated, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		return nil, mode, err
	}

	return updated, mode, nil
}
