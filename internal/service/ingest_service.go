package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/classifier"
	"github.com/ppopeskul/wa-ingest/internal/config"
	"github.com/ppopeskul/wa-ingest/internal/models"
	"github.com/ppopeskul/wa-ingest/internal/queue"
	"github.com/ppopeskul/wa-ingest/internal/repository"
)

const (
	reasonIrrelevantEvent = "irrelevant event"
	reasonReactionTarget  = "reaction target not found"
	reasonNoDeletedIDs    = "no message ids to delete"
)

type ingestService struct {
	repo         repository.Repository
	cache        repository.DedupCache
	resolver     *Resolver
	persister    *Persister
	dispatcher   TaskDispatcher
	agentEnabled bool
	logger       *zap.Logger
	now          func() time.Time
}

func NewIngestService(
	cfg *config.Config,
	repo repository.Repository,
	cache repository.DedupCache,
	dispatcher TaskDispatcher,
	logger *zap.Logger,
) IngestService {
	if cache == nil {
		cache = repository.NewNoopDedupCache()
	}

	return &ingestService{
		repo:         repo,
		cache:        cache,
		resolver:     NewResolver(repo, logger),
		persister:    NewPersister(repo, logger),
		dispatcher:   dispatcher,
		agentEnabled: cfg.Agent.Enabled && cfg.Functions.BaseURL != "",
		logger:       logger,
		now:          time.Now,
	}
}

// Ingest parses, classifies and persists one webhook delivery, then schedules the
// asynchronous work it needs. It returns before any of that work runs.
func (s *ingestService) Ingest(ctx context.Context, body []byte) (*IngestResult, error) {
	ev, err := classifier.Parse(body, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if ev.InstanceName == "" {
		return nil, fmt.Errorf("%w: instanceName", ErrMissingField)
	}

	kind := classifier.Classify(ev)
	if kind == classifier.KindIgnored {
		return &IngestResult{Outcome: OutcomeIgnored, Kind: kind, Reason: reasonIrrelevantEvent}, nil
	}

	if kind != classifier.KindDeletion {
		if ev.ProviderMessageID == "" {
			return nil, fmt.Errorf("%w: message id", ErrMissingField)
		}
		if ev.Phone == "" {
			return nil, fmt.Errorf("%w: sender", ErrMissingField)
		}
	}

	conn, err := s.repo.Connection().GetByInstanceName(ctx, ev.InstanceName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, ev.InstanceName)
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	switch kind {
	case classifier.KindDeletion:
		return s.ingestDeletion(ctx, conn, ev)
	case classifier.KindReaction:
		return s.ingestReaction(ctx, conn, ev)
	default:
		return s.ingestMessage(ctx, conn, ev, kind)
	}
}

func (s *ingestService) ingestMessage(ctx context.Context, conn *models.Connection, ev *classifier.Event, kind classifier.Kind) (*IngestResult, error) {
	result := &IngestResult{Kind: kind}

	duplicate, err := s.isDuplicate(ctx, conn.CompanyID, ev.ProviderMessageID)
	if err != nil {
		return nil, err
	}
	if duplicate {
		result.Outcome = OutcomeDuplicate
		return result, nil
	}

	contactID, err := s.resolver.ResolveContact(ctx, conn.CompanyID, ev.Phone, contactName(ev), ev.AvatarURL, ev.Timestamp)
	if err != nil {
		return nil, err
	}

	conversationID, outcome, err := s.resolver.ResolveConversation(ctx, ConversationParams{
		CompanyID:           conn.CompanyID,
		ContactID:           contactID,
		ConnectionID:        conn.ID,
		DefaultDepartmentID: conn.DefaultDepartmentID.String,
		FromSelf:            ev.FromSelf,
		At:                  ev.Timestamp,
	})
	if err != nil {
		return nil, err
	}
	result.ConversationID = conversationID

	direction, sender := models.DirectionInbound, models.SenderContact
	if ev.FromSelf {
		direction, sender = models.DirectionOutbound, models.SenderUser
	}

	messageType := kind.MessageType()
	persisted, err := s.persister.Persist(ctx, PersistParams{
		CompanyID:           conn.CompanyID,
		ConversationID:      conversationID,
		ProviderMessageID:   ev.ProviderMessageID,
		Direction:           direction,
		SenderType:          sender,
		MessageType:         messageType,
		Content:             ev.Body(),
		QuotedProviderID:    ev.QuotedID,
		ProviderMimeType:    ev.MimeType,
		FileName:            ev.FileName,
		ProviderMessageType: ev.MessageType,
		SenderName:          ev.SenderName,
		IsPtt:               ev.PTT,
		At:                  ev.Timestamp,
	})
	if err != nil {
		return nil, err
	}

	s.markSeen(ctx, conn.CompanyID, ev.ProviderMessageID)

	if persisted.Duplicate {
		result.Outcome = OutcomeDuplicate
		return result, nil
	}

	result.Outcome = OutcomeProcessed
	result.MessageID = persisted.MessageID

	s.logger.Info("Message ingested",
		zap.String("messageID", persisted.MessageID),
		zap.String("conversationID", conversationID),
		zap.String("conversationOutcome", string(outcome)),
		zap.String("kind", string(kind)),
		zap.Bool("fromSelf", ev.FromSelf))

	triggerAgent := s.agentEnabled && !ev.FromSelf

	switch {
	case messageType.IsMedia():
		task := queue.NewMediaTask(queue.MediaTask{
			MessageID:         persisted.MessageID,
			CompanyID:         conn.CompanyID,
			ConnectionID:      conn.ID,
			ConversationID:    conversationID,
			ContactID:         contactID,
			ContactPhone:      ev.Phone,
			ProviderMessageID: ev.ProviderMessageID,
			MessageType:       string(messageType),
			ProviderMimeType:  ev.MimeType,
			FileName:          ev.FileName,
			Caption:           ev.Caption,
			TriggerAgent:      triggerAgent,
		})
		result.Dispatch = append(result.Dispatch, s.dispatcher.Enqueue(ctx, task))
	case triggerAgent:
		task := queue.NewAgentTask(queue.AgentTask{
			MessageID:      persisted.MessageID,
			CompanyID:      conn.CompanyID,
			ConnectionID:   conn.ID,
			ConversationID: conversationID,
			ContactID:      contactID,
			ContactPhone:   ev.Phone,
			MessageType:    string(messageType),
			Content:        ev.Body(),
		})
		result.Dispatch = append(result.Dispatch, s.dispatcher.Enqueue(ctx, task))
	}

	return result, nil
}

// isDuplicate consults the cache first. Cache errors fall through to the database.
func (s *ingestService) isDuplicate(ctx context.Context, companyID, providerMessageID string) (bool, error) {
	seen, err := s.cache.Seen(ctx, companyID, providerMessageID)
	if err != nil {
		s.logger.Warn("Dedup cache unavailable", zap.Error(err))
	} else if seen {
		return true, nil
	}

	exists, err := s.repo.Message().ExistsByProviderID(ctx, companyID, providerMessageID)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate message: %w", err)
	}

	return exists, nil
}

func (s *ingestService) markSeen(ctx context.Context, companyID, providerMessageID string) {
	if err := s.cache.Mark(ctx, companyID, providerMessageID); err != nil {
		s.logger.Warn("Failed to mark message in dedup cache",
			zap.String("providerMessageID", providerMessageID),
			zap.Error(err))
	}
}

func (s *ingestService) ingestReaction(ctx context.Context, conn *models.Connection, ev *classifier.Event) (*IngestResult, error) {
	result := &IngestResult{Kind: classifier.KindReaction}

	target, err := s.repo.Message().GetByProviderID(ctx, conn.CompanyID, ev.ReactionTarget)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			result.Outcome = OutcomeIgnored
			result.Reason = reasonReactionTarget
			return result, nil
		}
		return nil, fmt.Errorf("failed to get reaction target: %w", err)
	}

	reactorType, reactorID := models.ReactorUser, conn.ID
	if !ev.FromSelf {
		contactID, err := s.resolver.ResolveContact(ctx, conn.CompanyID, ev.Phone, contactName(ev), ev.AvatarURL, ev.Timestamp)
		if err != nil {
			return nil, err
		}
		reactorType, reactorID = models.ReactorContact, contactID
	}

	emoji := ev.Text
	if emoji == "" {
		err = s.repo.Reaction().Delete(ctx, target.ID, reactorType, reactorID)
	} else {
		err = s.repo.Reaction().Upsert(ctx, target.ID, reactorType, reactorID, emoji)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply reaction: %w", err)
	}

	result.Outcome = OutcomeProcessed
	result.MessageID = target.ID
	result.ConversationID = target.ConversationID

	return result, nil
}

func (s *ingestService) ingestDeletion(ctx context.Context, conn *models.Connection, ev *classifier.Event) (*IngestResult, error) {
	result := &IngestResult{Kind: classifier.KindDeletion}

	ids := ev.UpdateMessageIDs
	if len(ids) == 0 && ev.ProviderMessageID != "" {
		ids = []string{ev.ProviderMessageID}
	}
	if len(ids) == 0 {
		result.Outcome = OutcomeIgnored
		result.Reason = reasonNoDeletedIDs
		return result, nil
	}

	deletedBy := models.DeletedByContact
	if ev.FromSelf {
		deletedBy = models.DeletedByUser
	}

	deleted, err := s.repo.Message().SoftDeleteByProviderIDs(ctx, conn.CompanyID, ids, deletedBy, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to delete messages: %w", err)
	}

	s.logger.Info("Messages deleted",
		zap.String("companyID", conn.CompanyID),
		zap.Strings("providerMessageIDs", ids),
		zap.Int64("deleted", deleted))

	result.Outcome = OutcomeProcessed
	return result, nil
}

// contactName is the counterpart's display name. On self-sent messages the sender name
// is our own, so only the chat name applies.
func contactName(ev *classifier.Event) string {
	if ev.FromSelf {
		return ev.ChatName
	}
	if ev.SenderName != "" {
		return ev.SenderName
	}
	return ev.ChatName
}
