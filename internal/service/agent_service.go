package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/config"
	"github.com/ppopeskul/wa-ingest/internal/gateway"
	"github.com/ppopeskul/wa-ingest/internal/models"
	"github.com/ppopeskul/wa-ingest/internal/queue"
	"github.com/ppopeskul/wa-ingest/internal/repository"
)

type agentService struct {
	repo     repository.Repository
	agent    gateway.AgentClient
	speech   gateway.SpeechClient
	provider gateway.ProviderClient
	maxDelay time.Duration
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewAgentService(
	cfg *config.Config,
	repo repository.Repository,
	agent gateway.AgentClient,
	speech gateway.SpeechClient,
	provider gateway.ProviderClient,
	logger *zap.Logger,
) AgentService {
	return &agentService{
		repo:     repo,
		agent:    agent,
		speech:   speech,
		provider: provider,
		maxDelay: cfg.Agent.MaxDelay,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Respond asks the agent whether and how to reply, sends the reply and records it.
// Nothing is retried: failures before the send drop the reply, failures after it are
// logged so the contact never receives the same reply twice.
func (s *agentService) Respond(ctx context.Context, task queue.AgentTask) error {
	logger := s.logger.With(
		zap.String("messageID", task.MessageID),
		zap.String("conversationID", task.ConversationID))

	decision, err := s.agent.Decide(ctx, gateway.AgentDecisionRequest{
		CompanyID:      task.CompanyID,
		ConnectionID:   task.ConnectionID,
		ConversationID: task.ConversationID,
		ContactID:      task.ContactID,
		MessageID:      task.MessageID,
		MessageType:    task.MessageType,
		Content:        task.Content,
		MediaURL:       task.MediaURL,
	})
	if err != nil {
		logger.Error("Agent decision failed", zap.Error(err))
		return nil
	}
	if decision.Skip {
		logger.Debug("Agent skipped reply", zap.String("reason", decision.Reason))
		return nil
	}

	conn, err := s.repo.Connection().GetByID(ctx, task.ConnectionID)
	if err != nil {
		logger.Error("Failed to get connection for agent reply", zap.Error(err))
		return nil
	}

	if err := s.sleep(ctx, s.replyDelay(decision.DelaySeconds)); err != nil {
		logger.Warn("Agent reply cancelled during delay", zap.Error(err))
		return nil
	}

	reply := s.send(ctx, logger, conn.ProviderToken, task, decision)
	if reply == nil {
		return nil
	}

	s.record(ctx, logger, task, decision, reply)
	return nil
}

func (s *agentService) replyDelay(seconds float64) time.Duration {
	d := time.Duration(seconds * float64(time.Second))
	if s.maxDelay > 0 && d > s.maxDelay {
		return s.maxDelay
	}
	return d
}

type sentReply struct {
	providerID  string
	voice       bool
	audioURL    string
	ttsFallback bool
}

// send delivers a voice note when requested and falls back to text when synthesis or
// the audio send fails. It returns nil when nothing reached the provider.
func (s *agentService) send(ctx context.Context, logger *zap.Logger, token string, task queue.AgentTask, decision *gateway.AgentDecision) *sentReply {
	reply := &sentReply{}

	if decision.Voice != nil {
		audioURL, err := s.speech.Synthesize(ctx, gateway.SpeechRequest{
			CompanyID: task.CompanyID,
			Text:      decision.ReplyText,
			Voice:     *decision.Voice,
		})
		if err == nil {
			var providerID string
			providerID, err = s.provider.SendAudio(ctx, token, task.ContactPhone, audioURL)
			if err == nil {
				reply.providerID = providerID
				reply.voice = true
				reply.audioURL = audioURL
				return reply
			}
		}
		logger.Warn("Voice reply failed, falling back to text", zap.Error(err))
		reply.ttsFallback = true
	}

	providerID, err := s.provider.SendText(ctx, token, task.ContactPhone, decision.ReplyText)
	if err != nil {
		logger.Error("Failed to send agent reply", zap.Error(err))
		return nil
	}
	reply.providerID = providerID

	return reply
}

func (s *agentService) record(ctx context.Context, logger *zap.Logger, task queue.AgentTask, decision *gateway.AgentDecision, reply *sentReply) {
	// The reply is already out; recording it must not depend on the task deadline.
	ctx = context.WithoutCancel(ctx)
	now := s.now().UTC()

	metadata := map[string]any{
		models.MetaAIGenerated: true,
		models.MetaVoice:       reply.voice,
		models.MetaTTSFallback: reply.ttsFallback,
	}
	if decision.AgentID != "" {
		metadata[models.MetaAgentID] = decision.AgentID
	}
	if decision.AgentName != "" {
		metadata[models.MetaAgentName] = decision.AgentName
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		logger.Error("Failed to encode agent reply metadata", zap.Error(err))
		return
	}

	messageType := models.MessageTypeText
	if reply.voice {
		messageType = models.MessageTypeAudio
	}

	providerID := reply.providerID
	if providerID == "" {
		providerID = "ai-" + uuid.NewString()
	}

	msg := &models.Message{
		CompanyID:         task.CompanyID,
		ConversationID:    task.ConversationID,
		Direction:         models.DirectionOutbound,
		SenderType:        models.SenderBot,
		MessageType:       messageType,
		Content:           nullString(decision.ReplyText),
		MediaURL:          nullString(reply.audioURL),
		Status:            models.MessageStatusSent,
		ProviderMessageID: providerID,
		Metadata:          types.JSONText(encoded),
		CreatedAt:         now,
	}
	if reply.voice {
		msg.MediaMimeType = nullString("audio/ogg")
	}

	id, inserted, err := s.repo.Message().Insert(ctx, msg)
	if err != nil {
		logger.Error("Failed to record agent reply", zap.String("providerMessageID", providerID), zap.Error(err))
		return
	}
	if !inserted {
		// The provider echo of our own send arrived first.
		logger.Info("Agent reply already recorded", zap.String("providerMessageID", providerID))
	}

	if err := s.repo.Conversation().Touch(ctx, task.ConversationID, now, false); err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.Warn("Failed to touch conversation after agent reply", zap.Error(err))
	}

	logger.Info("Agent reply sent",
		zap.String("replyMessageID", id),
		zap.Bool("voice", reply.voice),
		zap.Bool("ttsFallback", reply.ttsFallback))
}
