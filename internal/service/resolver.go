package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/models"
	"github.com/ppopeskul/wa-ingest/internal/repository"
)

// maxResolveAttempts bounds how often the conversation policy re-runs after losing a race.
const maxResolveAttempts = 3

type ConversationOutcome string

const (
	ConversationExisting ConversationOutcome = "existing"
	ConversationReopened ConversationOutcome = "reopened"
	ConversationCreated  ConversationOutcome = "created"
)

type ConversationParams struct {
	CompanyID           string
	ContactID           string
	ConnectionID        string
	DefaultDepartmentID string
	FromSelf            bool
	At                  time.Time
}

// Resolver finds or creates the contact and conversation an event belongs to.
type Resolver struct {
	repo   repository.Repository
	logger *zap.Logger
}

func NewResolver(repo repository.Repository, logger *zap.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		logger: logger,
	}
}

// ResolveContact upserts the contact in one statement. Names edited by an operator are
// kept; new contacts without a display name are named after the phone number.
func (r *Resolver) ResolveContact(ctx context.Context, companyID, phone, displayName, avatarURL string, at time.Time) (string, error) {
	id, err := r.repo.Contact().Upsert(ctx, repository.ContactUpsert{
		CompanyID:     companyID,
		PhoneNumber:   phone,
		Name:          displayName,
		AvatarURL:     avatarURL,
		InteractionAt: at,
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve contact: %w", err)
	}

	return id, nil
}

// ResolveConversation continues the active conversation, else reopens the latest
// closed one, else creates a new one.
func (r *Resolver) ResolveConversation(ctx context.Context, p ConversationParams) (string, ConversationOutcome, error) {
	unread := 1
	if p.FromSelf {
		unread = 0
	}

	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		active, err := r.repo.Conversation().FindLatestActive(ctx, p.ContactID, p.ConnectionID)
		if err != nil {
			return "", "", fmt.Errorf("failed to find active conversation: %w", err)
		}
		if active != nil {
			if err := r.repo.Conversation().Touch(ctx, active.ID, p.At, !p.FromSelf); err != nil {
				return "", "", fmt.Errorf("failed to touch conversation: %w", err)
			}
			return active.ID, ConversationExisting, nil
		}

		closed, err := r.repo.Conversation().FindLatestClosed(ctx, p.ContactID, p.ConnectionID)
		if err != nil {
			return "", "", fmt.Errorf("failed to find closed conversation: %w", err)
		}
		if closed != nil {
			reopened, err := r.repo.Conversation().Reopen(ctx, closed.ID, p.At, unread)
			if err != nil {
				return "", "", fmt.Errorf("failed to reopen conversation: %w", err)
			}
			if reopened {
				r.addEvent(ctx, closed.ID, models.ConversationEventReopened, map[string]any{
					"reopenedAt": p.At.UTC().Format(time.RFC3339),
					"fromSelf":   p.FromSelf,
				})
				return closed.ID, ConversationReopened, nil
			}
			r.logger.Debug("Lost conversation reopen race, retrying",
				zap.String("conversationID", closed.ID),
				zap.Int("attempt", attempt))
			continue
		}

		id, created, err := r.repo.Conversation().Create(ctx, repository.ConversationCreate{
			CompanyID:    p.CompanyID,
			ContactID:    p.ContactID,
			ConnectionID: p.ConnectionID,
			DepartmentID: p.DefaultDepartmentID,
			UnreadCount:  unread,
			At:           p.At,
		})
		if err != nil {
			return "", "", fmt.Errorf("failed to create conversation: %w", err)
		}
		if created {
			r.addEvent(ctx, id, models.ConversationEventCreated, map[string]any{
				"connectionId": p.ConnectionID,
			})
			return id, ConversationCreated, nil
		}
		r.logger.Debug("Lost conversation create race, retrying",
			zap.String("contactID", p.ContactID),
			zap.Int("attempt", attempt))
	}

	return "", "", fmt.Errorf("failed to resolve conversation after %d attempts", maxResolveAttempts)
}

// addEvent records history. A failure does not undo the state change it describes.
func (r *Resolver) addEvent(ctx context.Context, conversationID string, eventType models.ConversationEventType, metadata map[string]any) {
	if err := r.repo.Conversation().AddEvent(ctx, conversationID, eventType, metadata); err != nil {
		r.logger.Warn("Failed to record conversation event",
			zap.String("conversationID", conversationID),
			zap.String("eventType", string(eventType)),
			zap.Error(err))
	}
}
