package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/models"
	"github.com/ppopeskul/wa-ingest/internal/repository"
)

type PersistParams struct {
	CompanyID         string
	ConversationID    string
	ProviderMessageID string
	Direction         models.MessageDirection
	SenderType        models.SenderType
	MessageType       models.MessageType
	Content           string
	QuotedProviderID  string

	ProviderMimeType    string
	FileName            string
	ProviderMessageType string
	SenderName          string
	IsPtt               bool

	At time.Time
}

type PersistResult struct {
	MessageID string
	Status    models.MessageStatus
	Duplicate bool
}

// Persister writes inbound and self-sent messages. It never touches conversation counters.
type Persister struct {
	repo   repository.Repository
	logger *zap.Logger
}

func NewPersister(repo repository.Repository, logger *zap.Logger) *Persister {
	return &Persister{
		repo:   repo,
		logger: logger,
	}
}

func (p *Persister) Persist(ctx context.Context, params PersistParams) (*PersistResult, error) {
	exists, err := p.repo.Message().ExistsByProviderID(ctx, params.CompanyID, params.ProviderMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to check message existence: %w", err)
	}
	if exists {
		return &PersistResult{Duplicate: true}, nil
	}

	quotedID, err := p.resolveQuoted(ctx, params.ConversationID, params.QuotedProviderID)
	if err != nil {
		return nil, err
	}

	status := initialStatus(params.MessageType, params.Direction)

	metadata, err := json.Marshal(persistMetadata(params))
	if err != nil {
		return nil, fmt.Errorf("failed to encode message metadata: %w", err)
	}

	msg := &models.Message{
		CompanyID:         params.CompanyID,
		ConversationID:    params.ConversationID,
		Direction:         params.Direction,
		SenderType:        params.SenderType,
		MessageType:       params.MessageType,
		Content:           nullString(params.Content),
		Status:            status,
		ProviderMessageID: params.ProviderMessageID,
		QuotedMessageID:   nullString(quotedID),
		Metadata:          types.JSONText(metadata),
		CreatedAt:         params.At,
	}

	id, inserted, err := p.repo.Message().Insert(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}
	if !inserted {
		p.logger.Debug("Concurrent duplicate message",
			zap.String("companyID", params.CompanyID),
			zap.String("providerMessageID", params.ProviderMessageID))
		return &PersistResult{Duplicate: true}, nil
	}

	return &PersistResult{MessageID: id, Status: status}, nil
}

// resolveQuoted matches the quoted provider id exactly, then by the id after its routing
// prefix. An unresolved quote yields "".
func (p *Persister) resolveQuoted(ctx context.Context, conversationID, quoted string) (string, error) {
	if quoted == "" {
		return "", nil
	}

	id, err := p.repo.Message().FindIDByProviderID(ctx, conversationID, quoted)
	if err != nil {
		return "", fmt.Errorf("failed to resolve quoted message: %w", err)
	}
	if id != "" {
		return id, nil
	}

	suffix := quoted
	if i := strings.LastIndexByte(quoted, ':'); i >= 0 {
		suffix = quoted[i+1:]
	}
	if suffix == "" {
		return "", nil
	}

	id, err = p.repo.Message().FindIDByProviderIDSuffix(ctx, conversationID, suffix)
	if err != nil {
		return "", fmt.Errorf("failed to resolve quoted message: %w", err)
	}

	return id, nil
}

func initialStatus(messageType models.MessageType, direction models.MessageDirection) models.MessageStatus {
	switch {
	case messageType.IsMedia():
		return models.MessageStatusPending
	case direction == models.DirectionOutbound:
		return models.MessageStatusSent
	default:
		return models.MessageStatusDelivered
	}
}

func persistMetadata(params PersistParams) map[string]any {
	metadata := map[string]any{}
	if params.MessageType.IsMedia() {
		metadata[models.MetaPendingDownload] = true
	}
	if params.FileName != "" {
		metadata[models.MetaFileName] = params.FileName
	}
	if params.ProviderMimeType != "" {
		metadata[models.MetaProviderMimeType] = params.ProviderMimeType
	}
	if params.ProviderMessageType != "" {
		metadata[models.MetaProviderMessageType] = params.ProviderMessageType
	}
	if params.SenderName != "" {
		metadata[models.MetaSenderName] = params.SenderName
	}
	if params.IsPtt {
		metadata[models.MetaIsPtt] = true
	}
	return metadata
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
