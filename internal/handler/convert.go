package handler

import (
	"github.com/google/uuid"

	"github.com/ppopeskul/wa-ingest/internal/api"
	"github.com/ppopeskul/wa-ingest/internal/models"
	"github.com/ppopeskul/wa-ingest/internal/service"
)

func toWebhookResponse(result *service.IngestResult) api.WebhookResponse {
	resp := api.WebhookResponse{
		Success: true,
		Result:  api.WebhookResponseResult(result.Outcome),
	}

	if result.Kind != "" {
		kind := string(result.Kind)
		resp.Kind = &kind
	}
	if result.Reason != "" {
		resp.Reason = &result.Reason
	}
	if result.MessageID != "" {
		resp.MessageId = &result.MessageID
	}
	if result.ConversationID != "" {
		resp.ConversationId = &result.ConversationID
	}
	if len(result.Dispatch) > 0 {
		dispatch := make([]string, 0, len(result.Dispatch))
		for _, mode := range result.Dispatch {
			dispatch = append(dispatch, string(mode))
		}
		resp.Dispatch = &dispatch
	}

	return resp
}

func toAPIMessage(msg *models.Message) api.Message {
	out := api.Message{
		Id:                parseUUID(msg.ID),
		ConversationId:    parseUUID(msg.ConversationID),
		Direction:         string(msg.Direction),
		SenderType:        string(msg.SenderType),
		MessageType:       string(msg.MessageType),
		Status:            api.MessageStatus(msg.Status),
		ProviderMessageId: msg.ProviderMessageID,
		IsDeleted:         msg.IsDeleted,
		CreatedAt:         msg.CreatedAt,
		UpdatedAt:         msg.UpdatedAt,
	}

	if msg.Content.Valid {
		out.Content = &msg.Content.String
	}
	if msg.QuotedMessageID.Valid {
		quoted := parseUUID(msg.QuotedMessageID.String)
		out.QuotedMessageId = &quoted
	}
	if msg.MediaURL.Valid {
		out.MediaUrl = &msg.MediaURL.String
	}
	if msg.MediaMimeType.Valid {
		out.MediaMimeType = &msg.MediaMimeType.String
	}
	if msg.ErrorMessage.Valid {
		out.ErrorMessage = &msg.ErrorMessage.String
	}
	if metadata := msg.MetadataMap(); len(metadata) > 0 {
		out.Metadata = &metadata
	}

	return out
}

// parseUUID yields the zero UUID for ids the database did not generate.
func parseUUID(id string) uuid.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
