// Package handler provides HTTP request handlers for the application.
package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/render"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/api"
	"github.com/ppopeskul/wa-ingest/internal/middleware"
	"github.com/ppopeskul/wa-ingest/internal/service"
)

const (
	errorCodeMessageNotFound = "MESSAGE_NOT_FOUND"
	errorCodeNotRetryable    = "MEDIA_NOT_RETRYABLE"
)

const (
	errorMessageMessageNotFound  = "Message not found"
	errorMessageNotRetryable     = "Only failed media messages can be retried"
	errorMessageFailedToGet      = "Failed to retrieve message"
	errorMessageFailedToRetry    = "Failed to retry media"
	webhookErrorInvalidPayload   = "Invalid webhook payload"
	webhookErrorPayloadTooLarge  = "Webhook payload too large"
	webhookErrorUnknownInstance  = "Connection not found"
	webhookErrorProcessingFailed = "Failed to process webhook"
)

type Handler struct {
	service      *service.Service
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewHandler creates a new handler instance that implements api.ServerInterface.
// A non-positive maxBodyBytes disables the webhook body limit.
func NewHandler(service *service.Service, maxBodyBytes int64, logger *zap.Logger) api.ServerInterface {
	return &Handler{
		service:      service,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// ReceiveWebhook implements api.ServerInterface.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.sendWebhookError(w, r, http.StatusRequestEntityTooLarge, webhookErrorPayloadTooLarge, nil)
			return
		}
		h.sendWebhookError(w, r, http.StatusBadRequest, webhookErrorInvalidPayload, err)
		return
	}

	result, err := h.service.Ingest.Ingest(r.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMalformedPayload), errors.Is(err, service.ErrMissingField):
			h.sendWebhookError(w, r, http.StatusBadRequest, webhookErrorInvalidPayload, err)
		case errors.Is(err, service.ErrConnectionNotFound):
			h.logger.Warn("Webhook for unknown connection",
				zap.String("request_id", requestID),
				zap.Error(err))
			h.sendWebhookError(w, r, http.StatusNotFound, webhookErrorUnknownInstance, err)
		default:
			h.logger.Error("Failed to process webhook",
				zap.String("request_id", requestID),
				zap.Error(err))
			h.sendWebhookError(w, r, http.StatusInternalServerError, webhookErrorProcessingFailed, err)
		}
		return
	}

	render.JSON(w, r, toWebhookResponse(result))
}

// GetMessage implements api.ServerInterface.
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request, messageId openapi_types.UUID) {
	msg, err := h.service.Message.GetMessage(r.Context(), messageId.String())
	if err != nil {
		if errors.Is(err, service.ErrMessageNotFound) {
			h.sendError(w, r, http.StatusNotFound, errorCodeMessageNotFound, errorMessageMessageNotFound)
			return
		}

		h.logger.Error("Failed to get message",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("messageID", messageId.String()),
			zap.Error(err))
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToGet)
		return
	}

	render.JSON(w, r, toAPIMessage(msg))
}

// RetryMessageMedia implements api.ServerInterface.
func (h *Handler) RetryMessageMedia(w http.ResponseWriter, r *http.Request, messageId openapi_types.UUID) {
	msg, mode, err := h.service.Message.RetryMedia(r.Context(), messageId.String())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMessageNotFound):
			h.sendError(w, r, http.StatusNotFound, errorCodeMessageNotFound, errorMessageMessageNotFound)
		case errors.Is(err, service.ErrMediaNotRetryable):
			h.sendError(w, r, http.StatusConflict, errorCodeNotRetryable, errorMessageNotRetryable)
		default:
			h.logger.Error("Failed to retry media",
				zap.String("request_id", middleware.GetRequestID(r.Context())),
				zap.String("messageID", messageId.String()),
				zap.Error(err))
			h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToRetry)
		}
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, api.MediaRetryResponse{
		MessageId: messageId,
		Status:    string(msg.Status),
		Dispatch:  string(mode),
	})
}

// HealthCheck implements api.ServerInterface.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := h.service.Health.GetHealth(r.Context())

	response := api.HealthResponse{
		Status:          health.Status,
		Timestamp:       time.Now(),
		BackgroundTasks: &health.BackgroundTasks,
	}

	if health.DatabaseStatus != "" {
		status := health.DatabaseStatus
		response.DatabaseStatus = &status
	}

	if health.RedisStatus != "" {
		status := health.RedisStatus
		response.RedisStatus = &status
	}

	if health.SweeperStatus != "" {
		status := health.SweeperStatus
		response.SweeperStatus = &status
	}

	if health.QueueDriver != "" {
		response.QueueDriver = &health.QueueDriver
	}

	if len(health.CircuitBreakers) > 0 {
		response.CircuitBreakers = &health.CircuitBreakers
	}

	// Degraded still answers 200 so the instance stays in rotation.
	if health.Status == api.Unhealthy {
		render.Status(r, http.StatusServiceUnavailable)
	}

	render.JSON(w, r, response)
}

func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, api.ErrorResponse{
		Error:   errorCode,
		Message: message,
		Timestamp: func() *time.Time {
			t := time.Now()
			return &t
		}(),
	})
}

func (h *Handler) sendWebhookError(w http.ResponseWriter, r *http.Request, statusCode int, message string, cause error) {
	resp := api.WebhookErrorResponse{
		Success: false,
		Error:   message,
	}
	if cause != nil {
		details := cause.Error()
		resp.Details = &details
	}

	render.Status(r, statusCode)
	render.JSON(w, r, resp)
}
