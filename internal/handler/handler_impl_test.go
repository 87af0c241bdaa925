package handler_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/api"
	"github.com/ppopeskul/wa-ingest/internal/classifier"
	"github.com/ppopeskul/wa-ingest/internal/handler"
	"github.com/ppopeskul/wa-ingest/internal/middleware"
	"github.com/ppopeskul/wa-ingest/internal/models"
	"github.com/ppopeskul/wa-ingest/internal/queue"
	"github.com/ppopeskul/wa-ingest/internal/service"
	"github.com/ppopeskul/wa-ingest/internal/service/mocks"
)

func withRequestID(req *http.Request) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "test-request-id"))
}

func TestHandler_ReceiveWebhook(t *testing.T) {
	body := `{"EventType":"messages","instanceName":"acme-main"}`

	tests := []struct {
		name           string
		body           string
		setupMocks     func(*mocks.MockIngestService)
		expectedStatus int
		expectedBody   func(*testing.T, []byte)
	}{
		{
			name: "processed",
			body: body,
			setupMocks: func(m *mocks.MockIngestService) {
				m.EXPECT().Ingest(gomock.Any(), []byte(body)).Return(&service.IngestResult{
					Outcome:        service.OutcomeProcessed,
					Kind:           classifier.KindImage,
					MessageID:      "msg-1",
					ConversationID: "conv-1",
					Dispatch:       []queue.DispatchMode{queue.DispatchQueued},
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody: func(t *testing.T, body []byte) {
				var resp api.WebhookResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.True(t, resp.Success)
				assert.Equal(t, api.Processed, resp.Result)
				assert.Equal(t, "image", *resp.Kind)
				assert.Equal(t, "msg-1", *resp.MessageId)
				assert.Equal(t, "conv-1", *resp.ConversationId)
				assert.Equal(t, []string{"queued"}, *resp.Dispatch)
			},
		},
		{
			name: "ignored",
			body: body,
			setupMocks: func(m *mocks.MockIngestService) {
				m.EXPECT().Ingest(gomock.Any(), gomock.Any()).Return(&service.IngestResult{
					Outcome: service.OutcomeIgnored,
					Kind:    classifier.KindIgnored,
					Reason:  "irrelevant event",
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody: func(t *testing.T, body []byte) {
				var resp api.WebhookResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, api.Ignored, resp.Result)
				assert.Equal(t, "irrelevant event", *resp.Reason)
				assert.Nil(t, resp.MessageId)
			},
		},
		{
			name: "malformed payload",
			body: `{`,
			setupMocks: func(m *mocks.MockIngestService) {
				m.EXPECT().Ingest(gomock.Any(), gomock.Any()).
					Return(nil, fmt.Errorf("%w: unexpected EOF", service.ErrMalformedPayload))
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody: func(t *testing.T, body []byte) {
				var resp api.WebhookErrorResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.False(t, resp.Success)
				assert.Equal(t, "Invalid webhook payload", resp.Error)
				require.NotNil(t, resp.Details)
				assert.Contains(t, *resp.Details, "unexpected EOF")
			},
		},
		{
			name: "unknown connection",
			body: body,
			setupMocks: func(m *mocks.MockIngestService) {
				m.EXPECT().Ingest(gomock.Any(), gomock.Any()).
					Return(nil, fmt.Errorf("%w: acme-main", service.ErrConnectionNotFound))
			},
			expectedStatus: http.StatusNotFound,
			expectedBody: func(t *testing.T, body []byte) {
				var resp api.WebhookErrorResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, "Connection not found", resp.Error)
			},
		},
		{
			name: "storage failure",
			body: body,
			setupMocks: func(m *mocks.MockIngestService) {
				m.EXPECT().Ingest(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody: func(t *testing.T, body []byte) {
				var resp api.WebhookErrorResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, "Failed to process webhook", resp.Error)
				assert.Equal(t, "connection reset", *resp.Details)
			},
		},
		{
			name:           "body over limit",
			body:           `{"pad":"` + strings.Repeat("x", 256) + `"}`,
			setupMocks:     func(m *mocks.MockIngestService) {},
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedBody: func(t *testing.T, body []byte) {
				var resp api.WebhookErrorResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, "Webhook payload too large", resp.Error)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			mockIngest := mocks.NewMockIngestService(ctrl)
			tt.setupMocks(mockIngest)

			h := handler.NewHandler(&service.Service{Ingest: mockIngest}, 128, zap.NewNop())

			req := withRequestID(httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(tt.body)))
			w := httptest.NewRecorder()

			h.ReceiveWebhook(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			tt.expectedBody(t, w.Body.Bytes())
		})
	}
}

func TestHandler_GetMessage(t *testing.T) {
	id := uuid.New()
	conversationID := uuid.New()

	tests := []struct {
		name           string
		setupMocks     func(*mocks.MockMessageService)
		expectedStatus int
		expectedBody   func(*testing.T, []byte)
	}{
		{
			name: "found",
			setupMocks: func(m *mocks.MockMessageService) {
				m.EXPECT().GetMessage(gomock.Any(), id.String()).Return(&models.Message{
					ID:             id.String(),
					ConversationID: conversationID.String(),
					MessageType:    models.MessageTypeImage,
					Status:         models.MessageStatusDelivered,
					Content:        sql.NullString{String: "look", Valid: true},
					MediaURL:       sql.NullString{String: "https://storage.local/a.jpg", Valid: true},
					Metadata:       []byte(`{"fileSize":11}`),
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody: func(t *testing.T, body []byte) {
				var resp api.Message
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, id, resp.Id)
				assert.Equal(t, conversationID, resp.ConversationId)
				assert.Equal(t, api.MessageStatusDelivered, resp.Status)
				assert.Equal(t, "look", *resp.Content)
				assert.Equal(t, "https://storage.local/a.jpg", *resp.MediaUrl)
				assert.Nil(t, resp.MediaMimeType)
				assert.Equal(t, float64(11), (*resp.Metadata)["fileSize"])
			},
		},
		{
			name: "not found",
			setupMocks: func(m *mocks.MockMessageService) {
				m.EXPECT().GetMessage(gomock.Any(), id.String()).Return(nil, service.ErrMessageNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody: func(t *testing.T, body []byte) {
				var resp api.ErrorResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, "MESSAGE_NOT_FOUND", resp.Error)
			},
		},
		{
			name: "internal error",
			setupMocks: func(m *mocks.MockMessageService) {
				m.EXPECT().GetMessage(gomock.Any(), id.String()).Return(nil, errors.New("connection reset"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody: func(t *testing.T, body []byte) {
				var resp api.ErrorResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, middleware.ErrorCodeInternal, resp.Error)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			mockMessage := mocks.NewMockMessageService(ctrl)
			tt.setupMocks(mockMessage)

			h := handler.NewHandler(&service.Service{Message: mockMessage}, 0, zap.NewNop())

			req := withRequestID(httptest.NewRequest(http.MethodGet, "/messages/"+id.String(), nil))
			w := httptest.NewRecorder()

			h.GetMessage(w, req, id)

			assert.Equal(t, tt.expectedStatus, w.Code)
			tt.expectedBody(t, w.Body.Bytes())
		})
	}
}

func TestHandler_RetryMessageMedia(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name           string
		setupMocks     func(*mocks.MockMessageService)
		expectedStatus int
		expectedBody   func(*testing.T, []byte)
	}{
		{
			name: "accepted",
			setupMocks: func(m *mocks.MockMessageService) {
				m.EXPECT().RetryMedia(gomock.Any(), id.String()).
					Return(&models.Message{ID: id.String(), Status: models.MessageStatusPending}, queue.DispatchBackground, nil)
			},
			expectedStatus: http.StatusAccepted,
			expectedBody: func(t *testing.T, body []byte) {
				var resp api.MediaRetryResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, id, resp.MessageId)
				assert.Equal(t, "pending", resp.Status)
				assert.Equal(t, "background", resp.Dispatch)
			},
		},
		{
			name: "not retryable",
			setupMocks: func(m *mocks.MockMessageService) {
				m.EXPECT().RetryMedia(gomock.Any(), id.String()).
					Return(nil, queue.DispatchMode(""), fmt.Errorf("%w: status delivered", service.ErrMediaNotRetryable))
			},
			expectedStatus: http.StatusConflict,
			expectedBody: func(t *testing.T, body []byte) {
				var resp api.ErrorResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, "MEDIA_NOT_RETRYABLE", resp.Error)
			},
		},
		{
			name: "not found",
			setupMocks: func(m *mocks.MockMessageService) {
				m.EXPECT().RetryMedia(gomock.Any(), id.String()).
					Return(nil, queue.DispatchMode(""), service.ErrMessageNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody: func(t *testing.T, body []byte) {
				var resp api.ErrorResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, "MESSAGE_NOT_FOUND", resp.Error)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			mockMessage := mocks.NewMockMessageService(ctrl)
			tt.setupMocks(mockMessage)

			h := handler.NewHandler(&service.Service{Message: mockMessage}, 0, zap.NewNop())

			req := withRequestID(httptest.NewRequest(http.MethodPost, "/messages/"+id.String()+"/media/retry", nil))
			w := httptest.NewRecorder()

			h.RetryMessageMedia(w, req, id)

			assert.Equal(t, tt.expectedStatus, w.Code)
			tt.expectedBody(t, w.Body.Bytes())
		})
	}
}

func TestHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name           string
		health         *service.HealthStatus
		expectedStatus int
	}{
		{
			name: "healthy",
			health: &service.HealthStatus{
				Status:         api.Healthy,
				DatabaseStatus: api.HealthResponseDatabaseStatusConnected,
				RedisStatus:    api.HealthResponseRedisStatusConnected,
				SweeperStatus:  api.HealthResponseSweeperStatusRunning,
				QueueDriver:    "redis",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "degraded stays available",
			health: &service.HealthStatus{
				Status:         api.Degraded,
				DatabaseStatus: api.HealthResponseDatabaseStatusConnected,
				CircuitBreakers: []api.CircuitBreakerStatus{
					{Name: "provider", State: api.CircuitBreakerStatusStateOpen},
				},
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "unhealthy",
			health: &service.HealthStatus{
				Status:         api.Unhealthy,
				DatabaseStatus: api.HealthResponseDatabaseStatusDisconnected,
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			mockHealth := mocks.NewMockHealthService(ctrl)
			mockHealth.EXPECT().GetHealth(gomock.Any()).Return(tt.health)

			h := handler.NewHandler(&service.Service{Health: mockHealth}, 0, zap.NewNop())

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()

			h.HealthCheck(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp api.HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.health.Status, resp.Status)
			require.NotNil(t, resp.DatabaseStatus)
			assert.Equal(t, tt.health.DatabaseStatus, *resp.DatabaseStatus)
			if len(tt.health.CircuitBreakers) > 0 {
				require.NotNil(t, resp.CircuitBreakers)
				assert.Equal(t, tt.health.CircuitBreakers, *resp.CircuitBreakers)
			}
		})
	}
}
