package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/config"
	"github.com/ppopeskul/wa-ingest/internal/gateway"
)

func TestAgentClient_Decide(t *testing.T) {
	tests := []struct {
		name     string
		response string
		status   int
		validate func(t *testing.T, decision *gateway.AgentDecision, err error)
	}{
		{
			name:     "skip",
			response: `{"skip":true,"reason":"ai disabled"}`,
			validate: func(t *testing.T, decision *gateway.AgentDecision, err error) {
				require.NoError(t, err)
				assert.True(t, decision.Skip)
				assert.Equal(t, "ai disabled", decision.Reason)
			},
		},
		{
			name:     "reply with voice",
			response: `{"replyText":"Olá!","delaySeconds":2.5,"voice":{"voiceId":"v1","speed":1.1},"agentId":"a1","agentName":"Sofia"}`,
			validate: func(t *testing.T, decision *gateway.AgentDecision, err error) {
				require.NoError(t, err)
				assert.False(t, decision.Skip)
				assert.Equal(t, "Olá!", decision.ReplyText)
				assert.Equal(t, 2.5, decision.DelaySeconds)
				require.NotNil(t, decision.Voice)
				assert.Equal(t, "v1", decision.Voice.VoiceID)
				assert.Equal(t, "Sofia", decision.AgentName)
			},
		},
		{
			name:     "negative delay is clamped",
			response: `{"replyText":"ok","delaySeconds":-3}`,
			validate: func(t *testing.T, decision *gateway.AgentDecision, err error) {
				require.NoError(t, err)
				assert.Zero(t, decision.DelaySeconds)
			},
		},
		{
			name:     "reply without text",
			response: `{"skip":false}`,
			validate: func(t *testing.T, decision *gateway.AgentDecision, err error) {
				require.Error(t, err)
				assert.Nil(t, decision)
			},
		},
		{
			name:   "function error",
			status: http.StatusInternalServerError,
			validate: func(t *testing.T, decision *gateway.AgentDecision, err error) {
				var statusErr *gateway.StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, "agent", statusErr.Service)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/functions/v1/ai-agent-decide", r.URL.Path)
				assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))

				var req gateway.AgentDecisionRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "conv-1", req.ConversationID)

				if tt.status != 0 {
					w.WriteHeader(tt.status)
					return
				}
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			cfg := testConfig("http://provider.invalid")
			fnCfg := &config.FunctionsConfig{BaseURL: server.URL + "/functions/v1", ServiceToken: "svc-token", Timeout: 5}
			client := gateway.NewAgentClient(fnCfg, newTestBreaker(cfg, "agent"), zap.NewNop())

			decision, err := client.Decide(context.Background(), gateway.AgentDecisionRequest{
				CompanyID:      "company-1",
				ConversationID: "conv-1",
				MessageID:      "msg-1",
				MessageType:    "text",
				Content:        "Oi",
			})
			tt.validate(t, decision, err)
		})
	}
}

func TestSpeechClient_Synthesize(t *testing.T) {
	var got gateway.SpeechRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tts-synthesize", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		if got.Text == "" {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{"audioUrl":"https://cdn.example.com/tts/1.ogg"}`))
	}))
	defer server.Close()

	cfg := testConfig("http://provider.invalid")
	fnCfg := &config.FunctionsConfig{BaseURL: server.URL, Timeout: 5}
	client := gateway.NewSpeechClient(fnCfg, newTestBreaker(cfg, "tts"), zap.NewNop())

	url, err := client.Synthesize(context.Background(), gateway.SpeechRequest{
		CompanyID: "company-1",
		Text:      "Olá!",
		Voice:     gateway.VoiceParams{VoiceID: "v1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/tts/1.ogg", url)
	assert.Equal(t, "v1", got.Voice.VoiceID)

	_, err = client.Synthesize(context.Background(), gateway.SpeechRequest{})
	assert.Error(t, err)
}
