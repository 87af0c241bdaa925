package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/config"
)

const (
	agentDecidePath   = "/ai-agent-decide"
	ttsSynthesizePath = "/tts-synthesize"
)

// AgentDecisionRequest is the conversation context sent to the agent-decision function.
type AgentDecisionRequest struct {
	CompanyID      string `json:"companyId"`
	ConnectionID   string `json:"connectionId"`
	ConversationID string `json:"conversationId"`
	ContactID      string `json:"contactId"`
	MessageID      string `json:"messageId"`
	MessageType    string `json:"messageType"`
	Content        string `json:"content,omitempty"`
	MediaURL       string `json:"mediaUrl,omitempty"`
}

// VoiceParams is passed through to the TTS function unchanged.
type VoiceParams struct {
	VoiceID  string  `json:"voiceId"`
	Provider string  `json:"provider,omitempty"`
	Model    string  `json:"model,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
}

type AgentDecision struct {
	Skip         bool         `json:"skip"`
	Reason       string       `json:"reason,omitempty"`
	ReplyText    string       `json:"replyText"`
	DelaySeconds float64      `json:"delaySeconds"`
	Voice        *VoiceParams `json:"voice,omitempty"`
	AgentID      string       `json:"agentId"`
	AgentName    string       `json:"agentName"`
}

type SpeechRequest struct {
	CompanyID string      `json:"companyId"`
	Text      string      `json:"text"`
	Voice     VoiceParams `json:"voice"`
}

type speechResponse struct {
	AudioURL string `json:"audioUrl"`
}

// functionsClient calls the serverless functions with the service token.
type functionsClient struct {
	client *httpClient
	token  string
}

func newFunctionsClient(service string, cfg *config.FunctionsConfig, breaker *CircuitBreaker, logger *zap.Logger) *functionsClient {
	return &functionsClient{
		client: newHTTPClient(service, cfg.BaseURL, cfg.Timeout, breaker, logger),
		token:  cfg.ServiceToken,
	}
}

func (c *functionsClient) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

type agentClient struct {
	*functionsClient
}

func NewAgentClient(cfg *config.FunctionsConfig, breaker *CircuitBreaker, logger *zap.Logger) AgentClient {
	return &agentClient{newFunctionsClient("agent", cfg, breaker, logger)}
}

func (c *agentClient) Decide(ctx context.Context, req AgentDecisionRequest) (*AgentDecision, error) {
	var decision AgentDecision
	if err := c.client.postJSON(ctx, agentDecidePath, c.header(), req, &decision); err != nil {
		return nil, fmt.Errorf("failed to get agent decision: %w", err)
	}

	if !decision.Skip && decision.ReplyText == "" {
		return nil, errors.New("agent decision has no reply text")
	}
	if decision.DelaySeconds < 0 {
		decision.DelaySeconds = 0
	}

	return &decision, nil
}

type speechClient struct {
	*functionsClient
}

func NewSpeechClient(cfg *config.FunctionsConfig, breaker *CircuitBreaker, logger *zap.Logger) SpeechClient {
	return &speechClient{newFunctionsClient("tts", cfg, breaker, logger)}
}

func (c *speechClient) Synthesize(ctx context.Context, req SpeechRequest) (string, error) {
	var resp speechResponse
	if err := c.client.postJSON(ctx, ttsSynthesizePath, c.header(), req, &resp); err != nil {
		return "", fmt.Errorf("failed to synthesize speech: %w", err)
	}

	if resp.AudioURL == "" {
		return "", errors.New("tts returned no audio url")
	}

	return resp.AudioURL, nil
}
