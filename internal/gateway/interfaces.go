// Package gateway implements the outbound adapters for the messaging provider,
// object storage and the serverless functions that back the AI agent.
package gateway

import (
	"context"
)

// MediaContent is a downloaded provider attachment.
type MediaContent struct {
	Data     []byte
	MimeType string
	FileName string
}

// ProviderClient talks to the WhatsApp provider on behalf of one connection token.
type ProviderClient interface {
	DownloadMedia(ctx context.Context, token, providerMessageID string) (*MediaContent, error)
	// SendText returns the provider message id of the sent message.
	SendText(ctx context.Context, token, number, text string) (string, error)
	// SendAudio sends audioURL as a push-to-talk voice note.
	SendAudio(ctx context.Context, token, number, audioURL string) (string, error)
}

// Storage uploads objects and returns their public URL.
type Storage interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// AgentClient asks the agent-decision function whether and how to reply.
type AgentClient interface {
	Decide(ctx context.Context, req AgentDecisionRequest) (*AgentDecision, error)
}

// SpeechClient synthesizes a voice note and returns its URL.
type SpeechClient interface {
	Synthesize(ctx context.Context, req SpeechRequest) (string, error)
}
