// Package queue carries asynchronous work off the webhook request path, either
// through a durable broker or an in-process background runner.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TaskKind string

const (
	TaskKindMedia TaskKind = "media"
	TaskKindAgent TaskKind = "ai_agent"
)

var ErrInvalidTask = errors.New("invalid task")

// MediaTask downloads a provider attachment and stores it.
type MediaTask struct {
	MessageID         string `json:"messageId"`
	CompanyID         string `json:"companyId"`
	ConnectionID      string `json:"connectionId"`
	ConversationID    string `json:"conversationId"`
	ContactID         string `json:"contactId"`
	ContactPhone      string `json:"contactPhone"`
	ProviderMessageID string `json:"providerMessageId"`
	MessageType       string `json:"messageType"`
	ProviderMimeType  string `json:"providerMimeType,omitempty"`
	FileName          string `json:"fileName,omitempty"`
	Caption           string `json:"caption,omitempty"`
	// TriggerAgent enqueues an agent task once the media is stored.
	TriggerAgent bool `json:"triggerAgent"`
}

// AgentTask asks the AI agent to reply to an inbound message.
type AgentTask struct {
	MessageID      string `json:"messageId"`
	CompanyID      string `json:"companyId"`
	ConnectionID   string `json:"connectionId"`
	ConversationID string `json:"conversationId"`
	ContactID      string `json:"contactId"`
	ContactPhone   string `json:"contactPhone"`
	MessageType    string `json:"messageType"`
	Content        string `json:"content,omitempty"`
	MediaURL       string `json:"mediaUrl,omitempty"`
}

// Task is the queue envelope. Exactly one of Media and Agent is set, matching Kind.
type Task struct {
	ID         string     `json:"id"`
	Kind       TaskKind   `json:"kind"`
	Attempt    int        `json:"attempt"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
	LastError  string     `json:"lastError,omitempty"`
	Media      *MediaTask `json:"media,omitempty"`
	Agent      *AgentTask `json:"agent,omitempty"`
}

func NewMediaTask(media MediaTask) Task {
	return Task{
		ID:         uuid.NewString(),
		Kind:       TaskKindMedia,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
		Media:      &media,
	}
}

func NewAgentTask(agent AgentTask) Task {
	return Task{
		ID:         uuid.NewString(),
		Kind:       TaskKindAgent,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
		Agent:      &agent,
	}
}

// MessageID returns the id of the message the task works on.
func (t Task) MessageID() string {
	switch {
	case t.Media != nil:
		return t.Media.MessageID
	case t.Agent != nil:
		return t.Agent.MessageID
	default:
		return ""
	}
}

// Retry returns a copy of t for the next delivery attempt.
func (t Task) Retry(lastError string) Task {
	next := t
	next.Attempt = t.Attempt + 1
	next.LastError = lastError
	return next
}

func (t Task) Validate() error {
	switch t.Kind {
	case TaskKindMedia:
		if t.Media == nil || t.Agent != nil {
			return fmt.Errorf("%w: media task without media payload", ErrInvalidTask)
		}
		if t.Media.MessageID == "" || t.Media.ConnectionID == "" || t.Media.ProviderMessageID == "" {
			return fmt.Errorf("%w: media task missing message, connection or provider id", ErrInvalidTask)
		}
	case TaskKindAgent:
		if t.Agent == nil || t.Media != nil {
			return fmt.Errorf("%w: agent task without agent payload", ErrInvalidTask)
		}
		if t.Agent.MessageID == "" || t.Agent.ConversationID == "" || t.Agent.ConnectionID == "" {
			return fmt.Errorf("%w: agent task missing message, conversation or connection id", ErrInvalidTask)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTask, t.Kind)
	}
	return nil
}

func (t Task) Encode() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}
	return data, nil
}

func DecodeTask(data []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if t.Attempt <= 0 {
		t.Attempt = 1
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}
