package queue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppopeskul/wa-ingest/internal/queue"
)

func validMediaTask() queue.Task {
	return queue.NewMediaTask(queue.MediaTask{
		MessageID:         "msg-1",
		CompanyID:         "company-1",
		ConnectionID:      "conn-1",
		ConversationID:    "conv-1",
		ContactID:         "contact-1",
		ContactPhone:      "5511999990000",
		ProviderMessageID: "WAID-1",
		MessageType:       "image",
		ProviderMimeType:  "image/jpeg",
		TriggerAgent:      true,
	})
}

func validAgentTask() queue.Task {
	return queue.NewAgentTask(queue.AgentTask{
		MessageID:      "msg-2",
		CompanyID:      "company-1",
		ConnectionID:   "conn-1",
		ConversationID: "conv-1",
		ContactID:      "contact-1",
		ContactPhone:   "5511999990000",
		MessageType:    "text",
		Content:        "hello",
	})
}

func TestNewTask(t *testing.T) {
	media := validMediaTask()
	assert.NotEmpty(t, media.ID)
	assert.Equal(t, queue.TaskKindMedia, media.Kind)
	assert.Equal(t, 1, media.Attempt)
	assert.False(t, media.EnqueuedAt.IsZero())
	assert.Equal(t, "msg-1", media.MessageID())

	agent := validAgentTask()
	assert.NotEqual(t, media.ID, agent.ID)
	assert.Equal(t, queue.TaskKindAgent, agent.Kind)
	assert.Equal(t, "msg-2", agent.MessageID())
}

func TestTask_Retry(t *testing.T) {
	task := validMediaTask()

	next := task.Retry("storage down")

	assert.Equal(t, 2, next.Attempt)
	assert.Equal(t, "storage down", next.LastError)
	assert.Equal(t, task.ID, next.ID)
	assert.Equal(t, 1, task.Attempt)
}

func TestTask_Validate(t *testing.T) {
	tests := []struct {
		name    string
		task    func() queue.Task
		wantErr bool
	}{
		{
			name:    "valid media task",
			task:    validMediaTask,
			wantErr: false,
		},
		{
			name:    "valid agent task",
			task:    validAgentTask,
			wantErr: false,
		},
		{
			name: "unknown kind",
			task: func() queue.Task {
				task := validMediaTask()
				task.Kind = "email"
				return task
			},
			wantErr: true,
		},
		{
			name: "media kind without payload",
			task: func() queue.Task {
				task := validMediaTask()
				task.Media = nil
				return task
			},
			wantErr: true,
		},
		{
			name: "both payloads",
			task: func() queue.Task {
				task := validMediaTask()
				task.Agent = validAgentTask().Agent
				return task
			},
			wantErr: true,
		},
		{
			name: "media task without provider id",
			task: func() queue.Task {
				task := validMediaTask()
				task.Media.ProviderMessageID = ""
				return task
			},
			wantErr: true,
		},
		{
			name: "agent task without conversation",
			task: func() queue.Task {
				task := validAgentTask()
				task.Agent.ConversationID = ""
				return task
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task().Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, queue.ErrInvalidTask)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecodeTask(t *testing.T) {
	task := validMediaTask()
	data, err := task.Encode()
	require.NoError(t, err)

	decoded, err := queue.DecodeTask(data)
	require.NoError(t, err)
	assert.Equal(t, task.ID, decoded.ID)
	assert.Equal(t, *task.Media, *decoded.Media)
	assert.True(t, task.EnqueuedAt.Equal(decoded.EnqueuedAt))

	t.Run("missing attempt defaults to one", func(t *testing.T) {
		decoded, err := queue.DecodeTask([]byte(`{"id":"t-1","kind":"ai_agent","agent":{"messageId":"m","conversationId":"c","connectionId":"x"}}`))
		require.NoError(t, err)
		assert.Equal(t, 1, decoded.Attempt)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := queue.DecodeTask([]byte(`{"id":`))
		assert.ErrorIs(t, err, queue.ErrInvalidTask)
	})

	t.Run("invalid payload", func(t *testing.T) {
		_, err := queue.DecodeTask([]byte(`{"id":"t-1","kind":"media"}`))
		assert.ErrorIs(t, err, queue.ErrInvalidTask)
	})
}
