package inference

import (
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_SetsNativeCompletionDefaults(t *testing.T) {
	cfg := DefaultConfig("http://localhost:8080")
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "default", cfg.ChatModel)
	assert.Equal(t, 300*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 1.1, cfg.RepeatPenalty)
}

func TestToOpenAIMessages_UsesMessageSequenceWhenPresent(t *testing.T) {
	req := GenerateRequest{
		Prompt: "ignored",
		Messages: []Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
		},
	}

	out := toOpenAIMessages(req)
	assert.Len(t, out, 2)
	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "hi", out[1].Content)
}

func TestToOpenAIMessages_FallsBackToSinglePromptMessage(t *testing.T) {
	out := toOpenAIMessages(GenerateRequest{Prompt: "just a prompt"})
	assert.Len(t, out, 1)
	assert.Equal(t, openai.ChatMessageRoleUser, out[0].Role)
	assert.Equal(t, "just a prompt", out[0].Content)
}

func TestClient_NeedsRestart_FalseBelowThreshold(t *testing.T) {
	c := NewClient(DefaultConfig("http://localhost:8080"))
	c.consecutiveErrors = 4
	assert.False(t, c.NeedsRestart())
}

func TestClient_NeedsRestart_TrueAtThreshold(t *testing.T) {
	c := NewClient(DefaultConfig("http://localhost:8080"))
	c.consecutiveErrors = 5
	assert.True(t, c.NeedsRestart())
}

func TestClient_ConsecutiveErrors_ReflectsRecordedState(t *testing.T) {
	c := NewClient(DefaultConfig("http://localhost:8080"))
	c.consecutiveErrors = 2
	assert.Equal(t, 2, c.ConsecutiveErrors())
}

func TestClient_RecordLatency_ResetsCountOnSuccess(t *testing.T) {
	c := NewClient(DefaultConfig("http://localhost:8080"))
	c.consecutiveErrors = 3
	c.recordLatency(10*time.Millisecond, nil)
	assert.Equal(t, 0, c.consecutiveErrors)
}

func TestClient_RecordLatency_IncrementsCountOnError(t *testing.T) {
	c := NewClient(DefaultConfig("http://localhost:8080"))
	c.recordLatency(10*time.Millisecond, assert.AnError)
	assert.Equal(t, 1, c.consecutiveErrors)
}
