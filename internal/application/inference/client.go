// Package inference is the single conduit to the backend: slot-addressed
// and slot-agnostic chat generation, retry/backoff, and health tracking
// (spec §4.1).
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	synthErrors "github.com/synthloom/core/internal/domain/errors"
)

// NoSlot addresses the backend's general (slot-agnostic) endpoint.
const NoSlot = -1

// NoContentSentinel is returned as generated content once the retry
// budget is exhausted; callers must detect it and treat the attempt as a
// miss rather than feeding it to the executor (spec §4.1).
const NoContentSentinel = "[NO_CONTENT]"

// stopSequences match the llama.cpp native completion defaults the core
// relies on to keep a worker's own turn from bleeding into an imagined
// continuation.
var stopSequences = []string{"</s>", "[INST]", "[/INST]", "User:", "Human:"}

// Config configures a Client's connection to the backend.
type Config struct {
	BaseURL         string
	APIKey          string // forwarded as Bearer auth when the backend requires it
	ChatModel       string // model name sent on the OpenAI-compatible slot-agnostic path
	RequestTimeout  time.Duration
	RepeatPenalty   float64
	FrequencyPenalty float64
	PresencePenalty float64
}

// DefaultConfig mirrors the native completion defaults from spec §6.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		ChatModel:        "default",
		RequestTimeout:   300 * time.Second,
		RepeatPenalty:    1.1,
		FrequencyPenalty: 0.5,
		PresencePenalty:  0.5,
	}
}

// GenerateRequest is one generation call. SlotID is NoSlot for the
// slot-agnostic chat endpoint, or >= 0 to address a specific backend slot
// via the native completion endpoint.
type GenerateRequest struct {
	Prompt      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	SlotID      int
	CachePrompt bool
}

// Message is one role-tagged turn; used when the caller wants
// message-sequence construction rather than a pre-built prompt string.
type Message struct {
	Role    string
	Content string
}

// GenerateResult is a successful (or sentinel) completion.
type GenerateResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Client is the orchestration kernel's single conduit to the inference
// backend: an OpenAI-compatible client for the slot-agnostic path, and a
// raw HTTP client for the native /completion endpoint that exposes
// id_slot and cache_prompt.
type Client struct {
	cfg        Config
	httpClient *http.Client
	chatClient *openai.Client

	consecutiveErrors int
	lastLatency       time.Duration
}

// NewClient builds a Client against a backend reachable at cfg.BaseURL.
func NewClient(cfg Config) *Client {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	oaiConfig := openai.DefaultConfig(cfg.APIKey)
	oaiConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/v1"
	oaiConfig.HTTPClient = httpClient

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		chatClient: openai.NewClientWithConfig(oaiConfig),
	}
}

// Generate dispatches to the slot-agnostic or slot-addressed path
// depending on req.SlotID, per spec §4.1.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	if req.SlotID == NoSlot {
		return c.generateChat(ctx, req)
	}
	return c.generateSlotAddressed(ctx, req)
}

func (c *Client) generateChat(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	messages := toOpenAIMessages(req)

	start := time.Now()
	resp, err := c.chatClient.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stop:        stopSequences,
	})
	latency := time.Since(start)
	c.recordLatency(latency, err)

	if err != nil {
		return GenerateResult{}, synthErrors.NewInferenceError(req.SlotID, err.Error(), err, true)
	}
	if len(resp.Choices) == 0 {
		return GenerateResult{}, synthErrors.NewInferenceError(req.SlotID, "backend returned no choices", nil, false)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	return GenerateResult{
		Content:          content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Latency:          latency,
	}, nil
}

// nativeCompletionRequest mirrors the llama.cpp server's /completion body
// (spec §6): id_slot and cache_prompt are only meaningful there, not on
// the OpenAI-compatible path.
type nativeCompletionRequest struct {
	Prompt           string   `json:"prompt"`
	Temperature      float64  `json:"temperature"`
	NPredict         int      `json:"n_predict"`
	IDSlot           int      `json:"id_slot"`
	CachePrompt      bool     `json:"cache_prompt"`
	RepeatPenalty    float64  `json:"repeat_penalty"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	PresencePenalty  float64  `json:"presence_penalty"`
	Stop             []string `json:"stop"`
}

type nativeCompletionResponse struct {
	Content string `json:"content"`
	Timings struct {
		PromptN     int `json:"prompt_n"`
		PredictedN  int `json:"predicted_n"`
	} `json:"timings"`
}

func (c *Client) generateSlotAddressed(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	prompt := req.Prompt
	if prompt == "" {
		prompt = RenderPrompt(req.Messages)
	}

	body := nativeCompletionRequest{
		Prompt:           prompt,
		Temperature:      req.Temperature,
		NPredict:         req.MaxTokens,
		IDSlot:           req.SlotID,
		CachePrompt:      req.CachePrompt,
		RepeatPenalty:    c.cfg.RepeatPenalty,
		FrequencyPenalty: c.cfg.FrequencyPenalty,
		PresencePenalty:  c.cfg.PresencePenalty,
		Stop:             stopSequences,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return GenerateResult{}, synthErrors.NewInferenceError(req.SlotID, "failed to marshal completion request", err, false)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/completion", bytes.NewReader(payload))
	if err != nil {
		return GenerateResult{}, synthErrors.NewInferenceError(req.SlotID, "failed to build completion request", err, false)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	latency := time.Since(start)

	if err != nil {
		c.recordLatency(latency, err)
		return GenerateResult{}, synthErrors.NewInferenceError(req.SlotID, fmt.Sprintf("connection error: %v", err), err, true)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordLatency(latency, err)
		return GenerateResult{}, synthErrors.NewInferenceError(req.SlotID, "failed to read response body", err, true)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		busyErr := fmt.Errorf("slot %d busy (503)", req.SlotID)
		c.recordLatency(latency, busyErr)
		return GenerateResult{}, synthErrors.NewInferenceError(req.SlotID, busyErr.Error(), busyErr, true)
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("backend status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		c.recordLatency(latency, statusErr)
		return GenerateResult{}, synthErrors.NewInferenceError(req.SlotID, statusErr.Error(), statusErr, true)
	}

	var parsed nativeCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		c.recordLatency(latency, err)
		return GenerateResult{}, synthErrors.NewInferenceError(req.SlotID, "failed to parse completion response", err, false)
	}

	c.recordLatency(latency, nil)
	return GenerateResult{
		Content:          strings.TrimSpace(parsed.Content),
		PromptTokens:     parsed.Timings.PromptN,
		CompletionTokens: parsed.Timings.PredictedN,
		Latency:          latency,
	}, nil
}

func (c *Client) recordLatency(latency time.Duration, err error) {
	c.lastLatency = latency
	if err != nil {
		c.consecutiveErrors++
		log.Warn().Err(err).Dur("latency", latency).Int("consecutive_errors", c.consecutiveErrors).Msg("inference request failed")
		return
	}
	c.consecutiveErrors = 0
}

// NeedsRestart reports whether the backend looks crashed (spec §4.1:
// consecutive_errors >= 5).
func (c *Client) NeedsRestart() bool {
	return c.consecutiveErrors >= 5
}

// ConsecutiveErrors returns the current streak of failed requests.
func (c *Client) ConsecutiveErrors() int {
	return c.consecutiveErrors
}

func toOpenAIMessages(req GenerateRequest) []openai.ChatCompletionMessage {
	if len(req.Messages) > 0 {
		out := make([]openai.ChatCompletionMessage, len(req.Messages))
		for i, m := range req.Messages {
			out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
		}
		return out
	}
	return []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: req.Prompt}}
}
