// Package assistant – llm.go wraps the model provider: chat completions with
// tool calling, JSON-mode completions, and embeddings. Works against any
// OpenAI-compatible endpoint (OpenRouter, OpenAI, local proxies).
//
// Transient provider failures are retried with bounded exponential backoff;
// everything past the retry budget surfaces as an error for the caller to
// fold into the conversation.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// llmMaxRetries bounds the retry loop per provider call.
	llmMaxRetries = 3

	// llmRetryInitial / llmRetryMax shape the backoff curve.
	llmRetryInitial = 2 * time.Second
	llmRetryMax     = 10 * time.Second
)

// LLMClient handles communication with the model provider.
type LLMClient struct {
	client     *openai.Client
	model      string
	embedModel string
	logger     *slog.Logger
}

// NewLLMClient creates a client from config.
func NewLLMClient(cfg APIConfig, logger *slog.Logger) *LLMClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &LLMClient{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		embedModel: cfg.EmbeddingModel,
		logger:     logger.With("component", "llm"),
	}
}

// retryPolicy returns the per-call backoff policy.
func (c *LLMClient) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = llmRetryInitial
	b.MaxInterval = llmRetryMax
	return backoff.WithContext(backoff.WithMaxRetries(b, llmMaxRetries), ctx)
}

// ChatWithTools sends a chat completion with the given tool definitions and
// returns the first choice. If tools is nil, behaves as a plain completion.
func (c *LLMClient) ChatWithTools(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (*openai.ChatCompletionMessage, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}
	if len(tools) > 0 {
		req.Tools = tools
	}

	start := time.Now()
	resp, err := backoff.RetryWithData(func() (openai.ChatCompletionResponse, error) {
		return c.client.CreateChatCompletion(ctx, req)
	}, c.retryPolicy(ctx))
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: no choices returned")
	}
	msg := resp.Choices[0].Message
	msg.Content = strings.TrimSpace(msg.Content)

	c.logger.Debug("chat completion done",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"messages", len(messages),
		"tool_calls", len(msg.ToolCalls),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return &msg, nil
}

// Complete runs a plain completion over the given messages.
func (c *LLMClient) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	msg, err := c.ChatWithTools(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// CompleteText runs a plain system+user completion.
func (c *LLMClient) CompleteText(ctx context.Context, system, user string) (string, error) {
	return c.Complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	})
}

// CompleteJSON runs a completion in JSON mode and returns the raw object
// text. Used by extraction, refinement, and rerank.
func (c *LLMClient) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := backoff.RetryWithData(func() (openai.ChatCompletionResponse, error) {
		return c.client.CreateChatCompletion(ctx, req)
	}, c.retryPolicy(ctx))
	if err != nil {
		return "", fmt.Errorf("json completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("json completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed turns text into an embedding vector.
func (c *LLMClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := backoff.RetryWithData(func() (openai.EmbeddingResponse, error) {
		return c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.embedModel),
			Input: []string{text},
		})
	}, c.retryPolicy(ctx))
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding: empty response")
	}
	return resp.Data[0].Embedding, nil
}
