// Package completion calls an OpenAI-compatible chat completion API for scheduled prompts.
package completion

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/homebase/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

type Request struct {
	Prompt string
	Model  string // empty uses the client default
}

type Response struct {
	Text  string
	Model string
	Usage domain.Usage
}

// Client works with OpenAI and any OpenAI-compatible API.
type Client struct {
	client       *openai.Client
	defaultModel string
}

func NewClient(apiKey, baseURL, defaultModel string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
	}
}

// Complete sends prompt as a single user message. A response without choices yields empty
// text and no error.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	out := &Response{
		Model: resp.Model,
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if out.Model == "" {
		out.Model = model
	}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
	}
	return out, nil
}
