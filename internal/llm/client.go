// Package llm talks to an OpenAI-compatible chat completion endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
)

// DefaultTimeout bounds one completion request. Generation with a large
// evidence prompt can legitimately take a while.
const DefaultTimeout = 120 * time.Second

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat produces a completion for a system prompt plus user message.
// Implementations keep temperature low; answers must stay close to the
// provided evidence.
type Chat interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config configures the client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client implements Chat over POST {base}/chat/completions.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
	retry       cgerrors.RetryConfig
}

// NewClient creates a chat client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, cgerrors.ConfigError("LLM base URL must not be empty", nil)
	}
	if cfg.Model == "" {
		return nil, cgerrors.ConfigError("LLM model must not be empty", nil)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
		retry: cgerrors.RetryConfig{
			MaxRetries:   2,
			InitialDelay: time.Second,
			MaxDelay:     8 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Complete sends the prompt and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return cgerrors.RetryWithResult(ctx, c.retry, func() (string, error) {
		body, err := json.Marshal(chatRequest{
			Model: c.model,
			Messages: []Message{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
			Temperature: c.temperature,
		})
		if err != nil {
			return "", cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return "", cgerrors.New(cgerrors.ErrCodeLLMUnavailable,
				"chat completion request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return "", cgerrors.New(cgerrors.ErrCodeLLMUnavailable,
				fmt.Sprintf("chat endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), nil)
		}

		var parsed chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return "", cgerrors.New(cgerrors.ErrCodeLLMUnavailable,
				"malformed chat response", err)
		}
		if len(parsed.Choices) == 0 {
			return "", cgerrors.New(cgerrors.ErrCodeLLMUnavailable,
				"chat response contained no choices", nil)
		}
		return parsed.Choices[0].Message.Content, nil
	})
}
