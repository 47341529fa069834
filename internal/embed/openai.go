package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
)

// OpenAIEmbedder speaks the OpenAI-compatible POST {base}/embeddings
// protocol. Works against OpenAI, Ollama's /v1 endpoint, and compatible
// local servers.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	retry      cgerrors.RetryConfig
}

// OpenAIConfig configures the embedding client.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// NewOpenAIEmbedder creates an embedding client.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, cgerrors.ConfigError("embedding base URL must not be empty", nil)
	}
	if cfg.Model == "" {
		return nil, cgerrors.ConfigError("embedding model must not be empty", nil)
	}
	if cfg.Dimensions <= 0 {
		return nil, cgerrors.ConfigError(
			fmt.Sprintf("embedding dimension must be positive, got %d", cfg.Dimensions), nil)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &OpenAIEmbedder{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
		retry: cgerrors.RetryConfig{
			MaxRetries:   2,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     4 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed generates the embedding for a single text.
// Empty text yields the zero vector without a provider call.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dimensions), nil
	}
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for texts in stable order. Empty entries
// receive zero vectors; only non-empty entries are sent to the provider.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var sendIdx []int
	var sendTexts []string
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			results[i] = make([]float32, e.dimensions)
			continue
		}
		sendIdx = append(sendIdx, i)
		sendTexts = append(sendTexts, t)
	}

	for start := 0; start < len(sendTexts); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(sendTexts) {
			end = len(sendTexts)
		}

		vecs, err := e.requestEmbeddings(ctx, sendTexts[start:end])
		if err != nil {
			return nil, err
		}
		for j, v := range vecs {
			results[sendIdx[start+j]] = v
		}
	}

	return results, nil
}

// requestEmbeddings performs one POST /embeddings call with retry.
func (e *OpenAIEmbedder) requestEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return cgerrors.RetryWithResult(ctx, e.retry, func() ([][]float32, error) {
		body, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
		if err != nil {
			return nil, cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			e.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if e.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, cgerrors.New(cgerrors.ErrCodeEmbeddingFailed,
				"embedding request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, cgerrors.New(cgerrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embedding endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), nil)
		}

		var parsed embeddingResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, cgerrors.New(cgerrors.ErrCodeEmbeddingFailed,
				"malformed embedding response", err)
		}
		if len(parsed.Data) != len(texts) {
			return nil, cgerrors.New(cgerrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embedding count mismatch: sent %d, got %d", len(texts), len(parsed.Data)), nil)
		}

		// Providers may return out of order; index is authoritative.
		sort.Slice(parsed.Data, func(i, j int) bool {
			return parsed.Data[i].Index < parsed.Data[j].Index
		})

		vecs := make([][]float32, len(parsed.Data))
		for i, d := range parsed.Data {
			if len(d.Embedding) != e.dimensions {
				return nil, cgerrors.New(cgerrors.ErrCodeEmbeddingFailed,
					fmt.Sprintf("dimension mismatch: want %d, got %d", e.dimensions, len(d.Embedding)), nil)
			}
			vecs[i] = normalizeVector(d.Embedding)
		}
		return vecs, nil
	})
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
