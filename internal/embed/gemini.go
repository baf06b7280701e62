package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultGeminiBaseURL is the Gemini REST API base.
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultGeminiModel is the default embedding model.
	DefaultGeminiModel = "text-embedding-004"
)

// GeminiConfig configures the Gemini embedder.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	Retry      RetryConfig
}

// GeminiEmbedder generates embeddings via the Gemini embedContent API.
// Batches above BatchSize are split into multiple batchEmbedContents calls.
type GeminiEmbedder struct {
	client *http.Client
	config GeminiConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder creates a Gemini embedder. The API key is required;
// everything else has defaults.
func NewGeminiEmbedder(cfg GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedder requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	return &GeminiEmbedder{
		client: &http.Client{},
		config: cfg,
	}, nil
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type embedContentRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type embedContentResponse struct {
	Embedding geminiEmbedding `json:"embedding"`
}

type geminiEmbedding struct {
	Values []float32 `json:"values"`
}

type batchEmbedRequest struct {
	Requests []embedContentRequest `json:"requests"`
}

type batchEmbedResponse struct {
	Embeddings []geminiEmbedding `json:"embeddings"`
}

// Embed generates an embedding for a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	reqBody := embedContentRequest{
		Model:   "models/" + e.config.Model,
		Content: geminiContent{Parts: []geminiPart{{Text: text}}},
	}

	var resp embedContentResponse
	url := fmt.Sprintf("%s/models/%s:embedContent", e.config.BaseURL, e.config.Model)
	if err := e.post(ctx, url, reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini returned an empty embedding")
	}
	return normalizeVector(resp.Embedding.Values), nil
}

// EmbedBatch generates embeddings for multiple texts, splitting into
// batchEmbedContents calls of at most BatchSize requests each.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", e.config.BaseURL, e.config.Model)

	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		reqBody := batchEmbedRequest{Requests: make([]embedContentRequest, len(chunk))}
		for i, t := range chunk {
			reqBody.Requests[i] = embedContentRequest{
				Model:   "models/" + e.config.Model,
				Content: geminiContent{Parts: []geminiPart{{Text: t}}},
			}
		}

		var resp batchEmbedResponse
		if err := e.post(ctx, url, reqBody, &resp); err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		if len(resp.Embeddings) != len(chunk) {
			return nil, fmt.Errorf("batch %d-%d: expected %d embeddings, got %d",
				start, end, len(chunk), len(resp.Embeddings))
		}
		for _, emb := range resp.Embeddings {
			results = append(results, normalizeVector(emb.Values))
		}
	}

	return results, nil
}

// post sends a JSON request and decodes the JSON response, retrying on
// failure per the configured retry policy.
func (e *GeminiEmbedder) post(ctx context.Context, url string, reqBody, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return withRetry(ctx, e.config.Retry, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", e.config.APIKey)

		resp, err := e.client.Do(req)
		if err != nil {
			return fmt.Errorf("embedding request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			slog.Warn("embedding request rejected",
				slog.Int("status", resp.StatusCode),
				slog.String("model", e.config.Model))
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

// Dimensions returns the embedding dimension.
func (e *GeminiEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier.
func (e *GeminiEmbedder) ModelName() string {
	return e.config.Model
}

// Available reports whether the embedder can serve requests. A cheap probe
// request would cost quota, so this only checks local state.
func (e *GeminiEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *GeminiEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}
