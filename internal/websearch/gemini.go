// Package websearch provides the web grounding branch: a single
// search-tool-equipped LLM call whose answer and citations become
// documents alongside the internal corpus results.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/questline/guiderag/internal/cache"
	"github.com/questline/guiderag/internal/query"
	"github.com/questline/guiderag/internal/store"
)

const (
	// DefaultBaseURL is the Gemini REST API base.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is the generation model used for grounded search.
	DefaultModel = "gemini-2.0-flash"

	// DefaultTimeout bounds the grounded generation call.
	DefaultTimeout = 25 * time.Second

	// SourceMain marks the generated answer document.
	SourceMain = "web_search_main"

	// SourceCitation marks per-citation documents.
	SourceCitation = "web_search_citation"

	// cacheTag is the result-cache type tag for web search results.
	cacheTag = "web_search"
)

// systemInstruction constrains the grounded call: recent information only,
// concise, citation-bearing. The recency window is substituted in.
const systemInstruction = `당신은 던전앤파이터 공략 검색 도우미입니다.
- 최근 %d개월 이내의 정보만 사용하세요.
- 간결하게 핵심만 요약하고, 반드시 출처를 포함하세요.
- 확실하지 않은 정보는 그렇다고 명시하세요.`

// Config configures the Gemini grounded search client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration

	// RecencyMonths bounds the information window stated in the system
	// instruction (default: 3).
	RecencyMonths int
}

// GeminiClient issues grounded generation calls against the Gemini API
// with the google_search tool enabled. API errors surface as errors; the
// orchestrator downgrades them to an empty web branch.
type GeminiClient struct {
	client  *http.Client
	config  Config
	results cache.ResultCache

	mu     sync.RWMutex
	closed bool
}

// NewGeminiClient creates a grounded search client. The API key is
// required. A nil result cache disables caching.
func NewGeminiClient(cfg Config, results cache.ResultCache) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("web search requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RecencyMonths <= 0 {
		cfg.RecencyMonths = 3
	}

	return &GeminiClient{
		client:  &http.Client{},
		config:  cfg,
		results: results,
	}, nil
}

type generateRequest struct {
	SystemInstruction *content  `json:"system_instruction,omitempty"`
	Contents          []content `json:"contents"`
	Tools             []tool    `json:"tools,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type tool struct {
	GoogleSearch struct{} `json:"google_search"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		GroundingMetadata struct {
			GroundingChunks []struct {
				Web struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
}

// Search runs one grounded generation call and converts the answer plus
// its citations into documents. Results are cached under the web-search
// tag keyed by the query and the character-context projection.
func (c *GeminiClient) Search(ctx context.Context, q string, cc *query.CharacterContext) ([]*store.Document, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, fmt.Errorf("web search client is closed")
	}
	c.mu.RUnlock()

	cacheKey := cache.Key(q, cc.CacheProjection())
	if c.results != nil {
		var cached []*store.Document
		if c.results.GetResult(ctx, cacheTag, cacheKey, &cached) {
			return cached, nil
		}
	}

	prompt := query.ContextForSearch(cc) + "\n\n질문: " + q

	reqBody := generateRequest{
		SystemInstruction: &content{Parts: []part{
			{Text: fmt.Sprintf(systemInstruction, c.config.RecencyMonths)},
		}},
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		Tools:    []tool{{}},
	}

	resp, err := c.generate(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	docs := extractDocuments(resp)
	slog.Info("web search complete",
		slog.String("query", q),
		slog.Int("docs", len(docs)))

	if c.results != nil {
		c.results.SaveResult(ctx, cacheTag, cacheKey, docs)
	}
	return docs, nil
}

func (c *GeminiClient) generate(ctx context.Context, reqBody generateRequest) (*generateResponse, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent", c.config.BaseURL, c.config.Model)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grounded search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// extractDocuments turns a grounded response into documents: the generated
// text as the main document, then one document per grounding citation.
func extractDocuments(resp *generateResponse) []*store.Document {
	if len(resp.Candidates) == 0 {
		return []*store.Document{}
	}
	candidate := resp.Candidates[0]

	var text strings.Builder
	for _, p := range candidate.Content.Parts {
		text.WriteString(p.Text)
	}

	docs := make([]*store.Document, 0, 1+len(candidate.GroundingMetadata.GroundingChunks))
	if trimmed := strings.TrimSpace(text.String()); trimmed != "" {
		docs = append(docs, &store.Document{
			ID:       "web_main",
			Content:  trimmed,
			Metadata: store.Metadata{Source: SourceMain},
		})
	}

	for i, chunk := range candidate.GroundingMetadata.GroundingChunks {
		if chunk.Web.URI == "" && chunk.Web.Title == "" {
			continue
		}
		docs = append(docs, &store.Document{
			ID:      fmt.Sprintf("web_citation_%d", i+1),
			Content: chunk.Web.Title,
			Metadata: store.Metadata{
				Source: SourceCitation,
				URL:    chunk.Web.URI,
				Title:  chunk.Web.Title,
			},
		})
	}
	return docs
}

// Close releases resources.
func (c *GeminiClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.client.CloseIdleConnections()
	return nil
}
