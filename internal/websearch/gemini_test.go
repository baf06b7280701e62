package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questline/guiderag/internal/cache"
	"github.com/questline/guiderag/internal/query"
)

func groundedResponse(text string, citations ...[2]string) map[string]any {
	chunks := make([]map[string]any, len(citations))
	for i, c := range citations {
		chunks[i] = map[string]any{"web": map[string]any{"uri": c[0], "title": c[1]}}
	}
	return map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"parts": []map[string]any{{"text": text}},
			},
			"groundingMetadata": map[string]any{
				"groundingChunks": chunks,
			},
		}},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, results cache.ResultCache) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewGeminiClient(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	}, results)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewGeminiClient_RequiresAPIKey(t *testing.T) {
	_, err := NewGeminiClient(Config{}, nil)
	assert.Error(t, err)
}

func TestGeminiClient_ExtractsMainAndCitations(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":generateContent")
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Contains(t, req.SystemInstruction.Parts[0].Text, "개월")
		require.Len(t, req.Tools, 1)
		assert.Contains(t, req.Contents[0].Parts[0].Text, "최신 패치")

		_ = json.NewEncoder(w).Encode(groundedResponse(
			"이번 패치에서 버서커가 상향되었습니다.",
			[2]string{"https://df.example.com/patch", "패치 노트"},
			[2]string{"https://df.example.com/forum", "공식 포럼"},
		))
	}, nil)

	docs, err := c.Search(context.Background(), "최신 패치 내용", nil)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, SourceMain, docs[0].Metadata.Source)
	assert.Equal(t, "이번 패치에서 버서커가 상향되었습니다.", docs[0].Content)

	assert.Equal(t, SourceCitation, docs[1].Metadata.Source)
	assert.Equal(t, "https://df.example.com/patch", docs[1].Metadata.URL)
	assert.Equal(t, "패치 노트", docs[1].Metadata.Title)
}

func TestGeminiClient_CharacterContextInPrompt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompt := req.Contents[0].Parts[0].Text
		assert.Contains(t, prompt, "엘븐나이트")
		assert.Contains(t, prompt, "41000")

		_ = json.NewEncoder(w).Encode(groundedResponse("답변"))
	}, nil)

	_, err := c.Search(context.Background(), "스킬트리", &query.CharacterContext{Job: "엘븐나이트", Fame: 41000})
	require.NoError(t, err)
}

func TestGeminiClient_APIErrorPropagates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}, nil)

	_, err := c.Search(context.Background(), "질문", nil)
	assert.Error(t, err)
}

func TestGeminiClient_EmptyCandidates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}, nil)

	docs, err := c.Search(context.Background(), "질문", nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestGeminiClient_ResultsCached(t *testing.T) {
	mgr, err := cache.NewManager(t.TempDir(), time.Hour, 2*time.Hour)
	require.NoError(t, err)

	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(groundedResponse("캐시된 답변"))
	}, mgr)

	ctx := context.Background()
	first, err := c.Search(ctx, "질문", nil)
	require.NoError(t, err)
	second, err := c.Search(ctx, "질문", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	require.Len(t, second, len(first))
	assert.Equal(t, first[0].Content, second[0].Content)
}

func TestGeminiClient_ClosedRejectsCalls(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, nil)
	require.NoError(t, c.Close())

	_, err := c.Search(context.Background(), "질문", nil)
	assert.Error(t, err)
}

func TestExtractDocuments_SkipsEmptyCitations(t *testing.T) {
	resp := &generateResponse{}
	require.NoError(t, mapToStruct(groundedResponse("본문", [2]string{"", ""}), resp))

	docs := extractDocuments(resp)
	require.Len(t, docs, 1)
	assert.Equal(t, SourceMain, docs[0].Metadata.Source)
}

func mapToStruct(m map[string]any, out any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
