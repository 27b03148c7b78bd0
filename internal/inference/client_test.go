package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestClient(serverURL string) *Client {
	return NewClient(serverURL, "test-key", "test-model", "test-embed-model", testLogger())
}

func TestClient_ParseIntent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "parse_query", req.Tools[0].Function.Name)
		require.NotNil(t, req.ToolChoice)
		assert.Equal(t, "parse_query", req.ToolChoice.Function.Name)
		assert.Contains(t, req.Messages[0].Content, "skipton bs")

		arguments := `{
			"is_follow_up": false,
			"primary_organizations": ["Skipton"],
			"comparison_organizations": [],
			"timeframe_type": "last_12_months",
			"focus_areas": ["mortgages"],
			"question_type": "overall_sentiment",
			"sentiment_focus": "all",
			"detail_level": "standard"
		}`
		response := map[string]interface{}{
			"choices": []map[string]interface{}{{
				"message": map[string]interface{}{
					"tool_calls": []map[string]interface{}{{
						"function": map[string]interface{}{
							"name":      "parse_query",
							"arguments": arguments,
						},
					}},
				},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	parsed, err := client.ParseIntent(context.Background(), ParseRequest{
		Question:        "How is Skipton doing on mortgages?",
		AliasVocabulary: []string{"skipton", "skipton bs"},
	})

	require.NoError(t, err)
	assert.False(t, parsed.IsFollowUp)
	assert.Equal(t, []string{"Skipton"}, parsed.PrimaryOrganizations)
	assert.Equal(t, "last_12_months", parsed.TimeframeType)
	assert.Equal(t, []string{"mortgages"}, parsed.FocusAreas)
}

func TestClient_ParseIntent_NoToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"content": "plain text instead"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.ParseIntent(context.Background(), ParseRequest{Question: "anything"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tool call")
}

func TestClient_EmbedTexts(t *testing.T) {
	var receivedInputs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-embed-model", req.Model)
		receivedInputs = req.Input

		response := embeddingResponse{}
		for range req.Input {
			response.Data = append(response.Data, struct {
				Embedding []float32 `json:"embedding"`
			}{Embedding: []float32{0.1, 0.2, 0.3}})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	vectors, err := client.EmbedTexts(context.Background(), []string{"first text", "second text"})

	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0])
	assert.Equal(t, []string{"first text", "second text"}, receivedInputs)
}

func TestClient_EmbedTexts_TruncatesLongInput(t *testing.T) {
	var receivedInputs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		receivedInputs = req.Input

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [{"embedding": [0.5]}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.EmbedTexts(context.Background(), []string{strings.Repeat("x", maxEmbedInputChars+500)})

	require.NoError(t, err)
	require.Len(t, receivedInputs, 1)
	assert.Len(t, receivedInputs[0], maxEmbedInputChars)
}

func TestClient_EmbedTexts_Empty(t *testing.T) {
	client := newTestClient("http://unused")
	vectors, err := client.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestClient_EmbedTexts_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [{"embedding": [0.5]}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.EmbedTexts(context.Background(), []string{"a", "b"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "count mismatch")
}

func TestClient_ComposeAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1].Content, "how are savings rated")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"content": "Savings sentiment is broadly positive."}}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	answer, err := client.ComposeAnswer(context.Background(), ComposeRequest{
		Question: "how are savings rated",
	})

	require.NoError(t, err)
	assert.Equal(t, "Savings sentiment is broadly positive.", answer)
}

func TestClient_MakeRequest_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.ComposeAnswer(context.Background(), ComposeRequest{Question: "q"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestClient_RetryOperation_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient("http://unused")
	err := client.retryOperation(ctx, "test_op", func() error {
		t.Fatal("operation should not run with cancelled context")
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}
