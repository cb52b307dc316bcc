package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-chat-go/internal/config"
)

// collectWriter 实现 MessageWriter，收集写入的分块。
type collectWriter struct {
	chunks []string
}

func (w *collectWriter) WriteMessage(messageType int, data []byte) error {
	w.chunks = append(w.chunks, string(data))
	return nil
}

func newTestLLMClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-chat",
	})
}

func TestChatSync(t *testing.T) {
	client := newTestLLMClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "test-chat", req.Model)
		if assert.NotEmpty(t, req.Messages) {
			assert.Equal(t, "system", req.Messages[0].Role)
		}

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "这是回答"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	answer, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "规则"},
		{Role: "user", Content: "问题"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "这是回答", answer)
}

func TestChatSyncNoChoices(t *testing.T) {
	client := newTestLLMClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	})

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
	assert.Error(t, err)
}

func TestChatServerError(t *testing.T) {
	client := newTestLLMClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
	assert.Error(t, err)
}

func TestStreamChatMessages(t *testing.T) {
	client := newTestLLMClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"你", "好", "！"} {
			chunk := map[string]interface{}{
				"choices": []map[string]interface{}{
					{"delta": map[string]string{"content": piece}},
				},
			}
			b, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n", b)
		}
		fmt.Fprint(w, "data: [DONE]\n")
	})

	writer := &collectWriter{}
	err := client.StreamChatMessages(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, writer)
	require.NoError(t, err)
	assert.Equal(t, []string{"你", "好", "！"}, writer.chunks)
}

func TestStreamChatSkipsMalformedChunks(t *testing.T) {
	client := newTestLLMClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {not-json}\n")
		chunk := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"delta": map[string]string{"content": "ok"}},
			},
		}
		b, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n", b)
		fmt.Fprint(w, "data: [DONE]\n")
	})

	writer := &collectWriter{}
	err := client.StreamChatMessages(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, writer)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, writer.chunks)
}

func TestGenerationParamsApplied(t *testing.T) {
	var captured chatRequest
	client := newTestLLMClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "ok"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	temp := 0.1
	maxTokens := 128
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "q"}}, &GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	require.NoError(t, err)
	require.NotNil(t, captured.Temperature)
	assert.Equal(t, 0.1, *captured.Temperature)
	require.NotNil(t, captured.MaxTokens)
	assert.Equal(t, 128, *captured.MaxTokens)
	assert.Nil(t, captured.TopP)
}
