package tika

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-chat-go/internal/config"
)

func TestExtractText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "raw-docx-bytes", string(body))

		_, _ = w.Write([]byte("提取出的文本内容"))
	}))
	defer server.Close()

	client := NewClient(config.TikaConfig{ServerURL: server.URL})
	text, err := client.ExtractText(context.Background(), strings.NewReader("raw-docx-bytes"), "report.docx")
	require.NoError(t, err)
	assert.Equal(t, "提取出的文本内容", text)
}

func TestExtractTextServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("cannot parse"))
	}))
	defer server.Close()

	client := NewClient(config.TikaConfig{ServerURL: server.URL})
	_, err := client.ExtractText(context.Background(), strings.NewReader("data"), "broken.docx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestDetectMimeType(t *testing.T) {
	// 无扩展名或未知扩展名时回退到二进制流类型
	assert.Equal(t, "application/octet-stream", detectMimeType("noext"))
	assert.Equal(t, "application/octet-stream", detectMimeType("a.zzz-unknown"))
	assert.NotEmpty(t, detectMimeType("a.html"))
}
