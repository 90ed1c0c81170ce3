package localllm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, answer string, got *Request) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(Response{Choices: []Choice{{Message: Message{Role: "assistant", Content: answer}}}})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDetectLanguage(t *testing.T) {
	var got Request
	server := newServer(t, http.StatusOK, " 'de'.\n", &got)
	client := NewClient(server.URL)

	lang, err := client.DetectLanguage(context.Background(), "Mehl")
	require.NoError(t, err)
	assert.Equal(t, "de", lang)

	assert.Equal(t, "gemma-3-12b-it:2", got.Model)
	assert.Equal(t, 0.0, got.Temperature)
	require.Len(t, got.Messages, 1)
	assert.Contains(t, got.Messages[0].Content, `"Mehl"`)
}

func TestDetectLanguage_Undetermined(t *testing.T) {
	server := newServer(t, http.StatusOK, "und", nil)
	_, err := NewClient(server.URL).DetectLanguage(context.Background(), "xyz")
	assert.Error(t, err)
}

func TestGenerateContent_Errors(t *testing.T) {
	server := newServer(t, http.StatusServiceUnavailable, "", nil)
	_, err := NewClient(server.URL).GenerateContent(context.Background(), "hello")
	assert.ErrorContains(t, err, "503")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer empty.Close()
	_, err = NewClient(empty.URL).GenerateContent(context.Background(), "hello")
	assert.Error(t, err)
}

func TestNewClientDefaultURL(t *testing.T) {
	assert.Equal(t, DefaultURL, NewClient("").apiURL)
}
