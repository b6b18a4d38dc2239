package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academic-apex/apex-strategist/internal/models"
)

func newOllamaTestTransport(t *testing.T, handler http.HandlerFunc) (*ollamaTransport, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tr, err := newOllamaTransport(server.URL, 5*time.Second)
	require.NoError(t, err)
	return tr, server
}

func TestOllamaTransport_Generate(t *testing.T) {
	tr, _ := newOllamaTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral:7b", req["model"])

		opts, ok := req["options"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(256), opts["num_predict"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":             "mistral:7b",
			"response":          "1. What is a vector?",
			"done":              true,
			"prompt_eval_count": 20,
			"eval_count":        48,
		})
	})

	gen, err := tr.generate(context.Background(), generateInput{
		Prompt:    "quiz me",
		Model:     "mistral:7b",
		MaxTokens: 256,
	})
	require.NoError(t, err)
	assert.Equal(t, "1. What is a vector?", gen.Text)
	assert.Equal(t, "mistral:7b", gen.Model)
	assert.Equal(t, 48, gen.TokenCount)
	assert.Equal(t, 20, gen.PromptTokens)
}

func TestOllamaTransport_Generate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		handler      http.HandlerFunc
		expectedKind models.ErrorKind
	}{
		{
			name: "missing_model_is_model_not_found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]string{"error": "model 'ghost:1b' not found"})
			},
			expectedKind: models.ErrKindModelNotFound,
		},
		{
			name: "server_error_is_upstream_error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]string{"error": "out of memory"})
			},
			expectedKind: models.ErrKindUpstreamError,
		},
		{
			name: "empty_completion_is_upstream_error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"model":    "mistral:7b",
					"response": "   ",
					"done":     true,
				})
			},
			expectedKind: models.ErrKindUpstreamError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newOllamaTestTransport(t, tt.handler)

			_, err := tr.generate(context.Background(), generateInput{
				Prompt:    "prompt",
				Model:     "mistral:7b",
				MaxTokens: 256,
			})
			require.Error(t, err)
			assert.Equal(t, tt.expectedKind, models.AsErrorInfo(err).Kind)
		})
	}
}

func TestOllamaTransport_Generate_Timeout(t *testing.T) {
	tr, _ := newOllamaTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := tr.generate(ctx, generateInput{Prompt: "prompt", Model: "mistral:7b", MaxTokens: 256})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindTimeout, models.AsErrorInfo(err).Kind)
}

func TestOllamaTransport_Generate_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	tr, err := newOllamaTransport(server.URL, time.Second)
	require.NoError(t, err)
	server.Close()

	_, err = tr.generate(context.Background(), generateInput{Prompt: "prompt", Model: "mistral:7b", MaxTokens: 256})
	require.Error(t, err)

	info := models.AsErrorInfo(err)
	assert.Equal(t, models.ErrKindNetworkUnavailable, info.Kind)
	assert.True(t, info.Retryable)
}

func TestOllamaTransport_Ping(t *testing.T) {
	tr, _ := newOllamaTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/version", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"version": "0.6.5"})
	})

	assert.NoError(t, tr.ping(context.Background()))
}

func TestOllamaTransport_ListModels(t *testing.T) {
	tr, _ := newOllamaTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"models": []map[string]interface{}{
				{"name": "mistral:7b"},
				{"name": "llama3:8b"},
			},
		})
	})

	names, err := tr.listModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"mistral:7b", "llama3:8b"}, names)
}

func TestOllamaTransport_ListModels_EmptyRuntime(t *testing.T) {
	tr, _ := newOllamaTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"models": []interface{}{}})
	})

	names, err := tr.listModels(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestOllamaTransport_GenerateStream(t *testing.T) {
	tr, _ := newOllamaTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		enc.Encode(map[string]interface{}{"model": "mistral:7b", "response": "Hello ", "done": false})
		enc.Encode(map[string]interface{}{"model": "mistral:7b", "response": "world", "done": false})
		enc.Encode(map[string]interface{}{"model": "mistral:7b", "response": "", "done": true, "eval_count": 2})
	})

	var chunks []string
	gen, err := tr.generateStream(context.Background(), generateInput{
		Prompt:    "greet",
		Model:     "mistral:7b",
		MaxTokens: 256,
	}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello ", "world"}, chunks)
	assert.Equal(t, "Hello world", gen.Text)
	assert.Equal(t, 2, gen.TokenCount)
}
