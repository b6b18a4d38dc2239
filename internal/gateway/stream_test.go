package gateway

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academic-apex/apex-strategist/internal/models"
)

// chunkedGenerator streams scripted chunks before returning its result.
type chunkedGenerator struct {
	fakeGenerator
	chunks []string
}

func (g *chunkedGenerator) GenerateStream(ctx context.Context, req *models.GenerationRequest, fn func(string) error) *models.GenerationResult {
	for _, chunk := range g.chunks {
		if err := fn(chunk); err != nil {
			break
		}
	}
	return g.result
}

func newStreamServer(t *testing.T, gen Generator) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := NewHandler(gen, &fakeStatus{})

	router := gin.New()
	router.GET("/api/ws/generate", handler.StreamGenerate)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func dialStream(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws/generate"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStreamGenerate_DeliversChunksAndResult(t *testing.T) {
	gen := &chunkedGenerator{
		chunks: []string{"Hello ", "world"},
	}
	gen.result = &models.GenerationResult{
		RequestID:  uuid.New(),
		Success:    true,
		Content:    "Hello world",
		ModelUsed:  "mistral:7b",
		Validation: models.ValidationOutcome{Valid: true},
	}
	server := newStreamServer(t, gen)
	conn := dialStream(t, server)

	require.NoError(t, conn.WriteJSON(StreamGenerateRequest{Subject: "Greetings"}))

	var received []string
	for {
		var msg streamMessage
		require.NoError(t, conn.ReadJSON(&msg))

		if msg.Type == "chunk" {
			received = append(received, msg.Content)
			continue
		}

		require.Equal(t, "result", msg.Type)
		require.NotNil(t, msg.Result)
		assert.True(t, msg.Result.Success)
		assert.Equal(t, "Hello world", msg.Result.Content)
		break
	}
	assert.Equal(t, []string{"Hello ", "world"}, received)
}

func TestStreamGenerate_InvalidFirstFrame(t *testing.T) {
	server := newStreamServer(t, &chunkedGenerator{})
	conn := dialStream(t, server)

	require.NoError(t, conn.WriteJSON(StreamGenerateRequest{Subject: "   "}))

	var msg streamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.NotEmpty(t, msg.Error)
}

func TestStreamGenerate_FailureResult(t *testing.T) {
	gen := &chunkedGenerator{}
	gen.result = &models.GenerationResult{
		RequestID: uuid.New(),
		Error:     models.NewErrorInfo(models.ErrKindNetworkUnavailable, "runtime down"),
	}
	server := newStreamServer(t, gen)
	conn := dialStream(t, server)

	require.NoError(t, conn.WriteJSON(StreamGenerateRequest{Subject: "Anything"}))

	var msg streamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "result", msg.Type)
	require.NotNil(t, msg.Result)
	assert.False(t, msg.Result.Success)
	require.NotNil(t, msg.Result.Error)
	assert.Equal(t, models.ErrKindNetworkUnavailable, msg.Result.Error.Kind)
}
