package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/academic-apex/apex-strategist/internal/models"
)

var wsTracer = otel.Tracer("generation-stream")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the web client host is fixed
		return true
	},
}

// StreamGenerateRequest is the first message a client sends on the
// generation stream socket.
type StreamGenerateRequest struct {
	Subject     string `json:"subject" binding:"required"`
	Instruction string `json:"instruction"`
	Model       string `json:"model"`
	UseCuration *bool  `json:"use_curation"`
}

// streamMessage is one frame sent back to the client. Type is "chunk" while
// tokens arrive, then a single "result" frame closes the exchange.
type streamMessage struct {
	Type    string                   `json:"type"`
	Content string                   `json:"content,omitempty"`
	Result  *models.GenerationResult `json:"result,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

// StreamGenerate handles WebSocket /api/ws/generate. The client sends one
// request frame; the server streams completion chunks and finishes with the
// result envelope.
func (h *Handler) StreamGenerate(c *gin.Context) {
	ctx, span := wsTracer.Start(c.Request.Context(), "gateway.stream_generate")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	var req StreamGenerateRequest
	if err := conn.ReadJSON(&req); err != nil {
		writeStreamError(conn, "invalid request frame: "+err.Error())
		return
	}

	genReq, err := models.NewGenerationRequest(req.Subject, models.GenericParams{Instruction: req.Instruction}, useCuration(req.UseCuration))
	if err != nil {
		writeStreamError(conn, err.Error())
		return
	}
	genReq.Model = req.Model

	span.SetAttributes(attribute.String("request_id", genReq.ID.String()))
	log.Info().Str("request_id", genReq.ID.String()).Msg("generation stream opened")

	result := h.generator.GenerateStream(ctx, genReq, func(chunk string) error {
		return conn.WriteJSON(streamMessage{Type: "chunk", Content: chunk})
	})

	if err := conn.WriteJSON(streamMessage{Type: "result", Result: result}); err != nil {
		log.Warn().Err(err).Str("request_id", genReq.ID.String()).Msg("failed to send final stream frame")
		return
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	log.Info().Str("request_id", genReq.ID.String()).Bool("success", result.Success).Msg("generation stream closed")
}

func writeStreamError(conn *websocket.Conn, msg string) {
	if err := conn.WriteJSON(streamMessage{Type: "error", Error: msg}); err != nil {
		log.Warn().Err(err).Msg("failed to send stream error frame")
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid request"))
}
