package gateway

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/academic-apex/apex-strategist/internal/models"
)

// Generator is the slice of the orchestrator the HTTP layer needs.
type Generator interface {
	GenerateQuiz(ctx context.Context, subject string, params models.QuizParams, model string, useCuration bool) (*models.GenerationResult, error)
	GenerateStudyPlan(ctx context.Context, subject string, params models.StudyPlanParams, model string, useCuration bool) (*models.GenerationResult, error)
	GenerateCode(ctx context.Context, subject string, params models.CodeParams, model string, useCuration bool) (*models.GenerationResult, error)
	GenerateStream(ctx context.Context, req *models.GenerationRequest, fn func(chunk string) error) *models.GenerationResult
}

// StatusProvider serves health snapshots.
type StatusProvider interface {
	Snapshot() models.HealthSnapshot
	Check(ctx context.Context) models.HealthSnapshot
}

// Handler handles HTTP requests for the gateway layer.
type Handler struct {
	generator Generator
	status    StatusProvider
}

// NewHandler creates a new gateway handler.
func NewHandler(generator Generator, status StatusProvider) *Handler {
	return &Handler{
		generator: generator,
		status:    status,
	}
}

// GenerateQuizRequest represents a quiz generation request.
type GenerateQuizRequest struct {
	Subject       string `json:"subject" binding:"required"`
	Difficulty    string `json:"difficulty" binding:"required,oneof=beginner intermediate advanced"`
	QuestionCount int    `json:"question_count" binding:"required,min=1,max=50"`
	Model         string `json:"model"`
	UseCuration   *bool  `json:"use_curation"`
}

// GenerateStudyPlanRequest represents a study plan generation request.
type GenerateStudyPlanRequest struct {
	Subject     string   `json:"subject" binding:"required"`
	Duration    string   `json:"duration" binding:"required"`
	Difficulty  string   `json:"difficulty" binding:"required,oneof=beginner intermediate advanced"`
	Objectives  []string `json:"objectives"`
	Model       string   `json:"model"`
	UseCuration *bool    `json:"use_curation"`
}

// GenerateCodeRequest represents a code module generation request.
type GenerateCodeRequest struct {
	Subject       string `json:"subject" binding:"required"`
	ModuleName    string `json:"module_name" binding:"required"`
	Functionality string `json:"functionality" binding:"required"`
	Language      string `json:"language"`
	IncludeTests  bool   `json:"include_tests"`
	Model         string `json:"model"`
	UseCuration   *bool  `json:"use_curation"`
}

// GenerateQuiz handles POST /api/generate/quiz.
func (h *Handler) GenerateQuiz(c *gin.Context) {
	var req GenerateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	result, err := h.generator.GenerateQuiz(c.Request.Context(), req.Subject, models.QuizParams{
		Difficulty:    req.Difficulty,
		QuestionCount: req.QuestionCount,
	}, req.Model, useCuration(req.UseCuration))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(resultStatus(result), result)
}

// GenerateStudyPlan handles POST /api/generate/study-plan.
func (h *Handler) GenerateStudyPlan(c *gin.Context) {
	var req GenerateStudyPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	result, err := h.generator.GenerateStudyPlan(c.Request.Context(), req.Subject, models.StudyPlanParams{
		Duration:   req.Duration,
		Difficulty: req.Difficulty,
		Objectives: req.Objectives,
	}, req.Model, useCuration(req.UseCuration))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(resultStatus(result), result)
}

// GenerateCode handles POST /api/generate/code.
func (h *Handler) GenerateCode(c *gin.Context) {
	var req GenerateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	result, err := h.generator.GenerateCode(c.Request.Context(), req.Subject, models.CodeParams{
		ModuleName:    req.ModuleName,
		Functionality: req.Functionality,
		Language:      req.Language,
		IncludeTests:  req.IncludeTests,
	}, req.Model, useCuration(req.UseCuration))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(resultStatus(result), result)
}

// GetStatus handles GET /api/status, serving the latest cached snapshot.
// Pass refresh=true to force a fresh probe round.
func (h *Handler) GetStatus(c *gin.Context) {
	var snap models.HealthSnapshot
	if c.Query("refresh") == "true" {
		snap = h.status.Check(c.Request.Context())
	} else {
		snap = h.status.Snapshot()
	}

	code := http.StatusOK
	if !snap.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, snap)
}

// Health handles GET /health, the process liveness endpoint.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// resultStatus maps a generation result to an HTTP status code. Every
// response carries the full result envelope, failures included.
func resultStatus(result *models.GenerationResult) int {
	if result.Success {
		return http.StatusOK
	}
	if result.Error == nil {
		return http.StatusInternalServerError
	}
	switch result.Error.Kind {
	case models.ErrKindValidationFailed:
		return http.StatusUnprocessableEntity
	case models.ErrKindTimeout, models.ErrKindNetworkUnavailable:
		return http.StatusServiceUnavailable
	case models.ErrKindModelNotFound, models.ErrKindInvalidResponse, models.ErrKindUpstreamError:
		return http.StatusBadGateway
	default:
		log.Warn().Str("kind", string(result.Error.Kind)).Msg("unmapped error kind")
		return http.StatusInternalServerError
	}
}

// useCuration defaults to true when the field is omitted.
func useCuration(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}
