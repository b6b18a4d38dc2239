package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the artifact a generation request produces.
type Kind string

const (
	KindQuiz      Kind = "quiz"
	KindStudyPlan Kind = "study_plan"
	KindCode      Kind = "code"
	KindGeneric   Kind = "generic"
)

// Params is the kind-specific parameter set of a GenerationRequest. Each
// variant carries only its relevant fields and is validated at construction.
type Params interface {
	Kind() Kind
	Validate() error
}

// QuizParams configures a quiz generation.
type QuizParams struct {
	Difficulty    string `json:"difficulty"`
	QuestionCount int    `json:"question_count"`
}

func (p QuizParams) Kind() Kind { return KindQuiz }

func (p QuizParams) Validate() error {
	if err := validateDifficulty(p.Difficulty); err != nil {
		return err
	}
	if p.QuestionCount < 1 || p.QuestionCount > 50 {
		return fmt.Errorf("question_count must be between 1 and 50, got %d", p.QuestionCount)
	}
	return nil
}

// StudyPlanParams configures a study plan generation.
type StudyPlanParams struct {
	Duration   string   `json:"duration"`
	Difficulty string   `json:"difficulty"`
	Objectives []string `json:"objectives,omitempty"`
}

func (p StudyPlanParams) Kind() Kind { return KindStudyPlan }

func (p StudyPlanParams) Validate() error {
	if strings.TrimSpace(p.Duration) == "" {
		return fmt.Errorf("duration is required")
	}
	return validateDifficulty(p.Difficulty)
}

// CodeParams configures a code module generation.
type CodeParams struct {
	ModuleName    string `json:"module_name"`
	Functionality string `json:"functionality"`
	Language      string `json:"language"`
	IncludeTests  bool   `json:"include_tests"`
}

func (p CodeParams) Kind() Kind { return KindCode }

func (p CodeParams) Validate() error {
	if strings.TrimSpace(p.ModuleName) == "" {
		return fmt.Errorf("module_name is required")
	}
	if strings.TrimSpace(p.Functionality) == "" {
		return fmt.Errorf("functionality is required")
	}
	return nil
}

// GenericParams configures a free-form generation with no structural
// validation stage.
type GenericParams struct {
	Instruction string `json:"instruction,omitempty"`
}

func (p GenericParams) Kind() Kind { return KindGeneric }

func (p GenericParams) Validate() error { return nil }

func validateDifficulty(d string) error {
	switch d {
	case "beginner", "intermediate", "advanced":
		return nil
	}
	return fmt.Errorf("difficulty must be beginner, intermediate or advanced, got %q", d)
}

// GenerationRequest is one request to the orchestrator. The kind is fixed at
// construction and the parameters are validated against it before dispatch.
type GenerationRequest struct {
	ID          uuid.UUID
	Subject     string
	Model       string
	UseCuration bool

	kind   Kind
	params Params
}

// NewGenerationRequest validates params against their kind and returns a
// request ready for dispatch. Model may be empty to use the configured
// default.
func NewGenerationRequest(subject string, params Params, useCuration bool) (*GenerationRequest, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if params == nil {
		return nil, fmt.Errorf("params are required")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s parameters: %w", params.Kind(), err)
	}
	return &GenerationRequest{
		ID:          uuid.New(),
		Subject:     strings.TrimSpace(subject),
		UseCuration: useCuration,
		kind:        params.Kind(),
		params:      params,
	}, nil
}

// Kind returns the artifact kind fixed at construction.
func (r *GenerationRequest) Kind() Kind { return r.kind }

// Params returns the validated kind-specific parameters.
func (r *GenerationRequest) Params() Params { return r.params }

// ValidationOutcome reports the structural check applied to generated
// content.
type ValidationOutcome struct {
	Valid  bool   `json:"valid"`
	Detail string `json:"detail,omitempty"`
}

// GenerationResult is the uniform envelope returned for every request,
// failed ones included. It is owned by the orchestrator for the duration of
// one request and never shared across requests.
type GenerationResult struct {
	RequestID  uuid.UUID         `json:"request_id"`
	Success    bool              `json:"success"`
	Content    string            `json:"content,omitempty"`
	ModelUsed  string            `json:"model_used,omitempty"`
	TokenCount int               `json:"token_count"`
	Curated    bool              `json:"curated"`
	Validation ValidationOutcome `json:"validation"`
	VaultPath  string            `json:"vault_path,omitempty"`
	VaultSaved bool              `json:"vault_saved"`
	Elapsed    time.Duration     `json:"elapsed"`
	Error      *ErrorInfo        `json:"error,omitempty"`
}

// CurationEntry is one immutable cache record of a refined prompt.
type CurationEntry struct {
	RawPrompt     string
	Instruction   string
	RefinedPrompt string
	CreatedAt     time.Time
}
