package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuizParams_Validate(t *testing.T) {
	tests := []struct {
		name          string
		params        QuizParams
		expectedError string
	}{
		{
			name:   "valid_params",
			params: QuizParams{Difficulty: "beginner", QuestionCount: 10},
		},
		{
			name:          "invalid_difficulty",
			params:        QuizParams{Difficulty: "expert", QuestionCount: 10},
			expectedError: "difficulty",
		},
		{
			name:          "zero_questions",
			params:        QuizParams{Difficulty: "beginner", QuestionCount: 0},
			expectedError: "question_count",
		},
		{
			name:          "too_many_questions",
			params:        QuizParams{Difficulty: "advanced", QuestionCount: 51},
			expectedError: "question_count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStudyPlanParams_Validate(t *testing.T) {
	valid := StudyPlanParams{Duration: "2 weeks", Difficulty: "intermediate"}
	assert.NoError(t, valid.Validate())

	missing := StudyPlanParams{Difficulty: "intermediate"}
	assert.Error(t, missing.Validate())

	badLevel := StudyPlanParams{Duration: "2 weeks", Difficulty: "master"}
	assert.Error(t, badLevel.Validate())
}

func TestCodeParams_Validate(t *testing.T) {
	valid := CodeParams{ModuleName: "vectors", Functionality: "dot product and norms"}
	assert.NoError(t, valid.Validate())

	assert.Error(t, CodeParams{Functionality: "something"}.Validate())
	assert.Error(t, CodeParams{ModuleName: "vectors"}.Validate())
}

func TestNewGenerationRequest(t *testing.T) {
	req, err := NewGenerationRequest("Linear Algebra", QuizParams{Difficulty: "beginner", QuestionCount: 5}, true)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, req.ID)
	assert.Equal(t, "Linear Algebra", req.Subject)
	assert.Equal(t, KindQuiz, req.Kind())
	assert.True(t, req.UseCuration)

	params, ok := req.Params().(QuizParams)
	require.True(t, ok)
	assert.Equal(t, 5, params.QuestionCount)
}

func TestNewGenerationRequest_Invalid(t *testing.T) {
	_, err := NewGenerationRequest("  ", QuizParams{Difficulty: "beginner", QuestionCount: 5}, false)
	assert.Error(t, err)

	_, err = NewGenerationRequest("Chemistry", nil, false)
	assert.Error(t, err)

	_, err = NewGenerationRequest("Chemistry", QuizParams{Difficulty: "beginner", QuestionCount: 0}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid quiz parameters")
}

func TestErrorInfo_Retryable(t *testing.T) {
	tests := []struct {
		kind      ErrorKind
		retryable bool
	}{
		{ErrKindNetworkUnavailable, true},
		{ErrKindTimeout, true},
		{ErrKindModelNotFound, false},
		{ErrKindInvalidResponse, false},
		{ErrKindValidationFailed, false},
		{ErrKindUpstreamError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			info := NewErrorInfo(tt.kind, "boom")
			assert.Equal(t, tt.retryable, info.Retryable)
		})
	}
}

func TestAsErrorInfo(t *testing.T) {
	info := NewErrorInfo(ErrKindTimeout, "deadline exceeded")
	assert.Same(t, info, AsErrorInfo(info))

	wrapped := AsErrorInfo(assert.AnError)
	require.NotNil(t, wrapped)
	assert.Equal(t, ErrKindUpstreamError, wrapped.Kind)
	assert.False(t, wrapped.Retryable)
}

func TestHealthSnapshot_Healthy(t *testing.T) {
	snap := HealthSnapshot{InferenceReachable: true, CuratorReachable: true, VaultWritable: true}
	assert.True(t, snap.Healthy())

	snap.CuratorReachable = false
	assert.False(t, snap.Healthy())

	unknown := UnknownHealth()
	assert.False(t, unknown.Healthy())
	assert.NotEmpty(t, unknown.Issues)
}
