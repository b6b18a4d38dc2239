package orchestration

import (
	"fmt"
	"strings"

	"github.com/academic-apex/apex-strategist/internal/models"
)

const answersMarker = "---ANSWERS---"

// buildPrompt composes the raw generation prompt for a request.
func buildPrompt(req *models.GenerationRequest) string {
	switch p := req.Params().(type) {
	case models.QuizParams:
		return buildQuizPrompt(req.Subject, p)
	case models.StudyPlanParams:
		return buildStudyPlanPrompt(req.Subject, p)
	case models.CodeParams:
		return buildCodePrompt(req.Subject, p)
	case models.GenericParams:
		if p.Instruction != "" {
			return fmt.Sprintf("%s\n\nTopic: %s", p.Instruction, req.Subject)
		}
		return req.Subject
	default:
		return req.Subject
	}
}

// curationInstruction returns the refinement instruction matched to the
// artifact kind.
func curationInstruction(kind models.Kind) string {
	switch kind {
	case models.KindQuiz:
		return "Rewrite this prompt to produce a well-structured quiz with unambiguous questions and a clearly separated answer key."
	case models.KindStudyPlan:
		return "Rewrite this prompt to produce a realistic, time-blocked study schedule with concrete daily goals."
	case models.KindCode:
		return "Rewrite this prompt to produce clean, well-documented, runnable code with no placeholder sections."
	default:
		return "Improve the clarity and specificity of this prompt while preserving its intent."
	}
}

func buildQuizPrompt(subject string, p models.QuizParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s-level quiz about %s with exactly %d questions.\n\n", p.Difficulty, subject, p.QuestionCount)
	b.WriteString("Requirements:\n")
	b.WriteString("- Number each question (1., 2., 3., ...)\n")
	b.WriteString("- Mix multiple choice and short answer questions\n")
	b.WriteString("- Questions must be answerable from standard course material\n")
	fmt.Fprintf(&b, "- After the last question, write a line containing only %s\n", answersMarker)
	b.WriteString("- Below that marker, list the answer for every question in order\n")
	return b.String()
}

func buildStudyPlanPrompt(subject string, p models.StudyPlanParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s study plan for learning %s at the %s level.\n\n", p.Duration, subject, p.Difficulty)
	b.WriteString("Requirements:\n")
	b.WriteString("- Break each day into time blocks using the HH:MM - HH:MM format\n")
	b.WriteString("- State a concrete goal for every block\n")
	b.WriteString("- Include short breaks and a review session at the end of each day\n")
	if len(p.Objectives) > 0 {
		b.WriteString("\nThe plan must cover these objectives:\n")
		for _, obj := range p.Objectives {
			fmt.Fprintf(&b, "- %s\n", obj)
		}
	}
	return b.String()
}

func buildCodePrompt(subject string, p models.CodeParams) string {
	lang := p.Language
	if lang == "" {
		lang = "python"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %s module named %q for a course on %s.\n\n", lang, p.ModuleName, subject)
	fmt.Fprintf(&b, "The module must implement: %s\n\n", p.Functionality)
	b.WriteString("Requirements:\n")
	fmt.Fprintf(&b, "- Return the complete code in a single fenced ```%s code block\n", lang)
	b.WriteString("- Include docstrings or doc comments for every public function\n")
	b.WriteString("- No placeholder or TODO sections; the code must be complete\n")
	if p.IncludeTests {
		b.WriteString("- Include unit tests for the main functionality\n")
	}
	return b.String()
}
