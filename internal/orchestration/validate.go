package orchestration

import (
	"fmt"
	"go/parser"
	"go/token"
	"regexp"
	"strings"

	"github.com/academic-apex/apex-strategist/internal/models"
)

var (
	questionLine  = regexp.MustCompile(`(?m)^\s*(?:Q\s*)?\d+[\.\):]`)
	timeBlockLine = regexp.MustCompile(`\d{1,2}:\d{2}\s*-\s*\d{1,2}:\d{2}`)
	fencedBlock   = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\n(.*?)```")
)

// validateContent applies the kind-specific structural check to generated
// content. Generic generations skip validation.
func validateContent(req *models.GenerationRequest, content string) models.ValidationOutcome {
	switch p := req.Params().(type) {
	case models.QuizParams:
		return validateQuiz(content, p.QuestionCount)
	case models.StudyPlanParams:
		return validateStudyPlan(content)
	case models.CodeParams:
		return validateCode(content, p.Language)
	default:
		return models.ValidationOutcome{Valid: true}
	}
}

// validateQuiz requires the answer-key marker and at least the requested
// number of numbered questions before it.
func validateQuiz(content string, questionCount int) models.ValidationOutcome {
	idx := strings.Index(content, answersMarker)
	if idx < 0 {
		return models.ValidationOutcome{
			Detail: "quiz is missing the " + answersMarker + " answer key separator",
		}
	}
	questions := questionLine.FindAllString(content[:idx], -1)
	if len(questions) < questionCount {
		return models.ValidationOutcome{
			Detail: fmt.Sprintf("quiz has %d numbered questions, expected at least %d", len(questions), questionCount),
		}
	}
	if strings.TrimSpace(content[idx+len(answersMarker):]) == "" {
		return models.ValidationOutcome{Detail: "quiz answer key is empty"}
	}
	return models.ValidationOutcome{Valid: true}
}

// validateStudyPlan requires at least one HH:MM - HH:MM time block.
func validateStudyPlan(content string) models.ValidationOutcome {
	if !timeBlockLine.MatchString(content) {
		return models.ValidationOutcome{
			Detail: "study plan has no time blocks in HH:MM - HH:MM format",
		}
	}
	return models.ValidationOutcome{Valid: true}
}

// validateCode extracts the fenced code block and applies a syntax check:
// a real parse for Go, balanced delimiters otherwise.
func validateCode(content, language string) models.ValidationOutcome {
	match := fencedBlock.FindStringSubmatch(content)
	if match == nil {
		return models.ValidationOutcome{Detail: "response contains no fenced code block"}
	}
	code := match[1]
	if strings.TrimSpace(code) == "" {
		return models.ValidationOutcome{Detail: "fenced code block is empty"}
	}

	if strings.EqualFold(language, "go") {
		fset := token.NewFileSet()
		if _, err := parser.ParseFile(fset, "module.go", code, 0); err != nil {
			return models.ValidationOutcome{Detail: "go code does not parse: " + err.Error()}
		}
		return models.ValidationOutcome{Valid: true}
	}

	if err := checkBalanced(code); err != nil {
		return models.ValidationOutcome{Detail: err.Error()}
	}
	return models.ValidationOutcome{Valid: true}
}

// checkBalanced verifies that brackets outside string literals pair up.
func checkBalanced(code string) error {
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	var stack []rune
	var inString rune
	var escaped bool

	for _, r := range code {
		if escaped {
			escaped = false
			continue
		}
		if inString != 0 {
			switch r {
			case '\\':
				escaped = true
			case inString:
				inString = 0
			}
			continue
		}
		switch r {
		case '"', '\'', '`':
			inString = r
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return fmt.Errorf("unbalanced %q in code block", r)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("unclosed %q in code block", stack[len(stack)-1])
	}
	return nil
}
