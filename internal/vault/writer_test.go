package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academic-apex/apex-strategist/internal/models"
)

func TestSaveNote(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	w.now = func() time.Time {
		return time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	}

	relPath, err := w.SaveNote(models.KindQuiz, "Linear Algebra: Vectors & Spaces!", "mistral:7b", "1. What is a vector?")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("AcademicApex", "Quizzes", "Linear_Algebra_Vectors_Spaces_20260314_150926.md"), relPath)

	content, err := os.ReadFile(filepath.Join(dir, relPath))
	require.NoError(t, err)

	text := string(content)
	assert.True(t, strings.HasPrefix(text, "---\n"), "note must start with frontmatter")
	assert.Contains(t, text, "subject: Linear Algebra: Vectors & Spaces!")
	assert.Contains(t, text, "type: quiz")
	assert.Contains(t, text, "model: mistral:7b")
	assert.Contains(t, text, "tags: [academic-apex, generated]")
	assert.Contains(t, text, "1. What is a vector?")
}

func TestSaveNote_KindFolders(t *testing.T) {
	tests := []struct {
		kind   models.Kind
		folder string
	}{
		{models.KindQuiz, "Quizzes"},
		{models.KindStudyPlan, "StudyPlans"},
		{models.KindCode, "CodeModules"},
	}

	dir := t.TempDir()
	w := NewWriter(dir)

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			relPath, err := w.SaveNote(tt.kind, "Subject", "mistral:7b", "content")
			require.NoError(t, err)
			assert.Contains(t, relPath, filepath.Join("AcademicApex", tt.folder))
		})
	}
}

func TestSaveNote_UnknownKind(t *testing.T) {
	w := NewWriter(t.TempDir())
	_, err := w.SaveNote(models.KindGeneric, "Subject", "mistral:7b", "content")
	assert.Error(t, err)
}

func TestSaveNote_Disabled(t *testing.T) {
	w := NewWriter("")
	assert.False(t, w.Enabled())

	_, err := w.SaveNote(models.KindQuiz, "Subject", "mistral:7b", "content")
	assert.Error(t, err)
}

func TestWritable(t *testing.T) {
	w := NewWriter(t.TempDir())
	assert.NoError(t, w.Writable())

	entries, err := os.ReadDir(filepath.Join(w.basePath, rootFolder))
	require.NoError(t, err)
	assert.Empty(t, entries, "probe marker must be cleaned up")
}

func TestWritable_NotConfigured(t *testing.T) {
	assert.Error(t, NewWriter("").Writable())
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"Linear Algebra", "Linear_Algebra"},
		{"  C++ / Rust!  ", "C_Rust"},
		{"___", "untitled"},
		{strings.Repeat("a", 100), strings.Repeat("a", 60)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, sanitize(tt.in))
	}
}
