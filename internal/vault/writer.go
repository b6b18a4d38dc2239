package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/academic-apex/apex-strategist/internal/models"
)

const rootFolder = "AcademicApex"

var kindFolders = map[models.Kind]string{
	models.KindQuiz:      "Quizzes",
	models.KindStudyPlan: "StudyPlans",
	models.KindCode:      "CodeModules",
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Writer persists generated artifacts as markdown notes in an Obsidian
// vault. An empty base path disables persistence.
type Writer struct {
	basePath string
	now      func() time.Time
}

// NewWriter creates a vault writer rooted at basePath.
func NewWriter(basePath string) *Writer {
	return &Writer{basePath: basePath, now: time.Now}
}

// Enabled reports whether a vault path is configured.
func (w *Writer) Enabled() bool {
	return w.basePath != ""
}

// SaveNote writes one artifact note and returns the path relative to the
// vault root. Notes land under AcademicApex/<kind folder> with a frontmatter
// block and a timestamped, sanitized filename.
func (w *Writer) SaveNote(kind models.Kind, subject, model, content string) (string, error) {
	if !w.Enabled() {
		return "", fmt.Errorf("vault persistence is not configured")
	}
	folder, ok := kindFolders[kind]
	if !ok {
		return "", fmt.Errorf("no vault folder for kind %q", kind)
	}

	dir := filepath.Join(w.basePath, rootFolder, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create vault folder: %w", err)
	}

	ts := w.now()
	name := fmt.Sprintf("%s_%s.md", sanitize(subject), ts.Format("20060102_150405"))
	fullPath := filepath.Join(dir, name)

	note := buildNote(kind, subject, model, content, ts)
	if err := os.WriteFile(fullPath, []byte(note), 0o644); err != nil {
		return "", fmt.Errorf("failed to write vault note: %w", err)
	}

	relPath := filepath.Join(rootFolder, folder, name)
	log.Info().Str("path", relPath).Str("kind", string(kind)).Msg("artifact saved to vault")
	return relPath, nil
}

// Writable probes the vault by writing and removing a marker file.
func (w *Writer) Writable() error {
	if !w.Enabled() {
		return fmt.Errorf("vault path not configured")
	}
	if err := os.MkdirAll(filepath.Join(w.basePath, rootFolder), 0o755); err != nil {
		return fmt.Errorf("vault not writable: %w", err)
	}
	marker := filepath.Join(w.basePath, rootFolder, ".apex-probe")
	if err := os.WriteFile(marker, []byte("probe"), 0o644); err != nil {
		return fmt.Errorf("vault not writable: %w", err)
	}
	if err := os.Remove(marker); err != nil {
		return fmt.Errorf("vault probe cleanup failed: %w", err)
	}
	return nil
}

func buildNote(kind models.Kind, subject, model, content string, ts time.Time) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "subject: %s\n", subject)
	fmt.Fprintf(&b, "type: %s\n", kind)
	fmt.Fprintf(&b, "model: %s\n", model)
	fmt.Fprintf(&b, "created: %s\n", ts.Format(time.RFC3339))
	b.WriteString("tags: [academic-apex, generated]\n")
	b.WriteString("---\n\n")
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// sanitize reduces a subject to a filesystem-safe slug.
func sanitize(subject string) string {
	slug := unsafeChars.ReplaceAllString(strings.TrimSpace(subject), "_")
	slug = strings.Trim(slug, "_")
	if len(slug) > 60 {
		slug = slug[:60]
	}
	if slug == "" {
		slug = "untitled"
	}
	return slug
}
