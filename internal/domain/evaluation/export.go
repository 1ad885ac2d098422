package evaluation

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// ExportDocument is the file handed to the user on export.
type ExportDocument struct {
	EvaluatedAt time.Time `json:"evaluatedAt"`
	ImageName   string    `json:"imageName,omitempty"`
	Context     Context   `json:"context"`
	Result      *Result   `json:"result"`
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	unsafeName    = regexp.MustCompile(`[^\p{L}\p{M}\p{N}._-]`)
)

// Slug collapses whitespace runs to hyphens and lower-cases the name.
// Letters and digits of any script are kept; path separators, quotes and other
// punctuation are dropped.
func Slug(name string) string {
	s := whitespaceRun.ReplaceAllString(strings.TrimSpace(name), "-")
	s = unsafeName.ReplaceAllString(strings.ToLower(s), "")
	if s == "" {
		return "untitled"
	}
	return s
}

// ExportFilename builds "ux-evaluation-<slug>-<timestamp>.json".
func ExportFilename(workflowName string, at time.Time) string {
	return "ux-evaluation-" + Slug(workflowName) + "-" + at.UTC().Format("20060102-150405") + ".json"
}

// Marshal renders the document as indented JSON.
func (d ExportDocument) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
