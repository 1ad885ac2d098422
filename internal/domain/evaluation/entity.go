package evaluation

import (
	"strings"
	"time"
)

// ImageID identifier type
type ImageID string

// Context is the free-text context captured when a run is submitted.
type Context struct {
	WorkflowName string `json:"workflowName"`
	EpicDetails  string `json:"epicDetails,omitempty"`
	Persona      string `json:"persona,omitempty"`
	UseCase      string `json:"useCase,omitempty"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (c Context) Trimmed() Context {
	return Context{
		WorkflowName: strings.TrimSpace(c.WorkflowName),
		EpicDetails:  strings.TrimSpace(c.EpicDetails),
		Persona:      strings.TrimSpace(c.Persona),
		UseCase:      strings.TrimSpace(c.UseCase),
	}
}

// UploadedImage is one file as received from the client, bytes untouched.
type UploadedImage struct {
	ID         ImageID   `json:"id"`
	Name       string    `json:"name"`
	MediaType  string    `json:"mediaType"`
	Size       int       `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
	Data       []byte    `json:"-"`
}

// PreparedImage is the bounded-width re-encoding sent to the model. Never stored.
type PreparedImage struct {
	Data      []byte
	MediaType string
	Width     int
	Height    int
}

// Verdict enum
type Verdict string

const (
	VerdictPass      Verdict = "Pass"
	VerdictNeedsWork Verdict = "Needs Work"
	VerdictCritical  Verdict = "Critical"
)

// Summary block of an evaluation
type Summary struct {
	Verdict          Verdict `json:"verdict"`
	Intent           string  `json:"intent"`
	EmotionalContext string  `json:"emotionalContext"`
	Health           string  `json:"health"`
}

// Location is anchored in percent of the rendered image box, never in screen pixels.
type Location struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Description string  `json:"description"`
}

// Remediation holds the three fix strategies suggested for a trap.
type Remediation struct {
	QuickPivot         string `json:"quickPivot"`
	ArchitecturalSolve string `json:"architecturalSolve"`
	AIFix              string `json:"aiFix"`
}

// Trap is one detected usability anti-pattern.
type Trap struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Tenet       string      `json:"tenet"`
	Severity    Severity    `json:"severity"`
	Location    Location    `json:"location"`
	Evidence    string      `json:"evidence"`
	Diagnostic  string      `json:"diagnostic"`
	Remediation Remediation `json:"remediation"`
}

// Result is the parsed critique returned by the model.
type Result struct {
	Summary      Summary        `json:"summary"`
	Traps        []Trap         `json:"traps"`
	TenetScores  map[string]int `json:"tenetScores"`
	TenetWin     string         `json:"tenetWin"`
	Priorities   []string       `json:"priorities"`
	OverallScore int            `json:"overallScore"`
}
