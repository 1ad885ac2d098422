package prompt

import (
	"encoding/json"
	"strings"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
)

const contextPlaceholder = "{{CONTEXT}}"

const template = `You are a senior UX researcher reviewing a single screenshot of a product workflow.
Evaluate it against the Tenets and Traps framework and respond with ONE valid JSON object only.
Do not add commentary before or after the JSON.

## Context
{{CONTEXT}}

## Tenets
{{TENETS}}

## Traps
{{TRAPS}}

## Severity
{{SEVERITIES}}

## Rules
- Only report traps you can point at in the screenshot. Use trap names from the catalogue.
- location.x and location.y are percentages (0-100) of the image width and height, measured from the top-left corner, pointing at the centre of the problem.
- severity must be one of P1, P2, P3, P4, P5.
- summary.verdict must be one of "Pass", "Needs Work", "Critical".
- tenetScores has one entry per tenet, each an integer from 1 (poor) to 5 (excellent).
- overallScore is an integer from 1 to 10.
- priorities lists the trap ids to fix first, most important first.

## Output schema
{{SCHEMA}}`

var base = strings.NewReplacer(
	"{{TENETS}}", tenetList(),
	"{{TRAPS}}", trapList(),
	"{{SEVERITIES}}", severityList(),
	"{{SCHEMA}}", SchemaExample(),
).Replace(template)

// Template returns the instruction text with the context placeholder still in place.
func Template() string { return base }

// Build substitutes the context block into the fixed template.
// strings.Replace is used instead of fmt so that '%' in user text stays literal.
func Build(c evaluation.Context) string {
	return strings.Replace(base, contextPlaceholder, ContextBlock(c), 1)
}

// ContextBlock renders one labelled line per field. Workflow is always present,
// the rest only when non-empty.
func ContextBlock(c evaluation.Context) string {
	c = c.Trimmed()
	lines := []string{"Workflow: " + c.WorkflowName}
	if c.EpicDetails != "" {
		lines = append(lines, "Epic: "+c.EpicDetails)
	}
	if c.Persona != "" {
		lines = append(lines, "Persona: "+c.Persona)
	}
	if c.UseCase != "" {
		lines = append(lines, "Use Case: "+c.UseCase)
	}
	return strings.Join(lines, "\n")
}

func tenetList() string {
	var b strings.Builder
	for _, t := range evaluation.Tenets {
		b.WriteString("- " + t.Name + ": " + t.Description + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func trapList() string {
	var b strings.Builder
	for _, t := range evaluation.Traps {
		b.WriteString("- " + t.Name + " (" + t.Tenet + "): " + t.Description + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func severityList() string {
	var b strings.Builder
	for _, s := range evaluation.Severities {
		b.WriteString("- " + string(s.Code) + " " + s.Label + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// SchemaExample is a filled-in sample of the expected response shape.
func SchemaExample() string {
	scores := make(map[string]int, len(evaluation.Tenets))
	for _, t := range evaluation.Tenets {
		scores[t.Name] = 3
	}
	sample := evaluation.Result{
		Summary: evaluation.Summary{
			Verdict:          evaluation.VerdictNeedsWork,
			Intent:           "<what the screen is for>",
			EmotionalContext: "<how the persona likely feels here>",
			Health:           "<one sentence on overall usability>",
		},
		Traps: []evaluation.Trap{{
			ID:         "trap-1",
			Name:       "Invisible Element",
			Tenet:      "Understandable",
			Severity:   evaluation.SeverityP2,
			Location:   evaluation.Location{X: 42, Y: 18, Description: "<where on screen>"},
			Evidence:   "<what in the screenshot shows the problem>",
			Diagnostic: "<why it hurts the user>",
			Remediation: evaluation.Remediation{
				QuickPivot:         "<small change that helps now>",
				ArchitecturalSolve: "<deeper redesign>",
				AIFix:              "<instruction a code assistant could apply>",
			},
		}},
		TenetScores:  scores,
		TenetWin:     "<the tenet the design handles best>",
		Priorities:   []string{"trap-1"},
		OverallScore: 6,
	}
	b, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		// static data; never fails
		panic(err)
	}
	return string(b)
}
