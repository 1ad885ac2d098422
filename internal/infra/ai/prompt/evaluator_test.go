package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
)

func TestContextBlockOmitsEmptyFields(t *testing.T) {
	got := ContextBlock(evaluation.Context{WorkflowName: "  Checkout  ", Persona: "Busy parent"})
	assert.Equal(t, "Workflow: Checkout\nPersona: Busy parent", got)

	full := ContextBlock(evaluation.Context{
		WorkflowName: "Checkout",
		EpicDetails:  "Guest checkout",
		Persona:      "Busy parent",
		UseCase:      "Buy one item fast",
	})
	assert.Equal(t, "Workflow: Checkout\nEpic: Guest checkout\nPersona: Busy parent\nUse Case: Buy one item fast", full)
}

func TestBuildSubstitutesContextOnce(t *testing.T) {
	p := Build(evaluation.Context{WorkflowName: "100% {{CONTEXT}} signup"})
	assert.Contains(t, p, "Workflow: 100% {{CONTEXT}} signup")
	assert.NotContains(t, p, "%!")
	assert.Equal(t, 1, strings.Count(p, "{{CONTEXT}}"))
	assert.NotContains(t, p, "{{TENETS}}")
	assert.NotContains(t, p, "{{SCHEMA}}")
}

func TestTemplateListsCatalogue(t *testing.T) {
	tpl := Template()
	assert.Contains(t, tpl, contextPlaceholder)
	for _, tn := range evaluation.Tenets {
		assert.Contains(t, tpl, tn.Name)
	}
	for _, tr := range evaluation.Traps {
		assert.Contains(t, tpl, tr.Name)
	}
	for _, s := range evaluation.Severities {
		assert.Contains(t, tpl, string(s.Code))
	}
}

func TestSchemaExampleParses(t *testing.T) {
	res, err := evaluation.ParseResult(SchemaExample())
	require.NoError(t, err)
	assert.Equal(t, evaluation.VerdictNeedsWork, res.Summary.Verdict)
	require.Len(t, res.Traps, 1)
	assert.Equal(t, evaluation.SeverityP2, res.Traps[0].Severity)
	assert.Len(t, res.TenetScores, len(evaluation.Tenets))
}
