package prompt

import (
	"strings"
	"testing"

	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTemplate = `
## Identity & Role Definition
${IDENTITY_NAME} / ${IDENTITY_ROLE} / ${IDENTITY_STANCE}
Tokens: ${MODEL_CONTEXT_TOKENS}

## Audit Workflow
Loop ${CURRENT_LOOP} of ${MAX_ITERATIONS}

## Multi-Dimensional Quality Assessment
${QUALITY_DIMENSIONS_RENDERED | default: none}

## Intelligent Completion Criteria
${COMPLETION_TIERS_RENDERED | default: none}

## Structured Output Format
JSON review.
` + strings.Repeat("padding to clear the 1000 character minimum. ", 20)

func TestParse_RejectsMissingSection(t *testing.T) {
	_, err := Parse("## Audit Workflow\n${IDENTITY_NAME}${IDENTITY_ROLE}${IDENTITY_STANCE}${MODEL_CONTEXT_TOKENS}${CURRENT_LOOP}${MAX_ITERATIONS}")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTemplateError)
}

func TestParse_RejectsMissingVariable(t *testing.T) {
	content := strings.Join([]string{
		"## Identity & Role Definition",
		"## Audit Workflow",
		"## Multi-Dimensional Quality Assessment",
		"## Intelligent Completion Criteria",
		"## Structured Output Format",
	}, "\n")
	_, err := Parse(content)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTemplateError)
}

func TestParse_AcceptsValidTemplate(t *testing.T) {
	tmpl, err := Parse(validTemplate)
	require.NoError(t, err)
	assert.NotNil(t, tmpl)
}

func TestRender_SubstitutesVariables(t *testing.T) {
	tmpl, err := Parse(validTemplate)
	require.NoError(t, err)

	result := tmpl.Render(map[string]interface{}{
		"IDENTITY_NAME":         "Auditor",
		"IDENTITY_ROLE":         "reviewer",
		"IDENTITY_STANCE":       "adversarial",
		"MODEL_CONTEXT_TOKENS":  8000,
		"CURRENT_LOOP":          3,
		"MAX_ITERATIONS":        25,
	})

	assert.Contains(t, result.Prompt, "Auditor / reviewer / adversarial")
	assert.Contains(t, result.Prompt, "Tokens: 8000")
	assert.Contains(t, result.Prompt, "Loop 3 of 25")
}

func TestRender_UsesDefaultWhenVariableMissing(t *testing.T) {
	tmpl, err := Parse(validTemplate)
	require.NoError(t, err)

	result := tmpl.Render(map[string]interface{}{
		"IDENTITY_NAME":        "Auditor",
		"IDENTITY_ROLE":        "reviewer",
		"IDENTITY_STANCE":      "adversarial",
		"MODEL_CONTEXT_TOKENS": 8000,
		"CURRENT_LOOP":         3,
		"MAX_ITERATIONS":       25,
	})
	assert.Contains(t, result.Prompt, "none") // QUALITY_DIMENSIONS_RENDERED default
}

func TestRender_WarnsOnUnresolvedVariable(t *testing.T) {
	tmpl, err := Parse(validTemplate + "\n${UNKNOWN_VAR}")
	require.NoError(t, err)
	result := tmpl.Render(map[string]interface{}{
		"IDENTITY_NAME": "A", "IDENTITY_ROLE": "r", "IDENTITY_STANCE": "s",
		"MODEL_CONTEXT_TOKENS": 1, "CURRENT_LOOP": 1, "MAX_ITERATIONS": 1,
	})
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "UNKNOWN_VAR") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestEngine_RejectsMissingTemplate(t *testing.T) {
	e, err := NewEngine("/nonexistent/path/template.txt", nil)
	require.Error(t, err)
	_ = e
}

func TestEngine_UsesFallbackWhenNoPathGiven(t *testing.T) {
	e, err := NewEngine("", nil)
	require.NoError(t, err)
	assert.True(t, e.UsingFallback())

	result := e.Render(map[string]interface{}{
		"IDENTITY_NAME": "Auditor", "CURRENT_LOOP": 1, "MAX_ITERATIONS": 25,
	})
	assert.Contains(t, result.Prompt, "Identity & Role Definition")
}
