// Package prompt implements the Prompt Template Engine (spec.md §4.6) and
// the Prompt Cache (spec.md §4.7). Grounded on itsneelabh/gomind's
// orchestration.TemplatePromptBuilder (orchestration/template_prompt_builder.go)
// for the load-from-file-or-inline / fallback-on-error shape, but the
// substitution language itself is spec.md's own ${NAME}/${NAME | default: …}
// syntax rather than Go's text/template, since the spec requires validated
// required-section and required-variable presence checks before render.
package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kestrelcode/auditcore/internal/core"
)

// requiredSections must appear verbatim (literal substring match) in every
// template (spec.md §4.6).
var requiredSections = []string{
	"Identity & Role Definition",
	"Audit Workflow",
	"Multi-Dimensional Quality Assessment",
	"Intelligent Completion Criteria",
	"Structured Output Format",
}

// requiredVariables must be referenced (as ${NAME} or ${NAME | default: …})
// somewhere in the template (spec.md §4.6).
var requiredVariables = []string{
	"IDENTITY_NAME",
	"IDENTITY_ROLE",
	"IDENTITY_STANCE",
	"MODEL_CONTEXT_TOKENS",
	"CURRENT_LOOP",
	"MAX_ITERATIONS",
}

var variablePattern = regexp.MustCompile(`\$\{\s*([A-Za-z0-9_]+)\s*(\|\s*default:\s*([^}]*))?\}`)
var unresolvedPattern = regexp.MustCompile(`\$\{[^}]*\}`)

// Template is one parsed, validated prompt template.
type Template struct {
	raw string
}

// Parse validates required sections and required variable references,
// returning *core.AuditError wrapping core.ErrTemplateError on the first
// violation found (spec.md §4.6: "Missing required section ⇒ fatal
// template error").
func Parse(content string) (*Template, error) {
	for _, section := range requiredSections {
		if !strings.Contains(content, section) {
			return nil, core.NewAuditError("prompt.Parse", "TemplateError", "Major", false,
				fmt.Sprintf("add the required section heading %q", section), core.ErrTemplateError)
		}
	}
	for _, name := range requiredVariables {
		if !strings.Contains(content, "${"+name) {
			return nil, core.NewAuditError("prompt.Parse", "TemplateError", "Major", false,
				fmt.Sprintf("reference required variable ${%s}", name), core.ErrTemplateError)
		}
	}
	return &Template{raw: content}, nil
}

// RenderResult is the rendered prompt plus any soft warnings collected
// along the way (unresolved variables, length outside the recommended
// band) — none of which are fatal (spec.md §4.6).
type RenderResult struct {
	Prompt   string
	Warnings []string
}

// Render substitutes every ${NAME} / ${NAME | default: literal} occurrence
// from vars, applying spec.md §4.6's substitution rules: primitives render
// canonically, []string and []interface{} values join with ", ", and
// everything else (other slice types included) renders as pretty JSON.
func (t *Template) Render(vars map[string]interface{}) RenderResult {
	out := variablePattern.ReplaceAllStringFunc(t.raw, func(match string) string {
		sub := variablePattern.FindStringSubmatch(match)
		name, hasDefault, def := sub[1], sub[2] != "", strings.TrimSpace(sub[3])
		if v, ok := vars[name]; ok {
			return renderValue(v)
		}
		if hasDefault {
			return def
		}
		return match
	})

	var warnings []string
	if matches := unresolvedPattern.FindAllString(out, -1); len(matches) > 0 {
		sort.Strings(matches)
		warnings = append(warnings, fmt.Sprintf("unresolved template variables: %s", strings.Join(matches, ", ")))
	}
	if n := len(out); n < 1000 || n > 50000 {
		warnings = append(warnings, fmt.Sprintf("rendered prompt length %d is outside the recommended 1000-50000 character band", n))
	}

	return RenderResult{Prompt: out, Warnings: warnings}
}

func renderValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case []interface{}:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = fmt.Sprintf("%v", e)
		}
		return strings.Join(parts, ", ")
	case int, int32, int64, float32, float64, bool:
		return fmt.Sprintf("%v", val)
	default:
		b, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
