// Package instruction implements the Instruction Builder: rendering the Phase-1 prompt from a movement's
// instruction_template with piece/movement/iteration context. The Phase-2 and Phase-3 prompts are built
// in internal/engine.
package instruction

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Context carries every placeholder value a movement's template may
// reference.
type Context struct {
	Task              string
	Iteration         int
	MaxMovements      int
	MovementIteration int
	PreviousResponse  string
	HasPreviousResponse bool
	UserInputs        []string
	ReportDir         string
}

// Render substitutes the template's placeholders into tmpl.
// Dynamic values are escaped before substitution so that braces coming
// from task content or prior responses can never be mistaken for a
// second round of placeholder expansion.
func Render(tmpl string, ctx Context) string {
	out := tmpl

	out = replaceAll(out, "{task}", escape(ctx.Task))
	out = replaceAll(out, "{iteration}", strconv.Itoa(ctx.Iteration))
	out = replaceAll(out, "{max_movements}", strconv.Itoa(ctx.MaxMovements))
	out = replaceAll(out, "{movement_iteration}", strconv.Itoa(ctx.MovementIteration))
	out = replaceAll(out, "{report_dir}", escape(ctx.ReportDir))

	if ctx.HasPreviousResponse {
		out = replaceAll(out, "{previous_response}", escape(ctx.PreviousResponse))
	} else {
		out = replaceAll(out, "{previous_response}", "")
	}

	out = replaceAll(out, "{user_inputs}", escape(strings.Join(ctx.UserInputs, "\n")))

	out = expandReportPlaceholders(out, ctx.ReportDir)

	return out
}

// expandReportPlaceholders rewrites every `{report:<filename>}`
// placeholder to `<reportDir>/<filename>`.
func expandReportPlaceholders(s, reportDir string) string {
	const prefix = "{report:"
	var b strings.Builder
	rest := s
	for {
		idx := strings.Index(rest, prefix)
		if idx < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[idx:], "}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += idx

		b.WriteString(rest[:idx])
		filename := rest[idx+len(prefix) : end]
		b.WriteString(filepath.Join(reportDir, filename))
		rest = rest[end+1:]
	}
	return b.String()
}

// escape maps literal "{" and "}" in dynamic content to fullwidth
// equivalents so it can never be re-expanded as a placeholder.
func escape(s string) string {
	s = strings.ReplaceAll(s, "{", "｛")
	s = strings.ReplaceAll(s, "}", "｝")
	return s
}

func replaceAll(s, old, new string) string {
	return strings.ReplaceAll(s, old, new)
}
