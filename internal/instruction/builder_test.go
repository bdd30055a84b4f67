package instruction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderBasicPlaceholders(t *testing.T) {
	out := Render("Task: {task}\nIteration {iteration}/{max_movements}", Context{
		Task:         "fix the bug",
		Iteration:    2,
		MaxMovements: 10,
	})
	assert.Equal(t, "Task: fix the bug\nIteration 2/10", out)
}

func TestRenderEscapesBracesInDynamicContent(t *testing.T) {
	out := Render("Task: {task}", Context{Task: "do {this} now"})
	assert.Equal(t, "Task: do ｛this｝ now", out)
	assert.NotContains(t, out, "{this}")
}

func TestRenderPreviousResponseOnlyWhenEnabled(t *testing.T) {
	out := Render("Prev: {previous_response}", Context{
		HasPreviousResponse: true,
		PreviousResponse:    "earlier output",
	})
	assert.Equal(t, "Prev: earlier output", out)

	out2 := Render("Prev: {previous_response}", Context{HasPreviousResponse: false})
	assert.Equal(t, "Prev: ", out2)
}

func TestRenderReportPlaceholder(t *testing.T) {
	out := Render("Write to {report:summary.md}", Context{ReportDir: "/runs/abc/reports"})
	assert.Equal(t, "Write to /runs/abc/reports/summary.md", out)
}

func TestRenderUserInputsJoined(t *testing.T) {
	out := Render("{user_inputs}", Context{UserInputs: []string{"a", "b"}})
	assert.Equal(t, "a\nb", out)
}
