package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/yoshihiko555/takt/internal/models"
)

// consoleRenderer prints a human-facing line for each engine event,
// color-coded when the destination is a terminal. It is a thin
// event->text transform, not a log sink: the NDJSON session writer is
// the durable record, this is progress feedback for an interactive
// user, split the same way as the durable NDJSON log vs. interactive
// stderr logger below.
type consoleRenderer struct {
	w       io.Writer
	colorOn bool
}

// newConsoleRenderer builds a renderer writing to w, enabling color
// only when w is a TTY (os.Stdout/os.Stderr checked via isatty).
func newConsoleRenderer(w io.Writer) *consoleRenderer {
	colorOn := false
	if f, ok := w.(*os.File); ok {
		colorOn = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &consoleRenderer{w: w, colorOn: colorOn}
}

func (c *consoleRenderer) paint(attr color.Attribute, s string) string {
	if !c.colorOn {
		return s
	}
	return color.New(attr).Sprint(s)
}

// Render prints one line for ev, matching the event kinds emitted by
// internal/engine.
func (c *consoleRenderer) Render(ev models.Event) {
	ts := time.Now().Format("15:04:05")
	switch ev.Type {
	case models.EventPieceStart:
		fmt.Fprintf(c.w, "[%s] %s piece=%v task=%v\n", ts, c.paint(color.FgCyan, "start"), ev.Data["piece"], ev.Data["task"])
	case models.EventMovementStart:
		fmt.Fprintf(c.w, "[%s] %s movement=%v iteration=%v persona=%v\n", ts, c.paint(color.FgBlue, "movement"), ev.Data["movement"], ev.Data["iteration"], ev.Data["persona"])
	case models.EventMovementComplete:
		fmt.Fprintf(c.w, "[%s] %s movement=%v next=%v via=%v\n", ts, c.paint(color.FgGreen, "complete"), ev.Data["movement"], ev.Data["nextMovement"], ev.Data["matchedRule"])
	case models.EventMovementReport:
		fmt.Fprintf(c.w, "[%s] %s movement=%v file=%v\n", ts, c.paint(color.FgMagenta, "report"), ev.Data["movement"], ev.Data["fileName"])
	case models.EventMovementBlocked:
		fmt.Fprintf(c.w, "[%s] %s movement=%v\n", ts, c.paint(color.FgYellow, "blocked"), ev.Data["movement"])
	case models.EventMovementUserInput:
		fmt.Fprintf(c.w, "[%s] %s movement=%v\n", ts, c.paint(color.FgYellow, "user_input"), ev.Data["movement"])
	case models.EventMovementLoopDetected:
		fmt.Fprintf(c.w, "[%s] %s movement=%v\n", ts, c.paint(color.FgYellow, "loop_warn"), ev.Data["movement"])
	case models.EventCycleTriggered:
		fmt.Fprintf(c.w, "[%s] %s cycle=%v\n", ts, c.paint(color.FgYellow, "cycle"), ev.Data["cycle"])
	case models.EventIterationLimit:
		fmt.Fprintf(c.w, "[%s] %s iteration=%v max=%v\n", ts, c.paint(color.FgRed, "iteration_limit"), ev.Data["iteration"], ev.Data["maxMovements"])
	case models.EventPieceComplete:
		fmt.Fprintf(c.w, "[%s] %s iteration=%v\n", ts, c.paint(color.FgGreen, "piece_complete"), ev.Data["iteration"])
	case models.EventPieceAbort:
		fmt.Fprintf(c.w, "[%s] %s reason=%v\n", ts, c.paint(color.FgRed, "piece_abort"), ev.Data["reason"])
	default:
		fmt.Fprintf(c.w, "[%s] %s\n", ts, ev.Type)
	}
}
