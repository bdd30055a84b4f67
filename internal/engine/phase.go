package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yoshihiko555/takt/internal/filelock"
	"github.com/yoshihiko555/takt/internal/instruction"
	"github.com/yoshihiko555/takt/internal/models"
	"github.com/yoshihiko555/takt/internal/provider"
	"github.com/yoshihiko555/takt/internal/rule"
)

// runThreePhase drives a normal (non-parallel, non-arpeggio) movement
// through Phase 1 (execute), Phase 2 (report, if it declares output
// contracts), and Phase 3 (status judgment, if any rule needs tag
// detection), sharing one provider session across all three.
func (e *Engine) runThreePhase(ctx context.Context, state *models.PieceState, movement *models.Movement, task string) (models.Response, error) {
	if err := ctx.Err(); err != nil {
		return models.Response{}, err
	}

	movIter := state.IncrementMovementIteration(movement.Name)

	adapter, err := e.resolveAdapter(movement, movement.Persona)
	if err != nil {
		return models.Response{}, err
	}

	persona, err := e.resolvePersona(movement)
	if err != nil {
		return models.Response{}, err
	}

	var prevResponse string
	hasPrev := false
	if movement.PassPreviousResponse {
		if prev, ok := state.MovementOutputs[movement.Name]; ok {
			prevResponse = prev.Content
			hasPrev = true
		}
	}

	prompt := instruction.Render(movement.InstructionTemplate, instruction.Context{
		Task:                task,
		Iteration:           state.Iteration,
		MaxMovements:        e.Piece.MaxMovements,
		MovementIteration:   movIter,
		PreviousResponse:    prevResponse,
		HasPreviousResponse: hasPrev,
		UserInputs:          state.UserInputs,
		ReportDir:           e.Opts.ReportDir,
	})
	if persona.Body != "" {
		prompt = persona.Body + "\n\n" + prompt
	}

	e.Opts.Events.emit(models.EventPhaseStart, map[string]any{"movement": movement.Name, "phase": 1, "name": "execute", "instruction": prompt})

	allowWrite := movement.Edit && len(movement.OutputContracts) == 0

	resp1, err := adapter.Invoke(ctx, provider.Request{
		Persona:        movement.Persona,
		Prompt:         prompt,
		AllowWrite:     allowWrite,
		PermissionMode: movement.PermissionMode,
		Model:          firstNonEmpty(movement.Model, e.Opts.Model),
		AllowedTools:   persona.AllowedTools,
	})
	if err != nil {
		return models.Response{}, err
	}
	e.Opts.Events.emit(models.EventPhaseComplete, map[string]any{"movement": movement.Name, "phase": 1, "status": resp1.Status, "content": resp1.Content, "error": resp1.Error})

	if resp1.SessionID != "" {
		state.PersonaSessions[movement.Persona] = resp1.SessionID
	}
	writePreviousResponse(e.Opts.ContextDir, movement.Name, movIter, resp1.Content)

	if !resp1.IsDone() {
		return *resp1, nil
	}
	result := *resp1

	if err := ctx.Err(); err != nil {
		return models.Response{}, err
	}
	if len(movement.OutputContracts) > 0 {
		phase2, err := e.runPhase2(ctx, movement, movIter, resp1.SessionID)
		if err != nil {
			return models.Response{}, err
		}
		if !phase2.IsDone() {
			return *phase2, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return models.Response{}, err
	}
	tagContent, hasTag := "", false
	if rule.NeedsTagDetection(movement.Rules) {
		phase3, err := e.runPhase3(ctx, movement, resp1.SessionID)
		if err != nil {
			return models.Response{}, err
		}
		if !phase3.IsDone() {
			return *phase3, nil
		}
		tagContent, hasTag = phase3.Content, true
	}

	res, err := e.Rules.Evaluate(ctx, movement.Name, movement.Rules, result.Content, tagContent, hasTag)
	if err == nil {
		idx := res.Index
		result.MatchedRuleIndex = &idx
		result.MatchedRuleMethod = res.Method
	}

	return result, nil
}

// runPhase2 resumes the Phase-1 session with no Write tools and
// requires a JSON object mapping each declared output contract's file
// name to its content, then persists those files under the run's
// report directory.
func (e *Engine) runPhase2(ctx context.Context, movement *models.Movement, movIter int, sessionID string) (*models.Response, error) {
	adapter, err := e.resolveAdapter(movement, movement.Persona)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(movement.OutputContracts))
	for i, c := range movement.OutputContracts {
		names[i] = c.Name
	}
	prompt := fmt.Sprintf("Produce a JSON object mapping each of these file names to its full content: %s", strings.Join(names, ", "))

	e.Opts.Events.emit(models.EventPhaseStart, map[string]any{"movement": movement.Name, "phase": 2, "name": "report", "instruction": prompt})

	resp, err := adapter.Invoke(ctx, provider.Request{
		Persona:         movement.Persona,
		Prompt:          prompt,
		ResumeSessionID: sessionID,
		AllowWrite:      false,
	})
	if err != nil {
		return nil, err
	}
	e.Opts.Events.emit(models.EventPhaseComplete, map[string]any{"movement": movement.Name, "phase": 2, "status": resp.Status, "content": resp.Content, "error": resp.Error})

	if !resp.IsDone() {
		return resp, nil
	}

	var files map[string]string
	if err := json.Unmarshal([]byte(resp.Content), &files); err != nil {
		return &models.Response{
			Persona: movement.Persona,
			Status:  models.StatusError,
			Error:   "Report output must be a JSON object mapping file names to content",
		}, nil
	}

	declared := make(map[string]bool, len(movement.OutputContracts))
	for _, c := range movement.OutputContracts {
		declared[c.Name] = true
	}
	for name := range files {
		if !declared[name] {
			return &models.Response{
				Persona: movement.Persona,
				Status:  models.StatusError,
				Error:   fmt.Sprintf("Report output must be a JSON object mapping declared file names to content (unknown file %q)", name),
			}, nil
		}
	}
	for name := range declared {
		if _, ok := files[name]; !ok {
			return &models.Response{
				Persona: movement.Persona,
				Status:  models.StatusError,
				Error:   fmt.Sprintf("Report output must be a JSON object mapping declared file names to content (missing file %q)", name),
			}, nil
		}
	}

	for name, content := range files {
		if err := e.writeReportFile(name, movIter, content); err != nil {
			return &models.Response{Persona: movement.Persona, Status: models.StatusError, Error: err.Error()}, nil
		}
		e.Opts.Events.emit(models.EventMovementReport, map[string]any{
			"movement": movement.Name,
			"fileName": name,
			"filePath": filepath.Join(e.Opts.ReportDir, name),
		})
	}

	return resp, nil
}

// writeReportFile resolves name against the run's report directory,
// rejecting any path that escapes it, and appends a per-iteration
// section to the file (creating it if this is the first write).
func (e *Engine) writeReportFile(name string, movIter int, content string) error {
	dest := filepath.Join(e.Opts.ReportDir, name)
	cleanDir := filepath.Clean(e.Opts.ReportDir) + string(filepath.Separator)
	if !strings.HasPrefix(filepath.Clean(dest)+string(filepath.Separator), cleanDir) && filepath.Clean(dest) != filepath.Clean(e.Opts.ReportDir) {
		return fmt.Errorf("report file %q escapes the report directory", name)
	}

	section := fmt.Sprintf("## Iteration %d\n\n%s\n", movIter, content)

	existing, err := os.ReadFile(dest)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	var full string
	if len(existing) > 0 {
		full = string(existing) + "\n" + section
	} else {
		full = section
	}

	return filelock.AtomicWrite(dest, []byte(full))
}

// runPhase3 resumes the session with no tools and asks for a status
// tag, feeding the reply into the rule evaluator as tagContent.
func (e *Engine) runPhase3(ctx context.Context, movement *models.Movement, sessionID string) (*models.Response, error) {
	adapter, err := e.resolveAdapter(movement, movement.Persona)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("State which condition applies by replying with exactly one tag, e.g. [%s:1].", strings.ToUpper(movement.Name))

	e.Opts.Events.emit(models.EventPhaseStart, map[string]any{"movement": movement.Name, "phase": 3, "name": "judge", "instruction": prompt})

	resp, err := adapter.Invoke(ctx, provider.Request{
		Persona:         movement.Persona,
		Prompt:          prompt,
		ResumeSessionID: sessionID,
		AllowWrite:      false,
	})
	if err != nil {
		return nil, err
	}
	e.Opts.Events.emit(models.EventPhaseComplete, map[string]any{"movement": movement.Name, "phase": 3, "status": resp.Status, "content": resp.Content, "error": resp.Error})
	return resp, nil
}

func (e *Engine) resolvePersona(movement *models.Movement) (*piecePersona, error) {
	if e.Personas == nil {
		return &piecePersona{}, nil
	}
	p, err := e.Personas.LoadPersona(movement.Persona)
	if err != nil {
		return &piecePersona{}, nil
	}
	return &piecePersona{Body: p.Body, AllowedTools: p.AllowedTools}, nil
}

// piecePersona is the subset of piece.Persona the engine needs,
// decoupled so tests can stub persona resolution without a loader.
type piecePersona struct {
	Body         string
	AllowedTools []string
}

// writePreviousResponse persists a snapshot of movement's Phase-1
// content under the run's pre-created context directory (contextDir is
// dirs.Context from the session package, already
// .takt/runs/<slug>/context/previous_responses).
func writePreviousResponse(contextDir, movement string, movIter int, content string) {
	if contextDir == "" {
		return
	}
	path := filepath.Join(contextDir, fmt.Sprintf("%s-%d.md", movement, movIter))
	if err := os.MkdirAll(contextDir, 0755); err != nil {
		return
	}
	_ = os.WriteFile(path, []byte(content), 0644)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
