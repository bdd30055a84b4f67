// Package engine implements the Piece Engine: the movement state
// machine that drives a piece's graph of movements to completion,
// dispatching each to the three-phase executor, the parallel runner,
// or the arpeggio runner, and routing between movements via the rule
// evaluator.
package engine

import (
	"context"
	"fmt"

	"github.com/yoshihiko555/takt/internal/models"
	"github.com/yoshihiko555/takt/internal/piece"
	"github.com/yoshihiko555/takt/internal/provider"
	"github.com/yoshihiko555/takt/internal/rule"
)

// UserInputRequest is passed to Options.OnUserInput when a movement
// reports status=blocked.
type UserInputRequest struct {
	Movement string
	Response models.Response
	Prompt   string
}

// IterationLimitRequest is passed to Options.OnIterationLimit when the
// iteration counter reaches MaxMovements.
type IterationLimitRequest struct {
	CurrentIteration int
	MaxMovements     int
	CurrentMovement  string
}

// Options configures one Run call. Every callback is optional; a nil
// OnUserInput aborts on the first blocked response, and a nil
// OnIterationLimit aborts on the first iteration-limit hit.
type Options struct {
	ProjectCwd        string
	WorkDir           string
	ReportDir         string
	ContextDir        string
	DefaultProvider   provider.Kind
	Model             string
	PersonaProviders  map[string]provider.Kind
	InitialSessions   map[string]string
	InitialUserInputs []string

	OnUserInput      func(UserInputRequest) (*string, error)
	OnIterationLimit func(IterationLimitRequest) (extendBy int, ok bool)

	StartMovement string
	RetryNote     string

	LoopDetector  models.LoopDetectorConfig
	CyclePatterns []models.CyclePattern

	Events *Broadcaster
}

// Engine drives one piece's graph of movements for one task.
type Engine struct {
	Piece    *models.Piece
	Adapters map[provider.Kind]provider.Adapter
	Personas *piece.Loader
	Rules    *rule.Evaluator
	Opts     Options

	loopDetector  *LoopDetector
	cycleDetector *CycleDetector
}

// New builds an Engine for p, resolving provider calls through
// adapters (keyed by Kind) and personas through personas.
func New(p *models.Piece, adapters map[provider.Kind]provider.Adapter, personas *piece.Loader, opts Options) *Engine {
	conductorAdapter := adapters[opts.DefaultProvider]
	if conductorAdapter == nil {
		for _, a := range adapters {
			conductorAdapter = a
			break
		}
	}

	return &Engine{
		Piece:         p,
		Adapters:      adapters,
		Personas:      personas,
		Rules:         rule.New(conductorAdapter),
		Opts:          opts,
		loopDetector:  NewLoopDetector(opts.LoopDetector),
		cycleDetector: NewCycleDetector(opts.CyclePatterns),
	}
}

// Run drives the piece to completion for task, returning the final
// state. ctx is the cooperative abort signal: it is polled between
// movements, phases, and sub-movements/batches; once canceled the
// engine stops starting new work and aborts with "Aborted by signal".
func (e *Engine) Run(ctx context.Context, task string) (*models.PieceState, error) {
	start := e.Opts.StartMovement
	if start == "" {
		start = e.Piece.InitialMovement
	}

	state := models.NewPieceState(e.Piece.Name, start)
	for persona, sid := range e.Opts.InitialSessions {
		state.PersonaSessions[persona] = sid
	}
	for _, ui := range e.Opts.InitialUserInputs {
		state.AppendUserInput(ui)
	}

	maxMovements := e.Piece.MaxMovements

	e.Opts.Events.emit(models.EventPieceStart, map[string]any{
		"piece":           e.Piece.Name,
		"task":            task,
		"maxMovements":    maxMovements,
		"initialMovement": start,
	})

	for {
		if err := ctx.Err(); err != nil {
			return e.abort(state, "Aborted by signal")
		}

		if state.Iteration >= maxMovements {
			req := IterationLimitRequest{
				CurrentIteration: state.Iteration,
				MaxMovements:     maxMovements,
				CurrentMovement:  state.CurrentMovement,
			}
			extend, ok := 0, false
			if e.Opts.OnIterationLimit != nil {
				extend, ok = e.Opts.OnIterationLimit(req)
			}
			if ok && extend > 0 {
				maxMovements += extend
			} else {
				e.Opts.Events.emit(models.EventIterationLimit, map[string]any{
					"iteration":    state.Iteration,
					"maxMovements": maxMovements,
				})
				return e.abort(state, "Max iterations")
			}
		}

		if shouldAbort, shouldWarn := e.loopDetector.Feed(state.CurrentMovement); shouldAbort {
			return e.abort(state, fmt.Sprintf("Loop detected in %s", state.CurrentMovement))
		} else if shouldWarn {
			e.Opts.Events.emit(models.EventMovementLoopDetected, map[string]any{"movement": state.CurrentMovement})
		}

		if cyclePattern, triggered := e.cycleDetector.Feed(state.CurrentMovement); triggered {
			e.Opts.Events.emit(models.EventCycleTriggered, map[string]any{"cycle": cyclePattern.Cycle})
			next, err := e.routeCycleTrigger(state, cyclePattern)
			if err != nil {
				return e.abort(state, err.Error())
			}
			state.CurrentMovement = next
			state.Iteration++
			continue
		}

		movement, ok := e.Piece.FindMovement(state.CurrentMovement)
		if !ok {
			return e.abort(state, fmt.Sprintf("movement %q not found", state.CurrentMovement))
		}

		resp, err := e.dispatch(ctx, state, movement, task)
		if ctx.Err() != nil {
			return e.abort(state, "Aborted by signal")
		}
		if err != nil {
			return e.abort(state, err.Error())
		}
		state.RecordOutput(movement.Name, resp)

		switch {
		case resp.IsError():
			return e.abort(state, resp.Error)

		case resp.IsBlocked():
			newInput, err := e.handleBlocked(state, movement.Name, resp)
			if err != nil {
				return e.abort(state, err.Error())
			}
			if newInput == nil {
				return e.abort(state, resp.Content)
			}
			// Retry the same movement from a fresh Phase 1.
			continue

		default: // done
			if resp.MatchedRuleIndex == nil {
				return e.abort(state, fmt.Sprintf("No matching rule for movement %s", movement.Name))
			}
			matched := movement.Rules[*resp.MatchedRuleIndex]

			e.Opts.Events.emit(models.EventMovementComplete, map[string]any{
				"movement":     movement.Name,
				"nextMovement": matched.Next,
				"matchedRule":  resp.MatchedRuleMethod,
			})

			switch matched.Next {
			case models.Complete:
				state.Status = models.PieceCompleted
				e.Opts.Events.emit(models.EventPieceComplete, map[string]any{"status": "completed", "iteration": state.Iteration})
				return state, nil
			case models.Abort, "":
				return e.abort(state, "Rule routed to ABORT")
			default:
				state.CurrentMovement = matched.Next
			}
		}

		state.Iteration++
	}
}

func (e *Engine) abort(state *models.PieceState, reason string) (*models.PieceState, error) {
	state.Status = models.PieceAborted
	state.AbortReason = reason
	e.Opts.Events.emit(models.EventPieceAbort, map[string]any{"reason": reason})
	return state, fmt.Errorf("piece %s: %s", state.PieceName, reason)
}

// handleBlocked implements the §4.7 blocked-retry contract: a non-nil
// returned input means the caller should loop the same movement.
func (e *Engine) handleBlocked(state *models.PieceState, movementName string, resp models.Response) (*string, error) {
	e.Opts.Events.emit(models.EventMovementBlocked, map[string]any{"movement": movementName, "response": resp})

	if e.Opts.OnUserInput == nil {
		return nil, nil
	}

	prompt := extractBlockedPrompt(resp.Content)
	input, err := e.Opts.OnUserInput(UserInputRequest{Movement: movementName, Response: resp, Prompt: prompt})
	if err != nil {
		return nil, err
	}
	if input == nil {
		return nil, nil
	}

	state.AppendUserInput(*input)
	e.Opts.Events.emit(models.EventMovementUserInput, map[string]any{"movement": movementName, "userInput": *input})
	return input, nil
}

// routeCycleTrigger resolves which movement a detected cycle routes to,
// reusing the rule already matched the last time the triggering
// movement completed.
func (e *Engine) routeCycleTrigger(state *models.PieceState, pattern models.CyclePattern) (string, error) {
	last := state.CurrentMovement
	movement, ok := e.Piece.FindMovement(last)
	if !ok {
		return "", fmt.Errorf("cycle trigger: movement %q not found", last)
	}
	resp := state.MovementOutputs[last]
	if resp.MatchedRuleIndex == nil {
		return "", fmt.Errorf("cycle trigger: no matching rule for movement %s", last)
	}
	next := movement.Rules[*resp.MatchedRuleIndex].Next
	if next == models.Abort || next == "" {
		return "", fmt.Errorf("cycle trigger: rule routed to ABORT")
	}
	if next == models.Complete {
		return "", fmt.Errorf("cycle trigger: rule routed to COMPLETE")
	}
	return next, nil
}

// resolveAdapter picks the provider adapter for movement/persona,
// applying movement > project/global default > personaProviders
// precedence, with personaProviders winning last.
func (e *Engine) resolveAdapter(movement *models.Movement, persona string) (provider.Adapter, error) {
	kind := e.Opts.DefaultProvider
	if movement.Provider != "" {
		kind = provider.Kind(movement.Provider)
	}
	if pk, ok := e.Opts.PersonaProviders[persona]; ok {
		kind = pk
	}

	adapter, ok := e.Adapters[kind]
	if !ok {
		return nil, fmt.Errorf("engine: no adapter registered for provider %q", kind)
	}
	return adapter, nil
}

func (e *Engine) dispatch(ctx context.Context, state *models.PieceState, movement *models.Movement, task string) (models.Response, error) {
	e.Opts.Events.emit(models.EventMovementStart, map[string]any{
		"movement":  movement.Name,
		"iteration": state.Iteration,
		"persona":   movement.Persona,
	})

	switch {
	case movement.IsArpeggio():
		return e.runArpeggio(ctx, state, movement, task)
	case movement.IsParallel():
		return e.runParallel(ctx, state, movement, task)
	default:
		return e.runThreePhase(ctx, state, movement, task)
	}
}
