package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/yoshihiko555/takt/internal/models"
)

// subResult carries one sub-movement's outcome back to the parent's
// aggregation step.
type subResult struct {
	name     string
	response models.Response
	err      error
	sessions map[string]string
}

// runParallel fans a movement's Parallel sub-movements out concurrently,
// each as its own three-phase execution against a cloned state, then
// aggregates their matched conditions against the parent's any/all
// rules.
func (e *Engine) runParallel(ctx context.Context, state *models.PieceState, movement *models.Movement, task string) (models.Response, error) {
	subs := movement.Parallel
	results := make([]subResult, len(subs))

	var wg sync.WaitGroup
	for i := range subs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := &subs[i]

			// Each sub-movement gets its own copy of the mutable parts of
			// state (per spec.md §4.4: "sub-movements receive a copy of
			// the immutable parts and write results back only after
			// join"), so concurrent goroutines never share a map.
			subSessions := make(map[string]string, len(state.PersonaSessions))
			for k, v := range state.PersonaSessions {
				subSessions[k] = v
			}
			userInputs := make([]string, len(state.UserInputs))
			copy(userInputs, state.UserInputs)

			subState := &models.PieceState{
				PieceName:          state.PieceName,
				CurrentMovement:    sub.Name,
				Iteration:          state.Iteration,
				MovementOutputs:    map[string]models.Response{},
				UserInputs:         userInputs,
				PersonaSessions:    subSessions,
				MovementIterations: map[string]int{},
				Status:             models.PieceRunning,
			}

			resp, err := e.runThreePhase(ctx, subState, sub, task)
			if err != nil {
				resp = models.Response{Persona: sub.Persona, Status: models.StatusError, Content: "", Error: err.Error()}
			}
			results[i] = subResult{name: sub.Name, response: resp, err: err, sessions: subSessions}
		}(i)
	}
	wg.Wait()

	allFailed := true
	for _, r := range results {
		state.RecordOutput(r.name, r.response)
		for persona, sid := range r.sessions {
			state.PersonaSessions[persona] = sid
		}
		if r.err == nil && !r.response.IsError() {
			allFailed = false
		}
	}
	if allFailed {
		return models.Response{}, fmt.Errorf("parallel movement %s: all sub-movements failed", movement.Name)
	}

	conditions := make([]string, 0, len(results))
	for _, r := range results {
		if r.err != nil || r.response.IsError() {
			continue
		}
		if r.response.MatchedRuleIndex == nil {
			continue
		}
		sub, _ := findSub(subs, r.name)
		if sub == nil {
			continue
		}
		conditions = append(conditions, sub.Rules[*r.response.MatchedRuleIndex].Condition)
	}

	for i, rule := range movement.Rules {
		if !rule.IsAggregate {
			continue
		}
		if aggregateMatches(rule, conditions) {
			idx := i
			return models.Response{
				Persona:           movement.Persona,
				Status:            models.StatusDone,
				Content:           joinConditions(conditions),
				MatchedRuleIndex:  &idx,
				MatchedRuleMethod: models.MethodAggregate,
			}, nil
		}
	}

	return models.Response{}, fmt.Errorf("parallel movement %s: no aggregate rule matched", movement.Name)
}

func findSub(subs []models.Movement, name string) (*models.Movement, bool) {
	for i := range subs {
		if subs[i].Name == name {
			return &subs[i], true
		}
	}
	return nil, false
}

// aggregateMatches evaluates one any/all rule against the conditions
// its successful sub-movements actually resolved to.
func aggregateMatches(rule models.Rule, conditions []string) bool {
	switch rule.AggregateType {
	case models.AggregateAny:
		for _, c := range conditions {
			if c == rule.AggregateText {
				return true
			}
		}
		return false
	case models.AggregateAll:
		if len(conditions) == 0 {
			return false
		}
		for _, c := range conditions {
			if c != rule.AggregateText {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func joinConditions(conditions []string) string {
	out := ""
	for i, c := range conditions {
		if i > 0 {
			out += "; "
		}
		out += c
	}
	return out
}
