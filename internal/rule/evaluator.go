// Package rule implements the Rule Evaluator: deciding, for a
// completed movement, which of its declared rules matched and
// therefore which movement runs next.
//
// A movement with exactly one rule always takes it (auto-select).
// With more than one rule, resolution runs through successive stages,
// each cheaper and more deterministic than the next, stopping at the
// first that produces a usable answer:
//
//  1. Phase-1 tag scan: the agent's Phase-1 content already contains a
//     `[MOVEMENT:N]` (or `[JUDGE:N]`) tag naming which rule applies.
//  2. Phase-3 tag scan: when the movement has any plain (non-ai,
//     non-aggregate) rule and a separate Phase-3 judge call produced
//     its own tagged content, scan that instead.
//  3. Structured output: for movements with at least one ai(...) rule,
//     ask the conductor persona for a JSON `{"step": N}` answer.
//  4. A second, untagged judge call, scanned for a tag the same way as
//     stage 2.
//  5. A full AI judge pass: present every plain/ai condition as a
//     numbered list and ask the conductor persona to return
//     `{"matched_index": N}`.
//  6. A last-resort tag scan over the judge's free-text reply.
//
// Any stage that would leave the caller deciding next-movement with no
// usable signal at all returns ErrNoMatch, which the piece engine
// currently treats as a fatal run condition.
package rule

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/yoshihiko555/takt/internal/models"
	"github.com/yoshihiko555/takt/internal/provider"
)

var (
	// ErrNoRules is returned for a movement with no rules declared.
	ErrNoRules = errors.New("rule: movement has no rules")
	// ErrNoMatch is returned when every resolution stage is exhausted
	// without identifying a rule.
	ErrNoMatch = errors.New("rule: no rule matched")
)

// Result is the outcome of resolving a movement's rules.
type Result struct {
	// Index is the zero-based index into the movement's Rules slice.
	Index int
	// Method records which stage produced Index.
	Method models.RuleMatchMethod
}

const conductorPersona = "conductor"

// stepSchema asks the conductor for a 1-based rule step number.
const stepSchema = `{"type":"object","properties":{"step":{"type":"integer"}},"required":["step"]}`

// matchSchema asks the conductor to pick a condition from a numbered list.
const matchSchema = `{"type":"object","properties":{"matched_index":{"type":"integer"}},"required":["matched_index"]}`

// Evaluator resolves a movement's matching rule, calling out to a
// provider adapter as the conductor persona when tag scanning alone
// can't decide.
type Evaluator struct {
	Adapter provider.Adapter
}

// New builds an Evaluator that asks adapter for any judge calls it needs.
func New(adapter provider.Adapter) *Evaluator {
	return &Evaluator{Adapter: adapter}
}

// Evaluate resolves which of rules matched for movementName, given its
// Phase-1 content and, when present, separate Phase-3 tagged content.
func (e *Evaluator) Evaluate(ctx context.Context, movementName string, rules []models.Rule, content string, tagContent string, hasTagContent bool) (*Result, error) {
	if len(rules) == 0 {
		return nil, ErrNoRules
	}
	if len(rules) == 1 {
		return &Result{Index: 0, Method: models.MethodAutoSelect}, nil
	}

	if n, ok := scanTag(content, movementName); ok && inRange(n, rules) {
		return &Result{Index: n - 1, Method: models.MethodPhase1Tag}, nil
	}

	if needsTagDetection(rules) && hasTagContent {
		if n, ok := scanTag(tagContent, movementName); ok && inRange(n, rules) {
			return &Result{Index: n - 1, Method: models.MethodPhase3Tag}, nil
		}
	}

	if !hasAIRule(rules) || e.Adapter == nil {
		return nil, ErrNoMatch
	}

	if n, ok, err := e.judgeStep(ctx, content); err == nil && ok && inRange(n, rules) {
		return &Result{Index: n - 1, Method: models.MethodStructuredOutput}, nil
	}

	if n, ok, err := e.judgeTag(ctx, movementName, content); err == nil && ok && inRange(n, rules) {
		return &Result{Index: n - 1, Method: models.MethodPhase3Tag}, nil
	}

	reply, conds, err := e.judgeConditions(ctx, movementName, content, rules)
	if err == nil {
		if n, ok := gjsonMatchedIndex(reply); ok && inRange(n, rules) {
			return &Result{Index: n - 1, Method: models.MethodAIJudge}, nil
		}
		if n, ok := scanTag(reply, movementName); ok && inRange(n, rules) {
			return &Result{Index: n - 1, Method: models.MethodPhase3Tag}, nil
		}
		_ = conds
	}

	return nil, ErrNoMatch
}

func inRange(n int, rules []models.Rule) bool { return n >= 1 && n <= len(rules) }

// NeedsTagDetection reports whether any of rules is a plain condition
// (neither ai(...) nor an aggregate any/all), meaning Phase 3's status
// judgment call is worth making for this movement.
func NeedsTagDetection(rules []models.Rule) bool {
	return needsTagDetection(rules)
}

func needsTagDetection(rules []models.Rule) bool {
	for _, r := range rules {
		if !r.IsAI && !r.IsAggregate {
			return true
		}
	}
	return false
}

func hasAIRule(rules []models.Rule) bool {
	for _, r := range rules {
		if r.IsAI {
			return true
		}
	}
	return false
}

// scanTag looks for a `[MOVEMENT:N]` or `[JUDGE:N]` tag in content,
// returning the first N found.
func scanTag(content, movementName string) (int, bool) {
	movementTag := regexp.MustCompile(fmt.Sprintf(`(?i)\[%s:(\d+)\]`, regexp.QuoteMeta(strings.ToUpper(movementName))))
	judgeTag := regexp.MustCompile(`(?i)\[JUDGE:(\d+)\]`)

	for _, re := range []*regexp.Regexp{movementTag, judgeTag} {
		if m := re.FindStringSubmatch(content); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// judgeStep asks the conductor persona for a structured `{"step": N}`
// answer describing which rule matched.
func (e *Evaluator) judgeStep(ctx context.Context, content string) (int, bool, error) {
	prompt := fmt.Sprintf("Given this agent output, which rule step number applies?\n\n%s", content)
	resp, err := e.Adapter.Invoke(ctx, provider.Request{
		Persona: conductorPersona,
		Prompt:  prompt,
		Schema:  stepSchema,
	})
	if err != nil {
		return 0, false, err
	}
	if resp.IsError() {
		return 0, false, fmt.Errorf("rule: conductor step judge failed: %s", resp.Error)
	}
	payload := resp.StructuredOutput
	if payload == "" {
		payload = resp.Content
	}
	step := gjson.Get(payload, "step")
	if !step.Exists() {
		return 0, false, nil
	}
	return int(step.Int()), true, nil
}

// judgeTag asks the conductor persona, without a schema, to restate
// which movement tag applies, then scans the free-text reply.
func (e *Evaluator) judgeTag(ctx context.Context, movementName, content string) (int, bool, error) {
	prompt := fmt.Sprintf("Given this agent output, respond with the matching tag, e.g. [%s:2].\n\n%s", strings.ToUpper(movementName), content)
	resp, err := e.Adapter.Invoke(ctx, provider.Request{
		Persona: conductorPersona,
		Prompt:  prompt,
	})
	if err != nil {
		return 0, false, err
	}
	if resp.IsError() {
		return 0, false, fmt.Errorf("rule: conductor tag judge failed: %s", resp.Error)
	}
	n, ok := scanTag(resp.Content, movementName)
	return n, ok, nil
}

// judgeConditions presents every plain/ai condition as a numbered list
// and asks the conductor persona to pick one, returning its raw reply
// text alongside the list of condition texts offered (for callers that
// want to log what was presented).
func (e *Evaluator) judgeConditions(ctx context.Context, movementName, content string, rules []models.Rule) (string, []string, error) {
	var conds []string
	var b strings.Builder
	b.WriteString("Given this agent output, which numbered condition applies?\n\n")
	b.WriteString(content)
	b.WriteString("\n\nConditions:\n")
	n := 0
	for _, r := range rules {
		if r.IsAggregate {
			continue
		}
		n++
		conds = append(conds, r.Condition)
		fmt.Fprintf(&b, "%d. %s\n", n, r.Condition)
	}

	resp, err := e.Adapter.Invoke(ctx, provider.Request{
		Persona: conductorPersona,
		Prompt:  b.String(),
		Schema:  matchSchema,
	})
	if err != nil {
		return "", conds, err
	}
	if resp.IsError() {
		return "", conds, fmt.Errorf("rule: conductor condition judge failed: %s", resp.Error)
	}
	payload := resp.StructuredOutput
	if payload == "" {
		payload = resp.Content
	}
	return payload, conds, nil
}

func gjsonMatchedIndex(payload string) (int, bool) {
	v := gjson.Get(payload, "matched_index")
	if !v.Exists() {
		return 0, false
	}
	return int(v.Int()), true
}
