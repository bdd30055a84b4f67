package rule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoshihiko555/takt/internal/models"
	"github.com/yoshihiko555/takt/internal/provider"
)

func TestEvaluateAutoSelectsSingleRule(t *testing.T) {
	e := New(nil)
	rules := []models.Rule{{Condition: "always", Next: "next"}}

	res, err := e.Evaluate(context.Background(), "plan", rules, "anything", "", false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Index)
	assert.Equal(t, models.MethodAutoSelect, res.Method)
}

func TestEvaluatePhase1Tag(t *testing.T) {
	e := New(nil)
	rules := []models.Rule{
		{Condition: "tests pass", Next: "review"},
		{Condition: "tests fail", Next: "implement"},
	}

	res, err := e.Evaluate(context.Background(), "plan", rules, "output [PLAN:2] trailing", "", false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Index)
	assert.Equal(t, models.MethodPhase1Tag, res.Method)
}

func TestEvaluatePhase3TagWhenPlainRulePresent(t *testing.T) {
	e := New(nil)
	rules := []models.Rule{
		{Condition: "tests pass", Next: "review"},
		{Condition: "tests fail", Next: "implement"},
	}

	res, err := e.Evaluate(context.Background(), "plan", rules, "no tag here", "[PLAN:1]", true)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Index)
	assert.Equal(t, models.MethodPhase3Tag, res.Method)
}

func TestEvaluateStructuredOutputViaAIRule(t *testing.T) {
	mockAdapter, err := provider.NewMockAdapter(provider.Options{})
	require.NoError(t, err)

	e := New(structuredJudgeAdapter{mockAdapter})
	rules := []models.Rule{
		NormalizedRule(t, `ai("looks complete")`, "done"),
		NormalizedRule(t, `ai("needs more work")`, "implement"),
	}

	res, err := e.Evaluate(context.Background(), "review", rules, "free-form agent narrative", "", false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Index)
	assert.Equal(t, models.MethodStructuredOutput, res.Method)
}

func TestEvaluateNoMatchWithoutAIRuleOrTag(t *testing.T) {
	e := New(nil)
	rules := []models.Rule{
		{Condition: "tests pass", Next: "review"},
		{Condition: "tests fail", Next: "implement"},
	}

	_, err := e.Evaluate(context.Background(), "plan", rules, "nothing useful here", "", false)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestEvaluateNoRules(t *testing.T) {
	e := New(nil)
	_, err := e.Evaluate(context.Background(), "plan", nil, "x", "", false)
	assert.ErrorIs(t, err, ErrNoRules)
}

// NormalizedRule builds a rule and runs it through NormalizeRule, the
// way the piece loader does after YAML unmarshaling.
func NormalizedRule(t *testing.T, condition, next string) models.Rule {
	t.Helper()
	r := models.Rule{Condition: condition, Next: next}
	NormalizeRule(&r)
	return r
}

// structuredJudgeAdapter wraps another adapter to always answer with a
// structured {"step":2} payload, simulating a conductor persona that
// picked the second rule.
type structuredJudgeAdapter struct {
	provider.Adapter
}

func (a structuredJudgeAdapter) Kind() provider.Kind { return provider.Mock }

func (a structuredJudgeAdapter) Invoke(ctx context.Context, req provider.Request) (*models.Response, error) {
	resp, err := a.Adapter.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Schema == stepSchema {
		resp.StructuredOutput = `{"step":2}`
		resp.Status = models.StatusDone
	}
	return resp, nil
}
