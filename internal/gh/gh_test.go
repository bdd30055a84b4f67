package gh_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoshihiko555/takt/internal/gh"
)

type fakeRunner struct {
	outputs map[string]string
	calls   []string
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	k := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, k)
	return f.outputs[k], nil
}

func TestResolveIssueFormatsTitleBodyLabelsComments(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{}}
	runner.outputs["gh issue view #42 --json title,body,labels,comments"] = `{
		"title": "Login fails on retry",
		"body": "Steps to reproduce...",
		"labels": [{"name": "bug"}, {"name": "auth"}],
		"comments": [{"author": {"login": "alice"}, "body": "Confirmed on staging."}]
	}`

	c := gh.New(runner, "/repo")
	content, err := c.ResolveIssue(context.Background(), "#42")
	require.NoError(t, err)

	assert.Contains(t, content, "# Login fails on retry")
	assert.Contains(t, content, "Steps to reproduce...")
	assert.Contains(t, content, "bug, auth")
	assert.Contains(t, content, "**alice:**")
	assert.Contains(t, content, "Confirmed on staging.")
}

func TestResolveIssueRejectsMalformedJSON(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"gh issue view #1 --json title,body,labels,comments": "not json",
	}}
	c := gh.New(runner, "/repo")
	_, err := c.ResolveIssue(context.Background(), "#1")
	assert.Error(t, err)
}

func TestCreatePRReturnsLastLineAsURL(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"gh pr create --title fix --body done --head takt/1-fix --base main": "Creating PR...\nhttps://github.com/acme/repo/pull/7\n",
	}}
	c := gh.New(runner, "/repo")
	url, err := c.CreatePR(context.Background(), "/repo", gh.CreatePROptions{
		Title: "fix", Body: "done", Head: "takt/1-fix", Base: "main",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/repo/pull/7", url)
}

func TestIsIssueRef(t *testing.T) {
	ref, ok := gh.IsIssueRef("#123")
	assert.True(t, ok)
	assert.Equal(t, "#123", ref)

	_, ok = gh.IsIssueRef("fix the login bug")
	assert.False(t, ok)

	_, ok = gh.IsIssueRef("#abc")
	assert.False(t, ok)
}
