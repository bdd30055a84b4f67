package clone_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoshihiko555/takt/internal/clone"
)

type recordedCall struct {
	dir  string
	name string
	args []string
}

type fakeRunner struct {
	calls    []recordedCall
	outputs  map[string]string
	failures map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{}, failures: map[string]error{}}
}

func (f *fakeRunner) key(name string, args ...string) string {
	return name + " " + strings.Join(args, " ")
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	f.calls = append(f.calls, recordedCall{dir: dir, name: name, args: args})
	k := f.key(name, args...)
	if err, ok := f.failures[k]; ok {
		return "", err
	}
	return f.outputs[k], nil
}

func TestCreateSharedCloneWiresExpectedCommands(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs[runner.key("git", "branch", "--show-current")] = "main\n"
	runner.outputs[runner.key("git", "config", "user.name")] = "Ada Lovelace\n"
	runner.outputs[runner.key("git", "config", "user.email")] = "ada@example.com\n"

	metaDir := t.TempDir()
	m := clone.New(runner, metaDir)

	info, err := m.CreateSharedClone(context.Background(), "/repo/project", clone.CreateOptions{TaskSlug: "fix-login"})
	require.NoError(t, err)

	assert.Equal(t, "main", info.SourceBranch)
	assert.True(t, strings.HasPrefix(info.Branch, "takt/"))
	assert.True(t, strings.HasSuffix(info.Branch, "-fix-login"))
	assert.True(t, strings.HasSuffix(info.Path, "-fix-login"))

	var sawClone, sawRemoveOrigin, sawCheckoutB bool
	for _, c := range runner.calls {
		switch {
		case c.name == "git" && len(c.args) > 0 && c.args[0] == "clone":
			sawClone = true
		case c.name == "git" && strings.Join(c.args, " ") == "remote remove origin":
			sawRemoveOrigin = true
		case c.name == "git" && len(c.args) > 0 && c.args[0] == "checkout" && c.args[1] == "-b":
			sawCheckoutB = true
		}
	}
	assert.True(t, sawClone)
	assert.True(t, sawRemoveOrigin)
	assert.True(t, sawCheckoutB)

	loaded, err := m.LoadMeta(info.Branch)
	require.NoError(t, err)
	assert.Equal(t, info.Path, loaded.Path)
}

func TestCreateSharedCloneChecksOutExistingBranch(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs[runner.key("git", "branch", "--show-current")] = "main\n"

	m := clone.New(runner, t.TempDir())
	info, err := m.CreateSharedClone(context.Background(), "/repo/project", clone.CreateOptions{
		TaskSlug: "retry", Branch: "takt/20260101-000000-retry",
	})
	require.NoError(t, err)
	assert.Equal(t, "takt/20260101-000000-retry", info.Branch)

	var checkedOutExisting bool
	for _, c := range runner.calls {
		if c.name == "git" && len(c.args) == 2 && c.args[0] == "checkout" && c.args[1] == "takt/20260101-000000-retry" {
			checkedOutExisting = true
		}
	}
	assert.True(t, checkedOutExisting)
}

func TestAutoCommitNoChangesReturnsNotChanged(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs[runner.key("git", "status", "--porcelain")] = ""

	m := clone.New(runner, t.TempDir())
	hash, changed, err := m.AutoCommit(context.Background(), "/clone", "takt: task")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, hash)
}

func TestAutoCommitWithChangesCommitsAndReturnsHash(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs[runner.key("git", "status", "--porcelain")] = " M file.go\n"
	runner.outputs[runner.key("git", "rev-parse", "HEAD")] = "deadbeef\n"

	m := clone.New(runner, t.TempDir())
	hash, changed, err := m.AutoCommit(context.Background(), "/clone", "takt: task")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "deadbeef", hash)
}

func TestRemoveCloneDeletesDirectoryAndMeta(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs[runner.key("git", "branch", "--show-current")] = "main\n"

	metaDir := t.TempDir()
	m := clone.New(runner, metaDir)

	clonesParent := t.TempDir()
	info, err := m.CreateSharedClone(context.Background(), filepath.Join(clonesParent, "project"), clone.CreateOptions{TaskSlug: "temp"})
	require.NoError(t, err)

	require.NoError(t, m.RemoveClone(info.Branch))

	_, err = m.LoadMeta(info.Branch)
	assert.Error(t, err)
}

func TestClassifySoftVsHard(t *testing.T) {
	assert.Equal(t, clone.Soft, clone.Classify(fmt.Errorf("fatal: A branch named 'x' already exists")))
	assert.Equal(t, clone.Soft, clone.Classify(fmt.Errorf("nothing to commit, working tree clean")))
	assert.Equal(t, clone.Hard, clone.Classify(fmt.Errorf("fatal: not a git repository")))
}
